package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/logflow/hminer/internal/model"
	"github.com/logflow/hminer/pkg/heuristics"
	"github.com/logflow/hminer/pkg/index"
)

func TestRenderReport(t *testing.T) {
	result := &heuristics.Result{
		Nodes: []string{"A", "B"},
		Edges: []heuristics.Edge{
			{Source: "A", Target: "B", Weight: 0.75},
			{Source: "B", Target: "A", Loop: true},
		},
		Stats: heuristics.Stats{
			Events: 4, Cases: 2, Activities: 2,
			Stages:   map[string]time.Duration{"noise": 2 * time.Millisecond},
			Duration: 5 * time.Millisecond,
		},
	}
	idx := index.Build([]model.Event{
		{CaseID: "1", Activity: "A"}, {CaseID: "1", Activity: "B"},
		{CaseID: "2", Activity: "A"},
	})

	var buf bytes.Buffer
	RenderReport(&buf, result, idx, ReportOptions{Source: "log.csv", Verbose: true})
	out := buf.String()

	for _, want := range []string{
		"HEURISTICS MINER",
		"log.csv",
		"A → B",
		"0.750",
		"loop",
		"2 cases (100%)",
		"1 cases (50%)",
		"(1 cases)",
		"(1 cases with both)",
		"noise",
		"2ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderReport_NoEdges(t *testing.T) {
	var buf bytes.Buffer
	RenderReport(&buf, &heuristics.Result{Nodes: []string{"X"}}, nil, ReportOptions{})
	if !strings.Contains(buf.String(), "(none)") {
		t.Errorf("expected empty edge marker:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "STAGES") {
		t.Error("stages shown without verbose")
	}

	buf.Reset()
	RenderReport(&buf, &heuristics.Result{
		Nodes: []string{"A", "B"},
		Edges: []heuristics.Edge{{Source: "A", Target: "B", Weight: 0.5}},
	}, nil, ReportOptions{})
	if strings.Contains(buf.String(), "cases") {
		t.Errorf("coverage shown without an index:\n%s", buf.String())
	}
}

func TestFormatters(t *testing.T) {
	if got := formatNumber(1500); got != "1.5K" {
		t.Errorf("formatNumber(1500) = %s", got)
	}
	if got := FormatBytes(1536); got != "1.5 KB" {
		t.Errorf("FormatBytes(1536) = %s", got)
	}
	if got := formatDuration(1500 * time.Millisecond); got != "1.5s" {
		t.Errorf("formatDuration(1.5s) = %s", got)
	}
	if got := formatDuration(90 * time.Second); got != "1m30s" {
		t.Errorf("formatDuration(90s) = %s", got)
	}
}
