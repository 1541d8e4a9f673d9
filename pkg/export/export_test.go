package export

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/hminer/internal/model"
	hmerrors "github.com/logflow/hminer/pkg/errors"
	"github.com/logflow/hminer/pkg/heuristics"
)

func sampleResult() *heuristics.Result {
	return &heuristics.Result{
		Nodes: []string{"A", "B"},
		Edges: []heuristics.Edge{
			{Source: "A", Target: "B", Weight: 0.75},
			{Source: "B", Target: "A", Weight: 0, Loop: true},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{
		"":        FormatJSON,
		"JSON":    FormatJSON,
		"dot":     FormatDOT,
		"gv":      FormatDOT,
		"parquet": FormatParquet,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %s, %v; want %s", in, got, err, want)
		}
	}

	if _, err := ParseFormat("svg"); !hmerrors.IsCode(err, hmerrors.CodeInvalidFormat) {
		t.Errorf("ParseFormat(svg) err = %v, want invalid format", err)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, sampleResult()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var got struct {
		Nodes []string `json:"nodes"`
		Edges []struct {
			Source string  `json:"source"`
			Target string  `json:"target"`
			Weight float64 `json:"weight"`
			Loop   bool    `json:"loop"`
		} `json:"edges"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if len(got.Nodes) != 2 || got.Nodes[0] != "A" {
		t.Errorf("nodes = %v", got.Nodes)
	}
	if len(got.Edges) != 2 {
		t.Fatalf("edges = %d, want 2", len(got.Edges))
	}
	if got.Edges[0].Weight != 0.75 || got.Edges[0].Loop {
		t.Errorf("edge[0] = %+v", got.Edges[0])
	}
	if !got.Edges[1].Loop {
		t.Errorf("edge[1] should be a loop edge")
	}
}

func TestWriteJSON_EmptyListsNotNull(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, &heuristics.Result{}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "null") {
		t.Errorf("empty result rendered null lists: %s", out)
	}
	if !strings.Contains(out, `"edges": []`) {
		t.Errorf("expected empty edge list, got %s", out)
	}
}

func TestWriteDOT(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatDOT, sampleResult()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"digraph heuristics {",
		`"A";`,
		`"A" -> "B" [label="0.750"];`,
		`"B" -> "A" [label="0.000", style=dashed];`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("DOT output missing %q:\n%s", want, out)
		}
	}
	if !strings.HasSuffix(out, "}\n") {
		t.Errorf("DOT output not terminated:\n%s", out)
	}
}

func TestWriteDOT_QuotesNames(t *testing.T) {
	r := &heuristics.Result{Nodes: []string{`say "hi"`}}
	var buf bytes.Buffer
	if err := WriteDOT(&buf, r); err != nil {
		t.Fatalf("WriteDOT failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"say \"hi\""`) {
		t.Errorf("node name not escaped:\n%s", buf.String())
	}
}

func TestWriteParquet(t *testing.T) {
	log := model.NewLog()
	for _, c := range []string{"1", "2"} {
		for i, a := range []string{"A", "B", "C"} {
			log.Append(model.Event{CaseID: c, Activity: a, Timestamp: int64(i), HasTimestamp: true})
		}
	}
	result, err := heuristics.Discover(context.Background(), log, heuristics.DefaultConfig())
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	// A result restored from a cache carries only the graph.
	graphOnly := &heuristics.Result{Nodes: result.Nodes, Edges: result.Edges}

	for name, r := range map[string]*heuristics.Result{"mined": result, "graph only": graphOnly} {
		var buf bytes.Buffer
		if err := Write(&buf, FormatParquet, r); err != nil {
			t.Fatalf("%s: Write failed: %v", name, err)
		}

		mem := memory.NewGoAllocator()
		table, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()),
			parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
		if err != nil {
			t.Fatalf("%s: ReadTable failed: %v", name, err)
		}

		if table.NumRows() != int64(len(result.Edges)) {
			t.Errorf("%s: rows = %d, want %d", name, table.NumRows(), len(result.Edges))
		}
		if table.NumCols() != 6 {
			t.Fatalf("%s: cols = %d, want 6", name, table.NumCols())
		}

		freqs := table.Column(4).Data().Chunk(0).(*array.Int64)
		deps := table.Column(5).Data().Chunk(0).(*array.Float64)
		for i := 0; i < freqs.Len(); i++ {
			if freqs.Value(i) != 2 {
				t.Errorf("%s: frequency[%d] = %d, want 2", name, i, freqs.Value(i))
			}
			if deps.IsNull(i) || deps.Value(i) != 2.0/3.0 {
				t.Errorf("%s: dependency[%d] = %v (null=%v), want 2/3", name, i, deps.Value(i), deps.IsNull(i))
			}
		}
		table.Release()
	}
}

func TestWriteParquet_NullDependency(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteParquet(&buf, sampleResult(), DefaultParquetConfig()); err != nil {
		t.Fatalf("WriteParquet failed: %v", err)
	}

	mem := memory.NewGoAllocator()
	table, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(buf.Bytes()),
		parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	defer table.Release()

	deps := table.Column(5).Data().Chunk(0).(*array.Float64)
	if deps.NullN() != deps.Len() {
		t.Errorf("edges without a score should export a null dependency, got %d nulls of %d", deps.NullN(), deps.Len())
	}
}
