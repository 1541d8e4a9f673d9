// Package export serializes discovered dependency graphs.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	hmerrors "github.com/logflow/hminer/pkg/errors"
	"github.com/logflow/hminer/pkg/heuristics"
)

// Format is an output format.
type Format uint8

const (
	FormatJSON Format = iota
	FormatDOT
	FormatParquet
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatDOT:
		return "dot"
	case FormatParquet:
		return "parquet"
	default:
		return "json"
	}
}

// ParseFormat parses an output format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "dot", "graphviz", "gv":
		return FormatDOT, nil
	case "parquet", "pq":
		return FormatParquet, nil
	default:
		return FormatJSON, hmerrors.New(hmerrors.CodeInvalidFormat, "unknown output format").
			WithContext("format", s)
	}
}

// Write serializes result to w in the given format.
func Write(w io.Writer, format Format, result *heuristics.Result) error {
	var err error
	switch format {
	case FormatDOT:
		err = WriteDOT(w, result)
	case FormatParquet:
		err = WriteParquet(w, result, DefaultParquetConfig())
	default:
		err = WriteJSON(w, result)
	}
	if err != nil {
		return hmerrors.Wrap(err, hmerrors.CodeWriteFailed, "export failed").
			WithContext("format", format.String())
	}
	return nil
}

type jsonEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
	Loop   bool    `json:"loop"`
}

type jsonGraph struct {
	Nodes []string   `json:"nodes"`
	Edges []jsonEdge `json:"edges"`
}

// WriteJSON writes {"nodes": [...], "edges": [...]}. Empty lists are
// written as [] rather than null.
func WriteJSON(w io.Writer, result *heuristics.Result) error {
	g := jsonGraph{
		Nodes: append([]string{}, result.Nodes...),
		Edges: make([]jsonEdge, 0, len(result.Edges)),
	}
	for _, e := range result.Edges {
		g.Edges = append(g.Edges, jsonEdge{Source: e.Source, Target: e.Target, Weight: e.Weight, Loop: e.Loop})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}

// WriteDOT writes the graph as Graphviz DOT. Loop edges are dashed.
func WriteDOT(w io.Writer, result *heuristics.Result) error {
	var sb strings.Builder
	sb.WriteString("digraph heuristics {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n")

	for _, n := range result.Nodes {
		fmt.Fprintf(&sb, "  %s;\n", strconv.Quote(n))
	}
	for _, e := range result.Edges {
		label := strconv.FormatFloat(e.Weight, 'f', 3, 64)
		if e.Loop {
			fmt.Fprintf(&sb, "  %s -> %s [label=%q, style=dashed];\n", strconv.Quote(e.Source), strconv.Quote(e.Target), label)
			continue
		}
		fmt.Fprintf(&sb, "  %s -> %s [label=%q];\n", strconv.Quote(e.Source), strconv.Quote(e.Target), label)
	}
	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())
	return err
}
