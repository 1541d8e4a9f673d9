package heuristics

import (
	"sort"
)

// LoopMatrix records, for x != y, how often the triple (x, y, x) occurred:
// matrix[x][y] = count.
type LoopMatrix map[string]map[string]int64

// BuildLoopMatrix extracts the alternation counts from the triple table.
func BuildLoopMatrix(triples *TripleTable) LoopMatrix {
	m := make(LoopMatrix)
	for _, tr := range triples.Triples() {
		if tr.First != tr.Third || tr.First == tr.Second {
			continue
		}
		if m[tr.First] == nil {
			m[tr.First] = make(map[string]int64)
		}
		m[tr.First][tr.Second], _ = triples.Count(tr)
	}
	return m
}

// Get returns matrix[x][y], or 0 when absent.
func (m LoopMatrix) Get(x, y string) int64 {
	return m[x][y]
}

// partners returns the y of every recorded (x, y, x) in lexicographic order.
func (m LoopMatrix) partners(x string) []string {
	ys := make([]string, 0, len(m[x]))
	for y := range m[x] {
		ys = append(ys, y)
	}
	sort.Strings(ys)
	return ys
}

// LoopCandidate is a pair of activities that alternate often enough to be a
// length-two loop.
type LoopCandidate struct {
	Pair

	// Score is (v1 + v2) / (v1 + v2 + 1) with v1 = matrix[x][y], v2 = matrix[y][x].
	Score float64

	// Count is the frequency of the direct edge x -> y in the filtered
	// table, or 0 when that edge is absent.
	Count int64
}

// LoopScore computes the length-two loop measure for x and y.
func LoopScore(m LoopMatrix, x, y string) float64 {
	v := m.Get(x, y) + m.Get(y, x)
	return float64(v) / float64(v+1)
}

// DetectLoops registers the loop candidates of every node in nodes, in node
// order, whose loop score reaches threshold.
func DetectLoops(m LoopMatrix, filtered *FrequencyTable, nodes []string, threshold float64) []LoopCandidate {
	var candidates []LoopCandidate
	for _, x := range nodes {
		for _, y := range m.partners(x) {
			score := LoopScore(m, x, y)
			if score < threshold {
				continue
			}
			p := Pair{Source: x, Target: y}
			count, _ := filtered.Count(p)
			candidates = append(candidates, LoopCandidate{Pair: p, Score: score, Count: count})
		}
	}
	return candidates
}
