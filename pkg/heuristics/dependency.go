package heuristics

// DependencyGraph holds the dependency score of every pair of a frequency
// table. It shares the iteration order of the table it was computed from.
type DependencyGraph struct {
	scores map[Pair]float64
	keys   []Pair
}

// ComputeDependencies scores every pair of t.
//
// For a != b with forward count c1 and reverse count c2:
//
//	(c1 - c2) / (c1 + c2 + 1)   when (b, a) was observed
//	c1 / (c1 + 1)               otherwise
//
// A self loop with count v scores v / (v + 1). Denominators are always at
// least one, so scores lie in [-1, 1).
func ComputeDependencies(t *FrequencyTable) *DependencyGraph {
	g := &DependencyGraph{
		scores: make(map[Pair]float64, t.Len()),
		keys:   t.Pairs(),
	}
	for _, p := range t.Pairs() {
		g.scores[p] = dependency(t, p)
	}
	return g
}

func dependency(t *FrequencyTable, p Pair) float64 {
	c1, _ := t.Count(p)
	if p.IsSelfLoop() {
		return float64(c1) / float64(c1+1)
	}
	if c2, ok := t.Count(p.Reverse()); ok {
		return float64(c1-c2) / float64(c1+c2+1)
	}
	return float64(c1) / float64(c1+1)
}

// Score returns the dependency of p and whether it was computed.
func (g *DependencyGraph) Score(p Pair) (float64, bool) {
	s, ok := g.scores[p]
	return s, ok
}

// Pairs returns the scored pairs in iteration order. The slice must not be modified.
func (g *DependencyGraph) Pairs() []Pair {
	return g.keys
}

// Len returns the number of scored pairs.
func (g *DependencyGraph) Len() int {
	return len(g.keys)
}

// Exceeds reports whether p was scored at or above threshold.
func (g *DependencyGraph) Exceeds(p Pair, threshold float64) bool {
	s, ok := g.scores[p]
	return ok && s >= threshold
}
