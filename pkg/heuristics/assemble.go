package heuristics

// Thresholds gate which pairs become edges of the final graph.
type Thresholds struct {
	Dependency        float64
	Loop              float64
	MinActivityCount  int64
	MinDFGOccurrences int64
}

// Edge is a directed edge of the discovered graph.
type Edge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`

	// Loop marks edges recovered by length-two loop detection. Their weight is 0.
	Loop bool `json:"loop,omitempty"`

	// Frequency is the unfiltered directly-follows count of the pair.
	Frequency int64 `json:"frequency"`

	// Dependency is the score of the pair, nil when noise filtering removed it.
	Dependency *float64 `json:"dependency,omitempty"`
}

// Pair returns the ordered pair of the edge.
func (e Edge) Pair() Pair {
	return Pair{Source: e.Source, Target: e.Target}
}

// Graph is the assembled dependency graph.
type Graph struct {
	Nodes []string
	Edges []Edge

	// Loops are the candidates considered after the dependency phase.
	Loops []LoopCandidate
}

// assembler accumulates nodes and edges in first-seen order.
type assembler struct {
	nodes   []string
	hasNode map[string]bool
	edges   []Edge
	hasEdge map[Pair]bool
}

func newAssembler() *assembler {
	return &assembler{
		hasNode: make(map[string]bool),
		hasEdge: make(map[Pair]bool),
	}
}

func (a *assembler) addNode(n string) {
	if !a.hasNode[n] {
		a.hasNode[n] = true
		a.nodes = append(a.nodes, n)
	}
}

func (a *assembler) addEdge(e Edge) {
	p := e.Pair()
	if a.hasEdge[p] {
		return
	}
	a.hasEdge[p] = true
	a.edges = append(a.edges, e)
}

// Assemble builds the final graph.
//
// Phase A keeps every scored pair whose endpoints reach the minimum
// occurrence estimate, whose filtered frequency reaches the minimum
// occurrence count, and whose dependency reaches th.Dependency.
//
// Phase B adds both directions of every loop candidate of the selected nodes
// with weight 0, unless either direction already cleared th.Dependency. When
// phase A selected no node, every activity meeting the occurrence estimate
// seeds phase B.
//
// If no node was selected at all, the nodes are the log's activities.
func Assemble(
	deps *DependencyGraph,
	filtered *FrequencyTable,
	occ Occurrences,
	loops LoopMatrix,
	activities []string,
	th Thresholds,
) *Graph {
	a := newAssembler()

	// Phase A
	for _, p := range deps.Pairs() {
		if !a.qualifies(p, filtered, occ, th) {
			continue
		}
		score, _ := deps.Score(p)
		if score < th.Dependency {
			continue
		}
		a.addNode(p.Source)
		a.addNode(p.Target)
		a.addEdge(Edge{Source: p.Source, Target: p.Target, Weight: score})
	}

	// Phase B
	seed := append([]string(nil), a.nodes...)
	if len(seed) == 0 {
		for _, act := range activities {
			if occ.AtLeast(act, th.MinActivityCount) {
				seed = append(seed, act)
			}
		}
	}

	candidates := DetectLoops(loops, filtered, seed, th.Loop)
	for _, c := range candidates {
		if !a.qualifies(c.Pair, filtered, occ, th) {
			continue
		}
		if deps.Exceeds(c.Pair, th.Dependency) || deps.Exceeds(c.Reverse(), th.Dependency) {
			continue
		}
		a.addNode(c.Source)
		a.addNode(c.Target)
		a.addEdge(Edge{Source: c.Source, Target: c.Target, Loop: true})
		a.addEdge(Edge{Source: c.Target, Target: c.Source, Loop: true})
	}

	nodes := a.nodes
	if len(nodes) == 0 {
		nodes = append([]string{}, activities...)
	}

	return &Graph{Nodes: nodes, Edges: a.edges, Loops: candidates}
}

// qualifies applies the occurrence gates shared by both phases.
func (a *assembler) qualifies(p Pair, filtered *FrequencyTable, occ Occurrences, th Thresholds) bool {
	count, ok := filtered.Count(p)
	return ok &&
		count >= th.MinDFGOccurrences &&
		occ.AtLeast(p.Source, th.MinActivityCount) &&
		occ.AtLeast(p.Target, th.MinActivityCount)
}
