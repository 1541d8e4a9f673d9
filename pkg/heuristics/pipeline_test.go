package heuristics

import (
	"reflect"
	"testing"
)

func table(counts map[Pair]int64) *FrequencyTable {
	return NewFrequencyTable(counts)
}

func TestCountDirectlyFollows(t *testing.T) {
	events := traces("ABC", "AB", "B").Sorted()
	dfg := CountDirectlyFollows(events)

	want := map[Pair]int64{
		{"A", "B"}: 2,
		{"B", "C"}: 1,
	}
	if dfg.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d (%v)", dfg.Len(), len(want), dfg.Pairs())
	}
	for p, c := range want {
		if got, _ := dfg.Count(p); got != c {
			t.Errorf("Count(%v) = %d, want %d", p, got, c)
		}
	}
	// C ends case a, A starts case b.
	if _, ok := dfg.Count(Pair{"C", "A"}); ok {
		t.Error("pair spanning two cases was counted")
	}
}

func TestCountTriples(t *testing.T) {
	events := traces("ABAB", "AB", "XYZ").Sorted()
	triples := CountTriples(events)

	want := map[Triple]int64{
		{"A", "B", "A"}: 1,
		{"B", "A", "B"}: 1,
		{"X", "Y", "Z"}: 1,
	}
	if triples.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d (%v)", triples.Len(), len(want), triples.Triples())
	}
	for tr, c := range want {
		if got, _ := triples.Count(tr); got != c {
			t.Errorf("Count(%v) = %d, want %d", tr, got, c)
		}
	}
}

func TestFrequencyTable_OrderAndView(t *testing.T) {
	tbl := table(map[Pair]int64{
		{"B", "A"}: 1,
		{"A", "C"}: 4,
		{"A", "B"}: 2,
		{"C", "C"}: 0,
	})

	want := []Pair{{"A", "B"}, {"A", "C"}, {"B", "A"}}
	if !reflect.DeepEqual(tbl.Pairs(), want) {
		t.Errorf("Pairs() = %v, want %v", tbl.Pairs(), want)
	}
	if tbl.Total() != 7 {
		t.Errorf("Total() = %d, want 7", tbl.Total())
	}

	v := tbl.View()
	if got := v.OutgoingSum("A"); got != 6 {
		t.Errorf("OutgoingSum(A) = %d, want 6", got)
	}
	if got := v.IncomingSum("A"); got != 1 {
		t.Errorf("IncomingSum(A) = %d, want 1", got)
	}
	if got := v.DominantCount("B"); got != 2 {
		t.Errorf("DominantCount(B) = %d, want 2", got)
	}
	if got := v.DominantCount("Z"); got != -1 {
		t.Errorf("DominantCount(Z) = %d, want -1", got)
	}
}

func TestFilterNoise(t *testing.T) {
	tbl := table(map[Pair]int64{
		{"A", "B"}: 100,
		{"B", "C"}: 100,
		{"A", "C"}: 3, // below 0.05 * 100 on both ends
		{"C", "D"}: 2, // D is only seen here, so min() keeps it
	})

	filtered, reverted := FilterNoise(tbl, 0.05)
	if reverted {
		t.Fatal("unexpected fallback")
	}
	if _, ok := filtered.Count(Pair{"A", "C"}); ok {
		t.Error("A->C should be removed as noise")
	}
	if _, ok := filtered.Count(Pair{"C", "D"}); !ok {
		t.Error("C->D should be kept through D's dominant count")
	}
	if filtered.Len() != 3 {
		t.Errorf("Len() = %d, want 3", filtered.Len())
	}
	// The input is never mutated.
	if tbl.Len() != 4 {
		t.Errorf("input table changed: Len() = %d", tbl.Len())
	}
}

func TestFilterNoise_FallbackWhenEverythingRemoved(t *testing.T) {
	tbl := table(map[Pair]int64{
		{"A", "B"}: 5,
		{"B", "C"}: 3,
	})

	filtered, reverted := FilterNoise(tbl, 2.0)
	if !reverted {
		t.Fatal("expected fallback to the unfiltered table")
	}
	if !filtered.Equal(tbl) {
		t.Errorf("fallback table differs: %v", filtered.Pairs())
	}
}

func TestComputeDependencies(t *testing.T) {
	tbl := table(map[Pair]int64{
		{"A", "B"}: 5,
		{"B", "A"}: 5,
		{"B", "C"}: 9,
		{"C", "B"}: 1,
		{"C", "D"}: 3,
		{"D", "D"}: 4,
	})
	deps := ComputeDependencies(tbl)

	tests := []struct {
		pair Pair
		want float64
	}{
		{Pair{"A", "B"}, 0},
		{Pair{"B", "A"}, 0},
		{Pair{"B", "C"}, 8.0 / 11.0},
		{Pair{"C", "B"}, -8.0 / 11.0},
		{Pair{"C", "D"}, 3.0 / 4.0},
		{Pair{"D", "D"}, 4.0 / 5.0},
	}
	for _, tt := range tests {
		got, ok := deps.Score(tt.pair)
		if !ok || !approx(got, tt.want) {
			t.Errorf("Score(%v) = %v, %v; want %v", tt.pair, got, ok, tt.want)
		}
	}

	for _, p := range deps.Pairs() {
		s, _ := deps.Score(p)
		if s < -1 || s >= 1 {
			t.Errorf("Score(%v) = %v out of [-1, 1)", p, s)
		}
	}
}

func TestEstimateOccurrence(t *testing.T) {
	tbl := table(map[Pair]int64{
		{"A", "B"}: 3,
		{"B", "C"}: 2,
		{"B", "D"}: 1,
	})
	occ := EstimateOccurrences(tbl, []string{"A", "B", "C", "D", "E"})

	want := Occurrences{
		"A": 3, // outgoing only, not halved
		"B": 3, // (3 + 3) / 2
		"C": 2,
		"D": 1,
		"E": 0,
	}
	if !reflect.DeepEqual(occ, want) {
		t.Errorf("EstimateOccurrences() = %v, want %v", occ, want)
	}

	odd := table(map[Pair]int64{{"A", "B"}: 2, {"B", "C"}: 1})
	if got := EstimateOccurrence(odd.View(), "B"); got != 1 {
		t.Errorf("EstimateOccurrence(B) = %d, want 1 (integer halving)", got)
	}
}

func TestBuildLoopMatrixAndDetect(t *testing.T) {
	triples := NewTripleTable(map[Triple]int64{
		{"A", "B", "A"}: 2,
		{"B", "A", "B"}: 1,
		{"A", "A", "A"}: 5, // same activity, not a two-step loop
		{"A", "B", "C"}: 7,
		{"C", "D", "C"}: 1,
	})
	m := BuildLoopMatrix(triples)

	if m.Get("A", "B") != 2 || m.Get("B", "A") != 1 || m.Get("C", "D") != 1 {
		t.Errorf("unexpected matrix %v", m)
	}
	if m.Get("A", "A") != 0 {
		t.Error("self alternation must not be recorded")
	}

	filtered := table(map[Pair]int64{{"A", "B"}: 4, {"B", "A"}: 3})
	got := DetectLoops(m, filtered, []string{"C", "A"}, 0.65)
	want := []LoopCandidate{
		{Pair: Pair{"A", "B"}, Score: 0.75, Count: 4},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DetectLoops() = %+v, want %+v", got, want)
	}

	// C/D alternated once, scoring 1/2. C->D is not in the filtered table.
	got = DetectLoops(m, filtered, []string{"C"}, 0.5)
	if len(got) != 1 || got[0].Count != 0 {
		t.Errorf("DetectLoops(C) = %+v, want one candidate with count 0", got)
	}
}

func TestAssemble_LoopRequiresDirectEdge(t *testing.T) {
	// C/D alternate in the triples but C->D was filtered out.
	filtered := table(map[Pair]int64{{"S", "C"}: 5, {"D", "C"}: 1})
	deps := ComputeDependencies(filtered)
	occ := EstimateOccurrences(filtered, []string{"S", "C", "D"})
	loops := LoopMatrix{"C": {"D": 4}}

	g := Assemble(deps, filtered, occ, loops, []string{"S", "C", "D"}, Thresholds{
		Dependency: 0.65, Loop: 0.65, MinActivityCount: 1, MinDFGOccurrences: 1,
	})
	for _, e := range g.Edges {
		if e.Loop {
			t.Errorf("unexpected loop edge %+v", e)
		}
	}
	if len(g.Loops) != 1 {
		t.Errorf("Loops = %+v, want the registered candidate", g.Loops)
	}
}

func TestAssemble_MinimumCounts(t *testing.T) {
	filtered := table(map[Pair]int64{{"A", "B"}: 2, {"B", "C"}: 9})
	deps := ComputeDependencies(filtered)
	occ := EstimateOccurrences(filtered, []string{"A", "B", "C"})

	g := Assemble(deps, filtered, occ, LoopMatrix{}, []string{"A", "B", "C"}, Thresholds{
		Dependency: 0.5, Loop: 0.5, MinActivityCount: 1, MinDFGOccurrences: 3,
	})
	if len(g.Edges) != 1 || g.Edges[0].Pair() != (Pair{"B", "C"}) {
		t.Errorf("Edges = %+v, want only B->C", g.Edges)
	}
	if want := []string{"B", "C"}; !reflect.DeepEqual(g.Nodes, want) {
		t.Errorf("Nodes = %v, want %v", g.Nodes, want)
	}

	g = Assemble(deps, filtered, occ, LoopMatrix{}, []string{"A", "B", "C"}, Thresholds{
		Dependency: 0.5, Loop: 0.5, MinActivityCount: 3, MinDFGOccurrences: 1,
	})
	// occ(A) = 2, occ(B) = (2 + 9) / 2 = 5, occ(C) = 9
	if len(g.Edges) != 1 || g.Edges[0].Pair() != (Pair{"B", "C"}) {
		t.Errorf("Edges = %+v, want only B->C", g.Edges)
	}
}
