// Package heuristics discovers a dependency graph from an event log with the
// Heuristics Miner algorithm.
//
// The pipeline counts directly-follows pairs and activity triples, removes
// noise from the pair counts, scores the causal dependency of every pair and
// keeps the pairs that clear the configured thresholds. Short A-B-A loops that
// the dependency measure cannot see are recovered from the triple counts.
package heuristics

import (
	"sort"
)

// Pair is an ordered pair of activities: Target directly follows Source.
type Pair struct {
	Source string
	Target string
}

// Reverse returns the pair with source and target swapped.
func (p Pair) Reverse() Pair {
	return Pair{Source: p.Target, Target: p.Source}
}

// IsSelfLoop reports whether source and target are the same activity.
func (p Pair) IsSelfLoop() bool {
	return p.Source == p.Target
}

func (p Pair) less(o Pair) bool {
	if p.Source != o.Source {
		return p.Source < o.Source
	}
	return p.Target < o.Target
}

// Triple is three activities observed at consecutive positions of a case.
type Triple struct {
	First  string
	Second string
	Third  string
}

func (t Triple) less(o Triple) bool {
	if t.First != o.First {
		return t.First < o.First
	}
	if t.Second != o.Second {
		return t.Second < o.Second
	}
	return t.Third < o.Third
}

// FrequencyTable maps directly-follows pairs to their number of occurrences.
// A table is immutable once built; filtering produces a new table.
// Iteration order is lexicographic by (source, target).
type FrequencyTable struct {
	counts map[Pair]int64
	keys   []Pair
	view   *View
}

// NewFrequencyTable builds a table from raw counts. Pairs with a
// non-positive count are dropped. The input map is copied.
func NewFrequencyTable(counts map[Pair]int64) *FrequencyTable {
	t := &FrequencyTable{counts: make(map[Pair]int64, len(counts))}
	for p, c := range counts {
		if c <= 0 {
			continue
		}
		t.counts[p] = c
		t.keys = append(t.keys, p)
	}
	sort.Slice(t.keys, func(i, j int) bool { return t.keys[i].less(t.keys[j]) })
	t.view = newView(t)
	return t
}

// Count returns the frequency of p and whether p was observed.
func (t *FrequencyTable) Count(p Pair) (int64, bool) {
	c, ok := t.counts[p]
	return c, ok
}

// Len returns the number of distinct pairs.
func (t *FrequencyTable) Len() int {
	return len(t.keys)
}

// Pairs returns the pairs in iteration order. The slice must not be modified.
func (t *FrequencyTable) Pairs() []Pair {
	return t.keys
}

// Total returns the sum of all pair frequencies.
func (t *FrequencyTable) Total() int64 {
	var sum int64
	for _, c := range t.counts {
		sum += c
	}
	return sum
}

// View returns the incoming/outgoing view derived from this table.
func (t *FrequencyTable) View() *View {
	return t.view
}

// Equal reports whether both tables hold the same pairs and counts.
func (t *FrequencyTable) Equal(o *FrequencyTable) bool {
	if t.Len() != o.Len() {
		return false
	}
	for p, c := range t.counts {
		if oc, ok := o.counts[p]; !ok || oc != c {
			return false
		}
	}
	return true
}

// View is a read-only index of a FrequencyTable by activity.
// It is built once per table so every stage sees the same connectivity.
type View struct {
	outgoing map[string]map[string]int64
	incoming map[string]map[string]int64
}

func newView(t *FrequencyTable) *View {
	v := &View{
		outgoing: make(map[string]map[string]int64),
		incoming: make(map[string]map[string]int64),
	}
	for _, p := range t.keys {
		c := t.counts[p]
		if v.outgoing[p.Source] == nil {
			v.outgoing[p.Source] = make(map[string]int64)
		}
		v.outgoing[p.Source][p.Target] = c

		if v.incoming[p.Target] == nil {
			v.incoming[p.Target] = make(map[string]int64)
		}
		v.incoming[p.Target][p.Source] = c
	}
	return v
}

// HasOutgoing reports whether activity has at least one outgoing edge.
func (v *View) HasOutgoing(activity string) bool {
	_, ok := v.outgoing[activity]
	return ok
}

// HasIncoming reports whether activity has at least one incoming edge.
func (v *View) HasIncoming(activity string) bool {
	_, ok := v.incoming[activity]
	return ok
}

// OutgoingSum returns the summed frequency of edges leaving activity.
func (v *View) OutgoingSum(activity string) int64 {
	return sum(v.outgoing[activity])
}

// IncomingSum returns the summed frequency of edges entering activity.
func (v *View) IncomingSum(activity string) int64 {
	return sum(v.incoming[activity])
}

// DominantCount returns the largest single edge frequency incident to
// activity, or -1 when the activity has no edges.
func (v *View) DominantCount(activity string) int64 {
	dominant := int64(-1)
	for _, c := range v.incoming[activity] {
		if c > dominant {
			dominant = c
		}
	}
	for _, c := range v.outgoing[activity] {
		if c > dominant {
			dominant = c
		}
	}
	return dominant
}

func sum(m map[string]int64) int64 {
	var s int64
	for _, c := range m {
		s += c
	}
	return s
}

// TripleTable maps activity triples to their number of occurrences.
// Iteration order is lexicographic.
type TripleTable struct {
	counts map[Triple]int64
	keys   []Triple
}

// NewTripleTable builds a table from raw counts. The input map is copied.
func NewTripleTable(counts map[Triple]int64) *TripleTable {
	t := &TripleTable{counts: make(map[Triple]int64, len(counts))}
	for tr, c := range counts {
		if c <= 0 {
			continue
		}
		t.counts[tr] = c
		t.keys = append(t.keys, tr)
	}
	sort.Slice(t.keys, func(i, j int) bool { return t.keys[i].less(t.keys[j]) })
	return t
}

// Count returns the frequency of tr and whether it was observed.
func (t *TripleTable) Count(tr Triple) (int64, bool) {
	c, ok := t.counts[tr]
	return c, ok
}

// Len returns the number of distinct triples.
func (t *TripleTable) Len() int {
	return len(t.keys)
}

// Triples returns the triples in iteration order. The slice must not be modified.
func (t *TripleTable) Triples() []Triple {
	return t.keys
}
