// Package index provides roaring bitmap indexes of case coverage for event logs.
package index

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/logflow/hminer/internal/model"
)

// CaseIndex maps each activity to the bitmap of case ordinals it occurs in.
// Case ordinals are assigned in order of first appearance.
type CaseIndex struct {
	mu sync.RWMutex

	activities map[string]*roaring.Bitmap
	pairs      map[[2]string]*roaring.Bitmap
	cases      map[string]uint32
}

// NewCaseIndex creates an empty case index.
func NewCaseIndex() *CaseIndex {
	return &CaseIndex{
		activities: make(map[string]*roaring.Bitmap),
		pairs:      make(map[[2]string]*roaring.Bitmap),
		cases:      make(map[string]uint32),
	}
}

// Build indexes events that are already ordered by case and timestamp.
func Build(events []model.Event) *CaseIndex {
	idx := NewCaseIndex()
	idx.Add(events)
	return idx
}

// Add indexes a batch of events ordered by case and timestamp. Directly
// following pairs are recorded only within a case.
func (idx *CaseIndex) Add(events []model.Event) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i, e := range events {
		ord, ok := idx.cases[e.CaseID]
		if !ok {
			ord = uint32(len(idx.cases))
			idx.cases[e.CaseID] = ord
		}
		bitmapFor(idx.activities, e.Activity).Add(ord)

		if i > 0 && events[i-1].CaseID == e.CaseID {
			key := [2]string{events[i-1].Activity, e.Activity}
			bm, ok := idx.pairs[key]
			if !ok {
				bm = roaring.New()
				idx.pairs[key] = bm
			}
			bm.Add(ord)
		}
	}
}

func bitmapFor(m map[string]*roaring.Bitmap, key string) *roaring.Bitmap {
	bm, ok := m[key]
	if !ok {
		bm = roaring.New()
		m[key] = bm
	}
	return bm
}

// Cases returns the number of indexed cases.
func (idx *CaseIndex) Cases() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.cases)
}

// Lookup returns a copy of the case bitmap of an activity.
func (idx *CaseIndex) Lookup(activity string) *roaring.Bitmap {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if bm, ok := idx.activities[activity]; ok {
		return bm.Clone()
	}
	return roaring.New()
}

// CaseFrequency returns the number of cases containing activity.
func (idx *CaseIndex) CaseFrequency(activity string) uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if bm, ok := idx.activities[activity]; ok {
		return bm.GetCardinality()
	}
	return 0
}

// CasesWithBoth returns the number of cases containing both activities.
func (idx *CaseIndex) CasesWithBoth(a, b string) uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ba, ok := idx.activities[a]
	if !ok {
		return 0
	}
	bb, ok := idx.activities[b]
	if !ok {
		return 0
	}
	return ba.AndCardinality(bb)
}

// PairCases returns the number of cases in which target directly follows source.
func (idx *CaseIndex) PairCases(source, target string) uint64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if bm, ok := idx.pairs[[2]string{source, target}]; ok {
		return bm.GetCardinality()
	}
	return 0
}

// Coverage returns the fraction of cases containing activity.
func (idx *CaseIndex) Coverage(activity string) float64 {
	n := idx.Cases()
	if n == 0 {
		return 0
	}
	return float64(idx.CaseFrequency(activity)) / float64(n)
}

// Activities returns the indexed activities in lexicographic order.
func (idx *CaseIndex) Activities() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	names := make([]string, 0, len(idx.activities))
	for a := range idx.activities {
		names = append(names, a)
	}
	sort.Strings(names)
	return names
}
