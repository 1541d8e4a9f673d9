package heuristics

import (
	"github.com/logflow/hminer/internal/model"
)

// CountDirectlyFollows counts, across all cases, how often one activity
// immediately follows another. Events must be sorted by case id and
// timestamp (see model.Log.Sorted). Adjacent events of different cases are
// never paired.
func CountDirectlyFollows(events []model.Event) *FrequencyTable {
	counts := make(map[Pair]int64)
	for i := 0; i+1 < len(events); i++ {
		if events[i].CaseID != events[i+1].CaseID {
			continue
		}
		counts[Pair{Source: events[i].Activity, Target: events[i+1].Activity}]++
	}
	return NewFrequencyTable(counts)
}

// CountTriples counts activity triples at positions i, i+1, i+2 of the same
// case. Events must be sorted like for CountDirectlyFollows.
func CountTriples(events []model.Event) *TripleTable {
	counts := make(map[Triple]int64)
	for i := 0; i+2 < len(events); i++ {
		caseID := events[i].CaseID
		if events[i+1].CaseID != caseID || events[i+2].CaseID != caseID {
			continue
		}
		counts[Triple{
			First:  events[i].Activity,
			Second: events[i+1].Activity,
			Third:  events[i+2].Activity,
		}]++
	}
	return NewTripleTable(counts)
}
