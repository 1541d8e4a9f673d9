package heuristics

// Occurrences holds the estimated occurrence count per activity.
type Occurrences map[string]int64

// Get returns the estimate for activity and whether one was made.
func (o Occurrences) Get(activity string) (int64, bool) {
	c, ok := o[activity]
	return c, ok
}

// AtLeast reports whether activity has an estimate of at least min.
func (o Occurrences) AtLeast(activity string, min int64) bool {
	c, ok := o[activity]
	return ok && c >= min
}

// EstimateOccurrence approximates how often activity occurs from its edges:
// the sum of incoming and outgoing frequencies, halved (integer division)
// when the activity has edges in both directions. Activities connected in a
// single direction are counted twice; the estimate only gates thresholds.
func EstimateOccurrence(v *View, activity string) int64 {
	total := v.OutgoingSum(activity) + v.IncomingSum(activity)
	if v.HasIncoming(activity) && v.HasOutgoing(activity) {
		total /= 2
	}
	return total
}

// EstimateOccurrences estimates every activity against t.
func EstimateOccurrences(t *FrequencyTable, activities []string) Occurrences {
	occ := make(Occurrences, len(activities))
	for _, a := range activities {
		occ[a] = EstimateOccurrence(t.View(), a)
	}
	return occ
}
