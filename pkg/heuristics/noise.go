package heuristics

import "math"

// FilterNoise removes pairs that are rare compared to the dominant edge of
// their endpoints. A pair (a, b) with frequency f is kept when
//
//	f >= min(dominant(a)*threshold, dominant(b)*threshold)
//
// where dominant is taken from the unfiltered table. If nothing survives the
// original table is returned and reverted is true.
func FilterNoise(t *FrequencyTable, threshold float64) (filtered *FrequencyTable, reverted bool) {
	view := t.View()
	kept := make(map[Pair]int64, t.Len())

	for _, p := range t.Pairs() {
		c, _ := t.Count(p)
		cutoff := math.Min(
			float64(view.DominantCount(p.Source))*threshold,
			float64(view.DominantCount(p.Target))*threshold,
		)
		if float64(c) >= cutoff {
			kept[p] = c
		}
	}

	if len(kept) == 0 {
		return t, true
	}
	return NewFrequencyTable(kept), false
}
