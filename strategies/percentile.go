package strategies

import "slices"

// percentile returns the p-quantile (0..1) of data with linear
// interpolation between closest ranks.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	s := slices.Clone(data)
	slices.Sort(s)
	rank := p * float64(len(s)-1)
	lo := int(rank)
	hi := lo
	if float64(lo) < rank {
		hi = lo + 1
	}
	if lo == hi {
		return s[lo]
	}
	return s[lo] + (s[hi]-s[lo])*(rank-float64(lo))
}
