package strategies

import "math"

// SplitTiers divides qty across three exit tiers by weight. Every tier gets
// at least one contract once qty reaches three; below that the first tier
// takes all but one and the last tier takes the remainder. The result always
// sums to qty.
func SplitTiers(qty int, weights []float64) []int {
	if qty <= 0 || len(weights) != 3 {
		return nil
	}
	q1 := int(math.Floor(float64(qty) * weights[0]))
	q2 := int(math.Floor(float64(qty) * weights[1]))
	if qty < 3 {
		q1 = max(1, qty-1)
		q2 = 0
	}
	if q1 < 1 {
		q1 = 1
	}
	if q2 < 1 && qty >= 3 {
		q2 = 1
	}
	q3 := max(0, qty-q1-q2)
	return []int{q1, q2, q3}
}
