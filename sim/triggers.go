package sim

import "github.com/rustyeddy/sessiontrader/market"

// stopHit reports whether a protective level was touched by the bar and
// the price it fills at. A gap through the level fills at the open.
func stopHit(dir market.Direction, level float64, b market.Bar) (float64, bool) {
	if level <= 0 {
		return 0, false
	}
	if dir == market.Long {
		if b.Low <= level {
			return min(level, b.Open), true
		}
		return 0, false
	}
	if b.High >= level {
		return max(level, b.Open), true
	}
	return 0, false
}

// targetHit reports whether a profit level was reached.
func targetHit(dir market.Direction, level float64, b market.Bar) (float64, bool) {
	if level <= 0 {
		return 0, false
	}
	if dir == market.Long {
		if b.High >= level {
			return max(level, b.Open), true
		}
		return 0, false
	}
	if b.Low <= level {
		return min(level, b.Open), true
	}
	return 0, false
}

// orderHit reports whether a resting order on side s triggers in the bar.
// Buy stops and sell limits trigger above; sell stops and buy limits below.
func orderHit(s market.Side, stop bool, price float64, b market.Bar) (float64, bool) {
	above := (s == market.Buy) == stop
	if above {
		if b.High >= price {
			return max(price, b.Open), true
		}
		return 0, false
	}
	if b.Low <= price {
		return min(price, b.Open), true
	}
	return 0, false
}
