package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/sessiontrader/market"
)

// ATR is a streaming Average True Range with Wilder smoothing.
type ATR struct {
	period    int
	atr       float64
	count     int
	warmupSum float64
	prev      market.Bar
	havePrev  bool
}

func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string { return fmt.Sprintf("ATR(%d)", a.period) }

// Warmup is period+1 because the true range needs a previous bar.
func (a *ATR) Warmup() int { return a.period + 1 }

func (a *ATR) Reset() {
	*a = ATR{period: a.period}
}

func (a *ATR) Update(b market.Bar) {
	if !a.havePrev {
		a.prev = b
		a.havePrev = true
		return
	}
	tr := trueRange(b, a.prev)
	a.prev = b

	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
		return
	}
	a.atr = (a.atr*float64(a.period-1) + tr) / float64(a.period)
}

func (a *ATR) Ready() bool { return a.count >= a.period }

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.atr
}

func trueRange(cur, prev market.Bar) float64 {
	return math.Max(cur.High-cur.Low,
		math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}
