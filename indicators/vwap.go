package indicators

import (
	"math"
	"time"

	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/session"
)

// SlopeLookback is the distance over which the VWAP slope is measured.
const SlopeLookback = 30 * time.Minute

// AnchoredVWAP is a volume-weighted average of closes since the most recent
// local anchor time. Z measures the close against it in standard deviations
// of close-minus-VWAP over the last zBars bars. Unlike the other
// indicators it needs local time to find the anchor.
type AnchoredVWAP struct {
	anchor session.TimeOfDay
	zBars  int
	tick   float64

	start time.Time
	sumPV float64
	sumV  float64

	closes []float64
	hist   []vwapPoint

	cur market.VWAP
}

type vwapPoint struct {
	at    time.Time
	value float64
}

// NewAnchoredVWAP anchors at the given local time of day. zBars is floored
// at 20; a deviation below tick yields a zero z.
func NewAnchoredVWAP(anchor session.TimeOfDay, zBars int, tick float64) *AnchoredVWAP {
	return &AnchoredVWAP{anchor: anchor, zBars: max(zBars, 20), tick: tick}
}

func (a *AnchoredVWAP) Reset() {
	*a = AnchoredVWAP{anchor: a.anchor, zBars: a.zBars, tick: a.tick}
}

// Update consumes a closed bar stamped with its local close time.
func (a *AnchoredVWAP) Update(b market.Bar, local time.Time) {
	start := a.anchor.On(local)
	if local.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	if !start.Equal(a.start) {
		a.start = start
		a.sumPV, a.sumV = 0, 0
		a.hist = a.hist[:0]
	}
	a.sumPV += b.Close * b.Volume
	a.sumV += b.Volume

	vwap := b.Close
	if a.sumV > 0 {
		vwap = a.sumPV / a.sumV
	}
	a.hist = append(a.hist, vwapPoint{at: local, value: vwap})

	a.closes = append(a.closes, b.Close)
	if len(a.closes) > a.zBars {
		a.closes = a.closes[1:]
	}

	a.cur = market.VWAP{
		Value: vwap,
		Z:     a.zscore(vwap),
		Slope: a.slope(local, vwap),
	}
}

func (a *AnchoredVWAP) zscore(vwap float64) float64 {
	n := float64(len(a.closes))
	mean := 0.0
	for _, c := range a.closes {
		mean += c - vwap
	}
	mean /= n
	variance := 0.0
	for _, c := range a.closes {
		d := c - vwap - mean
		variance += d * d
	}
	std := math.Sqrt(variance / n)
	if std < a.tick || std == 0 {
		return 0
	}
	last := a.closes[len(a.closes)-1]
	return (last - vwap - mean) / std
}

// slope is the VWAP now minus the VWAP at the last bar at least
// SlopeLookback old. It is 0 until the anchor is that old.
func (a *AnchoredVWAP) slope(now time.Time, vwap float64) float64 {
	cut := now.Add(-SlopeLookback)
	for i := len(a.hist) - 1; i >= 0; i-- {
		if !a.hist[i].at.After(cut) {
			return vwap - a.hist[i].value
		}
	}
	return 0
}

// Ready reports whether the z window is full.
func (a *AnchoredVWAP) Ready() bool { return len(a.closes) >= a.zBars }

func (a *AnchoredVWAP) Value() market.VWAP { return a.cur }

// Start is the local instant of the current anchor.
func (a *AnchoredVWAP) Start() time.Time { return a.start }
