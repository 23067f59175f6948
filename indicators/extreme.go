package indicators

import (
	"fmt"
	"slices"

	"github.com/rustyeddy/sessiontrader/market"
)

// Extreme tracks the highest high and lowest low of the last n bars,
// including the current one.
type Extreme struct {
	n     int
	highs []float64
	lows  []float64
}

func NewExtreme(n int) *Extreme {
	return &Extreme{n: n}
}

func (e *Extreme) Name() string { return fmt.Sprintf("HHLL(%d)", e.n) }
func (e *Extreme) Warmup() int  { return e.n }

func (e *Extreme) Reset() {
	e.highs, e.lows = e.highs[:0], e.lows[:0]
}

func (e *Extreme) Update(b market.Bar) {
	e.highs = append(e.highs, b.High)
	e.lows = append(e.lows, b.Low)
	if len(e.highs) > e.n {
		e.highs = e.highs[1:]
		e.lows = e.lows[1:]
	}
}

func (e *Extreme) Ready() bool { return len(e.highs) >= e.n }

// Value is the highest high.
func (e *Extreme) Value() float64 { return e.High() }

func (e *Extreme) High() float64 {
	if len(e.highs) == 0 {
		return 0
	}
	return slices.Max(e.highs)
}

func (e *Extreme) Low() float64 {
	if len(e.lows) == 0 {
		return 0
	}
	return slices.Min(e.lows)
}
