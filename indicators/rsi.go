package indicators

import (
	"fmt"

	"github.com/rustyeddy/sessiontrader/market"
)

// RSI is Wilder's relative strength index of closes.
type RSI struct {
	period   int
	prev     float64
	havePrev bool
	gain     float64
	loss     float64
	count    int
}

func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string { return fmt.Sprintf("RSI(%d)", r.period) }
func (r *RSI) Warmup() int  { return r.period + 1 }
func (r *RSI) Reset()       { *r = RSI{period: r.period} }
func (r *RSI) Ready() bool  { return r.count >= r.period }

func (r *RSI) Update(b market.Bar) {
	if !r.havePrev {
		r.prev = b.Close
		r.havePrev = true
		return
	}
	ch := b.Close - r.prev
	r.prev = b.Close
	g, l := max(ch, 0), max(-ch, 0)

	p := float64(r.period)
	if r.count < r.period {
		r.gain += g / p
		r.loss += l / p
		r.count++
		return
	}
	r.gain = (r.gain*(p-1) + g) / p
	r.loss = (r.loss*(p-1) + l) / p
}

func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	if r.loss == 0 {
		if r.gain == 0 {
			return 50
		}
		return 100
	}
	return 100 - 100/(1+r.gain/r.loss)
}
