package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/sessiontrader/market"
)

// CCI is the commodity channel index of the typical price. Prev holds the
// value before the latest update so crosses can be detected.
type CCI struct {
	period int
	tp     []float64
	value  float64
	prev   float64
}

func NewCCI(period int) *CCI {
	return &CCI{period: period, tp: make([]float64, 0, period)}
}

func (c *CCI) Name() string { return fmt.Sprintf("CCI(%d)", c.period) }
func (c *CCI) Warmup() int  { return c.period }

func (c *CCI) Reset() {
	c.tp = c.tp[:0]
	c.value, c.prev = 0, 0
}

func (c *CCI) Update(b market.Bar) {
	c.tp = append(c.tp, (b.High+b.Low+b.Close)/3)
	if len(c.tp) > c.period {
		c.tp = c.tp[1:]
	}
	c.prev = c.value
	if !c.Ready() {
		return
	}
	mean := 0.0
	for _, v := range c.tp {
		mean += v
	}
	mean /= float64(c.period)
	dev := 0.0
	for _, v := range c.tp {
		dev += math.Abs(v - mean)
	}
	dev /= float64(c.period)
	if dev == 0 {
		c.value = 0
		return
	}
	c.value = (c.tp[len(c.tp)-1] - mean) / (0.015 * dev)
}

func (c *CCI) Ready() bool { return len(c.tp) >= c.period }

func (c *CCI) Value() float64 { return c.value }

// Prev is the value before the latest update.
func (c *CCI) Prev() float64 { return c.prev }
