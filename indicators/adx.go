package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/sessiontrader/market"
)

// ADX implements Wilder's Average Directional Index (trend strength).
// It is ready after 2*period bars following the first seed bar.
type ADX struct {
	period int

	prev     market.Bar
	havePrev bool

	tr  float64
	pdm float64
	mdm float64

	adx   float64
	dxSum float64

	count int
	ready bool
}

func NewADX(period int) *ADX {
	return &ADX{period: period}
}

func (a *ADX) Name() string { return fmt.Sprintf("ADX(%d)", a.period) }
func (a *ADX) Warmup() int  { return 2*a.period + 1 }
func (a *ADX) Reset()       { *a = ADX{period: a.period} }
func (a *ADX) Ready() bool  { return a.ready }

func (a *ADX) Value() float64 {
	if !a.ready {
		return 0
	}
	return a.adx
}

func (a *ADX) Update(b market.Bar) {
	if !a.havePrev {
		a.prev = b
		a.havePrev = true
		a.count = 1
		return
	}

	up := b.High - a.prev.High
	down := a.prev.Low - b.Low
	var pdm, mdm float64
	if up > down && up > 0 {
		pdm = up
	}
	if down > up && down > 0 {
		mdm = down
	}
	tr := trueRange(b, a.prev)
	a.prev = b
	a.count++

	p := float64(a.period)
	// Seed the smoothed TR/DM with simple averages of the first period samples.
	if a.count <= a.period+1 {
		a.tr += tr
		a.pdm += pdm
		a.mdm += mdm
		if a.count == a.period+1 {
			a.tr /= p
			a.pdm /= p
			a.mdm /= p
		}
		return
	}

	a.tr = (a.tr*(p-1) + tr) / p
	a.pdm = (a.pdm*(p-1) + pdm) / p
	a.mdm = (a.mdm*(p-1) + mdm) / p
	if a.tr == 0 {
		return
	}

	pdi := 100 * a.pdm / a.tr
	mdi := 100 * a.mdm / a.tr
	dx := 0.0
	if den := pdi + mdi; den > 0 {
		dx = 100 * math.Abs(pdi-mdi) / den
	}

	if !a.ready {
		a.dxSum += dx
		if a.count == 2*a.period+1 {
			a.adx = a.dxSum / p
			a.ready = true
		}
		return
	}
	a.adx = (a.adx*(p-1) + dx) / p
}
