package sim

import (
	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/strategies"
)

// position is the venue's view of one signal's open quantity and its
// bracket legs. A zero leg is absent.
type position struct {
	sig strategies.SignalID
	dir market.Direction
	qty int
	avg float64

	stop   float64
	target float64
	// trail is the trailing distance; trailStop the current trailing price.
	trail     float64
	trailStop float64
}

func (p *position) unrealized(mark float64, meta market.InstrumentMeta) float64 {
	return (mark - p.avg) * float64(p.dir) * meta.PointValue * float64(p.qty)
}

// ratchet moves the trailing stop with the bar's favorable extreme. It
// never moves against the position.
func (p *position) ratchet(b market.Bar) {
	if p.trail <= 0 {
		return
	}
	var next float64
	if p.dir == market.Long {
		next = b.High - p.trail
		if p.trailStop == 0 || next > p.trailStop {
			p.trailStop = next
		}
		return
	}
	next = b.Low + p.trail
	if p.trailStop == 0 || next < p.trailStop {
		p.trailStop = next
	}
}
