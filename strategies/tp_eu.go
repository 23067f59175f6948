package strategies

import "github.com/rustyeddy/sessiontrader/market"

// TPEUSignal buys pullbacks into the EMA(20)/EMA(50) band of an established
// trend when CCI(20) turns back out of the extreme, and protects the
// position with a chandelier trail.
type TPEUSignal struct {
	p TPEUParams
}

func NewTPEU(p TPEUParams) *TPEUSignal {
	return &TPEUSignal{p: p}
}

func (s *TPEUSignal) Module() Module { return TPEU }

func (s *TPEUSignal) Evaluate(v *View) Decision {
	if !v.Flat() {
		return Decision{}
	}
	in := v.Ind
	last := v.Bar.Close
	lvl := s.p.CCILevel

	var dir market.Direction
	switch {
	case trendLong(in) && last <= in.EMAFast && last > in.EMASlow &&
		in.CCIPrev <= -lvl && in.CCI > -lvl:
		dir = market.Long
	case trendShort(in) && last >= in.EMAFast && last < in.EMASlow &&
		in.CCIPrev >= lvl && in.CCI < lvl:
		dir = market.Short
	default:
		return Decision{}
	}
	return Decision{Entry: &Intent{
		Signal:        enter(TPEU, dir),
		Kind:          Market,
		Price:         last,
		StopDistance:  stopDistance(v, in.ATR*s.p.StopATR),
		TrailDistance: s.p.ChandelierATR * in.ATRSlow,
		Reason:        "Trend",
		Z:             in.SessionVWAP.Z,
	}}
}

func trendLong(in market.Indicators) bool {
	return in.EMAFast > in.EMASlow && in.EMASlowSlope > 0
}

func trendShort(in market.Indicators) bool {
	return in.EMAFast < in.EMASlow && in.EMASlowSlope < 0
}
