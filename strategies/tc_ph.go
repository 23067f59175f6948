package strategies

import "github.com/rustyeddy/sessiontrader/market"

// TCPHSignal joins an established uptrend into the close with a stop entry
// one tick above the ten-bar high, trailed by ATR(10).
type TCPHSignal struct {
	p TCPHParams
}

func NewTCPH(p TCPHParams) *TCPHSignal {
	return &TCPHSignal{p: p}
}

func (s *TCPHSignal) Module() Module { return TCPH }

func (s *TCPHSignal) Evaluate(v *View) Decision {
	in := v.Ind
	if !v.Flat() || in.EMAFast <= in.EMASlow || in.EMASlowSlopeShort <= 0 {
		return Decision{}
	}
	entry := v.Instrument.RoundToTick(in.HighestHigh10 + v.Instrument.TickSize)
	return Decision{Entry: &Intent{
		Signal:        enter(TCPH, market.Long),
		Kind:          StopMarket,
		Price:         entry,
		StopDistance:  stopDistance(v, in.ATR*s.p.StopATR),
		TrailDistance: in.ATRFast * s.p.TrailATR,
	}}
}
