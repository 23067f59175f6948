package strategies

import (
	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/session"
)

// AVPreSignal bids a pullback below a rising session VWAP ahead of the
// cash open and is out by ExitAt regardless. Long only.
type AVPreSignal struct {
	p      AVPreParams
	exitAt session.TimeOfDay
}

func NewAVPre(p AVPreParams) (*AVPreSignal, error) {
	at, err := session.ParseTimeOfDay(p.ExitAt)
	if err != nil {
		return nil, err
	}
	return &AVPreSignal{p: p, exitAt: at}, nil
}

func (s *AVPreSignal) Module() Module { return AVPre }

func (s *AVPreSignal) Evaluate(v *View) Decision {
	av := v.Ind.SessionVWAP
	atr := v.Ind.ATR

	if v.Holds(AVPre) {
		if v.TOD >= s.exitAt && v.TOD < session.At(18, 0) {
			return Decision{Exit: &Exit{Reason: "Timeout", Price: v.Bar.Close, Z: av.Z}}
		}
		return Decision{}
	}
	if !v.Flat() || v.TOD >= s.exitAt || v.Bar.Close <= av.Value || av.Slope <= 0 {
		return Decision{}
	}
	entry := v.Instrument.RoundToTick(av.Value - s.p.PullbackATR*atr)
	return Decision{Entry: &Intent{
		Signal:       enter(AVPre, market.Long),
		Kind:         Limit,
		Price:        entry,
		StopDistance: stopDistance(v, atr*s.p.StopATR),
		Target:       v.Instrument.RoundToTick(av.Value + s.p.ExitATR*atr),
		Z:            av.Z,
		Slope:        av.Slope,
	}}
}
