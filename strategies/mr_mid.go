package strategies

import "github.com/rustyeddy/sessiontrader/market"

// MRMidSignal buys midday flushes below the VWAP anchored at the cash open.
// Long only.
type MRMidSignal struct {
	p MRMidParams
}

func NewMRMid(p MRMidParams) *MRMidSignal {
	return &MRMidSignal{p: p}
}

func (s *MRMidSignal) Module() Module { return MRMid }

func (s *MRMidSignal) Evaluate(v *View) Decision {
	av := v.Ind.OpenVWAP
	last := v.Bar.Close

	if v.Holds(MRMid) {
		if last >= av.Value {
			return Decision{Exit: &Exit{Reason: "ExitTP", Price: last, Z: av.Z}}
		}
		return Decision{}
	}
	if !v.Flat() || v.Ind.ADX >= s.p.ADXMax || av.Z > -s.p.Z {
		return Decision{}
	}
	return Decision{Entry: &Intent{
		Signal:       enter(MRMid, market.Long),
		Kind:         Market,
		Price:        last,
		StopDistance: stopDistance(v, v.Ind.ATR*s.p.StopATR),
		Target:       v.Instrument.RoundToTick(av.Value),
		MaxHold:      minutes(s.p.TimeoutMin),
		Reason:       "NonTrend",
		Z:            av.Z,
	}}
}
