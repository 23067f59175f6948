package strategies

import "github.com/rustyeddy/sessiontrader/market"

// MRVWAPSignal fades z-score extremes against the session VWAP while the
// tape is not trending, targeting the VWAP itself.
type MRVWAPSignal struct {
	p MRVWAPParams
}

func NewMRVWAP(p MRVWAPParams) *MRVWAPSignal {
	return &MRVWAPSignal{p: p}
}

func (s *MRVWAPSignal) Module() Module { return MRVWAP }

func (s *MRVWAPSignal) Evaluate(v *View) Decision {
	in := v.Ind
	av := in.SessionVWAP
	last := v.Bar.Close

	if v.Holds(MRVWAP) {
		d := v.Position.Signal.Direction
		if (d == market.Long && last >= av.Value) || (d == market.Short && last <= av.Value) {
			return Decision{Exit: &Exit{Reason: "ExitTP", Price: last, Z: av.Z}}
		}
		return Decision{}
	}
	if !v.Flat() || trendLong(in) || trendShort(in) || in.ADX >= s.p.ADXMax {
		return Decision{}
	}

	var dir market.Direction
	switch {
	case av.Z <= -s.p.Z:
		dir = market.Long
	case av.Z >= s.p.Z:
		dir = market.Short
	default:
		return Decision{}
	}
	return Decision{Entry: &Intent{
		Signal:       enter(MRVWAP, dir),
		Kind:         Market,
		Price:        last,
		StopDistance: stopDistance(v, in.ATR*s.p.StopATR),
		Target:       v.Instrument.RoundToTick(av.Value),
		MaxHold:      minutes(s.p.TimeoutMin),
		Reason:       "NonTrend",
		Z:            av.Z,
	}}
}
