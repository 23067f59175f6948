package strategies

import (
	"time"

	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/session"
)

// MRAsiaSignal fades stretched moves away from the Globex-anchored VWAP in
// the overnight session. After an entry the same side stays disarmed until
// price has come back near the VWAP.
type MRAsiaSignal struct {
	p MRAsiaParams

	longReady  bool
	shortReady bool
}

func NewMRAsia(p MRAsiaParams) *MRAsiaSignal {
	return &MRAsiaSignal{p: p}
}

func (s *MRAsiaSignal) Module() Module { return MRAsia }

func (s *MRAsiaSignal) Observe(v *View) {
	if v.Session != session.Asia {
		return
	}
	z := v.Ind.SessionVWAP.Z
	if !s.longReady && z >= -s.p.RearmZ {
		s.longReady = true
	}
	if !s.shortReady && z <= s.p.RearmZ {
		s.shortReady = true
	}
}

func (s *MRAsiaSignal) Entered(in Intent, _ time.Time) {
	switch in.Signal.Direction {
	case market.Long:
		s.longReady = false
	case market.Short:
		s.shortReady = false
	}
}

func (s *MRAsiaSignal) Evaluate(v *View) Decision {
	av := v.Ind.SessionVWAP
	last := v.Bar.Close

	if v.Holds(MRAsia) {
		switch v.Position.Signal.Direction {
		case market.Long:
			if last >= av.Value || v.Ind.RSI2 >= s.p.ExitRSI2 {
				return Decision{Exit: &Exit{Reason: "ExitTP", Price: last, Z: av.Z}}
			}
		case market.Short:
			if last <= av.Value || v.Ind.RSI2 <= 100-s.p.ExitRSI2 {
				return Decision{Exit: &Exit{Reason: "ExitTP", Price: last, Z: av.Z}}
			}
		}
		return Decision{}
	}
	if !v.Flat() {
		return Decision{}
	}

	dir := market.Flat
	switch {
	case s.longReady && av.Z <= -s.p.Z && v.Ind.RSI2 <= s.p.RSI2Long:
		dir = market.Long
	case s.shortReady && av.Z >= s.p.Z && v.Ind.RSI2 >= s.p.RSI2Short:
		dir = market.Short
	default:
		return Decision{}
	}
	return Decision{Entry: &Intent{
		Signal:       enter(MRAsia, dir),
		Kind:         Market,
		Price:        last,
		StopDistance: stopDistance(v, v.Ind.ATR*s.p.StopATR),
		MaxHold:      minutes(s.p.TimeoutMin),
		Z:            av.Z,
	}}
}
