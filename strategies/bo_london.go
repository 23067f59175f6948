package strategies

import (
	"math"
	"time"

	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/session"
)

// BOLondonSignal trades a close through the 03:00-03:30 opening range with
// a stop entry one tick beyond it, the stop one tick beyond the other side.
type BOLondonSignal struct {
	p            BOLondonParams
	orStart      session.TimeOfDay
	orEnd        session.TimeOfDay
	sessionRange session.Range

	day      time.Time
	high     float64
	low      float64
	complete bool
	building bool
}

func NewBOLondon(p BOLondonParams, london session.Range) (*BOLondonSignal, error) {
	start, err := session.ParseTimeOfDay(p.ORStart)
	if err != nil {
		return nil, err
	}
	end, err := session.ParseTimeOfDay(p.OREnd)
	if err != nil {
		return nil, err
	}
	return &BOLondonSignal{p: p, orStart: start, orEnd: end, sessionRange: london}, nil
}

func (s *BOLondonSignal) Module() Module { return BOLondon }

func (s *BOLondonSignal) Observe(v *View) {
	if !s.sessionRange.Contains(v.TOD) {
		return
	}
	day := dayOf(v.Local)
	if !day.Equal(s.day) && v.TOD >= s.orStart {
		s.day = day
		s.high = math.Inf(-1)
		s.low = math.Inf(1)
		s.complete = false
		s.building = true
	}
	if !s.building || s.complete {
		return
	}
	if v.TOD < s.orEnd {
		s.high = math.Max(s.high, v.Bar.High)
		s.low = math.Min(s.low, v.Bar.Low)
		return
	}
	s.complete = true
}

// Range returns the opening range once it is complete.
func (s *BOLondonSignal) Range() (high, low float64, ok bool) {
	return s.high, s.low, s.complete && !math.IsInf(s.high, 0)
}

func (s *BOLondonSignal) Evaluate(v *View) Decision {
	high, low, ok := s.Range()
	if !ok || !v.Flat() || !s.sessionRange.Contains(v.TOD) {
		return Decision{}
	}
	tick := v.Instrument.TickSize
	rng := math.Max(tick, high-low)

	var dir market.Direction
	var entry, stop float64
	switch {
	case v.Prev.Close <= high && v.Bar.Close > high:
		dir = market.Long
		entry = v.Instrument.RoundToTick(high + tick)
		stop = v.Instrument.RoundToTick(low - tick)
	case v.Prev.Close >= low && v.Bar.Close < low:
		dir = market.Short
		entry = v.Instrument.RoundToTick(low - tick)
		stop = v.Instrument.RoundToTick(high + tick)
	default:
		return Decision{}
	}
	d := float64(dir)
	return Decision{Entry: &Intent{
		Signal:        enter(BOLondon, dir),
		Kind:          StopMarket,
		Price:         entry,
		StopDistance:  stopDistance(v, math.Abs(entry-stop)),
		Target:        v.Instrument.RoundToTick(entry + d*s.p.TargetMult*rng),
		TrailDistance: s.p.TrailATR * v.Ind.ATR,
		MaxHold:       minutes(s.p.TimeoutMin),
	}}
}

// dayOf truncates a local timestamp to its calendar date.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
