package strategies

import (
	"math"
	"time"

	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/session"
)

// ORBUSSignal trades the first break of the cash-open range with three
// profit tiers. The range is 15 minutes normally and 30 when the opening
// ATR is high relative to recent opens. One entry per day.
type ORBUSSignal struct {
	p            ORBUSParams
	sessionRange session.Range

	atrOpens []float64

	day       time.Time
	orEnd     session.TimeOfDay
	orMinutes int
	high      float64
	low       float64
	complete  bool
	submitted bool
}

func NewORBUS(p ORBUSParams, open session.Range) *ORBUSSignal {
	return &ORBUSSignal{p: p, sessionRange: open}
}

func (s *ORBUSSignal) Module() Module { return ORBUS }

func (s *ORBUSSignal) Observe(v *View) {
	if !s.sessionRange.Contains(v.TOD) {
		return
	}
	if day := dayOf(v.Local); !day.Equal(s.day) {
		s.startDay(day, v.Ind.ATR)
	}
	if s.complete {
		return
	}
	s.high = math.Max(s.high, v.Bar.High)
	s.low = math.Min(s.low, v.Bar.Low)
	if v.TOD >= s.orEnd {
		s.complete = true
	}
}

func (s *ORBUSSignal) startDay(day time.Time, atr float64) {
	s.atrOpens = append(s.atrOpens, atr)
	if n := len(s.atrOpens); n > s.p.History {
		s.atrOpens = s.atrOpens[n-s.p.History:]
	}
	s.orMinutes = s.p.PrimaryMin
	if atr >= percentile(s.atrOpens, s.p.SwitchPctl/100) {
		s.orMinutes = s.p.AlternateMin
	}
	s.day = day
	s.orEnd = s.sessionRange.Start + session.TimeOfDay(minutes(s.orMinutes))
	s.high = math.Inf(-1)
	s.low = math.Inf(1)
	s.complete = false
	s.submitted = false
}

// RangeMinutes is the opening-range length chosen for the current day.
func (s *ORBUSSignal) RangeMinutes() int {
	return s.orMinutes
}

func (s *ORBUSSignal) Entered(Intent, time.Time) {
	s.submitted = true
}

func (s *ORBUSSignal) Evaluate(v *View) Decision {
	if !s.complete || s.submitted || !v.Flat() || !s.sessionRange.Contains(v.TOD) {
		return Decision{}
	}
	tick := v.Instrument.TickSize
	rng := math.Max(tick, s.high-s.low)

	var dir market.Direction
	var entry, stop float64
	switch {
	case v.Bar.Close > s.high:
		dir = market.Long
		entry = v.Instrument.RoundToTick(s.high + tick)
		stop = v.Instrument.RoundToTick(s.low - tick)
	case v.Bar.Close < s.low:
		dir = market.Short
		entry = v.Instrument.RoundToTick(s.low - tick)
		stop = v.Instrument.RoundToTick(s.high + tick)
	default:
		return Decision{}
	}

	offsets := make([]float64, len(s.p.TargetMults))
	for i, m := range s.p.TargetMults {
		offsets[i] = rng * m
	}
	return Decision{Entry: &Intent{
		Signal:        enter(ORBUS, dir),
		Kind:          StopMarket,
		Price:         entry,
		StopDistance:  stopDistance(v, math.Abs(entry-stop)),
		Tiers:         &Tiers{Offsets: offsets, Weights: s.p.Weights},
		ResidualTrail: s.p.ResidualATR * v.Ind.ATR,
		MaxHold:       minutes(s.p.TimeoutMin),
	}}
}
