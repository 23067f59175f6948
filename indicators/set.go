package indicators

import (
	"time"

	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/session"
)

// SetConfig configures the indicator set. Bar counts assume one-minute bars.
type SetConfig struct {
	Tick          float64
	SessionAnchor session.TimeOfDay
	OpenAnchor    session.TimeOfDay
	SessionZBars  int
	OpenZBars     int
}

func DefaultSetConfig(tick float64) SetConfig {
	return SetConfig{
		Tick:          tick,
		SessionAnchor: session.At(18, 0),
		OpenAnchor:    session.At(9, 30),
		SessionZBars:  120,
		OpenZBars:     240,
	}
}

// Set computes every value in market.Indicators from one bar stream.
type Set struct {
	atr, atrFast, atrSlow *ATR
	emaFast, emaSlow      *ExponentialMA
	slope30, slope20      *lag
	rsi2                  *RSI
	adx                   *ADX
	cci                   *CCI
	ext                   *Extreme
	sessVWAP, openVWAP    *AnchoredVWAP

	slow30, slow20 float64
}

func NewSet(cfg SetConfig) *Set {
	return &Set{
		atr:      NewATR(14),
		atrFast:  NewATR(10),
		atrSlow:  NewATR(20),
		emaFast:  NewEMA(20),
		emaSlow:  NewEMA(50),
		slope30:  newLag(30),
		slope20:  newLag(20),
		rsi2:     NewRSI(2),
		adx:      NewADX(14),
		cci:      NewCCI(20),
		ext:      NewExtreme(10),
		sessVWAP: NewAnchoredVWAP(cfg.SessionAnchor, cfg.SessionZBars, cfg.Tick),
		openVWAP: NewAnchoredVWAP(cfg.OpenAnchor, cfg.OpenZBars, cfg.Tick),
	}
}

func (s *Set) all() []Indicator {
	return []Indicator{s.atr, s.atrFast, s.atrSlow, s.emaFast, s.emaSlow, s.rsi2, s.adx, s.cci, s.ext}
}

// Update consumes a closed bar and returns the indicator values at it.
func (s *Set) Update(b market.Bar, local time.Time) market.Indicators {
	for _, ind := range s.all() {
		ind.Update(b)
	}
	s.sessVWAP.Update(b, local)
	s.openVWAP.Update(b, local)

	if s.emaSlow.Ready() {
		v := s.emaSlow.Value()
		if old, ok := s.slope30.push(v); ok {
			s.slow30 = v - old
		}
		if old, ok := s.slope20.push(v); ok {
			s.slow20 = v - old
		}
	}

	return market.Indicators{
		ATR:               s.atr.Value(),
		ATRFast:           s.atrFast.Value(),
		ATRSlow:           s.atrSlow.Value(),
		EMAFast:           s.emaFast.Value(),
		EMASlow:           s.emaSlow.Value(),
		EMASlowSlope:      s.slow30,
		EMASlowSlopeShort: s.slow20,
		RSI2:              s.rsi2.Value(),
		ADX:               s.adx.Value(),
		CCI:               s.cci.Value(),
		CCIPrev:           s.cci.Prev(),
		SessionVWAP:       s.sessVWAP.Value(),
		OpenVWAP:          s.openVWAP.Value(),
		HighestHigh10:     s.ext.High(),
		LowestLow10:       s.ext.Low(),
	}
}

// Ready reports whether every bar-count indicator has warmed up.
func (s *Set) Ready() bool {
	for _, ind := range s.all() {
		if !ind.Ready() {
			return false
		}
	}
	return s.slope30.full
}

// Reset clears all state.
func (s *Set) Reset() {
	for _, ind := range s.all() {
		ind.Reset()
	}
	s.sessVWAP.Reset()
	s.openVWAP.Reset()
	s.slope30.reset()
	s.slope20.reset()
	s.slow30, s.slow20 = 0, 0
}
