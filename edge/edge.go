// Package edge keeps a rolling window of closed trades per session and
// module and ranks modules by their recent risk-adjusted expectancy.
package edge

import (
	"math"
	"time"

	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/strategies"
)

const (
	// MinTrades is the sample size a module needs before it can be chosen.
	MinTrades = 10
	// tieEpsilon is the score difference below which two modules tie.
	tieEpsilon = 1e-6
)

// TradeRecord is the immutable outcome of one closed trade.
type TradeRecord struct {
	ID        string
	CloseTime time.Time // local
	Session   session.Session
	Module    strategies.Module
	R         float64
	MFE       float64 // currency
	MAE       float64 // currency, <= 0
	PnL       float64
	Risk      float64
}

// NewRecord builds a record from realized P&L and the initial currency risk.
// A zero risk falls back to |pnl|; ok is false when both are zero.
func NewRecord(id string, closed time.Time, s session.Session, m strategies.Module,
	pnl, risk, mfe, mae float64) (TradeRecord, bool) {
	if risk == 0 {
		risk = math.Abs(pnl)
	}
	if risk == 0 {
		return TradeRecord{}, false
	}
	return TradeRecord{
		ID: id, CloseTime: closed, Session: s, Module: m,
		R: pnl / risk, MFE: mfe, MAE: mae, PnL: pnl, Risk: risk,
	}, true
}

// Stats are derived from the window, never mutated incrementally.
type Stats struct {
	Trades     int
	Expectancy float64
	StdDev     float64
	Sharpe     float64
	// MFEMAE is mean(MFE/|MAE|) over trades with a nonzero MAE, or
	// math.MaxFloat64 when there are none.
	MFEMAE float64
	Score  float64
}

// Eligible reports whether the module has enough trades to be chosen.
func (s Stats) Eligible() bool {
	return s.Trades >= MinTrades
}

// Choice is the module selected for a session at the last recompute.
type Choice struct {
	Module   strategies.Module
	Score    float64
	Adaptive bool // false when the forced module was used as fallback
}

type key struct {
	s session.Session
	m strategies.Module
}

// compute derives Stats from R multiples and excursions.
func compute(trades []TradeRecord) Stats {
	n := len(trades)
	if n == 0 {
		return Stats{MFEMAE: math.MaxFloat64}
	}
	var sumR, sumR2, sumRatio float64
	nRatio := 0
	for _, t := range trades {
		sumR += t.R
		sumR2 += t.R * t.R
		if t.MAE != 0 {
			sumRatio += t.MFE / math.Abs(t.MAE)
			nRatio++
		}
	}
	st := Stats{Trades: n, Expectancy: sumR / float64(n), MFEMAE: math.MaxFloat64}
	if n > 1 {
		if v := (sumR2 - sumR*sumR/float64(n)) / float64(n-1); v > 0 {
			st.StdDev = math.Sqrt(v)
		}
	}
	if st.StdDev > 0 {
		st.Sharpe = st.Expectancy / st.StdDev
	}
	if nRatio > 0 {
		st.MFEMAE = sumRatio / float64(nRatio)
	}
	st.Score = st.Expectancy * st.Sharpe
	return st
}

// better reports whether candidate c beats the current best b. Scores
// within tieEpsilon tie, and the lower MFE/MAE ratio wins a tie.
func better(c, b Stats) bool {
	if math.Abs(c.Score-b.Score) < tieEpsilon {
		return c.MFEMAE < b.MFEMAE
	}
	return c.Score > b.Score
}
