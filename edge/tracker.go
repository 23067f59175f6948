package edge

import (
	"maps"
	"slices"
	"time"

	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/strategies"
)

// Tracker owns the trade window and the daily module choices. It is not
// safe for concurrent use; the engine serializes all access.
type Tracker struct {
	lookback int // days

	trades  []TradeRecord
	stats   map[key]Stats
	chosen  map[session.Session]Choice
	lastRun time.Time
}

func NewTracker(lookbackDays int) *Tracker {
	return &Tracker{
		lookback: lookbackDays,
		stats:    make(map[key]Stats),
		chosen:   make(map[session.Session]Choice),
	}
}

// cutoff is the first calendar date still inside the window ending at t.
func (tr *Tracker) cutoff(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, -tr.lookback)
}

func before(t, cutoff time.Time) bool {
	y, m, d := t.In(cutoff.Location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, cutoff.Location()).Before(cutoff)
}

// Record appends a closed trade and prunes everything older than the
// lookback relative to that trade's close date.
func (tr *Tracker) Record(rec TradeRecord) {
	tr.trades = append(tr.trades, rec)
	cut := tr.cutoff(rec.CloseTime)
	kept := tr.trades[:0]
	for _, t := range tr.trades {
		if !before(t.CloseTime, cut) {
			kept = append(kept, t)
		}
	}
	tr.trades = kept
}

// Len returns the number of trades in the window.
func (tr *Tracker) Len() int {
	return len(tr.trades)
}

// Recompute rebuilds every (session, module) Stats from trades inside the
// window ending at now, and picks a module per session. Sessions without an
// eligible module fall back to forced with a zero score. Running it twice on
// the same window gives the same result.
func (tr *Tracker) Recompute(now time.Time, forced func(session.Session) strategies.Module) map[session.Session]Choice {
	cut := tr.cutoff(now)
	buckets := make(map[key][]TradeRecord)
	for _, t := range tr.trades {
		if before(t.CloseTime, cut) {
			continue
		}
		k := key{t.Session, t.Module}
		buckets[k] = append(buckets[k], t)
	}

	tr.stats = make(map[key]Stats, len(buckets))
	for k, ts := range buckets {
		tr.stats[k] = compute(ts)
	}

	tr.chosen = make(map[session.Session]Choice, len(session.All))
	for _, s := range session.All {
		var best Stats
		bestMod := strategies.NoModule
		for _, m := range strategies.Modules {
			st, ok := tr.stats[key{s, m}]
			if !ok || !st.Eligible() {
				continue
			}
			if bestMod == strategies.NoModule || better(st, best) {
				best, bestMod = st, m
			}
		}
		if bestMod != strategies.NoModule {
			tr.chosen[s] = Choice{Module: bestMod, Score: best.Score, Adaptive: true}
		} else {
			tr.chosen[s] = Choice{Module: forced(s)}
		}
	}
	tr.lastRun = now
	return tr.Choices()
}

// Stats returns the last computed stats for a session and module.
func (tr *Tracker) Stats(s session.Session, m strategies.Module) (Stats, bool) {
	st, ok := tr.stats[key{s, m}]
	return st, ok
}

// Chosen returns the last recompute's choice for s.
func (tr *Tracker) Chosen(s session.Session) (Choice, bool) {
	c, ok := tr.chosen[s]
	return c, ok
}

// Choices returns a copy of every session's choice.
func (tr *Tracker) Choices() map[session.Session]Choice {
	return maps.Clone(tr.chosen)
}

// LastRecompute returns when Recompute last ran, zero if never.
func (tr *Tracker) LastRecompute() time.Time {
	return tr.lastRun
}

// Trades returns a copy of the current window.
func (tr *Tracker) Trades() []TradeRecord {
	return slices.Clone(tr.trades)
}
