// Package replay drives the engine and the paper venue from recorded bars.
package replay

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/sessiontrader/engine"
	"github.com/rustyeddy/sessiontrader/indicators"
	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/observ"
	"github.com/rustyeddy/sessiontrader/orders"
	"github.com/rustyeddy/sessiontrader/risk"
	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/sim"
	"github.com/rustyeddy/sessiontrader/strategies"
)

// drainLimit bounds the venue/engine ping-pong after one bar.
const drainLimit = 64

var errDrain = errors.New("venue did not settle")

type Options struct {
	// CloseEnd flattens whatever is open after the last bar.
	CloseEnd    bool
	CloseReason string
	// Heartbeat, when set, drives the engine's timers between bars. The
	// bar's quote is repeated as a tick for one BarPeriod after each bar,
	// so a hole in the feed shows up as stale data.
	Heartbeat time.Duration
	// BarPeriod defaults to one minute.
	BarPeriod time.Duration
}

// Runner serializes one bar at a time: the venue matches resting orders
// against the bar, the engine sees the resulting fills, then the bar
// itself, then the fills of whatever it submitted.
type Runner struct {
	Engine  *engine.Engine
	Venue   *sim.Engine
	Feed    BarFeed
	Clock   *session.Clock
	Meta    market.InstrumentMeta
	Options Options
}

// Result summarizes a replay.
type Result struct {
	Start, End time.Time
	Bars       int
	Warmup     int

	Trades int
	Wins   int
	Losses int
	NetPL  float64
	// GrossWin and GrossLoss are sums of winning and losing trade P&L;
	// GrossLoss is <= 0.
	GrossWin  float64
	GrossLoss float64
	ByModule  map[strategies.Module]float64

	StartEquity float64
	EndEquity   float64
	MaxDDPct    float64

	State      risk.State
	LockReason string
}

func (r Result) WinRate() float64 {
	if r.Trades == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Trades)
}

// ProfitFactor is gross win over gross loss, 0 without losses.
func (r Result) ProfitFactor() float64 {
	if r.GrossLoss == 0 {
		return 0
	}
	return r.GrossWin / math.Abs(r.GrossLoss)
}

func (r Result) ReturnPct() float64 {
	if r.StartEquity == 0 {
		return 0
	}
	return (r.EndEquity - r.StartEquity) / r.StartEquity * 100
}

// tally counts closed trades from the transition stream.
type tally struct {
	res *Result
}

func (t tally) Record(tr observ.Transition) error {
	if tr.Reason != orders.ReasonTradeClosed {
		return nil
	}
	r := t.res
	r.Trades++
	r.NetPL += tr.PnL
	r.ByModule[tr.Module] += tr.PnL
	switch {
	case tr.PnL > 0:
		r.Wins++
		r.GrossWin += tr.PnL
	case tr.PnL < 0:
		r.Losses++
		r.GrossLoss += tr.PnL
	}
	return nil
}

func (r *Runner) validate() error {
	switch {
	case r.Engine == nil:
		return fmt.Errorf("replay: Engine is required")
	case r.Venue == nil:
		return fmt.Errorf("replay: Venue is required")
	case r.Feed == nil:
		return fmt.Errorf("replay: Feed is required")
	case r.Clock == nil:
		return fmt.Errorf("replay: Clock is required")
	case r.Meta.TickSize <= 0:
		return fmt.Errorf("replay: instrument tick size is required")
	}
	return nil
}

// Run replays the feed to EOF or until ctx is done. Indicators warm up
// before the engine sees a bar; the venue sees every bar.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if err := r.validate(); err != nil {
		return Result{}, err
	}
	defer r.Feed.Close()

	res := Result{ByModule: make(map[strategies.Module]float64)}
	r.Engine.Recorder.AddSink(tally{res: &res})
	set := indicators.NewSet(indicators.DefaultSetConfig(r.Meta.TickSize))

	var (
		prev  market.Bar
		lastQ market.Quote
	)
	peak := 0.0
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		row, ok, err := r.Feed.Next()
		if err != nil {
			return res, err
		}
		if !ok {
			break
		}
		b := row.Bar
		if res.Bars == 0 {
			res.Start = b.Time
			if err := r.Engine.Start(ctx, b.Time); err != nil {
				return res, fmt.Errorf("start: %w", err)
			}
			res.StartEquity = r.equity(ctx)
			peak = res.StartEquity
		} else if err := r.between(ctx, prev.Time, lastQ, b.Time); err != nil {
			return res, err
		}
		res.Bars++
		res.End = b.Time

		q := row.Quote
		if q.Bid <= 0 || q.Ask <= 0 {
			q = market.Quote{Bid: b.Close, Ask: b.Close + r.Meta.TickSize}
		}
		ind := set.Update(b, r.Clock.Local(b.Time))

		r.Venue.OnBar(b, q)
		if err := r.drain(ctx); err != nil {
			return res, err
		}

		if set.Ready() {
			r.Engine.OnBar(ctx, market.Snapshot{Bar: b, Prev: prev, Quote: q, Ind: ind})
			if err := r.drain(ctx); err != nil {
				return res, err
			}
		} else {
			res.Warmup++
		}
		prev, lastQ = b, q

		eq := r.equity(ctx)
		peak = max(peak, eq)
		if peak > 0 {
			res.MaxDDPct = max(res.MaxDDPct, (peak-eq)/peak*100)
		}
	}

	if res.Bars > 0 && r.Options.CloseEnd {
		reason := r.Options.CloseReason
		if reason == "" {
			reason = "EndOfReplay"
		}
		r.Engine.Flatten(ctx, reason, res.End)
		if err := r.drain(ctx); err != nil {
			return res, err
		}
	}
	if res.Bars > 0 {
		r.Engine.Shutdown(res.End)
	}

	res.EndEquity = r.equity(ctx)
	snap := r.Engine.Risk()
	res.State, res.LockReason = snap.State, snap.LockReason
	return res, nil
}

// between runs the heartbeats after the bar at from, up to but excluding
// the next bar at to.
func (r *Runner) between(ctx context.Context, from time.Time, q market.Quote, to time.Time) error {
	hb := r.Options.Heartbeat
	if hb <= 0 {
		return nil
	}
	period := cmp.Or(r.Options.BarPeriod, time.Minute)
	for t := from.Add(hb); t.Before(to); t = t.Add(hb) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.Sub(from) <= period {
			r.Engine.OnTick(ctx, q, t)
		}
		r.Engine.OnHeartbeat(ctx, t)
		if err := r.drain(ctx); err != nil {
			return err
		}
	}
	return nil
}

// drain hands venue events to the engine until the venue is quiet.
func (r *Runner) drain(ctx context.Context) error {
	for range drainLimit {
		evs := r.Venue.Drain()
		if len(evs) == 0 {
			return nil
		}
		for _, ev := range evs {
			r.Engine.Dispatch(ctx, ev)
		}
	}
	return errDrain
}

func (r *Runner) equity(ctx context.Context) float64 {
	acct, err := r.Venue.GetAccount(ctx)
	if err != nil {
		return 0
	}
	return acct.Equity()
}
