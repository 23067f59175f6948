package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/observ"
	"github.com/rustyeddy/sessiontrader/orders"
	"github.com/rustyeddy/sessiontrader/risk"
	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/strategies"
)

// OnBar runs the full per-bar pipeline on a closed bar: health, session-end
// exits, the schedule, entry escalation, the governor, routing and the
// module, then position maintenance.
func (e *Engine) OnBar(ctx context.Context, snap market.Snapshot) {
	at := snap.Bar.Time
	local := e.cfg.Clock.Local(at)
	tod := session.Of(local)
	cur := e.cfg.Classifier.Classify(tod)
	if snap.Quote.Bid > 0 && snap.Quote.Ask > 0 {
		e.quote = snap.Quote
	}

	e.Health.OnData(at)
	e.onHealth(ctx, e.Health.Check(at))

	e.apply(e.Orders.SessionEnd(ctx, cur, at))

	e.schedule(ctx, tod, local, at)

	e.apply(e.Orders.Escalate(ctx, e.quote, at))

	observed := e.observeAccount(ctx, at)

	v := &strategies.View{
		Snapshot:   snap,
		Local:      local,
		TOD:        tod,
		Session:    cur,
		Instrument: e.cfg.Instrument,
		Position:   e.Orders.Position(),
		Pending:    e.Orders.Pending(),
	}
	e.Modules.Observe(v)

	switch {
	case v.Position.Open():
		e.manage(ctx, v)
	case v.Flat() && cur != session.None && observed:
		e.route(ctx, v)
	}

	e.apply(e.Orders.Maintain(ctx, snap, at))
}

// schedule drives the no-trade window, the daily reset and the edge
// recompute from the local time of day.
func (e *Engine) schedule(ctx context.Context, tod session.TimeOfDay, local, at time.Time) {
	if e.window.Contains(tod) {
		if e.Governor.EnterWindow() {
			e.record(observ.Transition{Time: local, Reason: ReasonAutoFlat, Detail: e.window.Start.String()})
			e.apply(e.Orders.Flatten(ctx, ReasonAutoFlat, at))
		}
	} else if e.Governor.LeaveWindow() {
		e.record(observ.Transition{Time: local, Reason: ReasonWindowEnd})
	}

	prev := e.prevTOD
	e.prevTOD = tod
	if !e.started {
		e.started = true
		return
	}
	if session.Crossed(prev, tod, e.cfg.DailyReset) {
		e.dailyReset(ctx, local, at)
	}
	if session.Crossed(prev, tod, e.cfg.EdgeRecompute) {
		e.recompute(local)
	}
}

func (e *Engine) dailyReset(ctx context.Context, local, at time.Time) {
	if e.Unlocks != nil {
		ok, err := e.Unlocks.ConsumeUnlock()
		if err != nil {
			e.log.Error().Err(err).Msg("consume unlock")
		}
		if ok {
			e.Governor.RequestUnlock()
		}
	}

	if e.Governor.DailyReset() {
		e.record(observ.Transition{Time: local, Reason: risk.ReasonManualUnlock})
	}
	e.Orders.ResetDaily()
	e.onHealth(ctx, e.Health.Reset(at))

	detail := "counters zeroed"
	if e.Governor.IsLocked() {
		detail = "counters zeroed, lock persists"
	}
	e.record(observ.Transition{Time: local, Reason: ReasonDailyReset, Detail: detail})
	e.saveRisk(at)
}

func (e *Engine) recompute(local time.Time) {
	choices := e.Tracker.Recompute(local, e.Router.Forced)
	for _, s := range session.All {
		c := choices[s]
		e.record(observ.Transition{
			Time:     local,
			Reason:   ReasonRecompute,
			Module:   c.Module,
			Session:  s,
			Adaptive: c.Adaptive,
			Score:    c.Score,
		})
	}
}

// observeAccount reads the account into the governor and flattens on a new
// breach. It reports whether a reading was taken.
func (e *Engine) observeAccount(ctx context.Context, at time.Time) bool {
	acct, err := e.Broker.GetAccount(ctx)
	if err != nil {
		e.record(observ.Transition{Time: e.cfg.Clock.Local(at), Reason: ReasonAccountError, Detail: err.Error()})
		return false
	}
	reason, breached := e.Governor.Observe(acct.Cash, acct.Unrealized)
	if breached {
		e.record(observ.Transition{Time: e.cfg.Clock.Local(at), Reason: reason})
		e.apply(e.Orders.Flatten(ctx, reason, at))
		e.saveRisk(at)
	}
	e.Recorder.Metrics().Risk(e.Governor.Snapshot())
	return true
}

// manage asks the owning module whether to close its position.
func (e *Engine) manage(ctx context.Context, v *strategies.View) {
	sig, ok := e.Modules.Get(v.Position.Signal.Module)
	if !ok {
		return
	}
	if d := sig.Evaluate(v); d.Exit != nil {
		e.apply(e.Orders.Exit(ctx, d.Exit.Reason, v.Bar.Time))
	}
}

// route evaluates the session's module while flat and, when it proposes an
// entry, gates, sizes and submits it.
func (e *Engine) route(ctx context.Context, v *strategies.View) {
	choice := e.Router.Resolve(v.Session)
	sig, ok := e.Modules.Get(choice.Module)
	if !ok {
		return
	}
	d := sig.Evaluate(v)
	if d.Entry == nil {
		return
	}
	e.enter(ctx, v, *d.Entry, choice)
}

func (e *Engine) enter(ctx context.Context, v *strategies.View, in strategies.Intent, choice edge.Choice) {
	tr := observ.Transition{
		Time:     v.Local,
		Module:   in.Signal.Module,
		Signal:   in.Signal,
		Session:  v.Session,
		Entry:    in.Price,
		Stop:     e.cfg.Instrument.RoundToTick(in.StopPrice()),
		Target:   in.Target,
		Adaptive: choice.Adaptive,
		Score:    choice.Score,
	}
	block := func(d risk.Decision) {
		tr.Reason = d.First()
		tr.Detail = d.Violations[0].Msg
		e.record(tr)
	}
	if d := e.Governor.CanEnter(); !d.Allowed {
		block(d)
		return
	}
	if d := risk.CheckMarket(e.cfg.Instrument, v.Ind.ATR, v.Quote); !d.Allowed {
		block(d)
		return
	}

	equity := e.Governor.Snapshot().Equity
	qty := e.cfg.Sizing.Size(in.StopDistance, equity, e.cfg.Instrument)
	tr.Size = qty
	if qty == 0 {
		tr.Reason = ReasonSizeZero
		tr.Detail = fmt.Sprintf("stop distance %.2f, equity %.2f", in.StopDistance, equity)
		e.record(tr)
		return
	}

	at := v.Bar.Time
	if err := e.Orders.Enter(ctx, in, qty, v.Session, at); err != nil {
		tr.Reason = orders.ReasonActionFailed
		tr.Detail = err.Error()
		e.record(tr)
		if !errors.Is(err, orders.ErrBusy) {
			e.Governor.Lock(orders.ReasonOrderReject)
			e.saveRisk(at)
			e.apply(e.Orders.Flatten(ctx, orders.ReasonOrderReject, at))
		}
		return
	}
	e.Modules.Entered(in, at)
	e.Recorder.Metrics().Entry(in.Signal.Module.String())

	tr.Reason = ReasonEntry
	tr.Detail = fmt.Sprintf("%s %s z=%.2f slope=%.2f", in.Kind, in.Reason, in.Z, in.Slope)
	e.record(tr)
}
