package engine

import (
	"context"
	"time"

	"github.com/rustyeddy/sessiontrader/broker"
	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/health"
	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/observ"
	"github.com/rustyeddy/sessiontrader/orders"
	"github.com/rustyeddy/sessiontrader/session"
)

// Bar carries a closed bar through Run.
type Bar struct {
	Snapshot market.Snapshot
}

func (b Bar) EventTime() time.Time { return b.Snapshot.Bar.Time }

// Tick carries a quote update through Run. It refreshes data freshness and
// the quote used for escalation.
type Tick struct {
	Quote market.Quote
	Time  time.Time
}

func (t Tick) EventTime() time.Time { return t.Time }

// Heartbeat drives the timers between market updates.
type Heartbeat struct {
	Time time.Time
}

func (h Heartbeat) EventTime() time.Time { return h.Time }

// Run consumes events until the channel closes or ctx is done. It is the
// single serialized path into the engine for hosts with concurrent feeds.
func (e *Engine) Run(ctx context.Context, in <-chan broker.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			e.Dispatch(ctx, ev)
		}
	}
}

// Dispatch routes one event to its handler.
func (e *Engine) Dispatch(ctx context.Context, ev broker.Event) {
	switch ev := ev.(type) {
	case Bar:
		e.OnBar(ctx, ev.Snapshot)
	case Tick:
		e.OnTick(ctx, ev.Quote, ev.Time)
	case Heartbeat:
		e.OnHeartbeat(ctx, ev.Time)
	case broker.Fill:
		e.OnFill(ctx, ev)
	case broker.OrderUpdate:
		e.OnOrderUpdate(ctx, ev)
	case broker.Connectivity:
		e.OnConnectivity(ctx, ev)
	default:
		e.log.Warn().Type("event", ev).Msg("unknown event")
	}
}

// OnFill applies an execution and checks the governor at once, so a loss
// that breaches a limit flattens without waiting for the next bar.
func (e *Engine) OnFill(ctx context.Context, f broker.Fill) {
	e.Recorder.Metrics().Fill(f.Side.String())
	e.apply(e.Orders.OnFill(ctx, f))
	e.observeAccount(ctx, f.Time)
}

func (e *Engine) OnOrderUpdate(ctx context.Context, u broker.OrderUpdate) {
	e.apply(e.Orders.OnOrderUpdate(ctx, u))
}

func (e *Engine) OnConnectivity(ctx context.Context, c broker.Connectivity) {
	e.Health.OnConnectivity(c.Connected, c.Time)
	e.onHealth(ctx, e.Health.Check(c.Time))
}

func (e *Engine) OnTick(ctx context.Context, q market.Quote, at time.Time) {
	e.Health.OnData(at)
	if q.Bid > 0 && q.Ask > 0 {
		e.quote = q
	}
	e.onHealth(ctx, e.Health.Check(at))
}

// OnHeartbeat runs the health checks and entry escalation between updates.
func (e *Engine) OnHeartbeat(ctx context.Context, now time.Time) {
	e.onHealth(ctx, e.Health.Check(now))
	e.apply(e.Orders.Escalate(ctx, e.quote, now))
}

// onHealth holds entries on a trip and flattens anything open; a recovery
// releases only its own hold.
func (e *Engine) onHealth(ctx context.Context, evs []health.Event) {
	for _, ev := range evs {
		e.record(observ.Transition{
			Time:   e.cfg.Clock.Local(ev.Time),
			Reason: ev.Reason,
			Detail: healthDetail(ev),
		})
		if !ev.Tripped() {
			e.Governor.Release(ev.Hold())
			continue
		}
		e.Governor.Hold(ev.Hold())
		if e.Orders.Busy() {
			e.apply(e.Orders.Flatten(ctx, ev.Reason, ev.Time))
		}
	}
}

func healthDetail(ev health.Event) string {
	if ev.Detail != "" {
		return ev.Detail
	}
	return "gap " + ev.Gap.String()
}

// apply turns order-manager events into transitions and books closed
// trades into the edge window and the journal. A lock taken by the manager
// on a rejection is saved like any other breach.
func (e *Engine) apply(evs []orders.Event) {
	rejected := false
	var last time.Time
	for _, ev := range evs {
		if ev.Reason == orders.ReasonOrderReject || ev.Reason == orders.ReasonActionFailed {
			rejected = true
			last = ev.Time
		}
		local := e.cfg.Clock.Local(ev.Time)
		tr := observ.Transition{
			Time:    local,
			Reason:  ev.Reason,
			Module:  ev.Signal.Module,
			Signal:  ev.Signal,
			Session: e.cfg.Classifier.Classify(session.Of(local)),
			Entry:   ev.Price,
			Stop:    ev.Stop,
			Target:  ev.Target,
			Size:    ev.Qty,
			PnL:     ev.PnL,
			Detail:  ev.Detail,
		}
		if ev.Err != nil {
			tr.Detail = ev.Err.Error()
		}
		if ev.Trade != nil {
			rec := *ev.Trade
			rec.CloseTime = local
			tr.Session = rec.Session
			e.book(rec)
		}
		e.record(tr)
	}
	if rejected && e.Governor.IsLocked() {
		e.saveRisk(last)
	}
}

func (e *Engine) book(rec edge.TradeRecord) {
	e.Tracker.Record(rec)
	e.Recorder.Metrics().Trade(rec.Module.String(), rec.PnL)
	if e.Journal == nil {
		return
	}
	if err := e.Journal.RecordTrade(rec); err != nil {
		e.record(observ.Transition{Time: rec.CloseTime, Reason: ReasonJournalError, Module: rec.Module, Detail: err.Error()})
	}
}

// record stamps the risk snapshot and hands the transition to the
// recorder.
func (e *Engine) record(tr observ.Transition) {
	tr.Risk = e.Governor.Snapshot()
	e.Recorder.Record(tr)
}
