// Package engine is the per-update control flow of the trader. It owns no
// trading state itself: it orders the calls into the health monitor, the
// governor, the router, the modules and the order manager, and turns what
// they report into audit transitions.
//
// An Engine is not safe for concurrent use. Feed it from one goroutine, or
// through Run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/sessiontrader/broker"
	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/health"
	"github.com/rustyeddy/sessiontrader/journal"
	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/observ"
	"github.com/rustyeddy/sessiontrader/orders"
	"github.com/rustyeddy/sessiontrader/risk"
	"github.com/rustyeddy/sessiontrader/router"
	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/strategies"
)

// Reason codes emitted by the engine itself.
const (
	ReasonEntry        = "EntrySubmitted"
	ReasonAutoFlat     = "AutoFlat"
	ReasonWindowEnd    = "TradingResumed"
	ReasonDailyReset   = "DailyReset"
	ReasonRecompute    = "RouterRecompute"
	ReasonSizeZero     = "SizeZero"
	ReasonAccountError = "AccountError"
	ReasonStartup      = "Startup"
	ReasonJournalError = "JournalError"
)

// ThrottledReasons are the gate reasons that can repeat every bar.
var ThrottledReasons = []string{
	risk.ReasonSpread,
	risk.ReasonVolClamp,
	risk.ReasonTDDCushion,
	risk.ReasonAbsHaltCushion,
	risk.ReasonNoTradeBlock,
	risk.ReasonLocked,
	risk.ReasonHealthHold,
	ReasonSizeZero,
}

// Modules is the set of signal modules the engine routes to.
type Modules interface {
	Get(m strategies.Module) (strategies.Signal, bool)
	Observe(v *strategies.View)
	Entered(in strategies.Intent, at time.Time)
}

// TradeSource supplies closed trades to seed the edge window at startup.
type TradeSource interface {
	ListTradesClosedBetween(start, end time.Time) ([]edge.TradeRecord, error)
}

// StateStore persists the governor's peaks and breach marker.
type StateStore interface {
	LoadRiskState() (risk.Persisted, bool, error)
	SaveRiskState(p risk.Persisted) error
}

// UnlockSource delivers manual unlock requests made out of process.
type UnlockSource interface {
	ConsumeUnlock() (bool, error)
}

type Config struct {
	Clock      *session.Clock
	Classifier *session.Classifier
	Instrument market.InstrumentMeta
	Sizing     risk.Sizing

	AutoFlat      session.TimeOfDay
	Reopen        session.TimeOfDay
	DailyReset    session.TimeOfDay
	EdgeRecompute session.TimeOfDay

	LookbackDays int
	// LockOnPriorBreach locks at startup when the saved state ends in a
	// breach. Only used with a StateStore.
	LockOnPriorBreach bool
}

// Deps are the collaborators. Journal, Trades, State and Unlocks are
// optional.
type Deps struct {
	Broker   broker.Broker
	Governor *risk.Governor
	Orders   *orders.Manager
	Router   *router.Router
	Tracker  *edge.Tracker
	Modules  Modules
	Health   *health.Monitor
	Recorder *observ.Recorder
	Log      zerolog.Logger

	Journal journal.Journal
	Trades  TradeSource
	State   StateStore
	Unlocks UnlockSource
}

type Engine struct {
	cfg Config
	Deps

	log    zerolog.Logger
	window session.Range

	prevTOD session.TimeOfDay
	started bool
	quote   market.Quote
}

func New(cfg Config, d Deps) (*Engine, error) {
	switch {
	case cfg.Clock == nil || cfg.Classifier == nil:
		return nil, errors.New("engine: clock and classifier are required")
	case d.Broker == nil || d.Governor == nil || d.Orders == nil:
		return nil, errors.New("engine: broker, governor and order manager are required")
	case d.Router == nil || d.Tracker == nil || d.Modules == nil:
		return nil, errors.New("engine: router, tracker and modules are required")
	case d.Health == nil || d.Recorder == nil:
		return nil, errors.New("engine: health monitor and recorder are required")
	case cfg.LookbackDays <= 0:
		return nil, fmt.Errorf("engine: lookback days must be > 0, got %d", cfg.LookbackDays)
	}
	d.Orders.ClassifyWith(func(t time.Time) session.Session {
		return cfg.Classifier.Classify(cfg.Clock.TimeOfDay(t))
	})
	return &Engine{
		cfg:    cfg,
		Deps:   d,
		log:    d.Log.With().Str("component", "engine").Logger(),
		window: session.Range{Start: cfg.AutoFlat, End: cfg.Reopen},
	}, nil
}

// Start restores persisted risk state, seeds the governor from the account
// and the edge window from the trade source, then ranks the modules once
// so adaptive routing survives a restart.
func (e *Engine) Start(ctx context.Context, now time.Time) error {
	local := e.cfg.Clock.Local(now)

	if e.State != nil {
		p, ok, err := e.State.LoadRiskState()
		if err != nil {
			return fmt.Errorf("load risk state: %w", err)
		}
		if ok && e.Governor.Restore(p, e.cfg.LockOnPriorBreach) {
			e.record(observ.Transition{Time: local, Reason: risk.ReasonPriorBreach, Detail: p.BreachReason})
		}
	}

	acct, err := e.Broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	if reason, breached := e.Governor.Observe(acct.Cash, acct.Unrealized); breached {
		e.record(observ.Transition{Time: local, Reason: reason, Detail: "at startup"})
		e.saveRisk(now)
	}

	seeded := 0
	if e.Trades != nil {
		from := local.AddDate(0, 0, -e.cfg.LookbackDays)
		recs, err := e.Trades.ListTradesClosedBetween(from, local)
		if err != nil {
			return fmt.Errorf("seed edge window: %w", err)
		}
		for _, rec := range recs {
			rec.CloseTime = e.cfg.Clock.Local(rec.CloseTime)
			e.Tracker.Record(rec)
		}
		seeded = len(recs)
	}
	if seeded > 0 {
		e.recompute(local)
	}

	e.started = true
	e.prevTOD = session.Of(local)
	e.record(observ.Transition{
		Time:     local,
		Reason:   ReasonStartup,
		Session:  e.cfg.Classifier.Classify(e.prevTOD),
		Adaptive: e.Router.Adaptive(),
		Detail:   fmt.Sprintf("seeded %d trades", seeded),
	})
	return nil
}

// Shutdown saves the risk state.
func (e *Engine) Shutdown(now time.Time) {
	e.saveRisk(now)
}

// Flatten closes everything at market and cancels working entries. Hosts
// use it at the end of a replay or on operator request.
func (e *Engine) Flatten(ctx context.Context, reason string, at time.Time) {
	e.apply(e.Orders.Flatten(ctx, reason, at))
}

// RequestUnlock arms a manual unlock for the next daily reset.
func (e *Engine) RequestUnlock(at time.Time) {
	e.Governor.RequestUnlock()
	e.record(observ.Transition{Time: e.cfg.Clock.Local(at), Reason: risk.ReasonManualUnlock, Detail: "requested"})
}

// Risk returns the governor's current snapshot.
func (e *Engine) Risk() risk.Snapshot {
	return e.Governor.Snapshot()
}

func (e *Engine) saveRisk(now time.Time) {
	if e.State == nil {
		return
	}
	if err := e.State.SaveRiskState(e.Governor.Persisted(now)); err != nil {
		e.log.Error().Err(err).Msg("save risk state")
	}
}
