package engine

import (
	"github.com/rs/zerolog"

	"github.com/rustyeddy/sessiontrader/broker"
	"github.com/rustyeddy/sessiontrader/config"
	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/health"
	"github.com/rustyeddy/sessiontrader/journal"
	"github.com/rustyeddy/sessiontrader/observ"
	"github.com/rustyeddy/sessiontrader/orders"
	"github.com/rustyeddy/sessiontrader/risk"
	"github.com/rustyeddy/sessiontrader/router"
	"github.com/rustyeddy/sessiontrader/strategies"
)

// Store is what the SQLite journal offers beyond a plain Journal.
type Store interface {
	journal.Journal
	TradeSource
	StateStore
	UnlockSource
}

// Assemble wires an engine from a loaded configuration. j may be nil. When
// j also implements Store it seeds the edge window, delivers unlocks and,
// with risk.persist on, keeps the governor state.
func Assemble(cfg *config.Config, r *config.Resolved, br broker.Broker, rec *observ.Recorder,
	log zerolog.Logger, j journal.Journal) (*Engine, error) {

	tracker := edge.NewTracker(cfg.Router.LookbackDays)
	rt, err := router.New(cfg.Router.Adaptive, r.Forced, tracker)
	if err != nil {
		return nil, err
	}
	reg, err := strategies.NewRegistry(cfg.Modules, r.Classifier)
	if err != nil {
		return nil, err
	}
	gov := risk.NewGovernor(cfg.Risk.Limits)

	d := Deps{
		Broker:   br,
		Governor: gov,
		Orders:   orders.NewManager(r.Orders, r.Instrument, br, gov),
		Router:   rt,
		Tracker:  tracker,
		Modules:  reg,
		Health:   health.NewMonitor(r.Health),
		Recorder: rec,
		Log:      log,
		Journal:  j,
	}
	if s, ok := j.(Store); ok {
		d.Trades = s
		d.Unlocks = s
		if cfg.Risk.Persist {
			d.State = s
		}
	}

	return New(Config{
		Clock:             r.Clock,
		Classifier:        r.Classifier,
		Instrument:        r.Instrument,
		Sizing:            cfg.Sizing,
		AutoFlat:          r.AutoFlat,
		Reopen:            r.Reopen,
		DailyReset:        r.DailyReset,
		EdgeRecompute:     r.EdgeRecompute,
		LookbackDays:      cfg.Router.LookbackDays,
		LockOnPriorBreach: cfg.Risk.LockNextRunOnBreach,
	}, d)
}
