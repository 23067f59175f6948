package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/sessiontrader/broker"
	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/health"
	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/observ"
	"github.com/rustyeddy/sessiontrader/orders"
	"github.com/rustyeddy/sessiontrader/risk"
	"github.com/rustyeddy/sessiontrader/router"
	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/strategies"
)

type fakeBroker struct {
	acct      broker.Account
	acctErr   error
	submitErr error
	submitted []broker.OrderRequest
	canceled  []string
}

func (b *fakeBroker) GetAccount(ctx context.Context) (broker.Account, error) {
	return b.acct, b.acctErr
}

func (b *fakeBroker) Submit(ctx context.Context, req broker.OrderRequest) error {
	if b.submitErr != nil {
		return b.submitErr
	}
	b.submitted = append(b.submitted, req)
	return nil
}

func (b *fakeBroker) Cancel(ctx context.Context, orderID string) error {
	b.canceled = append(b.canceled, orderID)
	return nil
}

func (b *fakeBroker) SetStopLoss(ctx context.Context, sig strategies.SignalID, v float64) error {
	return nil
}

func (b *fakeBroker) SetTrailingStop(ctx context.Context, sig strategies.SignalID, v float64) error {
	return nil
}

func (b *fakeBroker) SetProfitTarget(ctx context.Context, sig strategies.SignalID, v float64) error {
	return nil
}

func (b *fakeBroker) byRole(r broker.Role) []broker.OrderRequest {
	var out []broker.OrderRequest
	for _, o := range b.submitted {
		if o.Role == r {
			out = append(out, o)
		}
	}
	return out
}

type fakeSignal struct {
	m      strategies.Module
	decide func(v *strategies.View) strategies.Decision
	calls  int
}

func (s *fakeSignal) Module() strategies.Module { return s.m }

func (s *fakeSignal) Evaluate(v *strategies.View) strategies.Decision {
	s.calls++
	if s.decide == nil {
		return strategies.Decision{}
	}
	return s.decide(v)
}

type fakeModules struct {
	sigs     map[strategies.Module]*fakeSignal
	observed int
	entered  []strategies.Intent
}

func newFakeModules() *fakeModules {
	f := &fakeModules{sigs: make(map[strategies.Module]*fakeSignal)}
	for _, m := range strategies.Modules {
		f.sigs[m] = &fakeSignal{m: m}
	}
	return f
}

func (f *fakeModules) Get(m strategies.Module) (strategies.Signal, bool) {
	s, ok := f.sigs[m]
	if !ok {
		return nil, false
	}
	return s, true
}

func (f *fakeModules) Observe(v *strategies.View) { f.observed++ }

func (f *fakeModules) Entered(in strategies.Intent, at time.Time) {
	f.entered = append(f.entered, in)
}

type capture struct {
	trs []observ.Transition
}

func (c *capture) Record(tr observ.Transition) error {
	c.trs = append(c.trs, tr)
	return nil
}

func (c *capture) count(reason string) int {
	n := 0
	for _, tr := range c.trs {
		if tr.Reason == reason {
			n++
		}
	}
	return n
}

func (c *capture) last(reason string) (observ.Transition, bool) {
	for i := len(c.trs) - 1; i >= 0; i-- {
		if c.trs[i].Reason == reason {
			return c.trs[i], true
		}
	}
	return observ.Transition{}, false
}

type fakeStore struct {
	trades   []edge.TradeRecord
	saved    []risk.Persisted
	loaded   risk.Persisted
	hasState bool
	unlock   bool
	recorded []edge.TradeRecord
}

func (s *fakeStore) RecordTrade(t edge.TradeRecord) error {
	s.recorded = append(s.recorded, t)
	return nil
}

func (s *fakeStore) RecordTransition(tr observ.Transition) error { return nil }
func (s *fakeStore) Close() error                                { return nil }

func (s *fakeStore) ListTradesClosedBetween(start, end time.Time) ([]edge.TradeRecord, error) {
	return s.trades, nil
}

func (s *fakeStore) LoadRiskState() (risk.Persisted, bool, error) {
	return s.loaded, s.hasState, nil
}

func (s *fakeStore) SaveRiskState(p risk.Persisted) error {
	s.saved = append(s.saved, p)
	return nil
}

func (s *fakeStore) ConsumeUnlock() (bool, error) {
	ok := s.unlock
	s.unlock = false
	return ok, nil
}

var errVenue = errors.New("venue down")

type harness struct {
	e    *Engine
	br   *fakeBroker
	mods *fakeModules
	out  *capture
	ny   *time.Location
}

func newHarness(t *testing.T, opts ...func(*Config, *Deps)) *harness {
	t.Helper()

	clock, err := session.NewClock("America/New_York")
	require.NoError(t, err)
	cls, err := session.NewClassifier(session.DefaultRanges(session.At(16, 55)))
	require.NoError(t, err)
	meta, err := market.Lookup("ES")
	require.NoError(t, err)

	br := &fakeBroker{acct: broker.Account{ID: "T", Currency: "USD", Cash: 50000}}
	gov := risk.NewGovernor(risk.DefaultLimits())
	tracker := edge.NewTracker(60)
	rt, err := router.New(false, router.DefaultForced(), tracker)
	require.NoError(t, err)
	mods := newFakeModules()
	out := &capture{}

	cfg := Config{
		Clock:         clock,
		Classifier:    cls,
		Instrument:    meta,
		Sizing:        risk.DefaultSizing(),
		AutoFlat:      session.At(16, 55),
		Reopen:        session.At(18, 0),
		DailyReset:    session.At(17, 5),
		EdgeRecompute: session.At(17, 10),
		LookbackDays:  60,
	}
	d := Deps{
		Broker:   br,
		Governor: gov,
		Orders:   orders.NewManager(orders.DefaultConfig(), meta, br, gov),
		Router:   rt,
		Tracker:  tracker,
		Modules:  mods,
		Health:   health.NewMonitor(health.DefaultConfig()),
		Recorder: observ.NewRecorder(zerolog.Nop(), nil, nil, out),
		Log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(&cfg, &d)
	}
	e, err := New(cfg, d)
	require.NoError(t, err)
	return &harness{e: e, br: br, mods: mods, out: out, ny: clock.Location()}
}

// at is a New York wall-clock time on Tuesday 2024-03-05.
func (h *harness) at(hour, min int) time.Time {
	return time.Date(2024, 3, 5, hour, min, 0, 0, h.ny)
}

func (h *harness) snap(at time.Time, px float64) market.Snapshot {
	return market.Snapshot{
		Bar:   market.Bar{Time: at, Open: px, High: px + 1, Low: px - 1, Close: px, Volume: 100},
		Prev:  market.Bar{Time: at.Add(-time.Minute), Close: px},
		Quote: market.Quote{Bid: px, Ask: px + 0.25},
		Ind:   market.Indicators{ATR: 10},
	}
}

func (h *harness) bar(at time.Time, px float64) {
	h.e.OnBar(context.Background(), h.snap(at, px))
}

// entering makes m propose a market entry every bar it is asked.
func (h *harness) entering(m strategies.Module, dir market.Direction, stopDist float64) {
	h.mods.sigs[m].decide = func(v *strategies.View) strategies.Decision {
		return strategies.Decision{Entry: &strategies.Intent{
			Signal:       strategies.SignalID{Module: m, Direction: dir},
			Kind:         strategies.Market,
			Price:        v.Bar.Close,
			StopDistance: stopDist,
			Reason:       "test",
		}}
	}
}

// fillLast fills the most recent order completely at px.
func (h *harness) fillLast(px float64, at time.Time) {
	o := h.br.submitted[len(h.br.submitted)-1]
	h.e.OnFill(context.Background(), broker.Fill{
		OrderID: o.ID, Signal: o.Signal, Role: o.Role, Side: o.Side,
		Qty: o.Qty, Price: px, Time: at,
	})
}

func routerAdaptive(tr *edge.Tracker) (*router.Router, error) {
	return router.New(true, router.DefaultForced(), tr)
}
