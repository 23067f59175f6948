package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/sessiontrader/broker"
	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/health"
	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/orders"
	"github.com/rustyeddy/sessiontrader/risk"
	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/strategies"
)

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}

func TestTrailingDrawdownBreachFlattensOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.e.Governor.Seed(50000, 50000)

	for i, cash := range []float64{50000, 50000, 47300, 47000} {
		h.br.acct.Cash = cash
		h.bar(h.at(11, i), 5000)
	}

	assert.Equal(t, 1, h.out.count(risk.ReasonTDDHit))
	assert.Equal(t, 1, h.out.count(orders.ReasonFlatten))
	assert.Equal(t, risk.Locked, h.e.Risk().State)
	assert.Equal(t, risk.ReasonTDDHit, h.e.Risk().LockReason)
	assert.InDelta(t, 50000, h.e.Risk().HWM, 1e-9)
}

func TestEntryIsGatedSizedAndSubmitted(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.entering(strategies.ORBUS, market.Long, 3.0)

	h.bar(h.at(9, 45), 5000)

	require.Len(t, h.br.submitted, 1)
	o := h.br.submitted[0]
	assert.Equal(t, broker.RoleEntry, o.Role)
	assert.Equal(t, broker.MarketOrder, o.Type)
	assert.Equal(t, market.Buy, o.Side)
	assert.Equal(t, 1, o.Qty, "150 / (3.0 * 50)")

	tr, ok := h.out.last(ReasonEntry)
	require.True(t, ok)
	assert.Equal(t, session.USOpen, tr.Session)
	assert.Equal(t, 1, tr.Size)
	assert.InDelta(t, 4997, tr.Stop, 1e-9)
	assert.False(t, tr.Adaptive)
	require.Len(t, h.mods.entered, 1)

	// The entry is in flight, so the module is not asked again.
	h.bar(h.at(9, 46), 5001)
	assert.Equal(t, 1, h.mods.sigs[strategies.ORBUS].calls)
	assert.Len(t, h.br.submitted, 1)
}

func TestOnlyRoutedModuleIsEvaluated(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.bar(h.at(11, 0), 5000)
	h.bar(h.at(16, 58), 5000)

	assert.Equal(t, 1, h.mods.sigs[strategies.MRMid].calls)
	assert.Zero(t, h.mods.sigs[strategies.ORBUS].calls)
	assert.Zero(t, h.mods.sigs[strategies.TCPH].calls, "no module trades NONE")
	assert.Equal(t, 2, h.mods.observed)
}

func TestLockedRefusesEntries(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.entering(strategies.MRMid, market.Short, 3.0)
	h.e.Governor.Lock(risk.ReasonDailyCap)

	for i := range 5 {
		h.bar(h.at(11, i), 5000)
	}
	assert.Empty(t, h.br.submitted)
	assert.Equal(t, 5, h.out.count(risk.ReasonLocked))
}

func TestMarketGates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mut    func(*market.Snapshot)
		reason string
	}{
		{"atr below band", func(s *market.Snapshot) { s.Ind.ATR = 2 }, risk.ReasonVolClamp},
		{"wide spread", func(s *market.Snapshot) { s.Quote.Ask = s.Quote.Bid + 1.0 }, risk.ReasonSpread},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.entering(strategies.ORBUS, market.Long, 3.0)
			s := h.snap(h.at(9, 45), 5000)
			tt.mut(&s)
			h.e.OnBar(context.Background(), s)

			assert.Empty(t, h.br.submitted)
			assert.Equal(t, 1, h.out.count(tt.reason))
		})
	}
}

func TestZeroSizeSkipsEntry(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.entering(strategies.ORBUS, market.Long, 10.0)
	h.bar(h.at(9, 45), 5000)

	assert.Empty(t, h.br.submitted)
	tr, ok := h.out.last(ReasonSizeZero)
	require.True(t, ok)
	assert.Zero(t, tr.Size)
}

func TestFailedEntrySubmitLocks(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.entering(strategies.ORBUS, market.Long, 3.0)
	h.br.submitErr = errVenue
	h.bar(h.at(9, 45), 5000)

	assert.Equal(t, 1, h.out.count(orders.ReasonActionFailed))
	assert.True(t, h.e.Governor.IsLocked())
	assert.Equal(t, orders.ReasonOrderReject, h.e.Risk().LockReason)
	assert.Empty(t, h.mods.entered)
}

func TestRejectLockIsSavedAtOnce(t *testing.T) {
	t.Parallel()

	t.Run("rejected entry", func(t *testing.T) {
		store := &fakeStore{}
		h := newHarness(t, func(c *Config, d *Deps) { d.State = store })
		h.entering(strategies.ORBUS, market.Long, 3.0)
		h.bar(h.at(9, 45), 5000)

		entry := h.br.byRole(broker.RoleEntry)[0]
		h.e.OnOrderUpdate(context.Background(), broker.OrderUpdate{
			OrderID: entry.ID, Signal: entry.Signal, Role: broker.RoleEntry,
			Status: broker.Rejected, Time: h.at(9, 45), Reason: "margin",
		})

		require.Len(t, store.saved, 1)
		assert.True(t, store.saved[0].Breached)
		assert.Equal(t, orders.ReasonOrderReject, store.saved[0].BreachReason)
	})

	t.Run("failed submit", func(t *testing.T) {
		store := &fakeStore{}
		h := newHarness(t, func(c *Config, d *Deps) { d.State = store })
		h.entering(strategies.ORBUS, market.Long, 3.0)
		h.br.submitErr = errVenue
		h.bar(h.at(9, 45), 5000)

		require.Len(t, store.saved, 1)
		assert.True(t, store.saved[0].Breached)
		assert.Equal(t, orders.ReasonOrderReject, store.saved[0].BreachReason)
	})
}

func TestOrphanTradeIsBookedUnderFillSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	sig := strategies.SignalID{Module: strategies.MRMid, Direction: market.Long}
	h.e.OnFill(context.Background(), broker.Fill{
		OrderID: "stray", Signal: sig, Role: broker.RoleEntry, Side: market.Buy,
		Qty: 1, Price: 5000, Time: h.at(11, 0),
	})
	require.Len(t, h.br.byRole(broker.RoleExit), 1)
	h.fillLast(4999, h.at(11, 1))

	trades := h.e.Tracker.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, session.USMid, trades[0].Session)
	assert.Equal(t, strategies.MRMid, trades[0].Module)
	assert.InDelta(t, -50, trades[0].PnL, 1e-9)
}

func TestAccountErrorSkipsRouting(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.entering(strategies.ORBUS, market.Long, 3.0)
	h.br.acctErr = errVenue
	h.bar(h.at(9, 45), 5000)

	assert.Equal(t, 1, h.out.count(ReasonAccountError))
	assert.Zero(t, h.mods.sigs[strategies.ORBUS].calls)
}

func TestOwnerExitClosesPosition(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.entering(strategies.MRMid, market.Long, 3.0)
	h.bar(h.at(11, 0), 5000)
	h.fillLast(5000.25, h.at(11, 0))
	require.True(t, h.e.Orders.Position().Open())

	h.mods.sigs[strategies.MRMid].decide = func(v *strategies.View) strategies.Decision {
		return strategies.Decision{Exit: &strategies.Exit{Reason: orders.ReasonExitTP, Price: v.Bar.Close}}
	}
	h.bar(h.at(11, 1), 5004)

	exits := h.br.byRole(broker.RoleExit)
	require.Len(t, exits, 1)
	assert.Equal(t, market.Sell, exits[0].Side)
	assert.Equal(t, 1, exits[0].Qty)
}

func TestClosedTradeIsBookedInLocalTime(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	h := newHarness(t, func(c *Config, d *Deps) { d.Journal = store })
	h.entering(strategies.MRMid, market.Long, 3.0)
	h.bar(h.at(11, 0), 5000)
	h.fillLast(5000, h.at(11, 0))

	closed := h.at(11, 3).UTC()
	h.e.OnFill(context.Background(), broker.Fill{
		OrderID: "bracket", Signal: strategies.SignalID{Module: strategies.MRMid, Direction: market.Long},
		Role: broker.RoleStop, Side: market.Sell, Qty: 1, Price: 4997, Time: closed,
	})

	trades := h.e.Tracker.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, h.ny, trades[0].CloseTime.Location())
	assert.True(t, trades[0].CloseTime.Equal(closed))
	assert.Equal(t, session.USMid, trades[0].Session)
	assert.InDelta(t, -1.0, trades[0].R, 1e-9)

	require.Len(t, store.recorded, 1)
	assert.Equal(t, trades[0].ID, store.recorded[0].ID)
	assert.InDelta(t, -150, h.e.Risk().DailyRealized, 1e-9)
	assert.Equal(t, 1, h.e.Risk().TradesToday)
	assert.Equal(t, 1, h.out.count(orders.ReasonTradeClosed))
}

func TestDailyLossBreachOnFill(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(c *Config, d *Deps) { c.Sizing = risk.Sizing{Mode: risk.Fixed, FixedQty: 3} })
	h.entering(strategies.MRMid, market.Long, 3.0)
	h.bar(h.at(11, 0), 5000)
	h.fillLast(5000, h.at(11, 0))

	// 3 contracts x 5 points x 50 = 750 > 700 daily cap.
	h.e.OnFill(context.Background(), broker.Fill{
		OrderID: "bracket", Signal: strategies.SignalID{Module: strategies.MRMid, Direction: market.Long},
		Role: broker.RoleStop, Side: market.Sell, Qty: 3, Price: 4995, Time: h.at(11, 2),
	})

	assert.Equal(t, 1, h.out.count(risk.ReasonDailyCap))
	assert.True(t, h.e.Governor.IsLocked())
}

func TestNoTradeWindowFlattensOnceAndReopens(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.entering(strategies.TCPH, market.Long, 3.0)
	h.bar(h.at(16, 50), 5000)
	h.fillLast(5000, h.at(16, 50))

	h.bar(h.at(16, 55), 5001)
	h.bar(h.at(16, 56), 5001)
	h.bar(h.at(16, 57), 5001)

	assert.Len(t, h.br.byRole(broker.RoleExit), 1)
	assert.Equal(t, 1, h.out.count(ReasonAutoFlat))
	assert.Equal(t, risk.NoTradeWindow, h.e.Risk().State)

	h.bar(h.at(18, 0), 5001)
	assert.Equal(t, 1, h.out.count(ReasonWindowEnd))
	assert.Equal(t, risk.Trading, h.e.Risk().State)
}

func TestDailyResetKeepsLockWithoutUnlock(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.e.Governor.Lock(risk.ReasonConsecLoss)
	h.bar(h.at(17, 4), 5000)
	h.bar(h.at(17, 5), 5000)

	tr, ok := h.out.last(ReasonDailyReset)
	require.True(t, ok)
	assert.Contains(t, tr.Detail, "lock persists")
	assert.True(t, h.e.Governor.IsLocked())
}

func TestDailyResetConsumesStoredUnlock(t *testing.T) {
	t.Parallel()

	store := &fakeStore{unlock: true}
	h := newHarness(t, func(c *Config, d *Deps) { d.Unlocks = store })
	h.e.Governor.Lock(risk.ReasonConsecLoss)
	h.bar(h.at(17, 4), 5000)
	assert.True(t, h.e.Governor.IsLocked(), "unlock waits for the reset")

	h.bar(h.at(17, 5), 5000)
	assert.False(t, h.e.Governor.IsLocked())
	assert.Equal(t, 1, h.out.count(risk.ReasonManualUnlock))

	// Consumed: the next day's reset does not unlock again.
	h.e.Governor.Lock(risk.ReasonConsecLoss)
	next := h.at(17, 4).AddDate(0, 0, 1)
	h.bar(next, 5000)
	h.bar(next.Add(time.Minute), 5000)
	assert.True(t, h.e.Governor.IsLocked())
}

func TestRequestUnlockInProcess(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.e.Governor.Lock(risk.ReasonTDDHit)
	h.e.RequestUnlock(h.at(12, 0))
	h.bar(h.at(17, 4), 5000)
	h.bar(h.at(17, 6), 5000)
	assert.False(t, h.e.Governor.IsLocked())
}

func TestRecomputeAtScheduledTime(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.bar(h.at(17, 9), 5000)
	assert.Zero(t, h.out.count(ReasonRecompute))
	h.bar(h.at(17, 10), 5000)
	assert.Equal(t, len(session.All), h.out.count(ReasonRecompute))
	h.bar(h.at(17, 11), 5000)
	assert.Equal(t, len(session.All), h.out.count(ReasonRecompute))
}

func TestStaleDataHoldsThenReleases(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.entering(strategies.MRMid, market.Long, 3.0)
	h.bar(h.at(11, 0), 5000)
	h.fillLast(5000, h.at(11, 0))

	h.e.OnHeartbeat(context.Background(), h.at(11, 0).Add(4*time.Second))
	assert.Equal(t, []string{health.ReasonDataStale}, h.e.Risk().Holds)
	assert.Len(t, h.br.byRole(broker.RoleExit), 1, "open position is flattened on a trip")
	tr, ok := h.out.last(orders.ReasonFlatten)
	require.True(t, ok)
	assert.Equal(t, health.ReasonDataStale, tr.Detail)
	// The trip itself and the exit it caused.
	assert.Equal(t, 2, h.out.count(health.ReasonDataStale))

	h.e.OnHeartbeat(context.Background(), h.at(11, 0).Add(10*time.Second))
	assert.Equal(t, 2, h.out.count(health.ReasonDataStale), "latched")
	assert.Len(t, h.br.byRole(broker.RoleExit), 1)

	h.e.OnTick(context.Background(), market.Quote{Bid: 5000, Ask: 5000.25}, h.at(11, 0).Add(11*time.Second))
	assert.Equal(t, 1, h.out.count(health.ReasonDataResumed))
	assert.Empty(t, h.e.Risk().Holds)
	assert.False(t, h.e.Governor.IsLocked(), "a health trip is not a sticky lock")
}

func TestDisconnectHoldsUntilStable(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	t0 := h.at(11, 0)
	h.bar(t0, 5000)

	h.e.OnConnectivity(ctx, broker.Connectivity{Connected: false, Time: t0.Add(time.Second)})
	h.e.OnTick(ctx, market.Quote{Bid: 5000, Ask: 5000.25}, t0.Add(7*time.Second))
	assert.Equal(t, 1, h.out.count(health.ReasonDisconnect))
	assert.Equal(t, risk.Locked, h.e.Risk().State)

	h.e.OnConnectivity(ctx, broker.Connectivity{Connected: true, Time: t0.Add(8 * time.Second)})
	h.e.OnTick(ctx, market.Quote{Bid: 5000, Ask: 5000.25}, t0.Add(9*time.Second))
	assert.Zero(t, h.out.count(health.ReasonReconnected), "still stabilizing")

	h.e.OnTick(ctx, market.Quote{Bid: 5000, Ask: 5000.25}, t0.Add(10*time.Second))
	assert.Equal(t, 1, h.out.count(health.ReasonReconnected))
	assert.Equal(t, risk.Trading, h.e.Risk().State)
}

func TestHeartbeatEscalatesWorkingEntry(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.mods.sigs[strategies.ORBUS].decide = func(v *strategies.View) strategies.Decision {
		return strategies.Decision{Entry: &strategies.Intent{
			Signal:       strategies.SignalID{Module: strategies.ORBUS, Direction: market.Long},
			Kind:         strategies.StopMarket,
			Price:        5005,
			StopDistance: 3,
		}}
	}
	t0 := h.at(9, 45)
	h.bar(t0, 5000)
	require.Len(t, h.br.submitted, 1)

	h.e.OnTick(context.Background(), market.Quote{Bid: 5004, Ask: 5004.25}, t0.Add(14*time.Second))
	h.e.OnHeartbeat(context.Background(), t0.Add(15*time.Second))

	require.Len(t, h.br.submitted, 2)
	assert.Equal(t, broker.StopMarketOrder, h.br.submitted[1].Type)
	assert.InDelta(t, 5004.5, h.br.submitted[1].Price, 1e-9)
	assert.Equal(t, 1, h.out.count(orders.ReasonQueueMIT))
}

func TestStartSeedsEdgeAndRestoresBreach(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		hasState: true,
		loaded:   risk.Persisted{HWM: 51000, MaxBalance: 51000, Breached: true, BreachReason: risk.ReasonTDDHit},
	}
	h := newHarness(t, func(c *Config, d *Deps) {
		c.LockOnPriorBreach = true
		d.Trades = store
		d.State = store
		r, err := routerAdaptive(d.Tracker)
		require.NoError(t, err)
		d.Router = r
	})
	now := h.at(8, 0)
	for i := range 12 {
		pnl := 300.0
		if i%3 == 0 {
			pnl = -150
		}
		rec, ok := edge.NewRecord(string(rune('a'+i)), now.AddDate(0, 0, -i-1).UTC(),
			session.USOpen, strategies.ORBUS, pnl, 150, 400, -100)
		require.True(t, ok)
		store.trades = append(store.trades, rec)
	}

	require.NoError(t, h.e.Start(context.Background(), now))

	assert.Equal(t, 12, h.e.Tracker.Len())
	assert.Equal(t, len(session.All), h.out.count(ReasonRecompute))
	c := h.e.Router.Resolve(session.USOpen)
	assert.Equal(t, strategies.ORBUS, c.Module)
	assert.True(t, c.Adaptive)

	assert.Equal(t, 1, h.out.count(risk.ReasonPriorBreach))
	assert.True(t, h.e.Governor.IsLocked())
	assert.InDelta(t, 51000, h.e.Risk().HWM, 1e-9)

	h.e.Shutdown(h.at(9, 0))
	require.NotEmpty(t, store.saved)
	assert.True(t, store.saved[len(store.saved)-1].Breached)
}

func TestRunDispatchesUntilClosed(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	in := make(chan broker.Event, 4)
	in <- Bar{Snapshot: h.snap(h.at(11, 0), 5000)}
	in <- Heartbeat{Time: h.at(11, 0).Add(5 * time.Second)}
	in <- Tick{Quote: market.Quote{Bid: 5000, Ask: 5000.25}, Time: h.at(11, 0).Add(6 * time.Second)}
	close(in)

	require.NoError(t, h.e.Run(context.Background(), in))
	assert.Equal(t, 1, h.mods.observed)
	assert.Equal(t, 1, h.out.count(health.ReasonDataStale))
	assert.Equal(t, 1, h.out.count(health.ReasonDataResumed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.e.Run(ctx, make(chan broker.Event)), context.Canceled)
}
