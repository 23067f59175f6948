// Package orders owns per-signal position state: entries in flight, fills,
// bracket legs, tiered targets and escalation of entries that sit unfilled.
//
// The manager is driven from the single event path of the engine and is not
// safe for concurrent use. Broker actions are fire-and-forget; their outcome
// comes back through OnFill and OnOrderUpdate.
package orders

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/rustyeddy/sessiontrader/broker"
	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/id"
	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/risk"
	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/strategies"
)

var (
	ErrBusy   = errors.New("a signal is already active")
	ErrBadQty = errors.New("quantity must be >= 1")
)

// Config holds the execution tunables.
type Config struct {
	// Persist is how long a stop or limit entry may work before it is
	// replaced by a marketable stop.
	Persist time.Duration
	// MaxQueue is how long an entry may stay unfilled in total.
	MaxQueue time.Duration
	// BETriggerR is the MFE, in multiples of initial risk, that moves the
	// stop to break-even.
	BETriggerR float64
	// BEOffsetATR is the break-even offset beyond the average price.
	BEOffsetATR float64
}

func DefaultConfig() Config {
	return Config{
		Persist:     15 * time.Second,
		MaxQueue:    45 * time.Second,
		BETriggerR:  1.0,
		BEOffsetATR: 0.2,
	}
}

// SignalState is the live record of one open signal. It is created on the
// fill that opens the position and destroyed on the fill that flattens it.
type SignalState struct {
	Signal      strategies.SignalID
	Direction   market.Direction
	Session     session.Session
	Qty         int
	AvgPrice    float64
	InitialRisk float64
	MFE         float64
	MAE         float64
	BreakEven   bool
	TierQty     []int
	TiersFilled int
	EntryTime   time.Time
	Realized    float64

	orphan     bool
	exiting    bool
	exitReason string
	tierDone   []int
	tierOrders []string
}

// plan is the accepted intent behind a signal, kept until the signal is idle.
type plan struct {
	intent      strategies.Intent
	qty         int
	filled      int
	session     session.Session
	tiersPlaced bool
}

type pendingEntry struct {
	orderID   string
	signal    strategies.SignalID
	submitted time.Time
	qty       int
	escalated bool
}

// exitOrder is a closing market order that has not completely filled.
type exitOrder struct {
	signal strategies.SignalID
	reason string
	qty    int
}

type Manager struct {
	cfg       Config
	meta      market.InstrumentMeta
	br        broker.Broker
	gov       *risk.Governor
	newID     func() string
	sessionAt func(time.Time) session.Session

	states  map[strategies.SignalID]*SignalState
	plans   map[strategies.SignalID]*plan
	pending map[string]*pendingEntry
	exits   map[string]*exitOrder

	rejectLatched bool
}

func NewManager(cfg Config, meta market.InstrumentMeta, br broker.Broker, gov *risk.Governor) *Manager {
	return &Manager{
		cfg:     cfg,
		meta:    meta,
		br:      br,
		gov:     gov,
		newID:   uuid.NewString,
		states:  make(map[strategies.SignalID]*SignalState),
		plans:   make(map[strategies.SignalID]*plan),
		pending: make(map[string]*pendingEntry),
		exits:   make(map[string]*exitOrder),
	}
}

// ClassifyWith sets how a fill without a plan is assigned a session.
func (m *Manager) ClassifyWith(fn func(time.Time) session.Session) {
	m.sessionAt = fn
}

// Busy reports whether any signal holds a position or has an entry in
// flight.
func (m *Manager) Busy() bool {
	return len(m.states) > 0 || len(m.plans) > 0
}

// Pending reports whether an entry has been accepted but nothing has filled.
func (m *Manager) Pending() bool {
	for sig := range m.plans {
		if m.states[sig] == nil {
			return true
		}
	}
	return false
}

// Position returns the open position, if any.
func (m *Manager) Position() strategies.Position {
	sigs := m.signals()
	if len(sigs) == 0 {
		return strategies.Position{}
	}
	st := m.states[sigs[0]]
	return strategies.Position{
		Signal:      st.Signal,
		Qty:         st.Qty,
		AvgPrice:    st.AvgPrice,
		EntryTime:   st.EntryTime,
		TiersFilled: st.TiersFilled,
	}
}

// State returns a copy of the signal's live state.
func (m *Manager) State(sig strategies.SignalID) (SignalState, bool) {
	st, ok := m.states[sig]
	if !ok {
		return SignalState{}, false
	}
	cp := *st
	cp.TierQty = slices.Clone(st.TierQty)
	return cp, true
}

// ResetDaily clears the order-reject latch.
func (m *Manager) ResetDaily() {
	m.rejectLatched = false
}

// Enter submits the entry order for an accepted intent.
func (m *Manager) Enter(ctx context.Context, in strategies.Intent, qty int, s session.Session, at time.Time) error {
	if qty < 1 {
		return ErrBadQty
	}
	if m.Busy() {
		return ErrBusy
	}
	req := broker.OrderRequest{
		ID:     m.newID(),
		Signal: in.Signal,
		Role:   broker.RoleEntry,
		Side:   in.Signal.Direction.Side(),
		Type:   broker.TypeFor(in.Kind),
		Qty:    qty,
		Price:  in.Price,
	}
	if err := m.br.Submit(ctx, req); err != nil {
		return fmt.Errorf("submit entry %s: %w", in.Signal, err)
	}
	m.plans[in.Signal] = &plan{intent: in, qty: qty, session: s}
	if in.Kind != strategies.Market {
		m.pending[req.ID] = &pendingEntry{
			orderID:   req.ID,
			signal:    in.Signal,
			submitted: at,
			qty:       qty,
		}
	}
	return nil
}

// OnFill applies one execution. A fill is authoritative: it is applied even
// when the order it belongs to was already canceled.
func (m *Manager) OnFill(ctx context.Context, f broker.Fill) []Event {
	m.rejectLatched = false
	if p, ok := m.pending[f.OrderID]; ok {
		p.qty -= f.Qty
		if p.qty <= 0 {
			delete(m.pending, f.OrderID)
		}
	}
	exitAs := ""
	if x, ok := m.exits[f.OrderID]; ok {
		exitAs = x.reason
		x.qty -= f.Qty
		if x.qty <= 0 {
			delete(m.exits, f.OrderID)
		}
	}

	st := m.states[f.Signal]
	switch {
	case st == nil:
		return m.open(ctx, f)
	case f.Side.Direction() == st.Direction:
		return m.add(ctx, st, f)
	default:
		return m.reduce(ctx, st, f, exitAs)
	}
}

func (m *Manager) open(ctx context.Context, f broker.Fill) []Event {
	st := &SignalState{
		Signal:    f.Signal,
		Direction: f.Side.Direction(),
		Qty:       f.Qty,
		AvgPrice:  f.Price,
		EntryTime: f.Time,
	}
	m.states[f.Signal] = st

	pl := m.plans[f.Signal]
	if pl == nil || f.Signal.Direction != st.Direction {
		st.orphan = true
		st.Session = session.None
		if m.sessionAt != nil {
			st.Session = m.sessionAt(f.Time)
		}
		ev := []Event{m.event(ReasonOrphanFill, st, f.Time, func(e *Event) {
			e.Qty, e.Price, e.Fill = f.Qty, f.Price, true
		})}
		return append(ev, m.exit(ctx, st, ReasonOrphanFill, f.Time)...)
	}

	st.Session = pl.session
	pl.filled += f.Qty
	ev := []Event{m.event(ReasonEntryFill, st, f.Time, func(e *Event) {
		e.Qty, e.Price, e.Fill = f.Qty, f.Price, true
	})}
	ev = append(ev, m.protect(ctx, st, pl, true, f.Time)...)
	if pl.filled >= pl.qty {
		ev = append(ev, m.cancelEntries(ctx, st, f.Time)...)
		ev = append(ev, m.placeTiers(ctx, st, pl, f.Time)...)
	}
	return ev
}

// add merges a same-direction fill. Quantity beyond the plan, or added while
// the signal is already exiting, is sent straight back out at market.
func (m *Manager) add(ctx context.Context, st *SignalState, f broker.Fill) []Event {
	total := st.Qty + f.Qty
	st.AvgPrice = (st.AvgPrice*float64(st.Qty) + f.Price*float64(f.Qty)) / float64(total)
	st.Qty = total

	ev := []Event{m.event(ReasonEntryFill, st, f.Time, func(e *Event) {
		e.Qty, e.Price, e.Fill = f.Qty, f.Price, true
	})}
	if st.exiting {
		return append(ev, m.trim(ctx, st, f.Qty, st.exitReason, f.Time)...)
	}
	pl := m.plans[st.Signal]
	if st.orphan || pl == nil {
		return ev
	}
	surplus := min(f.Qty, pl.filled+f.Qty-pl.qty)
	pl.filled += f.Qty
	if surplus < f.Qty {
		ev = append(ev, m.protect(ctx, st, pl, false, f.Time)...)
	}
	if pl.filled >= pl.qty {
		ev = append(ev, m.cancelEntries(ctx, st, f.Time)...)
		ev = append(ev, m.placeTiers(ctx, st, pl, f.Time)...)
	}
	if surplus > 0 && !st.exiting {
		ev = append(ev, m.trim(ctx, st, surplus, ReasonSurplusExit, f.Time)...)
	}
	return ev
}

// trim sends qty contracts of an open position out at market without
// touching the rest of it.
func (m *Manager) trim(ctx context.Context, st *SignalState, qty int, reason string, at time.Time) []Event {
	req := broker.OrderRequest{
		ID:     m.newID(),
		Signal: st.Signal,
		Role:   broker.RoleExit,
		Side:   st.Direction.Opposite().Side(),
		Type:   broker.MarketOrder,
		Qty:    qty,
	}
	if err := m.br.Submit(ctx, req); err != nil {
		return m.fail(ctx, st.Signal, fmt.Errorf("submit %s: %w", reason, err), at)
	}
	m.exits[req.ID] = &exitOrder{signal: st.Signal, reason: reason, qty: qty}
	return []Event{m.event(reason, st, at, func(e *Event) { e.Qty = qty })}
}

// cancelEntries cancels the entry orders still working for a signal whose
// planned quantity has filled.
func (m *Manager) cancelEntries(ctx context.Context, st *SignalState, at time.Time) []Event {
	var ev []Event
	for _, oid := range slices.Sorted(maps.Keys(m.pending)) {
		if m.pending[oid].signal != st.Signal {
			continue
		}
		delete(m.pending, oid)
		if err := m.br.Cancel(ctx, oid); err != nil {
			ev = append(ev, m.event(ReasonActionFailed, st, at, func(e *Event) { e.Err = err }))
		}
	}
	return ev
}

func (m *Manager) reduce(ctx context.Context, st *SignalState, f broker.Fill, exitAs string) []Event {
	qty := min(f.Qty, st.Qty)
	pnl := (f.Price - st.AvgPrice) * float64(st.Direction) * m.meta.PointValue * float64(qty)
	st.Realized += pnl
	st.Qty -= qty
	m.gov.RecordExit(pnl)

	ev := []Event{m.event(m.exitReason(st, f, pnl, exitAs), st, f.Time, func(e *Event) {
		e.Qty, e.Price, e.PnL, e.Fill = qty, f.Price, pnl, true
	})}
	if f.Role == broker.RoleTarget && f.Tier > 0 {
		ev = append(ev, m.tierFilled(ctx, st, f.Tier, qty, f.Time)...)
	}
	switch {
	case st.Qty == 0:
		ev = append(ev, m.close(ctx, st, f.Time)...)
	case st.exiting && m.exitQty(st.Signal) == 0:
		// Every exit has filled or died and a lot is still open.
		st.exiting = false
		ev = append(ev, m.exit(ctx, st, st.exitReason, f.Time)...)
	}
	if extra := f.Qty - qty; extra > 0 {
		over := f
		over.Qty = extra
		ev = append(ev, m.open(ctx, over)...)
	}
	return ev
}

func (m *Manager) exitReason(st *SignalState, f broker.Fill, pnl float64, exitAs string) string {
	pl := m.plans[st.Signal]
	switch {
	case f.Role == broker.RoleTarget && f.Tier > 0:
		return TierReason(f.Tier)
	case exitAs != "":
		return exitAs
	case f.Role == broker.RoleExit && st.exitReason != "":
		return st.exitReason
	case f.Role == broker.RoleStop && pl != nil && pl.intent.Tiers != nil:
		return ReasonExitSL
	case pnl >= 0:
		return ReasonExitTP
	default:
		return ReasonExitSL
	}
}

// protect places the stop relative to the average fill and, on the first
// fill, the trailing stop and single profit target.
func (m *Manager) protect(ctx context.Context, st *SignalState, pl *plan, first bool, at time.Time) []Event {
	in := pl.intent
	st.InitialRisk = risk.InitialRisk(in.StopDistance, min(st.Qty, pl.qty), m.meta)
	stop := m.meta.RoundToTick(st.AvgPrice - float64(st.Direction)*in.StopDistance)
	if st.BreakEven {
		return nil
	}
	if err := m.br.SetStopLoss(ctx, st.Signal, stop); err != nil {
		return m.fail(ctx, st.Signal, fmt.Errorf("set stop: %w", err), at)
	}
	if !first {
		return nil
	}
	if in.TrailDistance > 0 {
		if err := m.br.SetTrailingStop(ctx, st.Signal, in.TrailDistance); err != nil {
			return m.fail(ctx, st.Signal, fmt.Errorf("set trail: %w", err), at)
		}
	}
	if in.Target > 0 && in.Tiers == nil {
		if err := m.br.SetProfitTarget(ctx, st.Signal, in.Target); err != nil {
			return m.fail(ctx, st.Signal, fmt.Errorf("set target: %w", err), at)
		}
	}
	return nil
}

// placeTiers submits the tier limit orders once the entry is complete.
func (m *Manager) placeTiers(ctx context.Context, st *SignalState, pl *plan, at time.Time) []Event {
	in := pl.intent
	if in.Tiers == nil || pl.tiersPlaced {
		return nil
	}
	pl.tiersPlaced = true
	st.TierQty = strategies.SplitTiers(min(st.Qty, pl.qty), in.Tiers.Weights)
	st.tierDone = make([]int, len(st.TierQty))
	st.tierOrders = make([]string, len(st.TierQty))

	var first float64
	for i, q := range st.TierQty {
		if q == 0 || i >= len(in.Tiers.Offsets) {
			continue
		}
		req := broker.OrderRequest{
			ID:     m.newID(),
			Signal: st.Signal,
			Role:   broker.RoleTarget,
			Tier:   i + 1,
			Side:   st.Direction.Opposite().Side(),
			Type:   broker.LimitOrder,
			Qty:    q,
			Price:  m.meta.RoundToTick(st.AvgPrice + float64(st.Direction)*in.Tiers.Offsets[i]),
		}
		if err := m.br.Submit(ctx, req); err != nil {
			return m.fail(ctx, st.Signal, fmt.Errorf("submit tier %d: %w", i+1, err), at)
		}
		st.tierOrders[i] = req.ID
		if first == 0 {
			first = req.Price
		}
	}
	return []Event{m.event(ReasonTargetsPlaced, st, at, func(e *Event) {
		e.Qty, e.Target = st.Qty, first
		e.Detail = fmt.Sprint(st.TierQty)
	})}
}

func (m *Manager) tierFilled(ctx context.Context, st *SignalState, tier, qty int, at time.Time) []Event {
	i := tier - 1
	if i < 0 || i >= len(st.tierDone) {
		return nil
	}
	st.tierDone[i] += qty
	if st.tierDone[i] < st.TierQty[i] || tier <= st.TiersFilled {
		return nil
	}
	st.TiersFilled = tier

	var ev []Event
	pl := m.plans[st.Signal]
	if tier == 1 && st.Qty > 0 && pl != nil && pl.intent.ResidualTrail > 0 {
		if err := m.br.SetTrailingStop(ctx, st.Signal, pl.intent.ResidualTrail); err != nil {
			return m.fail(ctx, st.Signal, fmt.Errorf("residual trail: %w", err), at)
		}
		ev = append(ev, m.event(ReasonTrailStart, st, at, func(e *Event) {
			e.Qty, e.Stop = st.Qty, pl.intent.ResidualTrail
		}))
	}
	if tier == lastTier(st.TierQty) {
		ev = append(ev, m.clearBracket(ctx, st, at)...)
		ev = append(ev, m.event(ReasonBracketCleared, st, at, nil))
	}
	return ev
}

func lastTier(q []int) int {
	for i := len(q) - 1; i >= 0; i-- {
		if q[i] > 0 {
			return i + 1
		}
	}
	return 0
}

// close books a flat signal and destroys its state.
func (m *Manager) close(ctx context.Context, st *SignalState, at time.Time) []Event {
	ev := m.clearBracket(ctx, st, at)
	delete(m.states, st.Signal)
	delete(m.plans, st.Signal)
	for oid, x := range m.exits {
		if x.signal == st.Signal {
			delete(m.exits, oid)
		}
	}
	m.gov.RecordTradeClosed()

	closed := m.event(ReasonTradeClosed, st, at, func(e *Event) { e.PnL = st.Realized })
	rec, ok := edge.NewRecord(id.At(at), at, st.Session, st.Signal.Module,
		st.Realized, st.InitialRisk, st.MFE, st.MAE)
	if ok {
		closed.Trade = &rec
	}
	return append(ev, closed)
}

// clearBracket removes the stop, trail and target legs and cancels any tier
// order that has not completely filled.
func (m *Manager) clearBracket(ctx context.Context, st *SignalState, at time.Time) []Event {
	var ev []Event
	warn := func(err error) {
		if err != nil {
			ev = append(ev, m.event(ReasonActionFailed, st, at, func(e *Event) { e.Err = err }))
		}
	}
	warn(m.br.SetStopLoss(ctx, st.Signal, 0))
	warn(m.br.SetTrailingStop(ctx, st.Signal, 0))
	warn(m.br.SetProfitTarget(ctx, st.Signal, 0))
	ev = append(ev, m.cancelTiers(ctx, st, at)...)
	return ev
}

func (m *Manager) cancelTiers(ctx context.Context, st *SignalState, at time.Time) []Event {
	var ev []Event
	for i, oid := range st.tierOrders {
		if oid == "" || st.tierDone[i] >= st.TierQty[i] {
			continue
		}
		if err := m.br.Cancel(ctx, oid); err != nil {
			ev = append(ev, m.event(ReasonActionFailed, st, at, func(e *Event) { e.Err = err }))
		}
		st.tierOrders[i] = ""
	}
	return ev
}

// Maintain runs once per bar: it tracks excursions, promotes the stop to
// break-even once per signal and enforces the module's maximum hold.
func (m *Manager) Maintain(ctx context.Context, snap market.Snapshot, at time.Time) []Event {
	var ev []Event
	for _, sig := range m.signals() {
		st := m.states[sig]
		if st == nil || st.exiting {
			continue
		}
		dir := float64(st.Direction)
		unreal := (snap.Bar.Close - st.AvgPrice) * dir * m.meta.PointValue * float64(st.Qty)
		st.MFE = max(st.MFE, unreal)
		st.MAE = min(st.MAE, unreal)

		pl := m.plans[sig]
		if pl == nil || st.orphan {
			continue
		}
		if !st.BreakEven && st.InitialRisk > 0 && st.MFE >= m.cfg.BETriggerR*st.InitialRisk {
			st.BreakEven = true
			stop := m.meta.RoundToTick(st.AvgPrice + dir*m.cfg.BEOffsetATR*snap.Ind.ATR)
			if err := m.br.SetStopLoss(ctx, sig, stop); err != nil {
				ev = append(ev, m.fail(ctx, sig, fmt.Errorf("break-even stop: %w", err), at)...)
				continue
			}
			ev = append(ev, m.event(ReasonMoveStopBE, st, at, func(e *Event) {
				e.Qty, e.Stop = st.Qty, stop
			}))
		}
		if hold := pl.intent.MaxHold; hold > 0 && st.TiersFilled == 0 && at.Sub(st.EntryTime) >= hold {
			ev = append(ev, m.exit(ctx, st, ReasonTimeout, at)...)
		}
	}
	return ev
}

// SessionEnd closes positions whose module flattens once the session they
// were opened in is over.
func (m *Manager) SessionEnd(ctx context.Context, cur session.Session, at time.Time) []Event {
	var ev []Event
	for _, sig := range m.signals() {
		st := m.states[sig]
		if st.orphan || !sig.Module.FlattensAtSessionEnd() || st.Session == cur {
			continue
		}
		ev = append(ev, m.exit(ctx, st, ReasonSessionEnd, at)...)
	}
	return ev
}

// Exit closes every open position at market with the given reason.
func (m *Manager) Exit(ctx context.Context, reason string, at time.Time) []Event {
	var ev []Event
	for _, sig := range m.signals() {
		ev = append(ev, m.exit(ctx, m.states[sig], reason, at)...)
	}
	return ev
}

func (m *Manager) exit(ctx context.Context, st *SignalState, reason string, at time.Time) []Event {
	qty := st.Qty - m.exitQty(st.Signal)
	if st.exiting || qty <= 0 {
		return nil
	}
	st.exiting = true
	st.exitReason = reason
	ev := m.cancelTiers(ctx, st, at)

	req := broker.OrderRequest{
		ID:     m.newID(),
		Signal: st.Signal,
		Role:   broker.RoleExit,
		Side:   st.Direction.Opposite().Side(),
		Type:   broker.MarketOrder,
		Qty:    qty,
	}
	if err := m.br.Submit(ctx, req); err != nil {
		st.exiting = false
		return append(ev, m.fail(ctx, st.Signal, fmt.Errorf("submit exit: %w", err), at)...)
	}
	m.exits[req.ID] = &exitOrder{signal: st.Signal, reason: reason, qty: qty}
	return append(ev, m.event(reason, st, at, func(e *Event) { e.Qty = qty }))
}

// Flatten exits every position and cancels every working entry. Calling it
// again while the exits are in flight only records the reason.
func (m *Manager) Flatten(ctx context.Context, reason string, at time.Time) []Event {
	ev := []Event{{Reason: ReasonFlatten, Detail: reason, Time: at}}
	for _, oid := range slices.Sorted(maps.Keys(m.pending)) {
		p := m.pending[oid]
		delete(m.pending, oid)
		if err := m.br.Cancel(ctx, oid); err != nil {
			ev = append(ev, Event{Reason: ReasonActionFailed, Signal: p.signal, Time: at, Err: err})
		}
	}
	for sig := range m.plans {
		if m.states[sig] == nil {
			delete(m.plans, sig)
		}
	}
	return append(ev, m.Exit(ctx, reason, at)...)
}

// Escalate replaces entries that have worked for Persist with a marketable
// stop one tick through the quote, and cancels entries older than MaxQueue.
func (m *Manager) Escalate(ctx context.Context, q market.Quote, at time.Time) []Event {
	var ev []Event
	for _, oid := range slices.Sorted(maps.Keys(m.pending)) {
		p := m.pending[oid]
		age := at.Sub(p.submitted)
		switch {
		case age >= m.cfg.MaxQueue:
			delete(m.pending, oid)
			if err := m.br.Cancel(ctx, oid); err != nil {
				ev = append(ev, Event{Reason: ReasonActionFailed, Signal: p.signal, Time: at, Err: err})
			}
			ev = append(ev, Event{Reason: ReasonQueueCancel, Signal: p.signal, Time: at, Qty: p.qty})

		case !p.escalated && age >= m.cfg.Persist:
			pl := m.plans[p.signal]
			if pl == nil {
				continue
			}
			price := m.marketable(p.signal.Direction, q, pl.intent.Price)
			qty := max(p.qty, 1)

			delete(m.pending, oid)
			if err := m.br.Cancel(ctx, oid); err != nil {
				ev = append(ev, Event{Reason: ReasonActionFailed, Signal: p.signal, Time: at, Err: err})
			}
			req := broker.OrderRequest{
				ID:     m.newID(),
				Signal: p.signal,
				Role:   broker.RoleEntry,
				Side:   p.signal.Direction.Side(),
				Type:   broker.StopMarketOrder,
				Qty:    qty,
				Price:  price,
			}
			if err := m.br.Submit(ctx, req); err != nil {
				ev = append(ev, m.fail(ctx, p.signal, fmt.Errorf("resubmit entry: %w", err), at)...)
				continue
			}
			m.pending[req.ID] = &pendingEntry{
				orderID:   req.ID,
				signal:    p.signal,
				submitted: p.submitted,
				qty:       qty,
				escalated: true,
			}
			pl.qty = pl.filled + qty
			ev = append(ev, Event{Reason: ReasonQueueMIT, Signal: p.signal, Time: at, Qty: qty, Price: price})
		}
	}
	return ev
}

// marketable is one tick through the far side of the quote, or the original
// trigger when no quote is available.
func (m *Manager) marketable(d market.Direction, q market.Quote, fallback float64) float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return fallback
	}
	if d == market.Long {
		return m.meta.RoundToTick(q.Ask + m.meta.TickSize)
	}
	return m.meta.RoundToTick(q.Bid - m.meta.TickSize)
}

// OnOrderUpdate handles rejections and cancellations. Other statuses carry
// no information the fills do not.
func (m *Manager) OnOrderUpdate(ctx context.Context, u broker.OrderUpdate) []Event {
	switch u.Status {
	case broker.Rejected:
		delete(m.pending, u.OrderID)
		if u.Role == broker.RoleExit {
			m.dropExit(u.OrderID, u.Signal)
		}
		m.dropIdlePlan(u.Signal)
		ev := []Event{{Reason: ReasonOrderReject, Signal: u.Signal, Time: u.Time, Detail: u.Reason}}
		return append(ev, m.reject(ctx, u.Time)...)

	case broker.Canceled:
		delete(m.pending, u.OrderID)
		if u.Role == broker.RoleExit {
			// The venue pulled an exit: send what is still open again.
			st := m.states[u.Signal]
			m.dropExit(u.OrderID, u.Signal)
			if st != nil && !st.exiting && st.exitReason != "" {
				return m.exit(ctx, st, st.exitReason, u.Time)
			}
			return nil
		}
		if u.Role != broker.RoleEntry {
			return nil
		}
		ev := []Event{{Reason: ReasonEntryCanceled, Signal: u.Signal, Time: u.Time, Qty: u.Qty - u.Filled}}
		if m.pendingFor(u.Signal) {
			return ev
		}
		st := m.states[u.Signal]
		if st == nil {
			delete(m.plans, u.Signal)
			return ev
		}
		if pl := m.plans[u.Signal]; pl != nil && !st.exiting {
			ev = append(ev, m.placeTiers(ctx, st, pl, u.Time)...)
		}
		return ev
	}
	return nil
}

// reject flattens and locks once per latch. The latch is cleared by the
// next fill or the daily reset.
func (m *Manager) reject(ctx context.Context, at time.Time) []Event {
	if m.rejectLatched {
		return nil
	}
	m.rejectLatched = true
	m.gov.Lock(ReasonOrderReject)
	return m.Flatten(ctx, ReasonOrderReject, at)
}

// fail treats a failed broker action like a rejection.
func (m *Manager) fail(ctx context.Context, sig strategies.SignalID, err error, at time.Time) []Event {
	ev := []Event{{Reason: ReasonActionFailed, Signal: sig, Time: at, Err: err}}
	return append(ev, m.reject(ctx, at)...)
}

// dropExit forgets a dead exit order. The signal may exit again once no
// other exit is working for it.
func (m *Manager) dropExit(oid string, sig strategies.SignalID) {
	delete(m.exits, oid)
	if st := m.states[sig]; st != nil && m.exitQty(sig) == 0 {
		st.exiting = false
	}
}

// exitQty is the quantity of the signal's exits still working.
func (m *Manager) exitQty(sig strategies.SignalID) int {
	n := 0
	for _, x := range m.exits {
		if x.signal == sig {
			n += x.qty
		}
	}
	return n
}

func (m *Manager) dropIdlePlan(sig strategies.SignalID) {
	if m.states[sig] == nil && !m.pendingFor(sig) {
		delete(m.plans, sig)
	}
}

func (m *Manager) pendingFor(sig strategies.SignalID) bool {
	for _, p := range m.pending {
		if p.signal == sig {
			return true
		}
	}
	return false
}

// signals returns the open signals in a stable order.
func (m *Manager) signals() []strategies.SignalID {
	return slices.SortedFunc(maps.Keys(m.states), func(a, b strategies.SignalID) int {
		if a.Module != b.Module {
			return int(a.Module) - int(b.Module)
		}
		return int(a.Direction) - int(b.Direction)
	})
}

func (m *Manager) event(reason string, st *SignalState, at time.Time, fill func(*Event)) Event {
	e := Event{Reason: reason, Signal: st.Signal, Time: at}
	if fill != nil {
		fill(&e)
	}
	return e
}
