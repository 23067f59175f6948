// Package sim is a paper venue for replays. It implements broker.Broker,
// matches resting orders and bracket legs against bar ranges, and queues
// the resulting fills and order updates until the caller drains them.
package sim

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rustyeddy/sessiontrader/broker"
	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/strategies"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNoPosition    = errors.New("no open position for signal")
)

type Config struct {
	Meta market.InstrumentMeta
	Cash float64
	// Commission is charged per contract on every fill.
	Commission float64
}

type order struct {
	req    broker.OrderRequest
	filled int
	status broker.OrderStatus
	seq    int
}

type Engine struct {
	mu sync.Mutex

	meta       market.InstrumentMeta
	commission float64
	acct       broker.Account

	now   time.Time
	bar   market.Bar
	quote market.Quote

	orders    map[string]*order
	seq       int
	positions map[strategies.SignalID]*position

	outbox     []broker.Event
	rejectNext string
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		meta:       cfg.Meta,
		commission: cfg.Commission,
		acct:       broker.Account{ID: "SIM", Currency: "USD", Cash: cfg.Cash},
		orders:     make(map[string]*order),
		positions:  make(map[strategies.SignalID]*position),
	}
}

func (e *Engine) GetAccount(ctx context.Context) (broker.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct, nil
}

// RejectNext makes the next submitted order come back rejected.
func (e *Engine) RejectNext(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rejectNext = reason
}

// Drain returns and clears the queued venue events in the order they
// happened.
func (e *Engine) Drain() []broker.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.outbox
	e.outbox = nil
	return out
}

// Submit accepts an order. Market orders fill at once against the quote;
// stop and limit orders rest until OnBar triggers them. Invalid orders are
// rejected through an OrderUpdate, not an error.
func (e *Engine) Submit(ctx context.Context, req broker.OrderRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dup := e.orders[req.ID]; dup || req.ID == "" {
		return fmt.Errorf("submit: bad order id %q", req.ID)
	}
	e.seq++
	o := &order{req: req, status: broker.Submitted, seq: e.seq}
	e.orders[req.ID] = o

	if reason := e.validateLocked(req); reason != "" {
		e.updateLocked(o, broker.Rejected, reason)
		return nil
	}
	e.updateLocked(o, broker.Working, "")

	if req.Type == broker.MarketOrder {
		e.fillOrderLocked(o, e.marketPriceLocked(req.Side), e.now)
	}
	return nil
}

func (e *Engine) validateLocked(req broker.OrderRequest) string {
	if r := e.rejectNext; r != "" {
		e.rejectNext = ""
		return r
	}
	switch {
	case req.Qty < 1:
		return "quantity must be >= 1"
	case req.Type != broker.MarketOrder && req.Price <= 0:
		return "price required"
	case req.Type == broker.MarketOrder && e.marketPriceLocked(req.Side) <= 0:
		return "no market"
	}
	return ""
}

func (e *Engine) marketPriceLocked(s market.Side) float64 {
	if s == market.Buy {
		return e.quote.Ask
	}
	return e.quote.Bid
}

// Cancel cancels a working order. Canceling a finished order is a no-op.
func (e *Engine) Cancel(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.orders[orderID]
	if !ok {
		return fmt.Errorf("cancel %q: %w", orderID, ErrOrderNotFound)
	}
	if o.status.Terminal() {
		return nil
	}
	e.updateLocked(o, broker.Canceled, "")
	return nil
}

func (e *Engine) SetStopLoss(ctx context.Context, sig strategies.SignalID, price float64) error {
	return e.setLeg(sig, price, func(p *position) { p.stop = price })
}

func (e *Engine) SetProfitTarget(ctx context.Context, sig strategies.SignalID, price float64) error {
	return e.setLeg(sig, price, func(p *position) { p.target = price })
}

// SetTrailingStop arms a trailing stop distance from the last close.
func (e *Engine) SetTrailingStop(ctx context.Context, sig strategies.SignalID, distance float64) error {
	return e.setLeg(sig, distance, func(p *position) {
		p.trail = distance
		p.trailStop = 0
		if distance > 0 && e.bar.Close > 0 {
			p.trailStop = e.bar.Close - float64(p.dir)*distance
		}
	})
}

// setLeg applies a bracket change. Clearing a leg of a closed position is
// accepted so brackets can be torn down after the fact.
func (e *Engine) setLeg(sig strategies.SignalID, v float64, apply func(*position)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[sig]
	if !ok {
		if v == 0 {
			return nil
		}
		return fmt.Errorf("%s: %w", sig, ErrNoPosition)
	}
	apply(p)
	return nil
}

// OnBar advances the venue to the close of b: resting orders trigger first
// in submission order, then bracket legs (stop before target when both are
// touched), then the trailing stop ratchets and open P&L is revalued.
func (e *Engine) OnBar(b market.Bar, q market.Quote) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.now = b.Time
	if q.Bid <= 0 || q.Ask <= 0 {
		q = market.Quote{Bid: b.Close, Ask: b.Close + e.meta.TickSize}
	}

	for _, o := range e.workingLocked() {
		if o.req.Type == broker.MarketOrder {
			continue
		}
		px, hit := orderHit(o.req.Side, o.req.Type == broker.StopMarketOrder, o.req.Price, b)
		if hit {
			e.fillOrderLocked(o, px, b.Time)
		}
	}

	for _, sig := range e.signalsLocked() {
		p := e.positions[sig]
		if px, hit := stopHit(p.dir, p.stop, b); hit {
			e.bracketFillLocked(p, broker.RoleStop, px, b.Time)
			continue
		}
		if px, hit := stopHit(p.dir, p.trailStop, b); hit {
			e.bracketFillLocked(p, broker.RoleStop, px, b.Time)
			continue
		}
		if px, hit := targetHit(p.dir, p.target, b); hit {
			e.bracketFillLocked(p, broker.RoleTarget, px, b.Time)
			continue
		}
		p.ratchet(b)
	}

	e.bar = b
	e.quote = q
	e.revalueLocked()
}

func (e *Engine) workingLocked() []*order {
	var out []*order
	for _, o := range e.orders {
		if !o.status.Terminal() {
			out = append(out, o)
		}
	}
	slices.SortFunc(out, func(a, b *order) int { return a.seq - b.seq })
	return out
}

func (e *Engine) signalsLocked() []strategies.SignalID {
	return slices.SortedFunc(maps.Keys(e.positions), func(a, b strategies.SignalID) int {
		if a.Module != b.Module {
			return int(a.Module) - int(b.Module)
		}
		return int(a.Direction) - int(b.Direction)
	})
}

func (e *Engine) fillOrderLocked(o *order, px float64, at time.Time) {
	qty := o.req.Qty - o.filled
	o.filled += qty
	e.applyLocked(o.req.Signal, o.req.Side, qty, px)
	e.outbox = append(e.outbox, broker.Fill{
		OrderID: o.req.ID,
		Signal:  o.req.Signal,
		Role:    o.req.Role,
		Tier:    o.req.Tier,
		Side:    o.req.Side,
		Qty:     qty,
		Price:   px,
		Time:    at,
	})
	e.updateLocked(o, broker.Filled, "")
}

// bracketFillLocked closes the whole position through a bracket leg.
func (e *Engine) bracketFillLocked(p *position, role broker.Role, px float64, at time.Time) {
	side := p.dir.Opposite().Side()
	qty := p.qty
	e.applyLocked(p.sig, side, qty, px)
	e.outbox = append(e.outbox, broker.Fill{
		OrderID: "bracket-" + p.sig.String(),
		Signal:  p.sig,
		Role:    role,
		Side:    side,
		Qty:     qty,
		Price:   px,
		Time:    at,
	})
}

// applyLocked books a fill against the signal's position and cash.
func (e *Engine) applyLocked(sig strategies.SignalID, side market.Side, qty int, px float64) {
	e.acct.Cash -= e.commission * float64(qty)
	dir := side.Direction()

	p, ok := e.positions[sig]
	if !ok {
		e.positions[sig] = &position{sig: sig, dir: dir, qty: qty, avg: px}
		return
	}
	if dir == p.dir {
		total := p.qty + qty
		p.avg = (p.avg*float64(p.qty) + px*float64(qty)) / float64(total)
		p.qty = total
		return
	}

	closed := min(qty, p.qty)
	e.acct.Cash += (px - p.avg) * float64(p.dir) * e.meta.PointValue * float64(closed)
	p.qty -= closed
	if p.qty == 0 {
		delete(e.positions, sig)
	}
	if rest := qty - closed; rest > 0 {
		e.positions[sig] = &position{sig: sig, dir: dir, qty: rest, avg: px}
	}
}

func (e *Engine) revalueLocked() {
	u := 0.0
	for _, p := range e.positions {
		u += p.unrealized(e.bar.Close, e.meta)
	}
	e.acct.Unrealized = u
}

func (e *Engine) updateLocked(o *order, s broker.OrderStatus, reason string) {
	o.status = s
	e.outbox = append(e.outbox, broker.OrderUpdate{
		OrderID: o.req.ID,
		Signal:  o.req.Signal,
		Role:    o.req.Role,
		Status:  s,
		Qty:     o.req.Qty,
		Filled:  o.filled,
		Time:    e.now,
		Reason:  reason,
	})
}

// Position returns the venue's open quantity and average price for sig.
func (e *Engine) Position(sig strategies.SignalID) (int, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.positions[sig]
	if !ok {
		return 0, 0
	}
	return p.qty * int(p.dir), p.avg
}
