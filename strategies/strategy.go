// Package strategies holds the eight session signal modules behind one
// capability contract. A module looks at a View of the current bar and
// either proposes an entry, asks for its open position to be closed, or
// does nothing. Sizing, gating and order handling live elsewhere.
package strategies

import (
	"time"

	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/session"
)

// Signal is implemented by every module.
type Signal interface {
	Module() Module
	// Evaluate is called for the routed module while flat, and for the
	// owning module while a position is open.
	Evaluate(v *View) Decision
}

// Observer is implemented by modules that build state (opening ranges,
// re-arm flags) from every bar regardless of routing.
type Observer interface {
	Observe(v *View)
}

// EntryListener is implemented by modules that need to know an entry they
// proposed was accepted and submitted.
type EntryListener interface {
	Entered(in Intent, at time.Time)
}

// OrderKind is the entry order type.
type OrderKind uint8

const (
	Market OrderKind = iota
	StopMarket
	Limit
)

func (k OrderKind) String() string {
	switch k {
	case Market:
		return "MARKET"
	case StopMarket:
		return "STOP_MARKET"
	case Limit:
		return "LIMIT"
	default:
		return "UNKNOWN"
	}
}

// Position is the read-only view of the open position a module may own.
type Position struct {
	Signal      SignalID
	Qty         int
	AvgPrice    float64
	EntryTime   time.Time
	TiersFilled int
}

// Open reports whether a position is held.
func (p Position) Open() bool {
	return p.Qty > 0
}

// View is everything a module is allowed to see on one bar.
type View struct {
	market.Snapshot

	Local      time.Time
	TOD        session.TimeOfDay
	Session    session.Session
	Instrument market.InstrumentMeta
	Position   Position
	// Pending is true while an entry order is working.
	Pending bool
}

// Holds reports whether the open position belongs to module m.
func (v *View) Holds(m Module) bool {
	return v.Position.Open() && v.Position.Signal.Module == m
}

// Flat reports whether there is neither a position nor a working entry.
func (v *View) Flat() bool {
	return !v.Position.Open() && !v.Pending
}

// Tiers describes a multi-target exit. Offsets are price distances from the
// average entry fill; Weights split the filled quantity.
type Tiers struct {
	Offsets []float64
	Weights []float64
}

// Intent is a proposed entry. Prices are already rounded to tick.
type Intent struct {
	Signal SignalID
	Kind   OrderKind
	// Price is the stop or limit trigger; the reference close for market
	// entries.
	Price        float64
	StopDistance float64
	// Target is an absolute profit target, 0 for none.
	Target float64
	Tiers  *Tiers
	// TrailDistance arms a trailing stop with the protective stop.
	TrailDistance float64
	// ResidualTrail arms a trailing stop on the remainder after the first
	// tier fills.
	ResidualTrail float64
	// MaxHold force-closes the position after this long unless a tier has
	// filled. Zero disables the timeout.
	MaxHold time.Duration

	Reason string
	Z      float64
	Slope  float64
}

// StopPrice is the protective stop implied by entering at Price.
func (in Intent) StopPrice() float64 {
	return in.Price - float64(in.Signal.Direction)*in.StopDistance
}

// Exit asks for the module's open position to be closed at market.
type Exit struct {
	Reason string
	Price  float64
	Z      float64
}

// Decision is the outcome of one Evaluate call. At most one field is set.
type Decision struct {
	Entry *Intent
	Exit  *Exit
}

// None reports whether the module has nothing to do.
func (d Decision) None() bool {
	return d.Entry == nil && d.Exit == nil
}

// stopDistance floors a module's stop distance at the instrument's K1
// minimum.
func stopDistance(v *View, dist float64) float64 {
	if k1 := v.Instrument.MinStop(); dist < k1 {
		return k1
	}
	return dist
}

func enter(m Module, d market.Direction) SignalID {
	return SignalID{Module: m, Direction: d}
}
