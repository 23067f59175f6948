package broker

import (
	"fmt"
	"time"

	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/strategies"
)

// Fill is one execution.
type Fill struct {
	OrderID string
	Signal  strategies.SignalID
	Role    Role
	Tier    int
	Side    market.Side
	Qty     int
	Price   float64
	Time    time.Time
}

// OrderStatus is the lifecycle state reported for an order.
type OrderStatus uint8

const (
	Submitted OrderStatus = iota
	Working
	PartFilled
	Filled
	Rejected
	Canceled
)

func (s OrderStatus) String() string {
	switch s {
	case Submitted:
		return "SUBMITTED"
	case Working:
		return "WORKING"
	case PartFilled:
		return "PART_FILLED"
	case Filled:
		return "FILLED"
	case Rejected:
		return "REJECTED"
	case Canceled:
		return "CANCELED"
	default:
		return fmt.Sprintf("OrderStatus(%d)", uint8(s))
	}
}

// Terminal reports whether no further fills can arrive for the order.
func (s OrderStatus) Terminal() bool {
	return s == Filled || s == Rejected || s == Canceled
}

// OrderUpdate is an order state change.
type OrderUpdate struct {
	OrderID string
	Signal  strategies.SignalID
	Role    Role
	Status  OrderStatus
	Qty     int
	Filled  int
	Time    time.Time
	Reason  string
}

// Connectivity reports the venue connection state.
type Connectivity struct {
	Connected bool
	Time      time.Time
}

// Event is anything a venue reports back: a Fill, an OrderUpdate or a
// Connectivity change.
type Event interface {
	EventTime() time.Time
}

func (f Fill) EventTime() time.Time         { return f.Time }
func (u OrderUpdate) EventTime() time.Time  { return u.Time }
func (c Connectivity) EventTime() time.Time { return c.Time }
