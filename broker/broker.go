// Package broker is the contract between the decision core and whatever
// executes its orders. All actions are fire-and-forget: a nil error means
// the request was accepted, and the outcome arrives later as a Fill or an
// OrderUpdate.
package broker

import (
	"context"
	"fmt"

	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/strategies"
)

type Broker interface {
	GetAccount(ctx context.Context) (Account, error)

	Submit(ctx context.Context, req OrderRequest) error
	Cancel(ctx context.Context, orderID string) error

	// SetStopLoss, SetTrailingStop and SetProfitTarget attach a bracket
	// leg to the signal's position. A zero price or distance removes it.
	SetStopLoss(ctx context.Context, sig strategies.SignalID, price float64) error
	SetTrailingStop(ctx context.Context, sig strategies.SignalID, distance float64) error
	SetProfitTarget(ctx context.Context, sig strategies.SignalID, price float64) error
}

// Account is the cash and open P&L in account currency.
type Account struct {
	ID         string
	Currency   string
	Cash       float64
	Unrealized float64
}

// Equity is cash plus open P&L.
func (a Account) Equity() float64 {
	return a.Cash + a.Unrealized
}

// OrderType is the venue order type.
type OrderType uint8

const (
	MarketOrder OrderType = iota
	StopMarketOrder
	LimitOrder
)

func (t OrderType) String() string {
	switch t {
	case MarketOrder:
		return "MARKET"
	case StopMarketOrder:
		return "STOP_MARKET"
	case LimitOrder:
		return "LIMIT"
	default:
		return fmt.Sprintf("OrderType(%d)", uint8(t))
	}
}

// TypeFor maps a module's entry kind to an order type.
func TypeFor(k strategies.OrderKind) OrderType {
	switch k {
	case strategies.StopMarket:
		return StopMarketOrder
	case strategies.Limit:
		return LimitOrder
	default:
		return MarketOrder
	}
}

// Role says what an order does for its signal.
type Role uint8

const (
	RoleEntry Role = iota
	RoleExit
	RoleStop
	RoleTarget
)

func (r Role) String() string {
	switch r {
	case RoleEntry:
		return "ENTRY"
	case RoleExit:
		return "EXIT"
	case RoleStop:
		return "STOP"
	case RoleTarget:
		return "TARGET"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// OrderRequest is an order intent. ID is assigned by the caller.
type OrderRequest struct {
	ID     string
	Signal strategies.SignalID
	Role   Role
	// Tier is 1-based for tier targets, 0 otherwise.
	Tier  int
	Side  market.Side
	Type  OrderType
	Qty   int
	Price float64
}
