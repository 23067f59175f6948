package orders

import (
	"fmt"
	"time"

	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/strategies"
)

// Reason codes emitted by the manager.
const (
	ReasonEntryFill      = "EntryFill"
	ReasonOrphanFill     = "OrphanFill"
	ReasonSurplusExit    = "SurplusExit"
	ReasonTargetsPlaced  = "TargetsPlaced"
	ReasonExitTP         = "ExitTP"
	ReasonExitSL         = "ExitSL"
	ReasonTrailStart     = "TrailStart"
	ReasonBracketCleared = "BracketCleared"
	ReasonMoveStopBE     = "MoveStopBE"
	ReasonTimeout        = "Timeout"
	ReasonSessionEnd     = "SessionEndExit"
	ReasonQueueMIT       = "QueueMIT"
	ReasonQueueCancel    = "QueueCancel"
	ReasonEntryCanceled  = "EntryCanceled"
	ReasonOrderReject    = "OrderReject"
	ReasonFlatten        = "Flatten"
	ReasonTradeClosed    = "TradeClosed"
	ReasonActionFailed   = "ActionFailed"
)

// TierReason is the exit reason for a fill of tier n (1-based).
func TierReason(n int) string {
	return fmt.Sprintf("ExitTP_T%d", n)
}

// Event is something the manager did or observed. The caller logs it; the
// manager keeps no logger of its own.
type Event struct {
	Reason string
	Signal strategies.SignalID
	Time   time.Time

	Qty    int
	Price  float64
	Stop   float64
	Target float64
	// PnL is set on closing fills and on TradeClosed.
	PnL float64
	// Fill marks events caused by an execution rather than a request.
	Fill bool

	Detail string
	Err    error
	// Trade is set on TradeClosed when the trade qualifies for the edge
	// window. CloseTime is in venue time.
	Trade *edge.TradeRecord
}
