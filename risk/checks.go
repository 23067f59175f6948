package risk

import (
	"fmt"

	"github.com/rustyeddy/sessiontrader/market"
)

// Gate and lock reason codes. They appear verbatim in transition logs.
const (
	ReasonTDDHit         = "TDDHit"
	ReasonAbsHalt        = "AbsHalt"
	ReasonDailyCap       = "DailyCap"
	ReasonConsecLoss     = "ConsecLoss"
	ReasonPriorBreach    = "PriorBreach"
	ReasonManualUnlock   = "ManualUnlock"
	ReasonTDDCushion     = "TDDCushionBlock"
	ReasonAbsHaltCushion = "AbsHaltCushionBlock"
	ReasonNoTradeBlock   = "NoTradeBlock"
	ReasonLocked         = "Locked"
	ReasonHealthHold     = "HealthHold"
	ReasonVolClamp       = "VolClampGate"
	ReasonSpread         = "SpreadGate"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// First returns the first violation code, or "".
func (d Decision) First() string {
	if len(d.Violations) == 0 {
		return ""
	}
	return d.Violations[0].Code
}

// CheckMarket applies the per-instrument volatility and spread gates.
func CheckMarket(meta market.InstrumentMeta, atr float64, q market.Quote) Decision {
	d := Decision{Allowed: true}
	if !meta.ATRInRange(atr) {
		d.add(ReasonVolClamp,
			fmt.Sprintf("ATR %.2f outside [%.2f, %.2f]", atr, meta.ATRMin, meta.ATRMax))
	}
	if meta.SpreadMaxTicks > 0 {
		if n := meta.SpreadTicks(q); n > meta.SpreadMaxTicks {
			d.add(ReasonSpread,
				fmt.Sprintf("spread %d ticks > max %d", n, meta.SpreadMaxTicks))
		}
	}
	return d
}
