package risk

import (
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/sessiontrader/market"
)

// Budget returns the currency amount the mode allows to lose on one trade,
// or 0 for FIXED.
func (s Sizing) Budget(equity float64) float64 {
	switch s.Mode {
	case RiskUSD:
		return s.RiskUSD
	case RiskPctEquity:
		return equity * s.RiskPct / 100
	case KellyFractional:
		return equity * s.KellyFraction
	default:
		return 0
	}
}

// Size converts a stop distance in price units into a contract count,
// floored and clamped to the instrument cap. Zero means do not enter.
func (s Sizing) Size(stopDistance, equity float64, meta market.InstrumentMeta) int {
	if stopDistance <= 0 {
		return 0
	}
	var qty int64
	if s.Mode == Fixed {
		qty = int64(s.FixedQty)
	} else {
		perContract := decimal.NewFromFloat(stopDistance).Mul(decimal.NewFromFloat(meta.PointValue))
		if !perContract.IsPositive() {
			return 0
		}
		qty = decimal.NewFromFloat(s.Budget(equity)).Div(perContract).Floor().IntPart()
	}
	if meta.MaxContracts > 0 && qty > int64(meta.MaxContracts) {
		qty = int64(meta.MaxContracts)
	}
	if qty < 1 {
		return 0
	}
	return int(qty)
}

// InitialRisk is the currency loss if the protective stop is hit.
func InitialRisk(stopDistance float64, qty int, meta market.InstrumentMeta) float64 {
	return stopDistance * meta.PointValue * float64(qty)
}
