package market

import (
	"fmt"
	"math"
)

// InstrumentMeta describes a futures contract and its per-instrument limits.
type InstrumentMeta struct {
	Name       string
	TickSize   float64
	PointValue float64 // currency per 1.0 price move per contract

	MaxContracts   int
	SpreadMaxTicks int
	ATRMin, ATRMax float64 // 0,0 disables the clamp

	// K1Ticks is the minimum protective stop distance in ticks.
	K1Ticks int
}

// RoundToTick rounds price to the nearest tick.
func (m InstrumentMeta) RoundToTick(price float64) float64 {
	if m.TickSize <= 0 {
		return price
	}
	return math.Round(price/m.TickSize) * m.TickSize
}

// SpreadTicks returns the quoted spread in whole ticks.
func (m InstrumentMeta) SpreadTicks(q Quote) int {
	if m.TickSize <= 0 {
		return 0
	}
	return int(math.Round(q.Spread() / m.TickSize))
}

// MinStop is the K1 floor for stop distances in price units.
func (m InstrumentMeta) MinStop() float64 {
	return float64(m.K1Ticks) * m.TickSize
}

// ATRInRange reports whether atr lies inside the acceptable volatility band.
func (m InstrumentMeta) ATRInRange(atr float64) bool {
	if m.ATRMin == 0 && m.ATRMax == 0 {
		return true
	}
	return atr >= m.ATRMin && atr <= m.ATRMax
}

// Instruments holds the defaults for the contracts the strategy trades.
// Config may override caps, spread limits and ATR bands.
var Instruments = map[string]InstrumentMeta{
	"ES": {
		Name: "ES", TickSize: 0.25, PointValue: 50,
		MaxContracts: 3, SpreadMaxTicks: 2, ATRMin: 6, ATRMax: 50, K1Ticks: 8,
	},
	"NQ": {
		Name: "NQ", TickSize: 0.25, PointValue: 20,
		MaxContracts: 2, SpreadMaxTicks: 2, ATRMin: 20, ATRMax: 140, K1Ticks: 12,
	},
	"CL": {
		Name: "CL", TickSize: 0.01, PointValue: 1000,
		MaxContracts: 2, SpreadMaxTicks: 3, ATRMin: 0.25, ATRMax: 2.0, K1Ticks: 15,
	},
	"GC": {
		Name: "GC", TickSize: 0.1, PointValue: 100,
		MaxContracts: 2, SpreadMaxTicks: 3, ATRMin: 1.0, ATRMax: 15.0, K1Ticks: 12,
	},
	"MES": {
		Name: "MES", TickSize: 0.25, PointValue: 5,
		MaxContracts: 10, SpreadMaxTicks: 3, ATRMin: 6, ATRMax: 50, K1Ticks: 8,
	},
	"MNQ": {
		Name: "MNQ", TickSize: 0.25, PointValue: 2,
		MaxContracts: 10, SpreadMaxTicks: 3, ATRMin: 20, ATRMax: 140, K1Ticks: 12,
	},
}

// Lookup returns the metadata for name.
func Lookup(name string) (InstrumentMeta, error) {
	m, ok := Instruments[name]
	if !ok {
		return InstrumentMeta{}, fmt.Errorf("unknown instrument %q", name)
	}
	return m, nil
}
