package market

import "time"

// Bar is one closed OHLCV bar. Time is the bar close in venue time.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Range returns High-Low.
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// Quote is the inside market at the time of the last bar.
type Quote struct {
	Bid float64
	Ask float64
}

// Mid returns the mid price, or 0 if either side is missing.
func (q Quote) Mid() float64 {
	if q.Bid <= 0 || q.Ask <= 0 {
		return 0
	}
	return (q.Bid + q.Ask) / 2
}

// Spread returns Ask-Bid.
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// VWAP is an anchored volume-weighted average price and the close's
// z-score against it.
type VWAP struct {
	Value float64
	Z     float64
	// Slope is Value now minus Value thirty minutes ago.
	Slope float64
}

// Indicators are the per-bar indicator values the decision core consumes.
// They are computed by the host; the core never derives them itself.
type Indicators struct {
	ATR     float64 // ATR(14)
	ATRFast float64 // ATR(10)
	ATRSlow float64 // ATR(20)

	EMAFast           float64 // EMA(20)
	EMASlow           float64 // EMA(50)
	EMASlowSlope      float64 // EMA(50) now minus EMA(50) 30 bars ago
	EMASlowSlopeShort float64 // EMA(50) now minus EMA(50) 20 bars ago

	RSI2    float64
	ADX     float64
	CCI     float64
	CCIPrev float64

	// SessionVWAP is anchored at the 18:00 ET Globex open.
	SessionVWAP VWAP
	// OpenVWAP is anchored at the 09:30 ET cash open.
	OpenVWAP VWAP

	HighestHigh10 float64
	LowestLow10   float64
}

// Snapshot is the full market state handed to the core on every bar.
type Snapshot struct {
	Bar   Bar
	Prev  Bar
	Quote Quote
	Ind   Indicators
}

// Ready reports whether the snapshot carries a previous bar.
func (s Snapshot) Ready() bool {
	return !s.Prev.Time.IsZero()
}
