package risk

import (
	"fmt"
	"strings"
)

// Limits are the account-level breach thresholds, in account currency.
type Limits struct {
	// TrailingDrawdown locks when equity <= HWM - TrailingDrawdown.
	TrailingDrawdown float64 `yaml:"trailing_drawdown" json:"trailing_drawdown"`
	// AbsHaltDelta locks when equity <= max balance - AbsHaltDelta.
	AbsHaltDelta    float64 `yaml:"abs_halt_delta" json:"abs_halt_delta"`
	DailyLossCap    float64 `yaml:"daily_loss_cap" json:"daily_loss_cap"`
	MaxConsecLosses int     `yaml:"max_consec_losses" json:"max_consec_losses"`
	// Cushion refuses entries this far above either drawdown trigger.
	Cushion float64 `yaml:"cushion" json:"cushion"`

	EnableTDD     bool `yaml:"enable_tdd" json:"enable_tdd"`
	EnableAbsHalt bool `yaml:"enable_abs_halt" json:"enable_abs_halt"`
}

func DefaultLimits() Limits {
	return Limits{
		TrailingDrawdown: 2500,
		AbsHaltDelta:     2000,
		DailyLossCap:     700,
		MaxConsecLosses:  2,
		Cushion:          250,
		EnableTDD:        true,
		EnableAbsHalt:    true,
	}
}

func (l Limits) Validate() error {
	if l.TrailingDrawdown <= 0 {
		return fmt.Errorf("risk.trailing_drawdown must be > 0")
	}
	if l.AbsHaltDelta <= 0 {
		return fmt.Errorf("risk.abs_halt_delta must be > 0")
	}
	if l.DailyLossCap <= 0 {
		return fmt.Errorf("risk.daily_loss_cap must be > 0")
	}
	if l.MaxConsecLosses <= 0 {
		return fmt.Errorf("risk.max_consec_losses must be > 0")
	}
	if l.Cushion < 0 {
		return fmt.Errorf("risk.cushion must be >= 0")
	}
	if l.Cushion >= l.TrailingDrawdown || l.Cushion >= l.AbsHaltDelta {
		return fmt.Errorf("risk.cushion %.2f must be below both drawdown limits", l.Cushion)
	}
	return nil
}

// SizingMode selects how a stop distance becomes a contract count.
type SizingMode string

const (
	Fixed           SizingMode = "FIXED"
	RiskUSD         SizingMode = "RISK_USD"
	RiskPctEquity   SizingMode = "RISK_PCT_EQUITY"
	KellyFractional SizingMode = "KELLY_FRACTIONAL"
)

// ParseSizingMode accepts the mode names case-insensitively.
func ParseSizingMode(s string) (SizingMode, error) {
	m := SizingMode(strings.ToUpper(strings.TrimSpace(s)))
	switch m {
	case Fixed, RiskUSD, RiskPctEquity, KellyFractional:
		return m, nil
	}
	return "", fmt.Errorf("unknown sizing mode %q", s)
}

type Sizing struct {
	Mode     SizingMode `yaml:"mode" json:"mode"`
	FixedQty int        `yaml:"fixed_qty" json:"fixed_qty"`
	RiskUSD  float64    `yaml:"risk_usd" json:"risk_usd"`
	// RiskPct is a percentage: 0.5 means half a percent of equity.
	RiskPct       float64 `yaml:"risk_pct" json:"risk_pct"`
	KellyFraction float64 `yaml:"kelly_fraction" json:"kelly_fraction"`
}

func DefaultSizing() Sizing {
	return Sizing{
		Mode:          RiskUSD,
		FixedQty:      1,
		RiskUSD:       150,
		RiskPct:       0.5,
		KellyFraction: 0.25,
	}
}

func (s Sizing) Validate() error {
	m, err := ParseSizingMode(string(s.Mode))
	if err != nil {
		return fmt.Errorf("sizing.mode: %w", err)
	}
	switch m {
	case Fixed:
		if s.FixedQty <= 0 {
			return fmt.Errorf("sizing.fixed_qty must be > 0")
		}
	case RiskUSD:
		if s.RiskUSD <= 0 {
			return fmt.Errorf("sizing.risk_usd must be > 0")
		}
	case RiskPctEquity:
		if s.RiskPct <= 0 || s.RiskPct > 100 {
			return fmt.Errorf("sizing.risk_pct must be in (0, 100]")
		}
	case KellyFractional:
		if s.KellyFraction <= 0 || s.KellyFraction > 1 {
			return fmt.Errorf("sizing.kelly_fraction must be in (0, 1]")
		}
	}
	return nil
}
