package strategies

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

type MRAsiaParams struct {
	Z          float64 `yaml:"z" json:"z"`
	RSI2Long   float64 `yaml:"rsi2_long" json:"rsi2_long"`
	RSI2Short  float64 `yaml:"rsi2_short" json:"rsi2_short"`
	ExitRSI2   float64 `yaml:"exit_rsi2" json:"exit_rsi2"`
	StopATR    float64 `yaml:"stop_atr" json:"stop_atr"`
	TimeoutMin int     `yaml:"timeout_min" json:"timeout_min"`
	// RearmZ is how close to the AVWAP z must return before the next
	// entry in the same direction is allowed.
	RearmZ float64 `yaml:"rearm_z" json:"rearm_z"`
}

type BOLondonParams struct {
	ORStart    string  `yaml:"or_start" json:"or_start"`
	OREnd      string  `yaml:"or_end" json:"or_end"`
	TargetMult float64 `yaml:"target_mult" json:"target_mult"`
	TrailATR   float64 `yaml:"trail_atr" json:"trail_atr"`
	TimeoutMin int     `yaml:"timeout_min" json:"timeout_min"`
}

type TPEUParams struct {
	StopATR       float64 `yaml:"stop_atr" json:"stop_atr"`
	ChandelierATR float64 `yaml:"chandelier_atr" json:"chandelier_atr"`
	CCILevel      float64 `yaml:"cci_level" json:"cci_level"`
}

type MRVWAPParams struct {
	Z          float64 `yaml:"z" json:"z"`
	ADXMax     float64 `yaml:"adx_max" json:"adx_max"`
	StopATR    float64 `yaml:"stop_atr" json:"stop_atr"`
	TimeoutMin int     `yaml:"timeout_min" json:"timeout_min"`
}

type AVPreParams struct {
	PullbackATR float64 `yaml:"pullback_atr" json:"pullback_atr"`
	StopATR     float64 `yaml:"stop_atr" json:"stop_atr"`
	ExitATR     float64 `yaml:"exit_atr" json:"exit_atr"`
	ExitAt      string  `yaml:"exit_at" json:"exit_at"`
}

type ORBUSParams struct {
	PrimaryMin   int       `yaml:"or_primary_min" json:"or_primary_min"`
	AlternateMin int       `yaml:"or_alternate_min" json:"or_alternate_min"`
	SwitchPctl   float64   `yaml:"switch_pctl" json:"switch_pctl"`
	History      int       `yaml:"atr_history" json:"atr_history"`
	TimeoutMin   int       `yaml:"timeout_min" json:"timeout_min"`
	Weights      []float64 `yaml:"weights" json:"weights"`
	TargetMults  []float64 `yaml:"target_mults" json:"target_mults"`
	ResidualATR  float64   `yaml:"residual_trail_atr" json:"residual_trail_atr"`
}

type MRMidParams struct {
	Z          float64 `yaml:"z" json:"z"`
	ADXMax     float64 `yaml:"adx_max" json:"adx_max"`
	StopATR    float64 `yaml:"stop_atr" json:"stop_atr"`
	TimeoutMin int     `yaml:"timeout_min" json:"timeout_min"`
}

type TCPHParams struct {
	StopATR  float64 `yaml:"stop_atr" json:"stop_atr"`
	TrailATR float64 `yaml:"trail_atr" json:"trail_atr"`
}

// Params carries the tunables of every module.
type Params struct {
	MRAsia   MRAsiaParams   `yaml:"mr_asia" json:"mr_asia"`
	BOLondon BOLondonParams `yaml:"bo_london" json:"bo_london"`
	TPEU     TPEUParams     `yaml:"tp_eu" json:"tp_eu"`
	MRVWAP   MRVWAPParams   `yaml:"mr_vwap" json:"mr_vwap"`
	AVPre    AVPreParams    `yaml:"av_pre" json:"av_pre"`
	ORBUS    ORBUSParams    `yaml:"orb_us" json:"orb_us"`
	MRMid    MRMidParams    `yaml:"mr_mid" json:"mr_mid"`
	TCPH     TCPHParams     `yaml:"tc_ph" json:"tc_ph"`
}

// DefaultParams returns the production tunables.
func DefaultParams() Params {
	return Params{
		MRAsia: MRAsiaParams{
			Z: 2.0, RSI2Long: 10, RSI2Short: 90, ExitRSI2: 80,
			StopATR: 1.5, TimeoutMin: 90, RearmZ: 0.5,
		},
		BOLondon: BOLondonParams{
			ORStart: "03:00", OREnd: "03:30",
			TargetMult: 1.5, TrailATR: 0.8, TimeoutMin: 120,
		},
		TPEU: TPEUParams{StopATR: 1.8, ChandelierATR: 2.5, CCILevel: 100},
		MRVWAP: MRVWAPParams{
			Z: 1.6, ADXMax: 18, StopATR: 1.3, TimeoutMin: 120,
		},
		AVPre: AVPreParams{
			PullbackATR: 0.5, StopATR: 1.2, ExitATR: 0.75, ExitAt: "09:25",
		},
		ORBUS: ORBUSParams{
			PrimaryMin: 15, AlternateMin: 30, SwitchPctl: 80, History: 60,
			TimeoutMin:  60,
			Weights:     []float64{0.40, 0.35, 0.25},
			TargetMults: []float64{1.0, 1.5, 2.0},
			ResidualATR: 0.7,
		},
		MRMid: MRMidParams{Z: 1.6, ADXMax: 18, StopATR: 1.3, TimeoutMin: 120},
		TCPH:  TCPHParams{StopATR: 1.5, TrailATR: 1.0},
	}
}

// Validate rejects non-positive multipliers and mismatched tier settings.
func (p Params) Validate() error {
	pos := map[string]float64{
		"mr_asia.z":               p.MRAsia.Z,
		"mr_asia.stop_atr":        p.MRAsia.StopATR,
		"bo_london.target_mult":   p.BOLondon.TargetMult,
		"tp_eu.stop_atr":          p.TPEU.StopATR,
		"tp_eu.chandelier_atr":    p.TPEU.ChandelierATR,
		"mr_vwap.z":               p.MRVWAP.Z,
		"mr_vwap.stop_atr":        p.MRVWAP.StopATR,
		"av_pre.stop_atr":         p.AVPre.StopATR,
		"orb_us.switch_pctl":      p.ORBUS.SwitchPctl,
		"mr_mid.z":                p.MRMid.Z,
		"mr_mid.stop_atr":         p.MRMid.StopATR,
		"tc_ph.stop_atr":          p.TCPH.StopATR,
		"tc_ph.trail_atr":         p.TCPH.TrailATR,
		"orb_us.or_primary_min":   float64(p.ORBUS.PrimaryMin),
		"orb_us.or_alternate_min": float64(p.ORBUS.AlternateMin),
		"orb_us.atr_history":      float64(p.ORBUS.History),
	}
	for _, k := range slices.Sorted(maps.Keys(pos)) {
		if pos[k] <= 0 {
			return fmt.Errorf("modules.%s must be > 0", k)
		}
	}
	if p.ORBUS.SwitchPctl > 100 {
		return fmt.Errorf("modules.orb_us.switch_pctl must be <= 100")
	}
	if len(p.ORBUS.Weights) != 3 || len(p.ORBUS.TargetMults) != 3 {
		return fmt.Errorf("modules.orb_us: need 3 weights and 3 target_mults, got %d/%d",
			len(p.ORBUS.Weights), len(p.ORBUS.TargetMults))
	}
	sum := 0.0
	for _, w := range p.ORBUS.Weights {
		if w <= 0 {
			return fmt.Errorf("modules.orb_us.weights must be > 0")
		}
		sum += w
	}
	if sum > 1.0+1e-9 {
		return fmt.Errorf("modules.orb_us.weights sum to %.2f > 1", sum)
	}
	return nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
