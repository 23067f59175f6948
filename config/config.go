// Package config loads the trader's YAML (or JSON) configuration and turns
// its string times and durations into typed values once at startup.
package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/sessiontrader/health"
	"github.com/rustyeddy/sessiontrader/market"
	"github.com/rustyeddy/sessiontrader/orders"
	"github.com/rustyeddy/sessiontrader/risk"
	"github.com/rustyeddy/sessiontrader/router"
	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/strategies"
)

// Config is the complete trader configuration.
type Config struct {
	Account    AccountConfig     `json:"account" yaml:"account"`
	Instrument InstrumentConfig  `json:"instrument" yaml:"instrument"`
	Schedule   ScheduleConfig    `json:"schedule" yaml:"schedule"`
	Router     RouterConfig      `json:"router" yaml:"router"`
	Risk       RiskConfig        `json:"risk" yaml:"risk"`
	Sizing     risk.Sizing       `json:"sizing" yaml:"sizing"`
	Execution  ExecutionConfig   `json:"execution" yaml:"execution"`
	Health     HealthConfig      `json:"health" yaml:"health"`
	Modules    strategies.Params `json:"modules" yaml:"modules"`
	Journal    JournalConfig     `json:"journal" yaml:"journal"`
	Log        LogConfig         `json:"log" yaml:"log"`
	Metrics    MetricsConfig     `json:"metrics" yaml:"metrics"`
}

// AccountConfig seeds the paper account used by replays.
type AccountConfig struct {
	ID       string  `json:"id" yaml:"id"`
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
	// Commission is charged per contract per fill.
	Commission float64 `json:"commission" yaml:"commission"`
}

// InstrumentConfig picks a contract and optionally overrides its limits.
// Zero overrides keep the built-in value.
type InstrumentConfig struct {
	Symbol         string  `json:"symbol" yaml:"symbol"`
	MaxContracts   int     `json:"max_contracts,omitempty" yaml:"max_contracts,omitempty"`
	SpreadMaxTicks int     `json:"spread_max_ticks,omitempty" yaml:"spread_max_ticks,omitempty"`
	ATRMin         float64 `json:"atr_min,omitempty" yaml:"atr_min,omitempty"`
	ATRMax         float64 `json:"atr_max,omitempty" yaml:"atr_max,omitempty"`
	K1Ticks        int     `json:"k1_ticks,omitempty" yaml:"k1_ticks,omitempty"`
}

// SessionRange is one configured session window, "HH:MM" local.
type SessionRange struct {
	Session string `json:"session" yaml:"session"`
	Start   string `json:"start" yaml:"start"`
	End     string `json:"end" yaml:"end"`
}

type ScheduleConfig struct {
	Timezone string `json:"timezone" yaml:"timezone"`
	// AutoFlat starts the daily no-trade window; Reopen ends it.
	AutoFlat   string `json:"auto_flat" yaml:"auto_flat"`
	Reopen     string `json:"reopen" yaml:"reopen"`
	DailyReset string `json:"daily_reset" yaml:"daily_reset"`
	// EdgeRecompute is when the edge tracker re-ranks modules.
	EdgeRecompute string `json:"edge_recompute" yaml:"edge_recompute"`
	// Sessions replaces the built-in session map when set.
	Sessions []SessionRange `json:"sessions,omitempty" yaml:"sessions,omitempty"`
}

type RouterConfig struct {
	Adaptive     bool `json:"adaptive" yaml:"adaptive"`
	LookbackDays int  `json:"lookback_days" yaml:"lookback_days"`
	// Forced overrides the module forced into a session, by name.
	Forced map[string]string `json:"forced,omitempty" yaml:"forced,omitempty"`
}

type RiskConfig struct {
	risk.Limits `yaml:",inline"`
	// Persist keeps HWM, max balance and the breach marker across runs.
	Persist             bool `json:"persist" yaml:"persist"`
	LockNextRunOnBreach bool `json:"lock_next_run_on_breach" yaml:"lock_next_run_on_breach"`
}

type ExecutionConfig struct {
	Persist     string  `json:"persist" yaml:"persist"`
	MaxQueue    string  `json:"max_queue" yaml:"max_queue"`
	BETriggerR  float64 `json:"be_trigger_r" yaml:"be_trigger_r"`
	BEOffsetATR float64 `json:"be_offset_atr" yaml:"be_offset_atr"`
}

type HealthConfig struct {
	StaleAfter      string `json:"stale_after" yaml:"stale_after"`
	ResumeWithin    string `json:"resume_within" yaml:"resume_within"`
	DisconnectAfter string `json:"disconnect_after" yaml:"disconnect_after"`
	Stabilize       string `json:"stabilize" yaml:"stabilize"`
}

type JournalConfig struct {
	Type            string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	DBPath          string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	TradesFile      string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	TransitionsFile string `json:"transitions_file,omitempty" yaml:"transitions_file,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "json" or "console"
	// Throttle is the minimum gap between two logs of the same gate reason.
	Throttle string `json:"throttle" yaml:"throttle"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set, e.g. ":9102".
	Addr string `json:"addr" yaml:"addr"`
}

// Resolved holds the typed values derived from a Config.
type Resolved struct {
	Clock         *session.Clock
	Classifier    *session.Classifier
	AutoFlat      session.TimeOfDay
	Reopen        session.TimeOfDay
	DailyReset    session.TimeOfDay
	EdgeRecompute session.TimeOfDay
	Forced        map[session.Session]strategies.Module
	Instrument    market.InstrumentMeta
	Orders        orders.Config
	Health        health.Config
	Throttle      time.Duration
}

// LoadFromFile loads configuration over the defaults. YAML is tried first,
// then JSON. The result is validated.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks every section and that the typed values resolve.
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}
	if c.Account.Commission < 0 {
		return fmt.Errorf("account.commission must be >= 0")
	}
	if c.Router.LookbackDays <= 0 {
		return fmt.Errorf("router.lookback_days must be > 0")
	}
	if err := c.Risk.Limits.Validate(); err != nil {
		return err
	}
	if err := c.Sizing.Validate(); err != nil {
		return err
	}
	if c.Execution.BETriggerR <= 0 {
		return fmt.Errorf("execution.be_trigger_r must be > 0")
	}
	if c.Execution.BEOffsetATR < 0 {
		return fmt.Errorf("execution.be_offset_atr must be >= 0")
	}
	if err := c.Modules.Validate(); err != nil {
		return err
	}
	switch c.Journal.Type {
	case "none", "":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.TransitionsFile == "" {
			return fmt.Errorf("journal trades_file and transitions_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}
	if c.Risk.Persist && c.Journal.Type != "sqlite" {
		return fmt.Errorf("risk.persist needs the sqlite journal")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be 'json' or 'console'")
	}
	_, err := c.Resolve()
	return err
}

// Resolve parses times, durations and names. Any malformed value is an
// error; nothing falls back to a default.
func (c *Config) Resolve() (*Resolved, error) {
	var (
		r   Resolved
		err error
	)
	if r.Clock, err = session.NewClock(c.Schedule.Timezone); err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	for _, t := range []struct {
		name string
		in   string
		out  *session.TimeOfDay
	}{
		{"auto_flat", c.Schedule.AutoFlat, &r.AutoFlat},
		{"reopen", c.Schedule.Reopen, &r.Reopen},
		{"daily_reset", c.Schedule.DailyReset, &r.DailyReset},
		{"edge_recompute", c.Schedule.EdgeRecompute, &r.EdgeRecompute},
	} {
		if *t.out, err = session.ParseTimeOfDay(t.in); err != nil {
			return nil, fmt.Errorf("schedule.%s: %w", t.name, err)
		}
	}

	ranges := session.DefaultRanges(r.AutoFlat)
	if len(c.Schedule.Sessions) > 0 {
		if ranges, err = parseRanges(c.Schedule.Sessions); err != nil {
			return nil, err
		}
	}
	if r.Classifier, err = session.NewClassifier(ranges); err != nil {
		return nil, fmt.Errorf("schedule.sessions: %w", err)
	}

	r.Forced = router.DefaultForced()
	for _, k := range slices.Sorted(maps.Keys(c.Router.Forced)) {
		s, err := session.Parse(k)
		if err != nil || s == session.None {
			return nil, fmt.Errorf("router.forced: unknown session %q", k)
		}
		m, err := strategies.ParseModule(c.Router.Forced[k])
		if err != nil {
			return nil, fmt.Errorf("router.forced.%s: %w", k, err)
		}
		r.Forced[s] = m
	}

	if r.Instrument, err = c.Instrument.meta(); err != nil {
		return nil, err
	}

	r.Orders = orders.Config{
		BETriggerR:  c.Execution.BETriggerR,
		BEOffsetATR: c.Execution.BEOffsetATR,
	}
	r.Health = health.Config{}
	for _, d := range []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"execution.persist", c.Execution.Persist, &r.Orders.Persist},
		{"execution.max_queue", c.Execution.MaxQueue, &r.Orders.MaxQueue},
		{"health.stale_after", c.Health.StaleAfter, &r.Health.StaleAfter},
		{"health.resume_within", c.Health.ResumeWithin, &r.Health.ResumeWithin},
		{"health.disconnect_after", c.Health.DisconnectAfter, &r.Health.DisconnectAfter},
		{"health.stabilize", c.Health.Stabilize, &r.Health.Stabilize},
		{"log.throttle", c.Log.Throttle, &r.Throttle},
	} {
		if *d.out, err = time.ParseDuration(d.in); err != nil {
			return nil, fmt.Errorf("%s: %w", d.name, err)
		}
		if *d.out <= 0 {
			return nil, fmt.Errorf("%s must be > 0", d.name)
		}
	}
	if r.Orders.MaxQueue <= r.Orders.Persist {
		return nil, fmt.Errorf("execution.max_queue must be longer than execution.persist")
	}
	return &r, nil
}

func parseRanges(in []SessionRange) ([]session.Range, error) {
	out := make([]session.Range, 0, len(in))
	for i, sr := range in {
		s, err := session.Parse(sr.Session)
		if err != nil || s == session.None {
			return nil, fmt.Errorf("schedule.sessions[%d]: unknown session %q", i, sr.Session)
		}
		start, err := session.ParseTimeOfDay(sr.Start)
		if err != nil {
			return nil, fmt.Errorf("schedule.sessions[%d].start: %w", i, err)
		}
		end, err := session.ParseTimeOfDay(sr.End)
		if err != nil {
			return nil, fmt.Errorf("schedule.sessions[%d].end: %w", i, err)
		}
		out = append(out, session.Range{Session: s, Start: start, End: end})
	}
	return out, nil
}

func (ic InstrumentConfig) meta() (market.InstrumentMeta, error) {
	m, err := market.Lookup(ic.Symbol)
	if err != nil {
		return m, fmt.Errorf("instrument.symbol: %w", err)
	}
	if ic.MaxContracts < 0 || ic.SpreadMaxTicks < 0 || ic.K1Ticks < 0 {
		return m, fmt.Errorf("instrument overrides must be >= 0")
	}
	if ic.MaxContracts > 0 {
		m.MaxContracts = ic.MaxContracts
	}
	if ic.SpreadMaxTicks > 0 {
		m.SpreadMaxTicks = ic.SpreadMaxTicks
	}
	if ic.K1Ticks > 0 {
		m.K1Ticks = ic.K1Ticks
	}
	if ic.ATRMin > 0 || ic.ATRMax > 0 {
		if ic.ATRMax <= ic.ATRMin {
			return m, fmt.Errorf("instrument.atr_max must exceed atr_min")
		}
		m.ATRMin, m.ATRMax = ic.ATRMin, ic.ATRMax
	}
	return m, nil
}

// Default returns the production configuration for ES on a 50k account.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:         "SIM-001",
			Currency:   "USD",
			Balance:    50000,
			Commission: 2.25,
		},
		Instrument: InstrumentConfig{Symbol: "ES"},
		Schedule: ScheduleConfig{
			Timezone:      "America/New_York",
			AutoFlat:      "16:55",
			Reopen:        "18:00",
			DailyReset:    "17:05",
			EdgeRecompute: "17:10",
		},
		Router: RouterConfig{Adaptive: false, LookbackDays: 60},
		Risk:   RiskConfig{Limits: risk.DefaultLimits()},
		Sizing: risk.DefaultSizing(),
		Execution: ExecutionConfig{
			Persist:     "15s",
			MaxQueue:    "45s",
			BETriggerR:  1.0,
			BEOffsetATR: 0.2,
		},
		Health: HealthConfig{
			StaleAfter:      "3s",
			ResumeWithin:    "1s",
			DisconnectAfter: "5s",
			Stabilize:       "2s",
		},
		Modules: strategies.DefaultParams(),
		Journal: JournalConfig{Type: "sqlite", DBPath: "./sessiontrader.db"},
		Log:     LogConfig{Level: "info", Format: "json", Throttle: "1m"},
	}
}
