package observ

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/sessiontrader/health"
	"github.com/rustyeddy/sessiontrader/orders"
	"github.com/rustyeddy/sessiontrader/risk"
)

// NewLogger builds the process logger. format is "json" or "console".
func NewLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
	}
	switch format {
	case "", "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("log format %q: want json or console", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// warnReasons are logged at warn level: anything that flattens or locks.
var warnReasons = map[string]bool{
	risk.ReasonTDDHit:         true,
	risk.ReasonAbsHalt:        true,
	risk.ReasonDailyCap:       true,
	risk.ReasonConsecLoss:     true,
	risk.ReasonPriorBreach:    true,
	orders.ReasonOrderReject:  true,
	orders.ReasonActionFailed: true,
	orders.ReasonFlatten:      true,
	orders.ReasonOrphanFill:   true,
	health.ReasonDataStale:    true,
	health.ReasonDisconnect:   true,
}

// LogSink writes transitions as structured log lines.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "transitions").Logger()}
}

func (s *LogSink) Record(tr Transition) error {
	e := s.log.Info()
	if warnReasons[tr.Reason] {
		e = s.log.Warn()
	}
	e = e.Str("id", tr.ID).
		Time("at", tr.Time).
		Str("reason", tr.Reason).
		Str("module", tr.Module.String()).
		Str("session", tr.Session.String()).
		Bool("adaptive", tr.Adaptive).
		Float64("score", tr.Score)
	if !tr.Signal.IsZero() {
		e = e.Str("signal", tr.Signal.String())
	}
	if tr.Size != 0 {
		e = e.Int("size", tr.Size).
			Float64("entry", tr.Entry).
			Float64("stop", tr.Stop).
			Float64("target", tr.Target)
	}
	if tr.PnL != 0 {
		e = e.Float64("pnl", tr.PnL)
	}
	if tr.Detail != "" {
		e = e.Str("detail", tr.Detail)
	}
	r := tr.Risk
	e.Dict("risk", zerolog.Dict().
		Str("state", r.State.String()).
		Str("lock_reason", r.LockReason).
		Strs("holds", r.Holds).
		Float64("hwm", r.HWM).
		Float64("max_balance", r.MaxBalance).
		Float64("equity", r.Equity).
		Float64("unrealized", r.Unrealized).
		Float64("daily_realized", r.DailyRealized).
		Int("trades_today", r.TradesToday).
		Int("consec_losses", r.ConsecLosses)).
		Msg("transition")
	return nil
}
