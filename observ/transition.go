// Package observ records state transitions of the trading core. Every
// transition carries the risk snapshot at the moment it happened and fans
// out to a structured log, Prometheus metrics and any journal sinks.
package observ

import (
	"time"

	"github.com/rustyeddy/sessiontrader/risk"
	"github.com/rustyeddy/sessiontrader/session"
	"github.com/rustyeddy/sessiontrader/strategies"
)

// Transition is one audit record.
type Transition struct {
	ID      string
	Time    time.Time
	Reason  string
	Module  strategies.Module
	Signal  strategies.SignalID
	Session session.Session

	Entry  float64
	Stop   float64
	Target float64
	Size   int
	PnL    float64

	Adaptive bool
	Score    float64
	Detail   string

	Risk risk.Snapshot
}

// Sink receives transitions that pass the throttle.
type Sink interface {
	Record(tr Transition) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Transition) error

func (f SinkFunc) Record(tr Transition) error {
	return f(tr)
}
