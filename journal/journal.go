// Package journal persists closed trades, the transition audit log and the
// governor's durable risk state.
package journal

import (
	"github.com/rustyeddy/sessiontrader/edge"
	"github.com/rustyeddy/sessiontrader/observ"
)

// Journal is the append-only record of a run.
type Journal interface {
	RecordTrade(t edge.TradeRecord) error
	RecordTransition(tr observ.Transition) error
	Close() error
}

// Sink adapts a Journal to the transition recorder.
func Sink(j Journal) observ.Sink {
	return observ.SinkFunc(j.RecordTransition)
}
