package observ

import (
	"github.com/rs/zerolog"

	"github.com/rustyeddy/sessiontrader/id"
)

// Recorder assigns ids, counts every transition and delivers those that pass
// the throttle to each sink. Sink failures are logged and do not stop the
// other sinks.
type Recorder struct {
	log      zerolog.Logger
	throttle *Throttle
	metrics  *Metrics
	sinks    []Sink
}

func NewRecorder(log zerolog.Logger, throttle *Throttle, metrics *Metrics, sinks ...Sink) *Recorder {
	return &Recorder{
		log:      log.With().Str("component", "recorder").Logger(),
		throttle: throttle,
		metrics:  metrics,
		sinks:    sinks,
	}
}

// AddSink appends a sink.
func (r *Recorder) AddSink(s Sink) {
	r.sinks = append(r.sinks, s)
}

// Metrics returns the recorder's metrics, possibly nil.
func (r *Recorder) Metrics() *Metrics {
	return r.metrics
}

// Record delivers tr. It reports whether tr passed the throttle.
func (r *Recorder) Record(tr Transition) bool {
	if tr.ID == "" {
		tr.ID = id.At(tr.Time)
	}
	r.metrics.Transition(tr)
	if !r.throttle.Allow(tr.Reason, tr.Time) {
		return false
	}
	for _, s := range r.sinks {
		if err := s.Record(tr); err != nil {
			r.log.Error().Err(err).Str("reason", tr.Reason).Msg("sink failed")
		}
	}
	return true
}
