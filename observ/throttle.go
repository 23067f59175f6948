package observ

import (
	"time"

	"golang.org/x/time/rate"
)

// Throttle rate-limits repeated gate reasons in event time, so a replay is
// throttled the same way as a live session.
type Throttle struct {
	every    time.Duration
	reasons  map[string]bool
	limiters map[string]*rate.Limiter
}

// NewThrottle lets each listed reason through at most once per every.
// Reasons not listed always pass.
func NewThrottle(every time.Duration, reasons ...string) *Throttle {
	t := &Throttle{
		every:    every,
		reasons:  make(map[string]bool, len(reasons)),
		limiters: make(map[string]*rate.Limiter, len(reasons)),
	}
	for _, r := range reasons {
		t.reasons[r] = true
	}
	return t
}

func (t *Throttle) Allow(reason string, at time.Time) bool {
	if t == nil || !t.reasons[reason] {
		return true
	}
	l, ok := t.limiters[reason]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.every), 1)
		t.limiters[reason] = l
	}
	return l.AllowN(at, 1)
}
