// Package indicators computes the streaming values behind market.Indicators
// from closed bars. It runs on the host side of the core: modules only
// consume the numbers.
package indicators

import "github.com/rustyeddy/sessiontrader/market"

// Indicator computes a single streaming value from closed bars.
// It is deterministic and safe to use in live and replay runs.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "RSI(2)".
	Name() string

	// Warmup returns how many updates are needed before Ready can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next closed bar.
	Update(b market.Bar)

	// Ready reports whether Value is meaningful.
	Ready() bool

	// Value returns the current value, or 0 before warmup.
	Value() float64
}

// lag remembers the last n values so a series can be compared with itself
// n updates ago.
type lag struct {
	buf  []float64
	next int
	full bool
}

func newLag(n int) *lag {
	return &lag{buf: make([]float64, n)}
}

// push stores v and returns the value n pushes ago, if there is one.
func (l *lag) push(v float64) (float64, bool) {
	old, ok := l.buf[l.next], l.full
	l.buf[l.next] = v
	l.next++
	if l.next == len(l.buf) {
		l.next = 0
		l.full = true
	}
	return old, ok
}

func (l *lag) reset() {
	clear(l.buf)
	l.next = 0
	l.full = false
}
