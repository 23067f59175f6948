// Package health watches market-data freshness and venue connectivity.
// A trip latches until the condition clears so one outage flattens once.
package health

import "time"

const (
	ReasonDataStale   = "DataStale"
	ReasonDataResumed = "DataResumed"
	ReasonDisconnect  = "Disconnect"
	ReasonReconnected = "Reconnected"
)

type Config struct {
	// StaleAfter is the data gap that trips the monitor.
	StaleAfter time.Duration
	// ResumeWithin is the gap under which data counts as flowing again.
	ResumeWithin time.Duration
	// DisconnectAfter is how long a connection loss may last before it trips.
	DisconnectAfter time.Duration
	// Stabilize is how long the connection must be back before recovery.
	Stabilize time.Duration
}

func DefaultConfig() Config {
	return Config{
		StaleAfter:      3 * time.Second,
		ResumeWithin:    time.Second,
		DisconnectAfter: 5 * time.Second,
		Stabilize:       2 * time.Second,
	}
}

// Event is a trip or a recovery.
type Event struct {
	Reason string
	Time   time.Time
	// Gap is the data gap or outage length that caused the event.
	Gap    time.Duration
	Detail string
}

// Tripped reports whether the event starts an outage.
func (e Event) Tripped() bool {
	return e.Reason == ReasonDataStale || e.Reason == ReasonDisconnect
}

// Hold is the name of the entry hold the event sets or releases.
func (e Event) Hold() string {
	switch e.Reason {
	case ReasonDataStale, ReasonDataResumed:
		return ReasonDataStale
	default:
		return ReasonDisconnect
	}
}

type Monitor struct {
	cfg Config

	lastData time.Time
	stale    bool

	connected  bool
	lostAt     time.Time
	restoredAt time.Time
	down       bool
}

func NewMonitor(cfg Config) *Monitor {
	return &Monitor{cfg: cfg, connected: true}
}

// OnData records a market update.
func (m *Monitor) OnData(t time.Time) {
	if t.After(m.lastData) {
		m.lastData = t
	}
}

// OnConnectivity records a connection state change.
func (m *Monitor) OnConnectivity(connected bool, t time.Time) {
	switch {
	case !connected && m.connected:
		m.lostAt = t
	case connected && !m.connected:
		m.restoredAt = t
	}
	m.connected = connected
}

// Check evaluates both conditions at now and returns any state changes.
func (m *Monitor) Check(now time.Time) []Event {
	var ev []Event
	if !m.lastData.IsZero() {
		gap := now.Sub(m.lastData)
		switch {
		case !m.stale && gap > m.cfg.StaleAfter:
			m.stale = true
			ev = append(ev, Event{Reason: ReasonDataStale, Time: now, Gap: gap})
		case m.stale && gap <= m.cfg.ResumeWithin:
			m.stale = false
			ev = append(ev, Event{Reason: ReasonDataResumed, Time: now, Gap: gap})
		}
	}

	switch {
	case !m.connected && !m.down && now.Sub(m.lostAt) > m.cfg.DisconnectAfter:
		m.down = true
		ev = append(ev, Event{Reason: ReasonDisconnect, Time: now, Gap: now.Sub(m.lostAt)})
	case m.connected && m.down && now.Sub(m.restoredAt) >= m.cfg.Stabilize:
		m.down = false
		ev = append(ev, Event{Reason: ReasonReconnected, Time: now, Gap: m.restoredAt.Sub(m.lostAt)})
	}
	return ev
}

// Tripped reports whether either latch is set.
func (m *Monitor) Tripped() bool {
	return m.stale || m.down
}

// Reset clears both latches at the daily reset and returns the recoveries
// it implies. A condition that persists trips again on the next Check.
func (m *Monitor) Reset(now time.Time) []Event {
	var ev []Event
	if m.stale {
		m.stale = false
		ev = append(ev, Event{Reason: ReasonDataResumed, Time: now, Detail: "daily reset"})
	}
	if m.down {
		m.down = false
		ev = append(ev, Event{Reason: ReasonReconnected, Time: now, Detail: "daily reset"})
	}
	return ev
}
