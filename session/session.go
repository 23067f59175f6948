// Package session maps venue timestamps to the strategy's local clock and
// classifies a local time of day into one of a fixed set of trading
// sessions.
package session

import (
	"errors"
	"fmt"
	"strings"
)

// Session is a named time-of-day window.
type Session uint8

const (
	None Session = iota
	Asia
	LondonOpen
	EUMid
	USPre
	USOpen
	USMid
	USPower
)

// All lists every tradable session in routing order.
var All = []Session{Asia, LondonOpen, EUMid, USPre, USOpen, USMid, USPower}

var ErrUnknownSession = errors.New("unknown session")

func (s Session) String() string {
	switch s {
	case None:
		return "NONE"
	case Asia:
		return "ASIA"
	case LondonOpen:
		return "LONDON_OPEN"
	case EUMid:
		return "EU_MID"
	case USPre:
		return "US_PRE"
	case USOpen:
		return "US_OPEN"
	case USMid:
		return "US_MID"
	case USPower:
		return "US_POWER"
	default:
		return fmt.Sprintf("Session(%d)", uint8(s))
	}
}

// Parse converts a session name such as "LONDON_OPEN" into a Session.
func Parse(name string) (Session, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for _, s := range append([]Session{None}, All...) {
		if s.String() == n {
			return s, nil
		}
	}
	return None, fmt.Errorf("%w: %q", ErrUnknownSession, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Session) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Session) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
