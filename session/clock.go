package session

import (
	"fmt"
	"time"

	// Embedded zoneinfo so hosts without /usr/share/zoneinfo still resolve
	// America/New_York.
	_ "time/tzdata"
)

// Clock converts venue timestamps into the strategy's local wall clock.
// It is the only place the core deals with time zones.
type Clock struct {
	loc *time.Location
}

// NewClock loads the IANA zone name, e.g. "America/New_York".
func NewClock(zone string) (*Clock, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	return &Clock{loc: loc}, nil
}

// Local converts t into the clock's zone.
func (c *Clock) Local(t time.Time) time.Time {
	return t.In(c.loc)
}

// TimeOfDay returns the local time of day for t.
func (c *Clock) TimeOfDay(t time.Time) TimeOfDay {
	return Of(c.Local(t))
}

// Location returns the clock's zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}
