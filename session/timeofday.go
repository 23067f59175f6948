package session

import (
	"errors"
	"fmt"
	"time"
)

// TimeOfDay is an offset from local midnight, in [0, 24h).
type TimeOfDay time.Duration

const day = TimeOfDay(24 * time.Hour)

var ErrBadTime = errors.New("malformed time of day")

// At builds a TimeOfDay from hour and minute.
func At(hour, minute int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Of(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrBadTime, s)
}

// MustParse is ParseTimeOfDay for package-level defaults.
func MustParse(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Of returns the time of day of t in t's own location.
func Of(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

// On returns the instant on t's calendar day at this time of day.
func (d TimeOfDay) On(t time.Time) time.Time {
	y, m, dd := t.Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, t.Location()).Add(time.Duration(d))
}

func (d TimeOfDay) String() string {
	dur := time.Duration(d)
	h := int(dur / time.Hour)
	m := int(dur % time.Hour / time.Minute)
	if s := int(dur % time.Minute / time.Second); s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

// MarshalText implements encoding.TextMarshaler.
func (d TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Crossed reports whether mark lies in (prev, now] on a clock that may have
// wrapped past midnight between the two readings.
func Crossed(prev, now, mark TimeOfDay) bool {
	if now >= prev {
		return prev < mark && mark <= now
	}
	return mark > prev || mark <= now
}
