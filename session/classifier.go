package session

import (
	"errors"
	"fmt"
)

var ErrOverlap = errors.New("session ranges overlap")

// Range is the half-open window [Start, End) in which Session is active.
// A range with Start > End wraps past midnight.
type Range struct {
	Session Session
	Start   TimeOfDay
	End     TimeOfDay
}

// Contains reports whether tod falls inside the range.
func (r Range) Contains(tod TimeOfDay) bool {
	if r.Start <= r.End {
		return tod >= r.Start && tod < r.End
	}
	return tod >= r.Start || tod < r.End
}

// segments splits a wrapping range into non-wrapping pieces.
func (r Range) segments() [][2]TimeOfDay {
	if r.Start <= r.End {
		return [][2]TimeOfDay{{r.Start, r.End}}
	}
	return [][2]TimeOfDay{{r.Start, day}, {0, r.End}}
}

func (r Range) overlaps(o Range) bool {
	for _, a := range r.segments() {
		for _, b := range o.segments() {
			if a[0] < b[1] && b[0] < a[1] {
				return true
			}
		}
	}
	return false
}

// DefaultRanges returns the 23x5 CME session map in Eastern time. The
// power-hour session ends at autoFlat.
func DefaultRanges(autoFlat TimeOfDay) []Range {
	return []Range{
		{Asia, At(18, 0), At(1, 0)},
		{LondonOpen, At(3, 0), At(5, 0)},
		{EUMid, At(5, 0), At(7, 0)},
		{USPre, At(7, 0), At(9, 30)},
		{USOpen, At(9, 30), At(10, 30)},
		{USMid, At(10, 30), At(14, 30)},
		{USPower, At(15, 0), autoFlat},
	}
}

// Classifier maps a local time of day to a session. It holds no mutable
// state and is safe to share.
type Classifier struct {
	ranges []Range
}

// NewClassifier validates ranges and returns a classifier that checks them
// in order. Empty, NONE-valued and mutually overlapping ranges are rejected.
func NewClassifier(ranges []Range) (*Classifier, error) {
	for i, r := range ranges {
		if r.Session == None {
			return nil, fmt.Errorf("range %d: NONE cannot be assigned a range", i)
		}
		if r.Start == r.End {
			return nil, fmt.Errorf("range %d (%s): empty range %s-%s", i, r.Session, r.Start, r.End)
		}
		if r.Start < 0 || r.Start >= day || r.End < 0 || r.End > day {
			return nil, fmt.Errorf("range %d (%s): time outside the day", i, r.Session)
		}
		for j := 0; j < i; j++ {
			if r.overlaps(ranges[j]) {
				return nil, fmt.Errorf("%w: %s %s-%s and %s %s-%s", ErrOverlap,
					ranges[j].Session, ranges[j].Start, ranges[j].End,
					r.Session, r.Start, r.End)
			}
		}
	}
	return &Classifier{ranges: append([]Range(nil), ranges...)}, nil
}

// Classify returns the first session whose range contains tod, or None.
func (c *Classifier) Classify(tod TimeOfDay) Session {
	for _, r := range c.ranges {
		if r.Contains(tod) {
			return r.Session
		}
	}
	return None
}

// Range returns the configured range for s.
func (c *Classifier) Range(s Session) (Range, bool) {
	for _, r := range c.ranges {
		if r.Session == s {
			return r, true
		}
	}
	return Range{}, false
}
