package window

import (
	"fmt"
	"time"
)

// Clock is a time of day in minutes since midnight.
type Clock int

// ParseClock reads a 24-hour "HH:MM" bound.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("window: invalid time of day %q: %w", s, err)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Label renders the bound the way the closed banner shows it ("9:55 AM").
func (c Clock) Label() string {
	return time.Date(0, 1, 1, int(c)/60, int(c)%60, 0, 0, time.UTC).Format("3:04 PM")
}

// Gate is the fixed daily interval during which students may submit.
type Gate struct {
	Start Clock
	End   Clock
}

// DefaultGate is 09:55 to 16:00.
var DefaultGate = Gate{Start: 9*60 + 55, End: 16 * 60}

// NewGate builds a gate from "HH:MM" bounds.
func NewGate(start, end string) (Gate, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Gate{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Gate{}, err
	}
	if e < s {
		return Gate{}, fmt.Errorf("window: end %s before start %s", e, s)
	}
	return Gate{Start: s, End: e}, nil
}

// IsOpen reports whether t falls inside the window, both ends inclusive, at
// minute resolution in t's own location.
func (g Gate) IsOpen(t time.Time) bool {
	m := Clock(t.Hour()*60 + t.Minute())
	return m >= g.Start && m <= g.End
}

// ClosedMessage is shown when a selection is blocked outside the window.
func (g Gate) ClosedMessage() string {
	return fmt.Sprintf("Attendance closed. Open %s – %s", g.Start.Label(), g.End.Label())
}
