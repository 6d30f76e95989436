package lecture

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultValidity is how long a started lecture code accepts submissions.
const DefaultValidity = 2 * time.Minute

// DisplayLayout is the time-of-day form the teacher side stamps on a lecture.
const DisplayLayout = "03:04 PM"

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?\s*([AP]\.?M\.?)?$`)

// FormatCreatedTime renders t the way lecture records carry it.
func FormatCreatedTime(t time.Time) string {
	return t.Format(DisplayLayout)
}

// ParseClock reads a bare time of day ("9:05", "09:05:30", "9:05 pm") and
// places it on day's calendar date in day's location.
func ParseClock(s string, day time.Time) (time.Time, bool) {
	s = strings.NewReplacer("\u202f", " ", "\u00a0", " ").Replace(strings.TrimSpace(s))
	m := clockPattern.FindStringSubmatch(strings.ToUpper(s))
	if m == nil {
		return time.Time{}, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	second := 0
	if m[3] != "" {
		second, _ = strconv.Atoi(m[3])
	}
	if minute > 59 || second > 59 {
		return time.Time{}, false
	}

	if meridiem := strings.ReplaceAll(m[4], ".", ""); meridiem != "" {
		if hour < 1 || hour > 12 {
			return time.Time{}, false
		}
		hour %= 12
		if meridiem == "PM" {
			hour += 12
		}
	} else if hour > 23 {
		return time.Time{}, false
	}

	y, mo, d := day.Date()
	return time.Date(y, mo, d, hour, minute, second, 0, day.Location()), true
}

// Checker decides whether a fetched lecture code still accepts submissions.
type Checker struct {
	Validity time.Duration
}

// NewChecker returns a checker, falling back to DefaultValidity for v <= 0.
func NewChecker(v time.Duration) Checker {
	if v <= 0 {
		v = DefaultValidity
	}
	return Checker{Validity: v}
}

// Valid reports whether a lecture created at createdTime (bare time of day)
// or createdAt (RFC 3339, preferred when present) is still open at now.
// Unparseable timestamps are treated as valid.
func (c Checker) Valid(createdTime, createdAt string, now time.Time, unrestricted bool) bool {
	if unrestricted {
		return true
	}
	if createdAt != "" {
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			return now.Sub(ts) <= c.Validity
		}
	}
	// A bare time of day is assumed to be today; a lecture started before
	// midnight and checked after it is misjudged.
	ts, ok := ParseClock(createdTime, now)
	if !ok {
		return true
	}
	return now.Sub(ts) <= c.Validity
}

// IsCodeValid applies the default two-minute validity to a bare time of day.
func IsCodeValid(createdTime string, now time.Time, unrestricted bool) bool {
	return NewChecker(DefaultValidity).Valid(createdTime, "", now, unrestricted)
}
