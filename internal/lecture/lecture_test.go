package lecture

import (
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendx/internal/subject"
)

func TestGenerateMatchesPattern(t *testing.T) {
	g := NewGenerator(nil)
	for _, s := range subject.All() {
		re := regexp.MustCompile("^" + s.Prefix + `(\d{4})` + s.Suffix + "$")
		for i := 0; i < 200; i++ {
			code := g.Generate(s)
			m := re.FindStringSubmatch(code)
			require.NotNil(t, m, "code %q for %s", code, s.ID)
			d, err := strconv.Atoi(m[1])
			require.NoError(t, err)
			assert.GreaterOrEqual(t, d, 1000)
			assert.LessOrEqual(t, d, 9999)
		}
	}
}

func TestGenerateBounds(t *testing.T) {
	ds, _ := subject.ByID("ds_lab")

	low := NewGenerator(func(int) int { return 0 })
	assert.Equal(t, "DS1000LB", low.Generate(ds))

	high := NewGenerator(func(n int) int { return n - 1 })
	assert.Equal(t, "DS9999LB", high.Generate(ds))

	fixed := NewGenerator(func(int) int { return 3821 })
	assert.Equal(t, "DS4821LB", fixed.Generate(ds))
	assert.Regexp(t, `^DS\d{4}LB$`, NewGenerator(nil).Generate(ds))
}

func at(h, m, s int) time.Time {
	return time.Date(2026, 2, 24, h, m, s, 0, time.Local)
}

func TestParseClock(t *testing.T) {
	day := at(12, 0, 0)
	tests := []struct {
		in     string
		want   time.Time
		wantOK bool
	}{
		{in: "10:00", want: at(10, 0, 0), wantOK: true},
		{in: "9:05", want: at(9, 5, 0), wantOK: true},
		{in: "09:05:30", want: at(9, 5, 30), wantOK: true},
		{in: "10:00 AM", want: at(10, 0, 0), wantOK: true},
		{in: "03:15 PM", want: at(15, 15, 0), wantOK: true},
		{in: "3:15:09 pm", want: at(15, 15, 9), wantOK: true},
		{in: "12:10 AM", want: at(0, 10, 0), wantOK: true},
		{in: "12:10 PM", want: at(12, 10, 0), wantOK: true},
		{in: "10:00\u202fAM", want: at(10, 0, 0), wantOK: true},
		{in: "13:00 PM"},
		{in: "24:00"},
		{in: "10:61"},
		{in: "noon"},
		{in: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseClock(tt.in, day)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
			}
		})
	}
}

func TestIsCodeValid(t *testing.T) {
	tests := []struct {
		name         string
		created      string
		now          time.Time
		unrestricted bool
		want         bool
	}{
		{name: "fresh", created: "10:00", now: at(10, 1, 0), want: true},
		{name: "exactly two minutes", created: "10:00", now: at(10, 2, 0), want: true},
		{name: "one second late", created: "10:00", now: at(10, 2, 1), want: false},
		{name: "three minutes", created: "10:00", now: at(10, 3, 0), want: false},
		{name: "meridiem form", created: "02:00 PM", now: at(14, 1, 30), want: true},
		{name: "unrestricted ignores age", created: "10:00", now: at(15, 0, 0), unrestricted: true, want: true},
		{name: "unparseable fails open", created: "Active lecture", now: at(15, 0, 0), want: true},
		{name: "future timestamp", created: "11:00", now: at(10, 0, 0), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCodeValid(tt.created, tt.now, tt.unrestricted))
		})
	}
}

func TestCheckerPrefersFullTimestamp(t *testing.T) {
	c := NewChecker(0)
	assert.Equal(t, DefaultValidity, c.Validity)

	// Started 23:59 yesterday, checked 00:00:30 today: the bare time would
	// land a day in the future, the full timestamp gets it right.
	created := time.Date(2026, 2, 23, 23, 59, 0, 0, time.UTC)
	now := time.Date(2026, 2, 24, 0, 0, 30, 0, time.UTC)
	assert.True(t, c.Valid("11:59 PM", created.Format(time.RFC3339), now, false))

	later := now.Add(2 * time.Minute)
	assert.False(t, c.Valid("11:59 PM", created.Format(time.RFC3339), later, false))

	// malformed createdAt falls back to the bare time
	assert.False(t, c.Valid("10:00", "yesterday", at(10, 5, 0), false))
}

func TestFormatCreatedTime(t *testing.T) {
	assert.Equal(t, "09:05 AM", FormatCreatedTime(at(9, 5, 0)))
	assert.Equal(t, "04:00 PM", FormatCreatedTime(at(16, 0, 0)))

	parsed, ok := ParseClock(FormatCreatedTime(at(16, 0, 0)), at(0, 0, 0))
	require.True(t, ok)
	assert.True(t, at(16, 0, 0).Equal(parsed))
}
