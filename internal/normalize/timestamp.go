package normalize

import (
	"strings"
	"time"
)

// Timestamp is a coerced date/time value that remembers how much of it was given.
type Timestamp struct {
	Time     time.Time
	DateOnly bool
	Zoned    bool
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
	offsetLayout   = "-07:00"
)

type layout struct {
	value    string
	dateOnly bool
	zoned    bool
}

// Fractional seconds are optional in every layout with a .999999999 element.
var layouts = []layout{
	{value: time.RFC3339Nano, zoned: true},
	{value: "2006-01-02 15:04:05.999999999Z07:00", zoned: true},
	{value: "2006-01-02T15:04:05.999999999Z0700", zoned: true},
	{value: "2006-01-02 15:04:05.999999999Z0700", zoned: true},
	{value: "2006-01-02T15:04:05.999999999"},
	{value: "2006-01-02 15:04:05.999999999"},
	{value: "2006-01-02T15:04"},
	{value: "2006-01-02 15:04"},
	{value: dateLayout, dateOnly: true},
}

// ParseTimestamp parses the date/time forms the flight API emits.
func ParseTimestamp(s string) (Timestamp, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, false
	}

	for _, l := range layouts {
		t, err := time.Parse(l.value, s)
		if err != nil {
			continue
		}

		return Timestamp{Time: t, DateOnly: l.dateOnly, Zoned: l.zoned}, true
	}

	return Timestamp{}, false
}

// String renders YYYY-MM-DD for dates, otherwise YYYY-MM-DD HH:MM:SS with
// microseconds when non-zero and the UTC offset when zoned.
func (ts Timestamp) String() string {
	if ts.DateOnly {
		return ts.Time.Format(dateLayout)
	}

	var b strings.Builder

	b.WriteString(ts.Time.Format(dateTimeLayout))

	if ts.Time.Nanosecond() != 0 {
		b.WriteString(ts.Time.Format(".000000"))
	}

	if ts.Zoned {
		b.WriteString(ts.Time.Format(offsetLayout))
	}

	return b.String()
}

// coerceTimestamp maps a cell to a Timestamp, or nil when it cannot be parsed.
func coerceTimestamp(v any) any {
	switch val := v.(type) {
	case Timestamp:
		return val
	case string:
		ts, ok := ParseTimestamp(val)
		if !ok {
			return nil
		}

		return ts
	default:
		return nil
	}
}

// CoerceTimestamps converts each named column that exists to Timestamp values.
// Unparseable cells become null; other cells in the row are untouched.
func CoerceTimestamps(t *Table, columns ...string) {
	for _, c := range columns {
		t.Map(c, coerceTimestamp)
	}
}
