package normalize

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const compactLayout = "20060102150405"

var compactStrip = strings.NewReplacer(":", "", " ", "")

// Fallbacks for combined values that are not compact digit strings.
var combinedLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02T15:04:05",
	"2006.01.02 15:04:05",
	"2006-1-2 15:04:05",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006-1-2",
	"2006/1/2",
	"2006年01月02日 15:04:05",
	"2006年1月2日",
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	"2006.01.02",
	"2006-1-2",
	"2006/1/2",
	"2006年01月02日",
	"2006年1月2日",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
}

var clockLayouts = []string{
	"15:04:05",
	"15:04",
	"150405",
	"1504",
	"15:04:05.000",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
}

// Clock rebuilds instants from statement text. Every value is read as local
// wall time in the reference zone and returned in UTC.
type Clock struct {
	loc *time.Location
}

// NewClock loads the reference zone by IANA name.
func NewClock(tz string) (*Clock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return &Clock{loc: loc}, nil
}

// Location returns the reference zone.
func (c *Clock) Location() *time.Location { return c.loc }

// Combined parses a single date-and-time value. Compact digit forms such as
// "20240115093000" or "20240115 09:30" are right-padded with zeros to
// second precision, so "202401150930" reads as 09:30:00.
func (c *Clock) Combined(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	compact := compactStrip.Replace(raw)
	if isDigits(compact) && len(compact) >= 8 && len(compact) <= len(compactLayout) {
		compact += strings.Repeat("0", len(compactLayout)-len(compact))
		if t, err := time.ParseInLocation(compactLayout, compact, c.loc); err == nil {
			return t.UTC(), true
		}
		return time.Time{}, false
	}
	for _, layout := range combinedLayouts {
		if t, err := time.ParseInLocation(layout, raw, c.loc); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Split parses a date column and a time-of-day column and joins them.
func (c *Clock) Split(date, clock string) (time.Time, bool) {
	d, ok := parseFirst(strings.TrimSpace(date), dateLayouts)
	if !ok {
		return time.Time{}, false
	}
	clock = strings.TrimSpace(clock)
	// Spreadsheet exports drop the leading zero of early hours ("93000").
	if isDigits(clock) && (len(clock) == 5 || len(clock) == 3) {
		clock = "0" + clock
	}
	tod, ok := parseFirst(clock, clockLayouts)
	if !ok {
		return time.Time{}, false
	}
	t := time.Date(d.Year(), d.Month(), d.Day(), tod.Hour(), tod.Minute(), tod.Second(), 0, c.loc)
	return t.UTC(), true
}

func parseFirst(s string, layouts []string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
