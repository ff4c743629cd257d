// Package period computes the calendar windows that aggregates are keyed by.
package period

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/emiliopalmerini/studi/internal/domain"
)

type Granularity string

const (
	Daily   Granularity = "daily"
	Weekly  Granularity = "weekly"
	Monthly Granularity = "monthly"
)

// Granularities lists every supported granularity, finest first.
var Granularities = []Granularity{Daily, Weekly, Monthly}

// ParseGranularity accepts "daily", "weekly" or "monthly" (and day/week/month).
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day":
		return Daily, nil
	case "weekly", "week":
		return Weekly, nil
	case "monthly", "month":
		return Monthly, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidGranularity, s)
}

// Calendar carries the week-start convention.
type Calendar struct {
	WeekStart time.Weekday
}

// Default is the Sunday-start calendar.
var Default = Calendar{WeekStart: time.Sunday}

// NewCalendar returns a calendar whose weeks begin on weekStart.
func NewCalendar(weekStart time.Weekday) Calendar {
	return Calendar{WeekStart: weekStart}
}

// WeekBoundaries returns the inclusive 7-day window containing d.
func (c Calendar) WeekBoundaries(d civil.Date) (civil.Date, civil.Date) {
	offset := (int(Weekday(d)) - int(c.WeekStart) + 7) % 7
	start := d.AddDays(-offset)
	return start, start.AddDays(6)
}

// MonthBoundaries returns the first and last day of the month containing d.
func MonthBoundaries(d civil.Date) (civil.Date, civil.Date) {
	start := civil.Date{Year: d.Year, Month: d.Month, Day: 1}
	next := civil.DateOf(time.Date(d.Year, d.Month+1, 1, 0, 0, 0, 0, time.UTC))
	return start, next.AddDays(-1)
}

// Bounds returns the window of granularity g containing d.
func (c Calendar) Bounds(d civil.Date, g Granularity) (civil.Date, civil.Date, error) {
	switch g {
	case Daily:
		return d, d, nil
	case Weekly:
		start, end := c.WeekBoundaries(d)
		return start, end, nil
	case Monthly:
		start, end := MonthBoundaries(d)
		return start, end, nil
	}
	return civil.Date{}, civil.Date{}, fmt.Errorf("%w: %q", domain.ErrInvalidGranularity, g)
}

// IsCurrentPeriod reports whether the g-period containing d also contains today.
// It only decides finality; it never gates a recompute.
func (c Calendar) IsCurrentPeriod(d civil.Date, g Granularity, today civil.Date) (bool, error) {
	start, _, err := c.Bounds(d, g)
	if err != nil {
		return false, err
	}
	todayStart, _, err := c.Bounds(today, g)
	if err != nil {
		return false, err
	}
	return start == todayStart, nil
}

// MustIsCurrentPeriod is IsCurrentPeriod for granularities known at compile time.
func (c Calendar) MustIsCurrentPeriod(d civil.Date, g Granularity, today civil.Date) bool {
	current, err := c.IsCurrentPeriod(d, g, today)
	if err != nil {
		panic(err)
	}
	return current
}

// Weekday returns the day of the week of d.
func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

var dayCodes = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// DayCode returns the two-letter upper-case weekday code of d ("MO", "TU", ...).
func DayCode(d civil.Date) string {
	return dayCodes[Weekday(d)]
}

// Days returns every date from start to end inclusive.
func Days(start, end civil.Date) []civil.Date {
	if end.Before(start) {
		return nil
	}
	days := make([]civil.Date, 0, end.DaysSince(start)+1)
	for d := start; !d.After(end); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, fmt.Errorf("%w: date %q: %v", domain.ErrInvalidInput, s, err)
	}
	return d, nil
}

// ParseWeekday accepts an English weekday name, case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.ToLower(wd.String()) == name {
			return wd, nil
		}
	}
	return time.Sunday, fmt.Errorf("%w: weekday %q", domain.ErrInvalidInput, s)
}
