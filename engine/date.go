package engine

import (
	"time"
)

// =============================================================================
// DATE - Civil calendar date in the tenant's timezone
// =============================================================================

// Date is a calendar date without a time-of-day component. All ledger
// arithmetic happens on civil dates; the timezone only matters when deriving
// "today" (see Clock). Internally normalized to midnight UTC so comparisons
// and AddDate arithmetic are exact.
type Date struct {
	t time.Time
}

const dateLayout = "2006-01-02"

// NewDate constructs a Date from calendar components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD wire-format date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, &InvalidInputError{Field: "date", Value: s, Reason: "expected YYYY-MM-DD"}
	}
	return Date{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}, nil
}

// DateOf truncates a time.Time to its calendar date in the time's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.t.After(other.t) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.t.Before(other.t) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{t: d.t.AddDate(0, n, 0)} }
func (d Date) AddYears(n int) Date  { return Date{t: d.t.AddDate(n, 0, 0)} }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// YearMonth returns the month this date falls in.
func (d Date) YearMonth() YearMonth {
	return YearMonth{Year: d.t.Year(), Month: d.t.Month()}
}

// Time exposes the underlying midnight-UTC instant, for storage layers.
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string { return d.t.Format(dateLayout) }

// DateMin and DateMax bound open-ended range queries: a filter with no
// from/to covers [DateMin, DateMax].
var (
	DateMin = NewDate(1, time.January, 1)
	DateMax = NewDate(9999, time.December, 31)
)

// Min/Max helpers used when clamping recompute windows.
func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

// DaysBetween counts whole days from a to b (negative if b precedes a).
func DaysBetween(a, b Date) int {
	return int(b.t.Sub(a.t).Hours() / 24)
}

// DatesInRange returns every date in [from, to], inclusive.
func DatesInRange(from, to Date) []Date {
	if to.Before(from) {
		return nil
	}
	dates := make([]Date, 0, DaysBetween(from, to)+1)
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		dates = append(dates, d)
	}
	return dates
}

// =============================================================================
// YEAR-MONTH - Key for the monthly balance cache
// =============================================================================

// YearMonth identifies one calendar month (the monthly balance cache key).
type YearMonth struct {
	Year  int
	Month time.Month
}

const monthLayout = "2006-01"

// ParseYearMonth parses a YYYY-MM wire-format month.
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return YearMonth{}, &InvalidInputError{Field: "month", Value: s, Reason: "expected YYYY-MM"}
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func (m YearMonth) First() Date { return NewDate(m.Year, m.Month, 1) }

func (m YearMonth) Last() Date { return NewDate(m.Year, m.Month, 1).AddMonths(1).AddDays(-1) }

func (m YearMonth) Next() YearMonth { return m.First().AddMonths(1).YearMonth() }

func (m YearMonth) Before(other YearMonth) bool {
	return m.Year < other.Year || (m.Year == other.Year && m.Month < other.Month)
}

func (m YearMonth) String() string { return m.First().t.Format(monthLayout) }

// MonthsInRange returns every month touched by [from, to].
func MonthsInRange(from, to Date) []YearMonth {
	var months []YearMonth
	for m := from.YearMonth(); !to.YearMonth().Before(m); m = m.Next() {
		months = append(months, m)
	}
	return months
}

// =============================================================================
// CLOCK - Injected source of civil "today"
// =============================================================================

// Clock supplies the current civil date. The engine never calls time.Now()
// for date logic; "today" is always derived in the configured timezone, never
// UTC midnight.
type Clock interface {
	Now() time.Time
	Today() Date
}

type zoneClock struct {
	loc *time.Location
}

// NewClock returns a Clock anchored to the given civil timezone.
func NewClock(loc *time.Location) Clock {
	return &zoneClock{loc: loc}
}

func (c *zoneClock) Now() time.Time { return time.Now().In(c.loc) }

func (c *zoneClock) Today() Date {
	now := time.Now().In(c.loc)
	return NewDate(now.Year(), now.Month(), now.Day())
}

// FixedClock is a deterministic Clock for tests.
type FixedClock struct {
	Current time.Time
}

func (c *FixedClock) Now() time.Time { return c.Current }

func (c *FixedClock) Today() Date {
	return NewDate(c.Current.Year(), c.Current.Month(), c.Current.Day())
}
