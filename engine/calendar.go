/*
calendar.go - Day classification and per-user target hours

The priority chain here is the single most bug-prone rule in the domain and
is therefore centralized in exactly one place:

  1. Before hire / after termination  -> 0
  2. Public holiday                   -> 0 (overrides workSchedule)
  3. workSchedule present             -> workSchedule[weekday] (missing day = 0)
  4. Weekend                          -> 0
  5. Otherwise                        -> weeklyHours / 5

A holiday on a scheduled workday yields a zero target; a workSchedule
supersedes the default Mon-Fri distribution entirely.
*/
package engine

import (
	"context"

	"github.com/shopspring/decimal"
)

var five = decimal.NewFromInt(5)

// HolidayLookup answers whether a date is a public holiday. The store
// implements this; tests use HolidaySet.
type HolidayLookup interface {
	IsHoliday(ctx context.Context, date Date) (bool, error)
}

// HolidaySet is an in-memory HolidayLookup.
type HolidaySet map[Date]struct{}

func NewHolidaySet(dates ...Date) HolidaySet {
	s := make(HolidaySet, len(dates))
	for _, d := range dates {
		s[d] = struct{}{}
	}
	return s
}

func (s HolidaySet) IsHoliday(_ context.Context, date Date) (bool, error) {
	_, ok := s[date]
	return ok, nil
}

// Calendar classifies days and computes scheduled target hours.
type Calendar struct {
	holidays HolidayLookup
}

func NewCalendar(holidays HolidayLookup) *Calendar {
	return &Calendar{holidays: holidays}
}

func (c *Calendar) IsHoliday(ctx context.Context, date Date) (bool, error) {
	return c.holidays.IsHoliday(ctx, date)
}

func (c *Calendar) IsWeekend(date Date) bool { return date.IsWeekend() }

// DailyTargetHours returns the hours the user is contractually required to
// be present on the date, before any unpaid-leave reduction.
func (c *Calendar) DailyTargetHours(ctx context.Context, user *User, date Date) (decimal.Decimal, error) {
	if date.Before(user.HireDate) {
		return decimal.Zero, nil
	}
	if user.EndDate != nil && date.After(*user.EndDate) {
		return decimal.Zero, nil
	}

	holiday, err := c.holidays.IsHoliday(ctx, date)
	if err != nil {
		return decimal.Zero, err
	}
	if holiday {
		return decimal.Zero, nil
	}

	if user.WorkSchedule != nil {
		if h, ok := user.WorkSchedule[date.Weekday()]; ok {
			return h, nil
		}
		return decimal.Zero, nil
	}

	if date.IsWeekend() {
		return decimal.Zero, nil
	}
	return user.WeeklyHours.Div(five), nil
}

// CountWorkingDays counts the days in [from, to] with a positive target.
func (c *Calendar) CountWorkingDays(ctx context.Context, user *User, from, to Date) (int, error) {
	count := 0
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		target, err := c.DailyTargetHours(ctx, user, d)
		if err != nil {
			return 0, err
		}
		if target.IsPositive() {
			count++
		}
	}
	return count, nil
}
