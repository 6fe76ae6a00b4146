/*
daily.go - Pure per-day overtime calculation

ComputeDay is a pure function over assembled inputs; it touches no store and
is the single source of truth for the day-level formulas:

  effectiveTarget = hasUnpaid ? 0 : target
  absenceCredit   = hasPaidCredit && target > 0 && !hasUnpaid ? target : 0
  actual          = worked + absenceCredit + corrections
  overtime        = actual - effectiveTarget

Unpaid leave wins over any overlapping paid type (target drops to zero, no
credit). Corrections always count, working day or not.
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// DayInput is the raw material for one (user, date) calculation.
type DayInput struct {
	Date        Date
	Target      decimal.Decimal // scheduled target from the calendar
	Worked      decimal.Decimal // sum of time entries
	Absences    []AbsenceType   // approved absences covering the date
	Corrections decimal.Decimal // sum of correction deltas
}

// DayResult carries the computed components for one day.
type DayResult struct {
	Date            Date
	Target          decimal.Decimal // scheduled, before unpaid reduction
	EffectiveTarget decimal.Decimal
	Worked          decimal.Decimal
	AbsenceCredit   decimal.Decimal
	Corrections     decimal.Decimal
	Actual          decimal.Decimal
	Overtime        decimal.Decimal
	HasUnpaid       bool
	HasPaidAbsence  bool
}

// Earned is the worked-time contribution to the journal: worked minus the
// effective target. May be negative.
func (r DayResult) Earned() decimal.Decimal {
	return r.Worked.Sub(r.EffectiveTarget)
}

// Empty reports whether the day produced no components at all (nothing
// worked, no target, no absence, no correction). Empty days write no journal
// entries.
func (r DayResult) Empty() bool {
	return r.Worked.IsZero() && r.EffectiveTarget.IsZero() &&
		r.AbsenceCredit.IsZero() && r.Corrections.IsZero() &&
		!r.HasPaidAbsence && !r.HasUnpaid
}

// ComputeDay evaluates the day-level formulas for one (user, date).
func ComputeDay(in DayInput) DayResult {
	hasUnpaid := false
	hasPaid := false
	for _, t := range in.Absences {
		if t == AbsenceUnpaid {
			hasUnpaid = true
		} else if t.Paid() {
			hasPaid = true
		}
	}

	effectiveTarget := in.Target
	if hasUnpaid {
		// Unpaid leave zeroes the obligation; it also suppresses any paid
		// credit when both overlap the same day (data error, unpaid wins).
		effectiveTarget = decimal.Zero
	}

	absenceCredit := decimal.Zero
	if hasPaid && in.Target.IsPositive() && !hasUnpaid {
		absenceCredit = in.Target
	}

	actual := in.Worked.Add(absenceCredit).Add(in.Corrections)

	return DayResult{
		Date:            in.Date,
		Target:          in.Target,
		EffectiveTarget: effectiveTarget,
		Worked:          in.Worked,
		AbsenceCredit:   absenceCredit,
		Corrections:     in.Corrections,
		Actual:          actual,
		Overtime:        actual.Sub(effectiveTarget),
		HasUnpaid:       hasUnpaid,
		HasPaidAbsence:  hasPaid,
	}
}
