/*
report.go - Live overtime report with cache cross-check

The report recomputes every requested day from the raw inputs and compares
the per-month result against the denormalized cache. Disagreement beyond
0.01 h means the cache is stale or the journal was mutated out of band; the
report refuses to serve the number and surfaces an InconsistencyError with
the full per-day breakdown for the log.
*/
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MonthReport is one month's slice of the report.
type MonthReport struct {
	Month    YearMonth
	Days     []DayResult
	Target   decimal.Decimal
	Actual   decimal.Decimal
	Overtime decimal.Decimal
	// Cached is the denormalized value, nil when the month was never
	// computed (no mutation ever touched it).
	Cached *decimal.Decimal
}

// OvertimeReport is the full response for one user and year (or one month).
type OvertimeReport struct {
	UserID        string
	Year          int
	Months        []MonthReport
	TotalTarget   decimal.Decimal
	TotalActual   decimal.Decimal
	TotalOvertime decimal.Decimal
	// Balance is the journal's current running balance, independent of the
	// requested window.
	Balance          decimal.Decimal
	FormattedBalance string
}

// Reporter computes live reports.
type Reporter struct {
	store TxStore
	orch  *Orchestrator
	clock Clock
	log   zerolog.Logger
}

func NewReporter(store TxStore, orch *Orchestrator, clock Clock, log zerolog.Logger) *Reporter {
	return &Reporter{
		store: store,
		orch:  orch,
		clock: clock,
		log:   log.With().Str("component", "report").Logger(),
	}
}

// Overtime builds the daily + monthly + summary breakdown for the year, or
// for a single month when month is non-nil. Months that disagree with the
// cache beyond the tolerance abort with an InconsistencyError.
func (r *Reporter) Overtime(ctx context.Context, userID string, year int, month *time.Month) (*OvertimeReport, error) {
	user, err := r.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	months := make([]YearMonth, 0, 12)
	if month != nil {
		months = append(months, YearMonth{Year: year, Month: *month})
	} else {
		for m := time.January; m <= time.December; m++ {
			months = append(months, YearMonth{Year: year, Month: m})
		}
	}

	report := &OvertimeReport{UserID: userID, Year: year}
	today := r.clock.Today()

	for _, ym := range months {
		if ym.First().After(today) {
			break
		}
		mr, err := r.buildMonth(ctx, user, ym, today)
		if err != nil {
			return nil, err
		}
		if mr.Cached != nil && !HoursAgree(mr.Overtime, *mr.Cached) {
			r.log.Error().
				Str("user_id", userID).
				Str("month", ym.String()).
				Str("live", mr.Overtime.String()).
				Str("cached", mr.Cached.String()).
				Msg("monthly cache disagrees with live recompute")
			return nil, &InconsistencyError{
				UserID:    userID,
				Month:     ym,
				Cached:    *mr.Cached,
				Live:      mr.Overtime,
				Breakdown: mr.Days,
			}
		}
		report.Months = append(report.Months, mr)
		report.TotalTarget = report.TotalTarget.Add(mr.Target)
		report.TotalActual = report.TotalActual.Add(mr.Actual)
		report.TotalOvertime = report.TotalOvertime.Add(mr.Overtime)
	}

	balance, err := Balance(ctx, r.store, userID)
	if err != nil {
		return nil, err
	}
	report.Balance = balance
	report.FormattedBalance = FormatHours(balance)
	return report, nil
}

func (r *Reporter) buildMonth(ctx context.Context, user *User, ym YearMonth, today Date) (MonthReport, error) {
	mr := MonthReport{Month: ym}

	end := ym.Last()
	if today.Before(end) {
		end = today
	}
	for d := ym.First(); d.BeforeOrEqual(end); d = d.AddDays(1) {
		result, err := r.orch.ComputeDayFor(ctx, r.store, user, d)
		if err != nil {
			return mr, err
		}
		mr.Days = append(mr.Days, result)
		mr.Target = mr.Target.Add(result.EffectiveTarget)
		mr.Actual = mr.Actual.Add(result.Actual)
		mr.Overtime = mr.Overtime.Add(result.Overtime)
	}

	cached, err := r.store.GetMonthlyBalance(ctx, user.ID, ym)
	if err != nil {
		return mr, err
	}
	if cached != nil {
		ot := cached.Overtime()
		mr.Cached = &ot
	}
	return mr, nil
}
