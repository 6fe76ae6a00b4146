/*
orchestrator.go - Recompute orchestrator

Every mutation (time entry, absence decision, correction, schedule change)
reduces to a set of (userId, date) pairs whose journal entries may have
changed. The orchestrator rewrites exactly those days:

  1. take the user's lock
  2. in one store transaction:
       for each affected date: delete the recomputable entries, re-run the
       daily calculator, append the fresh split entries
       re-chain the whole journal
       refresh the monthly cache for every touched month
  3. publish overtime:updated

Delete-then-reinsert plus re-chaining makes the whole operation idempotent:
running it twice for the same mutation yields the same journal and cache.

Split-entry policy: up to three entries per day, in order earned,
absence_credit, correction. earned is omitted when zero unless the day also
has an absence or correction (the zero entry then anchors the day in the
log). compensation and carryover entries reference independent domain
events and survive recomputes untouched.
*/
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	recomputeAttempts = 3
	recomputeBackoff  = 50 * time.Millisecond
)

// Orchestrator serializes journal rewrites per user and keeps the monthly
// cache in step with the journal.
type Orchestrator struct {
	store TxStore
	cal   *Calendar
	bus   *Bus
	clock Clock
	log   zerolog.Logger
	locks *userLocks
}

func NewOrchestrator(store TxStore, cal *Calendar, bus *Bus, clock Clock, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store: store,
		cal:   cal,
		bus:   bus,
		clock: clock,
		log:   log.With().Str("component", "orchestrator").Logger(),
		locks: newUserLocks(),
	}
}

// WithUserLock runs fn while holding the user's recompute lock. The rollover
// job uses this so its journal append cannot interleave with a recompute.
func (o *Orchestrator) WithUserLock(userID string, fn func() error) error {
	mu := o.locks.forUser(userID)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// Recompute rewrites the journal entries for the given dates and refreshes
// the touched months, all under the user's lock. Transient store errors are
// retried with backoff a bounded number of times.
func (o *Orchestrator) Recompute(ctx context.Context, userID string, dates []Date) error {
	if len(dates) == 0 {
		return nil
	}
	dates = dedupeDates(dates)

	mu := o.locks.forUser(userID)
	mu.Lock()
	defer mu.Unlock()

	var err error
	for attempt := 1; attempt <= recomputeAttempts; attempt++ {
		err = o.recomputeLocked(ctx, userID, dates)
		if err == nil || !IsRetryable(err) {
			break
		}
		o.log.Warn().Err(err).Str("user_id", userID).Int("attempt", attempt).
			Msg("transient store error during recompute, retrying")
		select {
		case <-time.After(time.Duration(attempt) * recomputeBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	balance, berr := Balance(ctx, o.store, userID)
	if berr != nil {
		// journal is committed; the broadcast just lacks the fresh balance
		o.log.Error().Err(berr).Str("user_id", userID).Msg("balance read after recompute failed")
		return nil
	}
	o.publishUpdated(userID, dates, balance)
	return nil
}

// RecomputeRange expands [from, to] into its dates and recomputes them.
// Used for absence decisions and schedule changes.
func (o *Orchestrator) RecomputeRange(ctx context.Context, userID string, from, to Date) error {
	return o.Recompute(ctx, userID, DatesInRange(from, to))
}

// RecomputeUser recomputes every date from the user's hire date (or the
// given effective date, whichever is later) up to today. Used when
// weeklyHours, workSchedule, hireDate or endDate change.
func (o *Orchestrator) RecomputeUser(ctx context.Context, user *User, effectiveFrom Date) error {
	from := user.HireDate
	if effectiveFrom.After(from) {
		from = effectiveFrom
	}
	to := o.clock.Today()
	if user.EndDate != nil && user.EndDate.Before(to) {
		to = *user.EndDate
	}
	if to.Before(from) {
		return nil
	}
	return o.RecomputeRange(ctx, user.ID, from, to)
}

func (o *Orchestrator) recomputeLocked(ctx context.Context, userID string, dates []Date) error {
	return o.store.WithTx(ctx, func(s Store) error {
		return o.RecomputeInTx(ctx, s, userID, dates)
	})
}

// RecomputeInTx rewrites the given dates against a transaction-bound store
// view. The caller must hold the user's lock and owns the transaction;
// services use it to commit a domain mutation and its journal rewrite as
// one atomic unit.
func (o *Orchestrator) RecomputeInTx(ctx context.Context, s Store, userID string, dates []Date) error {
	dates = dedupeDates(dates)
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	for _, d := range dates {
		if err := o.rewriteDay(ctx, s, user, d); err != nil {
			return fmt.Errorf("rewrite day %s: %w", d, err)
		}
	}

	if err := Rechain(ctx, s, userID); err != nil {
		return fmt.Errorf("rechain: %w", err)
	}

	for _, month := range monthsOf(dates) {
		if err := o.refreshMonth(ctx, s, user, month); err != nil {
			return fmt.Errorf("refresh month %s: %w", month, err)
		}
	}
	return nil
}

// rewriteDay deletes the day's recomputable entries and appends the fresh
// split entries. compensation and carryover entries on the same date are
// left alone.
func (o *Orchestrator) rewriteDay(ctx context.Context, s Store, user *User, d Date) error {
	if _, err := s.DeleteTransactions(ctx, user.ID, TransactionFilter{
		From:  &d,
		To:    &d,
		Types: RecomputableTxTypes,
	}); err != nil {
		return err
	}

	// days outside the employment window keep no computed entries
	if !user.Active(d) {
		return nil
	}

	result, err := o.ComputeDayFor(ctx, s, user, d)
	if err != nil {
		return err
	}
	if result.Empty() {
		return nil
	}

	now := o.clock.Now()
	earned := result.Earned()
	dayHasContext := result.HasPaidAbsence || result.HasUnpaid || !result.Corrections.IsZero()
	if !earned.IsZero() || dayHasContext {
		if err := Append(ctx, s, &Transaction{
			UserID:      user.ID,
			Date:        d,
			Type:        TxEarned,
			Hours:       earned,
			Description: fmt.Sprintf("worked %s against %s target", FormatHours(result.Worked), FormatHours(result.EffectiveTarget)),
		}, now); err != nil {
			return err
		}
	}
	if !result.AbsenceCredit.IsZero() {
		if err := Append(ctx, s, &Transaction{
			UserID:      user.ID,
			Date:        d,
			Type:        TxAbsenceCredit,
			Hours:       result.AbsenceCredit,
			Description: fmt.Sprintf("paid absence credited %s", FormatHours(result.AbsenceCredit)),
		}, now); err != nil {
			return err
		}
	}
	if !result.Corrections.IsZero() {
		if err := Append(ctx, s, &Transaction{
			UserID:      user.ID,
			Date:        d,
			Type:        TxCorrection,
			Hours:       result.Corrections,
			Description: fmt.Sprintf("manual correction %s", FormatHours(result.Corrections)),
		}, now); err != nil {
			return err
		}
	}
	return nil
}

// ComputeDayFor assembles the raw inputs for one (user, date) from the store
// and runs the pure calculator. Also used by the report endpoint for live
// cross-checks.
func (o *Orchestrator) ComputeDayFor(ctx context.Context, s Store, user *User, d Date) (DayResult, error) {
	target, err := o.cal.DailyTargetHours(ctx, user, d)
	if err != nil {
		return DayResult{}, err
	}
	worked, err := WorkedHours(ctx, s, user.ID, d)
	if err != nil {
		return DayResult{}, err
	}
	absences, err := ActiveAbsenceTypes(ctx, s, user.ID, d)
	if err != nil {
		return DayResult{}, err
	}
	corrections, err := CorrectionSum(ctx, s, user.ID, d)
	if err != nil {
		return DayResult{}, err
	}
	return ComputeDay(DayInput{
		Date:        d,
		Target:      target,
		Worked:      worked,
		Absences:    absences,
		Corrections: corrections,
	}), nil
}

// refreshMonth recomputes the denormalized monthly balance by summing the
// daily results from the first of the month up to min(today, month end).
// Future days contribute nothing.
func (o *Orchestrator) refreshMonth(ctx context.Context, s Store, user *User, month YearMonth) error {
	end := month.Last()
	today := o.clock.Today()
	if today.Before(end) {
		end = today
	}

	target := decimal.Zero
	actual := decimal.Zero
	for d := month.First(); d.BeforeOrEqual(end); d = d.AddDays(1) {
		result, err := o.ComputeDayFor(ctx, s, user, d)
		if err != nil {
			return err
		}
		target = target.Add(result.EffectiveTarget)
		actual = actual.Add(result.Actual)
	}

	return s.SaveMonthlyBalance(ctx, MonthlyBalance{
		UserID:      user.ID,
		Month:       month,
		TargetHours: target,
		ActualHours: actual,
		UpdatedAt:   o.clock.Now(),
	})
}

func (o *Orchestrator) publishUpdated(userID string, dates []Date, balance decimal.Decimal) {
	strs := make([]string, len(dates))
	for i, d := range dates {
		strs[i] = d.String()
	}
	o.bus.Publish(Event{
		Kind:   EventOvertimeUpdated,
		UserID: userID,
		Payload: BalanceChanged{
			UserID:     userID,
			Dates:      strs,
			NewBalance: balance.StringFixed(2),
		},
	})
}

// dedupeDates sorts and removes duplicates.
func dedupeDates(dates []Date) []Date {
	seen := make(map[Date]struct{}, len(dates))
	out := make([]Date, 0, len(dates))
	for _, d := range dates {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sortDates(out)
	return out
}

func sortDates(dates []Date) {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
}

func monthsOf(dates []Date) []YearMonth {
	seen := make(map[YearMonth]struct{})
	out := make([]YearMonth, 0, 2)
	for _, d := range dates {
		ym := d.YearMonth()
		if _, ok := seen[ym]; ok {
			continue
		}
		seen[ym] = struct{}{}
		out = append(out, ym)
	}
	return out
}
