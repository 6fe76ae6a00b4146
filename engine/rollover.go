/*
rollover.go - Year-end rollover

On January 1 the job closes the previous year for every user:

  - append a zero-hours carryover marker dated Jan 1 of the new year whose
    description records the balance carried over (the chain itself already
    carries the balance forward)
  - seed the new year's vacation balance: carryover = max(0, remaining of
    the old year) subject to the configured cap, entitlement reset to the
    user's annual value

A store-level lease keeps concurrent runners from doubling the work; it
expires after an hour, and the marker's (userId, year) reference makes
rolling a single user idempotent, so a crashed run resumes on the next
firing without manual cleanup.
*/
package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// rolloverLeaseTTL bounds how long a dead runner's lease blocks the year.
// Well above a full run, well below the gap between scheduler firings.
const rolloverLeaseTTL = time.Hour

// Rollover closes out a completed year.
type Rollover struct {
	store  TxStore
	orch   *Orchestrator
	clock  Clock
	config Config
	log    zerolog.Logger
}

func NewRollover(store TxStore, orch *Orchestrator, clock Clock, config Config, log zerolog.Logger) *Rollover {
	return &Rollover{
		store:  store,
		orch:   orch,
		clock:  clock,
		config: config,
		log:    log.With().Str("component", "rollover").Logger(),
	}
}

// Run rolls the completed year over for every non-deleted user. It is safe
// to call repeatedly: the lease stops concurrent runners and the per-user
// marker stops double application.
func (r *Rollover) Run(ctx context.Context, year int) error {
	owner := uuid.NewString()
	acquired, err := r.store.AcquireRolloverLease(ctx, year, owner, r.clock.Now(), rolloverLeaseTTL)
	if err != nil {
		return err
	}
	if !acquired {
		r.log.Info().Int("year", year).Msg("rollover lease held elsewhere, skipping")
		return nil
	}

	users, err := r.store.ListUsers(ctx, false)
	if err != nil {
		return err
	}

	var failed int
	for i := range users {
		user := &users[i]
		if err := r.RollUser(ctx, user, year); err != nil {
			failed++
			r.log.Error().Err(err).Str("user_id", user.ID).Int("year", year).
				Msg("rollover failed for user")
		}
	}
	if failed > 0 {
		return fmt.Errorf("rollover %d: %d of %d users failed", year, failed, len(users))
	}
	r.log.Info().Int("year", year).Int("users", len(users)).Msg("rollover complete")
	return nil
}

// RollUser applies the rollover for one user. No-op when the user's marker
// for the year already exists.
func (r *Rollover) RollUser(ctx context.Context, user *User, year int) error {
	return r.orch.WithUserLock(user.ID, func() error {
		return r.store.WithTx(ctx, func(s Store) error {
			refID := strconv.Itoa(year)
			existing, err := s.Transactions(ctx, user.ID, TransactionFilter{
				Kind:  RefYear,
				RefID: refID,
			})
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return nil
			}

			cutoff := NewDate(year, 12, 31)
			balance, err := BalanceAsOf(ctx, s, user.ID, cutoff)
			if err != nil {
				return err
			}

			if err := Append(ctx, s, &Transaction{
				UserID:        user.ID,
				Date:          NewDate(year+1, 1, 1),
				Type:          TxCarryover,
				Hours:         decimal.Zero,
				ReferenceKind: RefYear,
				ReferenceID:   refID,
				Description:   fmt.Sprintf("carryover from %d: %s", year, FormatHours(balance)),
			}, r.clock.Now()); err != nil {
				return err
			}
			// a catch-up run appends the marker after newer entries already
			// exist; re-chain so it takes its place at the year boundary
			if err := Rechain(ctx, s, user.ID); err != nil {
				return err
			}

			return r.rollVacation(ctx, s, user, year)
		})
	})
}

func (r *Rollover) rollVacation(ctx context.Context, s Store, user *User, year int) error {
	old, err := s.GetVacationBalance(ctx, user.ID, year)
	if err != nil {
		return err
	}

	carry := decimal.Zero
	if old != nil {
		// Undecided requests still reserve days in the old year; they come
		// back via the reject path if declined later.
		carry = old.Remaining()
		if carry.IsNegative() {
			carry = decimal.Zero
		}
	}
	if cap := r.config.VacationCarryoverCap; cap != nil && carry.GreaterThan(*cap) {
		carry = *cap
	}

	entitlement := user.VacationDaysPerYear
	if entitlement.IsZero() {
		entitlement = r.config.DefaultVacationDays
	}

	next, err := s.GetVacationBalance(ctx, user.ID, year+1)
	if err != nil {
		return err
	}
	if next == nil {
		next = &VacationBalance{UserID: user.ID, Year: year + 1}
	}
	next.Entitlement = entitlement
	next.Carryover = carry
	return s.SaveVacationBalance(ctx, *next)
}
