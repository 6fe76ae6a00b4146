/*
store.go - Persistence contract for the engine

The Store interface covers every raw entity plus the journal and derived
caches. Two implementations exist: store/sqlite (production, one embedded
relational file) and store/memory (tests).

ORDERING CONTRACT:
  All list reads return stable (date ASC, createdAt ASC, id ASC) ordering so
  aggregation and re-chaining are deterministic.

OWNERSHIP:
  Journal writes (AppendTransaction, DeleteTransactions*,
  UpdateTransactionBalances) are reserved to the recompute orchestrator and
  the services it drives; no other component writes the journal.

ATOMICITY:
  Multi-statement writes run inside WithTx. Chain re-derivation after a
  delete MUST share the deleting transaction; partial application is
  forbidden.
*/
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the persistence interface for all engine state.
type Store interface {
	// --- Users ---
	SaveUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context, includeDeleted bool) ([]User, error)

	// --- Time entries ---
	SaveTimeEntry(ctx context.Context, e *TimeEntry) error
	GetTimeEntry(ctx context.Context, id string) (*TimeEntry, error)
	DeleteTimeEntry(ctx context.Context, id string) error
	TimeEntries(ctx context.Context, userID string, from, to Date) ([]TimeEntry, error)

	// --- Absences ---
	SaveAbsence(ctx context.Context, a *AbsenceRequest) error
	GetAbsence(ctx context.Context, id string) (*AbsenceRequest, error)
	ListAbsences(ctx context.Context, userID string, status *AbsenceStatus) ([]AbsenceRequest, error)
	// AbsencesOverlapping returns absences of the user intersecting
	// [from, to], optionally narrowed to given statuses.
	AbsencesOverlapping(ctx context.Context, userID string, from, to Date, statuses []AbsenceStatus) ([]AbsenceRequest, error)

	// --- Corrections ---
	SaveCorrection(ctx context.Context, c *Correction) error
	GetCorrection(ctx context.Context, id string) (*Correction, error)
	DeleteCorrection(ctx context.Context, id string) error
	Corrections(ctx context.Context, userID string, from, to Date) ([]Correction, error)

	// --- Holidays ---
	SaveHoliday(ctx context.Context, h Holiday) error
	DeleteHoliday(ctx context.Context, date Date) error
	Holidays(ctx context.Context, from, to Date) ([]Holiday, error)
	HolidayLookup

	// --- Journal ---
	AppendTransaction(ctx context.Context, tx *Transaction) error
	Transactions(ctx context.Context, userID string, f TransactionFilter) ([]Transaction, error)
	LastTransaction(ctx context.Context, userID string) (*Transaction, error)
	// DeleteTransactions removes entries of the user matching the filter and
	// returns how many were removed. Callers MUST re-chain afterwards within
	// the same enclosing transaction.
	DeleteTransactions(ctx context.Context, userID string, f TransactionFilter) (int, error)
	// UpdateTransactionBalances rewrites balanceBefore/balanceAfter for the
	// given entries (identified by ID) during re-chaining.
	UpdateTransactionBalances(ctx context.Context, txs []Transaction) error

	// --- Monthly balance cache ---
	SaveMonthlyBalance(ctx context.Context, m MonthlyBalance) error
	GetMonthlyBalance(ctx context.Context, userID string, month YearMonth) (*MonthlyBalance, error)
	MonthlyBalances(ctx context.Context, userID string, year int) ([]MonthlyBalance, error)

	// --- Vacation balances ---
	GetVacationBalance(ctx context.Context, userID string, year int) (*VacationBalance, error)
	SaveVacationBalance(ctx context.Context, v VacationBalance) error

	// --- Rollover lease ---
	// AcquireRolloverLease grants the year-end job ownership of one year's
	// rollover. A holder re-acquires its own lease, and a lease older than
	// ttl is taken over, so a crashed runner never blocks the year forever.
	// Returns false when another runner holds a fresh lease.
	AcquireRolloverLease(ctx context.Context, year int, owner string, now time.Time, ttl time.Duration) (bool, error)
}

// TxStore wraps Store with transaction support. fn runs against a Store view
// bound to the transaction; an error rolls everything back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// WorkedHours sums the user's time entries on one date.
func WorkedHours(ctx context.Context, s Store, userID string, date Date) (decimal.Decimal, error) {
	entries, err := s.TimeEntries(ctx, userID, date, date)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Hours)
	}
	return sum, nil
}

// ActiveAbsenceTypes lists the types of approved absences covering the date.
func ActiveAbsenceTypes(ctx context.Context, s Store, userID string, date Date) ([]AbsenceType, error) {
	absences, err := s.AbsencesOverlapping(ctx, userID, date, date, []AbsenceStatus{AbsenceApproved})
	if err != nil {
		return nil, err
	}
	types := make([]AbsenceType, 0, len(absences))
	for _, a := range absences {
		types = append(types, a.Type)
	}
	return types, nil
}

// CorrectionSum totals the correction deltas on one date.
func CorrectionSum(ctx context.Context, s Store, userID string, date Date) (decimal.Decimal, error) {
	corrections, err := s.Corrections(ctx, userID, date, date)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, c := range corrections {
		sum = sum.Add(c.Hours)
	}
	return sum, nil
}
