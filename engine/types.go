/*
Package engine implements the overtime accounting core: a deterministic,
event-sourced computation that translates time entries, absence decisions,
holidays, schedules and admin corrections into an append-only transaction
journal with running balances and a denormalized monthly balance cache.

KEY CONCEPTS IN THIS FILE (types.go):
  - User: identity plus the target-schedule inputs (weeklyHours, workSchedule,
    hire/end dates) the calendar needs
  - TimeEntry: raw worked hours per (user, date); multiple entries per day sum
  - AbsenceRequest: pending/approved/rejected leave over a date range
  - Correction: admin-entered signed hour delta for one date
  - Transaction: one journal entry carrying balanceBefore/balanceAfter
  - MonthlyBalance / VacationBalance: derived caches

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every hour quantity; storage rounds to
     two places, memory keeps full precision
  2. Reconstructability: the same balance must be derivable from the daily
     calculator, the monthly cache, and the journal, and they must agree
  3. Single writer: only the recompute orchestrator appends to the journal

SEE ALSO:
  - calendar.go: day classification and target hours
  - daily.go:    pure per-day calculation
  - journal.go:  chain arithmetic over transactions
  - orchestrator.go: the recompute pipeline that owns all journal writes
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURS - decimal helpers
// =============================================================================

// Hours constructs a decimal hour quantity from a float literal.
func Hours(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// RoundHours rounds to the two-decimal storage precision.
func RoundHours(v decimal.Decimal) decimal.Decimal { return v.Round(2) }

// hoursAgreeTolerance is the maximum drift allowed between the monthly cache
// and a live recompute (0.01 h).
var hoursAgreeTolerance = decimal.New(1, -2)

// HoursAgree reports whether two hour values agree within the 0.01 h
// rounding tolerance.
func HoursAgree(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(hoursAgreeTolerance)
}

// =============================================================================
// USER
// =============================================================================

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// WorkSchedule maps weekday to daily target hours. When present it fully
// supersedes WeeklyHours; an absent weekday means a zero target.
type WorkSchedule map[time.Weekday]decimal.Decimal

// User is an employee record. EndDate, when set, is the last effective day.
type User struct {
	ID                  string
	Username            string
	Email               string
	Role                Role
	WeeklyHours         decimal.Decimal
	WorkSchedule        WorkSchedule
	HireDate            Date
	EndDate             *Date
	VacationDaysPerYear decimal.Decimal
	DeletedAt           *time.Time
	CreatedAt           time.Time
}

// Active reports whether the user participates in accounting on the given
// date (hired, not past termination, not soft-deleted).
func (u *User) Active(date Date) bool {
	if u.DeletedAt != nil {
		return false
	}
	if date.Before(u.HireDate) {
		return false
	}
	if u.EndDate != nil && date.After(*u.EndDate) {
		return false
	}
	return true
}

// Validate checks the schedule inputs.
func (u *User) Validate() error {
	if u.WeeklyHours.IsNegative() || u.WeeklyHours.GreaterThan(Hours(80)) {
		return &InvalidInputError{Field: "weeklyHours", Value: u.WeeklyHours.String(), Reason: "must be within [0, 80]"}
	}
	for wd, h := range u.WorkSchedule {
		if h.IsNegative() || h.GreaterThan(Hours(24)) {
			return &InvalidInputError{Field: "workSchedule." + wd.String(), Value: h.String(), Reason: "must be within [0, 24]"}
		}
	}
	if u.HireDate.IsZero() {
		return &InvalidInputError{Field: "hireDate", Value: "", Reason: "required"}
	}
	if u.EndDate != nil && u.EndDate.Before(u.HireDate) {
		return &InvalidInputError{Field: "endDate", Value: u.EndDate.String(), Reason: "precedes hire date"}
	}
	return nil
}

// =============================================================================
// TIME ENTRY
// =============================================================================

// TimeEntry is one booked block of worked hours on a date. Multiple entries
// per day are allowed; their sum is the day's worked time.
type TimeEntry struct {
	ID        string
	UserID    string
	Date      Date
	Hours     decimal.Decimal
	Note      string
	CreatedAt time.Time
}

func (e *TimeEntry) Validate() error {
	if e.Hours.IsNegative() || e.Hours.GreaterThan(Hours(24)) {
		return &InvalidInputError{Field: "hours", Value: e.Hours.String(), Reason: "must be within [0, 24]"}
	}
	return nil
}

// =============================================================================
// ABSENCE
// =============================================================================

type AbsenceType string

const (
	AbsenceVacation     AbsenceType = "vacation"
	AbsenceSick         AbsenceType = "sick"
	AbsenceOvertimeComp AbsenceType = "overtime_comp"
	AbsenceSpecial      AbsenceType = "special"
	AbsenceUnpaid       AbsenceType = "unpaid"
)

// Paid reports whether an approved absence of this type credits the scheduled
// target on working days. Unpaid leave zeroes the target instead.
func (t AbsenceType) Paid() bool { return t != AbsenceUnpaid }

// ValidAbsenceType reports whether the wire value names a known type.
func ValidAbsenceType(t AbsenceType) bool {
	switch t {
	case AbsenceVacation, AbsenceSick, AbsenceOvertimeComp, AbsenceSpecial, AbsenceUnpaid:
		return true
	}
	return false
}

type AbsenceStatus string

const (
	AbsencePending  AbsenceStatus = "pending"
	AbsenceApproved AbsenceStatus = "approved"
	AbsenceRejected AbsenceStatus = "rejected"
)

// AbsenceRequest covers [StartDate, EndDate] inclusive. Ranges of different
// types may overlap; same type+status may not.
type AbsenceRequest struct {
	ID        string
	UserID    string
	Type      AbsenceType
	StartDate Date
	EndDate   Date
	Status    AbsenceStatus
	DecidedBy *string
	DecidedAt *time.Time
	Reason    string
	CreatedAt time.Time
}

func (a *AbsenceRequest) Validate() error {
	if !ValidAbsenceType(a.Type) {
		return &InvalidInputError{Field: "type", Value: string(a.Type), Reason: "unknown absence type"}
	}
	if a.EndDate.Before(a.StartDate) {
		return &InvalidInputError{Field: "endDate", Value: a.EndDate.String(), Reason: "precedes startDate"}
	}
	return nil
}

// Covers reports whether the absence range includes the date.
func (a *AbsenceRequest) Covers(date Date) bool {
	return date.AfterOrEqual(a.StartDate) && date.BeforeOrEqual(a.EndDate)
}

// =============================================================================
// HOLIDAY
// =============================================================================

// Holiday marks a date as a public holiday. Scope is informational; the
// holidays table is assumed already filtered to the tenant's region.
type Holiday struct {
	Date  Date
	Name  string
	Scope string
}

// =============================================================================
// CORRECTION
// =============================================================================

// Correction is an admin-entered signed hour delta for one date. Corrections
// count regardless of whether the day is a working day.
type Correction struct {
	ID        string
	UserID    string
	Date      Date
	Hours     decimal.Decimal
	Reason    string
	CreatedBy string
	CreatedAt time.Time
}

func (c *Correction) Validate() error {
	if c.Hours.Abs().GreaterThan(Hours(24)) {
		return &InvalidInputError{Field: "hours", Value: c.Hours.String(), Reason: "must be within [-24, 24]"}
	}
	if c.Reason == "" {
		return &InvalidInputError{Field: "reason", Value: "", Reason: "required"}
	}
	return nil
}

// =============================================================================
// JOURNAL TRANSACTION
// =============================================================================

type TransactionType string

const (
	TxEarned        TransactionType = "earned"         // worked minus effective target
	TxAbsenceCredit TransactionType = "absence_credit" // paid absence credited at scheduled target
	TxUnpaidAdjust  TransactionType = "unpaid_adjust"  // reserved; unpaid leave is implicit via target reduction
	TxCompensation  TransactionType = "compensation"   // overtime_comp spend, references the absence
	TxCorrection    TransactionType = "correction"     // admin correction delta
	TxCarryover     TransactionType = "carryover"      // year-boundary marker
)

// recomputable reports whether entries of this type are owned by the daily
// recompute (deleted and reinserted on every pass). Compensation and
// carryover reference independent domain events and survive recomputes.
func (t TransactionType) recomputable() bool {
	switch t {
	case TxEarned, TxAbsenceCredit, TxUnpaidAdjust, TxCorrection:
		return true
	}
	return false
}

// RecomputableTxTypes lists the journal entry types rewritten per day by the
// orchestrator.
var RecomputableTxTypes = []TransactionType{TxEarned, TxAbsenceCredit, TxUnpaidAdjust, TxCorrection}

type ReferenceKind string

const (
	RefAbsence    ReferenceKind = "absence"
	RefCorrection ReferenceKind = "correction"
	RefTimeEntry  ReferenceKind = "time_entry"
	RefYear       ReferenceKind = "year"
)

// Transaction is one journal entry. For a user, entries ordered by
// (date, createdAt, id) form a chain where each balanceBefore equals the
// previous balanceAfter (0 for the first entry).
type Transaction struct {
	ID            string
	UserID        string
	Date          Date
	Type          TransactionType
	Hours         decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReferenceKind ReferenceKind
	ReferenceID   string
	Description   string
	CreatedBy     string
	CreatedAt     time.Time
}

// TransactionFilter narrows journal reads. Zero values mean "no constraint".
type TransactionFilter struct {
	From  *Date
	To    *Date
	Types []TransactionType
	Kind  ReferenceKind
	RefID string
}

// Matches applies the filter in memory (used by the memory store and the
// journal's re-chain pass).
func (f TransactionFilter) Matches(tx *Transaction) bool {
	if f.From != nil && tx.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.Date.After(*f.To) {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if tx.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Kind != "" && tx.ReferenceKind != f.Kind {
		return false
	}
	if f.RefID != "" && tx.ReferenceID != f.RefID {
		return false
	}
	return true
}

// =============================================================================
// DERIVED BALANCES
// =============================================================================

// MonthlyBalance is the denormalized per-user-per-month cache. It is always
// re-derivable from raw inputs; the report endpoint cross-checks it.
type MonthlyBalance struct {
	UserID      string
	Month       YearMonth
	TargetHours decimal.Decimal
	ActualHours decimal.Decimal
	UpdatedAt   time.Time
}

// Overtime is actual minus target; can be negative.
func (m *MonthlyBalance) Overtime() decimal.Decimal {
	return m.ActualHours.Sub(m.TargetHours)
}

// VacationBalance tracks vacation days (not hours) per user per year.
type VacationBalance struct {
	UserID      string
	Year        int
	Entitlement decimal.Decimal
	Carryover   decimal.Decimal
	Taken       decimal.Decimal
	Pending     decimal.Decimal
}

// Remaining is entitlement + carryover - taken - pending.
func (v *VacationBalance) Remaining() decimal.Decimal {
	return v.Entitlement.Add(v.Carryover).Sub(v.Taken).Sub(v.Pending)
}
