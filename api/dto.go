/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request structs carry go-playground/validator tags; handlers run the
  shared validator before touching domain logic. Domain rules (hire-date
  bounds, overlap checks, transition legality) stay in the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/types.go: Domain model
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/timegrid/overtime-engine/engine"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// UpsertTimeEntryRequest creates or overwrites the day's entry.
type UpsertTimeEntryRequest struct {
	UserID string  `json:"user_id" validate:"required"`
	Date   string  `json:"date" validate:"required,datetime=2006-01-02"`
	Hours  float64 `json:"hours" validate:"gte=0,lte=24"`
	Note   string  `json:"note" validate:"max=500"`
}

// CreateAbsenceRequest files a new pending absence.
type CreateAbsenceRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	Type      string `json:"type" validate:"required,oneof=vacation sick overtime_comp special unpaid"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason" validate:"max=500"`
}

// DecisionRequest applies an admin transition to an absence.
type DecisionRequest struct {
	Action    string `json:"action" validate:"required,oneof=approve reject reset"`
	DecidedBy string `json:"decided_by" validate:"required"`
	Note      string `json:"note" validate:"max=500"`
}

// CreateCorrectionRequest records an admin-signed overtime delta.
type CreateCorrectionRequest struct {
	UserID    string  `json:"user_id" validate:"required"`
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Hours     float64 `json:"hours" validate:"required,gte=-24,lte=24"`
	Reason    string  `json:"reason" validate:"required,max=500"`
	CreatedBy string  `json:"created_by" validate:"required"`
}

// CreateUserRequest registers a new user.
type CreateUserRequest struct {
	Username     string             `json:"username" validate:"required,min=2,max=100"`
	Email        string             `json:"email" validate:"omitempty,email"`
	Role         string             `json:"role" validate:"required,oneof=admin employee"`
	WeeklyHours  float64            `json:"weekly_hours" validate:"gte=0,lte=80"`
	WorkSchedule map[string]float64 `json:"work_schedule,omitempty" validate:"omitempty,dive,gte=0,lte=24"`
	HireDate     string             `json:"hire_date" validate:"required,datetime=2006-01-02"`
	EndDate      *string            `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	VacationDays float64            `json:"vacation_days" validate:"gte=0,lte=365"`
}

// CreateHolidayRequest registers a public holiday.
type CreateHolidayRequest struct {
	Date  string `json:"date" validate:"required,datetime=2006-01-02"`
	Name  string `json:"name" validate:"required,max=200"`
	Scope string `json:"scope" validate:"max=100"`
}

// RolloverRequest triggers the year-end job for a completed year.
type RolloverRequest struct {
	Year int `json:"year" validate:"required,gte=2000,lte=2200"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// UserDTO represents a user in API responses.
type UserDTO struct {
	ID           string             `json:"id"`
	Username     string             `json:"username"`
	Email        string             `json:"email,omitempty"`
	Role         string             `json:"role"`
	WeeklyHours  float64            `json:"weekly_hours"`
	WorkSchedule map[string]float64 `json:"work_schedule,omitempty"`
	HireDate     string             `json:"hire_date"`
	EndDate      *string            `json:"end_date,omitempty"`
	VacationDays float64            `json:"vacation_days"`
	CreatedAt    string             `json:"created_at,omitempty"`
}

// TimeEntryDTO represents a time entry.
type TimeEntryDTO struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Date      string  `json:"date"`
	Hours     float64 `json:"hours"`
	Note      string  `json:"note,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// TimeEntryResponse carries the saved entry plus the post-mutation monthly
// overtime so the client needs no second round trip.
type TimeEntryResponse struct {
	Entry           TimeEntryDTO `json:"entry"`
	Month           string       `json:"month"`
	MonthlyOvertime float64      `json:"monthly_overtime"`
}

// AbsenceDTO represents an absence request.
type AbsenceDTO struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Type      string  `json:"type"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Status    string  `json:"status"`
	DecidedBy *string `json:"decided_by,omitempty"`
	DecidedAt *string `json:"decided_at,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// CorrectionDTO represents an overtime correction.
type CorrectionDTO struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Date      string  `json:"date"`
	Hours     float64 `json:"hours"`
	Reason    string  `json:"reason"`
	CreatedBy string  `json:"created_by"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// TransactionDTO represents a journal entry.
type TransactionDTO struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	Date          string  `json:"date"`
	Type          string  `json:"type"`
	Hours         float64 `json:"hours"`
	BalanceBefore float64 `json:"balance_before"`
	BalanceAfter  float64 `json:"balance_after"`
	ReferenceKind string  `json:"reference_kind,omitempty"`
	ReferenceID   string  `json:"reference_id,omitempty"`
	Description   string  `json:"description,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

// BalanceDTO is the current account state for one user.
type BalanceDTO struct {
	UserID    string  `json:"user_id"`
	Balance   float64 `json:"balance"`
	Formatted string  `json:"formatted"`
}

// VacationBalanceDTO is the vacation day accounting for one year.
type VacationBalanceDTO struct {
	UserID      string  `json:"user_id"`
	Year        int     `json:"year"`
	Entitlement float64 `json:"entitlement"`
	Carryover   float64 `json:"carryover"`
	Taken       float64 `json:"taken"`
	Pending     float64 `json:"pending"`
	Remaining   float64 `json:"remaining"`
}

// DayReportDTO is one day of the overtime report.
type DayReportDTO struct {
	Date            string  `json:"date"`
	Target          float64 `json:"target"`
	EffectiveTarget float64 `json:"effective_target"`
	Worked          float64 `json:"worked"`
	AbsenceCredit   float64 `json:"absence_credit"`
	Corrections     float64 `json:"corrections"`
	Actual          float64 `json:"actual"`
	Overtime        float64 `json:"overtime"`
}

// MonthReportDTO is one month of the overtime report.
type MonthReportDTO struct {
	Month    string         `json:"month"`
	Target   float64        `json:"target"`
	Actual   float64        `json:"actual"`
	Overtime float64        `json:"overtime"`
	Days     []DayReportDTO `json:"days"`
}

// OvertimeReportDTO is the full report response.
type OvertimeReportDTO struct {
	UserID           string           `json:"user_id"`
	Year             int              `json:"year"`
	Months           []MonthReportDTO `json:"months"`
	TotalTarget      float64          `json:"total_target"`
	TotalActual      float64          `json:"total_actual"`
	TotalOvertime    float64          `json:"total_overtime"`
	Balance          float64          `json:"balance"`
	FormattedBalance string           `json:"formatted_balance"`
}

// HolidayDTO represents a public holiday.
type HolidayDTO struct {
	Date  string `json:"date"`
	Name  string `json:"name"`
	Scope string `json:"scope,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func f64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func toUserDTO(u *engine.User) UserDTO {
	dto := UserDTO{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         string(u.Role),
		WeeklyHours:  f64(u.WeeklyHours),
		HireDate:     u.HireDate.String(),
		VacationDays: f64(u.VacationDaysPerYear),
		CreatedAt:    u.CreatedAt.Format(time.RFC3339),
	}
	if u.EndDate != nil {
		s := u.EndDate.String()
		dto.EndDate = &s
	}
	if u.WorkSchedule != nil {
		dto.WorkSchedule = scheduleToWire(u.WorkSchedule)
	}
	return dto
}

var wireWeekdays = map[string]time.Weekday{
	"mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday, "sun": time.Sunday,
}

func scheduleToWire(s engine.WorkSchedule) map[string]float64 {
	names := make(map[time.Weekday]string, len(wireWeekdays))
	for name, day := range wireWeekdays {
		names[day] = name
	}
	out := make(map[string]float64, len(s))
	for day, hours := range s {
		out[names[day]] = f64(hours)
	}
	return out
}

func scheduleFromWire(raw map[string]float64) (engine.WorkSchedule, error) {
	if raw == nil {
		return nil, nil
	}
	out := make(engine.WorkSchedule, len(raw))
	for name, hours := range raw {
		day, ok := wireWeekdays[name]
		if !ok {
			return nil, &engine.InvalidInputError{Field: "work_schedule", Value: name, Reason: "unknown weekday"}
		}
		out[day] = decimal.NewFromFloat(hours)
	}
	return out, nil
}

func toTimeEntryDTO(e *engine.TimeEntry) TimeEntryDTO {
	return TimeEntryDTO{
		ID:        e.ID,
		UserID:    e.UserID,
		Date:      e.Date.String(),
		Hours:     f64(e.Hours),
		Note:      e.Note,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

func toAbsenceDTO(a *engine.AbsenceRequest) AbsenceDTO {
	dto := AbsenceDTO{
		ID:        a.ID,
		UserID:    a.UserID,
		Type:      string(a.Type),
		StartDate: a.StartDate.String(),
		EndDate:   a.EndDate.String(),
		Status:    string(a.Status),
		Reason:    a.Reason,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
	dto.DecidedBy = a.DecidedBy
	if a.DecidedAt != nil {
		s := a.DecidedAt.Format(time.RFC3339)
		dto.DecidedAt = &s
	}
	return dto
}

func toCorrectionDTO(c *engine.Correction) CorrectionDTO {
	return CorrectionDTO{
		ID:        c.ID,
		UserID:    c.UserID,
		Date:      c.Date.String(),
		Hours:     f64(c.Hours),
		Reason:    c.Reason,
		CreatedBy: c.CreatedBy,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTO(tx engine.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:            tx.ID,
		UserID:        tx.UserID,
		Date:          tx.Date.String(),
		Type:          string(tx.Type),
		Hours:         f64(tx.Hours),
		BalanceBefore: f64(tx.BalanceBefore),
		BalanceAfter:  f64(tx.BalanceAfter),
		ReferenceKind: string(tx.ReferenceKind),
		ReferenceID:   tx.ReferenceID,
		Description:   tx.Description,
		CreatedAt:     tx.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []engine.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toVacationDTO(v *engine.VacationBalance) VacationBalanceDTO {
	return VacationBalanceDTO{
		UserID:      v.UserID,
		Year:        v.Year,
		Entitlement: f64(v.Entitlement),
		Carryover:   f64(v.Carryover),
		Taken:       f64(v.Taken),
		Pending:     f64(v.Pending),
		Remaining:   f64(v.Remaining()),
	}
}

func toReportDTO(r *engine.OvertimeReport) OvertimeReportDTO {
	dto := OvertimeReportDTO{
		UserID:           r.UserID,
		Year:             r.Year,
		TotalTarget:      f64(r.TotalTarget),
		TotalActual:      f64(r.TotalActual),
		TotalOvertime:    f64(r.TotalOvertime),
		Balance:          f64(r.Balance),
		FormattedBalance: r.FormattedBalance,
	}
	for _, m := range r.Months {
		md := MonthReportDTO{
			Month:    m.Month.String(),
			Target:   f64(m.Target),
			Actual:   f64(m.Actual),
			Overtime: f64(m.Overtime),
		}
		for _, d := range m.Days {
			md.Days = append(md.Days, DayReportDTO{
				Date:            d.Date.String(),
				Target:          f64(d.Target),
				EffectiveTarget: f64(d.EffectiveTarget),
				Worked:          f64(d.Worked),
				AbsenceCredit:   f64(d.AbsenceCredit),
				Corrections:     f64(d.Corrections),
				Actual:          f64(d.Actual),
				Overtime:        f64(d.Overtime),
			})
		}
		dto.Months = append(dto.Months, md)
	}
	return dto
}
