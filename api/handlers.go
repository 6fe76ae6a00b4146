/*
handlers.go - HTTP API handlers for the overtime accounting engine

PURPOSE:
  Exposes the engine via REST API. Handles HTTP request/response, JSON
  serialization and input validation, and delegates to the engine services.

ENDPOINTS:
  Users:
    GET    /api/users                     List users
    POST   /api/users                     Create user
    GET    /api/users/{id}                Get user
    PUT    /api/users/{id}                Update user (recompute on schedule change)
    DELETE /api/users/{id}                Soft-delete user
    GET    /api/users/{id}/balance        Current overtime balance
    GET    /api/users/{id}/transactions   Journal history
    GET    /api/users/{id}/time-entries   Time entries in range
    GET    /api/users/{id}/corrections    Corrections in range
    GET    /api/users/{id}/vacation       Vacation balance per year

  Time:
    POST   /api/time-entries              Create/overwrite day entry
    DELETE /api/time-entries/{id}         Remove entry

  Absences:
    POST   /api/absences                  File pending request
    GET    /api/absences                  List by user/status
    POST   /api/absences/{id}/decision    approve | reject | reset

  Corrections:
    POST   /api/overtime-corrections      Admin-signed delta
    DELETE /api/overtime-corrections/{id} Remove correction

  Reports:
    GET    /api/reports/overtime          Live breakdown, 409 on cache drift

  Holidays:
    GET    /api/holidays                  List in range
    POST   /api/holidays                  Create (recomputes affected users)
    DELETE /api/holidays/{date}           Remove

  Admin:
    POST   /api/admin/rollover            Trigger year-end rollover

ERROR HANDLING:
  Engine errors map onto HTTP status by class:
  - InvalidInput        400
  - NotFound            404
  - Conflict            409
  - Inconsistent        409 (report refuses stale value)
  - PreconditionFailed  422
  - Transient           503
  - anything else       500

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - ws.go: Event stream
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/timegrid/overtime-engine/engine"
	"github.com/timegrid/overtime-engine/logger"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Users     *engine.UserService
	Timesheet *engine.TimesheetService
	Absences  *engine.AbsenceService
	Reports   *engine.Reporter
	Rollover  *engine.Rollover
	Store     engine.TxStore
	Clock     engine.Clock

	validate *validator.Validate
	log      *logger.Logger
}

// NewHandler creates a new handler wired to the engine services.
func NewHandler(users *engine.UserService, timesheet *engine.TimesheetService, absences *engine.AbsenceService, reports *engine.Reporter, rollover *engine.Rollover, store engine.TxStore, clock engine.Clock, log *logger.Logger) *Handler {
	return &Handler{
		Users:     users,
		Timesheet: timesheet,
		Absences:  absences,
		Reports:   reports,
		Rollover:  rollover,
		Store:     store,
		Clock:     clock,
		validate:  validator.New(),
		log:       log.WithComponent("api"),
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all non-deleted users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Users.List(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	dtos := make([]UserDTO, len(users))
	for i := range users {
		dtos[i] = toUserDTO(&users[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateUser registers a new user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.userFromRequest(req)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if err := h.Users.Create(r.Context(), user); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

// GetUser returns a single user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// UpdateUser updates the user, recomputing history on schedule changes.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.userFromRequest(req)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	user.ID = chi.URLParam(r, "id")
	if err := h.Users.Update(r.Context(), user); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// DeleteUser soft-deletes the user.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Users.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) userFromRequest(req CreateUserRequest) (*engine.User, error) {
	hire, err := engine.ParseDate(req.HireDate)
	if err != nil {
		return nil, err
	}
	user := &engine.User{
		Username:            req.Username,
		Email:               req.Email,
		Role:                engine.Role(req.Role),
		WeeklyHours:         decimal.NewFromFloat(req.WeeklyHours),
		HireDate:            hire,
		VacationDaysPerYear: decimal.NewFromFloat(req.VacationDays),
	}
	if req.EndDate != nil {
		end, err := engine.ParseDate(*req.EndDate)
		if err != nil {
			return nil, err
		}
		user.EndDate = &end
	}
	schedule, err := scheduleFromWire(req.WorkSchedule)
	if err != nil {
		return nil, err
	}
	user.WorkSchedule = schedule
	return user, nil
}

// GetBalance returns the user's current overtime balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Users.Get(r.Context(), id); err != nil {
		h.writeEngineError(w, err)
		return
	}
	balance, err := engine.Balance(r.Context(), h.Store, id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		UserID:    id,
		Balance:   f64(balance),
		Formatted: engine.FormatHours(balance),
	})
}

// GetTransactions returns the user's journal entries, optionally filtered
// by from/to dates and type.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	filter := engine.TransactionFilter{}
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := engine.ParseDate(v)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		filter.From = &d
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := engine.ParseDate(v)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		filter.To = &d
	}
	if v := r.URL.Query().Get("type"); v != "" {
		filter.Types = []engine.TransactionType{engine.TransactionType(v)}
	}
	txs, err := h.Store.Transactions(r.Context(), id, filter)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetVacation returns the user's vacation balance for a year.
func (h *Handler) GetVacation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	year := h.Clock.Today().Year()
	if v := r.URL.Query().Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeEngineError(w, &engine.InvalidInputError{Field: "year", Value: v, Reason: "not a number"})
			return
		}
		year = n
	}
	balance, err := h.Absences.VacationBalanceFor(r.Context(), id, year)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVacationDTO(balance))
}

// =============================================================================
// TIME ENTRY HANDLERS
// =============================================================================

// UpsertTimeEntry creates or overwrites the day's entry and returns the
// post-mutation monthly overtime.
func (h *Handler) UpsertTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req UpsertTimeEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := engine.ParseDate(req.Date)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	entry, month, err := h.Timesheet.UpsertEntry(r.Context(), req.UserID, date, engine.TimeEntry{
		Hours: decimal.NewFromFloat(req.Hours),
		Note:  req.Note,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	resp := TimeEntryResponse{
		Entry: toTimeEntryDTO(entry),
		Month: date.YearMonth().String(),
	}
	if month != nil {
		resp.MonthlyOvertime = f64(month.Overtime())
	}
	writeJSON(w, http.StatusOK, resp)
}

// DeleteTimeEntry removes the entry and recomputes its date.
func (h *Handler) DeleteTimeEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.Timesheet.DeleteEntry(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTimeEntries returns the user's entries in a date range.
func (h *Handler) ListTimeEntries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	from, to, err := h.rangeParams(r)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	entries, err := h.Timesheet.Entries(r.Context(), id, from, to)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	dtos := make([]TimeEntryDTO, len(entries))
	for i := range entries {
		dtos[i] = toTimeEntryDTO(&entries[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ABSENCE HANDLERS
// =============================================================================

// CreateAbsence files a new pending request.
func (h *Handler) CreateAbsence(w http.ResponseWriter, r *http.Request) {
	var req CreateAbsenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := engine.ParseDate(req.StartDate)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	end, err := engine.ParseDate(req.EndDate)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	absence := &engine.AbsenceRequest{
		UserID:    req.UserID,
		Type:      engine.AbsenceType(req.Type),
		StartDate: start,
		EndDate:   end,
		Reason:    req.Reason,
	}
	if err := h.Absences.Create(r.Context(), absence); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAbsenceDTO(absence))
}

// ListAbsences returns requests for a user, optionally by status.
func (h *Handler) ListAbsences(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		h.writeEngineError(w, &engine.InvalidInputError{Field: "user", Reason: "required"})
		return
	}
	var status *engine.AbsenceStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st := engine.AbsenceStatus(v)
		status = &st
	}
	absences, err := h.Absences.List(r.Context(), userID, status)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	dtos := make([]AbsenceDTO, len(absences))
	for i := range absences {
		dtos[i] = toAbsenceDTO(&absences[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DecideAbsence applies an admin transition: approve, reject or reset.
func (h *Handler) DecideAbsence(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	absence, err := h.Absences.Decide(r.Context(), chi.URLParam(r, "id"),
		engine.DecisionAction(req.Action), req.DecidedBy)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAbsenceDTO(absence))
}

// =============================================================================
// CORRECTION HANDLERS
// =============================================================================

// CreateCorrection records an admin-signed delta.
func (h *Handler) CreateCorrection(w http.ResponseWriter, r *http.Request) {
	var req CreateCorrectionRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := engine.ParseDate(req.Date)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	correction, err := h.Timesheet.CreateCorrection(r.Context(), &engine.Correction{
		UserID:    req.UserID,
		Date:      date,
		Hours:     decimal.NewFromFloat(req.Hours),
		Reason:    req.Reason,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCorrectionDTO(correction))
}

// DeleteCorrection removes the correction and recomputes its date.
func (h *Handler) DeleteCorrection(w http.ResponseWriter, r *http.Request) {
	if err := h.Timesheet.DeleteCorrection(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCorrections returns the user's corrections in a date range.
func (h *Handler) ListCorrections(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	from, to, err := h.rangeParams(r)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	corrections, err := h.Timesheet.Corrections(r.Context(), id, from, to)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	dtos := make([]CorrectionDTO, len(corrections))
	for i := range corrections {
		dtos[i] = toCorrectionDTO(&corrections[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetOvertimeReport returns the live daily + monthly + summary breakdown.
// Returns 409 when the live recompute disagrees with the cache.
func (h *Handler) GetOvertimeReport(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		h.writeEngineError(w, &engine.InvalidInputError{Field: "user", Reason: "required"})
		return
	}
	yearStr := r.URL.Query().Get("year")
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		h.writeEngineError(w, &engine.InvalidInputError{Field: "year", Value: yearStr, Reason: "not a number"})
		return
	}
	var month *time.Month
	if v := r.URL.Query().Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 12 {
			h.writeEngineError(w, &engine.InvalidInputError{Field: "month", Value: v, Reason: "must be 1-12"})
			return
		}
		m := time.Month(n)
		month = &m
	}
	report, err := h.Reports.Overtime(r.Context(), userID, year, month)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns holidays in a range (defaults to the current year).
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year := h.Clock.Today().Year()
	from := engine.NewDate(year, time.January, 1)
	to := engine.NewDate(year, time.December, 31)
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := engine.ParseDate(v)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		from = d
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := engine.ParseDate(v)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		to = d
	}
	holidays, err := h.Users.Holidays(r.Context(), from, to)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	dtos := make([]HolidayDTO, len(holidays))
	for i, hd := range holidays {
		dtos[i] = HolidayDTO{Date: hd.Date.String(), Name: hd.Name, Scope: hd.Scope}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday registers a holiday and recomputes affected users.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := engine.ParseDate(req.Date)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	holiday := engine.Holiday{Date: date, Name: req.Name, Scope: req.Scope}
	if err := h.Users.AddHoliday(r.Context(), holiday); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, HolidayDTO{Date: req.Date, Name: req.Name, Scope: req.Scope})
}

// DeleteHoliday removes a holiday and recomputes affected users.
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	date, err := engine.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if err := h.Users.RemoveHoliday(r.Context(), date); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerRollover runs the year-end rollover for a completed year.
func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Year >= h.Clock.Today().Year() {
		h.writeEngineError(w, &engine.PreconditionError{
			Rule:   "rollover-completed-year",
			Detail: "can only roll over a completed year",
		})
		return
	}
	if err := h.Rollover.Run(r.Context(), req.Year); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": req.Year, "status": "completed"})
}

// Health is the liveness endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed", err)
		return false
	}
	return true
}

func (h *Handler) rangeParams(r *http.Request) (engine.Date, engine.Date, error) {
	from := engine.DateMin
	to := engine.DateMax
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := engine.ParseDate(v)
		if err != nil {
			return from, to, err
		}
		from = d
	}
	if v := r.URL.Query().Get("to"); v != "" {
		d, err := engine.ParseDate(v)
		if err != nil {
			return from, to, err
		}
		to = d
	}
	return from, to, nil
}

// writeEngineError maps engine error classes to HTTP status codes.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid input", err)
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, engine.ErrInconsistent):
		writeError(w, http.StatusConflict, "inconsistent: live recompute disagrees with cache", err)
	case errors.Is(err, engine.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, engine.ErrPreconditionFailed):
		writeError(w, http.StatusUnprocessableEntity, "precondition failed", err)
	case errors.Is(err, engine.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, retry", err)
	default:
		h.log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
