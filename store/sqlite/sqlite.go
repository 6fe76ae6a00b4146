/*
Package sqlite provides the SQLite-backed implementation of engine.TxStore.

PURPOSE:
  One embedded relational file owns all engine state: raw inputs (users,
  time entries, absences, corrections, holidays), the overtime journal,
  and the derived caches (monthly overtime, vacation balance).

JOURNAL SEMANTICS:
  overtime_transactions is append-only for external callers. The recompute
  orchestrator is the single component allowed to delete and rewrite rows,
  and only inside WithTx so the delete + reinsert + re-chain commits as one
  unit.

KEY TABLES:
  users:                  soft-deleted via deleted_at
  time_entries:           one row per user per date
  absence_requests:       state machine rows (pending/approved/rejected)
  overtime_corrections:   admin-signed deltas
  overtime_transactions:  the journal chain
  overtime_balance:       denormalized per-month cache
  vacation_balance:       per-year day accounting, generated remaining
  holidays:               unique per date
  rollover_leases:        one row per rolled-over year

WAL MODE:
  Opened with WAL and foreign keys on: multiple readers, single writer,
  synchronous commit. SQLITE_BUSY from writer contention maps to the
  engine's transient error class so the orchestrator retries.

USAGE:
  store, err := sqlite.New("./data/overtime.db")
  if err != nil { ... }
  defer store.Close()

SEE ALSO:
  - engine/store.go: interface definition and ordering contract
  - store/memory:    in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/timegrid/overtime-engine/engine"
)

// Store implements engine.TxStore on SQLite.
type Store struct {
	queries
	db *sqlx.DB
	mu sync.Mutex
}

// queries implements engine.Store against either the live connection or an
// open transaction; WithTx swaps the runner.
type queries struct {
	ext sqlx.ExtContext
}

// New opens (or creates) the database file and migrates the schema.
// Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; WAL readers don't need pool parallelism either
	db.SetMaxOpenConns(1)

	s := &Store{queries: queries{ext: db}, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT,
		role TEXT NOT NULL,
		weekly_hours NUMERIC NOT NULL,
		work_schedule TEXT,
		hire_date TEXT NOT NULL,
		end_date TEXT,
		vacation_days NUMERIC NOT NULL DEFAULT 0,
		deleted_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email
		ON users(email) WHERE email IS NOT NULL AND email != '';

	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		date TEXT NOT NULL,
		hours NUMERIC NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_time_entries_user_date
		ON time_entries(user_id, date DESC);

	CREATE TABLE IF NOT EXISTS absence_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		decided_by TEXT,
		decided_at TIMESTAMP,
		reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_absences_user_status_start
		ON absence_requests(user_id, status, start_date);

	CREATE TABLE IF NOT EXISTS overtime_corrections (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		date TEXT NOT NULL,
		hours NUMERIC NOT NULL,
		reason TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_corrections_user_date
		ON overtime_corrections(user_id, date);

	-- The journal chain. (user_id, date, created_at, id) is the journal
	-- order; balance columns are rewritten only during re-chaining.
	CREATE TABLE IF NOT EXISTS overtime_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		date TEXT NOT NULL,
		type TEXT NOT NULL,
		hours NUMERIC NOT NULL,
		balance_before NUMERIC NOT NULL,
		balance_after NUMERIC NOT NULL,
		reference_kind TEXT NOT NULL DEFAULT '',
		reference_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_date
		ON overtime_transactions(user_id, date, id);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON overtime_transactions(reference_kind, reference_id)
		WHERE reference_id != '';
	-- one carryover marker per user per year
	CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_carryover
		ON overtime_transactions(user_id, reference_id)
		WHERE type = 'carryover';

	CREATE TABLE IF NOT EXISTS overtime_balance (
		user_id TEXT NOT NULL REFERENCES users(id),
		month TEXT NOT NULL,
		target_hours NUMERIC NOT NULL,
		actual_hours NUMERIC NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, month)
	);

	CREATE TABLE IF NOT EXISTS vacation_balance (
		user_id TEXT NOT NULL REFERENCES users(id),
		year INTEGER NOT NULL,
		entitlement NUMERIC NOT NULL DEFAULT 0,
		carryover NUMERIC NOT NULL DEFAULT 0,
		taken NUMERIC NOT NULL DEFAULT 0,
		pending NUMERIC NOT NULL DEFAULT 0,
		remaining NUMERIC GENERATED ALWAYS AS
			(entitlement + carryover - taken - pending) VIRTUAL,
		PRIMARY KEY (user_id, year)
	);

	CREATE TABLE IF NOT EXISTS holidays (
		date TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS rollover_leases (
		year INTEGER PRIMARY KEY,
		owner TEXT NOT NULL,
		acquired_at TIMESTAMP NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx runs fn against a transaction-bound store view. Any error rolls
// the whole unit back.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{ext: tx}); err != nil {
		return err
	}
	return wrapErr("commit", tx.Commit())
}

// wrapErr maps driver errors onto the engine's error classes.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%s: %v: %w", op, err, engine.ErrTransient)
		case se.Code == sqlite3.ErrConstraint:
			return fmt.Errorf("%s: %v: %w", op, err, engine.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// =============================================================================
// USERS
// =============================================================================

type userRow struct {
	ID           string          `db:"id"`
	Username     string          `db:"username"`
	Email        sql.NullString  `db:"email"`
	Role         string          `db:"role"`
	WeeklyHours  decimal.Decimal `db:"weekly_hours"`
	WorkSchedule sql.NullString  `db:"work_schedule"`
	HireDate     string          `db:"hire_date"`
	EndDate      sql.NullString  `db:"end_date"`
	VacationDays decimal.Decimal `db:"vacation_days"`
	DeletedAt    sql.NullTime    `db:"deleted_at"`
	CreatedAt    time.Time       `db:"created_at"`
}

func (q *queries) SaveUser(ctx context.Context, u *engine.User) error {
	var schedule sql.NullString
	if u.WorkSchedule != nil {
		raw, err := json.Marshal(scheduleToJSON(u.WorkSchedule))
		if err != nil {
			return fmt.Errorf("marshal work schedule: %w", err)
		}
		schedule = sql.NullString{String: string(raw), Valid: true}
	}
	var endDate sql.NullString
	if u.EndDate != nil {
		endDate = sql.NullString{String: u.EndDate.String(), Valid: true}
	}
	var deletedAt sql.NullTime
	if u.DeletedAt != nil {
		deletedAt = sql.NullTime{Time: *u.DeletedAt, Valid: true}
	}
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO users (id, username, email, role, weekly_hours, work_schedule,
			hire_date, end_date, vacation_days, deleted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			email = excluded.email,
			role = excluded.role,
			weekly_hours = excluded.weekly_hours,
			work_schedule = excluded.work_schedule,
			hire_date = excluded.hire_date,
			end_date = excluded.end_date,
			vacation_days = excluded.vacation_days,
			deleted_at = excluded.deleted_at`,
		u.ID, u.Username, nullStr(u.Email), string(u.Role),
		u.WeeklyHours.Round(2), schedule, u.HireDate.String(), endDate,
		u.VacationDaysPerYear.Round(2), deletedAt, u.CreatedAt.UTC())
	return wrapErr("save user", err)
}

func (q *queries) GetUser(ctx context.Context, id string) (*engine.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, q.ext, &row, `SELECT * FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Entity: "user", ID: id}
	}
	if err != nil {
		return nil, wrapErr("get user", err)
	}
	return rowToUser(row)
}

func (q *queries) ListUsers(ctx context.Context, includeDeleted bool) ([]engine.User, error) {
	query := `SELECT * FROM users ORDER BY username`
	if !includeDeleted {
		query = `SELECT * FROM users WHERE deleted_at IS NULL ORDER BY username`
	}
	var rows []userRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query); err != nil {
		return nil, wrapErr("list users", err)
	}
	users := make([]engine.User, 0, len(rows))
	for _, row := range rows {
		u, err := rowToUser(row)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

func rowToUser(row userRow) (*engine.User, error) {
	hire, err := engine.ParseDate(row.HireDate)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", row.ID, err)
	}
	u := &engine.User{
		ID:                  row.ID,
		Username:            row.Username,
		Email:               row.Email.String,
		Role:                engine.Role(row.Role),
		WeeklyHours:         row.WeeklyHours,
		HireDate:            hire,
		VacationDaysPerYear: row.VacationDays,
		CreatedAt:           row.CreatedAt,
	}
	if row.EndDate.Valid {
		end, err := engine.ParseDate(row.EndDate.String)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", row.ID, err)
		}
		u.EndDate = &end
	}
	if row.DeletedAt.Valid {
		t := row.DeletedAt.Time
		u.DeletedAt = &t
	}
	if row.WorkSchedule.Valid {
		var raw map[string]string
		if err := json.Unmarshal([]byte(row.WorkSchedule.String), &raw); err != nil {
			return nil, fmt.Errorf("user %s work schedule: %w", row.ID, err)
		}
		schedule, err := scheduleFromJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("user %s work schedule: %w", row.ID, err)
		}
		u.WorkSchedule = schedule
	}
	return u, nil
}

var weekdayNames = map[time.Weekday]string{
	time.Monday: "mon", time.Tuesday: "tue", time.Wednesday: "wed",
	time.Thursday: "thu", time.Friday: "fri", time.Saturday: "sat", time.Sunday: "sun",
}

func scheduleToJSON(s engine.WorkSchedule) map[string]string {
	out := make(map[string]string, len(s))
	for day, hours := range s {
		out[weekdayNames[day]] = hours.String()
	}
	return out
}

func scheduleFromJSON(raw map[string]string) (engine.WorkSchedule, error) {
	byName := make(map[string]time.Weekday, len(weekdayNames))
	for day, name := range weekdayNames {
		byName[name] = day
	}
	out := make(engine.WorkSchedule, len(raw))
	for name, val := range raw {
		day, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", name)
		}
		hours, err := decimal.NewFromString(val)
		if err != nil {
			return nil, fmt.Errorf("weekday %s: %w", name, err)
		}
		out[day] = hours
	}
	return out, nil
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

type timeEntryRow struct {
	ID        string          `db:"id"`
	UserID    string          `db:"user_id"`
	Date      string          `db:"date"`
	Hours     decimal.Decimal `db:"hours"`
	Note      string          `db:"note"`
	CreatedAt time.Time       `db:"created_at"`
}

func (q *queries) SaveTimeEntry(ctx context.Context, e *engine.TimeEntry) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO time_entries (id, user_id, date, hours, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			hours = excluded.hours,
			note = excluded.note`,
		e.ID, e.UserID, e.Date.String(), e.Hours.Round(2), e.Note, e.CreatedAt.UTC())
	return wrapErr("save time entry", err)
}

func (q *queries) GetTimeEntry(ctx context.Context, id string) (*engine.TimeEntry, error) {
	var row timeEntryRow
	err := sqlx.GetContext(ctx, q.ext, &row, `SELECT * FROM time_entries WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Entity: "time entry", ID: id}
	}
	if err != nil {
		return nil, wrapErr("get time entry", err)
	}
	return rowToTimeEntry(row)
}

func (q *queries) DeleteTimeEntry(ctx context.Context, id string) error {
	res, err := q.ext.ExecContext(ctx, `DELETE FROM time_entries WHERE id = ?`, id)
	if err != nil {
		return wrapErr("delete time entry", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &engine.NotFoundError{Entity: "time entry", ID: id}
	}
	return nil
}

func (q *queries) TimeEntries(ctx context.Context, userID string, from, to engine.Date) ([]engine.TimeEntry, error) {
	var rows []timeEntryRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT * FROM time_entries
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date, created_at, id`,
		userID, from.String(), to.String())
	if err != nil {
		return nil, wrapErr("list time entries", err)
	}
	entries := make([]engine.TimeEntry, 0, len(rows))
	for _, row := range rows {
		e, err := rowToTimeEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

func rowToTimeEntry(row timeEntryRow) (*engine.TimeEntry, error) {
	date, err := engine.ParseDate(row.Date)
	if err != nil {
		return nil, fmt.Errorf("time entry %s: %w", row.ID, err)
	}
	return &engine.TimeEntry{
		ID:        row.ID,
		UserID:    row.UserID,
		Date:      date,
		Hours:     row.Hours,
		Note:      row.Note,
		CreatedAt: row.CreatedAt,
	}, nil
}

// =============================================================================
// ABSENCES
// =============================================================================

type absenceRow struct {
	ID        string         `db:"id"`
	UserID    string         `db:"user_id"`
	Type      string         `db:"type"`
	StartDate string         `db:"start_date"`
	EndDate   string         `db:"end_date"`
	Status    string         `db:"status"`
	DecidedBy sql.NullString `db:"decided_by"`
	DecidedAt sql.NullTime   `db:"decided_at"`
	Reason    string         `db:"reason"`
	CreatedAt time.Time      `db:"created_at"`
}

func (q *queries) SaveAbsence(ctx context.Context, a *engine.AbsenceRequest) error {
	var decidedBy sql.NullString
	if a.DecidedBy != nil {
		decidedBy = sql.NullString{String: *a.DecidedBy, Valid: true}
	}
	var decidedAt sql.NullTime
	if a.DecidedAt != nil {
		decidedAt = sql.NullTime{Time: *a.DecidedAt, Valid: true}
	}
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO absence_requests (id, user_id, type, start_date, end_date,
			status, decided_by, decided_at, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			decided_by = excluded.decided_by,
			decided_at = excluded.decided_at`,
		a.ID, a.UserID, string(a.Type), a.StartDate.String(), a.EndDate.String(),
		string(a.Status), decidedBy, decidedAt, a.Reason, a.CreatedAt.UTC())
	return wrapErr("save absence", err)
}

func (q *queries) GetAbsence(ctx context.Context, id string) (*engine.AbsenceRequest, error) {
	var row absenceRow
	err := sqlx.GetContext(ctx, q.ext, &row, `SELECT * FROM absence_requests WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Entity: "absence request", ID: id}
	}
	if err != nil {
		return nil, wrapErr("get absence", err)
	}
	return rowToAbsence(row)
}

func (q *queries) ListAbsences(ctx context.Context, userID string, status *engine.AbsenceStatus) ([]engine.AbsenceRequest, error) {
	query := `SELECT * FROM absence_requests WHERE user_id = ?`
	args := []any{userID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY start_date, created_at, id`
	return q.queryAbsences(ctx, query, args...)
}

func (q *queries) AbsencesOverlapping(ctx context.Context, userID string, from, to engine.Date, statuses []engine.AbsenceStatus) ([]engine.AbsenceRequest, error) {
	query := `SELECT * FROM absence_requests
		WHERE user_id = ? AND start_date <= ? AND end_date >= ?`
	args := []any{userID, to.String(), from.String()}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY start_date, created_at, id`
	return q.queryAbsences(ctx, query, args...)
}

func (q *queries) queryAbsences(ctx context.Context, query string, args ...any) ([]engine.AbsenceRequest, error) {
	var rows []absenceRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, wrapErr("list absences", err)
	}
	out := make([]engine.AbsenceRequest, 0, len(rows))
	for _, row := range rows {
		a, err := rowToAbsence(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func rowToAbsence(row absenceRow) (*engine.AbsenceRequest, error) {
	start, err := engine.ParseDate(row.StartDate)
	if err != nil {
		return nil, fmt.Errorf("absence %s: %w", row.ID, err)
	}
	end, err := engine.ParseDate(row.EndDate)
	if err != nil {
		return nil, fmt.Errorf("absence %s: %w", row.ID, err)
	}
	a := &engine.AbsenceRequest{
		ID:        row.ID,
		UserID:    row.UserID,
		Type:      engine.AbsenceType(row.Type),
		StartDate: start,
		EndDate:   end,
		Status:    engine.AbsenceStatus(row.Status),
		Reason:    row.Reason,
		CreatedAt: row.CreatedAt,
	}
	if row.DecidedBy.Valid {
		v := row.DecidedBy.String
		a.DecidedBy = &v
	}
	if row.DecidedAt.Valid {
		t := row.DecidedAt.Time
		a.DecidedAt = &t
	}
	return a, nil
}

// =============================================================================
// CORRECTIONS
// =============================================================================

type correctionRow struct {
	ID        string          `db:"id"`
	UserID    string          `db:"user_id"`
	Date      string          `db:"date"`
	Hours     decimal.Decimal `db:"hours"`
	Reason    string          `db:"reason"`
	CreatedBy string          `db:"created_by"`
	CreatedAt time.Time       `db:"created_at"`
}

func (q *queries) SaveCorrection(ctx context.Context, c *engine.Correction) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO overtime_corrections (id, user_id, date, hours, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Date.String(), c.Hours.Round(2), c.Reason, c.CreatedBy, c.CreatedAt.UTC())
	return wrapErr("save correction", err)
}

func (q *queries) GetCorrection(ctx context.Context, id string) (*engine.Correction, error) {
	var row correctionRow
	err := sqlx.GetContext(ctx, q.ext, &row, `SELECT * FROM overtime_corrections WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Entity: "correction", ID: id}
	}
	if err != nil {
		return nil, wrapErr("get correction", err)
	}
	return rowToCorrection(row)
}

func (q *queries) DeleteCorrection(ctx context.Context, id string) error {
	res, err := q.ext.ExecContext(ctx, `DELETE FROM overtime_corrections WHERE id = ?`, id)
	if err != nil {
		return wrapErr("delete correction", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &engine.NotFoundError{Entity: "correction", ID: id}
	}
	return nil
}

func (q *queries) Corrections(ctx context.Context, userID string, from, to engine.Date) ([]engine.Correction, error) {
	var rows []correctionRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT * FROM overtime_corrections
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date, created_at, id`,
		userID, from.String(), to.String())
	if err != nil {
		return nil, wrapErr("list corrections", err)
	}
	out := make([]engine.Correction, 0, len(rows))
	for _, row := range rows {
		c, err := rowToCorrection(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

func rowToCorrection(row correctionRow) (*engine.Correction, error) {
	date, err := engine.ParseDate(row.Date)
	if err != nil {
		return nil, fmt.Errorf("correction %s: %w", row.ID, err)
	}
	return &engine.Correction{
		ID:        row.ID,
		UserID:    row.UserID,
		Date:      date,
		Hours:     row.Hours,
		Reason:    row.Reason,
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt,
	}, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

type holidayRow struct {
	Date  string `db:"date"`
	Name  string `db:"name"`
	Scope string `db:"scope"`
}

func (q *queries) SaveHoliday(ctx context.Context, h engine.Holiday) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO holidays (date, name, scope) VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET name = excluded.name, scope = excluded.scope`,
		h.Date.String(), h.Name, h.Scope)
	return wrapErr("save holiday", err)
}

func (q *queries) DeleteHoliday(ctx context.Context, date engine.Date) error {
	res, err := q.ext.ExecContext(ctx, `DELETE FROM holidays WHERE date = ?`, date.String())
	if err != nil {
		return wrapErr("delete holiday", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &engine.NotFoundError{Entity: "holiday", ID: date.String()}
	}
	return nil
}

func (q *queries) Holidays(ctx context.Context, from, to engine.Date) ([]engine.Holiday, error) {
	var rows []holidayRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT * FROM holidays WHERE date >= ? AND date <= ? ORDER BY date`,
		from.String(), to.String())
	if err != nil {
		return nil, wrapErr("list holidays", err)
	}
	out := make([]engine.Holiday, 0, len(rows))
	for _, row := range rows {
		date, err := engine.ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("holiday %s: %w", row.Date, err)
		}
		out = append(out, engine.Holiday{Date: date, Name: row.Name, Scope: row.Scope})
	}
	return out, nil
}

func (q *queries) IsHoliday(ctx context.Context, date engine.Date) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, q.ext, &n,
		`SELECT COUNT(1) FROM holidays WHERE date = ?`, date.String())
	if err != nil {
		return false, wrapErr("holiday lookup", err)
	}
	return n > 0, nil
}

// =============================================================================
// JOURNAL
// =============================================================================

type transactionRow struct {
	ID            string          `db:"id"`
	UserID        string          `db:"user_id"`
	Date          string          `db:"date"`
	Type          string          `db:"type"`
	Hours         decimal.Decimal `db:"hours"`
	BalanceBefore decimal.Decimal `db:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after"`
	ReferenceKind string          `db:"reference_kind"`
	ReferenceID   string          `db:"reference_id"`
	Description   string          `db:"description"`
	CreatedBy     string          `db:"created_by"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (q *queries) AppendTransaction(ctx context.Context, tx *engine.Transaction) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO overtime_transactions (id, user_id, date, type, hours,
			balance_before, balance_after, reference_kind, reference_id,
			description, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.Date.String(), string(tx.Type), tx.Hours.Round(2),
		tx.BalanceBefore.Round(2), tx.BalanceAfter.Round(2),
		string(tx.ReferenceKind), tx.ReferenceID, tx.Description, tx.CreatedBy,
		tx.CreatedAt.UTC())
	return wrapErr("append transaction", err)
}

func (q *queries) Transactions(ctx context.Context, userID string, f engine.TransactionFilter) ([]engine.Transaction, error) {
	query, args := transactionWhere(userID, f)
	var rows []transactionRow
	err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT * FROM overtime_transactions`+query+` ORDER BY date, created_at, id`,
		args...)
	if err != nil {
		return nil, wrapErr("list transactions", err)
	}
	out := make([]engine.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := rowToTransaction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, nil
}

func (q *queries) LastTransaction(ctx context.Context, userID string) (*engine.Transaction, error) {
	var row transactionRow
	err := sqlx.GetContext(ctx, q.ext, &row, `
		SELECT * FROM overtime_transactions WHERE user_id = ?
		ORDER BY date DESC, created_at DESC, id DESC LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("last transaction", err)
	}
	return rowToTransaction(row)
}

func (q *queries) DeleteTransactions(ctx context.Context, userID string, f engine.TransactionFilter) (int, error) {
	query, args := transactionWhere(userID, f)
	res, err := q.ext.ExecContext(ctx, `DELETE FROM overtime_transactions`+query, args...)
	if err != nil {
		return 0, wrapErr("delete transactions", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (q *queries) UpdateTransactionBalances(ctx context.Context, txs []engine.Transaction) error {
	for _, tx := range txs {
		_, err := q.ext.ExecContext(ctx, `
			UPDATE overtime_transactions SET balance_before = ?, balance_after = ?
			WHERE id = ?`,
			tx.BalanceBefore.Round(2), tx.BalanceAfter.Round(2), tx.ID)
		if err != nil {
			return wrapErr("update transaction balances", err)
		}
	}
	return nil
}

func transactionWhere(userID string, f engine.TransactionFilter) (string, []any) {
	clauses := []string{"user_id = ?"}
	args := []any{userID}
	if f.From != nil {
		clauses = append(clauses, "date >= ?")
		args = append(args, f.From.String())
	}
	if f.To != nil {
		clauses = append(clauses, "date <= ?")
		args = append(args, f.To.String())
	}
	if len(f.Types) > 0 {
		placeholders := make([]string, len(f.Types))
		for i, t := range f.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		clauses = append(clauses, "type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.Kind != "" {
		clauses = append(clauses, "reference_kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.RefID != "" {
		clauses = append(clauses, "reference_id = ?")
		args = append(args, f.RefID)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func rowToTransaction(row transactionRow) (*engine.Transaction, error) {
	date, err := engine.ParseDate(row.Date)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", row.ID, err)
	}
	return &engine.Transaction{
		ID:            row.ID,
		UserID:        row.UserID,
		Date:          date,
		Type:          engine.TransactionType(row.Type),
		Hours:         row.Hours,
		BalanceBefore: row.BalanceBefore,
		BalanceAfter:  row.BalanceAfter,
		ReferenceKind: engine.ReferenceKind(row.ReferenceKind),
		ReferenceID:   row.ReferenceID,
		Description:   row.Description,
		CreatedBy:     row.CreatedBy,
		CreatedAt:     row.CreatedAt,
	}, nil
}

// =============================================================================
// MONTHLY BALANCE CACHE
// =============================================================================

type monthlyRow struct {
	UserID      string          `db:"user_id"`
	Month       string          `db:"month"`
	TargetHours decimal.Decimal `db:"target_hours"`
	ActualHours decimal.Decimal `db:"actual_hours"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func (q *queries) SaveMonthlyBalance(ctx context.Context, m engine.MonthlyBalance) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO overtime_balance (user_id, month, target_hours, actual_hours, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, month) DO UPDATE SET
			target_hours = excluded.target_hours,
			actual_hours = excluded.actual_hours,
			updated_at = excluded.updated_at`,
		m.UserID, m.Month.String(), m.TargetHours.Round(2), m.ActualHours.Round(2),
		m.UpdatedAt.UTC())
	return wrapErr("save monthly balance", err)
}

func (q *queries) GetMonthlyBalance(ctx context.Context, userID string, month engine.YearMonth) (*engine.MonthlyBalance, error) {
	var row monthlyRow
	err := sqlx.GetContext(ctx, q.ext, &row, `
		SELECT * FROM overtime_balance WHERE user_id = ? AND month = ?`,
		userID, month.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get monthly balance", err)
	}
	return rowToMonthly(row)
}

func (q *queries) MonthlyBalances(ctx context.Context, userID string, year int) ([]engine.MonthlyBalance, error) {
	var rows []monthlyRow
	err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT * FROM overtime_balance
		WHERE user_id = ? AND month LIKE ? ORDER BY month`,
		userID, fmt.Sprintf("%04d-%%", year))
	if err != nil {
		return nil, wrapErr("list monthly balances", err)
	}
	out := make([]engine.MonthlyBalance, 0, len(rows))
	for _, row := range rows {
		m, err := rowToMonthly(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

func rowToMonthly(row monthlyRow) (*engine.MonthlyBalance, error) {
	month, err := engine.ParseYearMonth(row.Month)
	if err != nil {
		return nil, fmt.Errorf("monthly balance %s/%s: %w", row.UserID, row.Month, err)
	}
	return &engine.MonthlyBalance{
		UserID:      row.UserID,
		Month:       month,
		TargetHours: row.TargetHours,
		ActualHours: row.ActualHours,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

// =============================================================================
// VACATION BALANCE
// =============================================================================

type vacationRow struct {
	UserID      string          `db:"user_id"`
	Year        int             `db:"year"`
	Entitlement decimal.Decimal `db:"entitlement"`
	Carryover   decimal.Decimal `db:"carryover"`
	Taken       decimal.Decimal `db:"taken"`
	Pending     decimal.Decimal `db:"pending"`
	Remaining   decimal.Decimal `db:"remaining"`
}

func (q *queries) GetVacationBalance(ctx context.Context, userID string, year int) (*engine.VacationBalance, error) {
	var row vacationRow
	err := sqlx.GetContext(ctx, q.ext, &row, `
		SELECT * FROM vacation_balance WHERE user_id = ? AND year = ?`, userID, year)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get vacation balance", err)
	}
	return &engine.VacationBalance{
		UserID:      row.UserID,
		Year:        row.Year,
		Entitlement: row.Entitlement,
		Carryover:   row.Carryover,
		Taken:       row.Taken,
		Pending:     row.Pending,
	}, nil
}

func (q *queries) SaveVacationBalance(ctx context.Context, v engine.VacationBalance) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO vacation_balance (user_id, year, entitlement, carryover, taken, pending)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, year) DO UPDATE SET
			entitlement = excluded.entitlement,
			carryover = excluded.carryover,
			taken = excluded.taken,
			pending = excluded.pending`,
		v.UserID, v.Year, v.Entitlement.Round(2), v.Carryover.Round(2),
		v.Taken.Round(2), v.Pending.Round(2))
	return wrapErr("save vacation balance", err)
}

// =============================================================================
// ROLLOVER LEASE
// =============================================================================

// The upsert takes over a lease that belongs to the caller or has aged past
// the ttl; a fresh foreign lease leaves zero rows affected.
func (q *queries) AcquireRolloverLease(ctx context.Context, year int, owner string, now time.Time, ttl time.Duration) (bool, error) {
	res, err := q.ext.ExecContext(ctx, `
		INSERT INTO rollover_leases (year, owner, acquired_at) VALUES (?, ?, ?)
		ON CONFLICT(year) DO UPDATE SET
			owner = excluded.owner,
			acquired_at = excluded.acquired_at
		WHERE rollover_leases.owner = excluded.owner
			OR rollover_leases.acquired_at <= ?`,
		year, owner, now.UTC(), now.Add(-ttl).UTC())
	if err != nil {
		return false, wrapErr("acquire rollover lease", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
