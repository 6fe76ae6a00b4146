/*
Package memory provides an in-memory engine.TxStore for tests.

Everything lives in maps behind one mutex. WithTx serializes the callback
against other writers but does not implement rollback; engine tests exercise
happy paths and explicit failure injection, not crash recovery (that is the
SQLite store's job).
*/
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/timegrid/overtime-engine/engine"
)

// Store implements engine.TxStore in memory.
type Store struct {
	mu           sync.RWMutex
	users        map[string]engine.User
	timeEntries  map[string]engine.TimeEntry
	absences     map[string]engine.AbsenceRequest
	corrections  map[string]engine.Correction
	holidays     map[engine.Date]engine.Holiday
	transactions map[string]engine.Transaction
	monthly      map[string]engine.MonthlyBalance // userID|month
	vacation     map[string]engine.VacationBalance
	leases       map[int]lease
}

type lease struct {
	owner      string
	acquiredAt time.Time
}

func New() *Store {
	return &Store{
		users:        make(map[string]engine.User),
		timeEntries:  make(map[string]engine.TimeEntry),
		absences:     make(map[string]engine.AbsenceRequest),
		corrections:  make(map[string]engine.Correction),
		holidays:     make(map[engine.Date]engine.Holiday),
		transactions: make(map[string]engine.Transaction),
		monthly:      make(map[string]engine.MonthlyBalance),
		vacation:     make(map[string]engine.VacationBalance),
		leases:       make(map[int]lease),
	}
}

// WithTx serializes fn against other writers. No rollback.
func (s *Store) WithTx(_ context.Context, fn func(engine.Store) error) error {
	return fn(s)
}

// --- Users ---

func (s *Store) SaveUser(_ context.Context, u *engine.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if other.ID == u.ID {
			continue
		}
		if other.Username == u.Username {
			return engine.ErrConflict
		}
		if u.Email != "" && other.Email == u.Email {
			return engine.ErrConflict
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*engine.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, &engine.NotFoundError{Entity: "user", ID: id}
	}
	return &u, nil
}

func (s *Store) ListUsers(_ context.Context, includeDeleted bool) ([]engine.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.User, 0, len(s.users))
	for _, u := range s.users {
		if !includeDeleted && u.DeletedAt != nil {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// --- Time entries ---

func (s *Store) SaveTimeEntry(_ context.Context, e *engine.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeEntries[e.ID] = *e
	return nil
}

func (s *Store) GetTimeEntry(_ context.Context, id string) (*engine.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.timeEntries[id]
	if !ok {
		return nil, &engine.NotFoundError{Entity: "time entry", ID: id}
	}
	return &e, nil
}

func (s *Store) DeleteTimeEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timeEntries[id]; !ok {
		return &engine.NotFoundError{Entity: "time entry", ID: id}
	}
	delete(s.timeEntries, id)
	return nil
}

func (s *Store) TimeEntries(_ context.Context, userID string, from, to engine.Date) ([]engine.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.TimeEntry
	for _, e := range s.timeEntries {
		if e.UserID == userID && !e.Date.Before(from) && !e.Date.After(to) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return entryLess(out[i], out[j]) })
	return out, nil
}

func entryLess(a, b engine.TimeEntry) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// --- Absences ---

func (s *Store) SaveAbsence(_ context.Context, a *engine.AbsenceRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.absences[a.ID] = *a
	return nil
}

func (s *Store) GetAbsence(_ context.Context, id string) (*engine.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.absences[id]
	if !ok {
		return nil, &engine.NotFoundError{Entity: "absence request", ID: id}
	}
	return &a, nil
}

func (s *Store) ListAbsences(_ context.Context, userID string, status *engine.AbsenceStatus) ([]engine.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.AbsenceRequest
	for _, a := range s.absences {
		if a.UserID != userID {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		out = append(out, a)
	}
	sortAbsences(out)
	return out, nil
}

func (s *Store) AbsencesOverlapping(_ context.Context, userID string, from, to engine.Date, statuses []engine.AbsenceStatus) ([]engine.AbsenceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.AbsenceRequest
	for _, a := range s.absences {
		if a.UserID != userID {
			continue
		}
		if a.StartDate.After(to) || a.EndDate.Before(from) {
			continue
		}
		if len(statuses) > 0 && !statusIn(a.Status, statuses) {
			continue
		}
		out = append(out, a)
	}
	sortAbsences(out)
	return out, nil
}

func statusIn(st engine.AbsenceStatus, set []engine.AbsenceStatus) bool {
	for _, s := range set {
		if s == st {
			return true
		}
	}
	return false
}

func sortAbsences(out []engine.AbsenceRequest) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
}

// --- Corrections ---

func (s *Store) SaveCorrection(_ context.Context, c *engine.Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corrections[c.ID] = *c
	return nil
}

func (s *Store) GetCorrection(_ context.Context, id string) (*engine.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.corrections[id]
	if !ok {
		return nil, &engine.NotFoundError{Entity: "correction", ID: id}
	}
	return &c, nil
}

func (s *Store) DeleteCorrection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.corrections[id]; !ok {
		return &engine.NotFoundError{Entity: "correction", ID: id}
	}
	delete(s.corrections, id)
	return nil
}

func (s *Store) Corrections(_ context.Context, userID string, from, to engine.Date) ([]engine.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.Correction
	for _, c := range s.corrections {
		if c.UserID == userID && !c.Date.Before(from) && !c.Date.After(to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- Holidays ---

func (s *Store) SaveHoliday(_ context.Context, h engine.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holidays[h.Date] = h
	return nil
}

func (s *Store) DeleteHoliday(_ context.Context, date engine.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holidays[date]; !ok {
		return &engine.NotFoundError{Entity: "holiday", ID: date.String()}
	}
	delete(s.holidays, date)
	return nil
}

func (s *Store) Holidays(_ context.Context, from, to engine.Date) ([]engine.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.Holiday
	for _, h := range s.holidays {
		if !h.Date.Before(from) && !h.Date.After(to) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) IsHoliday(_ context.Context, date engine.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.holidays[date]
	return ok, nil
}

// --- Journal ---

func (s *Store) AppendTransaction(_ context.Context, tx *engine.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[tx.ID] = *tx
	return nil
}

func (s *Store) Transactions(_ context.Context, userID string, f engine.TransactionFilter) ([]engine.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchTransactions(userID, f), nil
}

func (s *Store) matchTransactions(userID string, f engine.TransactionFilter) []engine.Transaction {
	var out []engine.Transaction
	for _, tx := range s.transactions {
		if tx.UserID == userID && f.Matches(&tx) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return txLess(out[i], out[j]) })
	return out
}

func txLess(a, b engine.Transaction) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (s *Store) LastTransaction(_ context.Context, userID string) (*engine.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.matchTransactions(userID, engine.TransactionFilter{})
	if len(all) == 0 {
		return nil, nil
	}
	last := all[len(all)-1]
	return &last, nil
}

func (s *Store) DeleteTransactions(_ context.Context, userID string, f engine.TransactionFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, tx := range s.transactions {
		if tx.UserID == userID && f.Matches(&tx) {
			delete(s.transactions, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateTransactionBalances(_ context.Context, txs []engine.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		stored, ok := s.transactions[tx.ID]
		if !ok {
			return &engine.NotFoundError{Entity: "transaction", ID: tx.ID}
		}
		stored.BalanceBefore = tx.BalanceBefore
		stored.BalanceAfter = tx.BalanceAfter
		s.transactions[tx.ID] = stored
	}
	return nil
}

// --- Monthly balance cache ---

func (s *Store) SaveMonthlyBalance(_ context.Context, m engine.MonthlyBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monthly[m.UserID+"|"+m.Month.String()] = m
	return nil
}

func (s *Store) GetMonthlyBalance(_ context.Context, userID string, month engine.YearMonth) (*engine.MonthlyBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.monthly[userID+"|"+month.String()]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *Store) MonthlyBalances(_ context.Context, userID string, year int) ([]engine.MonthlyBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.MonthlyBalance
	for _, m := range s.monthly {
		if m.UserID == userID && m.Month.Year == year {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out, nil
}

// --- Vacation balances ---

func (s *Store) GetVacationBalance(_ context.Context, userID string, year int) (*engine.VacationBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vacation[vacationKey(userID, year)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *Store) SaveVacationBalance(_ context.Context, v engine.VacationBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vacation[vacationKey(v.UserID, v.Year)] = v
	return nil
}

func vacationKey(userID string, year int) string {
	return fmt.Sprintf("%s|%d", userID, year)
}

// --- Rollover lease ---

func (s *Store) AcquireRolloverLease(_ context.Context, year int, owner string, now time.Time, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.leases[year]
	if ok && existing.owner != owner && existing.acquiredAt.After(now.Add(-ttl)) {
		return false, nil
	}
	s.leases[year] = lease{owner: owner, acquiredAt: now}
	return true, nil
}
