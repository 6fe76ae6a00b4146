package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timegrid/overtime-engine/engine"
	"github.com/timegrid/overtime-engine/store/memory"
)

type testEngine struct {
	store *memory.Store
	cal   *engine.Calendar
	bus   *engine.Bus
	orch  *engine.Orchestrator
	clock *engine.FixedClock
}

func newTestEngine(t *testing.T, now time.Time) *testEngine {
	t.Helper()
	s := memory.New()
	clock := &engine.FixedClock{Current: now}
	cal := engine.NewCalendar(s)
	bus := engine.NewBus()
	return &testEngine{
		store: s,
		cal:   cal,
		bus:   bus,
		orch:  engine.NewOrchestrator(s, cal, bus, clock, zerolog.Nop()),
		clock: clock,
	}
}

func (te *testEngine) saveUser(t *testing.T, u *engine.User) {
	t.Helper()
	require.NoError(t, te.store.SaveUser(context.Background(), u))
}

func (te *testEngine) bookHours(t *testing.T, userID string, d engine.Date, hours float64) {
	t.Helper()
	require.NoError(t, te.store.SaveTimeEntry(context.Background(), &engine.TimeEntry{
		ID:        userID + "-" + d.String(),
		UserID:    userID,
		Date:      d,
		Hours:     engine.Hours(hours),
		CreatedAt: te.clock.Now(),
	}))
}

func (te *testEngine) approveAbsence(t *testing.T, userID string, typ engine.AbsenceType, from, to engine.Date) {
	t.Helper()
	require.NoError(t, te.store.SaveAbsence(context.Background(), &engine.AbsenceRequest{
		ID:        userID + "-" + string(typ) + "-" + from.String(),
		UserID:    userID,
		Type:      typ,
		StartDate: from,
		EndDate:   to,
		Status:    engine.AbsenceApproved,
		CreatedAt: te.clock.Now(),
	}))
}

func txByDateAndType(txs []engine.Transaction, d engine.Date, typ engine.TransactionType) *engine.Transaction {
	for i := range txs {
		if txs[i].Date == d && txs[i].Type == typ {
			return &txs[i]
		}
	}
	return nil
}

// Part-time schedule Mon/Tue 4h each, two entries booked mid-January. The
// month-to-date cache must count only scheduled days up to today.
func TestRecomputePartTimeMonthToDate(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := partTimeUser()
	te.saveUser(t, u)

	te.bookHours(t, u.ID, engine.NewDate(2026, time.January, 5), 4)  // Mon
	te.bookHours(t, u.ID, engine.NewDate(2026, time.January, 13), 4) // Tue

	require.NoError(t, te.orch.RecomputeRange(ctx, u.ID,
		engine.NewDate(2026, time.January, 1), engine.NewDate(2026, time.January, 14)))

	// scheduled Jan 1-14: Mon 5, Tue 6, Mon 12, Tue 13 = 16h target, 8h worked
	month, err := te.store.GetMonthlyBalance(ctx, u.ID, engine.YearMonth{Year: 2026, Month: time.January})
	require.NoError(t, err)
	require.NotNil(t, month)
	assert.True(t, month.TargetHours.Equal(engine.Hours(16)), "target %s", month.TargetHours)
	assert.True(t, month.ActualHours.Equal(engine.Hours(8)), "actual %s", month.ActualHours)
	assert.True(t, month.Overtime().Equal(engine.Hours(-8)))

	balance, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(engine.Hours(-8)))

	// fully worked days produce a zero earned delta and are omitted
	txs, err := te.store.Transactions(ctx, u.ID, engine.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		assert.Equal(t, engine.TxEarned, tx.Type)
		assert.True(t, tx.Hours.Equal(engine.Hours(-4)))
	}

	idx, err := engine.VerifyChain(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
}

func TestRecomputeUnpaidVersusPaidAbsence(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)

	te.approveAbsence(t, u.ID, engine.AbsenceUnpaid,
		engine.NewDate(2025, time.August, 11), engine.NewDate(2025, time.August, 12))
	te.approveAbsence(t, u.ID, engine.AbsenceVacation,
		engine.NewDate(2025, time.August, 18), engine.NewDate(2025, time.August, 19))

	dates := []engine.Date{
		engine.NewDate(2025, time.August, 11),
		engine.NewDate(2025, time.August, 12),
		engine.NewDate(2025, time.August, 18),
		engine.NewDate(2025, time.August, 19),
	}
	require.NoError(t, te.orch.Recompute(ctx, u.ID, dates))

	txs, err := te.store.Transactions(ctx, u.ID, engine.TransactionFilter{})
	require.NoError(t, err)

	// unpaid days: zero target, zero credit; the anchoring earned entry is 0h
	unpaidDay := txByDateAndType(txs, engine.NewDate(2025, time.August, 11), engine.TxEarned)
	require.NotNil(t, unpaidDay)
	assert.True(t, unpaidDay.Hours.IsZero())
	assert.Nil(t, txByDateAndType(txs, engine.NewDate(2025, time.August, 11), engine.TxAbsenceCredit))

	// vacation days: credit at scheduled target, earned reflects zero work
	credit := txByDateAndType(txs, engine.NewDate(2025, time.August, 18), engine.TxAbsenceCredit)
	require.NotNil(t, credit)
	assert.True(t, credit.Hours.Equal(engine.Hours(8)))
	earned := txByDateAndType(txs, engine.NewDate(2025, time.August, 18), engine.TxEarned)
	require.NotNil(t, earned)
	assert.True(t, earned.Hours.Equal(engine.Hours(-8)))

	// all four days net to zero overtime
	balance, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "balance %s", balance)
}

// Running the same recompute twice must leave the journal unchanged apart
// from regenerated entry IDs.
func TestRecomputeIdempotent(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)

	te.bookHours(t, u.ID, engine.NewDate(2026, time.January, 5), 9.5)
	te.approveAbsence(t, u.ID, engine.AbsenceSick,
		engine.NewDate(2026, time.January, 6), engine.NewDate(2026, time.January, 6))

	dates := []engine.Date{
		engine.NewDate(2026, time.January, 5),
		engine.NewDate(2026, time.January, 6),
		engine.NewDate(2026, time.January, 7),
	}
	require.NoError(t, te.orch.Recompute(ctx, u.ID, dates))
	first, err := te.store.Transactions(ctx, u.ID, engine.TransactionFilter{})
	require.NoError(t, err)
	firstBalance, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)

	require.NoError(t, te.orch.Recompute(ctx, u.ID, dates))
	second, err := te.store.Transactions(ctx, u.ID, engine.TransactionFilter{})
	require.NoError(t, err)
	secondBalance, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)

	// entry IDs regenerate and same-timestamp ties may reorder; the set of
	// (date, type, hours) and the final balance must not change
	require.Len(t, second, len(first))
	assert.ElementsMatch(t, journalShape(first), journalShape(second))
	assert.True(t, firstBalance.Equal(secondBalance))

	idx, err := engine.VerifyChain(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
}

func journalShape(txs []engine.Transaction) []string {
	out := make([]string, len(txs))
	for i, tx := range txs {
		out[i] = tx.Date.String() + "/" + string(tx.Type) + "/" + tx.Hours.String()
	}
	return out
}

// Compensation entries reference an absence decision, not a day's raw inputs,
// and must survive a recompute of their date.
func TestRecomputePreservesCompensation(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)

	d := engine.NewDate(2026, time.January, 5)
	require.NoError(t, engine.Append(ctx, te.store, &engine.Transaction{
		UserID:        u.ID,
		Date:          d,
		Type:          engine.TxCompensation,
		Hours:         engine.Hours(-8),
		ReferenceKind: engine.RefAbsence,
		ReferenceID:   "abs-1",
	}, te.clock.Now()))

	te.bookHours(t, u.ID, d, 10)
	require.NoError(t, te.orch.Recompute(ctx, u.ID, []engine.Date{d}))

	txs, err := te.store.Transactions(ctx, u.ID, engine.TransactionFilter{})
	require.NoError(t, err)
	comp := txByDateAndType(txs, d, engine.TxCompensation)
	require.NotNil(t, comp)
	assert.True(t, comp.Hours.Equal(engine.Hours(-8)))

	// journal: -8 compensation + 2 earned
	balance, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(engine.Hours(-6)))

	idx, err := engine.VerifyChain(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
}

// One correction journal entry per day regardless of how many correction
// rows exist; deleting a row and recomputing shrinks the entry accordingly.
func TestRecomputeCorrections(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2025, 8, 31, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)

	d := engine.NewDate(2025, time.August, 16) // Saturday
	require.NoError(t, te.store.SaveCorrection(ctx, &engine.Correction{
		ID: "c1", UserID: u.ID, Date: d, Hours: engine.Hours(3), Reason: "migration", CreatedAt: te.clock.Now(),
	}))
	require.NoError(t, te.store.SaveCorrection(ctx, &engine.Correction{
		ID: "c2", UserID: u.ID, Date: d, Hours: engine.Hours(2), Reason: "migration", CreatedAt: te.clock.Now(),
	}))

	require.NoError(t, te.orch.Recompute(ctx, u.ID, []engine.Date{d}))

	txs, err := te.store.Transactions(ctx, u.ID, engine.TransactionFilter{Types: []engine.TransactionType{engine.TxCorrection}})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Hours.Equal(engine.Hours(5)))

	require.NoError(t, te.store.DeleteCorrection(ctx, "c2"))
	require.NoError(t, te.orch.Recompute(ctx, u.ID, []engine.Date{d}))

	txs, err = te.store.Transactions(ctx, u.ID, engine.TransactionFilter{Types: []engine.TransactionType{engine.TxCorrection}})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Hours.Equal(engine.Hours(3)))

	idx, err := engine.VerifyChain(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
}

// Journal balance, monthly cache overtime and a fresh daily walk must agree.
func TestJournalCacheAndDailyWalkAgree(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)

	te.bookHours(t, u.ID, engine.NewDate(2026, time.January, 5), 9.5)
	te.bookHours(t, u.ID, engine.NewDate(2026, time.January, 6), 7.25)
	te.approveAbsence(t, u.ID, engine.AbsenceVacation,
		engine.NewDate(2026, time.January, 8), engine.NewDate(2026, time.January, 8))

	from := engine.NewDate(2026, time.January, 1)
	to := engine.NewDate(2026, time.January, 14)
	require.NoError(t, te.orch.RecomputeRange(ctx, u.ID, from, to))

	journal, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)

	month, err := te.store.GetMonthlyBalance(ctx, u.ID, engine.YearMonth{Year: 2026, Month: time.January})
	require.NoError(t, err)
	require.NotNil(t, month)

	walked := engine.Hours(0)
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		r, err := te.orch.ComputeDayFor(ctx, te.store, u, d)
		require.NoError(t, err)
		walked = walked.Add(r.Overtime)
	}

	assert.True(t, engine.HoursAgree(journal, month.Overtime()),
		"journal %s vs cache %s", journal, month.Overtime())
	assert.True(t, engine.HoursAgree(journal, walked),
		"journal %s vs walk %s", journal, walked)
}

// A schedule change recomputes the user's whole employment window.
func TestRecomputeUserAfterScheduleChange(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	u.HireDate = engine.NewDate(2026, time.January, 5)
	te.saveUser(t, u)

	te.bookHours(t, u.ID, engine.NewDate(2026, time.January, 5), 8)
	require.NoError(t, te.orch.RecomputeUser(ctx, u, u.HireDate))
	before, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	// Jan 5-14 has 8 weekdays, one fully worked
	assert.True(t, before.Equal(engine.Hours(-56)), "balance %s", before)

	// drop to a Monday-only schedule and replay
	u.WorkSchedule = engine.WorkSchedule{time.Monday: engine.Hours(8)}
	require.NoError(t, te.store.SaveUser(ctx, u))
	require.NoError(t, te.orch.RecomputeUser(ctx, u, u.HireDate))

	after, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	// Mondays Jan 5 and 12; Jan 5 fully worked
	assert.True(t, after.Equal(engine.Hours(-8)), "balance %s", after)
}
