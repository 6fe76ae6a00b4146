package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timegrid/overtime-engine/engine"
)

func (te *testEngine) userService() *engine.UserService {
	return engine.NewUserService(te.store, te.orch, te.clock, zerolog.Nop())
}

func TestCreateUserEnforcesUniqueness(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	svc := te.userService()

	first := fullTimeUser()
	require.NoError(t, svc.Create(ctx, first))
	assert.NotEmpty(t, first.ID)

	dup := fullTimeUser()
	err := svc.Create(ctx, dup)
	assert.ErrorIs(t, err, engine.ErrConflict)
}

func TestCreateUserValidatesSchedule(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	svc := te.userService()

	u := fullTimeUser()
	u.WeeklyHours = engine.Hours(90)
	assert.ErrorIs(t, svc.Create(ctx, u), engine.ErrInvalidInput)

	u = fullTimeUser()
	end := u.HireDate.AddDays(-1)
	u.EndDate = &end
	assert.ErrorIs(t, svc.Create(ctx, u), engine.ErrInvalidInput)
}

func TestUpdateScheduleReplaysHistory(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	u.HireDate = engine.NewDate(2026, time.January, 5)
	te.saveUser(t, u)
	svc := te.userService()

	te.bookHours(t, u.ID, engine.NewDate(2026, time.January, 5), 8)
	require.NoError(t, te.orch.RecomputeUser(ctx, u, u.HireDate))

	updated := *u
	updated.WorkSchedule = engine.WorkSchedule{time.Monday: engine.Hours(8)}
	require.NoError(t, svc.Update(ctx, &updated))

	// only Mondays count now: Jan 5 fully worked, Jan 12 not worked
	balance, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(engine.Hours(-8)), "balance %s", balance)
}

// Shrinking the employment window must prune the journal entries of the
// days that fell out of it, not just recompute the days that remain.
func TestUpdateEndDateEarlierPrunesStaleDays(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	u.HireDate = engine.NewDate(2026, time.January, 5)
	te.saveUser(t, u)
	svc := te.userService()

	require.NoError(t, te.orch.RecomputeUser(ctx, u, u.HireDate))
	balance, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(engine.Hours(-64)), "balance %s", balance)

	updated := *u
	end := engine.NewDate(2026, time.January, 7)
	updated.EndDate = &end
	require.NoError(t, svc.Update(ctx, &updated))

	// only Jan 5-7 remain inside the window
	balance, err = engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(engine.Hours(-24)), "balance %s", balance)

	after := engine.NewDate(2026, time.January, 8)
	stale, err := te.store.Transactions(ctx, u.ID, engine.TransactionFilter{From: &after})
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestUpdateHireDateLaterPrunesStaleDays(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	u.HireDate = engine.NewDate(2026, time.January, 5)
	te.saveUser(t, u)
	svc := te.userService()

	te.bookHours(t, u.ID, engine.NewDate(2026, time.January, 5), 8)
	require.NoError(t, te.orch.RecomputeUser(ctx, u, u.HireDate))
	balance, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(engine.Hours(-56)), "balance %s", balance)

	updated := *u
	updated.HireDate = engine.NewDate(2026, time.January, 12)
	require.NoError(t, svc.Update(ctx, &updated))

	// Jan 5-9 left the window; the stray worked entry earns nothing
	balance, err = engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(engine.Hours(-24)), "balance %s", balance)

	before := engine.NewDate(2026, time.January, 11)
	stale, err := te.store.Transactions(ctx, u.ID, engine.TransactionFilter{To: &before})
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestDeleteUserIsSoft(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)
	svc := te.userService()

	require.NoError(t, svc.Delete(ctx, u.ID))

	listed, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)

	// record and journal survive
	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.DeletedAt)
}

func TestAddHolidayRecomputesAffectedUsers(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)
	svc := te.userService()

	d := engine.NewDate(2026, time.January, 5)
	te.bookHours(t, u.ID, d, 8)
	require.NoError(t, te.orch.Recompute(ctx, u.ID, []engine.Date{d}))

	balance, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	// the worked day becomes a holiday: all 8 hours turn into overtime
	require.NoError(t, svc.AddHoliday(ctx, engine.Holiday{Date: d, Name: "Betriebsruhe"}))

	balance, err = engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(engine.Hours(8)), "balance %s", balance)

	// removing it restores the original picture
	require.NoError(t, svc.RemoveHoliday(ctx, d))
	balance, err = engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestAddHolidayInFutureSkipsRecompute(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)
	svc := te.userService()

	require.NoError(t, svc.AddHoliday(ctx, engine.Holiday{
		Date: engine.NewDate(2026, time.December, 25), Name: "1. Weihnachtstag",
	}))

	txs, err := te.store.Transactions(ctx, u.ID, engine.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}
