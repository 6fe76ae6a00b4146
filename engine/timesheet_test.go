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

func (te *testEngine) timesheetService() *engine.TimesheetService {
	return engine.NewTimesheetService(te.store, te.orch, te.bus, te.clock, zerolog.Nop())
}

func TestUpsertEntryCreatesThenOverwrites(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)
	svc := te.timesheetService()

	d := engine.NewDate(2026, time.January, 5)
	entry, month, err := svc.UpsertEntry(ctx, u.ID, d, engine.TimeEntry{Hours: engine.Hours(9.5)})
	require.NoError(t, err)
	require.NotNil(t, month)
	assert.NotEmpty(t, entry.ID)
	assert.True(t, month.ActualHours.Equal(engine.Hours(9.5)))

	// same day again replaces the booking, same entry id
	again, month, err := svc.UpsertEntry(ctx, u.ID, d, engine.TimeEntry{Hours: engine.Hours(8)})
	require.NoError(t, err)
	assert.Equal(t, entry.ID, again.ID)
	assert.True(t, again.Hours.Equal(engine.Hours(8)))
	assert.True(t, month.ActualHours.Equal(engine.Hours(8)))

	entries, err := svc.Entries(ctx, u.ID, d, d)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// fully worked day leaves no journal deficit
	balance, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestUpsertEntryOutsideEmployment(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	u.HireDate = engine.NewDate(2026, time.January, 10)
	end := engine.NewDate(2026, time.June, 30)
	u.EndDate = &end
	te.saveUser(t, u)
	svc := te.timesheetService()

	_, _, err := svc.UpsertEntry(ctx, u.ID, engine.NewDate(2026, time.January, 5), engine.TimeEntry{Hours: engine.Hours(8)})
	assert.ErrorIs(t, err, engine.ErrPreconditionFailed)

	_, _, err = svc.UpsertEntry(ctx, u.ID, engine.NewDate(2026, time.July, 1), engine.TimeEntry{Hours: engine.Hours(8)})
	assert.ErrorIs(t, err, engine.ErrPreconditionFailed)
}

func TestUpsertEntryRejectsBadHours(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)
	svc := te.timesheetService()

	_, _, err := svc.UpsertEntry(ctx, u.ID, engine.NewDate(2026, time.January, 5), engine.TimeEntry{Hours: engine.Hours(25)})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	_, _, err = svc.UpsertEntry(ctx, u.ID, engine.NewDate(2026, time.January, 5), engine.TimeEntry{Hours: engine.Hours(-1)})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestDeleteEntryRecomputesDay(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)
	svc := te.timesheetService()

	d := engine.NewDate(2026, time.January, 5)
	entry, _, err := svc.UpsertEntry(ctx, u.ID, d, engine.TimeEntry{Hours: engine.Hours(10)})
	require.NoError(t, err)

	balance, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(engine.Hours(2)))

	require.NoError(t, svc.DeleteEntry(ctx, entry.ID))

	// the scheduled day now shows its full deficit
	balance, err = engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(engine.Hours(-8)))
}

func TestCorrectionLifecycle(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)
	svc := te.timesheetService()

	// reasons are mandatory
	_, err := svc.CreateCorrection(ctx, &engine.Correction{
		UserID: u.ID, Date: engine.NewDate(2026, time.January, 10), Hours: engine.Hours(4),
	})
	assert.ErrorIs(t, err, engine.ErrInvalidInput)

	c, err := svc.CreateCorrection(ctx, &engine.Correction{
		UserID:    u.ID,
		Date:      engine.NewDate(2026, time.January, 10), // Saturday
		Hours:     engine.Hours(4),
		Reason:    "migrated legacy balance",
		CreatedBy: "admin",
	})
	require.NoError(t, err)

	balance, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(engine.Hours(4)))

	require.NoError(t, svc.DeleteCorrection(ctx, c.ID))

	balance, err = engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	idx, err := engine.VerifyChain(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
}
