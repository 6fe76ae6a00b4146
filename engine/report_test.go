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

func (te *testEngine) reporter() *engine.Reporter {
	return engine.NewReporter(te.store, te.orch, te.clock, zerolog.Nop())
}

func TestReportAgreesWithCache(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := partTimeUser()
	te.saveUser(t, u)

	te.bookHours(t, u.ID, engine.NewDate(2026, time.January, 5), 4)
	te.bookHours(t, u.ID, engine.NewDate(2026, time.January, 13), 4)
	require.NoError(t, te.orch.RecomputeRange(ctx, u.ID,
		engine.NewDate(2026, time.January, 1), engine.NewDate(2026, time.January, 14)))

	month := time.January
	report, err := te.reporter().Overtime(ctx, u.ID, 2026, &month)
	require.NoError(t, err)

	require.Len(t, report.Months, 1)
	mr := report.Months[0]
	assert.True(t, mr.Target.Equal(engine.Hours(16)))
	assert.True(t, mr.Actual.Equal(engine.Hours(8)))
	assert.True(t, mr.Overtime.Equal(engine.Hours(-8)))
	require.NotNil(t, mr.Cached)
	assert.True(t, engine.HoursAgree(mr.Overtime, *mr.Cached))

	// day slices stop at today, not the month end
	assert.Len(t, mr.Days, 14)

	assert.True(t, report.Balance.Equal(engine.Hours(-8)))
	assert.Equal(t, "-8:00h", report.FormattedBalance)
}

func TestReportYearStopsAtCurrentMonth(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	u := partTimeUser()
	te.saveUser(t, u)

	report, err := te.reporter().Overtime(ctx, u.ID, 2026, nil)
	require.NoError(t, err)
	// January, February, March; April onwards is the future
	assert.Len(t, report.Months, 3)
}

func TestReportRefusesCorruptedCache(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	u := partTimeUser()
	te.saveUser(t, u)

	te.bookHours(t, u.ID, engine.NewDate(2026, time.January, 5), 4)
	require.NoError(t, te.orch.Recompute(ctx, u.ID, []engine.Date{engine.NewDate(2026, time.January, 5)}))

	// corrupt the cache out of band
	cached, err := te.store.GetMonthlyBalance(ctx, u.ID, engine.YearMonth{Year: 2026, Month: time.January})
	require.NoError(t, err)
	require.NotNil(t, cached)
	cached.ActualHours = cached.ActualHours.Add(engine.Hours(2))
	require.NoError(t, te.store.SaveMonthlyBalance(ctx, *cached))

	month := time.January
	_, err = te.reporter().Overtime(ctx, u.ID, 2026, &month)
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrInconsistent)

	var inc *engine.InconsistencyError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, u.ID, inc.UserID)
	assert.NotEmpty(t, inc.Breakdown)
	assert.True(t, inc.Cached.Sub(inc.Live).Abs().GreaterThan(engine.Hours(0.01)))
}

func TestReportUnknownUser(t *testing.T) {
	te := newTestEngine(t, time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	_, err := te.reporter().Overtime(context.Background(), "ghost", 2026, nil)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}
