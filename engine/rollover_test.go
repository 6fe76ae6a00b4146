package engine_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timegrid/overtime-engine/engine"
)

func (te *testEngine) rolloverJob(cfg engine.Config) *engine.Rollover {
	return engine.NewRollover(te.store, te.orch, te.clock, cfg, zerolog.Nop())
}

func carryoverMarkers(t *testing.T, s engine.Store, userID string, year int) []engine.Transaction {
	t.Helper()
	txs, err := s.Transactions(context.Background(), userID, engine.TransactionFilter{
		Kind:  engine.RefYear,
		RefID: strconv.Itoa(year),
	})
	require.NoError(t, err)
	return txs
}

func TestRolloverWritesZeroHourMarker(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)

	appendTx(t, te.store, u.ID, engine.NewDate(2025, time.December, 29), engine.TxEarned, 5,
		time.Date(2025, 12, 29, 18, 0, 0, 0, time.UTC))
	appendTx(t, te.store, u.ID, engine.NewDate(2025, time.December, 30), engine.TxEarned, 3,
		time.Date(2025, 12, 30, 18, 0, 0, 0, time.UTC))

	require.NoError(t, te.rolloverJob(testConfig()).Run(ctx, 2025))

	markers := carryoverMarkers(t, te.store, u.ID, 2025)
	require.Len(t, markers, 1)
	m := markers[0]
	assert.Equal(t, engine.TxCarryover, m.Type)
	assert.Equal(t, engine.NewDate(2026, time.January, 1), m.Date)
	assert.True(t, m.Hours.IsZero())
	assert.Equal(t, "carryover from 2025: 8:00h", m.Description)

	// the marker carries nothing; the chain already holds the balance
	balance, err := engine.Balance(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(engine.Hours(8)))
}

func TestRolloverIdempotentPerUser(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)

	job := te.rolloverJob(testConfig())
	require.NoError(t, job.RollUser(ctx, u, 2025))
	require.NoError(t, job.RollUser(ctx, u, 2025))

	markers := carryoverMarkers(t, te.store, u.ID, 2025)
	assert.Len(t, markers, 1)
}

func TestRolloverLeaseStopsSecondRunner(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)

	job := te.rolloverJob(testConfig())
	require.NoError(t, job.Run(ctx, 2025))
	// a second runner does not hold the lease and must no-op cleanly
	require.NoError(t, job.Run(ctx, 2025))

	markers := carryoverMarkers(t, te.store, u.ID, 2025)
	assert.Len(t, markers, 1)
}

// A runner that died mid-way leaves its lease row behind. Within the ttl
// the year stays blocked; once the lease ages out the next firing takes it
// over and finishes the work.
func TestRolloverResumesAfterStaleLease(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)

	acquired, err := te.store.AcquireRolloverLease(ctx, 2025, "dead-runner", te.clock.Now(), time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, te.rolloverJob(testConfig()).Run(ctx, 2025))
	assert.Empty(t, carryoverMarkers(t, te.store, u.ID, 2025))

	te.clock.Current = te.clock.Current.Add(2 * time.Hour)
	require.NoError(t, te.rolloverJob(testConfig()).Run(ctx, 2025))
	assert.Len(t, carryoverMarkers(t, te.store, u.ID, 2025), 1)
}

// A process that was down over New Year runs the rollover while the new
// year already has journal entries. The marker must take its place at the
// year boundary, not at the tail.
func TestRolloverCatchUpKeepsChainOrdered(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 14, 9, 0, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)

	appendTx(t, te.store, u.ID, engine.NewDate(2025, time.December, 30), engine.TxEarned, 5,
		time.Date(2025, 12, 30, 18, 0, 0, 0, time.UTC))
	appendTx(t, te.store, u.ID, engine.NewDate(2026, time.January, 5), engine.TxEarned, 3,
		time.Date(2026, 1, 5, 18, 0, 0, 0, time.UTC))

	require.NoError(t, te.rolloverJob(testConfig()).RollUser(ctx, u, 2025))

	idx, err := engine.VerifyChain(ctx, te.store, u.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, idx)

	markers := carryoverMarkers(t, te.store, u.ID, 2025)
	require.Len(t, markers, 1)
	assert.Equal(t, "carryover from 2025: 5:00h", markers[0].Description)

	txs, err := te.store.Transactions(ctx, u.ID, engine.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, engine.TxCarryover, txs[1].Type)
	assert.True(t, txs[1].BalanceBefore.Equal(engine.Hours(5)))
	assert.True(t, txs[2].BalanceAfter.Equal(engine.Hours(8)))
}

func TestRolloverVacationCarryover(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC))
	u := fullTimeUser()
	u.VacationDaysPerYear = decimal.NewFromInt(28)
	te.saveUser(t, u)

	require.NoError(t, te.store.SaveVacationBalance(ctx, engine.VacationBalance{
		UserID:      u.ID,
		Year:        2025,
		Entitlement: decimal.NewFromInt(28),
		Taken:       decimal.NewFromInt(23),
	}))

	require.NoError(t, te.rolloverJob(testConfig()).Run(ctx, 2025))

	next, err := te.store.GetVacationBalance(ctx, u.ID, 2026)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Entitlement.Equal(decimal.NewFromInt(28)))
	assert.True(t, next.Carryover.Equal(decimal.NewFromInt(5)))
	assert.True(t, next.Taken.IsZero())
	assert.True(t, next.Pending.IsZero())
}

func TestRolloverVacationCarryoverCapped(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)

	require.NoError(t, te.store.SaveVacationBalance(ctx, engine.VacationBalance{
		UserID:      u.ID,
		Year:        2025,
		Entitlement: decimal.NewFromInt(30),
		Taken:       decimal.NewFromInt(10),
	}))

	cfg := testConfig()
	cap := decimal.NewFromInt(10)
	cfg.VacationCarryoverCap = &cap
	require.NoError(t, te.rolloverJob(cfg).Run(ctx, 2025))

	next, err := te.store.GetVacationBalance(ctx, u.ID, 2026)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Carryover.Equal(decimal.NewFromInt(10)))
}

func TestRolloverNegativeRemainingCarriesNothing(t *testing.T) {
	ctx := context.Background()
	te := newTestEngine(t, time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC))
	u := fullTimeUser()
	te.saveUser(t, u)

	require.NoError(t, te.store.SaveVacationBalance(ctx, engine.VacationBalance{
		UserID:      u.ID,
		Year:        2025,
		Entitlement: decimal.NewFromInt(30),
		Taken:       decimal.NewFromInt(32),
	}))

	require.NoError(t, te.rolloverJob(testConfig()).Run(ctx, 2025))

	next, err := te.store.GetVacationBalance(ctx, u.ID, 2026)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Carryover.IsZero())
}
