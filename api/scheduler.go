/*
scheduler.go - Year-end rollover scheduler

PURPOSE:
  Fires the rollover job shortly after midnight on January 1 in the
  configured civil timezone (default 00:05). The job itself is idempotent
  per (user, year), so a missed or repeated firing is harmless: the
  scheduler also checks on startup whether the previous year still needs
  rolling, which covers a server that was down over New Year.

DESIGN:
  - One background goroutine sleeping until the next scheduled firing
  - Start/Stop lifecycle with a stop channel and WaitGroup
  - All times derived from the engine clock so tests can inject one

SEE ALSO:
  - engine/rollover.go: The job itself (lease + per-user marker)
  - handlers.go: TriggerRollover endpoint (manual run)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/timegrid/overtime-engine/engine"
	"github.com/timegrid/overtime-engine/logger"
)

// RolloverScheduler runs the year-end job at its scheduled local time.
type RolloverScheduler struct {
	Rollover *engine.Rollover
	Clock    engine.Clock
	Config   engine.Config

	log  *logger.Logger
	stop chan struct{}
	wg   sync.WaitGroup
	mu   sync.Mutex
}

// NewRolloverScheduler creates a new scheduler.
func NewRolloverScheduler(rollover *engine.Rollover, clock engine.Clock, config engine.Config, log *logger.Logger) *RolloverScheduler {
	return &RolloverScheduler{
		Rollover: rollover,
		Clock:    clock,
		Config:   config,
		log:      log.WithComponent("scheduler"),
		stop:     make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.wg.Add(1)
	go rs.run()
	rs.log.Info().Time("next_run", rs.nextRun(rs.Clock.Now())).Msg("rollover scheduler started")
}

// Stop stops the scheduler and waits for the goroutine to exit.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	close(rs.stop)
	rs.wg.Wait()
	rs.log.Info().Msg("rollover scheduler stopped")
}

func (rs *RolloverScheduler) run() {
	defer rs.wg.Done()

	// catch up in case the process was down over New Year
	rs.runOnce()

	for {
		now := rs.Clock.Now()
		timer := time.NewTimer(rs.nextRun(now).Sub(now))
		select {
		case <-timer.C:
			rs.runOnce()
		case <-rs.stop:
			timer.Stop()
			return
		}
	}
}

// runOnce rolls over the previous year. The job's lease and per-user
// markers make repeated invocations no-ops.
func (rs *RolloverScheduler) runOnce() {
	year := rs.Clock.Today().Year() - 1
	if err := rs.Rollover.Run(context.Background(), year); err != nil {
		rs.log.Error().Err(err).Int("year", year).Msg("year-end rollover failed")
	}
}

// nextRun returns the next January 1 firing time after now, in the
// configured timezone.
func (rs *RolloverScheduler) nextRun(now time.Time) time.Time {
	loc := rs.Config.Location
	next := time.Date(now.Year()+1, time.January, 1,
		rs.Config.RolloverHour, rs.Config.RolloverMinute, 0, 0, loc)
	thisYear := time.Date(now.Year(), time.January, 1,
		rs.Config.RolloverHour, rs.Config.RolloverMinute, 0, 0, loc)
	if now.Before(thisYear) {
		return thisYear
	}
	return next
}
