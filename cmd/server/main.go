/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the overtime accounting engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (OVERTIME_* environment / optional YAML)
  2. Initialize SQLite store
  3. Build the engine: calendar, bus, orchestrator, services
  4. Configure HTTP router and websocket hub
  5. Start the rollover scheduler
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, close the database
  4. Exit

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/timegrid/overtime-engine/api"
	"github.com/timegrid/overtime-engine/config"
	"github.com/timegrid/overtime-engine/engine"
	"github.com/timegrid/overtime-engine/logger"
	"github.com/timegrid/overtime-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("overtime-engine", cfg.Server.Environment)

	engineCfg, err := engineConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid engine configuration")
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("failed to initialize database")
	}
	defer store.Close()

	clock := engine.NewClock(engineCfg.Location)
	calendar := engine.NewCalendar(store)
	bus := engine.NewBus()

	orch := engine.NewOrchestrator(store, calendar, bus, clock, log.Logger)
	timesheet := engine.NewTimesheetService(store, orch, bus, clock, log.Logger)
	absences := engine.NewAbsenceService(store, orch, calendar, bus, clock, engineCfg, log.Logger)
	users := engine.NewUserService(store, orch, clock, log.Logger)
	reports := engine.NewReporter(store, orch, clock, log.Logger)
	rollover := engine.NewRollover(store, orch, clock, engineCfg, log.Logger)

	hub := api.NewHub(bus, store, log)
	handler := api.NewHandler(users, timesheet, absences, reports, rollover, store, clock, log)
	router := api.NewRouter(handler, hub)

	scheduler := api.NewRolloverScheduler(rollover, clock, engineCfg, log)
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func engineConfig(cfg *config.Config) (engine.Config, error) {
	loc, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		return engine.Config{}, fmt.Errorf("timezone %q: %w", cfg.Engine.Timezone, err)
	}
	hour, minute, err := cfg.RolloverClock()
	if err != nil {
		return engine.Config{}, err
	}
	out := engine.Config{
		Location:            loc,
		DefaultVacationDays: decimal.NewFromFloat(cfg.Engine.VacationDays),
		RolloverHour:        hour,
		RolloverMinute:      minute,
	}
	if cfg.Engine.VacationCarryoverCap > 0 {
		cap := decimal.NewFromFloat(cfg.Engine.VacationCarryoverCap)
		out.VacationCarryoverCap = &cap
	}
	return out, nil
}
