package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config is the immutable runtime configuration threaded through the engine
// at startup. There is no hot reload; changing the timezone requires a
// restart.
type Config struct {
	// Location is the tenant's civil timezone. All "today" derivations and
	// scheduled jobs run in this zone.
	Location *time.Location

	// DefaultVacationDays seeds VacationBalance.Entitlement for users without
	// an explicit per-user value.
	DefaultVacationDays decimal.Decimal

	// VacationCarryoverCap limits the vacation days rolled into the next
	// year. Nil means uncapped.
	VacationCarryoverCap *decimal.Decimal

	// RolloverHour/RolloverMinute give the local wall-clock time on January 1
	// when the year-end job fires.
	RolloverHour   int
	RolloverMinute int
}

// DefaultConfig returns the tenant defaults used by tests and development.
func DefaultConfig() Config {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		loc = time.UTC
	}
	return Config{
		Location:            loc,
		DefaultVacationDays: decimal.NewFromInt(30),
		RolloverHour:        0,
		RolloverMinute:      5,
	}
}
