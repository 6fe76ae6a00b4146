package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/timegrid/overtime-engine/engine"
)

func TestComputeDayPlainWork(t *testing.T) {
	r := engine.ComputeDay(engine.DayInput{
		Date:   engine.NewDate(2025, time.August, 11),
		Target: engine.Hours(8),
		Worked: engine.Hours(9.5),
	})

	assert.True(t, r.EffectiveTarget.Equal(engine.Hours(8)))
	assert.True(t, r.AbsenceCredit.IsZero())
	assert.True(t, r.Actual.Equal(engine.Hours(9.5)))
	assert.True(t, r.Overtime.Equal(engine.Hours(1.5)))
	assert.True(t, r.Earned().Equal(engine.Hours(1.5)))
}

func TestComputeDayPaidAbsenceCreditsScheduledTarget(t *testing.T) {
	r := engine.ComputeDay(engine.DayInput{
		Date:     engine.NewDate(2025, time.August, 18),
		Target:   engine.Hours(8),
		Absences: []engine.AbsenceType{engine.AbsenceVacation},
	})

	assert.True(t, r.AbsenceCredit.Equal(engine.Hours(8)))
	assert.True(t, r.Actual.Equal(engine.Hours(8)))
	assert.True(t, r.Overtime.IsZero())
	// worked nothing against a full target
	assert.True(t, r.Earned().Equal(engine.Hours(-8)))
}

func TestComputeDayPaidAbsenceOnNonWorkingDay(t *testing.T) {
	// zero scheduled target: no credit
	r := engine.ComputeDay(engine.DayInput{
		Date:     engine.NewDate(2025, time.August, 16), // Saturday
		Target:   engine.Hours(0),
		Absences: []engine.AbsenceType{engine.AbsenceVacation},
	})

	assert.True(t, r.AbsenceCredit.IsZero())
	assert.True(t, r.Overtime.IsZero())
}

func TestComputeDayUnpaidZeroesTarget(t *testing.T) {
	r := engine.ComputeDay(engine.DayInput{
		Date:     engine.NewDate(2025, time.August, 11),
		Target:   engine.Hours(8),
		Absences: []engine.AbsenceType{engine.AbsenceUnpaid},
	})

	assert.True(t, r.EffectiveTarget.IsZero())
	assert.True(t, r.AbsenceCredit.IsZero())
	assert.True(t, r.Overtime.IsZero())
	assert.True(t, r.HasUnpaid)
}

func TestComputeDayUnpaidWinsOverPaid(t *testing.T) {
	// data error: both types on the same day; unpaid wins
	r := engine.ComputeDay(engine.DayInput{
		Date:     engine.NewDate(2025, time.August, 11),
		Target:   engine.Hours(8),
		Absences: []engine.AbsenceType{engine.AbsenceVacation, engine.AbsenceUnpaid},
	})

	assert.True(t, r.EffectiveTarget.IsZero())
	assert.True(t, r.AbsenceCredit.IsZero())
	assert.True(t, r.Overtime.IsZero())
}

func TestComputeDayCorrectionsAlwaysCount(t *testing.T) {
	// correction on a weekend with nothing else
	r := engine.ComputeDay(engine.DayInput{
		Date:        engine.NewDate(2025, time.August, 16),
		Target:      engine.Hours(0),
		Corrections: engine.Hours(5),
	})

	assert.True(t, r.Actual.Equal(engine.Hours(5)))
	assert.True(t, r.Overtime.Equal(engine.Hours(5)))
	assert.False(t, r.Empty())
}

func TestComputeDayEmpty(t *testing.T) {
	r := engine.ComputeDay(engine.DayInput{
		Date: engine.NewDate(2025, time.August, 16),
	})
	assert.True(t, r.Empty())
}
