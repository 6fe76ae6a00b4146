/*
timesheet.go - Time entry and correction mutations

Thin write paths in front of the orchestrator: validate, persist, recompute
the affected date, publish. The response of a time entry mutation carries
the post-mutation monthly balance so the client can update its display
without a second round trip.
*/
package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TimesheetService owns time entry and correction write paths.
type TimesheetService struct {
	store TxStore
	orch  *Orchestrator
	bus   *Bus
	clock Clock
	log   zerolog.Logger
}

func NewTimesheetService(store TxStore, orch *Orchestrator, bus *Bus, clock Clock, log zerolog.Logger) *TimesheetService {
	return &TimesheetService{
		store: store,
		orch:  orch,
		bus:   bus,
		clock: clock,
		log:   log.With().Str("component", "timesheet").Logger(),
	}
}

// UpsertEntry creates the day's entry or overwrites an existing one (one
// entry per user per date). Returns the entry and the recomputed monthly
// balance of the entry's month.
func (t *TimesheetService) UpsertEntry(ctx context.Context, userID string, date Date, entry TimeEntry) (*TimeEntry, *MonthlyBalance, error) {
	entry.UserID = userID
	entry.Date = date
	if err := entry.Validate(); err != nil {
		return nil, nil, err
	}
	user, err := t.store.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if date.Before(user.HireDate) {
		return nil, nil, &PreconditionError{Rule: "entry-after-hire", Detail: "time entry before hire date"}
	}
	if user.EndDate != nil && date.After(*user.EndDate) {
		return nil, nil, &PreconditionError{Rule: "entry-before-end", Detail: "time entry after termination date"}
	}

	existing, err := t.store.TimeEntries(ctx, userID, date, date)
	if err != nil {
		return nil, nil, err
	}

	kind := EventTimeEntryCreated
	if len(existing) > 0 {
		entry.ID = existing[0].ID
		entry.CreatedAt = existing[0].CreatedAt
		kind = EventTimeEntryUpdated
	} else {
		entry.ID = uuid.NewString()
		entry.CreatedAt = t.clock.Now()
	}

	if err := t.store.SaveTimeEntry(ctx, &entry); err != nil {
		return nil, nil, err
	}
	if err := t.orch.Recompute(ctx, userID, []Date{date}); err != nil {
		return nil, nil, err
	}

	t.bus.Publish(Event{Kind: kind, UserID: userID, Payload: entry})

	month, err := t.store.GetMonthlyBalance(ctx, userID, date.YearMonth())
	if err != nil {
		return nil, nil, err
	}
	return &entry, month, nil
}

// DeleteEntry removes the entry and recomputes its date.
func (t *TimesheetService) DeleteEntry(ctx context.Context, id string) error {
	entry, err := t.store.GetTimeEntry(ctx, id)
	if err != nil {
		return err
	}
	if err := t.store.DeleteTimeEntry(ctx, id); err != nil {
		return err
	}
	if err := t.orch.Recompute(ctx, entry.UserID, []Date{entry.Date}); err != nil {
		return err
	}
	t.bus.Publish(Event{Kind: EventTimeEntryDeleted, UserID: entry.UserID, Payload: entry})
	return nil
}

// CreateCorrection records an admin's signed delta and recomputes the date.
func (t *TimesheetService) CreateCorrection(ctx context.Context, c *Correction) (*Correction, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if _, err := t.store.GetUser(ctx, c.UserID); err != nil {
		return nil, err
	}

	c.ID = uuid.NewString()
	c.CreatedAt = t.clock.Now()
	if err := t.store.SaveCorrection(ctx, c); err != nil {
		return nil, err
	}
	if err := t.orch.Recompute(ctx, c.UserID, []Date{c.Date}); err != nil {
		return nil, err
	}
	t.bus.Publish(Event{Kind: EventCorrectionCreated, UserID: c.UserID, Payload: c})
	return c, nil
}

// DeleteCorrection removes the correction and recomputes its date.
func (t *TimesheetService) DeleteCorrection(ctx context.Context, id string) error {
	c, err := t.store.GetCorrection(ctx, id)
	if err != nil {
		return err
	}
	if err := t.store.DeleteCorrection(ctx, id); err != nil {
		return err
	}
	if err := t.orch.Recompute(ctx, c.UserID, []Date{c.Date}); err != nil {
		return err
	}
	t.bus.Publish(Event{Kind: EventCorrectionDeleted, UserID: c.UserID, Payload: c})
	return nil
}

// Entries lists the user's time entries in a range.
func (t *TimesheetService) Entries(ctx context.Context, userID string, from, to Date) ([]TimeEntry, error) {
	return t.store.TimeEntries(ctx, userID, from, to)
}

// Corrections lists the user's corrections in a range.
func (t *TimesheetService) Corrections(ctx context.Context, userID string, from, to Date) ([]Correction, error) {
	return t.store.Corrections(ctx, userID, from, to)
}
