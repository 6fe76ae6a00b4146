/*
users.go - User and holiday management

Changing a user's weeklyHours, workSchedule, hireDate or endDate invalidates
every computed day from the hire date to today, so updates that touch any of
those trigger a full-range recompute. Holidays likewise: adding or removing
one changes the target of every user on that date.
*/
package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// UserService owns user and holiday write paths.
type UserService struct {
	store TxStore
	orch  *Orchestrator
	clock Clock
	log   zerolog.Logger
}

func NewUserService(store TxStore, orch *Orchestrator, clock Clock, log zerolog.Logger) *UserService {
	return &UserService{
		store: store,
		orch:  orch,
		clock: clock,
		log:   log.With().Str("component", "users").Logger(),
	}
}

// Create registers a new user. Username/email uniqueness is enforced by the
// store and surfaces as ErrConflict.
func (u *UserService) Create(ctx context.Context, user *User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	user.ID = uuid.NewString()
	user.CreatedAt = u.clock.Now()
	return u.store.SaveUser(ctx, user)
}

// Update persists the changes and recomputes the user's history when a
// schedule-relevant field changed.
func (u *UserService) Update(ctx context.Context, user *User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	current, err := u.store.GetUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := u.store.SaveUser(ctx, user); err != nil {
		return err
	}
	if scheduleChanged(current, user) {
		// Cover the union of the old and new employment windows: moving the
		// hire date later or the end date earlier must prune the entries the
		// shrunken window no longer owns.
		from := MinDate(current.HireDate, user.HireDate)
		return u.orch.RecomputeRange(ctx, user.ID, from, u.clock.Today())
	}
	return nil
}

// Delete soft-deletes the user. The journal stays; the user just stops
// appearing in listings and rollovers.
func (u *UserService) Delete(ctx context.Context, id string) error {
	user, err := u.store.GetUser(ctx, id)
	if err != nil {
		return err
	}
	now := u.clock.Now()
	user.DeletedAt = &now
	return u.store.SaveUser(ctx, user)
}

func (u *UserService) Get(ctx context.Context, id string) (*User, error) {
	return u.store.GetUser(ctx, id)
}

func (u *UserService) List(ctx context.Context) ([]User, error) {
	return u.store.ListUsers(ctx, false)
}

func scheduleChanged(before, after *User) bool {
	if !before.WeeklyHours.Equal(after.WeeklyHours) {
		return true
	}
	if !before.HireDate.Equal(after.HireDate) {
		return true
	}
	if (before.EndDate == nil) != (after.EndDate == nil) {
		return true
	}
	if before.EndDate != nil && !before.EndDate.Equal(*after.EndDate) {
		return true
	}
	if len(before.WorkSchedule) != len(after.WorkSchedule) {
		return true
	}
	for day, hours := range before.WorkSchedule {
		if !after.WorkSchedule[day].Equal(hours) {
			return true
		}
	}
	return false
}

// AddHoliday registers a public holiday and recomputes the date for every
// active user whose history covers it.
func (u *UserService) AddHoliday(ctx context.Context, h Holiday) error {
	if h.Date.IsZero() {
		return &InvalidInputError{Field: "date", Reason: "required"}
	}
	if h.Name == "" {
		return &InvalidInputError{Field: "name", Reason: "required"}
	}
	if err := u.store.SaveHoliday(ctx, h); err != nil {
		return err
	}
	return u.recomputeHoliday(ctx, h.Date)
}

// RemoveHoliday deletes the holiday and recomputes the date.
func (u *UserService) RemoveHoliday(ctx context.Context, date Date) error {
	if err := u.store.DeleteHoliday(ctx, date); err != nil {
		return err
	}
	return u.recomputeHoliday(ctx, date)
}

func (u *UserService) recomputeHoliday(ctx context.Context, date Date) error {
	if date.After(u.clock.Today()) {
		// future dates have no computed days yet
		return nil
	}
	users, err := u.store.ListUsers(ctx, false)
	if err != nil {
		return err
	}
	for i := range users {
		if !users[i].Active(date) {
			continue
		}
		if err := u.orch.Recompute(ctx, users[i].ID, []Date{date}); err != nil {
			u.log.Error().Err(err).Str("user_id", users[i].ID).Str("date", date.String()).
				Msg("holiday recompute failed for user")
			return err
		}
	}
	return nil
}

// Holidays lists the holidays in a range.
func (u *UserService) Holidays(ctx context.Context, from, to Date) ([]Holiday, error) {
	return u.store.Holidays(ctx, from, to)
}
