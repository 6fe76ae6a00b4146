/*
absence.go - Absence request state machine

States: pending, approved, rejected. Every transition that activates or
deactivates an absence triggers a recompute of the covered range; the
recompute's delete-then-reinsert makes transitions idempotent at the journal
level, so the circular sequence pending -> approved -> rejected -> approved
leaves the journal identical to a single approval.

Vacation bookkeeping moves whole working days between the pending and taken
columns of the year's VacationBalance. overtime_comp approval additionally
appends a compensation journal entry spending the account; revoking the
approval removes that entry by reference. Both survive day-level recomputes
because compensation is not a recomputable type.
*/
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DecisionAction is the admin's verdict on a request.
type DecisionAction string

const (
	ActionApprove DecisionAction = "approve"
	ActionReject  DecisionAction = "reject"
	ActionReset   DecisionAction = "reset"
)

// AbsenceService owns the request lifecycle.
type AbsenceService struct {
	store  TxStore
	orch   *Orchestrator
	cal    *Calendar
	bus    *Bus
	clock  Clock
	config Config
	log    zerolog.Logger
}

func NewAbsenceService(store TxStore, orch *Orchestrator, cal *Calendar, bus *Bus, clock Clock, config Config, log zerolog.Logger) *AbsenceService {
	return &AbsenceService{
		store:  store,
		orch:   orch,
		cal:    cal,
		bus:    bus,
		clock:  clock,
		config: config,
		log:    log.With().Str("component", "absence").Logger(),
	}
}

// Create files a new pending request. Overlapping with an existing pending
// or approved request of the same type fails the precondition; ranges of
// different types may overlap, the daily calculator resolves them day by
// day (unpaid wins). Vacation requests reserve their working days in the
// pending column.
func (a *AbsenceService) Create(ctx context.Context, req *AbsenceRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	user, err := a.store.GetUser(ctx, req.UserID)
	if err != nil {
		return err
	}
	if req.StartDate.Before(user.HireDate) {
		return &PreconditionError{Rule: "absence-after-hire", Detail: "absence starts before hire date"}
	}

	overlapping, err := a.store.AbsencesOverlapping(ctx, req.UserID, req.StartDate, req.EndDate,
		[]AbsenceStatus{AbsencePending, AbsenceApproved})
	if err != nil {
		return err
	}
	for i := range overlapping {
		if overlapping[i].Type != req.Type {
			continue
		}
		return &PreconditionError{
			Rule:   "no-overlapping-absence",
			Detail: fmt.Sprintf("overlaps existing %s request %s", req.Type, overlapping[i].ID),
		}
	}

	req.ID = uuid.NewString()
	req.Status = AbsencePending
	req.CreatedAt = a.clock.Now()

	err = a.store.WithTx(ctx, func(s Store) error {
		if err := s.SaveAbsence(ctx, req); err != nil {
			return err
		}
		if req.Type == AbsenceVacation {
			days, err := a.workingDays(ctx, user, req)
			if err != nil {
				return err
			}
			return a.moveVacationDays(ctx, s, user, req.StartDate.Year(), decimal.Zero, days)
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.bus.Publish(Event{Kind: EventAbsenceCreated, UserID: req.UserID, Payload: req})
	return nil
}

// Decide applies an admin transition. approve and reject act on any current
// state per the transition table; reset returns a decided request to
// pending for re-decision. The decision and its journal rewrite commit in
// one transaction held under the user's recompute lock.
func (a *AbsenceService) Decide(ctx context.Context, id string, action DecisionAction, decidedBy string) (*AbsenceRequest, error) {
	req, err := a.store.GetAbsence(ctx, id)
	if err != nil {
		return nil, err
	}
	user, err := a.store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	var target AbsenceStatus
	switch action {
	case ActionApprove:
		target = AbsenceApproved
	case ActionReject:
		target = AbsenceRejected
	case ActionReset:
		target = AbsencePending
	default:
		return nil, &InvalidInputError{Field: "action", Value: string(action), Reason: "unknown action"}
	}

	if req.Status == target {
		return nil, &TransitionError{
			From:    req.Status,
			To:      target,
			Decided: req.Status != AbsencePending,
			Detail:  "request already in target state",
		}
	}

	from := req.Status
	now := a.clock.Now()
	// Journal-affecting transitions: anything entering or leaving approved.
	journalAffecting := from == AbsenceApproved || target == AbsenceApproved

	// The status change, vacation move, compensation entry and the journal
	// rewrite commit as one unit under the user's recompute lock: a failed
	// rewrite rolls the decision back.
	err = a.orch.WithUserLock(req.UserID, func() error {
		return a.store.WithTx(ctx, func(s Store) error {
			req.Status = target
			if target == AbsencePending {
				req.DecidedBy = nil
				req.DecidedAt = nil
			} else {
				req.DecidedBy = &decidedBy
				req.DecidedAt = &now
			}
			if err := s.SaveAbsence(ctx, req); err != nil {
				return err
			}
			if err := a.applyVacationMove(ctx, s, user, req, from, target); err != nil {
				return err
			}
			if err := a.applyCompensation(ctx, s, user, req, from, target); err != nil {
				return err
			}
			if journalAffecting {
				return a.orch.RecomputeInTx(ctx, s, req.UserID, DatesInRange(req.StartDate, req.EndDate))
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if journalAffecting {
		if balance, err := Balance(ctx, a.store, req.UserID); err != nil {
			a.log.Error().Err(err).Str("user_id", req.UserID).Msg("balance read after decision failed")
		} else {
			a.orch.publishUpdated(req.UserID, DatesInRange(req.StartDate, req.EndDate), balance)
		}
	}

	switch target {
	case AbsenceApproved:
		a.bus.Publish(Event{Kind: EventAbsenceApproved, UserID: req.UserID, Payload: req})
	case AbsenceRejected:
		a.bus.Publish(Event{Kind: EventAbsenceRejected, UserID: req.UserID, Payload: req})
	}
	return req, nil
}

// VacationBalanceFor returns the user's vacation balance for the year,
// synthesizing an untouched balance from the entitlement defaults when no
// row exists yet.
func (a *AbsenceService) VacationBalanceFor(ctx context.Context, userID string, year int) (*VacationBalance, error) {
	balance, err := a.store.GetVacationBalance(ctx, userID, year)
	if err != nil {
		return nil, err
	}
	if balance != nil {
		return balance, nil
	}
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	entitlement := user.VacationDaysPerYear
	if entitlement.IsZero() {
		entitlement = a.config.DefaultVacationDays
	}
	return &VacationBalance{UserID: userID, Year: year, Entitlement: entitlement}, nil
}

// List returns the user's requests, optionally filtered by status.
func (a *AbsenceService) List(ctx context.Context, userID string, status *AbsenceStatus) ([]AbsenceRequest, error) {
	return a.store.ListAbsences(ctx, userID, status)
}

// Get returns one request by id.
func (a *AbsenceService) Get(ctx context.Context, id string) (*AbsenceRequest, error) {
	return a.store.GetAbsence(ctx, id)
}

// applyVacationMove shifts the request's working days between the pending
// and taken columns according to the transition.
func (a *AbsenceService) applyVacationMove(ctx context.Context, s Store, user *User, req *AbsenceRequest, from, to AbsenceStatus) error {
	if req.Type != AbsenceVacation {
		return nil
	}
	days, err := a.workingDays(ctx, user, req)
	if err != nil {
		return err
	}
	year := req.StartDate.Year()

	var takenDelta, pendingDelta decimal.Decimal
	switch {
	case from == AbsencePending && to == AbsenceApproved:
		pendingDelta = days.Neg()
		takenDelta = days
	case from == AbsencePending && to == AbsenceRejected:
		pendingDelta = days.Neg()
	case from == AbsenceApproved && to == AbsenceRejected:
		takenDelta = days.Neg()
	case from == AbsenceRejected && to == AbsenceApproved:
		takenDelta = days
	case from == AbsenceApproved && to == AbsencePending:
		takenDelta = days.Neg()
		pendingDelta = days
	case from == AbsenceRejected && to == AbsencePending:
		pendingDelta = days
	}
	return a.moveVacationDays(ctx, s, user, year, takenDelta, pendingDelta)
}

func (a *AbsenceService) moveVacationDays(ctx context.Context, s Store, user *User, year int, takenDelta, pendingDelta decimal.Decimal) error {
	if takenDelta.IsZero() && pendingDelta.IsZero() {
		return nil
	}
	balance, err := s.GetVacationBalance(ctx, user.ID, year)
	if err != nil {
		return err
	}
	if balance == nil {
		entitlement := user.VacationDaysPerYear
		if entitlement.IsZero() {
			entitlement = a.config.DefaultVacationDays
		}
		balance = &VacationBalance{UserID: user.ID, Year: year, Entitlement: entitlement}
	}
	balance.Taken = balance.Taken.Add(takenDelta)
	balance.Pending = balance.Pending.Add(pendingDelta)
	return s.SaveVacationBalance(ctx, *balance)
}

// applyCompensation appends or removes the compensation entry for
// overtime_comp requests. The entry references the request, so revoking
// deletes exactly the entry the approval created; re-chaining happens in
// the recompute committing with the transition.
func (a *AbsenceService) applyCompensation(ctx context.Context, s Store, user *User, req *AbsenceRequest, from, to AbsenceStatus) error {
	if req.Type != AbsenceOvertimeComp {
		return nil
	}
	switch {
	case to == AbsenceApproved:
		spend, err := a.compensationHours(ctx, s, user, req)
		if err != nil {
			return err
		}
		return Append(ctx, s, &Transaction{
			UserID:        user.ID,
			Date:          req.StartDate,
			Type:          TxCompensation,
			Hours:         spend.Neg(),
			ReferenceKind: RefAbsence,
			ReferenceID:   req.ID,
			Description:   fmt.Sprintf("overtime compensation %s to %s", req.StartDate, req.EndDate),
			CreatedBy:     stringOrEmpty(req.DecidedBy),
		}, a.clock.Now())
	case from == AbsenceApproved:
		_, err := s.DeleteTransactions(ctx, user.ID, TransactionFilter{
			Kind:  RefAbsence,
			RefID: req.ID,
		})
		return err
	}
	return nil
}

// compensationHours sums the effective targets over the absence range: days
// the account must pay for. Unpaid leave on the same day zeroes that day's
// share.
func (a *AbsenceService) compensationHours(ctx context.Context, s Store, user *User, req *AbsenceRequest) (decimal.Decimal, error) {
	total := decimal.Zero
	for d := req.StartDate; d.BeforeOrEqual(req.EndDate); d = d.AddDays(1) {
		target, err := a.cal.DailyTargetHours(ctx, user, d)
		if err != nil {
			return decimal.Zero, err
		}
		if target.IsZero() {
			continue
		}
		types, err := ActiveAbsenceTypes(ctx, s, user.ID, d)
		if err != nil {
			return decimal.Zero, err
		}
		unpaid := false
		for _, t := range types {
			if t == AbsenceUnpaid {
				unpaid = true
				break
			}
		}
		if !unpaid {
			total = total.Add(target)
		}
	}
	return total, nil
}

func (a *AbsenceService) workingDays(ctx context.Context, user *User, req *AbsenceRequest) (decimal.Decimal, error) {
	n, err := a.cal.CountWorkingDays(ctx, user, req.StartDate, req.EndDate)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(int64(n)), nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
