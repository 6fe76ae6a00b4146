package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timegrid/overtime-engine/engine"
)

func TestBusDeliversOwnUserEventsOnly(t *testing.T) {
	bus := engine.NewBus()
	alice := bus.Subscribe("u1", false, 4)
	defer bus.Unsubscribe(alice)
	bob := bus.Subscribe("u2", false, 4)
	defer bus.Unsubscribe(bob)

	bus.Publish(engine.Event{Kind: engine.EventOvertimeUpdated, UserID: "u1"})

	require.Len(t, alice.C, 1)
	e := <-alice.C
	assert.Equal(t, engine.EventOvertimeUpdated, e.Kind)
	assert.Equal(t, "u1", e.UserID)
	assert.False(t, e.Timestamp.IsZero())

	assert.Empty(t, bob.C)
}

func TestBusAdminSeesAllUsers(t *testing.T) {
	bus := engine.NewBus()
	admin := bus.Subscribe("boss", true, 4)
	defer bus.Unsubscribe(admin)

	bus.Publish(engine.Event{Kind: engine.EventTimeEntryCreated, UserID: "u1"})
	bus.Publish(engine.Event{Kind: engine.EventAbsenceApproved, UserID: "u2"})

	assert.Len(t, admin.C, 2)
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := engine.NewBus()
	sub := bus.Subscribe("u1", false, 1)
	defer bus.Unsubscribe(sub)

	// second publish must not block the caller
	bus.Publish(engine.Event{Kind: engine.EventOvertimeUpdated, UserID: "u1"})
	bus.Publish(engine.Event{Kind: engine.EventOvertimeUpdated, UserID: "u1"})

	assert.Len(t, sub.C, 1)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := engine.NewBus()
	sub := bus.Subscribe("u1", false, 4)
	assert.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe(sub)
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-sub.C
	assert.False(t, open)

	// double unsubscribe must not panic on a closed channel
	bus.Unsubscribe(sub)
}
