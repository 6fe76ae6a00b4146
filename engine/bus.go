/*
bus.go - In-process event bus

Best-effort fan-out of mutation events to connected subscribers (websocket
hub, log observer). No persistence, no replay: a subscriber that is not
connected when an event fires never sees it.

Delivery is non-blocking. Each subscriber owns a buffered channel; when the
buffer is full the event is dropped for that subscriber rather than stalling
the publisher. Publication order per user is preserved for subscribers that
keep up.
*/
package engine

import (
	"sync"
	"time"
)

// Event kinds published by the engine.
const (
	EventOvertimeUpdated   = "overtime:updated"
	EventTimeEntryCreated  = "time-entry:created"
	EventTimeEntryUpdated  = "time-entry:updated"
	EventTimeEntryDeleted  = "time-entry:deleted"
	EventAbsenceCreated    = "absence:created"
	EventAbsenceApproved   = "absence:approved"
	EventAbsenceRejected   = "absence:rejected"
	EventCorrectionCreated = "correction:created"
	EventCorrectionDeleted = "correction:deleted"
)

// Event is one bus message.
type Event struct {
	Kind      string      `json:"type"`
	UserID    string      `json:"userId"`
	Payload   interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// BalanceChanged is the payload of EventOvertimeUpdated.
type BalanceChanged struct {
	UserID     string   `json:"userId"`
	Dates      []string `json:"dates"`
	NewBalance string   `json:"newBalance"`
}

// Subscription is a registered interest in events. Admins receive every
// event; everyone else only their own user's.
type Subscription struct {
	C      chan Event
	userID string
	admin  bool
}

func (s *Subscription) wants(e Event) bool {
	return s.admin || s.userID == e.UserID
}

// Bus fans events out to subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers interest. admin=true subscribes to all users' events.
// buffer holds events the subscriber has not drained yet; 64 is plenty for a
// desktop client.
func (b *Bus) Subscribe(userID string, admin bool, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &Subscription{
		C:      make(chan Event, buffer),
		userID: userID,
		admin:  admin,
	}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub]
	delete(b.subs, sub)
	b.mu.Unlock()
	if ok {
		close(sub.C)
	}
}

// Publish delivers the event to every interested subscriber without
// blocking. Slow subscribers drop events.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !sub.wants(e) {
			continue
		}
		select {
		case sub.C <- e:
		default:
			// subscriber is not draining; drop rather than stall the writer
		}
	}
}

// SubscriberCount is used by tests and the health endpoint.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
