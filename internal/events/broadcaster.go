// Package events fans task-mutation events out to every live subscriber of
// an owner, whether the mutation came from chat or the traditional UI.
// Delivery is best-effort and at-most-once; disconnected clients reconcile
// by refetching.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType names the kinds of events a subscriber can receive.
type EventType string

const (
	EventTaskCreated     EventType = "task_created"
	EventTaskUpdated     EventType = "task_updated"
	EventTaskDeleted     EventType = "task_deleted"
	EventActionPending   EventType = "action_pending"
	EventActionCompleted EventType = "action_completed"
	EventQuotaWarning    EventType = "quota_warning"
)

// Event is one notification. Payloads describe the new state of the
// resource, not a delta, so consumers can treat them as idempotent.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
	TS      time.Time   `json:"ts"`
}

// Subscription is one live, owner-scoped stream. Ephemeral and in-memory:
// it dies with the connection or the process.
type Subscription struct {
	owner    uuid.UUID
	ch       chan Event
	openedAt time.Time

	// mu serializes enqueues so each subscriber sees publish order even
	// when the drop-oldest path runs, and guards closed so the channel is
	// never closed while a publish is sending on it.
	mu     sync.Mutex
	closed bool
}

// close shuts the channel down exactly once. Holding mu here and across
// every send in Publish is what makes a publish racing a disconnect safe.
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// C is the stream of events for this subscription.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Owner returns the user this subscription belongs to.
func (s *Subscription) Owner() uuid.UUID {
	return s.owner
}

// OpenedAt returns when the subscription was created.
func (s *Subscription) OpenedAt() time.Time {
	return s.openedAt
}

// Broadcaster is the per-owner publish/subscribe hub.
type Broadcaster struct {
	mu        sync.RWMutex
	subs      map[uuid.UUID][]*Subscription
	queueSize int
	closed    bool

	// onDrop is invoked when a slow subscriber loses its oldest event.
	onDrop func()
}

// NewBroadcaster creates a hub with the given per-subscriber queue size.
func NewBroadcaster(queueSize int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Broadcaster{
		subs:      make(map[uuid.UUID][]*Subscription),
		queueSize: queueSize,
	}
}

// OnDrop registers a callback fired whenever an event is dropped from a
// full subscriber queue. Used for metrics.
func (b *Broadcaster) OnDrop(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Subscribe opens a stream for owner. The caller must Unsubscribe when the
// connection goes away.
func (b *Broadcaster) Subscribe(owner uuid.UUID) *Subscription {
	sub := &Subscription{
		owner:    owner,
		ch:       make(chan Event, b.queueSize),
		openedAt: time.Now().UTC(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.close()
		return sub
	}
	b.subs[owner] = append(b.subs[owner], sub)
	return sub
}

// Unsubscribe tears the stream down and closes its channel.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	list := b.subs[sub.owner]
	for i, s := range list {
		if s == sub {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(b.subs, sub.owner)
	} else {
		b.subs[sub.owner] = list
	}
	b.mu.Unlock()

	sub.close()
}

// Publish delivers the event to every open subscription of owner, in
// publish order per subscriber. A full queue drops its oldest event rather
// than blocking the publisher or growing without bound.
func (b *Broadcaster) Publish(owner uuid.UUID, event Event) {
	if event.TS.IsZero() {
		event.TS = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]*Subscription, len(b.subs[owner]))
	copy(subs, b.subs[owner])
	onDrop := b.onDrop
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if sub.closed {
			sub.mu.Unlock()
			continue
		}
		for {
			select {
			case sub.ch <- event:
				sub.mu.Unlock()
			default:
				// Queue full: shed the oldest event and retry.
				select {
				case <-sub.ch:
					if onDrop != nil {
						onDrop()
					}
				default:
				}
				continue
			}
			break
		}
	}
}

// SubscriberCount returns the number of open subscriptions for owner.
func (b *Broadcaster) SubscriberCount(owner uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[owner])
}

// Close shuts every subscription down. Used at process shutdown.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, list := range b.subs {
		for _, sub := range list {
			sub.close()
		}
	}
	b.subs = make(map[uuid.UUID][]*Subscription)
}
