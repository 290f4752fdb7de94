package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, sub *Subscription, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		select {
		case ev := <-sub.C():
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	return out
}

func TestPublishReachesAllOwnerSubscribers(t *testing.T) {
	b := NewBroadcaster(8)
	owner := uuid.New()

	a := b.Subscribe(owner)
	c := b.Subscribe(owner)
	defer b.Unsubscribe(a)
	defer b.Unsubscribe(c)

	b.Publish(owner, Event{Type: EventTaskCreated, Payload: map[string]int64{"id": 1}})

	for _, sub := range []*Subscription{a, c} {
		evs := drain(t, sub, 1)
		assert.Equal(t, EventTaskCreated, evs[0].Type)
		assert.False(t, evs[0].TS.IsZero())
	}
}

func TestPublishIsOwnerScoped(t *testing.T) {
	b := NewBroadcaster(8)
	alice := uuid.New()
	bob := uuid.New()

	aliceSub := b.Subscribe(alice)
	bobSub := b.Subscribe(bob)
	defer b.Unsubscribe(aliceSub)
	defer b.Unsubscribe(bobSub)

	b.Publish(alice, Event{Type: EventTaskUpdated})

	drain(t, aliceSub, 1)
	select {
	case ev := <-bobSub.C():
		t.Fatalf("event leaked across owners: %v", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := NewBroadcaster(4)
	owner := uuid.New()

	var dropped int
	var mu sync.Mutex
	b.OnDrop(func() {
		mu.Lock()
		dropped++
		mu.Unlock()
	})

	sub := b.Subscribe(owner)
	defer b.Unsubscribe(sub)

	// Publish 10 into a queue of 4 with nobody reading.
	for i := 0; i < 10; i++ {
		b.Publish(owner, Event{Type: EventTaskCreated, Payload: i})
	}

	evs := drain(t, sub, 4)
	// The newest four survive, in order.
	for i, ev := range evs {
		assert.Equal(t, 6+i, ev.Payload)
	}
	mu.Lock()
	assert.Equal(t, 6, dropped)
	mu.Unlock()
}

func TestPublishOrderPreservedPerSubscriber(t *testing.T) {
	b := NewBroadcaster(128)
	owner := uuid.New()
	sub := b.Subscribe(owner)
	defer b.Unsubscribe(sub)

	for i := 0; i < 100; i++ {
		b.Publish(owner, Event{Type: EventTaskUpdated, Payload: i})
	}

	evs := drain(t, sub, 100)
	for i, ev := range evs {
		require.Equal(t, i, ev.Payload)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(4)
	owner := uuid.New()
	sub := b.Subscribe(owner)

	b.Unsubscribe(sub)

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.Equal(t, 0, b.SubscriberCount(owner))

	// Publishing after unsubscribe must not panic.
	b.Publish(owner, Event{Type: EventTaskDeleted})
}

func TestUnsubscribeTwiceIsSafe(t *testing.T) {
	b := NewBroadcaster(4)
	sub := b.Subscribe(uuid.New())
	b.Unsubscribe(sub)
	assert.NotPanics(t, func() { b.Unsubscribe(sub) })
}

func TestCloseShutsDownAllSubscribers(t *testing.T) {
	b := NewBroadcaster(4)
	subs := make([]*Subscription, 0, 3)
	for i := 0; i < 3; i++ {
		subs = append(subs, b.Subscribe(uuid.New()))
	}

	b.Close()

	for _, sub := range subs {
		_, ok := <-sub.C()
		assert.False(t, ok)
	}

	// Subscribing after close hands back an already-closed stream.
	late := b.Subscribe(uuid.New())
	_, ok := <-late.C()
	assert.False(t, ok)
}

func TestPublishRacingUnsubscribeDoesNotPanic(t *testing.T) {
	owner := uuid.New()

	// Queue size 1, pre-filled, so the racing publish lands in the
	// drop-oldest path while the subscriber disconnects.
	for i := 0; i < 500; i++ {
		b := NewBroadcaster(1)
		sub := b.Subscribe(owner)
		b.Publish(owner, Event{Type: EventTaskCreated})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Publish(owner, Event{Type: EventTaskUpdated})
		}()
		go func() {
			defer wg.Done()
			b.Unsubscribe(sub)
		}()
		wg.Wait()

		// Whatever the interleaving, the channel ends up closed and
		// drained, never sent on after close.
		for range sub.C() {
		}
	}
}

func TestPublishRacingCloseDoesNotPanic(t *testing.T) {
	owner := uuid.New()

	for i := 0; i < 500; i++ {
		b := NewBroadcaster(1)
		b.Subscribe(owner)
		b.Publish(owner, Event{Type: EventTaskCreated})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Publish(owner, Event{Type: EventTaskUpdated})
		}()
		go func() {
			defer wg.Done()
			b.Close()
		}()
		wg.Wait()
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewBroadcaster(256)
	owner := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish(owner, Event{Type: EventTaskCreated, Payload: fmt.Sprintf("%d-%d", n, j)})
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := b.Subscribe(owner)
			time.Sleep(time.Millisecond)
			b.Unsubscribe(sub)
		}()
	}
	wg.Wait()
}
