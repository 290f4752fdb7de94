// Package quota meters AI requests per user over fixed UTC windows.
// Counting is in-process and best effort: a cross-process race can only
// make the limiter stricter, never more permissive than limit+1.
package quota

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// WindowKind selects the day or hour budget.
type WindowKind string

const (
	WindowDay  WindowKind = "day"
	WindowHour WindowKind = "hour"
)

// Valid reports whether k names a known window.
func (k WindowKind) Valid() bool {
	return k == WindowDay || k == WindowHour
}

// Limits are request ceilings per window.
type Limits struct {
	PerDay  int
	PerHour int
}

// Decision is the result of an admission check. Window names the exhausted
// window on denial, or the tighter of the two on admission.
type Decision struct {
	Allowed   bool       `json:"allowed"`
	Window    WindowKind `json:"window"`
	Remaining int        `json:"remaining"`
	ResetAt   time.Time  `json:"reset_at"`
}

// Stats describes the state of one window for one owner.
type Stats struct {
	Window    WindowKind `json:"period"`
	Limit     int        `json:"limit"`
	Used      int        `json:"used"`
	Remaining int        `json:"remaining"`
	ResetAt   time.Time  `json:"resets_at"`
}

const shardCount = 16

type counters struct {
	dayStart  time.Time
	dayCount  int
	hourStart time.Time
	hourCount int
}

type shard struct {
	mu       sync.Mutex
	counters map[uuid.UUID]*counters
}

// Ledger tracks per-owner usage across both windows. Safe for concurrent
// use; owners are sharded so unrelated users never contend on one lock.
type Ledger struct {
	defaults Limits

	ovMu      sync.RWMutex
	overrides map[uuid.UUID]Limits

	shards [shardCount]*shard

	now func() time.Time
}

// NewLedger creates a ledger with deployment-wide default limits.
func NewLedger(defaults Limits) *Ledger {
	l := &Ledger{
		defaults:  defaults,
		overrides: make(map[uuid.UUID]Limits),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for i := range l.shards {
		l.shards[i] = &shard{counters: make(map[uuid.UUID]*counters)}
	}
	return l
}

// SetOverride installs per-user limits in place of the defaults.
func (l *Ledger) SetOverride(owner uuid.UUID, limits Limits) {
	l.ovMu.Lock()
	defer l.ovMu.Unlock()
	l.overrides[owner] = limits
}

func (l *Ledger) limitsFor(owner uuid.UUID) Limits {
	l.ovMu.RLock()
	defer l.ovMu.RUnlock()
	if lim, ok := l.overrides[owner]; ok {
		return lim
	}
	return l.defaults
}

func (l *Ledger) shardFor(owner uuid.UUID) *shard {
	return l.shards[int(owner[0])%shardCount]
}

// Admit checks both windows and admits only when each has capacity left.
// When denied, the decision carries the reset time of the exhausted window;
// when allowed, Remaining is the tighter of the two.
func (l *Ledger) Admit(owner uuid.UUID) Decision {
	limits := l.limitsFor(owner)
	now := l.now()

	s := l.shardFor(owner)
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ownerCounters(owner, now)

	dayRemaining := limits.PerDay - c.dayCount
	hourRemaining := limits.PerHour - c.hourCount

	if dayRemaining <= 0 {
		return Decision{Allowed: false, Window: WindowDay, Remaining: 0, ResetAt: c.dayStart.Add(24 * time.Hour)}
	}
	if hourRemaining <= 0 {
		return Decision{Allowed: false, Window: WindowHour, Remaining: 0, ResetAt: c.hourStart.Add(time.Hour)}
	}

	d := Decision{Allowed: true, Window: WindowDay, Remaining: dayRemaining, ResetAt: c.dayStart.Add(24 * time.Hour)}
	if hourRemaining < dayRemaining {
		d.Window = WindowHour
		d.Remaining = hourRemaining
		d.ResetAt = c.hourStart.Add(time.Hour)
	}
	return d
}

// RecordUsage charges one request against both windows. Counts are clamped
// at zero on rollover, never decremented otherwise.
func (l *Ledger) RecordUsage(owner uuid.UUID) {
	now := l.now()

	s := l.shardFor(owner)
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ownerCounters(owner, now)
	c.dayCount++
	c.hourCount++
}

// StatsFor reports usage for one window.
func (l *Ledger) StatsFor(owner uuid.UUID, kind WindowKind) Stats {
	limits := l.limitsFor(owner)
	now := l.now()

	s := l.shardFor(owner)
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.ownerCounters(owner, now)

	switch kind {
	case WindowHour:
		remaining := limits.PerHour - c.hourCount
		if remaining < 0 {
			remaining = 0
		}
		return Stats{
			Window:    WindowHour,
			Limit:     limits.PerHour,
			Used:      c.hourCount,
			Remaining: remaining,
			ResetAt:   c.hourStart.Add(time.Hour),
		}
	default:
		remaining := limits.PerDay - c.dayCount
		if remaining < 0 {
			remaining = 0
		}
		return Stats{
			Window:    WindowDay,
			Limit:     limits.PerDay,
			Used:      c.dayCount,
			Remaining: remaining,
			ResetAt:   c.dayStart.Add(24 * time.Hour),
		}
	}
}

// Reset clears an owner's counters, both windows.
func (l *Ledger) Reset(owner uuid.UUID) {
	s := l.shardFor(owner)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, owner)
}

// ownerCounters returns the owner's counters, lazily created and rolled
// over to the current windows. Caller must hold the shard lock.
func (s *shard) ownerCounters(owner uuid.UUID, now time.Time) *counters {
	c, ok := s.counters[owner]
	if !ok {
		c = &counters{}
		s.counters[owner] = c
	}

	dayStart := now.Truncate(24 * time.Hour)
	if !c.dayStart.Equal(dayStart) {
		c.dayStart = dayStart
		c.dayCount = 0
	}

	hourStart := now.Truncate(time.Hour)
	if !c.hourStart.Equal(hourStart) {
		c.hourStart = hourStart
		c.hourCount = 0
	}

	return c
}
