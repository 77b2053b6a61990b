// Package feedback holds the short-lived "+4.8" events shown after a watering.
// Events are never persisted; each one expires a fixed TTL after it was pushed.
package feedback

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"bloomboard/internal/clock"
)

// DefaultTTL is how long a notice stays visible.
const DefaultTTL = 900 * time.Millisecond

// Event is a transient watering notice for one habit.
type Event struct {
	Key       string    `json:"key"`
	HabitID   int64     `json:"habitId"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Queue keeps events keyed by identity and drops them once expired.
// Expiry is evaluated lazily on every access against the injected clock.
type Queue struct {
	mu     sync.Mutex
	clock  clock.Clock
	ttl    time.Duration
	events map[string]Event
}

func NewQueue(c clock.Clock, ttl time.Duration) *Queue {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Queue{
		clock:  c,
		ttl:    ttl,
		events: make(map[string]Event),
	}
}

// Push inserts a new event that expires after the queue TTL.
func (q *Queue) Push(habitID int64, label string) Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	q.pruneLocked(now)

	ev := Event{
		Key:       uuid.NewString(),
		HabitID:   habitID,
		Label:     label,
		CreatedAt: now,
		ExpiresAt: now.Add(q.ttl),
	}
	q.events[ev.Key] = ev
	return ev
}

// Active returns unexpired events for a habit, oldest first.
func (q *Queue) Active(habitID int64) []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pruneLocked(q.clock.Now())

	out := make([]Event, 0)
	for _, ev := range q.events {
		if ev.HabitID == habitID {
			out = append(out, ev)
		}
	}
	sortEvents(out)
	return out
}

// All returns every unexpired event, oldest first.
func (q *Queue) All() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pruneLocked(q.clock.Now())

	out := make([]Event, 0, len(q.events))
	for _, ev := range q.events {
		out = append(out, ev)
	}
	sortEvents(out)
	return out
}

// Drop removes an event by key; unknown keys are ignored.
func (q *Queue) Drop(key string) {
	q.mu.Lock()
	delete(q.events, key)
	q.mu.Unlock()
}

// DropHabit removes every event of a habit, used when the habit is removed.
func (q *Queue) DropHabit(habitID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for key, ev := range q.events {
		if ev.HabitID == habitID {
			delete(q.events, key)
		}
	}
}

func (q *Queue) pruneLocked(now time.Time) {
	for key, ev := range q.events {
		if !now.Before(ev.ExpiresAt) {
			delete(q.events, key)
		}
	}
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].Key < events[j].Key
		}
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}
