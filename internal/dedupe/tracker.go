package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type record struct {
	key    string
	seenAt time.Time
}

// Tracker remembers recently imported collection fingerprints so that a
// re-delivered feed message is not indexed twice. It is bounded by both
// capacity and ttl; the oldest fingerprints go first.
type Tracker struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewTracker creates a tracker with the provided capacity and ttl.
func NewTracker(capacity int, ttl time.Duration) *Tracker {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Tracker{
		entries:  make(map[string]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Contains reports whether key was added within the ttl window.
func (t *Tracker) Contains(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.entries[key]
	if !ok {
		return false
	}
	return t.now().Sub(el.Value.(*record).seenAt) <= t.ttl
}

// Add records key as imported now. Adding an existing key refreshes it.
func (t *Tracker) Add(key string) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.entries[key]; ok {
		el.Value.(*record).seenAt = now
		t.order.MoveToBack(el)
	} else {
		t.entries[key] = t.order.PushBack(&record{key: key, seenAt: now})
	}
	t.evict(now)
}

// Len is the number of fingerprints currently held.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.order.Len()
}

func (t *Tracker) evict(now time.Time) {
	cutoff := now.Add(-t.ttl)
	for {
		front := t.order.Front()
		if front == nil {
			return
		}
		rec := front.Value.(*record)
		if t.order.Len() <= t.capacity && !rec.seenAt.Before(cutoff) {
			return
		}
		t.order.Remove(front)
		delete(t.entries, rec.key)
	}
}
