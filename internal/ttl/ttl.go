// Package ttl provides a per-instance, in-memory side table of key deadlines.
//
// The tracker never enforces expiry itself. Enforcement belongs to the
// backend; the tracker only answers remaining-time queries and forgets a
// deadline lazily once it is observed to have passed. Nothing is persisted,
// so tracked deadlines do not survive a restart.
package ttl

import (
	"sync"
	"time"
)

const (
	// Missing is reported for keys that do not exist (or just expired).
	Missing int64 = -2
	// NoExpiry is reported for existing keys without a tracked deadline.
	NoExpiry int64 = -1
)

// Tracker maps keys to absolute deadlines. It is safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
	now       func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// New creates an empty Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		deadlines: make(map[string]time.Time),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track records now+ttl as the deadline for key and returns it.
func (t *Tracker) Track(key string, ttl time.Duration) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	deadline := t.now().Add(ttl)
	t.deadlines[key] = deadline
	return deadline
}

// Forget drops any deadline tracked for key.
func (t *Tracker) Forget(key string) {
	t.mu.Lock()
	delete(t.deadlines, key)
	t.mu.Unlock()
}

// Reset drops every tracked deadline.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.deadlines = make(map[string]time.Time)
	t.mu.Unlock()
}

// deadline returns the tracked deadline for key, if any.
func (t *Tracker) deadline(key string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.deadlines[key]
	return d, ok
}

// Remaining reports the remaining time to live of key in milliseconds.
//
// When no deadline is tracked, exists is consulted: NoExpiry if the key is
// present, Missing otherwise. A deadline that has already passed is evicted
// and reported as Missing.
func (t *Tracker) Remaining(key string, exists func() (bool, error)) (int64, error) {
	t.mu.Lock()
	deadline, tracked := t.deadlines[key]
	if tracked {
		remaining := deadline.Sub(t.now()).Milliseconds()
		if remaining <= 0 {
			delete(t.deadlines, key)
			t.mu.Unlock()
			return Missing, nil
		}
		t.mu.Unlock()
		return remaining, nil
	}
	t.mu.Unlock()

	ok, err := exists()
	if err != nil {
		return 0, err
	}
	if ok {
		return NoExpiry, nil
	}
	return Missing, nil
}

// Len returns the number of tracked deadlines.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.deadlines)
}
