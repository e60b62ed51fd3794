// Package hotkeys tracks how often user keys are touched and reports the
// most frequently accessed ones.
package hotkeys

import (
	"container/heap"
	"sync"
	"time"
)

// Entry is one hot key with its decayed access count.
type Entry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Tracker counts key accesses and reports the top-N. It is safe for
// concurrent use. A Tracker with a decay window owns a goroutine until Close.
type Tracker struct {
	mu     sync.Mutex
	counts map[string]int64
	topN   int
	window time.Duration

	stop      chan struct{}
	closeOnce sync.Once
}

// New creates a tracker reporting topN keys. Every window all counters are
// halved and counters reaching zero are dropped; window 0 disables decay.
func New(topN int, window time.Duration) *Tracker {
	if topN <= 0 {
		topN = 10
	}
	t := &Tracker{
		counts: make(map[string]int64, topN*2),
		topN:   topN,
		window: window,
		stop:   make(chan struct{}),
	}
	if window > 0 {
		go t.decayLoop()
	}
	return t
}

// Record counts one access to each key.
func (t *Tracker) Record(keys ...string) {
	t.mu.Lock()
	for _, key := range keys {
		t.counts[key]++
	}
	t.mu.Unlock()
}

// Top returns up to n keys by descending count; n <= 0 uses the configured
// top-N. Equal counts are ordered by key.
func (t *Tracker) Top(n int) []Entry {
	if n <= 0 {
		n = t.topN
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	h := &entryHeap{}
	for key, cnt := range t.counts {
		e := Entry{Key: key, Count: cnt}
		if h.Len() < n {
			heap.Push(h, e)
		} else if less((*h)[0], e) {
			(*h)[0] = e
			heap.Fix(h, 0)
		}
	}

	result := make([]Entry, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(Entry)
	}
	return result
}

// Reset clears all counters.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.counts = make(map[string]int64, t.topN*2)
	t.mu.Unlock()
}

// Size returns the number of tracked keys.
func (t *Tracker) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counts)
}

// Close stops the decay goroutine. Counters stay readable.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() { close(t.stop) })
}

func (t *Tracker) decay() {
	t.mu.Lock()
	for key, cnt := range t.counts {
		cnt /= 2
		if cnt == 0 {
			delete(t.counts, key)
			continue
		}
		t.counts[key] = cnt
	}
	t.mu.Unlock()
}

func (t *Tracker) decayLoop() {
	ticker := time.NewTicker(t.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.decay()
		case <-t.stop:
			return
		}
	}
}

// less orders entries from coldest to hottest; among equal counts the larger
// key is colder so Top lists ties alphabetically.
func less(a, b Entry) bool {
	if a.Count != b.Count {
		return a.Count < b.Count
	}
	return a.Key > b.Key
}

type entryHeap []Entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return less(h[i], h[j]) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)        { *h = append(*h, x.(Entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
