// Package pubsub is an in-process publish/subscribe broker. Channels are
// matched exactly; a subscription whose name contains a glob wildcard also
// receives every channel the pattern matches.
package pubsub

import (
	"sort"
	"sync"

	"github.com/flashdb/titankv/internal/glob"
)

// Message is one delivery. Pattern is set when the listener was reached
// through a wildcard subscription.
type Message struct {
	Channel string
	Pattern string
	Payload string
}

// Listener receives published messages. Deliver runs synchronously inside
// Publish. Implementations must be comparable (pointer types are); the same
// listener subscribed twice to a channel is kept once.
type Listener interface {
	Deliver(msg Message)
}

type funcListener struct {
	fn func(Message)
}

func (f *funcListener) Deliver(msg Message) { f.fn(msg) }

// Func adapts fn to a Listener. Each call returns a distinct listener; keep
// the result to unsubscribe it later.
func Func(fn func(Message)) Listener {
	return &funcListener{fn: fn}
}

// Option configures a Broker.
type Option func(*Broker)

// WithOnPanic is called when a listener panics. The delivery is not counted
// and dispatch continues with the next listener.
func WithOnPanic(fn func(msg Message, recovered any)) Option {
	return func(b *Broker) { b.onPanic = fn }
}

// WithOnSubscribe is called after every Subscribe with the channel's new
// listener count.
func WithOnSubscribe(fn func(channel string, count int)) Option {
	return func(b *Broker) { b.onSubscribe = fn }
}

// WithOnUnsubscribe is called after an Unsubscribe on a known channel with
// the remaining listener count.
func WithOnUnsubscribe(fn func(channel string, count int)) Option {
	return func(b *Broker) { b.onUnsubscribe = fn }
}

// Broker dispatches messages to listeners. It is safe for concurrent use; the
// registry lock is never held while a listener runs.
type Broker struct {
	mu    sync.RWMutex
	subs  map[string][]Listener
	order []string // channels and patterns in first-subscription order

	onPanic       func(Message, any)
	onSubscribe   func(string, int)
	onUnsubscribe func(string, int)
}

// New creates an empty Broker.
func New(opts ...Option) *Broker {
	b := &Broker{subs: make(map[string][]Listener)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers l on channel (which may be a pattern) and returns the
// number of listeners now on it.
func (b *Broker) Subscribe(channel string, l Listener) int {
	if l == nil {
		return b.NumSub(channel)
	}

	b.mu.Lock()
	listeners, known := b.subs[channel]
	if !known {
		b.order = append(b.order, channel)
	}
	if !contains(listeners, l) {
		listeners = append(listeners, l)
	}
	b.subs[channel] = listeners
	count := len(listeners)
	b.mu.Unlock()

	if b.onSubscribe != nil {
		b.onSubscribe(channel, count)
	}
	return count
}

// Unsubscribe removes l from channel, or every listener when l is nil, and
// returns the remaining count.
func (b *Broker) Unsubscribe(channel string, l Listener) int {
	b.mu.Lock()
	listeners, known := b.subs[channel]
	if !known {
		b.mu.Unlock()
		return 0
	}

	if l == nil {
		listeners = nil
	} else {
		listeners = remove(listeners, l)
	}
	if len(listeners) == 0 {
		delete(b.subs, channel)
		b.order = removeString(b.order, channel)
	} else {
		b.subs[channel] = listeners
	}
	count := len(listeners)
	b.mu.Unlock()

	if b.onUnsubscribe != nil {
		b.onUnsubscribe(channel, count)
	}
	return count
}

type delivery struct {
	pattern  string
	listener Listener
}

// Publish delivers payload to the exact subscribers of channel, then to the
// subscribers of each other wildcard pattern matching channel in the order
// the patterns were first subscribed. It returns the number of listeners
// that received the message without panicking.
func (b *Broker) Publish(channel, payload string) int {
	b.mu.RLock()
	var targets []delivery
	for _, l := range b.subs[channel] {
		targets = append(targets, delivery{listener: l})
	}
	for _, pattern := range b.order {
		if pattern == channel || !glob.HasWildcard(pattern) || !glob.Match(pattern, channel) {
			continue
		}
		for _, l := range b.subs[pattern] {
			targets = append(targets, delivery{pattern: pattern, listener: l})
		}
	}
	b.mu.RUnlock()

	delivered := 0
	for _, t := range targets {
		msg := Message{Channel: channel, Pattern: t.pattern, Payload: payload}
		if b.deliver(t.listener, msg) {
			delivered++
		}
	}
	return delivered
}

func (b *Broker) deliver(l Listener, msg Message) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if b.onPanic != nil {
				b.onPanic(msg, r)
			}
		}
	}()
	l.Deliver(msg)
	return true
}

// Channels returns every channel and pattern with at least one listener,
// sorted.
func (b *Broker) Channels() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.subs))
	for ch := range b.subs {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// NumSub returns the number of listeners registered on channel exactly.
func (b *Broker) NumSub(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Reset drops every subscription without notifying.
func (b *Broker) Reset() {
	b.mu.Lock()
	b.subs = make(map[string][]Listener)
	b.order = nil
	b.mu.Unlock()
}

func contains(ls []Listener, l Listener) bool {
	for _, x := range ls {
		if x == l {
			return true
		}
	}
	return false
}

// remove returns a new slice so snapshots taken by Publish stay intact.
func remove(ls []Listener, l Listener) []Listener {
	out := make([]Listener, 0, len(ls))
	for _, x := range ls {
		if x != l {
			out = append(out, x)
		}
	}
	return out
}

func removeString(ss []string, s string) []string {
	out := make([]string, 0, len(ss))
	for _, x := range ss {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}
