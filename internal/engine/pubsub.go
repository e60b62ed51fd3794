package engine

import (
	"context"

	"github.com/flashdb/titankv/internal/pubsub"
)

// Subscribe registers l on channel. A channel containing '*' or '?' is also
// a pattern matched against every published channel. Returns the number of
// listeners on channel.
func (db *DB) Subscribe(channel string, l pubsub.Listener) int {
	n := db.broker.Subscribe(channel, l)
	db.log.Debugw("Subscribed", "channel", channel, "listeners", n)
	return n
}

// Unsubscribe removes l from channel, or every listener when l is nil.
// Returns the number of listeners left on channel.
func (db *DB) Unsubscribe(channel string, l pubsub.Listener) int {
	return db.broker.Unsubscribe(channel, l)
}

// Publish delivers message synchronously and returns how many listeners got
// it. Storage is not involved.
func (db *DB) Publish(ctx context.Context, channel, message string) int {
	defer db.track(ctx, "publish")()

	n := db.broker.Publish(channel, message)
	db.metrics.RecordPublish(ctx, channel, n)
	return n
}

// Channels lists the channels and patterns that have listeners.
func (db *DB) Channels() []string {
	return db.broker.Channels()
}

// NumSub returns the listener count of channel.
func (db *DB) NumSub(channel string) int {
	return db.broker.NumSub(channel)
}
