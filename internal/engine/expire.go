package engine

import (
	"context"
	"fmt"
	"time"
)

// Expire gives an existing key a time to live. The value is written back
// with ttl so the backend enforces the deadline; the tracker only mirrors it
// for TTL. Returns false when key does not exist.
func (db *DB) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	defer db.track(ctx, "expire", key)()

	if ttl <= 0 {
		return false, fmt.Errorf("engine: expire: %w: ttl must be positive", ErrInvalidArgument)
	}

	value, ok, err := db.backend.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("engine: expire: %w", err)
	}
	if !ok {
		db.tracker.Forget(key)
		return false, nil
	}
	if err := db.backend.Put(ctx, key, value, ttl); err != nil {
		return false, fmt.Errorf("engine: expire: %w", err)
	}
	db.tracker.Track(key, ttl)
	return true, nil
}

// TTL returns the remaining time to live of key in milliseconds, -1 when the
// key exists without a tracked deadline and -2 when it does not exist.
// Deadlines set by another process or before a restart are not known here.
func (db *DB) TTL(ctx context.Context, key string) (int64, error) {
	defer db.track(ctx, "ttl", key)()

	remaining, err := db.tracker.Remaining(key, func() (bool, error) {
		return db.backend.Has(ctx, key)
	})
	if err != nil {
		return 0, fmt.Errorf("engine: ttl: %w", err)
	}
	return remaining, nil
}

// Persist removes the time to live of key by rewriting it without one.
// Returns false when key does not exist.
func (db *DB) Persist(ctx context.Context, key string) (bool, error) {
	defer db.track(ctx, "persist", key)()

	value, ok, err := db.backend.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("engine: persist: %w", err)
	}
	db.tracker.Forget(key)
	if !ok {
		return false, nil
	}
	if err := db.backend.Put(ctx, key, value, 0); err != nil {
		return false, fmt.Errorf("engine: persist: %w", err)
	}
	return true, nil
}
