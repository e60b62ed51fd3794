package engine

import (
	"context"
	"fmt"
	"time"
)

// Put stores value under key. A positive ttl is enforced by the backend and
// mirrored by the TTL tracker; otherwise any tracked deadline is dropped.
func (db *DB) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	defer db.track(ctx, "put", key)()

	if ttl < 0 {
		ttl = 0
	}
	if err := db.backend.Put(ctx, key, value, ttl); err != nil {
		return fmt.Errorf("engine: put: %w", err)
	}
	if ttl > 0 {
		db.tracker.Track(key, ttl)
	} else {
		db.tracker.Forget(key)
	}
	return nil
}

// Get returns the value stored under key. A miss also drops any deadline
// still tracked for the key.
func (db *DB) Get(ctx context.Context, key string) (string, bool, error) {
	defer db.track(ctx, "get", key)()

	value, ok, err := db.backend.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("engine: get: %w", err)
	}
	if !ok {
		db.misses.Add(1)
		db.metrics.RecordMiss(ctx)
		db.tracker.Forget(key)
		return "", false, nil
	}
	db.hits.Add(1)
	db.metrics.RecordHit(ctx)
	return value, true, nil
}

// Del removes key and reports whether it existed.
func (db *DB) Del(ctx context.Context, key string) (bool, error) {
	defer db.track(ctx, "del", key)()

	ok, err := db.backend.Del(ctx, key)
	if err != nil {
		return false, fmt.Errorf("engine: del: %w", err)
	}
	db.tracker.Forget(key)
	return ok, nil
}

// Has reports whether the plain key exists.
func (db *DB) Has(ctx context.Context, key string) (bool, error) {
	defer db.track(ctx, "has", key)()

	ok, err := db.backend.Has(ctx, key)
	if err != nil {
		return false, fmt.Errorf("engine: has: %w", err)
	}
	return ok, nil
}

// Size returns the number of records in the backend, composite records
// included.
func (db *DB) Size(ctx context.Context) (int, error) {
	defer db.track(ctx, "size")()

	n, err := db.backend.Size(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine: size: %w", err)
	}
	return n, nil
}

// Clear removes every record and every tracked deadline.
func (db *DB) Clear(ctx context.Context) error {
	defer db.track(ctx, "clear")()

	if err := db.backend.Clear(ctx); err != nil {
		return fmt.Errorf("engine: clear: %w", err)
	}
	db.tracker.Reset()
	return nil
}

// Incr adds delta to the integer stored under key (missing counts as 0).
func (db *DB) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	defer db.track(ctx, "incr", key)()

	n, err := db.backend.Incr(ctx, key, delta)
	if err != nil {
		return 0, fmt.Errorf("engine: incr: %w", err)
	}
	return n, nil
}

// Decr subtracts delta from the integer stored under key.
func (db *DB) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	defer db.track(ctx, "decr", key)()

	n, err := db.backend.Decr(ctx, key, delta)
	if err != nil {
		return 0, fmt.Errorf("engine: decr: %w", err)
	}
	return n, nil
}
