package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/flashdb/titankv/internal/structure"
)

// HSet sets field and returns 1 if the field is new, 0 if it was replaced.
func (db *DB) HSet(ctx context.Context, key, field, value string) (int, error) {
	defer db.track(ctx, "hset", key)()

	var created bool
	err := db.hashes.Mutate(ctx, db.backend, key, func(h *structure.Hash) bool {
		created = h.Set(field, value)
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("engine: hset: %w", err)
	}
	if created {
		return 1, nil
	}
	return 0, nil
}

// HMSet merges fields into the hash.
func (db *DB) HMSet(ctx context.Context, key string, fields map[string]string) error {
	defer db.track(ctx, "hmset", key)()

	err := db.hashes.Mutate(ctx, db.backend, key, func(h *structure.Hash) bool {
		h.Merge(fields)
		return len(fields) > 0
	})
	if err != nil {
		return fmt.Errorf("engine: hmset: %w", err)
	}
	return nil
}

// HGet returns the value of field in the hash at key.
func (db *DB) HGet(ctx context.Context, key, field string) (string, bool, error) {
	defer db.track(ctx, "hget", key)()

	h, err := db.hashes.Load(ctx, db.backend, key)
	if err != nil {
		return "", false, fmt.Errorf("engine: hget: %w", err)
	}
	v, ok := h.Get(field)
	return v, ok, nil
}

// HGetAll returns a copy of every field of the hash at key.
func (db *DB) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	defer db.track(ctx, "hgetall", key)()

	h, err := db.hashes.Load(ctx, db.backend, key)
	if err != nil {
		return nil, fmt.Errorf("engine: hgetall: %w", err)
	}
	return h.GetAll(), nil
}

// HDel removes fields and returns how many existed.
func (db *DB) HDel(ctx context.Context, key string, fields ...string) (int, error) {
	defer db.track(ctx, "hdel", key)()

	var removed int
	err := db.hashes.Mutate(ctx, db.backend, key, func(h *structure.Hash) bool {
		removed = h.Del(fields...)
		return removed > 0
	})
	if err != nil {
		return 0, fmt.Errorf("engine: hdel: %w", err)
	}
	return removed, nil
}

// HExists reports whether field is set in the hash at key.
func (db *DB) HExists(ctx context.Context, key, field string) (bool, error) {
	defer db.track(ctx, "hexists", key)()

	h, err := db.hashes.Load(ctx, db.backend, key)
	if err != nil {
		return false, fmt.Errorf("engine: hexists: %w", err)
	}
	return h.Exists(field), nil
}

// HKeys returns the field names in ascending order.
func (db *DB) HKeys(ctx context.Context, key string) ([]string, error) {
	defer db.track(ctx, "hkeys", key)()

	h, err := db.hashes.Load(ctx, db.backend, key)
	if err != nil {
		return nil, fmt.Errorf("engine: hkeys: %w", err)
	}
	return h.Keys(), nil
}

// HVals returns the values ordered by field name.
func (db *DB) HVals(ctx context.Context, key string) ([]string, error) {
	defer db.track(ctx, "hvals", key)()

	h, err := db.hashes.Load(ctx, db.backend, key)
	if err != nil {
		return nil, fmt.Errorf("engine: hvals: %w", err)
	}
	return h.Vals(), nil
}

// HLen returns the number of fields in the hash at key.
func (db *DB) HLen(ctx context.Context, key string) (int, error) {
	defer db.track(ctx, "hlen", key)()

	h, err := db.hashes.Load(ctx, db.backend, key)
	if err != nil {
		return 0, fmt.Errorf("engine: hlen: %w", err)
	}
	return h.Len(), nil
}

// HIncrBy adds delta to the number stored in field. A missing or non-numeric
// value counts as 0.
func (db *DB) HIncrBy(ctx context.Context, key, field string, delta float64) (float64, error) {
	defer db.track(ctx, "hincrby", key)()

	if math.IsNaN(delta) {
		return 0, fmt.Errorf("engine: hincrby: %w", ErrNotANumber)
	}

	var n float64
	err := db.hashes.Mutate(ctx, db.backend, key, func(h *structure.Hash) bool {
		n = h.IncrBy(field, delta)
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("engine: hincrby: %w", err)
	}
	return n, nil
}

// HIncr is HIncrBy with a delta of 1.
func (db *DB) HIncr(ctx context.Context, key, field string) (float64, error) {
	return db.HIncrBy(ctx, key, field, 1)
}
