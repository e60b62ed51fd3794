package engine

import (
	"context"
	"fmt"

	"github.com/flashdb/titankv/internal/structure"
)

// LPush prepends values keeping their order, so the list starts with
// values[0]. Returns the new length.
func (db *DB) LPush(ctx context.Context, key string, values ...string) (int, error) {
	defer db.track(ctx, "lpush", key)()

	var n int
	err := db.lists.Mutate(ctx, db.backend, key, func(l *structure.List) bool {
		n = l.LPush(values...)
		return len(values) > 0
	})
	if err != nil {
		return 0, fmt.Errorf("engine: lpush: %w", err)
	}
	return n, nil
}

// RPush appends values in order. Returns the new length.
func (db *DB) RPush(ctx context.Context, key string, values ...string) (int, error) {
	defer db.track(ctx, "rpush", key)()

	var n int
	err := db.lists.Mutate(ctx, db.backend, key, func(l *structure.List) bool {
		n = l.RPush(values...)
		return len(values) > 0
	})
	if err != nil {
		return 0, fmt.Errorf("engine: rpush: %w", err)
	}
	return n, nil
}

// LPop removes and returns the head. An empty list is left untouched.
func (db *DB) LPop(ctx context.Context, key string) (string, bool, error) {
	defer db.track(ctx, "lpop", key)()

	var (
		v  string
		ok bool
	)
	err := db.lists.Mutate(ctx, db.backend, key, func(l *structure.List) bool {
		v, ok = l.LPop()
		return ok
	})
	if err != nil {
		return "", false, fmt.Errorf("engine: lpop: %w", err)
	}
	return v, ok, nil
}

// RPop removes and returns the tail. An empty list is left untouched.
func (db *DB) RPop(ctx context.Context, key string) (string, bool, error) {
	defer db.track(ctx, "rpop", key)()

	var (
		v  string
		ok bool
	)
	err := db.lists.Mutate(ctx, db.backend, key, func(l *structure.List) bool {
		v, ok = l.RPop()
		return ok
	})
	if err != nil {
		return "", false, fmt.Errorf("engine: rpop: %w", err)
	}
	return v, ok, nil
}

// LLen returns the length of the list at key, 0 when it does not exist.
func (db *DB) LLen(ctx context.Context, key string) (int, error) {
	defer db.track(ctx, "llen", key)()

	l, err := db.lists.Load(ctx, db.backend, key)
	if err != nil {
		return 0, fmt.Errorf("engine: llen: %w", err)
	}
	return l.Len(), nil
}

// LRange returns the elements from start to stop inclusive. Negative
// indexes count from the tail.
func (db *DB) LRange(ctx context.Context, key string, start, stop int) ([]string, error) {
	defer db.track(ctx, "lrange", key)()

	l, err := db.lists.Load(ctx, db.backend, key)
	if err != nil {
		return nil, fmt.Errorf("engine: lrange: %w", err)
	}
	return l.Range(start, stop), nil
}

// LIndex returns the element at index. Negative indexes count from the tail.
func (db *DB) LIndex(ctx context.Context, key string, index int) (string, bool, error) {
	defer db.track(ctx, "lindex", key)()

	l, err := db.lists.Load(ctx, db.backend, key)
	if err != nil {
		return "", false, fmt.Errorf("engine: lindex: %w", err)
	}
	v, ok := l.Index(index)
	return v, ok, nil
}

// LSet overwrites the element at index. It reports false, writing nothing,
// when index is out of range.
func (db *DB) LSet(ctx context.Context, key string, index int, value string) (bool, error) {
	defer db.track(ctx, "lset", key)()

	var ok bool
	err := db.lists.Mutate(ctx, db.backend, key, func(l *structure.List) bool {
		ok = l.Set(index, value)
		return ok
	})
	if err != nil {
		return false, fmt.Errorf("engine: lset: %w", err)
	}
	return ok, nil
}
