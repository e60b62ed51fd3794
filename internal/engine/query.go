package engine

import (
	"context"
	"fmt"

	"github.com/flashdb/titankv/internal/codec"
	"github.com/flashdb/titankv/internal/glob"
	"github.com/flashdb/titankv/internal/store"
)

// Keys returns up to limit raw backend keys in ascending order, composite
// records included. limit <= 0 uses the configured keys limit.
func (db *DB) Keys(ctx context.Context, limit int) ([]string, error) {
	defer db.track(ctx, "keys")()

	keys, err := db.backend.Keys(ctx, store.Limit(limit, db.keysLimit))
	if err != nil {
		return nil, fmt.Errorf("engine: keys: %w", err)
	}
	return keys, nil
}

// KeysMatch returns the plain keys matching the glob pattern, in ascending
// order. Composite records are never reported. limit caps how many backend
// keys are inspected, not how many are returned; limit <= 0 uses the
// configured keys limit.
func (db *DB) KeysMatch(ctx context.Context, pattern string, limit int) ([]string, error) {
	defer db.track(ctx, "keysmatch")()

	keys, err := db.backend.Keys(ctx, store.Limit(limit, db.keysLimit))
	if err != nil {
		return nil, fmt.Errorf("engine: keys match: %w", err)
	}

	plain := keys[:0]
	for _, key := range keys {
		if !codec.IsReserved(key) {
			plain = append(plain, key)
		}
	}
	return glob.Filter(pattern, plain), nil
}

// Scan returns up to limit records whose key starts with prefix.
func (db *DB) Scan(ctx context.Context, prefix string, limit int) ([]KV, error) {
	defer db.track(ctx, "scan")()

	kvs, err := db.backend.Scan(ctx, prefix, store.Limit(limit, db.scanLimit))
	if err != nil {
		return nil, fmt.Errorf("engine: scan: %w", err)
	}
	return kvs, nil
}

// Range returns up to limit records with start <= key <= end. An empty end
// leaves the range open.
func (db *DB) Range(ctx context.Context, start, end string, limit int) ([]KV, error) {
	defer db.track(ctx, "range")()

	kvs, err := db.backend.Range(ctx, start, end, store.Limit(limit, db.scanLimit))
	if err != nil {
		return nil, fmt.Errorf("engine: range: %w", err)
	}
	return kvs, nil
}

// CountPrefix returns how many keys start with prefix.
func (db *DB) CountPrefix(ctx context.Context, prefix string) (int, error) {
	defer db.track(ctx, "countprefix")()

	n, err := db.backend.CountPrefix(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("engine: count prefix: %w", err)
	}
	return n, nil
}

// PutBatch writes every pair without expiry.
func (db *DB) PutBatch(ctx context.Context, kvs []KV) error {
	keys := make([]string, len(kvs))
	for i, kv := range kvs {
		keys[i] = kv.Key
	}
	defer db.track(ctx, "putbatch", keys...)()

	if len(kvs) == 0 {
		return nil
	}
	if err := db.backend.PutBatch(ctx, kvs); err != nil {
		return fmt.Errorf("engine: put batch: %w", err)
	}
	for _, key := range keys {
		db.tracker.Forget(key)
	}
	return nil
}

// GetBatch looks up every key. The result is aligned with keys.
func (db *DB) GetBatch(ctx context.Context, keys []string) ([]store.Lookup, error) {
	defer db.track(ctx, "getbatch", keys...)()

	if len(keys) == 0 {
		return []store.Lookup{}, nil
	}
	res, err := db.backend.GetBatch(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("engine: get batch: %w", err)
	}
	return res, nil
}

// Flush asks the backend to make prior writes durable.
func (db *DB) Flush(ctx context.Context) error {
	defer db.track(ctx, "flush")()

	if err := db.backend.Flush(ctx); err != nil {
		return fmt.Errorf("engine: flush: %w", err)
	}
	return nil
}

// Compact asks the backend to reclaim space.
func (db *DB) Compact(ctx context.Context) error {
	defer db.track(ctx, "compact")()

	if err := db.backend.Compact(ctx); err != nil {
		return fmt.Errorf("engine: compact: %w", err)
	}
	return nil
}

// Type reports what key holds: "string" for a plain record, otherwise the
// first composite kind found in the order list, set, hash, zset. "none" when
// nothing is stored.
func (db *DB) Type(ctx context.Context, key string) (string, error) {
	defer db.track(ctx, "type", key)()

	ok, err := db.backend.Has(ctx, key)
	if err != nil {
		return "", fmt.Errorf("engine: type: %w", err)
	}
	if ok {
		return "string", nil
	}
	for _, kind := range codec.Kinds {
		ok, err := db.backend.Has(ctx, kind.Key(key))
		if err != nil {
			return "", fmt.Errorf("engine: type: %w", err)
		}
		if ok {
			return kind.String(), nil
		}
	}
	return "none", nil
}

// DelStructure deletes the composite record of the given kind under key.
func (db *DB) DelStructure(ctx context.Context, kind codec.Kind, key string) (bool, error) {
	defer db.track(ctx, "delstructure", key)()

	if kind.Tag() == "" {
		return false, fmt.Errorf("%w: unknown kind %s", ErrInvalidArgument, kind)
	}
	ok, err := db.backend.Del(ctx, kind.Key(key))
	if err != nil {
		return false, fmt.Errorf("engine: del structure: %w", err)
	}
	return ok, nil
}
