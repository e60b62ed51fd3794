package engine

import (
	"context"
	"fmt"

	"github.com/flashdb/titankv/internal/structure"
)

// SAdd adds members and returns how many were not present before.
func (db *DB) SAdd(ctx context.Context, key string, members ...string) (int, error) {
	defer db.track(ctx, "sadd", key)()

	var added int
	err := db.sets.Mutate(ctx, db.backend, key, func(s *structure.Set) bool {
		added = s.Add(members...)
		return added > 0
	})
	if err != nil {
		return 0, fmt.Errorf("engine: sadd: %w", err)
	}
	return added, nil
}

// SRem removes members and reports whether any was present.
func (db *DB) SRem(ctx context.Context, key string, members ...string) (bool, error) {
	defer db.track(ctx, "srem", key)()

	var removed int
	err := db.sets.Mutate(ctx, db.backend, key, func(s *structure.Set) bool {
		removed = s.Rem(members...)
		return removed > 0
	})
	if err != nil {
		return false, fmt.Errorf("engine: srem: %w", err)
	}
	return removed > 0, nil
}

// SIsMember reports whether member is in the set at key.
func (db *DB) SIsMember(ctx context.Context, key, member string) (bool, error) {
	defer db.track(ctx, "sismember", key)()

	s, err := db.sets.Load(ctx, db.backend, key)
	if err != nil {
		return false, fmt.Errorf("engine: sismember: %w", err)
	}
	return s.IsMember(member), nil
}

// SMembers returns every member. Callers must not rely on the order.
func (db *DB) SMembers(ctx context.Context, key string) ([]string, error) {
	defer db.track(ctx, "smembers", key)()

	s, err := db.sets.Load(ctx, db.backend, key)
	if err != nil {
		return nil, fmt.Errorf("engine: smembers: %w", err)
	}
	return s.Members(), nil
}

// SCard returns the number of members in the set at key.
func (db *DB) SCard(ctx context.Context, key string) (int, error) {
	defer db.track(ctx, "scard", key)()

	s, err := db.sets.Load(ctx, db.backend, key)
	if err != nil {
		return 0, fmt.Errorf("engine: scard: %w", err)
	}
	return s.Card(), nil
}
