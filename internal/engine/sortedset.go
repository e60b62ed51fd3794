package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/flashdb/titankv/internal/structure"
)

// ZAdd adds or updates members and returns how many were new. A member given
// twice in one call is new once and keeps the last score.
func (db *DB) ZAdd(ctx context.Context, key string, members ...ScoredMember) (int, error) {
	defer db.track(ctx, "zadd", key)()

	var (
		added  int
		addErr error
	)
	err := db.zsets.Mutate(ctx, db.backend, key, func(z *structure.SortedSet) bool {
		added, addErr = z.Add(members...)
		return addErr == nil && len(members) > 0
	})
	if err == nil {
		err = addErr
	}
	if err != nil {
		return 0, fmt.Errorf("engine: zadd: %w", err)
	}
	return added, nil
}

// ZRem removes members and returns how many were present.
func (db *DB) ZRem(ctx context.Context, key string, members ...string) (int, error) {
	defer db.track(ctx, "zrem", key)()

	var removed int
	err := db.zsets.Mutate(ctx, db.backend, key, func(z *structure.SortedSet) bool {
		removed = z.Remove(members...)
		return removed > 0
	})
	if err != nil {
		return 0, fmt.Errorf("engine: zrem: %w", err)
	}
	return removed, nil
}

// ZScore returns the score of member in the sorted set at key.
func (db *DB) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	defer db.track(ctx, "zscore", key)()

	z, err := db.zsets.Load(ctx, db.backend, key)
	if err != nil {
		return 0, false, fmt.Errorf("engine: zscore: %w", err)
	}
	score, ok := z.Score(member)
	return score, ok, nil
}

// ZRank returns the zero-based ascending position of member.
func (db *DB) ZRank(ctx context.Context, key, member string) (int, bool, error) {
	defer db.track(ctx, "zrank", key)()

	z, err := db.zsets.Load(ctx, db.backend, key)
	if err != nil {
		return 0, false, fmt.Errorf("engine: zrank: %w", err)
	}
	rank, ok := z.Rank(member)
	if !ok {
		return 0, false, nil
	}
	return rank, true, nil
}

// ZCard returns the number of members in the sorted set at key.
func (db *DB) ZCard(ctx context.Context, key string) (int, error) {
	defer db.track(ctx, "zcard", key)()

	z, err := db.zsets.Load(ctx, db.backend, key)
	if err != nil {
		return 0, fmt.Errorf("engine: zcard: %w", err)
	}
	return z.Card(), nil
}

// ZRange returns the members ranked start..stop inclusive in ascending score
// order. Negative indexes count from the highest score.
func (db *DB) ZRange(ctx context.Context, key string, start, stop int) ([]ScoredMember, error) {
	defer db.track(ctx, "zrange", key)()

	z, err := db.zsets.Load(ctx, db.backend, key)
	if err != nil {
		return nil, fmt.Errorf("engine: zrange: %w", err)
	}
	return z.Range(start, stop), nil
}

// ZRangeMembers is ZRange without scores.
func (db *DB) ZRangeMembers(ctx context.Context, key string, start, stop int) ([]string, error) {
	res, err := db.ZRange(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	return memberNames(res), nil
}

// ZRevRange indexes the members in descending score order.
func (db *DB) ZRevRange(ctx context.Context, key string, start, stop int) ([]ScoredMember, error) {
	defer db.track(ctx, "zrevrange", key)()

	z, err := db.zsets.Load(ctx, db.backend, key)
	if err != nil {
		return nil, fmt.Errorf("engine: zrevrange: %w", err)
	}
	return z.RevRange(start, stop), nil
}

// ZRevRangeMembers is ZRevRange without scores.
func (db *DB) ZRevRangeMembers(ctx context.Context, key string, start, stop int) ([]string, error) {
	res, err := db.ZRevRange(ctx, key, start, stop)
	if err != nil {
		return nil, err
	}
	return memberNames(res), nil
}

type rangeOptions struct {
	offset int
	count  int
}

// RangeOption adjusts ZRangeByScore.
type RangeOption func(*rangeOptions)

// WithLimit skips offset matches and returns at most count of the rest;
// count <= 0 returns all of them.
func WithLimit(offset, count int) RangeOption {
	return func(o *rangeOptions) {
		o.offset = offset
		o.count = count
	}
}

// ZRangeByScore returns members with min <= score <= max in ascending order.
// Use math.Inf or ParseScoreBound for open bounds.
func (db *DB) ZRangeByScore(ctx context.Context, key string, min, max float64, opts ...RangeOption) ([]ScoredMember, error) {
	defer db.track(ctx, "zrangebyscore", key)()

	if math.IsNaN(min) || math.IsNaN(max) {
		return nil, fmt.Errorf("engine: zrangebyscore: %w", ErrNotANumber)
	}
	var o rangeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.offset < 0 {
		return nil, fmt.Errorf("engine: zrangebyscore: %w: negative offset", ErrInvalidArgument)
	}

	z, err := db.zsets.Load(ctx, db.backend, key)
	if err != nil {
		return nil, fmt.Errorf("engine: zrangebyscore: %w", err)
	}
	return z.RangeByScore(min, max, o.offset, o.count), nil
}

// ZRangeByScoreMembers is ZRangeByScore without scores.
func (db *DB) ZRangeByScoreMembers(ctx context.Context, key string, min, max float64, opts ...RangeOption) ([]string, error) {
	res, err := db.ZRangeByScore(ctx, key, min, max, opts...)
	if err != nil {
		return nil, err
	}
	return memberNames(res), nil
}

// ZIncrBy adds delta to the score of member, creating it with score delta.
// Returns the new score.
func (db *DB) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	defer db.track(ctx, "zincrby", key)()

	var (
		score  float64
		incErr error
	)
	err := db.zsets.Mutate(ctx, db.backend, key, func(z *structure.SortedSet) bool {
		score, incErr = z.IncrBy(member, delta)
		return incErr == nil
	})
	if err == nil {
		err = incErr
	}
	if err != nil {
		return 0, fmt.Errorf("engine: zincrby: %w", err)
	}
	return score, nil
}

// ZCount returns the number of members with min <= score <= max.
func (db *DB) ZCount(ctx context.Context, key string, min, max float64) (int, error) {
	defer db.track(ctx, "zcount", key)()

	z, err := db.zsets.Load(ctx, db.backend, key)
	if err != nil {
		return 0, fmt.Errorf("engine: zcount: %w", err)
	}
	return z.Count(min, max), nil
}

// ParseScoreBound parses a score bound: a number, or "-inf", "+inf", "inf".
func ParseScoreBound(s string) (float64, error) {
	f, err := structure.ParseScore(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return f, nil
}

func memberNames(ms []ScoredMember) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Member
	}
	return out
}
