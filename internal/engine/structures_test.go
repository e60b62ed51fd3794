package engine

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashdb/titankv/internal/codec"
)

func TestDB_ListPushOrder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.RPush(ctx, "r", "a")
	require.NoError(t, err)
	n, err := db.RPush(ctx, "r", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	items, err := db.LRange(ctx, "r", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)

	_, err = db.LPush(ctx, "l", "a", "b", "c")
	require.NoError(t, err)
	items, err = db.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, items)

	_, err = db.LPush(ctx, "l", "x", "y")
	require.NoError(t, err)
	items, err = db.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "a", "b", "c"}, items)
}

func TestDB_ListPopIndexSet(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, ok, err := db.LPop(ctx, "empty")
	require.NoError(t, err)
	assert.False(t, ok)
	has, err := db.backend.Has(ctx, codec.List.Key("empty"))
	require.NoError(t, err)
	assert.False(t, has, "popping an empty list must not write a record")

	_, err = db.RPush(ctx, "l", "a", "b", "c", "d")
	require.NoError(t, err)

	v, ok, err := db.LPop(ctx, "l")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok, err = db.RPop(ctx, "l")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "d", v)

	v, ok, err = db.LIndex(ctx, "l", -1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "c", v)

	_, ok, err = db.LIndex(ctx, "l", 5)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = db.LSet(ctx, "l", 0, "B")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = db.LSet(ctx, "l", 9, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	items, err := db.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "c"}, items)

	n, err := db.LLen(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDB_ListRangeBounds(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, err := db.RPush(ctx, "l", "0", "1", "2", "3", "4")
	require.NoError(t, err)

	tests := []struct {
		name        string
		start, stop int
		want        []string
	}{
		{name: "all", start: 0, stop: -1, want: []string{"0", "1", "2", "3", "4"}},
		{name: "inclusive stop", start: 1, stop: 3, want: []string{"1", "2", "3"}},
		{name: "negative both", start: -2, stop: -1, want: []string{"3", "4"}},
		{name: "stop past end", start: 3, stop: 100, want: []string{"3", "4"}},
		{name: "start past end", start: 7, stop: 9, want: []string{}},
		{name: "inverted", start: 3, stop: 1, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.LRange(ctx, "l", tt.start, tt.stop)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDB_Set(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	added, err := db.SAdd(ctx, "s", "a", "b", "a")
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = db.SAdd(ctx, "s", "a")
	require.NoError(t, err)
	assert.Zero(t, added)

	ok, err := db.SIsMember(ctx, "s", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := db.SRem(ctx, "s", "zzz")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = db.SRem(ctx, "s", "a", "zzz")
	require.NoError(t, err)
	assert.True(t, removed)

	members, err := db.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b"}, members)

	n, err := db.SCard(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDB_Hash(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	n, err := db.HSet(ctx, "h", "name", "ada")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = db.HSet(ctx, "h", "name", "grace")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, db.HMSet(ctx, "h", map[string]string{"lang": "cobol", "year": "1959"}))

	v, ok, err := db.HGet(ctx, "h", "name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "grace", v)

	_, ok, err = db.HGet(ctx, "h", "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := db.HKeys(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, []string{"lang", "name", "year"}, keys)

	vals, err := db.HVals(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, []string{"cobol", "grace", "1959"}, vals)

	removed, err := db.HDel(ctx, "h", "lang", "nope")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	exists, err := db.HExists(ctx, "h", "lang")
	require.NoError(t, err)
	assert.False(t, exists)

	count, err := db.HLen(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	all, err := db.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "grace", "year": "1959"}, all)
}

func TestDB_HashIncr(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	v, err := db.HIncr(ctx, "h", "visits")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = db.HIncrBy(ctx, "h", "visits", 2.5)
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)

	_, err = db.HSet(ctx, "h", "word", "abc")
	require.NoError(t, err)
	v, err = db.HIncrBy(ctx, "h", "word", 4)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)

	stored, _, err := db.HGet(ctx, "h", "visits")
	require.NoError(t, err)
	assert.Equal(t, "3.5", stored)

	_, err = db.HIncrBy(ctx, "h", "visits", math.NaN())
	assert.ErrorIs(t, err, ErrNotANumber)
}

func TestDB_SortedSetOrder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.ZAdd(ctx, "z", ScoredMember{Member: "alice", Score: 100})
	require.NoError(t, err)
	_, err = db.ZAdd(ctx, "z", ScoredMember{Member: "bob", Score: 50})
	require.NoError(t, err)

	members, err := db.ZRangeMembers(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "alice"}, members)

	rev, err := db.ZRevRangeMembers(ctx, "z", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, rev)

	withScores, err := db.ZRange(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []ScoredMember{{Member: "bob", Score: 50}, {Member: "alice", Score: 100}}, withScores)
}

func TestDB_SortedSetTieBreak(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.ZAdd(ctx, "z",
		ScoredMember{Member: "c", Score: 1},
		ScoredMember{Member: "a", Score: 1},
		ScoredMember{Member: "b", Score: 1},
	)
	require.NoError(t, err)

	members, err := db.ZRangeMembers(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, members)
}

func TestDB_SortedSetRangeByScore(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.ZAdd(ctx, "z",
		ScoredMember{Member: "a", Score: 10},
		ScoredMember{Member: "b", Score: 20},
		ScoredMember{Member: "c", Score: 30},
	)
	require.NoError(t, err)

	got, err := db.ZRangeByScoreMembers(ctx, "z", 10, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	lo, err := ParseScoreBound("-inf")
	require.NoError(t, err)
	hi, err := ParseScoreBound("+inf")
	require.NoError(t, err)

	got, err = db.ZRangeByScoreMembers(ctx, "z", lo, hi, WithLimit(1, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, got)

	got, err = db.ZRangeByScoreMembers(ctx, "z", lo, hi, WithLimit(1, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, got)

	n, err := db.ZCount(ctx, "z", 15, math.Inf(1))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = ParseScoreBound("high")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = db.ZRangeByScore(ctx, "z", math.NaN(), 1)
	assert.ErrorIs(t, err, ErrNotANumber)
}

func TestDB_SortedSetScoreRankIncr(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.ZAdd(ctx, "z", ScoredMember{Member: "a", Score: 1}, ScoredMember{Member: "b", Score: 2})
	require.NoError(t, err)

	score, err := db.ZIncrBy(ctx, "z", 5, "a")
	require.NoError(t, err)
	assert.Equal(t, 6.0, score)

	rank, ok, err := db.ZRank(ctx, "z", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, rank)

	score, err = db.ZIncrBy(ctx, "z", 0.5, "new")
	require.NoError(t, err)
	assert.Equal(t, 0.5, score)

	_, ok, err = db.ZScore(ctx, "z", "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = db.ZRank(ctx, "z", "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err := db.ZRem(ctx, "z", "a", "ghost")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	card, err := db.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, 2, card)

	members, err := db.ZRangeMembers(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "b"}, members)
}

func TestDB_SortedSetDuplicateMemberInOneCall(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	added, err := db.ZAdd(ctx, "z",
		ScoredMember{Member: "dup", Score: 1},
		ScoredMember{Member: "dup", Score: 7},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	score, ok, err := db.ZScore(ctx, "z", "dup")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7.0, score)
}

func TestDB_SortedSetRejectsNaN(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.ZAdd(ctx, "z", ScoredMember{Member: "a", Score: math.NaN()})
	assert.ErrorIs(t, err, ErrNotANumber)

	has, err := db.backend.Has(ctx, codec.SortedSet.Key("z"))
	require.NoError(t, err)
	assert.False(t, has)

	_, err = db.ZAdd(ctx, "z", ScoredMember{Member: "inf", Score: math.Inf(1)})
	require.NoError(t, err)
	_, err = db.ZIncrBy(ctx, "z", math.Inf(-1), "inf")
	assert.ErrorIs(t, err, ErrNotANumber)
}

func TestDB_CompositeLockingPreventsLostUpdates(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, WithCompositeLocking(8))

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := db.HIncr(ctx, "counter", "n")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	v, ok, err := db.HGet(ctx, "counter", "n")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "200", v)
}
