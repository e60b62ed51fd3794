package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTx_ExecContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tx := db.Multi().
		Put("k", "x", 0).
		Queue("frobnicate", "k").
		Incr("counter", 1)
	require.Equal(t, 3, tx.Len())

	results := tx.Exec(ctx)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, "OK", results[0].Value)
	assert.ErrorIs(t, results[1].Err, ErrInvalidOperation)
	assert.Nil(t, results[1].Value)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, int64(1), results[2].Value)

	v, ok, err := db.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	assert.Zero(t, tx.Len(), "exec clears the queue")
}

func TestTx_BackendAndArgumentErrorsCaptured(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.Put(ctx, "word", "abc", 0))

	results := db.Multi().
		Incr("word", 1).
		Queue("incr", "c", "lots").
		Queue("hset", "h", "only-field").
		Queue("get", struct{}{}).
		Queue("zadd", "z", 1.0).
		HSet("h", "f", "v").
		Exec(ctx)
	require.Len(t, results, 6)

	assert.Error(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrInvalidArgument)
	assert.ErrorIs(t, results[2].Err, ErrInvalidArgument)
	assert.ErrorIs(t, results[3].Err, ErrInvalidArgument)
	assert.ErrorIs(t, results[4].Err, ErrInvalidArgument)
	assert.NoError(t, results[5].Err)
	assert.Equal(t, 1, results[5].Value)
}

func TestTx_EveryBuilder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	results := db.Multi().
		Put("s", "1", time.Minute).
		Get("s").
		Get("missing").
		Incr("n", 5).
		Decr("n", 2).
		Expire("s", time.Hour).
		HSet("h", "a", "1").
		HIncrBy("h", "a", 2).
		HDel("h", "a").
		RPush("l", "a", "b").
		LPush("l", "z").
		LPop("l").
		RPop("l").
		SAdd("set", "x", "y").
		SRem("set", "x").
		ZAdd("zs", ScoredMember{Member: "m", Score: 2}).
		ZIncrBy("zs", 3, "m").
		ZRem("zs", "m").
		Del("s").
		Exec(ctx)

	want := []any{
		"OK", "1", nil, int64(5), int64(3), true,
		1, 3.0, 1,
		2, 3, "z", "b",
		2, true,
		1, 5.0, 1,
		true,
	}
	require.Len(t, results, len(want))
	for i, r := range results {
		require.NoError(t, r.Err, "command %d", i)
		assert.Equal(t, want[i], r.Value, "command %d", i)
	}
}

func TestTx_QueueLooseArguments(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	results := db.Multi().
		Queue("PUT", "k", "v", 60000).
		Queue("Incr", "c").
		Queue("incr", "c", "10").
		Queue("zadd", "z", 1, "a", "2.5", "b").
		Queue("hincrby", "h", "f").
		Queue("ttl", "k").
		Exec(ctx)
	require.Len(t, results, 6)
	for i, r := range results {
		require.NoError(t, r.Err, "command %d", i)
	}
	assert.Equal(t, int64(1), results[1].Value)
	assert.Equal(t, int64(11), results[2].Value)
	assert.Equal(t, 2, results[3].Value)
	assert.Equal(t, 1.0, results[4].Value)
	assert.InDelta(t, 60000, results[5].Value, 1000)
}

func TestTx_Discard(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tx := db.Multi().Put("k", "v", 0)
	assert.Equal(t, "OK", tx.Discard())
	assert.Zero(t, tx.Len())
	assert.Empty(t, tx.Exec(ctx))

	_, ok, err := db.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTx_FailuresLoggedWithID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	db := newTestDB(t, WithLogger(zap.New(core).Sugar()))

	tx := db.Multi()
	require.NotEmpty(t, tx.ID())
	assert.NotEqual(t, tx.ID(), db.Multi().ID())

	tx.Queue("nope").Exec(context.Background())

	entries := logs.FilterMessage("Queued command failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, tx.ID(), entries[0].ContextMap()["tx"])
}
