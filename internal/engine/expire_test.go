package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDB_ExpireLazily(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.Put(ctx, "k", "v", 0))
	ok, err := db.Expire(ctx, "k", 50*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	remaining, err := db.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Greater(t, remaining, int64(0))
	assert.LessOrEqual(t, remaining, int64(50))

	time.Sleep(60 * time.Millisecond)

	remaining, err = db.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(-2), remaining)

	_, found, err := db.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, db.tracker.Len())
}

func TestDB_TTLStates(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	ttl, err := db.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(-2), ttl)

	require.NoError(t, db.Put(ctx, "forever", "v", 0))
	ttl, err = db.TTL(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), ttl)

	require.NoError(t, db.Put(ctx, "short", "v", time.Minute))
	ttl, err = db.TTL(ctx, "short")
	require.NoError(t, err)
	assert.InDelta(t, 60000, ttl, 1000)

	require.NoError(t, db.Put(ctx, "short", "again", 0))
	ttl, err = db.TTL(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), ttl)
}

func TestDB_ExpireAndPersistMissing(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	ok, err := db.Expire(ctx, "ghost", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = db.Persist(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.Expire(ctx, "ghost", 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDB_Persist(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.Put(ctx, "k", "v", 30*time.Millisecond))

	ok, err := db.Persist(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := db.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), ttl)

	time.Sleep(50 * time.Millisecond)

	v, found, err := db.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found, "persisted key must outlive its old deadline")
	assert.Equal(t, "v", v)
}

func TestDB_DelForgetsDeadline(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.Put(ctx, "k", "v", time.Minute))
	_, err := db.Del(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, db.tracker.Len())

	ttl, err := db.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(-2), ttl)
}

func TestDB_TTLWithClock(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	db := newTestDB(t, WithClock(func() time.Time { return now }))

	require.NoError(t, db.Put(ctx, "k", "v", 0))
	_, err := db.Expire(ctx, "k", time.Hour)
	require.NoError(t, err)

	ttl, err := db.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, time.Hour.Milliseconds(), ttl)

	now = now.Add(time.Hour)
	ttl, err = db.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(-2), ttl)
}
