// Package storetest provides a conformance suite for store.Backend
// implementations.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flashdb/titankv/internal/store"
)

// Factory creates a fresh, empty Backend for one subtest. The suite closes it.
type Factory func(t *testing.T) store.Backend

// Run runs every conformance test against the backends produced by factory.
func Run(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		test func(t *testing.T, b store.Backend)
	}{
		{"PutGet", testPutGet},
		{"GetMissing", testGetMissing},
		{"Del", testDel},
		{"HasSizeClear", testHasSizeClear},
		{"TTL", testTTL},
		{"Counters", testCounters},
		{"CounterNotInteger", testCounterNotInteger},
		{"KeysSorted", testKeysSorted},
		{"Scan", testScan},
		{"ScanNamespacedKeys", testScanNamespacedKeys},
		{"Range", testRange},
		{"CountPrefix", testCountPrefix},
		{"Batch", testBatch},
		{"FlushCompact", testFlushCompact},
		{"Stats", testStats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := factory(t)
			defer b.Close()
			tt.test(t, b)
		})
	}
}

func testPutGet(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "test:string", "hello world", 0))

	v, ok, err := b.Get(ctx, "test:string")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello world", v)

	require.NoError(t, b.Put(ctx, "test:string", "", 0))
	v, ok, err = b.Get(ctx, "test:string")
	require.NoError(t, err)
	assert.True(t, ok, "empty values are still present")
	assert.Equal(t, "", v)
}

func testGetMissing(t *testing.T, b store.Backend) {
	v, ok, err := b.Get(context.Background(), "test:missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func testDel(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "k", "v", 0))

	deleted, err := b.Del(ctx, "k")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = b.Del(ctx, "k")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testHasSizeClear(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "a", "1", 0))
	require.NoError(t, b.Put(ctx, "b", "2", 0))

	has, err := b.Has(ctx, "a")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = b.Has(ctx, "z")
	require.NoError(t, err)
	assert.False(t, has)

	n, err := b.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, b.Clear(ctx))
	n, err = b.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func testTTL(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "short", "v", 50*time.Millisecond))
	require.NoError(t, b.Put(ctx, "long", "v", time.Hour))

	_, ok, err := b.Get(ctx, "short")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(150 * time.Millisecond)

	_, ok, err = b.Get(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok, "expired key must be invisible")

	has, err := b.Has(ctx, "long")
	require.NoError(t, err)
	assert.True(t, has)

	keys, err := b.Keys(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"long"}, keys)
}

func testCounters(t *testing.T, b store.Backend) {
	ctx := context.Background()

	v, err := b.Incr(ctx, "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	v, err = b.Incr(ctx, "counter", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(15), v)

	v, err = b.Decr(ctx, "counter", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(-5), v)

	raw, ok, err := b.Get(ctx, "counter")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "-5", raw)
}

func testCounterNotInteger(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "name", "alice", 0))

	_, err := b.Incr(ctx, "name", 1)
	assert.ErrorIs(t, err, store.ErrNotInteger)

	raw, _, err := b.Get(ctx, "name")
	require.NoError(t, err)
	assert.Equal(t, "alice", raw)
}

func testKeysSorted(t *testing.T, b store.Backend) {
	ctx := context.Background()
	for _, k := range []string{"c", "a", "b", "d"} {
		require.NoError(t, b.Put(ctx, k, k, 0))
	}

	keys, err := b.Keys(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys)

	keys, err = b.Keys(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func testScan(t *testing.T, b store.Backend) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Put(ctx, fmt.Sprintf("user:%d", i), fmt.Sprintf("v%d", i), 0))
	}
	require.NoError(t, b.Put(ctx, "order:1", "o", 0))

	kvs, err := b.Scan(ctx, "user:", 0)
	require.NoError(t, err)
	require.Len(t, kvs, 5)
	assert.Equal(t, store.KV{Key: "user:0", Value: "v0"}, kvs[0])
	assert.Equal(t, "user:4", kvs[4].Key)

	kvs, err = b.Scan(ctx, "user:", 3)
	require.NoError(t, err)
	require.Len(t, kvs, 3)
	assert.Equal(t, "user:2", kvs[2].Key)

	kvs, err = b.Scan(ctx, "nothing:", 0)
	require.NoError(t, err)
	assert.Empty(t, kvs)
}

func testScanNamespacedKeys(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "\x00L:queue", `["a"]`, 0))
	require.NoError(t, b.Put(ctx, "\x00S:queue", `["a"]`, 0))
	require.NoError(t, b.Put(ctx, "queue", "plain", 0))

	kvs, err := b.Scan(ctx, "\x00L:", 0)
	require.NoError(t, err)
	require.Len(t, kvs, 1)
	assert.Equal(t, "\x00L:queue", kvs[0].Key)

	n, err := b.CountPrefix(ctx, "\x00")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testRange(t *testing.T, b store.Backend) {
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, b.Put(ctx, k, k, 0))
	}

	kvs, err := b.Range(ctx, "b", "d", 0)
	require.NoError(t, err)
	assert.Equal(t, []store.KV{{Key: "b", Value: "b"}, {Key: "c", Value: "c"}, {Key: "d", Value: "d"}}, kvs)

	kvs, err = b.Range(ctx, "c", "", 0)
	require.NoError(t, err)
	assert.Len(t, kvs, 3)

	kvs, err = b.Range(ctx, "a", "e", 2)
	require.NoError(t, err)
	assert.Equal(t, []store.KV{{Key: "a", Value: "a"}, {Key: "b", Value: "b"}}, kvs)
}

func testCountPrefix(t *testing.T, b store.Backend) {
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		require.NoError(t, b.Put(ctx, fmt.Sprintf("p:%d", i), "v", 0))
	}
	require.NoError(t, b.Put(ctx, "q:1", "v", 0))

	n, err := b.CountPrefix(ctx, "p:")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func testBatch(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.PutBatch(ctx, []store.KV{
		{Key: "k1", Value: "v1"},
		{Key: "k2", Value: "v2"},
	}))

	got, err := b.GetBatch(ctx, []string{"k1", "missing", "k2"})
	require.NoError(t, err)
	assert.Equal(t, []store.Lookup{
		{Key: "k1", Value: "v1", Found: true},
		{Key: "missing"},
		{Key: "k2", Value: "v2", Found: true},
	}, got)

	require.NoError(t, b.PutBatch(ctx, nil))
}

func testFlushCompact(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "k", "v", 0))
	require.NoError(t, b.Flush(ctx))
	require.NoError(t, b.Compact(ctx))

	v, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func testStats(t *testing.T, b store.Backend) {
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "k1", "value-one", 0))
	require.NoError(t, b.Put(ctx, "k2", "value-two", 0))

	st, err := b.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.KeyCount)
	assert.Positive(t, st.RawBytes)
	assert.Positive(t, st.CompressionRatio)
}
