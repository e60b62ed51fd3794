package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemory_IncrKeepsExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m, err := NewMemory(withClock(clock.Now))
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Put(ctx, "c", "1", time.Second))
	_, err = m.Incr(ctx, "c", 1)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	_, ok, err := m.Get(ctx, "c")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_RemoveExpired(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m, err := NewMemory(withClock(clock.Now))
	require.NoError(t, err)
	defer m.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, m.Put(ctx, string(rune('a'+i)), "v", time.Second))
	}
	clock.Advance(time.Minute)
	m.removeExpired()

	assert.Empty(t, m.data)
}

func TestRatio(t *testing.T) {
	assert.Equal(t, float64(1), Ratio(0, 0))
	assert.Equal(t, float64(2), Ratio(200, 100))
}
