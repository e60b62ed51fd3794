package structure

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_SetAndGet(t *testing.T) {
	h := NewHash()
	assert.True(t, h.Set("name", "alice"))
	val, ok := h.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "alice", val)

	// Overwrite returns false (not a new field)
	assert.False(t, h.Set("name", "bob"))
	val, _ = h.Get("name")
	assert.Equal(t, "bob", val)

	_, ok = h.Get("missing")
	assert.False(t, ok)
}

func TestHash_Merge(t *testing.T) {
	h := NewHash()
	h.Set("a", "1")
	h.Merge(map[string]string{"a": "10", "b": "2"})

	assert.Equal(t, map[string]string{"a": "10", "b": "2"}, h.GetAll())
}

func TestHash_Del(t *testing.T) {
	h := NewHash()
	h.Set("a", "1")
	h.Set("b", "2")
	h.Set("c", "3")

	n := h.Del("a", "c", "missing")
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, h.Len())
	assert.True(t, h.Exists("b"))
	assert.False(t, h.Exists("a"))
}

func TestHash_KeysVals(t *testing.T) {
	h := NewHash()
	h.Set("y", "2")
	h.Set("x", "1")

	assert.Equal(t, []string{"x", "y"}, h.Keys())
	assert.Equal(t, []string{"1", "2"}, h.Vals())
}

func TestHash_IncrBy(t *testing.T) {
	h := NewHash()

	assert.Equal(t, float64(1), h.IncrBy("hits", 1))
	assert.Equal(t, float64(6), h.IncrBy("hits", 5))
	v, _ := h.Get("hits")
	assert.Equal(t, "6", v)

	// Non-numeric values count as zero
	h.Set("name", "alice")
	assert.Equal(t, float64(3), h.IncrBy("name", 3))

	h.Set("nan", "NaN")
	assert.Equal(t, 1.5, h.IncrBy("nan", 1.5))
	v, _ = h.Get("nan")
	assert.Equal(t, "1.5", v)
}

func TestHash_JSON(t *testing.T) {
	h := NewHash()
	h.Set("a", "1")

	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"1"}`, string(data))

	decoded := NewHash()
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), decoded))
}
