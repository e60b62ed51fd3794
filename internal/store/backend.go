// Package store defines the opaque key-value contract every composite
// structure is built on, a registry of backend factories, and the in-memory
// backend. LevelDB and Redis backends live in subpackages and register
// themselves on import.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotInteger is returned by Incr/Decr when the stored value is not a
	// base-10 64-bit integer.
	ErrNotInteger = errors.New("store: value is not an integer")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store: backend closed")
	// ErrBackendUnavailable wraps connection failures of remote backends.
	ErrBackendUnavailable = errors.New("store: backend unavailable")
)

// Default limits applied when a caller passes limit <= 0.
const (
	DefaultKeysLimit  = 100000
	DefaultScanLimit  = 1000
	DefaultRangeLimit = 1000
)

// KV is a key with its value.
type KV struct {
	Key   string
	Value string
}

// Lookup is one result of GetBatch.
type Lookup struct {
	Key   string
	Value string
	Found bool
}

// BackendStats describes the storage footprint of a backend.
type BackendStats struct {
	KeyCount         int
	RawBytes         int64
	CompressedBytes  int64
	CompressionRatio float64
}

// Backend is an opaque key-value store with optional per-key TTL. Keys
// returned from Keys, Scan and Range are in ascending byte order.
type Backend interface {
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) (bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Size(ctx context.Context) (int, error)
	Clear(ctx context.Context) error

	Incr(ctx context.Context, key string, delta int64) (int64, error)
	Decr(ctx context.Context, key string, delta int64) (int64, error)

	Keys(ctx context.Context, limit int) ([]string, error)
	Scan(ctx context.Context, prefix string, limit int) ([]KV, error)
	// Range returns keys in [start, end]. An empty end is unbounded.
	Range(ctx context.Context, start, end string, limit int) ([]KV, error)
	CountPrefix(ctx context.Context, prefix string) (int, error)

	PutBatch(ctx context.Context, kvs []KV) error
	GetBatch(ctx context.Context, keys []string) ([]Lookup, error)

	Flush(ctx context.Context) error
	Compact(ctx context.Context) error
	Stats(ctx context.Context) (BackendStats, error)
	Close() error
}

// Kind names a backend implementation.
type Kind string

const (
	KindMemory  Kind = "memory"
	KindLevelDB Kind = "leveldb"
	KindRedis   Kind = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Kind Kind
	// DataDir holds the WAL of the memory backend (empty disables it) or the
	// LevelDB database directory.
	DataDir    string
	SyncWrites bool
	// RedisURL, e.g. redis://localhost:6379/0, or a bare host:port.
	RedisURL string
	// JanitorInterval controls background expiry in the memory backend.
	// Zero disables the janitor; expired keys are still invisible.
	JanitorInterval time.Duration
}

// Factory creates a Backend from a Config.
type Factory func(cfg Config) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[Kind]Factory)
)

// Register makes a backend available to Open.
func Register(kind Kind, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[kind] = f
}

// Open creates the backend named by cfg.Kind. An empty kind means memory.
func Open(cfg Config) (Backend, error) {
	if cfg.Kind == "" {
		cfg.Kind = KindMemory
	}
	factoriesMu.RLock()
	f, ok := factories[cfg.Kind]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: backend %q not registered", cfg.Kind)
	}
	return f(cfg)
}

// Ratio returns raw/compressed, or 1 when nothing is stored.
func Ratio(raw, compressed int64) float64 {
	if raw == 0 || compressed == 0 {
		return 1
	}
	return float64(raw) / float64(compressed)
}

// InRange reports whether key falls in [start, end] (empty end = unbounded).
func InRange(key, start, end string) bool {
	if key < start {
		return false
	}
	return end == "" || key <= end
}

// Limit returns limit, or def when limit <= 0.
func Limit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
