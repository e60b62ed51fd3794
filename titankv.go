// Package titankv is an embeddable key-value database with lists, sets,
// hashes and sorted sets layered over a pluggable backend (in-memory with a
// write-ahead log, LevelDB or Redis), plus TTLs, cursor scans, glob key
// matching, pub/sub and queued command batches.
//
//	db, err := titankv.Open(nil)
//	if err != nil { ... }
//	defer db.Close()
//	db.Put(ctx, "greeting", "hello", 0)
//
// The implementation lives in internal packages; this package re-exports
// the parts callers need.
package titankv

import (
	"context"
	"io"

	"github.com/flashdb/titankv/internal/config"
	"github.com/flashdb/titankv/internal/engine"
	"github.com/flashdb/titankv/internal/metrics"
	"github.com/flashdb/titankv/internal/pubsub"
	"github.com/flashdb/titankv/internal/store"
	"github.com/flashdb/titankv/internal/transfer"
	"github.com/flashdb/titankv/internal/ttl"
)

type (
	DB           = engine.DB
	Option       = engine.Option
	Tx           = engine.Tx
	Result       = engine.Result
	ScanPage     = engine.ScanPage
	Iterator     = engine.Iterator
	Stats        = engine.Stats
	RangeOption  = engine.RangeOption
	KV           = engine.KV
	ScoredMember = engine.ScoredMember

	Config  = config.Config
	Backend = store.Backend
	Metrics = metrics.Metrics

	Listener = pubsub.Listener
	Message  = pubsub.Message

	TransferOptions = transfer.Options
)

var (
	ErrInvalidOperation = engine.ErrInvalidOperation
	ErrInvalidArgument  = engine.ErrInvalidArgument
	ErrNotANumber       = engine.ErrNotANumber
	ErrNotInteger       = store.ErrNotInteger
	ErrClosed           = store.ErrClosed
)

// TTL sentinels returned by DB.TTL.
const (
	TTLMissing  = ttl.Missing
	TTLNoExpiry = ttl.NoExpiry
)

// Options forwarded to the engine.
var (
	WithLogger            = engine.WithLogger
	WithMetrics           = engine.WithMetrics
	WithClock             = engine.WithClock
	WithKeysLimit         = engine.WithKeysLimit
	WithScanLimit         = engine.WithScanLimit
	WithScanCount         = engine.WithScanCount
	WithIterateBatch      = engine.WithIterateBatch
	WithCompositeLocking  = engine.WithCompositeLocking
	WithHotKeys           = engine.WithHotKeys
	WithSubscriptionHooks = engine.WithSubscriptionHooks
)

// WithLimit is the ZRangeByScore offset/count option.
var WithLimit = engine.WithLimit

// Open opens the backend selected by cfg. A nil cfg uses DefaultConfig.
func Open(cfg *Config, opts ...Option) (*DB, error) {
	return engine.Open(cfg, opts...)
}

// New wraps an already opened backend. The DB takes ownership of it.
func New(backend Backend, opts ...Option) *DB {
	return engine.New(backend, opts...)
}

// LoadConfig reads settings from defaults, the optional file at path, .env
// files and TITAN_* environment variables.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns the in-memory configuration used when nothing is set.
func DefaultConfig() *Config {
	return config.DefaultConfig()
}

// NewMemoryBackend returns a volatile in-memory backend.
func NewMemoryBackend() (Backend, error) {
	return store.NewMemory()
}

// SetupMetrics installs a Prometheus-backed meter provider and returns the
// instruments with the scrape handler.
var SetupMetrics = metrics.Setup

// ListenerFunc adapts fn to a Listener.
func ListenerFunc(fn func(Message)) Listener {
	return pubsub.Func(fn)
}

// ParseScoreBound parses a sorted-set range bound: a number, "-inf" or "+inf".
func ParseScoreBound(s string) (float64, error) {
	return engine.ParseScoreBound(s)
}

// Import loads one JSON document from r into db.
func Import(ctx context.Context, db *DB, r io.Reader, opts TransferOptions) (int, error) {
	return transfer.Import(ctx, db, r, opts)
}

// Export writes the records selected by opts to w as one JSON object.
func Export(ctx context.Context, db *DB, w io.Writer, opts TransferOptions) (map[string]any, error) {
	return transfer.Export(ctx, db, w, opts)
}

// TransferOptionsFromConfig returns transfer options with the configured
// import batch size.
func TransferOptionsFromConfig(cfg *Config) TransferOptions {
	return transfer.OptionsFromConfig(cfg)
}
