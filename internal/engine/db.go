// Package engine is the public titankv surface. It emulates lists, sets,
// hashes and sorted sets on top of an opaque store.Backend and adds TTL
// tracking, cursor scans, glob key matching, pub/sub and deferred command
// batches.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/flashdb/titankv/internal/codec"
	"github.com/flashdb/titankv/internal/config"
	"github.com/flashdb/titankv/internal/hotkeys"
	"github.com/flashdb/titankv/internal/log"
	"github.com/flashdb/titankv/internal/metrics"
	"github.com/flashdb/titankv/internal/pubsub"
	"github.com/flashdb/titankv/internal/store"
	_ "github.com/flashdb/titankv/internal/store/leveldb"
	_ "github.com/flashdb/titankv/internal/store/redis"
	"github.com/flashdb/titankv/internal/structure"
	"github.com/flashdb/titankv/internal/ttl"
	"github.com/flashdb/titankv/internal/version"
)

var (
	// ErrInvalidOperation is captured by Tx.Exec for unknown command names.
	ErrInvalidOperation = errors.New("engine: invalid operation")
	// ErrInvalidArgument reports an argument the operation cannot use.
	ErrInvalidArgument = errors.New("engine: invalid argument")
	// ErrNotANumber is returned when a sorted-set score would be NaN.
	ErrNotANumber = structure.ErrNotANumber
)

type (
	KV           = store.KV
	ScoredMember = structure.ScoredMember
)

type options struct {
	logger       *zap.SugaredLogger
	metrics      *metrics.Metrics
	now          func() time.Time
	keysLimit    int
	scanLimit    int
	scanCount    int
	iterateBatch int
	lockStripes  int
	hotTop       int
	hotWindow    time.Duration
	onSubscribe  func(channel string, count int)
	onUnsub      func(channel string, count int)
}

// Option configures a DB.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records operations on m instead of a no-op provider.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now for TTL bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithKeysLimit caps how many keys KeysMatch inspects. It is also the
// default limit of Keys.
func WithKeysLimit(n int) Option {
	return func(o *options) { o.keysLimit = n }
}

// WithScanLimit is the default limit of Scan and Range.
func WithScanLimit(n int) Option {
	return func(o *options) { o.scanLimit = n }
}

// WithScanCount is the default PagedScan page size.
func WithScanCount(n int) Option {
	return func(o *options) { o.scanCount = n }
}

// WithIterateBatch is the default Iterate batch size.
func WithIterateBatch(n int) Option {
	return func(o *options) { o.iterateBatch = n }
}

// WithCompositeLocking serializes read-modify-write cycles on the same
// composite key within this DB. stripes <= 0 picks a default.
func WithCompositeLocking(stripes int) Option {
	return func(o *options) {
		if stripes <= 0 {
			stripes = 64
		}
		o.lockStripes = stripes
	}
}

// WithHotKeys enables access-frequency tracking reported by Stats.
func WithHotKeys(top int, window time.Duration) Option {
	return func(o *options) {
		o.hotTop = top
		o.hotWindow = window
	}
}

// WithSubscriptionHooks is notified after every Subscribe and Unsubscribe
// with the channel's listener count.
func WithSubscriptionHooks(onSubscribe, onUnsubscribe func(channel string, count int)) Option {
	return func(o *options) {
		o.onSubscribe = onSubscribe
		o.onUnsub = onUnsubscribe
	}
}

// DB is safe for concurrent use. Composite mutations are load-modify-store
// cycles and race each other (last writer wins) unless composite locking is
// enabled.
type DB struct {
	backend store.Backend
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	tracker *ttl.Tracker
	broker  *pubsub.Broker
	hot     *hotkeys.Tracker

	lists  codec.Structure[*structure.List]
	sets   codec.Structure[*structure.Set]
	hashes codec.Structure[*structure.Hash]
	zsets  codec.Structure[*structure.SortedSet]

	keysLimit    int
	scanLimit    int
	scanCount    int
	iterateBatch int

	totalOps atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// New wraps backend. The DB owns backend and closes it in Close.
func New(backend store.Backend, opts ...Option) *DB {
	o := options{
		logger:       zap.NewNop().Sugar(),
		now:          time.Now,
		keysLimit:    store.DefaultKeysLimit,
		scanLimit:    store.DefaultScanLimit,
		scanCount:    10,
		iterateBatch: 100,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.Noop()
	}

	db := &DB{
		backend:      backend,
		log:          o.logger,
		metrics:      o.metrics,
		tracker:      ttl.New(ttl.WithClock(o.now)),
		keysLimit:    o.keysLimit,
		scanLimit:    o.scanLimit,
		scanCount:    o.scanCount,
		iterateBatch: o.iterateBatch,
	}

	codecOpts := []codec.Option{codec.WithOnCorrupt(db.onCorrupt)}
	if o.lockStripes > 0 {
		codecOpts = append(codecOpts, codec.WithKeyLocks(o.lockStripes))
	}
	c := codec.New(codecOpts...)
	db.lists = codec.Structure[*structure.List]{Kind: codec.List, Empty: structure.NewList, Codec: c}
	db.sets = codec.Structure[*structure.Set]{Kind: codec.Set, Empty: structure.NewSet, Codec: c}
	db.hashes = codec.Structure[*structure.Hash]{Kind: codec.Hash, Empty: structure.NewHash, Codec: c}
	db.zsets = codec.Structure[*structure.SortedSet]{Kind: codec.SortedSet, Empty: structure.NewSortedSet, Codec: c}

	db.broker = pubsub.New(
		pubsub.WithOnPanic(db.onListenerPanic),
		pubsub.WithOnSubscribe(o.onSubscribe),
		pubsub.WithOnUnsubscribe(o.onUnsub),
	)

	if o.hotTop > 0 {
		db.hot = hotkeys.New(o.hotTop, o.hotWindow)
	}

	return db
}

// Open opens the backend selected by cfg and wraps it. A nil cfg means
// config.DefaultConfig. opts are applied after the settings derived from cfg.
// Without WithLogger the logger is built from cfg.Env and cfg.LogLevel.
func Open(cfg *config.Config, opts ...Option) (*DB, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	var base []Option
	if !hasLogger(opts) {
		logger, err := log.NewSugar(cfg.Env, cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("engine: open: %w", err)
		}
		base = append(base, WithLogger(logger))
	}

	backend, err := store.Open(cfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("engine: open: %w", err)
	}

	base = append(base,
		WithKeysLimit(cfg.Limits.KeysLimit),
		WithScanLimit(cfg.Limits.ScanLimit),
		WithScanCount(cfg.Limits.ScanCount),
		WithIterateBatch(cfg.Limits.IterateBatch),
		WithHotKeys(cfg.HotKeys.Top, cfg.HotKeys.Window),
	)
	if cfg.CompositeLocking {
		base = append(base, WithCompositeLocking(0))
	}

	db := New(backend, append(base, opts...)...)
	db.log.Infow("titankv opened",
		"version", version.String(),
		"backend", cfg.Storage.Backend,
		"composite_locking", db.lists.Codec.Locking(),
	)
	return db, nil
}

func hasLogger(opts []Option) bool {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o.logger != nil
}

// Close releases the side tables and closes the backend. Calling Close twice
// returns the first result.
func (db *DB) Close() error {
	db.closeOnce.Do(func() {
		if db.hot != nil {
			db.hot.Close()
		}
		db.broker.Reset()
		db.tracker.Reset()
		db.closeErr = db.backend.Close()
		db.log.Debugw("titankv closed", "error", db.closeErr)
	})
	return db.closeErr
}

// track counts one operation and returns the function that records its
// duration.
func (db *DB) track(ctx context.Context, op string, keys ...string) func() {
	db.totalOps.Add(1)
	if db.hot != nil && len(keys) > 0 {
		db.hot.Record(keys...)
	}
	start := time.Now()
	return func() {
		db.metrics.RecordOp(ctx, op, time.Since(start))
	}
}

func (db *DB) onCorrupt(kind codec.Kind, key string, err error) {
	db.log.Warnw("Corrupt composite record treated as empty",
		"kind", kind.String(),
		"key", key,
		"error", err,
	)
}

func (db *DB) onListenerPanic(msg pubsub.Message, recovered any) {
	db.log.Errorw("Listener panicked during publish",
		"channel", msg.Channel,
		"pattern", msg.Pattern,
		"panic", recovered,
	)
}
