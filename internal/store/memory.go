package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/flashdb/titankv/internal/wal"
)

// WALFile is the log file name the memory backend uses inside Config.DataDir.
const WALFile = "titankv.wal"

func init() {
	Register(KindMemory, func(cfg Config) (Backend, error) {
		opts := []MemoryOption{WithJanitor(cfg.JanitorInterval)}
		if cfg.DataDir != "" {
			opts = append(opts, WithWAL(filepath.Join(cfg.DataDir, WALFile), cfg.SyncWrites))
		}
		return NewMemory(opts...)
	})
}

type entry struct {
	value    string
	expireAt time.Time // zero means no expiry
}

func (e *entry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// Memory is an in-memory Backend with optional write-ahead logging. It is
// safe for concurrent use by multiple goroutines.
type Memory struct {
	mu     sync.RWMutex
	data   map[string]*entry
	closed bool
	now    func() time.Time

	log     *wal.Log
	walPath string
	walSync bool

	janitorInterval time.Duration
	stopGC          chan struct{}
	gcDone          chan struct{}
}

// MemoryOption configures a Memory backend.
type MemoryOption func(*Memory)

// WithWAL logs every mutation to path and replays it on open.
func WithWAL(path string, sync bool) MemoryOption {
	return func(m *Memory) {
		m.walPath = path
		m.walSync = sync
	}
}

// WithJanitor starts a goroutine that evicts expired keys every interval.
func WithJanitor(interval time.Duration) MemoryOption {
	return func(m *Memory) {
		m.janitorInterval = interval
	}
}

func withClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates a Memory backend, replaying its WAL when one is set.
func NewMemory(opts ...MemoryOption) (*Memory, error) {
	m := &Memory{
		data:   make(map[string]*entry),
		now:    time.Now,
		stopGC: make(chan struct{}),
		gcDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.walPath != "" {
		l, err := wal.Open(m.walPath, wal.WithSync(m.walSync))
		if err != nil {
			return nil, fmt.Errorf("store: open wal: %w", err)
		}
		if err := l.Replay(m.apply); err != nil {
			l.Close()
			return nil, fmt.Errorf("store: replay wal: %w", err)
		}
		m.log = l
	}

	if m.janitorInterval > 0 {
		go m.gcLoop()
	} else {
		close(m.gcDone)
	}
	return m, nil
}

// apply replays one logged mutation. Records that expired while the process
// was down are dropped.
func (m *Memory) apply(rec wal.Record) error {
	switch rec.Op {
	case wal.OpPut:
		e := &entry{value: rec.Value}
		if rec.ExpireAt > 0 {
			e.expireAt = time.UnixMilli(rec.ExpireAt)
			if e.expired(m.now()) {
				delete(m.data, rec.Key)
				return nil
			}
		}
		m.data[rec.Key] = e
	case wal.OpDel:
		delete(m.data, rec.Key)
	case wal.OpClear:
		m.data = make(map[string]*entry)
	}
	return nil
}

// gcLoop periodically removes expired keys.
func (m *Memory) gcLoop() {
	defer close(m.gcDone)
	ticker := time.NewTicker(m.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopGC:
			return
		case <-ticker.C:
			m.removeExpired()
		}
	}
}

// removeExpired samples keys and deletes the expired ones, repeating while
// more than a quarter of the sample was expired.
func (m *Memory) removeExpired() {
	const (
		sampleSize   = 20
		maxRounds    = 4
		expiredRatio = 0.25
	)

	for round := 0; round < maxRounds; round++ {
		m.mu.Lock()
		if m.closed || len(m.data) == 0 {
			m.mu.Unlock()
			return
		}

		now := m.now()
		sampled, expired := 0, 0
		for key, e := range m.data {
			if sampled >= sampleSize {
				break
			}
			sampled++
			if e.expired(now) {
				delete(m.data, key)
				expired++
			}
		}
		m.mu.Unlock()

		if sampled == 0 || float64(expired)/float64(sampled) < expiredRatio {
			return
		}
	}
}

// lookup returns the live entry for key (must hold lock).
func (m *Memory) lookup(key string) (*entry, bool) {
	e, ok := m.data[key]
	if !ok || e.expired(m.now()) {
		return nil, false
	}
	return e, true
}

func (m *Memory) logAppend(recs ...wal.Record) error {
	if m.log == nil {
		return nil
	}
	if err := m.log.Append(recs...); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}

func putRecord(key string, e *entry) wal.Record {
	rec := wal.Record{Op: wal.OpPut, Key: key, Value: e.value}
	if !e.expireAt.IsZero() {
		rec.ExpireAt = e.expireAt.UnixMilli()
	}
	return rec
}

func (m *Memory) Put(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	e := &entry{value: value}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}
	if err := m.logAppend(putRecord(key, e)); err != nil {
		return err
	}
	m.data[key] = e
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	e, ok := m.lookup(key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

// Del removes key and reports whether it was live.
func (m *Memory) Del(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}

	_, ok := m.lookup(key)
	if _, present := m.data[key]; !present {
		return false, nil
	}
	if err := m.logAppend(wal.Record{Op: wal.OpDel, Key: key}); err != nil {
		return false, err
	}
	delete(m.data, key)
	return ok, nil
}

func (m *Memory) Has(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.lookup(key)
	return ok, nil
}

// Size returns the number of live keys.
func (m *Memory) Size(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}

	now := m.now()
	count := 0
	for _, e := range m.data {
		if !e.expired(now) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if err := m.logAppend(wal.Record{Op: wal.OpClear}); err != nil {
		return err
	}
	m.data = make(map[string]*entry)
	return nil
}

// Incr adds delta to the integer at key, treating a missing key as 0. The
// key keeps its expiry.
func (m *Memory) Incr(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	var current int64
	var expireAt time.Time
	if e, ok := m.lookup(key); ok {
		v, err := strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		current = v
		expireAt = e.expireAt
	}

	next := current + delta
	e := &entry{value: strconv.FormatInt(next, 10), expireAt: expireAt}
	if err := m.logAppend(putRecord(key, e)); err != nil {
		return 0, err
	}
	m.data[key] = e
	return next, nil
}

func (m *Memory) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	return m.Incr(ctx, key, -delta)
}

// sortedLive returns the live keys accepted by keep, sorted (must hold lock).
func (m *Memory) sortedLive(keep func(string) bool) []string {
	now := m.now()
	keys := make([]string, 0, len(m.data))
	for k, e := range m.data {
		if !e.expired(now) && keep(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) Keys(_ context.Context, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	keys := m.sortedLive(func(string) bool { return true })
	if n := Limit(limit, DefaultKeysLimit); len(keys) > n {
		keys = keys[:n]
	}
	return keys, nil
}

func (m *Memory) Scan(_ context.Context, prefix string, limit int) ([]KV, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	keys := m.sortedLive(func(k string) bool { return strings.HasPrefix(k, prefix) })
	return m.collect(keys, Limit(limit, DefaultScanLimit)), nil
}

func (m *Memory) Range(_ context.Context, start, end string, limit int) ([]KV, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	keys := m.sortedLive(func(k string) bool { return InRange(k, start, end) })
	return m.collect(keys, Limit(limit, DefaultRangeLimit)), nil
}

func (m *Memory) collect(keys []string, limit int) []KV {
	if len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]KV, len(keys))
	for i, k := range keys {
		out[i] = KV{Key: k, Value: m.data[k].value}
	}
	return out
}

func (m *Memory) CountPrefix(_ context.Context, prefix string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}

	now := m.now()
	count := 0
	for k, e := range m.data {
		if !e.expired(now) && strings.HasPrefix(k, prefix) {
			count++
		}
	}
	return count, nil
}

// PutBatch writes kvs without TTL as one WAL append.
func (m *Memory) PutBatch(_ context.Context, kvs []KV) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	recs := make([]wal.Record, len(kvs))
	for i, kv := range kvs {
		recs[i] = wal.Record{Op: wal.OpPut, Key: kv.Key, Value: kv.Value}
	}
	if err := m.logAppend(recs...); err != nil {
		return err
	}
	for _, kv := range kvs {
		m.data[kv.Key] = &entry{value: kv.Value}
	}
	return nil
}

func (m *Memory) GetBatch(_ context.Context, keys []string) ([]Lookup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := make([]Lookup, len(keys))
	for i, k := range keys {
		out[i].Key = k
		if e, ok := m.lookup(k); ok {
			out[i].Value = e.value
			out[i].Found = true
		}
	}
	return out, nil
}

// Flush fsyncs the WAL. Without a WAL it only checks the backend is open.
func (m *Memory) Flush(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	if m.log == nil {
		return nil
	}
	if err := m.log.Sync(); err != nil {
		return fmt.Errorf("store: flush: %w", err)
	}
	return nil
}

// Compact drops expired entries and rewrites the WAL from the live set.
func (m *Memory) Compact(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	now := m.now()
	for k, e := range m.data {
		if e.expired(now) {
			delete(m.data, k)
		}
	}
	if m.log == nil {
		return nil
	}

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	recs := make([]wal.Record, len(keys))
	for i, k := range keys {
		recs[i] = putRecord(k, m.data[k])
	}
	if err := m.log.Rewrite(recs); err != nil {
		return fmt.Errorf("store: compact: %w", err)
	}
	return nil
}

// Stats reports key and byte counts. Nothing is compressed in memory.
func (m *Memory) Stats(_ context.Context) (BackendStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return BackendStats{}, ErrClosed
	}

	now := m.now()
	var st BackendStats
	for k, e := range m.data {
		if e.expired(now) {
			continue
		}
		st.KeyCount++
		st.RawBytes += int64(len(k) + len(e.value))
	}
	st.CompressedBytes = st.RawBytes
	st.CompressionRatio = Ratio(st.RawBytes, st.CompressedBytes)
	return st, nil
}

// Close stops the janitor and closes the WAL. Closing twice is a no-op.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.janitorInterval > 0 {
		close(m.stopGC)
	}
	<-m.gcDone

	if m.log != nil {
		return m.log.Close()
	}
	return nil
}
