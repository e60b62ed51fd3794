// Package leveldb is a store.Backend on top of goleveldb.
//
// Each value is stored with an 8-byte big-endian expiry prefix (unix
// milliseconds, 0 for none). Expired records are invisible to every read and
// are deleted lazily when a point read runs into them.
package leveldb

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/flashdb/titankv/internal/store"
)

const expiryLen = 8

// flushKey is deleted by Flush to force a synced journal write; goleveldb
// skips empty batches.
var flushKey = []byte("\x00\x00flush")

// DB is a LevelDB-backed store.Backend.
type DB struct {
	db *leveldb.DB
	wo *opt.WriteOptions
	// mu serializes point writes with Incr and with the lazy expiry delete,
	// so neither can clobber a concurrent Put.
	mu  sync.Mutex
	now func() time.Time
}

// Option configures a DB.
type Option func(*DB)

// WithSync fsyncs the journal on every write.
func WithSync(sync bool) Option {
	return func(d *DB) {
		d.wo = &opt.WriteOptions{Sync: sync}
	}
}

// Open opens or creates a database in dir.
func Open(dir string, opts ...Option) (*DB, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb: open %s: %w", dir, err)
	}
	return newDB(db, opts), nil
}

// OpenMem opens a database over in-memory storage. Nothing is persisted.
func OpenMem(opts ...Option) (*DB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb: open memory storage: %w", err)
	}
	return newDB(db, opts), nil
}

func newDB(db *leveldb.DB, opts []Option) *DB {
	d := &DB{db: db, wo: &opt.WriteOptions{}, now: time.Now}
	for _, o := range opts {
		o(d)
	}
	return d
}

func encodeValue(value string, expireAt int64) []byte {
	buf := make([]byte, expiryLen+len(value))
	binary.BigEndian.PutUint64(buf, uint64(expireAt))
	copy(buf[expiryLen:], value)
	return buf
}

// decodeValue splits a stored record. ok is false when the record has
// expired or is too short to carry the expiry prefix.
func (d *DB) decodeValue(raw []byte) (value string, expireAt int64, ok bool) {
	if len(raw) < expiryLen {
		return "", 0, false
	}
	expireAt = int64(binary.BigEndian.Uint64(raw))
	if expireAt != 0 && d.now().UnixMilli() >= expireAt {
		return "", 0, false
	}
	return string(raw[expiryLen:]), expireAt, true
}

func wrap(op string, err error) error {
	if errors.Is(err, leveldb.ErrClosed) {
		return store.ErrClosed
	}
	return fmt.Errorf("leveldb: %s: %w", op, err)
}

func (d *DB) Put(_ context.Context, key, value string, ttl time.Duration) error {
	var expireAt int64
	if ttl > 0 {
		expireAt = d.now().Add(ttl).UnixMilli()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.db.Put([]byte(key), encodeValue(value, expireAt), d.wo); err != nil {
		return wrap("put", err)
	}
	return nil
}

// read looks key up without side effects. stale is true when a record exists
// but has expired.
func (d *DB) read(key string) (value string, expireAt int64, ok, stale bool, err error) {
	raw, err := d.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", 0, false, false, nil
	}
	if err != nil {
		return "", 0, false, false, wrap("get", err)
	}
	value, expireAt, ok = d.decodeValue(raw)
	return value, expireAt, ok, !ok, nil
}

func (d *DB) get(key string) (string, int64, bool, error) {
	value, expireAt, ok, stale, err := d.read(key)
	if err != nil {
		return "", 0, false, err
	}
	if stale {
		d.mu.Lock()
		d.dropExpired(key)
		d.mu.Unlock()
	}
	return value, expireAt, ok, nil
}

// dropExpired deletes key if it is still expired. d.mu must be held. A failed
// delete only leaves the record for later.
func (d *DB) dropExpired(key string) {
	if _, _, _, stale, err := d.read(key); err == nil && stale {
		_ = d.db.Delete([]byte(key), d.wo)
	}
}

func (d *DB) Get(_ context.Context, key string) (string, bool, error) {
	value, _, ok, err := d.get(key)
	return value, ok, err
}

func (d *DB) Del(_ context.Context, key string) (bool, error) {
	_, _, ok, err := d.get(key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := d.db.Delete([]byte(key), d.wo); err != nil {
		return false, wrap("del", err)
	}
	return true, nil
}

func (d *DB) Has(_ context.Context, key string) (bool, error) {
	_, _, ok, err := d.get(key)
	return ok, err
}

// each calls fn for every live record in r, in key order, until fn returns false.
func (d *DB) each(r *util.Range, fn func(key, value string) bool) error {
	iter := d.db.NewIterator(r, nil)
	defer iter.Release()
	return d.drain(iter, fn)
}

func (d *DB) drain(iter iterator.Iterator, fn func(key, value string) bool) error {
	for iter.Next() {
		value, _, ok := d.decodeValue(iter.Value())
		if !ok {
			continue
		}
		// Key() is only valid until the next call; string() copies it.
		if !fn(string(iter.Key()), value) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return wrap("iterate", err)
	}
	return nil
}

func (d *DB) Size(_ context.Context) (int, error) {
	n := 0
	err := d.each(nil, func(string, string) bool {
		n++
		return true
	})
	return n, err
}

// Clear deletes every record in one batch.
func (d *DB) Clear(_ context.Context) error {
	batch := new(leveldb.Batch)
	iter := d.db.NewIterator(nil, nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return wrap("clear", err)
	}
	if err := d.db.Write(batch, d.wo); err != nil {
		return wrap("clear", err)
	}
	return nil
}

// Incr adds delta to the integer at key. The expiry is kept.
func (d *DB) Incr(_ context.Context, key string, delta int64) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// An expired record reads as missing and is overwritten below.
	value, expireAt, ok, _, err := d.read(key)
	if err != nil {
		return 0, err
	}
	var current int64
	if ok {
		current, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, store.ErrNotInteger
		}
	}

	next := current + delta
	if err := d.db.Put([]byte(key), encodeValue(strconv.FormatInt(next, 10), expireAt), d.wo); err != nil {
		return 0, wrap("incr", err)
	}
	return next, nil
}

func (d *DB) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	return d.Incr(ctx, key, -delta)
}

func (d *DB) Keys(_ context.Context, limit int) ([]string, error) {
	limit = store.Limit(limit, store.DefaultKeysLimit)
	var keys []string
	err := d.each(nil, func(k, _ string) bool {
		keys = append(keys, k)
		return len(keys) < limit
	})
	if keys == nil {
		keys = []string{}
	}
	return keys, err
}

func (d *DB) Scan(_ context.Context, prefix string, limit int) ([]store.KV, error) {
	limit = store.Limit(limit, store.DefaultScanLimit)
	out := []store.KV{}
	err := d.each(util.BytesPrefix([]byte(prefix)), func(k, v string) bool {
		out = append(out, store.KV{Key: k, Value: v})
		return len(out) < limit
	})
	return out, err
}

func (d *DB) Range(_ context.Context, start, end string, limit int) ([]store.KV, error) {
	limit = store.Limit(limit, store.DefaultRangeLimit)
	out := []store.KV{}
	err := d.each(&util.Range{Start: []byte(start)}, func(k, v string) bool {
		if end != "" && k > end {
			return false
		}
		out = append(out, store.KV{Key: k, Value: v})
		return len(out) < limit
	})
	return out, err
}

func (d *DB) CountPrefix(_ context.Context, prefix string) (int, error) {
	n := 0
	err := d.each(util.BytesPrefix([]byte(prefix)), func(string, string) bool {
		n++
		return true
	})
	return n, err
}

func (d *DB) PutBatch(_ context.Context, kvs []store.KV) error {
	if len(kvs) == 0 {
		return nil
	}
	batch := new(leveldb.Batch)
	for _, kv := range kvs {
		batch.Put([]byte(kv.Key), encodeValue(kv.Value, 0))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.db.Write(batch, d.wo); err != nil {
		return wrap("put batch", err)
	}
	return nil
}

func (d *DB) GetBatch(_ context.Context, keys []string) ([]store.Lookup, error) {
	out := make([]store.Lookup, len(keys))
	for i, k := range keys {
		value, _, ok, err := d.get(k)
		if err != nil {
			return nil, err
		}
		out[i] = store.Lookup{Key: k, Value: value, Found: ok}
	}
	return out, nil
}

// Flush forces a synced journal write.
func (d *DB) Flush(_ context.Context) error {
	batch := new(leveldb.Batch)
	batch.Delete(flushKey)
	if err := d.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return wrap("flush", err)
	}
	return nil
}

// Compact compacts the whole keyspace.
func (d *DB) Compact(_ context.Context) error {
	if err := d.db.CompactRange(util.Range{}); err != nil {
		return wrap("compact", err)
	}
	return nil
}

// Stats counts live keys and their raw bytes. CompressedBytes is the on-disk
// table size reported by LevelDB; while everything still sits in the
// memtable it falls back to the raw size.
func (d *DB) Stats(_ context.Context) (store.BackendStats, error) {
	var st store.BackendStats
	var first, last string
	err := d.each(nil, func(k, v string) bool {
		if st.KeyCount == 0 {
			first = k
		}
		last = k
		st.KeyCount++
		st.RawBytes += int64(len(k) + len(v))
		return true
	})
	if err != nil {
		return st, err
	}

	if st.KeyCount > 0 {
		sizes, err := d.db.SizeOf([]util.Range{{Start: []byte(first), Limit: append([]byte(last), 0)}})
		if err != nil {
			return st, wrap("stats", err)
		}
		st.CompressedBytes = sizes.Sum()
	}
	if st.CompressedBytes == 0 {
		st.CompressedBytes = st.RawBytes
	}
	st.CompressionRatio = store.Ratio(st.RawBytes, st.CompressedBytes)
	return st, nil
}

func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return wrap("close", err)
	}
	return nil
}
