// Package redis is a store.Backend backed by a Redis server through
// go-redis. TTLs are enforced by Redis itself.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flashdb/titankv/internal/store"
)

// scanCount is the COUNT hint passed to every SCAN round trip.
const scanCount = 500

// Store is a Redis-backed store.Backend.
type Store struct {
	client *redis.Client
}

// IsConnectionError reports whether err means the server could not be reached.
func IsConnectionError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED, syscall.ETIMEDOUT:
			return true
		}
	}

	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"EOF",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.ErrClosed):
		return store.ErrClosed
	case IsConnectionError(err):
		return fmt.Errorf("%w: redis %s: %v", store.ErrBackendUnavailable, op, err)
	default:
		return fmt.Errorf("redis: %s: %w", op, err)
	}
}

// parseOptions accepts redis:// URLs and bare host:port[/db] addresses.
func parseOptions(redisURL string) (*redis.Options, error) {
	opt, err := redis.ParseURL(redisURL)
	if err == nil {
		return opt, nil
	}

	u, parseErr := url.Parse("redis://" + redisURL)
	if parseErr != nil || u.Host == "" {
		return nil, err
	}
	opt = &redis.Options{Addr: u.Host}
	if u.Path != "" && u.Path != "/" {
		if db, dbErr := strconv.Atoi(strings.TrimPrefix(u.Path, "/")); dbErr == nil {
			opt.DB = db
		}
	}
	if u.User != nil {
		if password, ok := u.User.Password(); ok {
			opt.Password = password
		}
	}
	return opt, nil
}

// New connects to redisURL and pings the server.
func New(redisURL string) (*Store, error) {
	opt, err := parseOptions(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, wrap("ping", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return wrap("set", s.client.Set(ctx, key, value, ttl).Err())
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("get", err)
	}
	return v, true, nil
}

func (s *Store) Del(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, wrap("del", err)
	}
	return n > 0, nil
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, wrap("exists", err)
	}
	return n > 0, nil
}

func (s *Store) Size(ctx context.Context) (int, error) {
	n, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return 0, wrap("dbsize", err)
	}
	return int(n), nil
}

// Clear flushes the selected database.
func (s *Store) Clear(ctx context.Context) error {
	return wrap("flushdb", s.client.FlushDB(ctx).Err())
}

func (s *Store) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	v, err := s.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		if strings.Contains(err.Error(), "not an integer") {
			return 0, store.ErrNotInteger
		}
		return 0, wrap("incrby", err)
	}
	return v, nil
}

func (s *Store) Decr(ctx context.Context, key string, delta int64) (int64, error) {
	return s.Incr(ctx, key, -delta)
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// scanKeys runs a full SCAN with the given MATCH pattern and returns the
// keys sorted.
func (s *Store) scanKeys(ctx context.Context, match string) ([]string, error) {
	seen := make(map[string]struct{})
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, scanCount).Result()
		if err != nil {
			return nil, wrap("scan", err)
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// values fetches keys with MGET, dropping the ones that vanished since SCAN.
func (s *Store) values(ctx context.Context, keys []string, limit int) ([]store.KV, error) {
	out := []store.KV{}
	for len(keys) > 0 && len(out) < limit {
		chunk := keys
		if len(chunk) > scanCount {
			chunk = chunk[:scanCount]
		}
		keys = keys[len(chunk):]

		vals, err := s.client.MGet(ctx, chunk...).Result()
		if err != nil {
			return nil, wrap("mget", err)
		}
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			out = append(out, store.KV{Key: chunk[i], Value: str})
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) Keys(ctx context.Context, limit int) ([]string, error) {
	keys, err := s.scanKeys(ctx, "*")
	if err != nil {
		return nil, err
	}
	if n := store.Limit(limit, store.DefaultKeysLimit); len(keys) > n {
		keys = keys[:n]
	}
	return keys, nil
}

func (s *Store) Scan(ctx context.Context, prefix string, limit int) ([]store.KV, error) {
	keys, err := s.scanKeys(ctx, escapeGlob(prefix)+"*")
	if err != nil {
		return nil, err
	}
	return s.values(ctx, keys, store.Limit(limit, store.DefaultScanLimit))
}

func (s *Store) Range(ctx context.Context, start, end string, limit int) ([]store.KV, error) {
	keys, err := s.scanKeys(ctx, "*")
	if err != nil {
		return nil, err
	}
	lo := sort.SearchStrings(keys, start)
	hi := len(keys)
	if end != "" {
		hi = sort.Search(len(keys), func(i int) bool { return keys[i] > end })
	}
	if lo >= hi {
		return []store.KV{}, nil
	}
	return s.values(ctx, keys[lo:hi], store.Limit(limit, store.DefaultRangeLimit))
}

func (s *Store) CountPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.scanKeys(ctx, escapeGlob(prefix)+"*")
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// PutBatch writes kvs in one MULTI/EXEC pipeline.
func (s *Store) PutBatch(ctx context.Context, kvs []store.KV) error {
	if len(kvs) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, kv := range kvs {
			pipe.Set(ctx, kv.Key, kv.Value, 0)
		}
		return nil
	})
	return wrap("put batch", err)
}

func (s *Store) GetBatch(ctx context.Context, keys []string) ([]store.Lookup, error) {
	out := make([]store.Lookup, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrap("mget", err)
	}
	for i, k := range keys {
		out[i].Key = k
		if str, ok := vals[i].(string); ok {
			out[i].Value = str
			out[i].Found = true
		}
	}
	return out, nil
}

// Flush only checks the server is reachable; Redis owns its persistence.
func (s *Store) Flush(ctx context.Context) error {
	return wrap("ping", s.client.Ping(ctx).Err())
}

// Compact is a no-op beyond a reachability check.
func (s *Store) Compact(ctx context.Context) error {
	return wrap("ping", s.client.Ping(ctx).Err())
}

// Stats reports DBSIZE and the dataset memory from INFO memory.
func (s *Store) Stats(ctx context.Context) (store.BackendStats, error) {
	var st store.BackendStats
	n, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return st, wrap("dbsize", err)
	}
	st.KeyCount = int(n)

	info, err := s.client.Info(ctx, "memory").Result()
	if err != nil {
		return st, wrap("info", err)
	}
	st.RawBytes = parseInfoInt(info, "used_memory_dataset")
	st.CompressedBytes = st.RawBytes
	st.CompressionRatio = store.Ratio(st.RawBytes, st.CompressedBytes)
	return st, nil
}

func parseInfoInt(info, field string) int64 {
	for _, line := range strings.Split(info, "\n") {
		name, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || name != field {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func (s *Store) Close() error {
	return s.client.Close()
}
