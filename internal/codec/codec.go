// Package codec stores composite values (lists, sets, hashes, sorted sets) as
// single JSON records under namespaced keys of an opaque key-value backend.
//
// Every mutation is a full load -> mutate -> store cycle. A record that fails
// to decode is treated as the empty value and is overwritten on the next
// successful mutation.
package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// Kind identifies a composite type and its key namespace.
type Kind uint8

const (
	List Kind = iota + 1
	Set
	Hash
	SortedSet
)

// Kinds lists every composite kind in a stable order.
var Kinds = []Kind{List, Set, Hash, SortedSet}

// Tag returns the namespace prefix for the kind. Tags start with a NUL byte
// so they cannot collide with each other or with typical user keys.
func (k Kind) Tag() string {
	switch k {
	case List:
		return "\x00L:"
	case Set:
		return "\x00S:"
	case Hash:
		return "\x00H:"
	case SortedSet:
		return "\x00Z:"
	default:
		return ""
	}
}

// Key returns the namespaced backend key for userKey.
func (k Kind) Key(userKey string) string {
	return k.Tag() + userKey
}

func (k Kind) String() string {
	switch k {
	case List:
		return "list"
	case Set:
		return "set"
	case Hash:
		return "hash"
	case SortedSet:
		return "zset"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// IsReserved reports whether key lives in one of the composite namespaces.
func IsReserved(key string) bool {
	for _, k := range Kinds {
		tag := k.Tag()
		if len(key) >= len(tag) && key[:len(tag)] == tag {
			return true
		}
	}
	return false
}

// Storage is the subset of the backend the codec needs.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}

// Value is implemented by the pointer types of package structure.
type Value interface {
	json.Marshaler
	json.Unmarshaler
}

// CorruptFunc is called when a stored record cannot be decoded.
type CorruptFunc func(kind Kind, key string, err error)

// Codec carries the settings shared by every Structure.
type Codec struct {
	onCorrupt CorruptFunc
	locks     *keyLocks
}

// Option configures a Codec.
type Option func(*Codec)

// WithOnCorrupt installs the decode failure hook.
func WithOnCorrupt(fn CorruptFunc) Option {
	return func(c *Codec) {
		c.onCorrupt = fn
	}
}

// WithKeyLocks serializes Mutate calls on the same key within this process
// using the given number of lock stripes.
func WithKeyLocks(stripes int) Option {
	return func(c *Codec) {
		if stripes <= 0 {
			stripes = 64
		}
		c.locks = &keyLocks{stripes: make([]sync.Mutex, stripes)}
	}
}

// New creates a Codec.
func New(opts ...Option) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Locking reports whether per-key locks are enabled.
func (c *Codec) Locking() bool {
	return c.locks != nil
}

// Structure binds a Kind to the constructor of its empty value.
type Structure[T Value] struct {
	Kind  Kind
	Empty func() T
	Codec *Codec
}

// Load reads and decodes the value stored under userKey. An absent record and
// an undecodable record both yield the empty value.
func (s Structure[T]) Load(ctx context.Context, st Storage, userKey string) (T, error) {
	key := s.Kind.Key(userKey)
	raw, ok, err := st.Get(ctx, key)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("codec: load %s: %w", s.Kind, err)
	}
	return s.decode(userKey, raw, ok), nil
}

// Mutate loads the value under userKey, applies fn and, if fn reports a
// change, writes the whole value back. Nothing is written otherwise.
func (s Structure[T]) Mutate(ctx context.Context, st Storage, userKey string, fn func(v T) bool) error {
	key := s.Kind.Key(userKey)
	if c := s.Codec; c != nil && c.locks != nil {
		mu := c.locks.get(key)
		mu.Lock()
		defer mu.Unlock()
	}

	raw, ok, err := st.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("codec: load %s: %w", s.Kind, err)
	}
	v := s.decode(userKey, raw, ok)
	if !fn(v) {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("codec: encode %s: %w", s.Kind, err)
	}
	if err := st.Put(ctx, key, string(data), 0); err != nil {
		return fmt.Errorf("codec: store %s: %w", s.Kind, err)
	}
	return nil
}

func (s Structure[T]) decode(userKey, raw string, ok bool) T {
	v := s.Empty()
	if !ok {
		return v
	}
	if err := v.UnmarshalJSON([]byte(raw)); err != nil {
		if s.Codec != nil && s.Codec.onCorrupt != nil {
			s.Codec.onCorrupt(s.Kind, userKey, err)
		}
		return s.Empty()
	}
	return v
}

type keyLocks struct {
	stripes []sync.Mutex
}

func (l *keyLocks) get(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &l.stripes[h.Sum32()%uint32(len(l.stripes))]
}
