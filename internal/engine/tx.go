package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of one queued command. A failed command leaves Value
// nil and sets Err.
type Result struct {
	Value any
	Err   error
}

type queued struct {
	name string
	args []any
}

// Tx queues commands for later execution against its DB. Exec runs them in
// order without atomicity: a failing command does not stop the batch and
// earlier commands stay applied. A Tx is not safe for concurrent use.
type Tx struct {
	db    *DB
	id    string
	queue []queued
}

// Multi starts a command queue bound to db.
func (db *DB) Multi() *Tx {
	return &Tx{db: db, id: uuid.NewString()}
}

// ID identifies the queue in logs.
func (tx *Tx) ID() string { return tx.id }

// Len returns the number of queued commands.
func (tx *Tx) Len() int { return len(tx.queue) }

// Queue appends an arbitrary command. Names are matched case-insensitively
// at Exec time; unknown names fail there with ErrInvalidOperation.
func (tx *Tx) Queue(name string, args ...any) *Tx {
	tx.queue = append(tx.queue, queued{name: name, args: args})
	return tx
}

// Put queues a Put of value under key.
func (tx *Tx) Put(key, value string, ttl time.Duration) *Tx {
	return tx.Queue("put", key, value, ttl)
}

// Get queues a Get; its result value is the string, or nil when missing.
func (tx *Tx) Get(key string) *Tx { return tx.Queue("get", key) }

// Del queues a Del of key.
func (tx *Tx) Del(key string) *Tx { return tx.Queue("del", key) }

// Incr queues an Incr of key by delta.
func (tx *Tx) Incr(key string, delta int64) *Tx { return tx.Queue("incr", key, delta) }

// Decr queues a Decr of key by delta.
func (tx *Tx) Decr(key string, delta int64) *Tx { return tx.Queue("decr", key, delta) }

// Expire queues an Expire of key.
func (tx *Tx) Expire(key string, ttl time.Duration) *Tx { return tx.Queue("expire", key, ttl) }

// HSet queues an HSet.
func (tx *Tx) HSet(key, field, value string) *Tx { return tx.Queue("hset", key, field, value) }

// HDel queues an HDel of fields.
func (tx *Tx) HDel(key string, fields ...string) *Tx {
	return tx.Queue("hdel", withKey(key, fields)...)
}

// HIncrBy queues an HIncrBy of field by delta.
func (tx *Tx) HIncrBy(key, field string, delta float64) *Tx {
	return tx.Queue("hincrby", key, field, delta)
}

// LPush queues an LPush.
func (tx *Tx) LPush(key string, values ...string) *Tx {
	return tx.Queue("lpush", withKey(key, values)...)
}

// RPush queues an RPush.
func (tx *Tx) RPush(key string, values ...string) *Tx {
	return tx.Queue("rpush", withKey(key, values)...)
}

// LPop queues an LPop.
func (tx *Tx) LPop(key string) *Tx { return tx.Queue("lpop", key) }

// RPop queues an RPop.
func (tx *Tx) RPop(key string) *Tx { return tx.Queue("rpop", key) }

// SAdd queues an SAdd of members.
func (tx *Tx) SAdd(key string, members ...string) *Tx {
	return tx.Queue("sadd", withKey(key, members)...)
}

// SRem queues an SRem of members.
func (tx *Tx) SRem(key string, members ...string) *Tx {
	return tx.Queue("srem", withKey(key, members)...)
}

// ZAdd queues a ZAdd of members.
func (tx *Tx) ZAdd(key string, members ...ScoredMember) *Tx {
	args := make([]any, 0, len(members)+1)
	args = append(args, key)
	for _, m := range members {
		args = append(args, m)
	}
	return tx.Queue("zadd", args...)
}

// ZRem queues a ZRem of members.
func (tx *Tx) ZRem(key string, members ...string) *Tx {
	return tx.Queue("zrem", withKey(key, members)...)
}

// ZIncrBy queues a ZIncrBy of member by delta.
func (tx *Tx) ZIncrBy(key string, delta float64, member string) *Tx {
	return tx.Queue("zincrby", key, delta, member)
}

// Exec runs the queued commands in order and empties the queue. Every
// command gets a result slot; errors and panics are captured there.
func (tx *Tx) Exec(ctx context.Context) []Result {
	queue := tx.queue
	tx.queue = nil

	results := make([]Result, len(queue))
	for i, cmd := range queue {
		results[i] = tx.db.execOne(ctx, cmd)
		if results[i].Err != nil {
			tx.db.log.Debugw("Queued command failed",
				"tx", tx.id,
				"index", i,
				"command", cmd.name,
				"error", results[i].Err,
			)
		}
	}
	return results
}

// Discard empties the queue without running it and returns "OK".
func (tx *Tx) Discard() string {
	tx.queue = nil
	return "OK"
}

func (db *DB) execOne(ctx context.Context, cmd queued) (res Result) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if ae, ok := r.(argError); ok {
			res = Result{Err: fmt.Errorf("engine: %s: %w", cmd.name, ae.err)}
			return
		}
		res = Result{Err: fmt.Errorf("engine: %s: panic: %v", cmd.name, r)}
	}()

	h, ok := txHandlers[strings.ToLower(cmd.name)]
	if !ok {
		return Result{Err: fmt.Errorf("%w: %q", ErrInvalidOperation, cmd.name)}
	}
	v, err := h(ctx, db, args(cmd.args))
	if err != nil {
		return Result{Err: err}
	}
	return Result{Value: v}
}

type handler func(ctx context.Context, db *DB, a args) (any, error)

// txHandlers maps command names to DB calls. Misses are reported as a nil
// Value.
var txHandlers = map[string]handler{
	"put": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(2, 3); err != nil {
			return nil, err
		}
		var ttl time.Duration
		if len(a) == 3 {
			var err error
			if ttl, err = a.duration(2); err != nil {
				return nil, err
			}
		}
		return "OK", db.Put(ctx, a.str(0), a.str(1), ttl)
	},
	"get": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(1, 1); err != nil {
			return nil, err
		}
		v, ok, err := db.Get(ctx, a.str(0))
		return optional(v, ok, err)
	},
	"del": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(1, 1); err != nil {
			return nil, err
		}
		return db.Del(ctx, a.str(0))
	},
	"has": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(1, 1); err != nil {
			return nil, err
		}
		return db.Has(ctx, a.str(0))
	},
	"incr": func(ctx context.Context, db *DB, a args) (any, error) {
		key, delta, err := a.counter()
		if err != nil {
			return nil, err
		}
		return db.Incr(ctx, key, delta)
	},
	"decr": func(ctx context.Context, db *DB, a args) (any, error) {
		key, delta, err := a.counter()
		if err != nil {
			return nil, err
		}
		return db.Decr(ctx, key, delta)
	},
	"expire": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(2, 2); err != nil {
			return nil, err
		}
		ttl, err := a.duration(1)
		if err != nil {
			return nil, err
		}
		return db.Expire(ctx, a.str(0), ttl)
	},
	"ttl": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(1, 1); err != nil {
			return nil, err
		}
		return db.TTL(ctx, a.str(0))
	},
	"persist": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(1, 1); err != nil {
			return nil, err
		}
		return db.Persist(ctx, a.str(0))
	},
	"hset": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(3, 3); err != nil {
			return nil, err
		}
		return db.HSet(ctx, a.str(0), a.str(1), a.str(2))
	},
	"hget": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(2, 2); err != nil {
			return nil, err
		}
		v, ok, err := db.HGet(ctx, a.str(0), a.str(1))
		return optional(v, ok, err)
	},
	"hdel": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(1, -1); err != nil {
			return nil, err
		}
		return db.HDel(ctx, a.str(0), a.strs(1)...)
	},
	"hincrby": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(2, 3); err != nil {
			return nil, err
		}
		delta := 1.0
		if len(a) == 3 {
			var err error
			if delta, err = a.float(2); err != nil {
				return nil, err
			}
		}
		return db.HIncrBy(ctx, a.str(0), a.str(1), delta)
	},
	"lpush": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(1, -1); err != nil {
			return nil, err
		}
		return db.LPush(ctx, a.str(0), a.strs(1)...)
	},
	"rpush": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(1, -1); err != nil {
			return nil, err
		}
		return db.RPush(ctx, a.str(0), a.strs(1)...)
	},
	"lpop": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(1, 1); err != nil {
			return nil, err
		}
		v, ok, err := db.LPop(ctx, a.str(0))
		return optional(v, ok, err)
	},
	"rpop": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(1, 1); err != nil {
			return nil, err
		}
		v, ok, err := db.RPop(ctx, a.str(0))
		return optional(v, ok, err)
	},
	"sadd": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(1, -1); err != nil {
			return nil, err
		}
		return db.SAdd(ctx, a.str(0), a.strs(1)...)
	},
	"srem": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(1, -1); err != nil {
			return nil, err
		}
		return db.SRem(ctx, a.str(0), a.strs(1)...)
	},
	"zadd": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(1, -1); err != nil {
			return nil, err
		}
		members, err := a.scored(1)
		if err != nil {
			return nil, err
		}
		return db.ZAdd(ctx, a.str(0), members...)
	},
	"zrem": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(1, -1); err != nil {
			return nil, err
		}
		return db.ZRem(ctx, a.str(0), a.strs(1)...)
	},
	"zincrby": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(3, 3); err != nil {
			return nil, err
		}
		delta, err := a.float(1)
		if err != nil {
			return nil, err
		}
		return db.ZIncrBy(ctx, a.str(0), delta, a.str(2))
	},
	"publish": func(ctx context.Context, db *DB, a args) (any, error) {
		if err := a.want(2, 2); err != nil {
			return nil, err
		}
		return db.Publish(ctx, a.str(0), a.str(1)), nil
	},
}

func optional(v string, ok bool, err error) (any, error) {
	if err != nil || !ok {
		return nil, err
	}
	return v, nil
}

func withKey(key string, rest []string) []any {
	out := make([]any, 0, len(rest)+1)
	out = append(out, key)
	for _, s := range rest {
		out = append(out, s)
	}
	return out
}

// args converts loosely typed queued arguments. Conversion failures panic
// with an ErrInvalidArgument error that execOne turns into a result; the
// typed numeric accessors return the error instead.
type args []any

type argError struct{ err error }

func (a args) want(minN, maxN int) error {
	if len(a) < minN || (maxN >= 0 && len(a) > maxN) {
		return fmt.Errorf("%w: got %d arguments", ErrInvalidArgument, len(a))
	}
	return nil
}

func (a args) str(i int) string {
	switch v := a[i].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case int, int64, float64, bool:
		return fmt.Sprint(v)
	default:
		panic(argError{fmt.Errorf("%w: argument %d is %T, want string", ErrInvalidArgument, i, a[i])})
	}
}

func (a args) strs(from int) []string {
	out := make([]string, 0, len(a)-from)
	for i := from; i < len(a); i++ {
		out = append(out, a.str(i))
	}
	return out
}

func (a args) int64(i int) (int64, error) {
	switch v := a[i].(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v == float64(int64(v)) {
			return int64(v), nil
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: argument %d (%v) is not an integer", ErrInvalidArgument, i, a[i])
}

func (a args) float(i int) (float64, error) {
	switch v := a[i].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return ParseScoreBound(v)
	}
	return 0, fmt.Errorf("%w: argument %d (%v) is not a number", ErrInvalidArgument, i, a[i])
}

// duration accepts a time.Duration or a number of milliseconds.
func (a args) duration(i int) (time.Duration, error) {
	if d, ok := a[i].(time.Duration); ok {
		return d, nil
	}
	ms, err := a.int64(i)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// counter reads (key[, delta]) with delta defaulting to 1.
func (a args) counter() (string, int64, error) {
	if err := a.want(1, 2); err != nil {
		return "", 0, err
	}
	delta := int64(1)
	if len(a) == 2 && a[1] != nil {
		var err error
		if delta, err = a.int64(1); err != nil {
			return "", 0, err
		}
	}
	return a.str(0), delta, nil
}

// scored reads ScoredMember values or alternating score, member pairs.
func (a args) scored(from int) ([]ScoredMember, error) {
	var out []ScoredMember
	for i := from; i < len(a); {
		if m, ok := a[i].(ScoredMember); ok {
			out = append(out, m)
			i++
			continue
		}
		if i+1 >= len(a) {
			return nil, fmt.Errorf("%w: score %v without member", ErrInvalidArgument, a[i])
		}
		score, err := a.float(i)
		if err != nil {
			return nil, err
		}
		out = append(out, ScoredMember{Score: score, Member: a.str(i + 1)})
		i += 2
	}
	return out, nil
}
