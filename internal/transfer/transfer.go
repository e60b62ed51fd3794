// Package transfer bulk-loads JSON documents into a store and dumps them
// back out.
//
// An array payload maps each element to prefix+element[IDField], falling back
// to the element's index; an object payload maps each field to prefix+field.
// Values are stored as compact JSON.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/flashdb/titankv/internal/codec"
	"github.com/flashdb/titankv/internal/config"
	"github.com/flashdb/titankv/internal/store"
)

const (
	DefaultIDField   = "id"
	DefaultBatchSize = 5000
	DefaultLimit     = 1000000
)

// ErrUnsupportedPayload is returned when the document is neither a JSON
// array nor a JSON object.
var ErrUnsupportedPayload = errors.New("transfer: payload must be a JSON array or object")

// Store is the part of the DB surface transfer needs.
type Store interface {
	PutBatch(ctx context.Context, kvs []store.KV) error
	Scan(ctx context.Context, prefix string, limit int) ([]store.KV, error)
	Keys(ctx context.Context, limit int) ([]string, error)
	GetBatch(ctx context.Context, keys []string) ([]store.Lookup, error)
}

type Options struct {
	// Prefix is prepended to every imported key and stripped on export.
	Prefix string
	// IDField names the element field used as key for array payloads.
	IDField string
	// BatchSize is the number of records per PutBatch call.
	BatchSize int
	// Limit caps how many records Export reads.
	Limit int
}

// OptionsFromConfig returns Options using the configured import batch size.
// A nil cfg yields the zero Options.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	return Options{BatchSize: cfg.Limits.ImportBatch}
}

func (o Options) withDefaults() Options {
	if o.IDField == "" {
		o.IDField = DefaultIDField
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	return o
}

// Import reads one JSON document from r and writes its entries to s. It
// returns the number of records written. A null document imports nothing.
// ctx is checked between batches; a cancelled import keeps the batches
// already written.
func Import(ctx context.Context, s Store, r io.Reader, opts Options) (int, error) {
	opts = opts.withDefaults()

	var doc json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return 0, fmt.Errorf("transfer: decode: %w", err)
	}

	kvs, err := entries(doc, opts)
	if err != nil {
		return 0, err
	}

	for start := 0; start < len(kvs); start += opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return start, err
		}
		end := min(start+opts.BatchSize, len(kvs))
		if err := s.PutBatch(ctx, kvs[start:end]); err != nil {
			return start, fmt.Errorf("transfer: put batch: %w", err)
		}
	}
	return len(kvs), nil
}

func entries(doc json.RawMessage, opts Options) ([]store.KV, error) {
	trimmed := bytes.TrimSpace(doc)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("transfer: decode array: %w", err)
		}
		kvs := make([]store.KV, 0, len(items))
		for i, item := range items {
			value, err := compact(item)
			if err != nil {
				return nil, err
			}
			kvs = append(kvs, store.KV{Key: opts.Prefix + itemID(item, opts.IDField, i), Value: value})
		}
		return kvs, nil

	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil, fmt.Errorf("transfer: decode object: %w", err)
		}
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)

		kvs := make([]store.KV, 0, len(fields))
		for _, name := range names {
			value, err := compact(fields[name])
			if err != nil {
				return nil, err
			}
			kvs = append(kvs, store.KV{Key: opts.Prefix + name, Value: value})
		}
		return kvs, nil

	default:
		return nil, ErrUnsupportedPayload
	}
}

// itemID returns the element's id field as text, or its index when the
// element is not an object or lacks the field.
func itemID(item json.RawMessage, field string, index int) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(item, &obj); err != nil {
		return strconv.Itoa(index)
	}
	raw, ok := obj[field]
	if !ok {
		return strconv.Itoa(index)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	text, err := compact(raw)
	if err != nil {
		return strconv.Itoa(index)
	}
	return text
}

func compact(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("transfer: compact: %w", err)
	}
	return buf.String(), nil
}

// Result is delivered once by ImportAsync.
type Result struct {
	Count int
	Err   error
}

// ImportAsync reads r to the end and imports it on another goroutine. The
// returned channel yields exactly one Result and is then closed. There is no
// progress reporting; cancelling ctx only stops batches not yet written.
func ImportAsync(ctx context.Context, s Store, r io.Reader, opts Options) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)

		data, err := io.ReadAll(r)
		if err != nil {
			out <- Result{Err: fmt.Errorf("transfer: read: %w", err)}
			return
		}
		if err := ctx.Err(); err != nil {
			out <- Result{Err: err}
			return
		}
		n, err := Import(ctx, s, bytes.NewReader(data), opts)
		out <- Result{Count: n, Err: err}
	}()
	return out
}

// ImportFile imports the JSON document stored at path.
func ImportFile(ctx context.Context, s Store, path string, opts Options) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("transfer: %w", err)
	}
	defer f.Close()
	return Import(ctx, s, f, opts)
}

// Export collects up to Limit records into a map keyed by the key with Prefix
// removed. Without a prefix every plain key is exported; composite records
// are skipped. Values that parse as JSON are decoded, others are returned as
// strings. When w is not nil the map is also written to it as indented JSON.
func Export(ctx context.Context, s Store, w io.Writer, opts Options) (map[string]any, error) {
	opts = opts.withDefaults()

	var kvs []store.KV
	if opts.Prefix != "" {
		var err error
		kvs, err = s.Scan(ctx, opts.Prefix, opts.Limit)
		if err != nil {
			return nil, fmt.Errorf("transfer: scan: %w", err)
		}
	} else {
		keys, err := s.Keys(ctx, opts.Limit)
		if err != nil {
			return nil, fmt.Errorf("transfer: keys: %w", err)
		}
		plain := make([]string, 0, len(keys))
		for _, k := range keys {
			if !codec.IsReserved(k) {
				plain = append(plain, k)
			}
		}
		found, err := s.GetBatch(ctx, plain)
		if err != nil {
			return nil, fmt.Errorf("transfer: get batch: %w", err)
		}
		for _, l := range found {
			if l.Found {
				kvs = append(kvs, store.KV{Key: l.Key, Value: l.Value})
			}
		}
	}

	result := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		result[strings.TrimPrefix(kv.Key, opts.Prefix)] = decodeValue(kv.Value)
	}

	if w != nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return nil, fmt.Errorf("transfer: encode: %w", err)
		}
	}
	return result, nil
}

// ExportFile writes the export to path, replacing any existing file.
func ExportFile(ctx context.Context, s Store, path string, opts Options) (map[string]any, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	result, err := Export(ctx, s, f, opts)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("transfer: %w", cerr)
	}
	return result, err
}

func decodeValue(raw string) any {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	if dec.More() {
		return raw
	}
	return v
}
