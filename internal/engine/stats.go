package engine

import (
	"context"
	"fmt"

	"github.com/flashdb/titankv/internal/hotkeys"
)

// Stats combines the DB counters with the backend statistics.
type Stats struct {
	TotalOps int64   `json:"totalOps"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hitRate"`

	KeyCount         int     `json:"keyCount"`
	RawBytes         int64   `json:"rawBytes"`
	CompressedBytes  int64   `json:"compressedBytes"`
	CompressionRatio float64 `json:"compressionRatio"`

	HotKeys []hotkeys.Entry `json:"hotKeys,omitempty"`
}

// Stats reports the counters. HitRate is hits/(hits+misses) over Get calls,
// not hits over TotalOps, so non-Get operations do not lower it. It is 0
// before the first Get.
func (db *DB) Stats(ctx context.Context) (Stats, error) {
	bs, err := db.backend.Stats(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("engine: stats: %w", err)
	}

	hits, misses := db.hits.Load(), db.misses.Load()
	s := Stats{
		TotalOps:         db.totalOps.Load(),
		Hits:             hits,
		Misses:           misses,
		KeyCount:         bs.KeyCount,
		RawBytes:         bs.RawBytes,
		CompressedBytes:  bs.CompressedBytes,
		CompressionRatio: bs.CompressionRatio,
	}
	if lookups := hits + misses; lookups > 0 {
		s.HitRate = float64(hits) / float64(lookups)
	}
	if db.hot != nil {
		s.HotKeys = db.hot.Top(0)
	}
	return s, nil
}
