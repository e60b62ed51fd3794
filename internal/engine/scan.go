package engine

import (
	"context"
	"fmt"
)

// ScanPage is one page of a cursor scan. Cursor is the offset to pass to the
// next call and 0 once Done.
type ScanPage struct {
	Cursor  int
	Entries []KV
	Done    bool
}

// PagedScan returns up to count records with the given prefix starting at
// offset cursor. Every call rescans the prefix from the beginning, so writes
// between calls can shift, skip or repeat entries. count <= 0 uses the
// configured page size.
func (db *DB) PagedScan(ctx context.Context, prefix string, cursor, count int) (ScanPage, error) {
	defer db.track(ctx, "pagedscan")()

	if cursor < 0 {
		return ScanPage{}, fmt.Errorf("engine: paged scan: %w: negative cursor", ErrInvalidArgument)
	}
	if count <= 0 {
		count = db.scanCount
	}

	// One extra record tells a full last page apart from a page with more
	// to follow.
	all, err := db.backend.Scan(ctx, prefix, cursor+count+1)
	if err != nil {
		return ScanPage{}, fmt.Errorf("engine: paged scan: %w", err)
	}

	start := min(cursor, len(all))
	end := min(cursor+count, len(all))
	entries := make([]KV, end-start)
	copy(entries, all[start:end])

	next := cursor + len(entries)
	done := next >= len(all)
	if done {
		next = 0
	}
	return ScanPage{Cursor: next, Entries: entries, Done: done}, nil
}

// Iterator walks a prefix page by page through PagedScan. It is not safe for
// concurrent use and is not isolated from concurrent writes.
//
//	it := db.Iterate("user:", 0)
//	for it.Next(ctx) {
//		kv := it.Entry()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	db     *DB
	prefix string
	batch  int

	cursor int
	page   []KV
	pos    int
	done   bool
	cur    KV
	err    error
}

// Iterate returns an iterator over prefix fetching batch records per page.
// batch <= 0 uses the configured batch size.
func (db *DB) Iterate(prefix string, batch int) *Iterator {
	if batch <= 0 {
		batch = db.iterateBatch
	}
	return &Iterator{db: db, prefix: prefix, batch: batch}
}

// Next advances to the next record, fetching a page when needed.
func (it *Iterator) Next(ctx context.Context) bool {
	for {
		if it.pos < len(it.page) {
			it.cur = it.page[it.pos]
			it.pos++
			return true
		}
		if it.done || it.err != nil {
			return false
		}

		page, err := it.db.PagedScan(ctx, it.prefix, it.cursor, it.batch)
		if err != nil {
			it.err = err
			return false
		}
		it.page, it.pos = page.Entries, 0
		it.cursor = page.Cursor
		it.done = page.Done
	}
}

// Entry returns the record Next moved to.
func (it *Iterator) Entry() KV {
	return it.cur
}

// Err returns the error that stopped Next, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Reset rewinds the iterator to the start of the prefix.
func (it *Iterator) Reset() {
	it.cursor = 0
	it.page = nil
	it.pos = 0
	it.done = false
	it.cur = KV{}
	it.err = nil
}
