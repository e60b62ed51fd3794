package wal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func replayAll(t *testing.T, l *Log) []Record {
	t.Helper()
	var recs []Record
	require.NoError(t, l.Replay(func(r Record) error {
		recs = append(recs, r)
		return nil
	}))
	return recs
}

func TestLog_OpenAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.wal")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)

	assert.ErrorIs(t, l.Append(Record{Op: OpPut, Key: "k"}), ErrClosed)
}

func TestLog_AppendAndReplay(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "test.wal"), WithSync(true))
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(
		Record{Op: OpPut, Key: "key1", Value: "value1"},
		Record{Op: OpPut, Key: "key2", Value: "value2", ExpireAt: 1234567890000},
	))
	require.NoError(t, l.Append(Record{Op: OpDel, Key: "key1"}))

	recs := replayAll(t, l)
	require.Len(t, recs, 3)
	assert.Equal(t, Record{Op: OpPut, Key: "key1", Value: "value1"}, recs[0])
	assert.Equal(t, int64(1234567890000), recs[1].ExpireAt)
	assert.Equal(t, OpDel, recs[2].Op)
	assert.Equal(t, l.Size(), int64(3*headerSize+len("key1value1key2value2key1")))
}

func TestLog_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(Record{Op: OpPut, Key: "key1", Value: "value1"}))
	require.NoError(t, l.Close())

	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	recs := replayAll(t, l2)
	require.Len(t, recs, 1)
	assert.Equal(t, "key1", recs[0].Key)

	// Appends after replay land after the existing records.
	require.NoError(t, l2.Append(Record{Op: OpClear}))
	assert.Len(t, replayAll(t, l2), 2)
}

func TestLog_AppendRejectsOversizedRecord(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "test.wal"))
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(Record{Op: OpPut, Key: "before", Value: "v"}))
	size := l.Size()

	err = l.Append(
		Record{Op: OpPut, Key: "ok", Value: "v"},
		Record{Op: OpPut, Key: strings.Repeat("k", maxKeyLen+1), Value: "v"},
	)
	assert.ErrorIs(t, err, ErrRecordTooLarge)
	assert.Equal(t, size, l.Size(), "a rejected batch writes nothing")

	assert.ErrorIs(t, l.Rewrite([]Record{{Op: OpPut, Key: strings.Repeat("k", maxKeyLen+1)}}), ErrRecordTooLarge)

	require.NoError(t, l.Append(Record{Op: OpPut, Key: "after", Value: "v"}))
	recs := replayAll(t, l)
	require.Len(t, recs, 2)
	assert.Equal(t, "before", recs[0].Key)
	assert.Equal(t, "after", recs[1].Key)
}

func TestLog_TornTailIsTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(Record{Op: OpPut, Key: "key1", Value: "value1"}))
	require.NoError(t, l.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	assert.Len(t, replayAll(t, l2), 1)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(headerSize+len("key1value1")), info.Size())
}

func TestLog_CorruptRecordStopsReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(
		Record{Op: OpPut, Key: "a", Value: "1"},
		Record{Op: OpPut, Key: "b", Value: "2"},
	))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF // flip a byte in the second record's value
	require.NoError(t, os.WriteFile(path, data, 0o644))

	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	recs := replayAll(t, l2)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].Key)
}

func TestLog_ReplayCallbackError(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "test.wal"))
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, l.Append(Record{Op: OpPut, Key: "a"}))

	boom := errors.New("boom")
	err = l.Replay(func(Record) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestLog_Rewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	l, err := Open(path)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Append(Record{Op: OpPut, Key: "k", Value: "v"}))
	}
	before := l.Size()

	require.NoError(t, l.Rewrite([]Record{{Op: OpPut, Key: "k", Value: "v"}}))
	assert.Less(t, l.Size(), before)

	require.NoError(t, l.Append(Record{Op: OpDel, Key: "k"}))
	require.NoError(t, l.Close())

	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	recs := replayAll(t, l2)
	require.Len(t, recs, 2)
	assert.Equal(t, OpPut, recs[0].Op)
	assert.Equal(t, OpDel, recs[1].Op)

	_, err = os.Stat(path + ".rewrite")
	assert.True(t, os.IsNotExist(err))
}

func TestLog_Sync(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "test.wal"))
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Append(Record{Op: OpPut, Key: "k", Value: "v"}))
	}
	require.NoError(t, l.Sync())
	assert.Len(t, replayAll(t, l), 5)
}

// ---------------------------------------------------------------------------
// Benchmarks
// ---------------------------------------------------------------------------

func BenchmarkLogAppend(b *testing.B) {
	l, _ := Open(filepath.Join(b.TempDir(), "bench.wal"))
	defer l.Close()
	rec := Record{Op: OpPut, Key: "key", Value: "value"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Append(rec)
	}
}

func BenchmarkLogAppendSync(b *testing.B) {
	l, _ := Open(filepath.Join(b.TempDir(), "bench.wal"), WithSync(true))
	defer l.Close()
	rec := Record{Op: OpPut, Key: "key", Value: "value"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Append(rec)
	}
}

func BenchmarkLogAppendBatch(b *testing.B) {
	l, _ := Open(filepath.Join(b.TempDir(), "bench.wal"))
	defer l.Close()
	batch := make([]Record, 50)
	for i := range batch {
		batch[i] = Record{Op: OpPut, Key: "key", Value: "value"}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Append(batch...)
	}
}
