// Package wal implements the append-only write-ahead log that makes the
// in-memory backend durable. Records are framed with a CRC32 checksum and
// little-endian lengths; replay stops at the first torn or corrupt record and
// truncates the file there.
package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Op identifies the mutation a record describes.
type Op byte

const (
	OpPut   Op = 0x01
	OpDel   Op = 0x02
	OpClear Op = 0x03
)

// crc(4) + op(1) + keyLen(4) + valueLen(4) + expireAt(8)
const headerSize = 21

const (
	maxKeyLen   = 1 << 20
	maxValueLen = 1 << 30
)

var (
	// ErrCorruptRecord is returned by decode when a checksum does not match.
	ErrCorruptRecord = errors.New("wal: corrupt record")
	// ErrClosed is returned by operations on a closed log.
	ErrClosed = errors.New("wal: closed")
	// ErrRecordTooLarge is returned by Append and Rewrite for a key or value
	// larger than replay accepts.
	ErrRecordTooLarge = errors.New("wal: record too large")
)

// Record is one logged mutation. ExpireAt is unix milliseconds, 0 for none.
type Record struct {
	Op       Op
	Key      string
	Value    string
	ExpireAt int64
}

// Option configures a Log.
type Option func(*Log)

// WithSync makes every Append fsync before returning.
func WithSync(sync bool) Option {
	return func(l *Log) {
		l.sync = sync
	}
}

// Log is a write-ahead log file. It is safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
	sync bool
	size int64
}

// Open opens or creates the log at path, creating parent directories.
func Open(path string, opts ...Option) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("wal: create directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open: %w", err)
	}
	l := &Log{path: path, file: file}
	for _, opt := range opts {
		opt(l)
	}
	l.buf = bufio.NewWriter(file)
	return l, nil
}

// Path returns the file path of the log.
func (l *Log) Path() string {
	return l.path
}

// Size returns the number of valid bytes in the log.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Replay calls fn for every valid record from the start of the file, then
// truncates any trailing partial or corrupt data and positions the log for
// appending.
func (l *Log) Replay(fn func(Record) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ErrClosed
	}

	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("wal: seek: %w", err)
	}

	r := bufio.NewReader(l.file)
	var valid int64
	for {
		rec, n, err := readRecord(r)
		if err != nil {
			// io.EOF, a torn tail or a bad checksum all end the log here.
			break
		}
		if err := fn(rec); err != nil {
			return err
		}
		valid += int64(n)
	}

	if err := l.file.Truncate(valid); err != nil {
		return fmt.Errorf("wal: truncate: %w", err)
	}
	if _, err := l.file.Seek(valid, io.SeekStart); err != nil {
		return fmt.Errorf("wal: seek: %w", err)
	}
	l.buf.Reset(l.file)
	l.size = valid
	return nil
}

// Append writes records to the log as one unit. Nothing is written when any
// record is too large.
func (l *Log) Append(recs ...Record) error {
	if err := checkSize(recs); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ErrClosed
	}

	for _, rec := range recs {
		data := encodeRecord(rec)
		if _, err := l.buf.Write(data); err != nil {
			return fmt.Errorf("wal: write: %w", err)
		}
		l.size += int64(len(data))
	}
	if err := l.buf.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	if l.sync {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("wal: sync: %w", err)
		}
	}
	return nil
}

// Sync flushes buffered data and fsyncs the file.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ErrClosed
	}
	if err := l.buf.Flush(); err != nil {
		return fmt.Errorf("wal: flush: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	return nil
}

// Rewrite atomically replaces the log contents with recs. It writes a
// temporary file next to the log and renames it into place.
func (l *Log) Rewrite(recs []Record) error {
	if err := checkSize(recs); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return ErrClosed
	}

	tmpPath := l.path + ".rewrite"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("wal: rewrite: %w", err)
	}

	w := bufio.NewWriter(tmp)
	var size int64
	for _, rec := range recs {
		data := encodeRecord(rec)
		if _, err := w.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("wal: rewrite: %w", err)
		}
		size += int64(len(data))
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("wal: rewrite: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("wal: rewrite: %w", err)
	}

	if err := os.Rename(tmpPath, l.path); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("wal: rewrite: %w", err)
	}

	l.file.Close()
	if _, err := tmp.Seek(0, io.SeekEnd); err != nil {
		tmp.Close()
		l.file = nil
		return fmt.Errorf("wal: rewrite: %w", err)
	}
	l.file = tmp
	l.buf.Reset(tmp)
	l.size = size
	return nil
}

// Close flushes, syncs and closes the log. Closing twice is a no-op.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}

	flushErr := l.buf.Flush()
	syncErr := l.file.Sync()
	closeErr := l.file.Close()
	l.file = nil

	if err := errors.Join(flushErr, syncErr, closeErr); err != nil {
		return fmt.Errorf("wal: close: %w", err)
	}
	return nil
}

func checkSize(recs []Record) error {
	for _, rec := range recs {
		if len(rec.Key) > maxKeyLen || len(rec.Value) > maxValueLen {
			return fmt.Errorf("%w: key %d bytes, value %d bytes", ErrRecordTooLarge, len(rec.Key), len(rec.Value))
		}
	}
	return nil
}

func encodeRecord(rec Record) []byte {
	keyLen, valueLen := len(rec.Key), len(rec.Value)
	data := make([]byte, headerSize+keyLen+valueLen)

	data[4] = byte(rec.Op)
	binary.LittleEndian.PutUint32(data[5:9], uint32(keyLen))
	binary.LittleEndian.PutUint32(data[9:13], uint32(valueLen))
	binary.LittleEndian.PutUint64(data[13:21], uint64(rec.ExpireAt))
	copy(data[headerSize:], rec.Key)
	copy(data[headerSize+keyLen:], rec.Value)

	binary.LittleEndian.PutUint32(data[0:4], crc32.ChecksumIEEE(data[4:]))
	return data
}

// readRecord returns the next record and its encoded size. A short read is
// reported as io.ErrUnexpectedEOF.
func readRecord(r io.Reader) (Record, int, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Record{}, 0, err
	}

	keyLen := binary.LittleEndian.Uint32(header[5:9])
	valueLen := binary.LittleEndian.Uint32(header[9:13])
	if keyLen > maxKeyLen || valueLen > maxValueLen {
		return Record{}, 0, ErrCorruptRecord
	}

	body := make([]byte, keyLen+valueLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, 0, err
	}

	h := crc32.NewIEEE()
	h.Write(header[4:])
	h.Write(body)
	if h.Sum32() != binary.LittleEndian.Uint32(header[0:4]) {
		return Record{}, 0, ErrCorruptRecord
	}

	return Record{
		Op:       Op(header[4]),
		Key:      string(body[:keyLen]),
		Value:    string(body[keyLen:]),
		ExpireAt: int64(binary.LittleEndian.Uint64(header[13:21])),
	}, headerSize + len(body), nil
}
