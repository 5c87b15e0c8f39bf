package wal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ghalamif/SignalBridge/internal/domain"
	"github.com/ghalamif/SignalBridge/internal/ports"
)

// entry format: [8 bytes id][4 bytes len][4 bytes crc32c of body][len bytes json]
const recordHeaderLen = 16

var (
	ErrCorrupt = errors.New("wal: corrupt record")
	ErrClosed  = errors.New("wal: closed")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type FileWAL struct {
	mu        sync.Mutex
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.WALEntryID
	committed ports.WALEntryID
	sizeBytes int64
	closed    bool
}

var _ ports.WAL = (*FileWAL)(nil)

func NewFileWAL(dir string) (*FileWAL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "wal.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	wal := &FileWAL{
		path:     path,
		metaPath: filepath.Join(dir, "wal.meta"),
		file:     f,
		writer:   bufio.NewWriterSize(f, 1<<20),
	}
	if err := wal.bootstrap(); err != nil {
		f.Close()
		return nil, err
	}
	return wal, nil
}

func (w *FileWAL) bootstrap() error {
	if err := w.scanExisting(); err != nil {
		return err
	}
	if err := w.loadCommitted(); err != nil {
		return err
	}
	if w.nextID < w.committed {
		w.nextID = w.committed
	}
	_, err := w.file.Seek(0, io.SeekEnd)
	return err
}

type record struct {
	id   ports.WALEntryID
	body []byte
}

// readRecord returns io.EOF at a clean end and ErrCorrupt for a torn or damaged tail.
func readRecord(r *bufio.Reader) (record, error) {
	var hdr [recordHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return record{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return record{}, fmt.Errorf("%w: truncated header", ErrCorrupt)
		}
		return record{}, err
	}
	rec := record{id: ports.WALEntryID(binary.BigEndian.Uint64(hdr[0:8]))}
	length := binary.BigEndian.Uint32(hdr[8:12])
	sum := binary.BigEndian.Uint32(hdr[12:16])

	rec.body = make([]byte, length)
	if _, err := io.ReadFull(r, rec.body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return record{}, fmt.Errorf("%w: truncated body of %d", ErrCorrupt, rec.id)
		}
		return record{}, err
	}
	if crc32.Checksum(rec.body, castagnoli) != sum {
		return record{}, fmt.Errorf("%w: checksum mismatch at %d", ErrCorrupt, rec.id)
	}
	return rec, nil
}

func writeRecord(w io.Writer, id ports.WALEntryID, body []byte) (int, error) {
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(body)))
	binary.BigEndian.PutUint32(hdr[12:16], crc32.Checksum(body, castagnoli))
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := w.Write(body); err != nil {
		return 0, err
	}
	return len(hdr) + len(body), nil
}

// scanExisting finds the last valid record and cuts any torn tail behind it.
func (w *FileWAL) scanExisting() error {
	rf, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var (
		offset int64
		lastID ports.WALEntryID
	)
	for {
		rec, err := readRecord(reader)
		if errors.Is(err, io.EOF) || errors.Is(err, ErrCorrupt) {
			break
		}
		if err != nil {
			return fmt.Errorf("wal scan: %w", err)
		}
		offset += int64(recordHeaderLen + len(rec.body))
		lastID = rec.id
	}

	if err := w.file.Truncate(offset); err != nil {
		return err
	}
	w.sizeBytes = offset
	w.nextID = lastID
	return nil
}

func (w *FileWAL) loadCommitted() error {
	data, err := os.ReadFile(w.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	val := strings.TrimSpace(string(data))
	if val == "" {
		return nil
	}
	u, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("wal meta parse: %w", err)
	}
	w.committed = ports.WALEntryID(u)
	return nil
}

func (w *FileWAL) Append(s *domain.Sample) (ports.WALEntryID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrClosed
	}

	b, err := json.Marshal(s)
	if err != nil {
		return 0, err
	}
	id := w.nextID + 1
	n, err := writeRecord(w.writer, id, b)
	if err != nil {
		return 0, err
	}

	// group commit: the buffer reaches disk on Iterate, TruncateCommitted or Close
	w.nextID = id
	w.sizeBytes += int64(n)
	return id, nil
}

func (w *FileWAL) Iterate(from ports.WALEntryID, fn func(id ports.WALEntryID, s *domain.Sample) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	if err := w.writer.Flush(); err != nil {
		return err
	}

	f, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := readRecord(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.id < from {
			continue
		}

		var s domain.Sample
		if err := json.Unmarshal(rec.body, &s); err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrCorrupt, rec.id, err)
		}
		if err := fn(rec.id, &s); err != nil {
			return err
		}
	}
}

func (w *FileWAL) Commit(upto ports.WALEntryID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if upto > w.committed {
		w.committed = upto
	}
	return w.persistMetaLocked()
}

// TruncateCommitted rewrites the log without the committed prefix and swaps it in.
func (w *FileWAL) TruncateCommitted() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}

	src, err := os.Open(w.path)
	if err != nil {
		return err
	}
	defer src.Close()

	tmpPath := w.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(tmp)
	r := bufio.NewReader(src)
	var size int64
	for {
		rec, err := readRecord(r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
		if rec.id <= w.committed {
			continue
		}
		n, err := writeRecord(bw, rec.id, rec.body)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
		size += int64(n)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := w.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		w.closed = true
		return err
	}
	w.file = f
	w.writer.Reset(f)
	w.sizeBytes = size
	return nil
}

func (w *FileWAL) Stats() ports.WALStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return ports.WALStats{
		OldestUncommitted: w.committed + 1,
		LatestAppended:    w.nextID,
		SizeBytes:         w.sizeBytes,
	}
}

// Close flushes buffered records and syncs the log. It is safe to call twice.
func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return errors.Join(w.writer.Flush(), w.file.Sync(), w.file.Close())
}

func (w *FileWAL) persistMetaLocked() error {
	data := []byte(fmt.Sprintf("%d\n", w.committed))
	return os.WriteFile(w.metaPath, data, 0o644)
}
