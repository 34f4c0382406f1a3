package logengine

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/calvinalkan/kvs/internal/record"
	"github.com/calvinalkan/kvs/pkg/fs"
)

// compactLocked rewrites the log to contain exactly one Set record per live
// key, replacing the on-disk file and the in-memory index. The caller must
// already hold s.writerMu, which it keeps held for the whole procedure so no
// new record can be appended mid-compaction (invariant I4).
//
// A fresh read handle is used to copy each live record rather than the
// shared writer, and the new file is published with AtomicWriter (temp file,
// fsync, rename, directory fsync), so a crash before the rename leaves the
// original log untouched and a crash after it leaves the new log complete.
func (s *shared) compactLocked() error {
	s.indexMu.RLock()
	snapshot := make(map[string]int64, len(s.index))

	for k, v := range s.index {
		snapshot[k] = v
	}
	s.indexMu.RUnlock()

	reader, err := s.fs.Open(s.logPath)
	if err != nil {
		return fmt.Errorf("logengine: compact: open for read: %w", err)
	}

	defer func() { _ = reader.Close() }()

	var buf bytes.Buffer

	newOffsets := make(map[string]int64, len(snapshot))

	for key, offset := range snapshot {
		_, err = reader.Seek(offset, io.SeekStart)
		if err != nil {
			return fmt.Errorf("logengine: compact: seek %q at %d: %w", key, offset, err)
		}

		rec, _, err := record.DecodeAt(reader)
		if err != nil {
			return fmt.Errorf("logengine: compact: decode %q at %d: %w", key, offset, err)
		}

		if rec.Kind != record.KindSet || rec.Key != key {
			return fmt.Errorf("logengine: compact: index for %q points at %+v: %w", key, rec, ErrNotValidLog)
		}

		newOffsets[key] = int64(buf.Len())

		_, err = record.WriteTo(&buf, rec)
		if err != nil {
			return fmt.Errorf("logengine: compact: re-encode %q: %w", key, err)
		}
	}

	// indexMu is held across the rename and the index swap together so a
	// concurrent Get's (index-read, file-open) pair can never straddle the
	// rename: it either completes entirely before this section (old file,
	// old offsets) or entirely after (new file, new offsets), never a mix
	// of the two generations.
	s.indexMu.Lock()

	err = s.atomicFile.Write(s.logPath, bytes.NewReader(buf.Bytes()), fs.AtomicWriteOptions{
		SyncDir: true,
		Perm:    0o640,
	})
	if err != nil {
		s.indexMu.Unlock()
		return fmt.Errorf("logengine: compact: publish new log: %w", err)
	}

	s.index = newOffsets
	s.logCount = len(newOffsets)
	s.indexMu.Unlock()

	newWriter, err := s.fs.OpenFile(s.logPath, os.O_RDWR|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("logengine: compact: reopen for append: %w", err)
	}

	oldWriter := s.writer
	s.writer = newWriter
	s.writeOffset = int64(buf.Len())

	err = oldWriter.Close()
	if err != nil {
		return fmt.Errorf("logengine: compact: close old log: %w", err)
	}

	return nil
}
