// Package logengine implements the log-structured key/value engine: an
// append-only record log on disk plus an in-memory index mapping each live
// key to the byte offset of its most recent Set record.
package logengine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/calvinalkan/kvs/internal/config"
	"github.com/calvinalkan/kvs/internal/engine"
	"github.com/calvinalkan/kvs/internal/record"
	"github.com/calvinalkan/kvs/pkg/fs"
)

// logFileName is the stable name of the live log file inside the data
// directory's metadata dir. Its contents are an internal on-disk detail.
const logFileName = "log.bson"

// compactionFactor bounds the log to roughly compactionFactor times the live
// key count: compaction runs once logCount exceeds compactionFactor*|index|.
const compactionFactor = 2

// Log is a cheaply-cloneable handle to a shared log-structured engine. All
// clones of the same Open call reference one *shared and are safe to use
// concurrently from multiple goroutines.
type Log struct {
	s     *shared
	owner bool
}

type shared struct {
	dir        string
	logPath    string
	fs         fs.FS
	atomicFile *fs.AtomicWriter

	writerMu    sync.Mutex
	writer      fs.File
	writeOffset int64
	logCount    int

	indexMu sync.RWMutex
	index   map[string]int64
}

// Open opens (creating if absent) the log file inside dir, replays it to
// build the index, and returns a handle safe to share across goroutines.
//
// Open records dir as having been opened with the log engine in the
// directory's config marker (see package config). It returns
// engine.ErrMismatchEngine if dir was previously opened with a different
// engine, and ErrNotValidLog if the log file is corrupt.
func Open(dir string) (*Log, error) {
	if dir == "" {
		return nil, errors.New("logengine: open: dir is empty")
	}

	err := config.EnsureMatches(dir, engine.KindLog)
	if err != nil {
		return nil, fmt.Errorf("logengine: open: %w", err)
	}

	metaDir := filepath.Join(dir, config.MetaDir)

	realFS := fs.NewReal()

	err = realFS.MkdirAll(metaDir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("logengine: open: create %s: %w", metaDir, err)
	}

	logPath := filepath.Join(metaDir, logFileName)

	writer, err := realFS.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0o640)
	if err != nil {
		return nil, fmt.Errorf("logengine: open: %w", err)
	}

	index, logCount, size, err := replay(writer)
	if err != nil {
		_ = writer.Close()

		return nil, err
	}

	_, err = writer.Seek(0, io.SeekEnd)
	if err != nil {
		_ = writer.Close()

		return nil, fmt.Errorf("logengine: open: seek end: %w", err)
	}

	s := &shared{
		dir:         dir,
		logPath:     logPath,
		fs:          realFS,
		atomicFile:  fs.NewAtomicWriter(realFS),
		writer:      writer,
		writeOffset: size,
		logCount:    logCount,
		index:       index,
	}

	return &Log{s: s, owner: true}, nil
}

// replay scans r from its current position (expected to be offset 0) and
// reconstructs the index by applying each record in order. It returns the
// index, the number of records applied, and the final stream offset.
func replay(r io.Reader) (map[string]int64, int, int64, error) {
	index := make(map[string]int64)

	var offset int64

	var count int

	for {
		rec, n, err := record.DecodeAt(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return index, count, offset, nil
			}

			return nil, 0, 0, fmt.Errorf("logengine: replay at offset %d: %w: %w", offset, ErrNotValidLog, err)
		}

		switch rec.Kind {
		case record.KindSet:
			index[rec.Key] = offset
		case record.KindRemove:
			delete(index, rec.Key)
		}

		offset += int64(n)
		count++
	}
}

// Set stores value under key, appending a Set record and updating the index.
// If appending pushes the log past its compaction threshold, Set compacts
// the log before returning.
func (l *Log) Set(key, value string) error {
	s := l.s

	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	offset := s.writeOffset

	n, err := record.WriteTo(s.writer, record.Set(key, value))
	if err != nil {
		return fmt.Errorf("logengine: set %q: %w", key, err)
	}

	err = s.writer.Sync()
	if err != nil {
		return fmt.Errorf("logengine: set %q: sync: %w", key, err)
	}

	s.writeOffset += int64(n)

	s.indexMu.Lock()
	s.index[key] = offset
	s.logCount++
	liveKeys := len(s.index)
	s.indexMu.Unlock()

	if s.logCount > compactionFactor*liveKeys {
		return s.compactLocked()
	}

	return nil
}

// Get returns the value stored under key. The second return value is false
// if key is not present.
func (l *Log) Get(key string) (string, bool, error) {
	s := l.s

	s.indexMu.RLock()
	offset, ok := s.index[key]
	if !ok {
		s.indexMu.RUnlock()
		return "", false, nil
	}

	// Open while still holding indexMu: once open, this fd keeps referring
	// to the file's content at this instant even if a concurrent compaction
	// renames a new file over logPath, so offset and the file it is read
	// against can never straddle a compaction.
	reader, err := s.fs.Open(s.logPath)
	s.indexMu.RUnlock()
	if err != nil {
		return "", false, fmt.Errorf("logengine: get %q: %w", key, err)
	}

	defer func() { _ = reader.Close() }()

	_, err = reader.Seek(offset, io.SeekStart)
	if err != nil {
		return "", false, fmt.Errorf("logengine: get %q: seek: %w", key, err)
	}

	rec, _, err := record.DecodeAt(reader)
	if err != nil {
		return "", false, fmt.Errorf("logengine: get %q: decode at offset %d: %w", key, offset, err)
	}

	if rec.Kind != record.KindSet || rec.Key != key {
		return "", false, fmt.Errorf("logengine: get %q: index points at offset %d which holds %+v: %w",
			key, offset, rec, ErrNotValidLog)
	}

	return rec.Value, true, nil
}

// Remove deletes key. It returns an error wrapping engine.ErrKeyNotFound if
// key is not present.
func (l *Log) Remove(key string) error {
	s := l.s

	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	s.indexMu.RLock()
	_, ok := s.index[key]
	s.indexMu.RUnlock()

	if !ok {
		return fmt.Errorf("logengine: remove %q: %w", key, engine.ErrKeyNotFound)
	}

	n, err := record.WriteTo(s.writer, record.Remove(key))
	if err != nil {
		return fmt.Errorf("logengine: remove %q: %w", key, err)
	}

	err = s.writer.Sync()
	if err != nil {
		return fmt.Errorf("logengine: remove %q: sync: %w", key, err)
	}

	s.writeOffset += int64(n)

	s.indexMu.Lock()
	delete(s.index, key)
	s.logCount++
	liveKeys := len(s.index)
	s.indexMu.Unlock()

	if liveKeys > 0 && s.logCount > compactionFactor*liveKeys {
		return s.compactLocked()
	}

	return nil
}

// Clone returns a handle referencing the same shared state as l.
func (l *Log) Clone() engine.Engine {
	return &Log{s: l.s}
}

// Close closes the underlying log file. Call it only on the handle returned
// by Open; Close on a Clone()-derived handle is a no-op.
func (l *Log) Close() error {
	if l.s == nil || !l.owner {
		return nil
	}

	err := l.s.writer.Close()
	if err != nil {
		return fmt.Errorf("logengine: close: %w", err)
	}

	return nil
}

var _ engine.Engine = (*Log)(nil)
