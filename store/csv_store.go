// Package store owns the durable append-only table that accepted samples
// land in. One CSVStore serializes every writer in the process; each append
// is a full open-append-sync-close cycle so a crash can lose at most the
// record that was in flight.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/INLOpen/motionrelay/record"
)

// CSVStore appends wire records to a single CSV file. The header row is
// written exactly once, when the file is first created; a file that already
// exists on disk is treated as initialized.
type CSVStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// Open prepares the store at path, creating the file and writing the
// 11-column header if it does not exist yet. Parent directories are
// created as needed.
func Open(path string, logger *slog.Logger) (*CSVStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &CSVStore{
		path:   path,
		logger: logger.With("component", "CSVStore"),
	}

	if err := s.ensureHeader(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the underlying CSV file.
func (s *CSVStore) Path() string { return s.path }

// Append writes the record's 11 fields as one row. Concurrent callers are
// serialized; the file is synced and closed before Append returns, so a
// completed append survives a crash.
func (s *CSVStore) Append(rec record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open store for append: %w", err)
	}

	w := csv.NewWriter(f)
	writeErr := w.Write(rec.Fields())
	w.Flush()
	if writeErr == nil {
		writeErr = w.Error()
	}
	if writeErr == nil {
		writeErr = f.Sync()
	}

	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return fmt.Errorf("failed to append record to %s: %w", s.path, writeErr)
	}
	return nil
}

// ensureHeader creates the file with the fixed header row when the store
// does not exist yet. An existing file is never rewritten.
func (s *CSVStore) ensureHeader() error {
	if _, err := os.Stat(s.path); err == nil {
		s.logger.Info("Using existing store file", "path", s.path)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat store file %s: %w", s.path, err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create store directory %s: %w", dir, err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create store file %s: %w", s.path, err)
	}

	w := csv.NewWriter(f)
	writeErr := w.Write(record.Header)
	w.Flush()
	if writeErr == nil {
		writeErr = w.Error()
	}
	if writeErr == nil {
		writeErr = f.Sync()
	}

	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write store header: %w", writeErr)
	}

	s.logger.Info("Created new store file with header", "path", s.path)
	return nil
}
