package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"feedcorpus/internal/domain"
	"feedcorpus/internal/ports"
)

// ErrNotFound is returned by Read when no snapshot has been persisted yet.
var ErrNotFound = errors.New("corpus snapshot not found")

// Store owns the on-disk corpus file. Writes go through a temp file plus
// rename, so a reader never observes a half-written snapshot.
type Store struct {
	path   string
	logger *slog.Logger
}

var _ ports.CorpusStore = (*Store)(nil)

// NewStore wires a store for the snapshot at path.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Read loads the entire snapshot. Callers that can start from nothing treat
// ErrNotFound as an empty corpus.
func (s *Store) Read() (domain.Snapshot, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read corpus %s: %w", s.path, err)
	}

	var snapshot domain.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decode corpus %s: %w", s.path, err)
	}

	return snapshot, nil
}

// Write atomically replaces the snapshot on disk.
func (s *Store) Write(snapshot domain.Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("snapshot persisted", "path", s.path, "items", len(snapshot))
	}
	return nil
}

// Backup copies the current snapshot to a timestamped sibling file and
// returns its path. The reset flow calls this before clearing enrichment.
func (s *Store) Backup() (string, error) {
	src, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("open corpus for backup: %w", err)
	}
	defer src.Close()

	backupPath := fmt.Sprintf("%s.backup_%s", s.path, time.Now().Format("20060102_150405"))
	dst, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("create backup %s: %w", backupPath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("copy backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close backup: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("backup created", "path", backupPath)
	}
	return backupPath, nil
}
