// Package statestore persists the governor's durable documents as JSON
// files under a per-repository directory: release state, the webhook
// delivery-id cache, and security overrides.
//
// Writers take an exclusive advisory lock on a sidecar .lock file, write a
// sibling temp file, fsync, and atomically rename over the target. Readers
// take a shared lock. A reader therefore never observes a partial document,
// and concurrent writers serialize instead of corrupting state. Malformed
// JSON is treated as an absent document: the store is advisory and
// rebuildable from webhook replay, so availability wins over strictness.
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const (
	releaseFile  = "release.json"
	deliveryFile = "delivery_ids.json"
	overrideFile = "security_overrides.json"

	timeFormat = time.RFC3339
)

// Store reads and writes governor state documents scoped by repository.
type Store struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the time source used for TTL pruning and delivery-cache
// eviction. Tests use this to pin time.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store rooted at dir, creating it if needed.
func New(dir string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("statestore: state directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("statestore: init state directory %s: %w", dir, err)
	}
	s := &Store{dir: dir, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// repoDir maps "owner/name" onto a filesystem-safe subdirectory.
func (s *Store) repoDir(repo string) string {
	return filepath.Join(s.dir, strings.ReplaceAll(repo, "/", "__"))
}

func (s *Store) docPath(repo, name string) (string, error) {
	if repo == "" {
		return "", fmt.Errorf("statestore: repository name cannot be empty")
	}
	dir := s.repoDir(repo)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("statestore: create repo state dir %s: %w", dir, err)
	}
	return filepath.Join(dir, name), nil
}

// fileLock holds an advisory flock on a sidecar lock file.
type fileLock struct {
	f *os.File
}

func acquireLock(path string, how int) (*fileLock, error) {
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("statestore: open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return nil, fmt.Errorf("statestore: lock %s: %w", path, err)
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) release() {
	_ = syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	_ = l.f.Close()
}

// readDoc parses the JSON document at path into out under a shared lock.
// It returns false when the document is absent or unreadable as JSON.
func (s *Store) readDoc(path string, out any) (bool, error) {
	lock, err := acquireLock(path, syscall.LOCK_SH)
	if err != nil {
		return false, err
	}
	defer lock.release()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("statestore: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		if s.logger != nil {
			s.logger.Warn("discarding malformed state document", "path", path, "err", err)
		}
		return false, nil
	}
	return true, nil
}

// writeDoc serializes v and atomically replaces the document at path under
// an exclusive lock.
func (s *Store) writeDoc(path string, v any) error {
	lock, err := acquireLock(path, syscall.LOCK_EX)
	if err != nil {
		return err
	}
	defer lock.release()

	return writeLocked(path, v)
}

// writeLocked performs the temp-write-fsync-rename dance. The caller must
// hold the exclusive lock for path.
func writeLocked(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("statestore: create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("statestore: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("statestore: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("statestore: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("statestore: atomic rename %s: %w", path, err)
	}
	return nil
}

// updateDoc runs a read-modify-write cycle under a single exclusive lock so
// concurrent updaters cannot interleave between the read and the write.
// The mutate callback receives whether the document existed and returns
// whether to persist.
func (s *Store) updateDoc(path string, out any, mutate func(existed bool) (bool, error)) error {
	lock, err := acquireLock(path, syscall.LOCK_EX)
	if err != nil {
		return err
	}
	defer lock.release()

	existed := false
	data, err := os.ReadFile(path)
	if err == nil {
		if jsonErr := json.Unmarshal(data, out); jsonErr == nil {
			existed = true
		} else if s.logger != nil {
			s.logger.Warn("discarding malformed state document", "path", path, "err", jsonErr)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("statestore: read %s: %w", path, err)
	}

	save, err := mutate(existed)
	if err != nil {
		return err
	}
	if !save {
		return nil
	}
	return writeLocked(path, out)
}
