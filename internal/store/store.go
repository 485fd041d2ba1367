// Package store owns the on-disk JSON document shared by the bot workers and the
// admin console.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/relaybots/relay/backend/go-services/pkg/logger"
	"github.com/relaybots/relay/backend/go-services/pkg/metrics"
)

// FileStore reads and writes the document at a single path.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the persisted document. A missing file yields a fresh empty
// document and is not created; an unparseable file yields *CorruptStoreError.
func (s *FileStore) Load() (*Document, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			metrics.StoreLoads.WithLabelValues("missing").Inc()
			return NewDocument(), nil
		}
		metrics.StoreLoads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("read store %s: %w", s.path, err)
	}
	doc := &Document{}
	if err := json.Unmarshal(b, doc); err != nil {
		metrics.StoreLoads.WithLabelValues("corrupt").Inc()
		logger.Errorf("store %s failed to parse (%d bytes): %v", s.path, len(b), err)
		return nil, &CorruptStoreError{Path: s.path, Err: err}
	}
	metrics.StoreLoads.WithLabelValues("ok").Inc()
	return doc, nil
}

// Save writes doc to a temporary file beside the target and renames it into
// place, so a concurrent Load sees either the old or the new file, never a mix.
func (s *FileStore) Save(doc *Document) error {
	if doc == nil {
		return errors.New("save: nil document")
	}
	b, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	// removes the temp file on any failure before the rename
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace store: %w", err)
	}
	metrics.StoreSaves.Inc()
	return nil
}
