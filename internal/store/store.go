// Package store owns the per-category product files that are the
// durable ground truth of the catalog. One JSON file per category tag,
// written atomically; the walker appends to them page by page, the
// storefront reads them.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"velomarkt/catalogsync/internal/catalog"
	apperr "velomarkt/catalogsync/pkg/errors"
)

// FileStore persists each category's records in data/products_<tag>.json.
// It assumes a single writer; the mutex only protects in-process readers
// racing a write, not two orchestrator runs (callers serialize those).
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a store rooted at dir, creating it if missing.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.NewStorage("", fmt.Sprintf("create data dir %s", dir), err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(category string) string {
	return filepath.Join(s.dir, fmt.Sprintf("products_%s.json", category))
}

// Load returns the stored records for a category, in insertion order.
// A missing file is an empty category, not an error.
func (s *FileStore) Load(category string) ([]catalog.ProductRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(category)
}

func (s *FileStore) loadLocked(category string) ([]catalog.ProductRecord, error) {
	data, err := os.ReadFile(s.path(category))
	if err != nil {
		if os.IsNotExist(err) {
			return []catalog.ProductRecord{}, nil
		}
		return nil, apperr.NewStorage(category, "read category file", err)
	}

	var records []catalog.ProductRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, apperr.NewStorage(category, "decode category file", err)
	}
	return records, nil
}

// AppendIncremental loads the existing records, concatenates newRecords
// after them and persists the whole set atomically. This is the walker's
// per-page durability point.
func (s *FileStore) AppendIncremental(category string, newRecords []catalog.ProductRecord) error {
	if len(newRecords) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.loadLocked(category)
	if err != nil {
		return err
	}
	return s.writeLocked(category, append(existing, newRecords...))
}

// Overwrite replaces the category's full contents. Used by full reload.
func (s *FileStore) Overwrite(category string, records []catalog.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(category, records)
}

// writeLocked persists via temp file + rename so a crash mid-write
// never corrupts previously committed data.
func (s *FileStore) writeLocked(category string, records []catalog.ProductRecord) error {
	if records == nil {
		records = []catalog.ProductRecord{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return apperr.NewStorage(category, "encode category file", err)
	}

	tmp, err := os.CreateTemp(s.dir, fmt.Sprintf("products_%s_*.tmp", category))
	if err != nil {
		return apperr.NewStorage(category, "create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.NewStorage(category, "write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.NewStorage(category, "sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.NewStorage(category, "close temp file", err)
	}

	if err := os.Rename(tmpName, s.path(category)); err != nil {
		os.Remove(tmpName)
		return apperr.NewStorage(category, "rename temp file", err)
	}
	return nil
}

// ContainsURL reports whether the category already holds a product with
// the given source URL.
func (s *FileStore) ContainsURL(category, url string) (bool, error) {
	records, err := s.Load(category)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.URL == url {
			return true, nil
		}
	}
	return false, nil
}

// LoadAll concatenates the stored records across the given categories,
// preserving category order. Read path for the catalog API; a category
// that fails to load is skipped rather than failing the whole read.
func (s *FileStore) LoadAll(categories []string) ([]catalog.ProductRecord, error) {
	var all []catalog.ProductRecord
	for _, tag := range categories {
		records, err := s.Load(tag)
		if err != nil {
			continue
		}
		all = append(all, records...)
	}
	return all, nil
}
