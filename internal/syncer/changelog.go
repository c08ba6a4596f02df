package syncer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperr "velomarkt/catalogsync/pkg/errors"
)

// ChangeEntry is one audit record appended after a run. Nothing in the
// worker reads it back; the admin side does.
type ChangeEntry struct {
	Timestamp     time.Time `json:"timestamp"`
	Action        string    `json:"action"`
	Added         int       `json:"added"`
	Removed       int       `json:"removed"`
	Updated       int       `json:"updated"`
	TotalProducts int       `json:"totalProducts"`
	Categories    []string  `json:"categories"`
}

// ChangeLog appends run entries to a JSON array file. Entries are only
// ever appended, never rewritten.
type ChangeLog struct {
	path string
	mu   sync.Mutex
}

func NewChangeLog(path string) *ChangeLog {
	return &ChangeLog{path: path}
}

// Append adds an entry to the log, creating the file on first use.
func (l *ChangeLog) Append(entry ChangeEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := []ChangeEntry{}
	if data, err := os.ReadFile(l.path); err == nil {
		// A log that fails to decode is started over rather than
		// blocking the run; the old file survives as-is until the
		// write below replaces it.
		_ = json.Unmarshal(data, &entries)
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return apperr.NewStorage("", "encode change log", err)
	}

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, "changes_*.tmp")
	if err != nil {
		return apperr.NewStorage("", "create change log temp", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperr.NewStorage("", "write change log", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperr.NewStorage("", "close change log temp", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return apperr.NewStorage("", "rename change log", err)
	}
	return nil
}

// Entries reads the full log, empty when the file does not exist.
func (l *ChangeLog) Entries() ([]ChangeEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []ChangeEntry{}, nil
		}
		return nil, apperr.NewStorage("", "read change log", err)
	}

	var entries []ChangeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, apperr.NewStorage("", "decode change log", err)
	}
	return entries, nil
}
