// Package baseline persists the evolving key snapshot used by the
// progressive validation policy.
package baseline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot records every key seen in previous runs with the time it was
// last observed. Additions are always allowed; a key that disappears is
// tolerated until its last-seen time falls outside the grace window.
type Snapshot struct {
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
	Keys      map[string]time.Time `json:"keys"`
}

// New creates a snapshot containing the given keys, all seen now.
func New(keys []string, now time.Time) *Snapshot {
	s := &Snapshot{
		CreatedAt: now,
		UpdatedAt: now,
		Keys:      make(map[string]time.Time, len(keys)),
	}
	for _, key := range keys {
		s.Keys[key] = now
	}
	return s
}

// Load reads a snapshot from disk. A missing file returns (nil, nil) so the
// caller can decide whether a baseline is required.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read baseline %s: %w", path, err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse baseline %s: %w", path, err)
	}
	if s.Keys == nil {
		s.Keys = make(map[string]time.Time)
	}
	return &s, nil
}

// Touch refreshes the last-seen time for the given keys, adding any that
// are new. Keys absent from the list keep their previous timestamps so the
// grace window keeps counting for them.
func (s *Snapshot) Touch(keys []string, now time.Time) {
	if s.Keys == nil {
		s.Keys = make(map[string]time.Time, len(keys))
	}
	for _, key := range keys {
		s.Keys[key] = now
	}
	s.UpdatedAt = now
}

// Save writes the snapshot atomically: a partially written file never
// replaces a valid one.
func (s *Snapshot) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write baseline: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write baseline: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write baseline: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write baseline: %w", err)
	}
	return nil
}
