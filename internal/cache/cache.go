// Package cache stores per-file scan results keyed by content fingerprint.
// The cache is constructor-injected into a run; there is no process-wide
// instance. Unreadable, corrupt, or expired entries are plain misses
// rather than errors, and writes are all-or-nothing per entry.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jenian/keygrd/internal/pattern"
)

// Entry is one cached scan record.
type Entry struct {
	// Fingerprint is the key the entry was stored under, kept inside the
	// record so freshness can be validated on read.
	Fingerprint string          `json:"fingerprint"`
	Timestamp   time.Time       `json:"timestamp"`
	Usages      []pattern.Usage `json:"usages"`
}

// Service is the cache contract consumed by the engine.
type Service interface {
	Get(fingerprint string) (Entry, bool)
	Put(fingerprint string, e Entry) error
	Invalidate(fingerprint string)
}

// Fingerprint derives a cache key from file content plus any extra
// components the scan result depends on (the registry digest, notably).
func Fingerprint(content []byte, extra ...string) string {
	h := sha256.New()
	h.Write(content)
	for _, e := range extra {
		h.Write([]byte{0})
		h.Write([]byte(e))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Disk is a Service backed by one JSON file per entry.
type Disk struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time
}

// NewDisk creates a disk cache rooted at dir. Entries older than maxAge are
// treated as absent; maxAge <= 0 disables expiry.
func NewDisk(dir string, maxAge time.Duration) *Disk {
	return &Disk{dir: dir, maxAge: maxAge, now: time.Now}
}

func (d *Disk) entryPath(fingerprint string) string {
	return filepath.Join(d.dir, fingerprint+".json")
}

// Get returns the entry for fingerprint, or a miss when the entry is
// absent, corrupt, stale, or stored under a different fingerprint.
func (d *Disk) Get(fingerprint string) (Entry, bool) {
	data, err := os.ReadFile(d.entryPath(fingerprint))
	if err != nil {
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// Corrupt entry: drop it so the next run does not retry the parse.
		d.Invalidate(fingerprint)
		return Entry{}, false
	}
	if e.Fingerprint != fingerprint {
		d.Invalidate(fingerprint)
		return Entry{}, false
	}
	if d.maxAge > 0 && d.now().Sub(e.Timestamp) > d.maxAge {
		d.Invalidate(fingerprint)
		return Entry{}, false
	}
	return e, true
}

// Put stores an entry atomically via temp file and rename.
func (d *Disk) Put(fingerprint string, e Entry) error {
	e.Fingerprint = fingerprint
	if e.Timestamp.IsZero() {
		e.Timestamp = d.now()
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cache write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache write: %w", err)
	}
	if err := os.Rename(tmpName, d.entryPath(fingerprint)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// Invalidate removes an entry if present.
func (d *Disk) Invalidate(fingerprint string) {
	os.Remove(d.entryPath(fingerprint))
}

// Null is a Service that caches nothing. Used when caching is disabled.
type Null struct{}

func (Null) Get(string) (Entry, bool) { return Entry{}, false }
func (Null) Put(string, Entry) error  { return nil }
func (Null) Invalidate(string)        {}
