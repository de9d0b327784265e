package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jenian/keygrd/internal/pattern"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("content"))
	b := Fingerprint([]byte("content"))
	if a != b {
		t.Error("identical content should share a fingerprint")
	}
	if a == Fingerprint([]byte("other")) {
		t.Error("different content should not share a fingerprint")
	}

	// Extra components are separated, not concatenated, so that boundary
	// shifts cannot collide.
	if Fingerprint([]byte("ab"), "c") == Fingerprint([]byte("a"), "bc") {
		t.Error("component boundaries must be part of the key")
	}
	if a == Fingerprint([]byte("content"), "registry-digest") {
		t.Error("extra components must change the fingerprint")
	}
}

func TestDisk_RoundTrip(t *testing.T) {
	d := NewDisk(t.TempDir(), time.Hour)
	fp := Fingerprint([]byte("void main() {}"))

	if _, ok := d.Get(fp); ok {
		t.Fatal("empty cache should miss")
	}

	entry := Entry{Usages: []pattern.Usage{{
		Value: "login_button",
		Kind:  pattern.KindLiteral,
		File:  "lib/main.dart",
		Line:  12,
	}}}
	if err := d.Put(fp, entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := d.Get(fp)
	if !ok {
		t.Fatal("stored entry should hit")
	}
	if diff := cmp.Diff(entry.Usages, got.Usages); diff != "" {
		t.Errorf("Usages mismatch (-want +got):\n%s", diff)
	}
	if got.Fingerprint != fp {
		t.Errorf("Fingerprint = %q, want %q", got.Fingerprint, fp)
	}
	if got.Timestamp.IsZero() {
		t.Error("Put should stamp the entry")
	}
}

func TestDisk_Expiry(t *testing.T) {
	d := NewDisk(t.TempDir(), time.Hour)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	fp := Fingerprint([]byte("content"))
	if err := d.Put(fp, Entry{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := d.Get(fp); !ok {
		t.Fatal("fresh entry should hit")
	}

	now = now.Add(2 * time.Hour)
	if _, ok := d.Get(fp); ok {
		t.Error("stale entry should miss")
	}
	// The stale file is dropped, not just skipped.
	if _, err := os.Stat(d.entryPath(fp)); !os.IsNotExist(err) {
		t.Error("stale entry should be removed from disk")
	}
}

func TestDisk_NoExpiry(t *testing.T) {
	d := NewDisk(t.TempDir(), 0)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	fp := Fingerprint([]byte("content"))
	if err := d.Put(fp, Entry{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	now = now.Add(1000 * time.Hour)
	if _, ok := d.Get(fp); !ok {
		t.Error("expiry disabled: old entries should still hit")
	}
}

func TestDisk_CorruptEntryIsMiss(t *testing.T) {
	dir := t.TempDir()
	d := NewDisk(dir, 0)
	fp := Fingerprint([]byte("content"))

	if err := os.WriteFile(filepath.Join(dir, fp+".json"), []byte("{truncated"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := d.Get(fp); ok {
		t.Error("corrupt entry should miss")
	}
	if _, err := os.Stat(filepath.Join(dir, fp+".json")); !os.IsNotExist(err) {
		t.Error("corrupt entry should be removed")
	}
}

func TestDisk_MismatchedFingerprintIsMiss(t *testing.T) {
	d := NewDisk(t.TempDir(), 0)
	fp := Fingerprint([]byte("content"))
	other := Fingerprint([]byte("other"))

	if err := d.Put(fp, Entry{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Simulate a renamed or copied entry file.
	if err := os.Rename(d.entryPath(fp), d.entryPath(other)); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, ok := d.Get(other); ok {
		t.Error("entry stored under a different fingerprint should miss")
	}
}

func TestDisk_PutCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	d := NewDisk(dir, 0)
	if err := d.Put(Fingerprint([]byte("x")), Entry{}); err != nil {
		t.Fatalf("Put into a missing directory: %v", err)
	}
}

func TestNull(t *testing.T) {
	var n Null
	if err := n.Put("fp", Entry{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := n.Get("fp"); ok {
		t.Error("null cache must always miss")
	}
	n.Invalidate("fp")
}
