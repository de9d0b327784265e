package baseline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New([]string{"login_button", "email_field"}, now)

	if s.CreatedAt != now || s.UpdatedAt != now {
		t.Errorf("timestamps = %v/%v, want %v", s.CreatedAt, s.UpdatedAt, now)
	}
	if len(s.Keys) != 2 {
		t.Fatalf("Keys = %v, want 2 entries", s.Keys)
	}
	if s.Keys["login_button"] != now {
		t.Errorf("login_button last seen = %v, want %v", s.Keys["login_button"], now)
	}
}

func TestTouch(t *testing.T) {
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	later := created.Add(10 * 24 * time.Hour)

	s := New([]string{"stays", "vanishes"}, created)
	s.Touch([]string{"stays", "appears"}, later)

	if s.Keys["stays"] != later {
		t.Errorf("stays last seen = %v, want refreshed to %v", s.Keys["stays"], later)
	}
	if s.Keys["appears"] != later {
		t.Errorf("appears last seen = %v, want %v", s.Keys["appears"], later)
	}
	// An untouched key keeps its old timestamp so the grace window keeps
	// counting against it.
	if s.Keys["vanishes"] != created {
		t.Errorf("vanishes last seen = %v, want unchanged %v", s.Keys["vanishes"], created)
	}
	if s.UpdatedAt != later || s.CreatedAt != created {
		t.Errorf("timestamps = %v/%v, want %v/%v", s.CreatedAt, s.UpdatedAt, created, later)
	}
}

func TestSaveLoad(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "baseline.json")

	s := New([]string{"login_button"}, now)
	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil for an existing file")
	}
	if !loaded.Keys["login_button"].Equal(now) {
		t.Errorf("loaded last seen = %v, want %v", loaded.Keys["login_button"], now)
	}
	if !loaded.CreatedAt.Equal(now) {
		t.Errorf("loaded CreatedAt = %v, want %v", loaded.CreatedAt, now)
	}
}

func TestLoad_Missing(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s != nil {
		t.Errorf("Load(missing) = %+v, want nil", s)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load on corrupt content should fail")
	}
}

func TestSave_ReplacesExisting(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "baseline.json")

	if err := New([]string{"old_key"}, now).Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := New([]string{"new_key"}, now).Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := loaded.Keys["old_key"]; ok {
		t.Error("old snapshot content survived the overwrite")
	}
	if _, ok := loaded.Keys["new_key"]; !ok {
		t.Error("new snapshot content missing after overwrite")
	}
}
