package registry

import (
	"os"
	"path/filepath"
	"testing"
)

const registrySource = `import 'package:flutter/widgets.dart';

/// Central catalogue of automation keys used by driver tests.
class AutomationKeys {
  static const String loginButton = 'login_button';
  static const String emailField = "email_field";
  static final String legacyBanner = 'legacy_banner';
  submitAction = 'submit_action';

  static String itemTileKey(int index) => 'item_tile_$index';
  static String sectionKey(String name) {
    return 'section_${name}_panel';
  }
}
`

func TestParse_Constants(t *testing.T) {
	reg := Parse("lib/automation_keys.dart", []byte(registrySource))

	tests := []struct {
		name  string
		want  string
		found bool
	}{
		{"loginButton", "login_button", true},
		{"emailField", "email_field", true},
		{"legacyBanner", "legacy_banner", true},
		{"submitAction", "submit_action", true},
		{"missing", "", false},
	}
	for _, tt := range tests {
		got, ok := reg.ResolveConstant(tt.name)
		if ok != tt.found || got != tt.want {
			t.Errorf("ResolveConstant(%q) = %q,%v, want %q,%v", tt.name, got, ok, tt.want, tt.found)
		}
	}
}

func TestParse_DynamicMethods(t *testing.T) {
	reg := Parse("lib/automation_keys.dart", []byte(registrySource))

	tests := []struct {
		name  string
		want  string
		found bool
	}{
		// Only the literal prefix up to the first interpolation survives.
		{"itemTileKey", "item_tile_", true},
		{"sectionKey", "section_", true},
		{"loginButton", "", false},
	}
	for _, tt := range tests {
		got, ok := reg.ResolveDynamic(tt.name)
		if ok != tt.found || got != tt.want {
			t.Errorf("ResolveDynamic(%q) = %q,%v, want %q,%v", tt.name, got, ok, tt.want, tt.found)
		}
	}

	// A dynamic generator must not double as a constant.
	if _, ok := reg.ResolveConstant("itemTileKey"); ok {
		t.Error("itemTileKey should not resolve as a constant")
	}
}

func TestResolve_Idempotent(t *testing.T) {
	reg := Parse("lib/automation_keys.dart", []byte(registrySource))

	first, ok1 := reg.ResolveConstant("loginButton")
	second, ok2 := reg.ResolveConstant("loginButton")
	if first != second || ok1 != ok2 {
		t.Errorf("repeated lookups differ: %q,%v vs %q,%v", first, ok1, second, ok2)
	}
}

func TestBuild_NoRegistry(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "main.dart")
	if err := os.WriteFile(path, []byte("void main() {}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg, warnings := NewBuilder().Build(tmpDir, []string{path})
	if !reg.Empty() {
		t.Errorf("expected empty registry, got %+v", reg)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %v", warnings)
	}
	if _, ok := reg.ResolveConstant("anything"); ok {
		t.Error("empty registry should resolve nothing")
	}
}

func TestBuild_FirstCandidateWins(t *testing.T) {
	tmpDir := t.TempDir()

	// Two registry declarations; the lexicographically first relative path
	// must win and the other must be reported.
	writeFile(t, tmpDir, "lib/b_keys.dart", `class AutomationKeys {
  static const String fromB = 'from_b';
}`)
	writeFile(t, tmpDir, "lib/a_keys.dart", `class AutomationKeys {
  static const String fromA = 'from_a';
}`)

	paths := []string{
		filepath.Join(tmpDir, "lib/b_keys.dart"),
		filepath.Join(tmpDir, "lib/a_keys.dart"),
	}
	reg, warnings := NewBuilder().Build(tmpDir, paths)

	if reg.Path != "lib/a_keys.dart" {
		t.Errorf("registry path = %q, want lib/a_keys.dart", reg.Path)
	}
	if _, ok := reg.ResolveConstant("fromA"); !ok {
		t.Error("fromA should resolve from the winning registry")
	}
	if _, ok := reg.ResolveConstant("fromB"); ok {
		t.Error("fromB should not resolve; its file lost the tie-break")
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
}

func TestBuild_CustomClassName(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, tmpDir, "lib/keys.dart", `class TestIds {
  static const String home = 'home_screen';
}`)

	builder := NewBuilder()
	builder.SetClassNames([]string{"TestIds"})
	reg, _ := builder.Build(tmpDir, []string{filepath.Join(tmpDir, "lib/keys.dart")})

	if got, ok := reg.ResolveConstant("home"); !ok || got != "home_screen" {
		t.Errorf("ResolveConstant(home) = %q,%v, want home_screen,true", got, ok)
	}
}

func TestFingerprint_Stable(t *testing.T) {
	a := Parse("lib/keys.dart", []byte(registrySource))
	b := Parse("lib/keys.dart", []byte(registrySource))
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical registries should share a fingerprint")
	}

	c := Parse("lib/keys.dart", []byte(`class AutomationKeys { x = 'y'; }`))
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("different registries should not share a fingerprint")
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
