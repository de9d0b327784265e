package project

import (
	"os"
	"path/filepath"
	"testing"
)

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

func TestHasDriverDependency(t *testing.T) {
	tests := []struct {
		name    string
		pubspec string
		want    bool
	}{
		{
			name: "flutter_driver in dev_dependencies",
			pubspec: `name: demo_app
dev_dependencies:
  flutter_driver:
    sdk: flutter
  test: any
`,
			want: true,
		},
		{
			name: "integration_test in dev_dependencies",
			pubspec: `name: demo_app
dev_dependencies:
  integration_test:
    sdk: flutter
`,
			want: true,
		},
		{
			name: "driver declared under dependencies",
			pubspec: `name: demo_app
dependencies:
  flutter_driver:
    sdk: flutter
`,
			want: true,
		},
		{
			name: "no driver package",
			pubspec: `name: demo_app
dependencies:
  http: ^1.0.0
dev_dependencies:
  test: any
`,
			want: false,
		},
		{
			name:    "unparseable pubspec",
			pubspec: "dependencies: [not: a: map",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, root, "pubspec.yaml", tt.pubspec)
			if got := HasDriverDependency(root); got != tt.want {
				t.Errorf("HasDriverDependency() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasDriverDependency_NoPubspec(t *testing.T) {
	if HasDriverDependency(t.TempDir()) {
		t.Error("a directory without pubspec.yaml has no driver dependency")
	}
}

func TestHasTestEntrypoint(t *testing.T) {
	t.Run("driver extension in test_driver", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "test_driver/main.dart", `import 'package:flutter_driver/driver_extension.dart';
import 'package:demo_app/main.dart' as app;

void main() {
  enableFlutterDriverExtension();
  app.main();
}
`)
		if !HasTestEntrypoint(root) {
			t.Error("driver extension entrypoint not detected")
		}
	})

	t.Run("integration binding in nested file", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "integration_test/flows/login_test.dart", `void main() {
  IntegrationTestWidgetsFlutterBinding.ensureInitialized();
}
`)
		if !HasTestEntrypoint(root) {
			t.Error("integration binding entrypoint not detected")
		}
	})

	t.Run("entry dirs without markers", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "test_driver/main.dart", "void main() {}\n")
		writeFile(t, root, "integration_test/app_test.dart", "void main() {}\n")
		if HasTestEntrypoint(root) {
			t.Error("files without initialization markers must not count")
		}
	})

	t.Run("marker outside entry dirs", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "lib/main.dart", "enableFlutterDriverExtension();\n")
		if HasTestEntrypoint(root) {
			t.Error("only test entry directories are searched")
		}
	})

	t.Run("no entry dirs at all", func(t *testing.T) {
		if HasTestEntrypoint(t.TempDir()) {
			t.Error("empty project has no entrypoint")
		}
	})
}
