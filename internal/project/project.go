// Package project inspects a Flutter project for the preconditions that
// make automation keys reachable by test tooling: the driver dependency in
// pubspec.yaml and an initialized test entrypoint.
package project

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// driverPackages are the dev dependencies that give tests access to
// automation keys.
var driverPackages = []string{"flutter_driver", "integration_test"}

// entrypointMarkers indicate an initialized driver/integration test entry.
var entrypointMarkers = []string{
	"enableFlutterDriverExtension",
	"IntegrationTestWidgetsFlutterBinding.ensureInitialized",
}

// entrypointDirs are searched for test entry files.
var entrypointDirs = []string{"test_driver", "integration_test"}

type pubspec struct {
	Dependencies    map[string]yaml.Node `yaml:"dependencies"`
	DevDependencies map[string]yaml.Node `yaml:"dev_dependencies"`
}

// HasDriverDependency reports whether the project declares a test-driver
// package in pubspec.yaml. An unreadable or absent pubspec counts as false.
func HasDriverDependency(root string) bool {
	data, err := os.ReadFile(filepath.Join(root, "pubspec.yaml"))
	if err != nil {
		return false
	}

	var p pubspec
	if err := yaml.Unmarshal(data, &p); err != nil {
		return false
	}

	for _, pkg := range driverPackages {
		if _, ok := p.DevDependencies[pkg]; ok {
			return true
		}
		if _, ok := p.Dependencies[pkg]; ok {
			return true
		}
	}
	return false
}

// HasTestEntrypoint reports whether any Dart file under the test entry
// directories initializes the driver extension or integration binding.
func HasTestEntrypoint(root string) bool {
	for _, dir := range entrypointDirs {
		found := false
		filepath.Walk(filepath.Join(root, dir), func(path string, info os.FileInfo, err error) error {
			if err != nil || found {
				return nil
			}
			if info.IsDir() || !strings.HasSuffix(path, ".dart") {
				return nil
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			for _, marker := range entrypointMarkers {
				if strings.Contains(string(src), marker) {
					found = true
					return filepath.SkipAll
				}
			}
			return nil
		})
		if found {
			return true
		}
	}
	return false
}
