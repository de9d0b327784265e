// Package scanner discovers the Dart source files an audit run will scan.
package scanner

import (
	"os"
	"path/filepath"
	"strings"
)

// FileInfo describes one file selected for scanning.
type FileInfo struct {
	Path    string // absolute path
	RelPath string // slash-normalized path relative to the scan root
}

// Scanner handles file discovery and filtering.
type Scanner struct {
	excludeDirs  map[string]bool // directory names to skip (e.g. ".dart_tool")
	excludePaths []string        // path prefixes to skip (e.g. "lib/generated")
	excludeGlobs []string
	includeGlobs []string
}

// NewScanner creates a scanner with the default exclusions for Flutter
// project trees.
func NewScanner() *Scanner {
	return &Scanner{
		excludeDirs: map[string]bool{
			".git":         true,
			".dart_tool":   true,
			".idea":        true,
			"build":        true,
			"ios":          true,
			"android":      true,
			"macos":        true,
			"windows":      true,
			"linux":        true,
			"web":          true,
			"node_modules": true,
		},
	}
}

// SetExcludeGlobs sets glob patterns to exclude.
func (s *Scanner) SetExcludeGlobs(globs []string) {
	s.excludeGlobs = globs
}

// SetIncludeGlobs sets glob patterns to include (overrides excludes).
func (s *Scanner) SetIncludeGlobs(globs []string) {
	s.includeGlobs = globs
}

// AddExcludeDirs adds directories to exclude from scanning. Entries with a
// path separator are treated as path prefixes relative to the scan root,
// bare entries as directory names.
func (s *Scanner) AddExcludeDirs(dirs []string) {
	for _, dir := range dirs {
		if strings.Contains(dir, "/") || strings.Contains(dir, "\\") {
			s.excludePaths = append(s.excludePaths, dir)
		} else {
			s.excludeDirs[dir] = true
		}
	}
}

// matchesGlob checks if a path matches any of the glob patterns.
func matchesGlob(path string, globs []string) bool {
	for _, glob := range globs {
		matched, _ := filepath.Match(glob, filepath.Base(path))
		if matched {
			return true
		}
		// Also try matching against the full path.
		matched, _ = filepath.Match(glob, path)
		if matched {
			return true
		}
	}
	return false
}

// shouldInclude checks a file against the include/exclude globs.
func (s *Scanner) shouldInclude(path string) bool {
	if len(s.includeGlobs) > 0 {
		return matchesGlob(path, s.includeGlobs)
	}
	if len(s.excludeGlobs) > 0 {
		return !matchesGlob(path, s.excludeGlobs)
	}
	return true
}

// isExcludedPath checks whether a relative path falls under an excluded
// path prefix. Patterns like "lib/generated/*" are supported.
func (s *Scanner) isExcludedPath(relPath string) bool {
	rel := filepath.ToSlash(relPath)
	for _, excluded := range s.excludePaths {
		prefix := strings.TrimSuffix(filepath.ToSlash(excluded), "/*")
		if rel == prefix || strings.HasPrefix(rel, prefix+"/") {
			return true
		}
	}
	return false
}

// Scan recursively walks rootPath and returns the Dart files to scan.
func (s *Scanner) Scan(rootPath string) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if path != rootPath && s.excludeDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.HasSuffix(path, ".dart") {
			return nil
		}

		relPath := path
		if rel, err := filepath.Rel(rootPath, path); err == nil {
			relPath = rel
		}
		if s.isExcludedPath(relPath) {
			return nil
		}
		if !s.shouldInclude(path) {
			return nil
		}

		files = append(files, FileInfo{
			Path:    path,
			RelPath: filepath.ToSlash(relPath),
		})
		return nil
	})

	return files, err
}
