// Package filter narrows key sets with include-only and exclude pattern
// lists. Each pattern is interpreted as a regular expression when it
// compiles and as a case-sensitive substring otherwise; the two-stage
// interpretation is tried per pattern, never decided globally.
package filter

import (
	"regexp"
	"strings"
)

// matcher reports whether a key matches one pattern.
type matcher func(key string) bool

func compile(pattern string) matcher {
	re, err := regexp.Compile(pattern)
	if err != nil {
		// Not a valid expression: fall back to substring containment.
		return func(key string) bool { return strings.Contains(key, pattern) }
	}
	return re.MatchString
}

func compileAll(patterns []string) []matcher {
	matchers := make([]matcher, 0, len(patterns))
	for _, pattern := range patterns {
		matchers = append(matchers, compile(pattern))
	}
	return matchers
}

func matchesAny(key string, matchers []matcher) bool {
	for _, match := range matchers {
		if match(key) {
			return true
		}
	}
	return false
}

// keep applies the include-then-exclude rule for a single key. An empty
// include list means no narrowing; exclusion always runs after inclusion.
func keep(key string, include, exclude []matcher) bool {
	if len(include) > 0 && !matchesAny(key, include) {
		return false
	}
	return !matchesAny(key, exclude)
}

// Keys filters a flat key list, preserving input order.
func Keys(keys []string, includeOnly, exclude []string) []string {
	include := compileAll(includeOnly)
	excl := compileAll(exclude)

	filtered := make([]string, 0, len(keys))
	for _, key := range keys {
		if keep(key, include, excl) {
			filtered = append(filtered, key)
		}
	}
	return filtered
}

// Map filters a keyed map on its keys only, preserving associated values.
func Map[V any](m map[string]V, includeOnly, exclude []string) map[string]V {
	include := compileAll(includeOnly)
	excl := compileAll(exclude)

	filtered := make(map[string]V, len(m))
	for key, value := range m {
		if keep(key, include, excl) {
			filtered[key] = value
		}
	}
	return filtered
}
