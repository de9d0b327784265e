// Package registry locates and parses the centralized automation-key
// constants class so symbolic references in code can be resolved to their
// literal key values.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// DefaultClassNames are the class names recognized as a constants registry.
var DefaultClassNames = []string{"AutomationKeys"}

// Registry holds the symbol table extracted from the constants class.
// It is built once per run and read-only afterwards.
type Registry struct {
	// Path is the registry source file, relative to the scan root.
	Path string
	// Constants maps member names to their literal key values.
	Constants map[string]string
	// DynamicMethods maps key-generator method names to the literal
	// prefix their result starts with.
	DynamicMethods map[string]string
}

// Builder locates and parses a constants registry in a source tree.
type Builder struct {
	classNames []string
	markers    []*regexp.Regexp
}

// NewBuilder creates a builder recognizing the default registry class names.
func NewBuilder() *Builder {
	b := &Builder{}
	b.SetClassNames(DefaultClassNames)
	return b
}

// SetClassNames overrides the class names recognized as a registry.
func (b *Builder) SetClassNames(names []string) {
	b.classNames = nil
	b.markers = nil
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		b.classNames = append(b.classNames, name)
		b.markers = append(b.markers, regexp.MustCompile(`\bclass\s+`+regexp.QuoteMeta(name)+`\b`))
	}
}

// ClassNames returns the class names the builder recognizes.
func (b *Builder) ClassNames() []string {
	return b.classNames
}

// quoted matches a single- or double-quoted string literal on one line,
// honoring escaped quote characters up to the first unescaped terminator.
const quoted = "(?:'((?:[^'\\\\\\n]|\\\\.)*)'|\"((?:[^\"\\\\\\n]|\\\\.)*)\")"

var (
	constantRe = regexp.MustCompile(
		`(?m)^\s*(?:static\s+)?(?:const\s+)?(?:final\s+)?(?:String\??\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*=\s*` + quoted + `\s*;`)
	dynamicRe = regexp.MustCompile(
		`(?m)^\s*(?:static\s+)?(?:String\??\s+)?([A-Za-z_][A-Za-z0-9_]*Key)\s*\([^)]*\)\s*(?:=>|\{)\s*(?:return\s+)?` + quoted)
)

// Build scans the given files (absolute paths under root) for a registry
// class declaration and parses the first match. Candidates are ordered by
// their slash-normalized relative path so the tie-break is deterministic;
// additional candidates are reported as warnings. A tree without a registry
// yields an empty registry, not an error.
func (b *Builder) Build(root string, paths []string) (*Registry, []string) {
	type candidate struct {
		rel string
		abs string
	}
	var candidates []candidate
	var warnings []string

	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("registry search: cannot read %s: %v", path, err))
			continue
		}
		if !b.hasMarker(src) {
			continue
		}
		rel := path
		if r, err := filepath.Rel(root, path); err == nil && r != "" {
			rel = r
		}
		candidates = append(candidates, candidate{rel: filepath.ToSlash(rel), abs: path})
	}

	if len(candidates) == 0 {
		return emptyRegistry(), warnings
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].rel < candidates[j].rel })
	for _, extra := range candidates[1:] {
		warnings = append(warnings, fmt.Sprintf("ignoring additional registry declaration in %s (using %s)", extra.rel, candidates[0].rel))
	}

	src, err := os.ReadFile(candidates[0].abs)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("registry: cannot read %s: %v", candidates[0].rel, err))
		return emptyRegistry(), warnings
	}

	reg := Parse(candidates[0].rel, src)
	return reg, warnings
}

func (b *Builder) hasMarker(src []byte) bool {
	for _, marker := range b.markers {
		if marker.Match(src) {
			return true
		}
	}
	return false
}

// Parse extracts the symbol table from registry source text.
func Parse(relPath string, src []byte) *Registry {
	reg := emptyRegistry()
	reg.Path = relPath
	text := string(src)

	// Dynamic key generators first, so a generator's name is never also
	// captured as a plain constant.
	for _, m := range dynamicRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		literal := m[2]
		if literal == "" {
			literal = m[3]
		}
		reg.DynamicMethods[name] = prefixBeforeInterpolation(literal)
	}

	for _, m := range constantRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if _, isDynamic := reg.DynamicMethods[name]; isDynamic {
			continue
		}
		value := m[2]
		if value == "" && m[3] != "" {
			value = m[3]
		}
		reg.Constants[name] = value
	}

	return reg
}

func emptyRegistry() *Registry {
	return &Registry{
		Constants:      make(map[string]string),
		DynamicMethods: make(map[string]string),
	}
}

// prefixBeforeInterpolation cuts a literal at the first unescaped
// interpolation boundary.
func prefixBeforeInterpolation(literal string) string {
	for i := 0; i < len(literal); i++ {
		switch literal[i] {
		case '\\':
			i++
		case '$':
			return literal[:i]
		}
	}
	return literal
}

// ResolveConstant looks up the literal value of a registry constant.
func (r *Registry) ResolveConstant(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	value, ok := r.Constants[name]
	return value, ok
}

// ResolveDynamic looks up the base prefix of a dynamic key generator.
func (r *Registry) ResolveDynamic(name string) (string, bool) {
	if r == nil {
		return "", false
	}
	prefix, ok := r.DynamicMethods[name]
	return prefix, ok
}

// Empty reports whether the registry holds no symbols at all.
func (r *Registry) Empty() bool {
	return r == nil || (len(r.Constants) == 0 && len(r.DynamicMethods) == 0)
}

// Fingerprint returns a stable digest of the registry contents. Cached scan
// results depend on how symbols resolve, so this digest is folded into
// per-file cache keys.
func (r *Registry) Fingerprint() string {
	h := sha256.New()
	if r != nil {
		fmt.Fprintf(h, "path=%s\n", r.Path)
		writeSorted(h, "const", r.Constants)
		writeSorted(h, "dynamic", r.DynamicMethods)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeSorted(h io.Writer, label string, m map[string]string) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(h, "%s %s=%s\n", label, name, m[name])
	}
}
