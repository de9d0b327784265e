package pattern

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/jenian/keygrd/internal/registry"
)

// DefaultWrapperNames are the key wrapper constructors recognized by the
// literal and symbolic shapes.
var DefaultWrapperNames = []string{"Key", "ValueKey", "ObjectKey", "PageStorageKey"}

// finderNames are the test finder methods recognized by the finder shape.
var finderNames = []string{"byValueKey", "bySemanticsLabel", "byTooltip"}

// quoted matches a single- or double-quoted literal, stopping at the first
// unescaped terminator. Newlines are excluded so an unterminated quote
// never swallows the rest of the file. Group 1 carries single-quoted
// content, group 2 double-quoted.
const quoted = "(?:'((?:[^'\\\\\\n]|\\\\.)*)'|\"((?:[^\"\\\\\\n]|\\\\.)*)\")"

// shape is one recognized syntactic form. Shapes live in a fixed table on
// the scanner; adding a form means adding a table entry, not new branching.
type shape struct {
	name    string
	re      *regexp.Regexp
	extract func(s *Scanner, src []byte, m []int) (Usage, bool)
}

// Scanner finds automation-key usages in source text. A scanner is immutable
// after construction: Scan holds no state between files and returns the same
// result for the same input every time.
type Scanner struct {
	shapes []shape
	reg    *registry.Registry
}

// Option configures a Scanner.
type Option func(*options)

type options struct {
	wrappers []string
	classes  []string
	registry *registry.Registry
}

// WithWrapperNames overrides the recognized key wrapper names.
func WithWrapperNames(names []string) Option {
	return func(o *options) {
		if len(names) > 0 {
			o.wrappers = names
		}
	}
}

// WithRegistryClasses overrides the recognized registry class names.
func WithRegistryClasses(names []string) Option {
	return func(o *options) {
		if len(names) > 0 {
			o.classes = names
		}
	}
}

// WithRegistry supplies the symbol table used to resolve symbolic and
// dynamic usages. Without one, every symbolic reference falls back to its
// own symbol name.
func WithRegistry(reg *registry.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// NewScanner creates a scanner with the given options.
func NewScanner(opts ...Option) *Scanner {
	o := &options{
		wrappers: DefaultWrapperNames,
		classes:  registry.DefaultClassNames,
	}
	for _, opt := range opts {
		opt(o)
	}

	wrappers := alternation(o.wrappers)
	classes := alternation(o.classes)
	finders := alternation(finderNames)

	s := &Scanner{reg: o.registry}
	s.shapes = []shape{
		{
			name: "literal",
			// Optional const prefix, wrapper call, quoted literal.
			re:      regexp.MustCompile(`(?:\bconst\s+)?\b(?:` + wrappers + `)\s*\(\s*` + quoted),
			extract: extractLiteral(KindLiteral),
		},
		{
			name:    "finder",
			re:      regexp.MustCompile(`\bfind\s*\.\s*(?:` + finders + `)\s*\(\s*` + quoted),
			extract: extractLiteral(KindFinder),
		},
		{
			name: "symbolic",
			// Wrapper call whose argument is a dotted registry reference.
			// The trailing group rejects generator calls, which the dynamic
			// shape owns.
			re:      regexp.MustCompile(`\b(?:` + wrappers + `)\s*\(\s*(?:` + classes + `)\s*\.\s*([A-Za-z_][A-Za-z0-9_]*)\s*(\()?`),
			extract: extractSymbolic,
		},
		{
			name: "dynamic",
			// Direct call into the registry; the Key suffix is the naming
			// convention for key generators.
			re:      regexp.MustCompile(`\b(?:` + classes + `)\s*\.\s*([A-Za-z_][A-Za-z0-9_]*Key)\s*\(`),
			extract: extractDynamic,
		},
	}
	return s
}

// alternation builds a regex alternation, longest names first so a shorter
// name never shadows a longer one.
func alternation(names []string) string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	quotedNames := make([]string, len(sorted))
	for i, name := range sorted {
		quotedNames[i] = regexp.QuoteMeta(name)
	}
	return strings.Join(quotedNames, "|")
}

func extractLiteral(kind Kind) func(s *Scanner, src []byte, m []int) (Usage, bool) {
	return func(_ *Scanner, src []byte, m []int) (Usage, bool) {
		value := submatch(src, m, 1)
		if value == "" {
			value = submatch(src, m, 2)
		}
		if value == "" {
			return Usage{}, false
		}
		return Usage{Value: value, Kind: kind}, true
	}
}

func extractSymbolic(s *Scanner, src []byte, m []int) (Usage, bool) {
	// A generator call inside the wrapper belongs to the dynamic shape.
	if m[4] >= 0 {
		return Usage{}, false
	}
	symbol := submatch(src, m, 1)
	if symbol == "" {
		return Usage{}, false
	}
	if value, ok := s.reg.ResolveConstant(symbol); ok {
		return Usage{Value: value, Kind: KindConstant, Symbol: symbol}, true
	}
	// No registry entry: the symbol name itself is the effective key.
	return Usage{Value: symbol, Kind: KindUnresolved, Symbol: symbol}, true
}

func extractDynamic(s *Scanner, src []byte, m []int) (Usage, bool) {
	symbol := submatch(src, m, 1)
	if symbol == "" {
		return Usage{}, false
	}
	if prefix, ok := s.reg.ResolveDynamic(symbol); ok {
		return Usage{Value: prefix, Kind: KindDynamic, Symbol: symbol}, true
	}
	return Usage{Value: symbol, Kind: KindUnresolved, Symbol: symbol}, true
}

func submatch(src []byte, m []int, group int) string {
	start, end := m[2*group], m[2*group+1]
	if start < 0 {
		return ""
	}
	return string(src[start:end])
}

// Scan extracts all key usages from src. relPath is recorded on each usage
// as-is. The scan is pure: calling it repeatedly with the same input yields
// the same usages in the same order.
func (s *Scanner) Scan(relPath string, src []byte) []Usage {
	lines := newLineIndex(src)

	var usages []Usage
	seen := make(map[int]bool)

	for _, sh := range s.shapes {
		for _, m := range sh.re.FindAllSubmatchIndex(src, -1) {
			usage, ok := sh.extract(s, src, m)
			if !ok {
				continue
			}
			// One usage per syntactic occurrence: a site already claimed by
			// an earlier shape is not reported again.
			if seen[m[0]] {
				continue
			}
			seen[m[0]] = true

			usage.File = relPath
			usage.Line, usage.Column = lines.position(m[0])
			usage.Match = string(src[m[0]:m[1]])
			usage.Snippet = lines.snippet(m[0])
			usages = append(usages, usage)
		}
	}

	// Shape tables run one at a time, so restore document order.
	sort.SliceStable(usages, func(i, j int) bool {
		if usages[i].Line != usages[j].Line {
			return usages[i].Line < usages[j].Line
		}
		return usages[i].Column < usages[j].Column
	})
	return usages
}

// ScanFile reads and scans a single file. scanRoot is used to compute the
// relative path recorded on each usage. Read failures are returned so the
// caller can record a per-file warning; they never abort a whole run.
func (s *Scanner) ScanFile(path string, scanRoot string) ([]Usage, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s.Scan(RelPath(scanRoot, path), src), nil
}

// RelPath returns path relative to root, slash-normalized, falling back to
// the input path when no relative form exists.
func RelPath(root, path string) string {
	if root == "" {
		return filepath.ToSlash(path)
	}
	absRoot, err1 := filepath.Abs(root)
	absPath, err2 := filepath.Abs(path)
	if err1 == nil && err2 == nil {
		if rel, err := filepath.Rel(absRoot, absPath); err == nil && rel != "" {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}

// lineIndex maps byte offsets to line/column positions.
type lineIndex struct {
	src    []byte
	starts []int
}

func newLineIndex(src []byte) *lineIndex {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{src: src, starts: starts}
}

func (l *lineIndex) position(offset int) (line, column int) {
	i := sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset }) - 1
	return i + 1, offset - l.starts[i] + 1
}

func (l *lineIndex) snippet(offset int) string {
	i := sort.Search(len(l.starts), func(i int) bool { return l.starts[i] > offset }) - 1
	start := l.starts[i]
	end := len(l.src)
	if i+1 < len(l.starts) {
		end = l.starts[i+1] - 1
	}
	return strings.TrimSpace(string(l.src[start:end]))
}
