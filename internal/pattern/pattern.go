// Package pattern extracts automation-key usages from raw source text.
//
// Matching is deliberately tolerant: the recognized call shapes are found by
// regular expressions over the file contents rather than by a grammar-level
// parser, so malformed regions of a file never abort the rest of the scan.
package pattern

import "strconv"

// Kind classifies how an automation key appears at a usage site.
type Kind string

const (
	// KindLiteral is a key wrapper call with a quoted literal argument.
	KindLiteral Kind = "literal-declaration"
	// KindFinder is a test finder call with a quoted literal argument.
	KindFinder Kind = "test-finder"
	// KindConstant is a symbolic registry reference resolved to its literal.
	KindConstant Kind = "resolved-constant"
	// KindDynamic is a registry key-generator call resolved to its prefix.
	KindDynamic Kind = "resolved-dynamic"
	// KindUnresolved is a symbolic reference with no registry entry; the
	// symbol name itself is used as the effective key.
	KindUnresolved Kind = "unresolved-symbolic"
)

// Usage is a single occurrence of an automation key in source code.
type Usage struct {
	// Value is the canonical key the usage contributes.
	Value string
	// Kind records the syntactic shape and resolution outcome.
	Kind Kind
	// File is the slash-normalized path relative to the scan root.
	File string
	// Line and Column are 1-based.
	Line   int
	Column int
	// Match is the raw matched text.
	Match string
	// Symbol is the registry member name for symbolic and dynamic usages.
	Symbol string
	// Snippet is the trimmed source line containing the usage.
	Snippet string
}

// Location renders the usage position as file:line.
func (u Usage) Location() string {
	if u.Line <= 0 {
		return u.File
	}
	return u.File + ":" + strconv.Itoa(u.Line)
}
