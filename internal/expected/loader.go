// Package expected loads declarative key lists: the expected-key universe
// and the optional tracked-key subset.
package expected

import (
	"errors"
	"fmt"
	"os"
)

// ErrMalformed reports an expected-key source that exists but cannot be
// parsed. Callers treat it as a configuration error and abort before
// scanning.
var ErrMalformed = errors.New("malformed key source")

// Load reads a key list from path. The format is detected from the file
// name: YAML (flat list or category map), JSON (array or category object),
// or plain text (one key per line). Category groupings are cosmetic and
// carry no semantic weight; keys are returned flattened, deduplicated, in
// source order.
func Load(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key source %s: %w", path, err)
	}

	var keys []string
	switch detectFormat(path) {
	case formatYAML:
		keys, err = parseYAML(data)
	case formatJSON:
		keys, err = parseJSON(data)
	default:
		keys, err = parsePlain(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}

	return dedupe(keys), nil
}

// LoadOptional behaves like Load but treats a missing file as an empty
// list. Used for the tracked-key subset, which is not required.
func LoadOptional(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return Load(path)
}

// dedupe removes repeated keys, keeping first-occurrence order.
func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}
