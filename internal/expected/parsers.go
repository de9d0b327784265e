package expected

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type format int

const (
	formatPlain format = iota
	formatYAML
	formatJSON
)

// detectFormat picks a parser from the file name.
func detectFormat(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	case ".json":
		return formatJSON
	default:
		return formatPlain
	}
}

// parseYAML accepts either a flat sequence of keys or a mapping of category
// headings to key sequences. Headings exist for humans only.
func parseYAML(data []byte) ([]string, error) {
	var flat []string
	if err := yaml.Unmarshal(data, &flat); err == nil {
		return flat, nil
	}

	var grouped yaml.Node
	if err := yaml.Unmarshal(data, &grouped); err != nil {
		return nil, err
	}
	root := &grouped
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a list of keys or a map of categories")
	}

	var keys []string
	for i := 1; i < len(root.Content); i += 2 {
		value := root.Content[i]
		switch value.Kind {
		case yaml.SequenceNode:
			for _, item := range value.Content {
				keys = append(keys, strings.TrimSpace(item.Value))
			}
		case yaml.ScalarNode:
			// A bare scalar under a heading still names one key.
			keys = append(keys, strings.TrimSpace(value.Value))
		default:
			return nil, fmt.Errorf("category %q: expected a list of keys", root.Content[i-1].Value)
		}
	}
	return keys, nil
}

// parseJSON accepts an array of keys or an object of category arrays.
func parseJSON(data []byte) ([]string, error) {
	var flat []string
	if err := json.Unmarshal(data, &flat); err == nil {
		return flat, nil
	}

	var grouped map[string][]string
	if err := json.Unmarshal(data, &grouped); err != nil {
		return nil, err
	}

	// Deterministic order despite map iteration: sort category names.
	categories := make([]string, 0, len(grouped))
	for category := range grouped {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var keys []string
	for _, category := range categories {
		keys = append(keys, grouped[category]...)
	}
	return keys, nil
}

// parsePlain reads one key per line. Blank lines, # comments, and cosmetic
// heading lines ([heading] or markdown-style ## heading) are skipped.
func parsePlain(data []byte) ([]string, error) {
	var keys []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			continue
		}
		// Tolerate checklist bullets: "- key" or "* key".
		line = strings.TrimSpace(strings.TrimLeft(line, "-*"))
		if line != "" {
			keys = append(keys, line)
		}
	}
	return keys, scanner.Err()
}
