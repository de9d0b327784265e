// Package output renders audit reports for humans and machines and maps
// results to the process exit decision.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/jenian/keygrd/internal/engine"
	"github.com/jenian/keygrd/internal/pattern"
)

var (
	// Color support detection
	colorEnabled = initColorSupport()
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// initColorSupport initializes color support for the terminal.
func initColorSupport() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return enableANSI()
}

// getColor returns the color code if colors are enabled, empty string otherwise.
func getColor(code string) string {
	if colorEnabled {
		return code
	}
	return ""
}

// JSONReport is the machine-readable report shape.
type JSONReport struct {
	Keys         []KeyLocations   `json:"keys"`
	Missing      []string         `json:"missing"`
	Extra        []string         `json:"extra"`
	Duplicates   []DuplicateKey   `json:"duplicates"`
	Unresolved   []KeyLocations   `json:"unresolved"`
	Removed      []string         `json:"removed,omitempty"`
	Expired      []string         `json:"expired,omitempty"`
	Coverage     float64          `json:"coverage"`
	DependencyOK bool             `json:"dependency_ok"`
	TestSetupOK  bool             `json:"test_setup_ok"`
	Passed       bool             `json:"passed"`
	FilesScanned int              `json:"files_scanned"`
	Warnings     []engine.Warning `json:"warnings"`
}

// KeyLocations pairs a key with every place it occurs.
type KeyLocations struct {
	Key       string   `json:"key"`
	Locations []string `json:"locations"`
}

// DuplicateKey is a key declared in more than one place.
type DuplicateKey struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Format renders the report. In silent mode nothing is written; the caller
// maps the result to an exit code.
func Format(w io.Writer, report *engine.Report, jsonOutput bool, silent bool) error {
	if silent {
		return nil
	}
	if jsonOutput {
		return FormatJSON(w, report)
	}
	return formatHumanReadable(w, report)
}

// BuildJSON converts a report into its machine-readable shape with all
// collections sorted for stable output.
func BuildJSON(report *engine.Report) JSONReport {
	out := JSONReport{
		Keys:         []KeyLocations{},
		Missing:      append([]string{}, report.Result.Missing...),
		Extra:        append([]string{}, report.Result.Extra...),
		Duplicates:   []DuplicateKey{},
		Unresolved:   []KeyLocations{},
		Removed:      report.Result.Removed,
		Expired:      report.Result.Expired,
		Coverage:     math.Round(report.Result.Coverage*10000) / 10000,
		DependencyOK: report.Result.DependencyOK,
		TestSetupOK:  report.Result.TestSetupOK,
		Passed:       report.Result.Passed,
		FilesScanned: report.FilesScanned,
		Warnings:     report.Warnings,
	}
	if out.Warnings == nil {
		out.Warnings = []engine.Warning{}
	}

	unresolved := make(map[string][]pattern.Usage)
	for _, key := range sortedKeys(report.Found) {
		usages := report.Found[key]
		out.Keys = append(out.Keys, KeyLocations{Key: key, Locations: locations(usages)})
		for _, usage := range usages {
			if usage.Kind == pattern.KindUnresolved {
				unresolved[usage.Symbol] = append(unresolved[usage.Symbol], usage)
			}
		}
	}
	for _, symbol := range sortedKeys(unresolved) {
		out.Unresolved = append(out.Unresolved, KeyLocations{Key: symbol, Locations: locations(unresolved[symbol])})
	}
	for _, key := range sortedKeys(report.Result.Duplicates) {
		out.Duplicates = append(out.Duplicates, DuplicateKey{Key: key, Count: report.Result.Duplicates[key]})
	}
	return out
}

// FormatJSON writes the machine-readable report.
func FormatJSON(w io.Writer, report *engine.Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(BuildJSON(report))
}

func locations(usages []pattern.Usage) []string {
	locs := make([]string, 0, len(usages))
	for _, usage := range usages {
		loc := usage.Location()
		if usage.Kind != "" {
			loc += " (" + string(usage.Kind) + ")"
		}
		locs = append(locs, loc)
	}
	sort.Strings(locs)
	return locs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// formatHumanReadable outputs results in human-readable format.
func formatHumanReadable(w io.Writer, report *engine.Report) error {
	result := report.Result

	if len(result.Missing) > 0 {
		fmt.Fprintf(w, "%s%sMissing automation keys:%s\n\n", getColor(colorBold), getColor(colorRed), getColor(colorReset))
		for _, key := range result.Missing {
			fmt.Fprintf(w, "  %s%s%s\n", getColor(colorRed), key, getColor(colorReset))
		}
		fmt.Fprintln(w)
	}

	if len(result.Extra) > 0 {
		fmt.Fprintf(w, "%s%sKeys not in the expected set:%s\n\n", getColor(colorBold), getColor(colorYellow), getColor(colorReset))
		for _, key := range result.Extra {
			fmt.Fprintf(w, "  %s%s%s\n", getColor(colorYellow), key, getColor(colorReset))
			printUsages(w, report.Found[key])
		}
		fmt.Fprintln(w)
	}

	if len(result.Duplicates) > 0 {
		fmt.Fprintf(w, "%s%sDuplicate key usages:%s\n\n", getColor(colorBold), getColor(colorYellow), getColor(colorReset))
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Key", "Usages", "Locations"})
		table.SetBorder(false)
		for _, key := range sortedKeys(result.Duplicates) {
			usages := report.Found[key]
			locs := ""
			for i, usage := range usages {
				if i > 0 {
					locs += ", "
				}
				locs += usage.Location()
			}
			table.Append([]string{key, strconv.Itoa(result.Duplicates[key]), locs})
		}
		table.Render()
		fmt.Fprintln(w)
	}

	printUnresolved(w, report)
	printProgressive(w, result.Removed, result.Expired)
	printWarnings(w, report.Warnings)

	fmt.Fprintf(w, "Scanned %d files, found %d keys, coverage %.1f%%\n",
		report.FilesScanned, len(report.Found), result.Coverage*100)
	printCheck(w, "key diff", result.KeyDiffPassed)
	printCheck(w, "driver dependency", result.DependencyOK)
	printCheck(w, "test entrypoint", result.TestSetupOK)

	if result.Passed {
		fmt.Fprintf(w, "%s%s✓ Validation passed.%s\n", getColor(colorGreen), getColor(colorBold), getColor(colorReset))
	} else {
		fmt.Fprintf(w, "%s%s✗ Validation failed.%s\n", getColor(colorRed), getColor(colorBold), getColor(colorReset))
	}
	return nil
}

func printUsages(w io.Writer, usages []pattern.Usage) {
	for _, usage := range usages {
		fmt.Fprintf(w, "    %sused in:%s %s%s%s", getColor(colorGray), getColor(colorReset), getColor(colorCyan), usage.Location(), getColor(colorReset))
		if usage.Snippet != "" {
			snippet := usage.Snippet
			if len(snippet) > 80 {
				snippet = snippet[:77] + "..."
			}
			fmt.Fprintf(w, " %s%s%s", getColor(colorGray), snippet, getColor(colorReset))
		}
		fmt.Fprintln(w)
	}
}

func printUnresolved(w io.Writer, report *engine.Report) {
	var symbols []string
	bySymbol := make(map[string][]pattern.Usage)
	for _, usages := range report.Found {
		for _, usage := range usages {
			if usage.Kind == pattern.KindUnresolved {
				if _, ok := bySymbol[usage.Symbol]; !ok {
					symbols = append(symbols, usage.Symbol)
				}
				bySymbol[usage.Symbol] = append(bySymbol[usage.Symbol], usage)
			}
		}
	}
	if len(symbols) == 0 {
		return
	}
	sort.Strings(symbols)

	fmt.Fprintf(w, "%s%sUnresolved symbolic references (symbol name used as key):%s\n\n", getColor(colorBold), getColor(colorCyan), getColor(colorReset))
	for _, symbol := range symbols {
		fmt.Fprintf(w, "  %s%s%s\n", getColor(colorCyan), symbol, getColor(colorReset))
		printUsages(w, bySymbol[symbol])
	}
	fmt.Fprintln(w)
}

func printProgressive(w io.Writer, removed, expired []string) {
	if len(removed) > 0 {
		fmt.Fprintf(w, "%s%sRemoved since baseline (within grace window):%s\n\n", getColor(colorBold), getColor(colorYellow), getColor(colorReset))
		for _, key := range removed {
			fmt.Fprintf(w, "  %s%s%s\n", getColor(colorYellow), key, getColor(colorReset))
		}
		fmt.Fprintln(w)
	}
	if len(expired) > 0 {
		fmt.Fprintf(w, "%s%sRemoved since baseline (grace window expired):%s\n\n", getColor(colorBold), getColor(colorRed), getColor(colorReset))
		for _, key := range expired {
			fmt.Fprintf(w, "  %s%s%s\n", getColor(colorRed), key, getColor(colorReset))
		}
		fmt.Fprintln(w)
	}
}

func printWarnings(w io.Writer, warnings []engine.Warning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(w, "%s%sWarnings:%s\n\n", getColor(colorBold), getColor(colorGray), getColor(colorReset))
	for _, warning := range warnings {
		if warning.File != "" {
			fmt.Fprintf(w, "  %s%s: %s%s\n", getColor(colorGray), warning.File, warning.Message, getColor(colorReset))
		} else {
			fmt.Fprintf(w, "  %s%s%s\n", getColor(colorGray), warning.Message, getColor(colorReset))
		}
	}
	fmt.Fprintln(w)
}

func printCheck(w io.Writer, name string, ok bool) {
	if ok {
		fmt.Fprintf(w, "  %s✓%s %s\n", getColor(colorGreen), getColor(colorReset), name)
	} else {
		fmt.Fprintf(w, "  %s✗%s %s\n", getColor(colorRed), getColor(colorReset), name)
	}
}

// FormatDiscovery renders a scan-only result: every key with its locations,
// plus warnings. No validation verdict is involved.
func FormatDiscovery(w io.Writer, d *engine.Discovery, jsonOutput bool, silent bool) error {
	if silent {
		return nil
	}

	if jsonOutput {
		type discoveryJSON struct {
			Keys         []KeyLocations   `json:"keys"`
			FilesScanned int              `json:"files_scanned"`
			Warnings     []engine.Warning `json:"warnings"`
		}
		out := discoveryJSON{Keys: []KeyLocations{}, FilesScanned: d.FilesScanned, Warnings: d.Warnings}
		if out.Warnings == nil {
			out.Warnings = []engine.Warning{}
		}
		for _, key := range sortedKeys(d.Found) {
			out.Keys = append(out.Keys, KeyLocations{Key: key, Locations: locations(d.Found[key])})
		}
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}

	for _, key := range sortedKeys(d.Found) {
		fmt.Fprintf(w, "%s%s%s\n", getColor(colorBold), key, getColor(colorReset))
		printUsages(w, d.Found[key])
	}
	printWarnings(w, d.Warnings)
	return nil
}

// HasIssues reports whether the run should map to a failing exit code.
func HasIssues(report *engine.Report) bool {
	return !report.Result.Passed
}

// FormatError formats an error message.
func FormatError(err error) string {
	return fmt.Sprintf("Error: %s\n", err)
}
