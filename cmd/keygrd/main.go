package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jenian/keygrd/internal/baseline"
	"github.com/jenian/keygrd/internal/cache"
	"github.com/jenian/keygrd/internal/config"
	"github.com/jenian/keygrd/internal/engine"
	"github.com/jenian/keygrd/internal/output"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:   "keygrd",
		Short: "Audit automation keys in a Flutter codebase",
		Long:  "A CLI tool that discovers automation keys in source code, resolves symbolic references against the constants registry, and validates them against an expected key set.",
	}

	scanCmd = &cobra.Command{
		Use:   "scan [path]",
		Short: "Discover automation keys in a codebase",
		Long:  "Recursively scan a directory for automation-key usages and list every key with its locations.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScan,
	}

	validateCmd = &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate discovered keys against the expected set",
		Long:  "Scan a directory and diff the discovered keys against the expected-key source under the configured policy.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runValidate,
	}

	baselineCmd = &cobra.Command{
		Use:   "baseline [path]",
		Short: "Write or refresh the progressive-mode baseline",
		Long:  "Scan a directory and record every discovered key in the baseline snapshot used by the progressive policy.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBaseline,
	}

	initConfigCmd = &cobra.Command{
		Use:   "init-config",
		Short: "Create a " + config.FileName + " file in the current directory",
		Long:  "Creates a " + config.FileName + " file with default configuration in the current directory.",
		RunE:  runInitConfig,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Long:  "Print the version number of keygrd",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}

	// Flags
	expectedFile   string
	trackedFile    string
	policyFlag     string
	jsonOutput     bool
	silent         bool
	noCache        bool
	updateBaseline bool
	ignoreMissing  bool
	ignoreExtra    bool
	includeKeys    []string
	excludeKeys    []string
	includeGlobs   []string
	excludeGlobs   []string
)

func init() {
	for _, cmd := range []*cobra.Command{scanCmd, validateCmd, baselineCmd} {
		cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results in JSON format")
		cmd.Flags().BoolVar(&silent, "silent", false, "Silent mode (exit code only)")
		cmd.Flags().BoolVar(&noCache, "no-cache", false, "Disable the per-file scan cache")
		cmd.Flags().StringSliceVar(&includeGlobs, "include-files", []string{}, "Glob patterns selecting files to scan")
		cmd.Flags().StringSliceVar(&excludeGlobs, "exclude-files", []string{}, "Glob patterns excluding files from the scan")
		cmd.Flags().StringSliceVar(&includeKeys, "include", []string{}, "Key patterns to include (regex, else substring)")
		cmd.Flags().StringSliceVar(&excludeKeys, "exclude", []string{}, "Key patterns to exclude (regex, else substring)")
	}

	validateCmd.Flags().StringVar(&expectedFile, "expected", "", "Expected-key source file")
	validateCmd.Flags().StringVar(&trackedFile, "tracked", "", "Tracked-key subset file")
	validateCmd.Flags().StringVar(&policyFlag, "policy", "", "Validation policy: strict, lenient, or progressive")
	validateCmd.Flags().BoolVar(&updateBaseline, "update-baseline", false, "Refresh the baseline snapshot after validating")
	validateCmd.Flags().BoolVar(&ignoreMissing, "ignore-missing", false, "Do not fail on missing keys (strict policy)")
	validateCmd.Flags().BoolVar(&ignoreExtra, "ignore-extra", false, "Do not fail on extra keys (strict policy)")

	bindFlagToConfig(validateCmd.Flags(), "expected", "expected")
	bindFlagToConfig(validateCmd.Flags(), "tracked", "tracked")
	bindFlagToConfig(validateCmd.Flags(), "policy", "policy")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(baselineCmd)
	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

// bindFlagToConfig wires a cobra flag to a viper key so config/env values
// feed the flag.
func bindFlagToConfig(fs *pflag.FlagSet, flagName, key string) {
	flag := fs.Lookup(flagName)
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}
	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// setup resolves the scan root and builds the engine for a command run.
func setup(args []string) (string, *engine.Engine, *config.Config, error) {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", nil, nil, fmt.Errorf("invalid path: %w", err)
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", nil, nil, fmt.Errorf("path does not exist: %s", absPath)
	}

	cfg, err := config.Load(absPath)
	if err != nil {
		if !silent {
			fmt.Fprintf(os.Stderr, "Warning: failed to load %s: %v\n", config.FileName, err)
		}
		cfg = &config.Config{}
	}

	var cacheService cache.Service = cache.Null{}
	if cfg.CacheEnabled() && !noCache {
		dir := cfg.CacheDir()
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(absPath, dir)
		}
		cacheService = cache.NewDisk(dir, cfg.CacheMaxAge())
	}

	logger := setupLogging(absPath)
	return absPath, engine.New(cfg, cacheService, logger), cfg, nil
}

func runOptions() engine.RunOptions {
	return engine.RunOptions{
		ExpectedPath:   viper.GetString("expected"),
		TrackedPath:    viper.GetString("tracked"),
		Policy:         viper.GetString("policy"),
		Include:        includeKeys,
		Exclude:        excludeKeys,
		IncludeGlobs:   includeGlobs,
		ExcludeGlobs:   excludeGlobs,
		UpdateBaseline: updateBaseline,
		IgnoreMissing:  ignoreMissing,
		IgnoreExtra:    ignoreExtra,
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	root, eng, _, err := setup(args)
	if err != nil {
		return err
	}

	if !silent && !jsonOutput {
		fmt.Fprintf(os.Stderr, "Scanning %s...\n", root)
	}

	d, err := eng.Discover(cmd.Context(), root, runOptions())
	if err != nil {
		return err
	}

	if !silent && !jsonOutput {
		fmt.Fprintf(os.Stderr, "Found %d keys in %d files (%d cache hits)\n", len(d.Found), d.FilesScanned, d.CacheHits)
	}
	return output.FormatDiscovery(os.Stdout, d, jsonOutput, silent)
}

func runValidate(cmd *cobra.Command, args []string) error {
	root, eng, _, err := setup(args)
	if err != nil {
		return err
	}

	if !silent && !jsonOutput {
		fmt.Fprintf(os.Stderr, "Scanning %s...\n", root)
	}

	report, err := eng.Run(cmd.Context(), root, runOptions())
	if err != nil {
		if errors.Is(err, engine.ErrConfiguration) {
			// No result exists for configuration errors; report and abort.
			fmt.Fprint(os.Stderr, output.FormatError(err))
			os.Exit(2)
		}
		return err
	}

	if err := output.Format(os.Stdout, report, jsonOutput, silent); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	if output.HasIssues(report) {
		os.Exit(1)
	}
	return nil
}

func runBaseline(cmd *cobra.Command, args []string) error {
	root, eng, cfg, err := setup(args)
	if err != nil {
		return err
	}

	opts := runOptions()
	opts.Policy = "lenient"
	opts.UpdateBaseline = true

	report, err := eng.Run(cmd.Context(), root, opts)
	if err != nil && !errors.Is(err, engine.ErrConfiguration) {
		return err
	}
	if err != nil {
		// No expected set is fine for baselining: fall back to discovery.
		d, derr := eng.Discover(cmd.Context(), root, opts)
		if derr != nil {
			return derr
		}
		if err := writeBaseline(root, cfg, d); err != nil {
			return err
		}
		if !silent {
			fmt.Printf("Recorded %d keys in %s\n", len(d.Found), cfg.BaselineFile())
		}
		return nil
	}

	if !silent {
		fmt.Printf("Recorded %d keys in %s\n", len(report.Found), cfg.BaselineFile())
	}
	return nil
}

// writeBaseline records a discovery's keys into the configured snapshot.
func writeBaseline(root string, cfg *config.Config, d *engine.Discovery) error {
	path := cfg.BaselineFile()
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	now := time.Now()
	snapshot, err := baseline.Load(path)
	if err != nil || snapshot == nil {
		snapshot = baseline.New(nil, now)
	}
	keys := make([]string, 0, len(d.Found))
	for key := range d.Found {
		keys = append(keys, key)
	}
	snapshot.Touch(keys, now)
	return snapshot.Save(path)
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	configPath := config.FileName

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists in the current directory", config.FileName)
	}

	configContent := `# ` + config.FileName + `
# Configuration file for keygrd

# Expected-key source: YAML list, YAML category map, JSON array, or plain
# text (one key per line; headings are cosmetic).
expected: automation_keys.yaml

# Optional subset of keys under active review. When set, extra-key checks
# are computed against this subset instead of the full expected set.
# tracked: tracked_keys.yaml

# Validation policy: strict, lenient, or progressive.
policy: strict

# Class names recognized as the constants registry.
# registry_classes:
#   - AutomationKeys

# Key wrapper constructors recognized by the scanner.
# key_wrappers:
#   - Key
#   - ValueKey
#   - ObjectKey
#   - PageStorageKey

ignores:
  # Folders to skip when scanning (generated code, fixtures, ...)
  folders:
    # - lib/generated

patterns:
  # Key patterns to include/exclude. Each entry is a regular expression
  # when it compiles, otherwise a case-sensitive substring.
  include: []
  exclude: []

baseline:
  file: ` + config.DefaultBaselineFile + `
  # How long a key removed from code is tolerated under the progressive
  # policy before it becomes a hard failure.
  grace: 336h

cache:
  enabled: true
  dir: ` + config.DefaultCacheDir + `
  max_age: 168h

# Scan worker pool size; 0 means the number of CPUs.
parallel: 0
`

	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		return fmt.Errorf("failed to create %s: %w", config.FileName, err)
	}

	fmt.Printf("Created %s in the current directory\n", config.FileName)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
