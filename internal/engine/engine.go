// Package engine orchestrates an audit run: file discovery, registry
// build, concurrent per-file scanning, aggregation, filtering, and
// validation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jenian/keygrd/internal/baseline"
	"github.com/jenian/keygrd/internal/cache"
	"github.com/jenian/keygrd/internal/config"
	"github.com/jenian/keygrd/internal/expected"
	"github.com/jenian/keygrd/internal/filter"
	"github.com/jenian/keygrd/internal/pattern"
	"github.com/jenian/keygrd/internal/project"
	"github.com/jenian/keygrd/internal/registry"
	"github.com/jenian/keygrd/internal/scanner"
	"github.com/jenian/keygrd/internal/validator"
)

// ErrConfiguration marks fatal setup problems: a missing or malformed
// expected-key source, an invalid policy, a progressive run without a
// baseline. These abort before any result is produced; everything else is
// surfaced as warnings on the report.
var ErrConfiguration = errors.New("configuration error")

// Warning is a non-fatal problem scoped to one file (or to the run when
// File is empty).
type Warning struct {
	File    string `json:"file,omitempty"`
	Message string `json:"message"`
}

// Discovery is the raw outcome of scanning a tree: every canonical key
// mapped to its ordered usage locations.
type Discovery struct {
	Root         string
	Found        map[string][]pattern.Usage
	Registry     *registry.Registry
	Warnings     []Warning
	FilesScanned int
	CacheHits    int
}

// Report extends a discovery with the validation verdict.
type Report struct {
	Discovery
	Expected []string
	Tracked  []string
	Result   validator.Result
}

// RunOptions carries per-invocation overrides on top of the project config.
type RunOptions struct {
	ExpectedPath string
	TrackedPath  string

	// Include and Exclude are key-level patterns applied on top of the
	// configured ones.
	Include []string
	Exclude []string

	// IncludeGlobs and ExcludeGlobs filter files, not keys.
	IncludeGlobs []string
	ExcludeGlobs []string

	Policy         string
	UpdateBaseline bool
	IgnoreMissing  bool
	IgnoreExtra    bool
}

// Engine runs audits. The cache service is injected once per run setup; the
// engine itself holds no mutable state between runs.
type Engine struct {
	cfg      *config.Config
	cache    cache.Service
	log      *slog.Logger
	parallel int
}

// New creates an engine. A nil cache disables caching and a nil logger
// discards logs.
func New(cfg *config.Config, cacheService cache.Service, log *slog.Logger) *Engine {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if cacheService == nil {
		cacheService = cache.Null{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	parallel := cfg.Parallel
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}
	return &Engine{cfg: cfg, cache: cacheService, log: log, parallel: parallel}
}

// Discover scans the tree under root and aggregates key usages. Per-file
// failures become warnings; only setup failures return an error.
func (e *Engine) Discover(ctx context.Context, root string, opts RunOptions) (*Discovery, error) {
	files, err := e.discoverFiles(root, opts)
	if err != nil {
		return nil, err
	}

	d := &Discovery{
		Root:  root,
		Found: make(map[string][]pattern.Usage),
	}

	// The registry build is a hard ordering barrier: symbolic and dynamic
	// usages cannot resolve until the symbol table exists.
	builder := registry.NewBuilder()
	if len(e.cfg.RegistryClasses) > 0 {
		builder.SetClassNames(e.cfg.RegistryClasses)
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	reg, regWarnings := builder.Build(root, paths)
	d.Registry = reg
	for _, msg := range regWarnings {
		d.Warnings = append(d.Warnings, Warning{Message: msg})
	}
	if reg.Path != "" {
		e.log.Debug("registry located", "path", reg.Path,
			"constants", len(reg.Constants), "dynamic", len(reg.DynamicMethods))
	}

	// The registry's own declarations are never counted as usages.
	scanFiles := files[:0:0]
	for _, f := range files {
		if f.RelPath == reg.Path {
			continue
		}
		scanFiles = append(scanFiles, f)
	}

	keyScanner := pattern.NewScanner(
		pattern.WithWrapperNames(e.cfg.KeyWrappers),
		pattern.WithRegistryClasses(builder.ClassNames()),
		pattern.WithRegistry(reg),
	)

	results, warnings, hits := e.scanAll(ctx, keyScanner, reg, scanFiles)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.Warnings = append(d.Warnings, warnings...)
	d.FilesScanned = len(scanFiles)
	d.CacheHits = hits

	// Single aggregation point: merge per-file results in deterministic
	// file order.
	for _, usages := range results {
		for _, usage := range usages {
			d.Found[usage.Value] = append(d.Found[usage.Value], usage)
		}
	}
	return d, nil
}

func (e *Engine) discoverFiles(root string, opts RunOptions) ([]scanner.FileInfo, error) {
	fileScanner := scanner.NewScanner()
	if len(e.cfg.Ignores.Folders) > 0 {
		fileScanner.AddExcludeDirs(e.cfg.Ignores.Folders)
	}
	if len(opts.IncludeGlobs) > 0 {
		fileScanner.SetIncludeGlobs(opts.IncludeGlobs)
	}
	if len(opts.ExcludeGlobs) > 0 {
		fileScanner.SetExcludeGlobs(opts.ExcludeGlobs)
	}

	files, err := fileScanner.Scan(root)
	if err != nil {
		return nil, fmt.Errorf("scan directory: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// scanAll runs the per-file scans on a bounded pool. Results are written
// into per-file slots so aggregation order does not depend on scheduling.
func (e *Engine) scanAll(ctx context.Context, keyScanner *pattern.Scanner, reg *registry.Registry, files []scanner.FileInfo) ([][]pattern.Usage, []Warning, int) {
	results := make([][]pattern.Usage, len(files))
	warnings := make([]Warning, 0)
	hits := 0

	regDigest := reg.Fingerprint()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.parallel)

	type fileOutcome struct {
		index   int
		usages  []pattern.Usage
		warning *Warning
		hit     bool
	}
	outcomes := make(chan fileOutcome)

	go func() {
		defer close(outcomes)
		for i, f := range files {
			if groupCtx.Err() != nil {
				break
			}
			i, f := i, f
			group.Go(func() error {
				outcome := fileOutcome{index: i}
				outcome.usages, outcome.warning, outcome.hit = e.scanOne(keyScanner, regDigest, f)
				select {
				case outcomes <- outcome:
				case <-groupCtx.Done():
				}
				return nil
			})
		}
		group.Wait()
	}()

	for outcome := range outcomes {
		results[outcome.index] = outcome.usages
		if outcome.warning != nil {
			warnings = append(warnings, *outcome.warning)
		}
		if outcome.hit {
			hits++
		}
	}

	// Warning order follows completion order; make it stable for callers.
	sort.Slice(warnings, func(i, j int) bool {
		if warnings[i].File != warnings[j].File {
			return warnings[i].File < warnings[j].File
		}
		return warnings[i].Message < warnings[j].Message
	})
	return results, warnings, hits
}

func (e *Engine) scanOne(keyScanner *pattern.Scanner, regDigest string, f scanner.FileInfo) ([]pattern.Usage, *Warning, bool) {
	content, err := os.ReadFile(f.Path)
	if err != nil {
		// Unreadable file: warn and keep going with the rest of the tree.
		return nil, &Warning{File: f.RelPath, Message: fmt.Sprintf("cannot read file: %v", err)}, false
	}

	// Resolution depends on the registry, so its digest is part of the key.
	fingerprint := cache.Fingerprint(content, regDigest)
	if entry, ok := e.cache.Get(fingerprint); ok {
		return entry.Usages, nil, true
	}

	usages := keyScanner.Scan(f.RelPath, content)
	if err := e.cache.Put(fingerprint, cache.Entry{Usages: usages}); err != nil {
		e.log.Warn("cache write failed", "file", f.RelPath, "error", err)
	}
	return usages, nil, false
}

// Run performs a full audit: discovery, filtering, and validation.
func (e *Engine) Run(ctx context.Context, root string, opts RunOptions) (*Report, error) {
	policy, err := validator.ParsePolicy(firstNonEmpty(opts.Policy, e.cfg.Policy))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	expectedPath := firstNonEmpty(opts.ExpectedPath, e.cfg.Expected)
	if expectedPath == "" && policy != validator.PolicyProgressive {
		return nil, fmt.Errorf("%w: no expected-key source configured", ErrConfiguration)
	}

	var expectedKeys []string
	if expectedPath != "" {
		expectedKeys, err = expected.Load(resolvePath(root, expectedPath))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
	}

	trackedPath := firstNonEmpty(opts.TrackedPath, e.cfg.Tracked)
	trackedKeys, err := expected.LoadOptional(resolvePathIfSet(root, trackedPath))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	var snapshot *baseline.Snapshot
	baselinePath := resolvePath(root, e.cfg.BaselineFile())
	if policy == validator.PolicyProgressive {
		snapshot, err = baseline.Load(baselinePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		if snapshot == nil && !opts.UpdateBaseline {
			return nil, fmt.Errorf("%w: progressive policy requires a baseline (run with --update-baseline to create one)", ErrConfiguration)
		}
	}

	d, err := e.Discover(ctx, root, opts)
	if err != nil {
		return nil, err
	}

	include := append(append([]string{}, e.cfg.Patterns.Include...), opts.Include...)
	exclude := append(append([]string{}, e.cfg.Patterns.Exclude...), opts.Exclude...)
	d.Found = filter.Map(d.Found, include, exclude)

	now := time.Now()
	if policy == validator.PolicyProgressive && snapshot == nil {
		// First progressive run: seed the baseline from what exists today.
		snapshot = baseline.New(foundKeys(d.Found), now)
	}

	vopts := validator.Options{
		TrackedKeys:   trackedKeys,
		Policy:        policy,
		Baseline:      snapshot,
		GraceWindow:   e.cfg.GraceWindow(),
		Now:           now,
		IgnoreMissing: opts.IgnoreMissing,
		IgnoreExtra:   opts.IgnoreExtra,
		DependencyOK:  project.HasDriverDependency(root),
		TestSetupOK:   project.HasTestEntrypoint(root),
	}
	if err := vopts.Check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	report := &Report{
		Discovery: *d,
		Expected:  expectedKeys,
		Tracked:   trackedKeys,
		Result:    validator.Validate(d.Found, expectedKeys, vopts),
	}

	if opts.UpdateBaseline {
		if snapshot == nil {
			snapshot = baseline.New(nil, now)
		}
		snapshot.Touch(foundKeys(d.Found), now)
		if err := snapshot.Save(baselinePath); err != nil {
			report.Warnings = append(report.Warnings, Warning{Message: fmt.Sprintf("baseline update failed: %v", err)})
		}
	}

	return report, nil
}

func foundKeys(found map[string][]pattern.Usage) []string {
	keys := make([]string, 0, len(found))
	for key := range found {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func resolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

func resolvePathIfSet(root, path string) string {
	if path == "" {
		return ""
	}
	return resolvePath(root, path)
}
