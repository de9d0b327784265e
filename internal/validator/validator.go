// Package validator computes the missing/extra/duplicate diff between keys
// found in code and the declared expectation, and maps the diff to a
// pass/fail verdict under the active policy.
package validator

import (
	"sort"
	"time"

	"github.com/jenian/keygrd/internal/pattern"
)

// Validate diffs found against expected under opts. It is a pure function
// of its inputs; options should be checked with Options.Check beforehand.
func Validate(found map[string][]pattern.Usage, expectedKeys []string, opts Options) Result {
	policy, _ := ParsePolicy(string(opts.Policy))

	tracked := toSet(opts.TrackedKeys)

	// In tracked mode the diff universe narrows to the tracked subset and
	// extras are judged against it; untracked extras are judged against the
	// full expected set. The asymmetry is intentional.
	var expectedForDiff map[string]bool
	if len(tracked) > 0 {
		expectedForDiff = make(map[string]bool)
		for _, key := range expectedKeys {
			if tracked[key] {
				expectedForDiff[key] = true
			}
		}
	} else {
		expectedForDiff = toSet(expectedKeys)
	}

	var missing, extra []string
	foundCount := 0
	for key := range expectedForDiff {
		if _, ok := found[key]; ok {
			foundCount++
		} else {
			missing = append(missing, key)
		}
	}
	for key := range found {
		if len(tracked) > 0 {
			if !tracked[key] {
				extra = append(extra, key)
			}
		} else if !expectedForDiff[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(missing)
	sort.Strings(extra)

	// Duplicates are computed over the full found map, not the tracked
	// narrowing.
	duplicates := make(map[string]int)
	for key, usages := range found {
		if len(usages) > 1 {
			duplicates[key] = len(usages)
		}
	}

	coverage := 1.0
	if len(expectedForDiff) > 0 {
		coverage = float64(foundCount) / float64(len(expectedForDiff))
	}

	result := Result{
		Missing:      missing,
		Extra:        extra,
		Duplicates:   duplicates,
		Coverage:     coverage,
		DependencyOK: opts.DependencyOK,
		TestSetupOK:  opts.TestSetupOK,
		Policy:       policy,
	}

	switch policy {
	case PolicyLenient:
		result.KeyDiffPassed = true
	case PolicyProgressive:
		result.Removed, result.Expired = progressiveRemovals(found, opts)
		result.KeyDiffPassed = len(result.Expired) == 0
	default: // strict
		result.KeyDiffPassed = (opts.IgnoreMissing || len(missing) == 0) &&
			(opts.IgnoreExtra || len(extra) == 0)
	}

	result.Passed = result.KeyDiffPassed && opts.DependencyOK && opts.TestSetupOK
	return result
}

// progressiveRemovals splits baseline keys absent from the scan into those
// still inside the grace window and those past it.
func progressiveRemovals(found map[string][]pattern.Usage, opts Options) (removed, expired []string) {
	if opts.Baseline == nil {
		return nil, nil
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	for key, lastSeen := range opts.Baseline.Keys {
		if _, ok := found[key]; ok {
			continue
		}
		if opts.GraceWindow > 0 && now.Sub(lastSeen) <= opts.GraceWindow {
			removed = append(removed, key)
		} else {
			expired = append(expired, key)
		}
	}
	sort.Strings(removed)
	sort.Strings(expired)
	return removed, expired
}

func toSet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, key := range keys {
		set[key] = true
	}
	return set
}
