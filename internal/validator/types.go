package validator

import (
	"fmt"
	"time"

	"github.com/jenian/keygrd/internal/baseline"
)

// Policy selects how key differences map to pass/fail.
type Policy string

const (
	// PolicyStrict fails on missing or extra keys, per the ignore toggles.
	PolicyStrict Policy = "strict"
	// PolicyLenient computes the same sets but never fails on them.
	PolicyLenient Policy = "lenient"
	// PolicyProgressive compares against an evolving baseline, allowing
	// additions and failing only on removals that outlive the grace window.
	PolicyProgressive Policy = "progressive"
)

// ParsePolicy converts a user-supplied policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyStrict, PolicyLenient, PolicyProgressive:
		return Policy(s), nil
	case "":
		return PolicyStrict, nil
	default:
		return "", fmt.Errorf("unknown policy %q (want strict, lenient, or progressive)", s)
	}
}

// Options configures a validation run.
type Options struct {
	// TrackedKeys narrows the expected universe to an explicit subset of
	// interest. When non-empty, extra keys are computed against this subset
	// rather than against the expected set.
	TrackedKeys []string

	Policy Policy

	// Baseline and GraceWindow drive the progressive policy. Baseline is
	// required there and unused elsewhere.
	Baseline    *baseline.Snapshot
	GraceWindow time.Duration

	// Now anchors the grace-window arithmetic; the zero value means
	// time.Now().
	Now time.Time

	// IgnoreMissing and IgnoreExtra relax the strict policy per set.
	IgnoreMissing bool
	IgnoreExtra   bool

	// DependencyOK and TestSetupOK are computed by project-inspection
	// collaborators and AND-ed into the final verdict.
	DependencyOK bool
	TestSetupOK  bool
}

// Check validates the option combination before any scanning happens.
func (o Options) Check() error {
	policy, err := ParsePolicy(string(o.Policy))
	if err != nil {
		return err
	}
	if policy == PolicyProgressive && o.Baseline == nil {
		return fmt.Errorf("progressive policy requires a baseline snapshot")
	}
	return nil
}

// Result is the authoritative outcome of a validation run.
type Result struct {
	// Missing holds expected keys not found in code, sorted.
	Missing []string `json:"missing"`
	// Extra holds found keys outside the expected (or tracked) universe.
	Extra []string `json:"extra"`
	// Duplicates maps keys with more than one usage location to their count.
	Duplicates map[string]int `json:"duplicates"`
	// Coverage is |expected ∩ found| / |expected|, 1.0 when nothing is
	// expected.
	Coverage float64 `json:"coverage"`

	// Removed and Expired are progressive-mode removals, split by whether
	// the grace window has run out.
	Removed []string `json:"removed,omitempty"`
	Expired []string `json:"expired,omitempty"`

	DependencyOK  bool   `json:"dependency_ok"`
	TestSetupOK   bool   `json:"test_setup_ok"`
	KeyDiffPassed bool   `json:"key_diff_passed"`
	Passed        bool   `json:"passed"`
	Policy        Policy `json:"policy"`
}
