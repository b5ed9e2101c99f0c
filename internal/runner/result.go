package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/dkoosis/buildgate/pkg/partition"
	"github.com/dkoosis/buildgate/pkg/testjson"
)

// PackageFailure is a package whose tests could not be compiled or listed.
type PackageFailure struct {
	Package string
	Output  []string
}

// Discovery is the outcome of listing tests.
type Discovery struct {
	Units    []partition.TestUnit
	Failures []PackageFailure
	// Packages are the import paths with code to cover, in go list order.
	Packages []string
}

// GroupResult is one executed group.
type GroupResult struct {
	Group    partition.Group
	Units    []partition.TestUnit // selected units with outcomes, discovery order
	Failures []PackageFailure
	Packages []testjson.TestPackageResult
	Profiles []string // cover profiles written by the run
	Duration time.Duration
}

// Counts returns passed, failed and skipped unit totals.
func (g GroupResult) Counts() (passed, failed, skipped int) {
	for _, u := range g.Units {
		switch u.Outcome {
		case partition.OutcomePassed:
			passed++
		case partition.OutcomeFailed:
			failed++
		case partition.OutcomeSkipped:
			skipped++
		}
	}
	return passed, failed, skipped
}

// FailedUnits returns the units whose outcome is FAILED.
func (g GroupResult) FailedUnits() []partition.TestUnit {
	var out []partition.TestUnit
	for _, u := range g.Units {
		if u.Outcome == partition.OutcomeFailed {
			out = append(out, u)
		}
	}
	return out
}

// Failed reports whether any unit or package failed.
func (g GroupResult) Failed() bool {
	_, failed, _ := g.Counts()
	return failed > 0 || len(g.Failures) > 0
}

// Err returns a *GroupFailedError when the group failed.
func (g GroupResult) Err() error {
	if !g.Failed() {
		return nil
	}
	e := &GroupFailedError{Group: g.Group}
	for _, u := range g.FailedUnits() {
		e.Tests = append(e.Tests, u.QualifiedName())
	}
	for _, f := range g.Failures {
		e.Packages = append(e.Packages, f.Package)
	}
	return e
}

// GroupFailedError reports every failed test of a group run.
type GroupFailedError struct {
	Group    partition.Group
	Tests    []string
	Packages []string // packages that failed to build
}

func (e *GroupFailedError) Error() string {
	var parts []string
	if len(e.Tests) > 0 {
		parts = append(parts, fmt.Sprintf("%d failed: %s", len(e.Tests), strings.Join(e.Tests, ", ")))
	}
	if len(e.Packages) > 0 {
		parts = append(parts, fmt.Sprintf("build failed: %s", strings.Join(e.Packages, ", ")))
	}
	return fmt.Sprintf("%s tests failed (%s)", e.Group, strings.Join(parts, "; "))
}
