package sarif

import (
	"fmt"
	"strings"

	"github.com/dkoosis/buildgate/pkg/coverage"
	"github.com/dkoosis/buildgate/pkg/partition"
)

// Rule IDs emitted for gate findings.
const (
	RuleTestFailed     = "test/failed"
	RuleBuildFailed    = "test/build-failed"
	ruleCoveragePrefix = "coverage/"
)

// CoverageRuleID returns the rule ID used for violations of m.
func CoverageRuleID(m coverage.Metric) string {
	return ruleCoveragePrefix + string(m)
}

// AddViolations adds one error result per unmet coverage rule. The ratios
// are carried in the result's property bag.
func (b *Builder) AddViolations(violations []coverage.Violation) *Builder {
	for _, v := range violations {
		id := CoverageRuleID(v.Metric)
		b.AddRule(id, fmt.Sprintf("Aggregated %s coverage below the configured minimum", v.Metric))
		b.add(Result{
			RuleID:  id,
			Level:   "error",
			Message: Message{Text: v.String()},
			Properties: map[string]any{
				"metric":   string(v.Metric),
				"actual":   v.Actual,
				"required": v.Required,
			},
		}, "", 0, 0)
	}
	return b
}

// AddFailedTests adds one error result per failed unit. The package import
// path is used as the artifact location.
func (b *Builder) AddFailedTests(group partition.Group, units []partition.TestUnit) *Builder {
	b.AddRule(RuleTestFailed, "Test failed")
	for _, u := range units {
		if u.Outcome != partition.OutcomeFailed {
			continue
		}
		msg := fmt.Sprintf("%s test %s failed", group, u.QualifiedName())
		if len(u.Output) > 0 {
			msg += "\n" + strings.Join(u.Output, "\n")
		}
		b.add(Result{
			RuleID:     RuleTestFailed,
			Level:      "error",
			Message:    Message{Text: msg},
			Properties: map[string]any{"group": string(group), "test": u.Name},
		}, u.Package, 0, 0)
	}
	return b
}

// AddBuildFailure adds an error result for a package whose tests could not
// be compiled.
func (b *Builder) AddBuildFailure(group partition.Group, pkg string, output []string) *Builder {
	msg := fmt.Sprintf("%s tests of %s failed to build", group, pkg)
	if len(output) > 0 {
		msg += "\n" + strings.Join(output, "\n")
	}
	b.AddRule(RuleBuildFailed, "Test package failed to build")
	return b.add(Result{
		RuleID:     RuleBuildFailed,
		Level:      "error",
		Message:    Message{Text: msg},
		Properties: map[string]any{"group": string(group)},
	}, pkg, 0, 0)
}
