// Package partition classifies discovered test units into the standard and
// integration groups.
package partition

import (
	"fmt"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Group names a test partition.
type Group string

const (
	Standard    Group = "standard"
	Integration Group = "integration"
)

// ParseGroup converts a user-supplied group name.
func ParseGroup(s string) (Group, error) {
	switch Group(s) {
	case Standard, Integration:
		return Group(s), nil
	default:
		return "", fmt.Errorf("unknown test group %q (expected %q or %q)", s, Standard, Integration)
	}
}

// Outcome is the execution state of a test unit.
type Outcome string

const (
	OutcomePending Outcome = ""
	OutcomePassed  Outcome = "PASSED"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeSkipped Outcome = "SKIPPED"
)

// TestUnit is one discovered, executable test.
type TestUnit struct {
	Package  string
	Name     string
	Tags     []string
	Outcome  Outcome
	Duration time.Duration
	Output   []string // captured output lines
}

// QualifiedName returns package.Name.
func (u TestUnit) QualifiedName() string {
	if u.Package == "" {
		return u.Name
	}
	return u.Package + "." + u.Name
}

// HasTag reports whether the unit carries tag (exact, case-sensitive).
func (u TestUnit) HasTag(tag string) bool {
	return slices.Contains(u.Tags, tag)
}

// Predicate is the integration membership test. A unit matches when its name
// or qualified name matches any pattern, or it carries any of the tags.
type Predicate struct {
	Patterns []string
	Tags     []string
}

// DefaultPredicate mirrors the *IntegrationTest / *IT naming convention plus
// the "integration" tag.
func DefaultPredicate() Predicate {
	return Predicate{
		Patterns: []string{"*IntegrationTest", "*IT"},
		Tags:     []string{"integration"},
	}
}

// Validate checks pattern syntax.
func (p Predicate) Validate() error {
	return validatePatterns("integration pattern", p.Patterns)
}

// Matches reports whether u belongs to the integration group.
func (p Predicate) Matches(u TestUnit) bool {
	if matchAny(p.Patterns, u) {
		return true
	}
	for _, tag := range p.Tags {
		if u.HasTag(tag) {
			return true
		}
	}
	return false
}

// Result holds the three disjoint subsequences of a partition, each in
// discovery order.
type Result struct {
	Standard    []TestUnit
	Integration []TestUnit
	Excluded    []TestUnit
}

// Units returns the members of g.
func (r Result) Units(g Group) []TestUnit {
	if g == Integration {
		return r.Integration
	}
	return r.Standard
}

// Total returns the number of partitioned units including excluded ones.
func (r Result) Total() int {
	return len(r.Standard) + len(r.Integration) + len(r.Excluded)
}

// Partition splits units into groups. Units matching an exclude pattern are
// set aside explicitly; everything else not matching pred is standard.
// Patterns are assumed valid (see Predicate.Validate and ValidateExclude).
func Partition(units []TestUnit, pred Predicate, exclude []string) Result {
	var r Result
	for _, u := range units {
		switch {
		case matchAny(exclude, u):
			r.Excluded = append(r.Excluded, u)
		case pred.Matches(u):
			r.Integration = append(r.Integration, u)
		default:
			r.Standard = append(r.Standard, u)
		}
	}
	return r
}

// Select returns the ordered subsequence of units belonging to g.
func Select(units []TestUnit, g Group, pred Predicate, exclude []string) []TestUnit {
	return Partition(units, pred, exclude).Units(g)
}

// GroupOf returns the group u would be placed in, and false if excluded.
func GroupOf(u TestUnit, pred Predicate, exclude []string) (Group, bool) {
	if matchAny(exclude, u) {
		return "", false
	}
	if pred.Matches(u) {
		return Integration, true
	}
	return Standard, true
}

// ValidateExclude checks exclude pattern syntax.
func ValidateExclude(patterns []string) error {
	return validatePatterns("exclude pattern", patterns)
}

func matchAny(patterns []string, u TestUnit) bool {
	qualified := u.QualifiedName()
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, u.Name); ok {
			return true
		}
		if ok, _ := doublestar.Match(p, qualified); ok {
			return true
		}
	}
	return false
}

func validatePatterns(kind string, patterns []string) error {
	for i, p := range patterns {
		if p == "" {
			return fmt.Errorf("%s #%d is empty", kind, i+1)
		}
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("%s #%d %q: invalid glob syntax", kind, i+1, p)
		}
	}
	return nil
}
