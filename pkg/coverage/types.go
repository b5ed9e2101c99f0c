// Package coverage filters, aggregates and evaluates coverage records against
// minimum-ratio rules.
package coverage

import (
	"fmt"
	"sort"
)

// Metric names a coverage counter.
type Metric string

const (
	Instruction Metric = "INSTRUCTION"
	Branch      Metric = "BRANCH"
	Line        Metric = "LINE"
	Complexity  Metric = "COMPLEXITY"
	Method      Metric = "METHOD"
	Class       Metric = "CLASS"
	Statement   Metric = "STATEMENT"
)

var knownMetrics = map[Metric]bool{
	Instruction: true,
	Branch:      true,
	Line:        true,
	Complexity:  true,
	Method:      true,
	Class:       true,
	Statement:   true,
}

// Known reports whether m is a recognized metric. Names are case-sensitive.
func (m Metric) Known() bool { return knownMetrics[m] }

// KnownMetrics returns all recognized metrics in sorted order.
func KnownMetrics() []Metric {
	out := make([]Metric, 0, len(knownMetrics))
	for m := range knownMetrics {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Counter holds covered and total unit counts for one metric.
type Counter struct {
	Covered int64 `json:"covered"`
	Total   int64 `json:"total"`
}

// Missed returns Total - Covered.
func (c Counter) Missed() int64 { return c.Total - c.Covered }

// Add returns the element-wise sum.
func (c Counter) Add(o Counter) Counter {
	return Counter{Covered: c.Covered + o.Covered, Total: c.Total + o.Total}
}

// Ratio returns Covered/Total and false when Total is zero.
func (c Counter) Ratio() (float64, bool) {
	if c.Total == 0 {
		return 0, false
	}
	return float64(c.Covered) / float64(c.Total), true
}

// Record is the coverage of one source unit (a Go file or a JVM class).
type Record struct {
	Path     string             `json:"path"`
	Source   string             `json:"source,omitempty"` // display name, e.g. the .java file
	Counters map[Metric]Counter `json:"counters"`
}

// Counter returns the counter for m, zero if absent.
func (r Record) Counter(m Metric) Counter {
	return r.Counters[m]
}

// Exclusion omits every record whose path matches Pattern (doublestar glob).
type Exclusion struct {
	Pattern string `json:"pattern" yaml:"pattern"`
}

// Rule requires the aggregated ratio for Metric to be at least Minimum.
type Rule struct {
	Metric  Metric  `json:"metric" yaml:"metric"`
	Minimum float64 `json:"minimum" yaml:"minimum"`
}

func (r Rule) String() string {
	return fmt.Sprintf("%s >= %.2f", r.Metric, r.Minimum)
}

// RuleResult is the evaluation of one rule; the gate reports one per rule
// whether it passed or not.
type RuleResult struct {
	Rule    Rule    `json:"rule"`
	Counter Counter `json:"counter"`
	Actual  float64 `json:"actual"`
	Passed  bool    `json:"passed"`
	// Vacuous is set when no units of the metric were found (total = 0).
	// The rule is then treated as satisfied.
	Vacuous bool `json:"vacuous,omitempty"`
}

// Violation is an unmet rule.
type Violation struct {
	Metric   Metric  `json:"metric"`
	Actual   float64 `json:"actual"`
	Required float64 `json:"required"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s coverage %.2f%% is below the required %.2f%%", v.Metric, v.Actual*100, v.Required*100)
}

// Verdict is the gate decision.
type Verdict struct {
	Results    []RuleResult `json:"results"`
	Violations []Violation  `json:"violations"`
	Included   []string     `json:"included"`
	Excluded   []string     `json:"excluded"`
}

// Passed reports whether every rule was satisfied.
func (v Verdict) Passed() bool { return len(v.Violations) == 0 }

// Err returns a *ViolationError listing every violation, or nil.
func (v Verdict) Err() error {
	if v.Passed() {
		return nil
	}
	return &ViolationError{Violations: v.Violations}
}
