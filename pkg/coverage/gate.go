package coverage

import (
	"fmt"
	"math"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hashicorp/go-multierror"
)

// Validate checks every exclusion and rule, collecting all problems.
func Validate(exclusions []Exclusion, rules []Rule) error {
	var result *multierror.Error
	for i, ex := range exclusions {
		switch {
		case ex.Pattern == "":
			result = multierror.Append(result, fmt.Errorf("exclusion #%d: empty pattern", i+1))
		case !doublestar.ValidatePattern(ex.Pattern):
			result = multierror.Append(result, fmt.Errorf("exclusion #%d %q: invalid glob syntax", i+1, ex.Pattern))
		}
	}
	for i, r := range rules {
		if !r.Metric.Known() {
			result = multierror.Append(result, fmt.Errorf("rule #%d: unknown metric %q (expected one of %v)", i+1, r.Metric, KnownMetrics()))
		}
		if r.Minimum < 0 || r.Minimum > 1 || math.IsNaN(r.Minimum) {
			result = multierror.Append(result, fmt.Errorf("rule #%d (%s): minimum %v outside [0, 1]", i+1, r.Metric, r.Minimum))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

// Excluded reports whether path matches any exclusion. Patterns are assumed
// valid.
func Excluded(path string, exclusions []Exclusion) bool {
	for _, ex := range exclusions {
		if ok, _ := doublestar.Match(ex.Pattern, path); ok {
			return true
		}
	}
	return false
}

// Filter splits records into those kept for aggregation and those excluded.
// Input order is preserved in both.
func Filter(records []Record, exclusions []Exclusion) (kept, excluded []Record) {
	for _, r := range records {
		if Excluded(r.Path, exclusions) {
			excluded = append(excluded, r)
			continue
		}
		kept = append(kept, r)
	}
	return kept, excluded
}

// Aggregate sums the counters of every record per metric.
func Aggregate(records []Record) map[Metric]Counter {
	totals := make(map[Metric]Counter)
	for _, r := range records {
		for m, c := range r.Counters {
			totals[m] = totals[m].Add(c)
		}
	}
	return totals
}

// Evaluate filters records, aggregates each rule's metric and compares the
// resulting ratio against the rule minimum. Excluded records contribute to
// neither numerator nor denominator. A metric with zero total satisfies its
// rule vacuously. Every unmet rule produces a Violation.
func Evaluate(records []Record, exclusions []Exclusion, rules []Rule) (Verdict, error) {
	if err := Validate(exclusions, rules); err != nil {
		return Verdict{}, err
	}
	if len(rules) > 0 && len(records) == 0 {
		return Verdict{}, &ConfigError{Err: ErrNoRecords}
	}

	kept, excluded := Filter(records, exclusions)
	totals := Aggregate(kept)

	v := Verdict{
		Results:    make([]RuleResult, 0, len(rules)),
		Violations: []Violation{},
		Included:   paths(kept),
		Excluded:   paths(excluded),
	}
	for _, rule := range rules {
		c := totals[rule.Metric]
		res := RuleResult{Rule: rule, Counter: c}
		ratio, ok := c.Ratio()
		switch {
		case !ok:
			res.Vacuous = true
			res.Passed = true
		case ratio >= rule.Minimum:
			res.Actual = ratio
			res.Passed = true
		default:
			res.Actual = ratio
			v.Violations = append(v.Violations, Violation{
				Metric:   rule.Metric,
				Actual:   ratio,
				Required: rule.Minimum,
			})
		}
		v.Results = append(v.Results, res)
	}
	return v, nil
}

func paths(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Path)
	}
	return out
}
