package mapper

import (
	"fmt"

	"github.com/dkoosis/buildgate/pkg/coverage"
	"github.com/dkoosis/buildgate/pkg/pattern"
	"github.com/dkoosis/buildgate/pkg/report"
)

// DefaultLowestFiles is the leaderboard size used by FromCoverage.
const DefaultLowestFiles = 10

// FromCoverage converts a gate evaluation into a Summary with one item per
// rule, followed by a leaderboard of the least-covered files for each
// violated metric.
func FromCoverage(s *report.CoverageSummary, limit int) []pattern.Pattern {
	if limit <= 0 {
		limit = DefaultLowestFiles
	}

	items := make([]pattern.SummaryItem, 0, len(s.Rules)+1)
	for _, res := range s.Rules {
		items = append(items, ruleItem(res))
	}
	items = append(items, pattern.SummaryItem{
		Label: "Files",
		Value: fmt.Sprintf("%d included, %d excluded", s.Included, len(s.Excluded)),
		Kind:  "info",
	})

	label := "PASS coverage"
	if !s.Passed {
		label = fmt.Sprintf("FAIL coverage: %d of %d rules violated", len(s.Violations), len(s.Rules))
	}
	patterns := []pattern.Pattern{&pattern.Summary{
		Label:   label,
		Kind:    pattern.SummaryKindCoverage,
		Metrics: items,
	}}

	for _, v := range s.Violations {
		if lb := lowestFiles(s, v.Metric, limit); lb != nil {
			patterns = append(patterns, lb)
		}
	}
	return patterns
}

func ruleItem(res coverage.RuleResult) pattern.SummaryItem {
	item := pattern.SummaryItem{Label: string(res.Rule.Metric)}
	switch {
	case res.Vacuous:
		item.Value = fmt.Sprintf("no data (min %s)", report.Percent(res.Rule.Minimum))
		item.Kind = "warning"
	case res.Passed:
		item.Value = fmt.Sprintf("%s >= %s (%d/%d)", report.Percent(res.Actual), report.Percent(res.Rule.Minimum),
			res.Counter.Covered, res.Counter.Total)
		item.Kind = "success"
	default:
		item.Value = fmt.Sprintf("%s < %s (%d/%d)", report.Percent(res.Actual), report.Percent(res.Rule.Minimum),
			res.Counter.Covered, res.Counter.Total)
		item.Kind = "error"
	}
	return item
}

func lowestFiles(s *report.CoverageSummary, m coverage.Metric, limit int) *pattern.Leaderboard {
	files := s.Lowest(m, limit)
	if len(files) == 0 {
		return nil
	}
	total := 0
	for _, f := range s.Files {
		if f.Counters[m].Total > 0 {
			total++
		}
	}

	lb := &pattern.Leaderboard{
		Label:      fmt.Sprintf("Lowest %s coverage", m),
		MetricName: string(m),
		Direction:  "lowest",
		TotalCount: total,
		ShowRank:   true,
	}
	for i, f := range files {
		c := f.Counters[m]
		ratio, _ := c.Ratio()
		lb.Items = append(lb.Items, pattern.LeaderboardItem{
			Name:    f.Path,
			Metric:  report.Percent(ratio),
			Value:   ratio,
			Rank:    i + 1,
			Context: fmt.Sprintf("%d/%d", c.Covered, c.Total),
		})
	}
	return lb
}
