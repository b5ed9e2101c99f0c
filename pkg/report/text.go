package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/dkoosis/buildgate/pkg/coverage"
)

// WriteCoverageText writes the rule table, then the violations, then every
// excluded path.
func WriteCoverageText(w io.Writer, s *CoverageSummary) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Coverage Verification")
	t.AppendHeader(table.Row{"Metric", "Covered", "Missed", "Total", "Ratio", "Minimum", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Covered", Align: text.AlignRight},
		{Name: "Missed", Align: text.AlignRight},
		{Name: "Total", Align: text.AlignRight},
		{Name: "Ratio", Align: text.AlignRight},
		{Name: "Minimum", Align: text.AlignRight},
	})

	for _, res := range s.Rules {
		ratio := Percent(res.Actual)
		if res.Vacuous {
			ratio = "n/a"
		}
		t.AppendRow(table.Row{
			res.Rule.Metric,
			res.Counter.Covered,
			res.Counter.Missed(),
			res.Counter.Total,
			ratio,
			Percent(res.Rule.Minimum),
			ruleStatus(res),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "Result", verdictWord(s.Passed)})
	t.Render()

	var b strings.Builder
	if len(s.Violations) > 0 {
		b.WriteString("\nViolations:\n")
		for _, v := range s.Violations {
			fmt.Fprintf(&b, "  - %s\n", v)
		}
	}
	fmt.Fprintf(&b, "\nIncluded files: %d\n", s.Included)
	if len(s.Excluded) > 0 {
		fmt.Fprintf(&b, "Excluded files: %d\n", len(s.Excluded))
		for _, p := range s.Excluded {
			fmt.Fprintf(&b, "  - %s\n", p)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteFilesText writes one row per included file with the given metrics.
func WriteFilesText(w io.Writer, s *CoverageSummary, metrics []coverage.Metric) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	header := table.Row{"File"}
	for _, m := range metrics {
		header = append(header, m)
	}
	t.AppendHeader(header)
	for _, f := range s.Files {
		row := table.Row{f.Path}
		for _, m := range metrics {
			c := f.Counters[m]
			if r, ok := c.Ratio(); ok {
				row = append(row, fmt.Sprintf("%s (%d/%d)", Percent(r), c.Covered, c.Total))
			} else {
				row = append(row, "-")
			}
		}
		t.AppendRow(row)
	}
	t.Render()
}

// Percent formats a ratio as a percentage with two decimals.
func Percent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}

func ruleStatus(res coverage.RuleResult) string {
	switch {
	case res.Vacuous:
		return "PASS (no data)"
	case res.Passed:
		return "PASS"
	default:
		return "FAIL"
	}
}

func verdictWord(passed bool) string {
	if passed {
		return "PASSED"
	}
	return "FAILED"
}
