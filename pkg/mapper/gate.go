package mapper

import (
	"fmt"

	"github.com/dkoosis/buildgate/pkg/pattern"
	"github.com/dkoosis/buildgate/pkg/report"
)

// FromStages summarizes the pipeline stages of a run.
func FromStages(r *report.Report) *pattern.Summary {
	items := make([]pattern.SummaryItem, 0, len(r.Stages))
	failed := 0
	for _, s := range r.Stages {
		item := pattern.SummaryItem{Label: s.Name, Value: fmt.Sprintf("%s (%s)", s.Status, formatDuration(s.Duration))}
		switch s.Status {
		case "SUCCEEDED":
			item.Kind = "success"
		case "FAILED":
			item.Kind = "error"
			failed++
			if s.Error != "" {
				item.Value += ": " + truncateString(s.Error, 200)
			}
		default:
			item.Kind = "warning"
		}
		items = append(items, item)
	}

	label := fmt.Sprintf("BUILD SUCCESSFUL (run %s)", r.RunID)
	if !r.Passed {
		label = fmt.Sprintf("BUILD FAILED: %d of %d stages failed (run %s)", failed, len(r.Stages), r.RunID)
	}
	return &pattern.Summary{Label: label, Kind: pattern.SummaryKindGate, Metrics: items}
}
