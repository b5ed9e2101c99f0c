package render

import (
	"fmt"
	"strings"

	"github.com/dkoosis/buildgate/pkg/pattern"
)

const (
	statusFail = "fail"
	statusSkip = "skip"

	maxDetailLines = 3
)

// LLM renders patterns as terse plain text optimized for AI consumption.
// Zero ANSI codes, pattern order preserved, failure output truncated.
type LLM struct{}

// NewLLM creates an LLM renderer.
func NewLLM() *LLM {
	return &LLM{}
}

// Render formats all patterns for LLM consumption.
func (l *LLM) Render(patterns []pattern.Pattern) string {
	var sb strings.Builder
	for i, p := range patterns {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch v := p.(type) {
		case *pattern.Summary:
			l.renderSummary(&sb, v)
		case *pattern.TestTable:
			l.renderTable(&sb, v)
		case *pattern.Leaderboard:
			l.renderLeaderboard(&sb, v)
		}
	}
	return sb.String()
}

func (l *LLM) renderSummary(sb *strings.Builder, s *pattern.Summary) {
	switch s.Kind {
	case pattern.SummaryKindTest:
		sb.WriteString("SCOPE: " + s.Label + "\n")
	case pattern.SummaryKindCoverage:
		sb.WriteString("COVERAGE: " + s.Label + "\n")
	default:
		sb.WriteString(s.Label + "\n")
	}
	for _, m := range s.Metrics {
		prefix := "  "
		if m.Kind == "error" {
			prefix = "  ERR "
		}
		sb.WriteString(prefix + m.Label + ": " + m.Value + "\n")
	}
}

func (l *LLM) renderTable(sb *strings.Builder, t *pattern.TestTable) {
	sb.WriteString(t.Label + "\n")
	for _, item := range t.Results {
		prefix := "  PASS"
		switch item.Status {
		case statusFail:
			prefix = "  FAIL"
		case statusSkip:
			prefix = "  SKIP"
		}

		dur := ""
		if item.Duration != "" {
			dur = " (" + item.Duration + ")"
		}
		fmt.Fprintf(sb, "%s %s%s\n", prefix, item.Name, dur)
		writeDetails(sb, item.Details)
	}
}

func (l *LLM) renderLeaderboard(sb *strings.Builder, lb *pattern.Leaderboard) {
	label := lb.Label
	if lb.TotalCount > len(lb.Items) {
		label += fmt.Sprintf(" (%d of %d)", len(lb.Items), lb.TotalCount)
	}
	sb.WriteString(label + "\n")
	for _, item := range lb.Items {
		fmt.Fprintf(sb, "  %d. %s %s", item.Rank, item.Name, item.Metric)
		if item.Context != "" {
			sb.WriteString(" " + item.Context)
		}
		sb.WriteString("\n")
	}
}

func writeDetails(sb *strings.Builder, details string) {
	if details == "" {
		return
	}
	lines := strings.Split(details, "\n")
	n := min(len(lines), maxDetailLines)
	for _, line := range lines[:n] {
		sb.WriteString("    " + line + "\n")
	}
	if len(lines) > maxDetailLines {
		fmt.Fprintf(sb, "    ... (%d more lines)\n", len(lines)-maxDetailLines)
	}
}
