// Package report assembles the outcome of a gate run and writes it as JSON
// or as a plain-text coverage table.
package report

import (
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dkoosis/buildgate/pkg/coverage"
)

// Report is the outcome of one invocation.
type Report struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Passed      bool             `json:"passed"`
	Groups      []GroupSummary   `json:"groups,omitempty"`
	Coverage    *CoverageSummary `json:"coverage,omitempty"`
	Stages      []StageSummary   `json:"stages,omitempty"`
}

// GroupSummary is one executed test group.
type GroupSummary struct {
	Group         string        `json:"group"`
	Passed        int           `json:"passed"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	Duration      time.Duration `json:"duration_ns"`
	FailedTests   []FailedTest  `json:"failed_tests,omitempty"`
	BuildFailures []string      `json:"build_failures,omitempty"`
}

// FailedTest names a failed unit and its captured output.
type FailedTest struct {
	Package string   `json:"package"`
	Name    string   `json:"name"`
	Output  []string `json:"output,omitempty"`
}

// CoverageSummary is the gate evaluation plus per-file detail.
type CoverageSummary struct {
	Passed     bool                                 `json:"passed"`
	Rules      []coverage.RuleResult                `json:"rules"`
	Violations []coverage.Violation                 `json:"violations"`
	Totals     map[coverage.Metric]coverage.Counter `json:"totals"`
	Included   int                                  `json:"included"`
	Excluded   []string                             `json:"excluded,omitempty"`
	Files      []FileCoverage                       `json:"files,omitempty"`
}

// FileCoverage is one included record.
type FileCoverage struct {
	Path     string                               `json:"path"`
	Counters map[coverage.Metric]coverage.Counter `json:"counters"`
}

// StageSummary is one pipeline stage.
type StageSummary struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// New returns an empty report with a fresh run ID.
func New(now time.Time) *Report {
	return &Report{RunID: uuid.NewString(), GeneratedAt: now.UTC(), Passed: true}
}

// NewCoverageSummary builds the summary for a verdict over records.
func NewCoverageSummary(records []coverage.Record, exclusions []coverage.Exclusion, v coverage.Verdict) *CoverageSummary {
	kept, _ := coverage.Filter(records, exclusions)
	s := &CoverageSummary{
		Passed:     v.Passed(),
		Rules:      v.Results,
		Violations: v.Violations,
		Totals:     coverage.Aggregate(kept),
		Included:   len(kept),
		Excluded:   v.Excluded,
	}
	for _, r := range kept {
		s.Files = append(s.Files, FileCoverage{Path: r.Path, Counters: r.Counters})
	}
	return s
}

// Lowest returns up to n included files with the lowest ratio for m,
// skipping files without units of m. Ties order by path.
func (s *CoverageSummary) Lowest(m coverage.Metric, n int) []FileCoverage {
	var out []FileCoverage
	for _, f := range s.Files {
		if f.Counters[m].Total > 0 {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, _ := out[i].Counters[m].Ratio()
		rj, _ := out[j].Counters[m].Ratio()
		if ri != rj {
			return ri < rj
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// AddGroup appends a group and updates the overall outcome.
func (r *Report) AddGroup(g GroupSummary) {
	r.Groups = append(r.Groups, g)
	if g.Failed > 0 || len(g.BuildFailures) > 0 {
		r.Passed = false
	}
}

// SetCoverage records the gate outcome.
func (r *Report) SetCoverage(s *CoverageSummary) {
	r.Coverage = s
	if !s.Passed {
		r.Passed = false
	}
}

// AddStage appends a stage result.
func (r *Report) AddStage(s StageSummary) {
	r.Stages = append(r.Stages, s)
	if s.Status == "FAILED" {
		r.Passed = false
	}
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
