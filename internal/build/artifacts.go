package build

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dkoosis/buildgate/internal/runner"
	"github.com/dkoosis/buildgate/pkg/covdata"
	"github.com/dkoosis/buildgate/pkg/coverage"
	"github.com/dkoosis/buildgate/pkg/report"
	"github.com/dkoosis/buildgate/pkg/sarif"
)

func (g *Gate) writeCoverageReports() error {
	dir := g.cfg.CoverageDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &runner.RuntimeError{Op: "creating coverage directory", Err: err}
	}

	if err := writeFile(filepath.Join(dir, ReportText), func(f *os.File) error {
		if err := report.WriteCoverageText(f, g.summary); err != nil {
			return err
		}
		fmt.Fprintln(f)
		report.WriteFilesText(f, g.summary, reportMetrics(g.summary))
		return nil
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, ReportJSON), func(f *os.File) error {
		return report.WriteJSON(f, g.summary)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, MergedRecords), func(f *os.File) error {
		return covdata.WriteRecords(f, g.records)
	}); err != nil {
		return err
	}
	if g.cfg.Coverage.SARIF {
		if err := g.writeSARIF(filepath.Join(dir, ReportSARIF)); err != nil {
			return err
		}
	}
	g.log.Info().Str("dir", dir).Msg("coverage reports written")
	return nil
}

func (g *Gate) writeSARIF(path string) error {
	b := sarif.NewBuilder("buildgate", g.opts.Version)
	for _, grp := range g.order {
		res := g.groups[grp]
		b.AddFailedTests(grp, res.Units)
		for _, f := range res.Failures {
			b.AddBuildFailure(grp, f.Package, f.Output)
		}
	}
	if g.verdict != nil {
		b.AddViolations(g.verdict.Violations)
	}
	b.SetExecutionSuccessful(g.report.Passed)

	stats := sarif.ComputeStats(b.Document())
	ev := g.log.Info().Int("issues", stats.TotalIssues).Int("errors", stats.ByLevel["error"])
	// A report left by an earlier run shows whether this one regressed.
	if prev, err := sarif.ReadFile(path); err == nil {
		ev = ev.Int("previous_issues", sarif.ComputeStats(prev).TotalIssues)
	} else if !errors.Is(err, fs.ErrNotExist) {
		g.log.Warn().Err(err).Str("path", path).Msg("ignoring unreadable sarif report")
	}
	if err := writeFile(path, func(f *os.File) error {
		_, err := b.WriteTo(f)
		return err
	}); err != nil {
		return err
	}
	ev.Str("path", path).Msg("sarif report written")
	return nil
}

// writeRunArtifacts writes the run report and, when configured, the
// Prometheus textfile.
func (g *Gate) writeRunArtifacts() error {
	if err := os.MkdirAll(g.cfg.OutputDir, 0o755); err != nil {
		return &runner.RuntimeError{Op: "creating output directory", Err: err}
	}
	if err := writeFile(filepath.Join(g.cfg.OutputDir, RunReport), func(f *os.File) error {
		return report.WriteJSON(f, g.report)
	}); err != nil {
		return err
	}
	if g.cfg.MetricsFile != "" {
		if err := g.metrics.WriteTextfile(g.cfg.MetricsFile); err != nil {
			return &runner.RuntimeError{Op: "writing metrics", Err: err}
		}
	}
	return nil
}

// reportMetrics lists the metrics present in any included file, rule
// metrics first.
func reportMetrics(s *report.CoverageSummary) []coverage.Metric {
	seen := map[coverage.Metric]bool{}
	var out []coverage.Metric
	for _, r := range s.Rules {
		if !seen[r.Rule.Metric] {
			seen[r.Rule.Metric] = true
			out = append(out, r.Rule.Metric)
		}
	}
	for _, m := range coverage.KnownMetrics() {
		if seen[m] {
			continue
		}
		if t, ok := s.Totals[m]; ok && t.Total > 0 {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return &runner.RuntimeError{Op: "writing " + filepath.Base(path), Err: err}
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return &runner.RuntimeError{Op: "writing " + filepath.Base(path), Err: err}
	}
	if err := f.Close(); err != nil {
		return &runner.RuntimeError{Op: "writing " + filepath.Base(path), Err: err}
	}
	return nil
}
