package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dkoosis/buildgate/internal/build"
	"github.com/dkoosis/buildgate/internal/config"
	"github.com/dkoosis/buildgate/internal/runner"
	"github.com/dkoosis/buildgate/pkg/mapper"
	"github.com/dkoosis/buildgate/pkg/partition"
	"github.com/dkoosis/buildgate/pkg/pattern"
	"github.com/dkoosis/buildgate/pkg/render"
)

// render writes the outcome of a run to stdout. A run rejected before any
// stage started has nothing to show.
func (a *app) render(cfg *config.Config, out build.Outcome) {
	if out.Report == nil || len(out.Report.Stages) == 0 {
		return
	}
	fmt.Fprint(a.stdout, a.renderer(cfg).Render(outcomePatterns(out)))
}

func (a *app) renderer(cfg *config.Config) render.Renderer {
	return selectRenderer(resolveFormat(cfg.Format, a.stdout), cfg.Theme, a.stdout)
}

func outcomePatterns(out build.Outcome) []pattern.Pattern {
	var patterns []pattern.Pattern
	for _, g := range out.Groups {
		patterns = append(patterns, mapper.FromTestJSON(string(g.Group), g.Packages)...)
		if len(g.Failures) > 0 {
			patterns = append(patterns, buildFailureTable(g.Group, g.Failures))
		}
	}
	if out.Coverage != nil {
		patterns = append(patterns, mapper.FromCoverage(out.Coverage, mapper.DefaultLowestFiles)...)
	}
	return append(patterns, mapper.FromStages(out.Report))
}

func buildFailureTable(g partition.Group, failures []runner.PackageFailure) *pattern.TestTable {
	t := &pattern.TestTable{Label: fmt.Sprintf("Build failures (%s)", g)}
	for _, f := range failures {
		t.Results = append(t.Results, pattern.TestTableItem{
			Name:    f.Package,
			Status:  "fail",
			Details: joinLines(f.Output),
		})
	}
	return t
}

// listPatterns shows the partition: a summary with group sizes and one
// table per non-empty group.
func listPatterns(res partition.Result, failures []runner.PackageFailure) []pattern.Pattern {
	sum := &pattern.Summary{
		Label: fmt.Sprintf("%d tests discovered", res.Total()),
		Kind:  pattern.SummaryKindTest,
		Metrics: []pattern.SummaryItem{
			{Label: "Standard", Value: fmt.Sprint(len(res.Standard)), Kind: "info"},
			{Label: "Integration", Value: fmt.Sprint(len(res.Integration)), Kind: "info"},
			{Label: "Excluded", Value: fmt.Sprint(len(res.Excluded)), Kind: "warning"},
		},
	}
	if len(failures) > 0 {
		sum.Metrics = append(sum.Metrics, pattern.SummaryItem{
			Label: "Build failures", Value: fmt.Sprint(len(failures)), Kind: "error",
		})
	}
	patterns := []pattern.Pattern{sum}
	for _, grp := range []struct {
		label string
		units []partition.TestUnit
	}{
		{"Standard tests", res.Standard},
		{"Integration tests", res.Integration},
		{"Excluded tests", res.Excluded},
	} {
		if len(grp.units) == 0 {
			continue
		}
		t := &pattern.TestTable{Label: fmt.Sprintf("%s (%d)", grp.label, len(grp.units))}
		for _, u := range grp.units {
			t.Results = append(t.Results, pattern.TestTableItem{Name: u.QualifiedName(), Status: "skip"})
		}
		patterns = append(patterns, t)
	}
	if len(failures) > 0 {
		patterns = append(patterns, buildFailureTable("discovery", failures))
	}
	return patterns
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

// isTTYWriter reports whether w is a terminal.
func isTTYWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func selectRenderer(mode, themeName string, w io.Writer) render.Renderer {
	switch mode {
	case "json":
		return render.NewJSON()
	case "llm":
		return render.NewLLM()
	default:
		theme := render.ThemeByName(themeName)
		// Honor NO_COLOR
		if os.Getenv("NO_COLOR") != "" {
			theme = render.MonoTheme()
		}
		width := 80
		if f, ok := w.(*os.File); ok {
			if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 {
				width = tw
			}
		}
		return render.NewTerminal(theme, width)
	}
}

// resolveFormat maps auto to terminal on a TTY and llm otherwise.
func resolveFormat(format string, w io.Writer) string {
	if format != "auto" {
		return format
	}
	if isTTYWriter(w) {
		return "terminal"
	}
	return "llm"
}
