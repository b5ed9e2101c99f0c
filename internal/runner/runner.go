// Package runner discovers Go tests and executes partition groups with
// go test -json.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dkoosis/buildgate/internal/discover"
	"github.com/dkoosis/buildgate/pkg/partition"
	"github.com/dkoosis/buildgate/pkg/testjson"
)

// Options configure discovery and execution.
type Options struct {
	GoBin       string
	Dir         string   // module root
	Packages    []string // package patterns, e.g. ./...
	BuildTags   []string // passed as -tags
	TagFilter   []string // tags attributed to units from //go:build lines
	Parallelism int
	CoverDir    string // empty disables -coverprofile
	Timeout     time.Duration
}

// Runner executes go test through a Commander.
type Runner struct {
	cmd  Commander
	opts Options
	log  zerolog.Logger
}

// New returns a Runner.
func New(cmd Commander, opts Options, log zerolog.Logger) *Runner {
	if opts.GoBin == "" {
		opts.GoBin = "go"
	}
	if len(opts.Packages) == 0 {
		opts.Packages = []string{"./..."}
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Runner{cmd: cmd, opts: opts, log: log}
}

func (r *Runner) tagArgs() []string {
	if len(r.opts.BuildTags) == 0 {
		return nil
	}
	return []string{"-tags", strings.Join(r.opts.BuildTags, ",")}
}

// Discover lists every test, example and fuzz target of the configured
// packages and attaches build tags from their //go:build constraints.
func (r *Runner) Discover(ctx context.Context) (Discovery, error) {
	pkgs, err := r.listPackages(ctx)
	if err != nil {
		return Discovery{}, err
	}
	byPath := make(map[string]discover.Package, len(pkgs))
	for _, p := range pkgs {
		byPath[p.ImportPath] = p
	}

	var stdout, stderr bytes.Buffer
	args := append([]string{"test", "-list", ".", "-json"}, r.tagArgs()...)
	args = append(args, r.opts.Packages...)
	if err := r.run(ctx, &stdout, &stderr, args...); err != nil {
		return Discovery{}, err
	}
	listed, _, err := testjson.ListedTests(&stdout)
	if err != nil {
		return Discovery{}, &RuntimeError{Op: "listing tests", Err: err}
	}

	var d Discovery
	for _, lp := range listed {
		if lp.Failed {
			out := lp.Output
			if len(out) == 0 {
				out = nonEmptyLines(stderr.String())
			}
			d.Failures = append(d.Failures, PackageFailure{Package: lp.Package, Output: out})
			r.log.Error().Str("package", lp.Package).Msg("package failed to build during discovery")
			continue
		}
		var tags map[string][]string
		if p, ok := byPath[lp.Package]; ok && len(r.opts.TagFilter) > 0 && len(p.TestFiles()) > 0 {
			funcs, err := discover.ScanFiles(p.Dir, p.TestFiles(), r.opts.TagFilter)
			if err != nil {
				return Discovery{}, &RuntimeError{Op: "scanning build tags", Err: err}
			}
			tags = discover.TagIndex(funcs)
		}
		for _, name := range lp.Tests {
			if strings.HasPrefix(name, "Benchmark") {
				continue
			}
			d.Units = append(d.Units, partition.TestUnit{Package: lp.Package, Name: name, Tags: tags[name]})
		}
	}
	failed := make(map[string]bool, len(d.Failures))
	for _, f := range d.Failures {
		failed[f.Package] = true
	}
	for _, p := range pkgs {
		if p.HasCode() && !failed[p.ImportPath] {
			d.Packages = append(d.Packages, p.ImportPath)
		}
	}
	r.log.Debug().Int("units", len(d.Units)).Int("packages", len(listed)).Msg("discovered tests")
	return d, nil
}

func (r *Runner) listPackages(ctx context.Context) ([]discover.Package, error) {
	var stdout, stderr bytes.Buffer
	args := append([]string{"list", "-e", "-json"}, r.tagArgs()...)
	args = append(args, r.opts.Packages...)
	if err := r.run(ctx, &stdout, &stderr, args...); err != nil {
		return nil, err
	}
	pkgs, err := discover.DecodePackages(&stdout)
	if err != nil {
		return nil, &RuntimeError{Op: "listing packages", Err: err}
	}
	return pkgs, nil
}

// run executes the go tool. A non-zero exit is tolerated because go test
// reports test and build failures that way; other failures are runtime errors.
func (r *Runner) run(ctx context.Context, stdout, stderr io.Writer, args ...string) error {
	err := r.cmd.Run(ctx, r.opts.Dir, stdout, stderr, r.opts.GoBin, args...)
	var exitErr *ExitError
	switch {
	case err == nil, errors.As(err, &exitErr):
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return &RuntimeError{Op: fmt.Sprintf("%s %s", r.opts.GoBin, args[0]), Err: err}
	}
}

// GroupRun describes one group execution.
type GroupRun struct {
	Group    partition.Group
	Units    []partition.TestUnit
	Failures []PackageFailure // packages that failed discovery
	Verbose  bool             // log output of every unit, not only failures
	// Packages in scope for coverage. Those without selected units are run
	// with no tests so their code still counts as uncovered.
	Packages []string
}

type packageUnits struct {
	path  string
	index []int // positions in GroupRun.Units
}

type packageRun struct {
	result  testjson.TestPackageResult
	found   bool
	stderr  []string
	profile string
}

// RunGroup executes the selected units, one go test process per package with
// at most Parallelism running at once. Outcomes are written back onto the
// returned units in discovery order. Test failures are reported through
// GroupResult.Err; the returned error is reserved for runtime failures.
func (r *Runner) RunGroup(ctx context.Context, run GroupRun) (GroupResult, error) {
	start := time.Now()
	log := r.log.With().Str("group", string(run.Group)).Logger()

	res := GroupResult{
		Group:    run.Group,
		Units:    append([]partition.TestUnit(nil), run.Units...),
		Failures: run.Failures,
	}
	for i := range res.Units {
		res.Units[i].Outcome = partition.OutcomePending
		res.Units[i].Output = nil
	}
	pkgs := groupByPackage(res.Units)
	coverOnly := r.coverageOnly(run.Packages, pkgs)
	if len(res.Units) == 0 {
		log.Warn().Msg("no tests selected")
		if len(coverOnly) == 0 {
			res.Duration = time.Since(start)
			return res, nil
		}
	}
	runs := make([]packageRun, len(pkgs)+len(coverOnly))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)
	for i, pu := range pkgs {
		names := make([]string, 0, len(pu.index))
		for _, idx := range pu.index {
			names = append(names, res.Units[idx].Name)
		}
		g.Go(func() error {
			pr, err := r.runPackage(gctx, log, run, i, pu.path, names)
			if err != nil {
				return err
			}
			runs[i] = pr
			return nil
		})
	}
	for j, pkg := range coverOnly {
		i := len(pkgs) + j
		g.Go(func() error {
			pr, err := r.runPackage(gctx, log, run, i, pkg, nil)
			if err != nil {
				return err
			}
			runs[i] = pr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	for i, pu := range pkgs {
		pr := runs[i]
		if pr.found {
			res.Packages = append(res.Packages, pr.result)
		}
		if pr.profile != "" {
			res.Profiles = append(res.Profiles, pr.profile)
		}
		for _, idx := range pu.index {
			applyOutcome(&res.Units[idx], pr)
		}
	}
	for _, pr := range runs[len(pkgs):] {
		if pr.profile == "" {
			continue
		}
		if _, err := os.Stat(pr.profile); err == nil {
			res.Profiles = append(res.Profiles, pr.profile)
		}
	}

	res.Duration = time.Since(start)
	passed, failed, skipped := res.Counts()
	ev := log.Info()
	if res.Failed() {
		ev = log.Error()
	}
	ev.Int("passed", passed).Int("failed", failed).Int("skipped", skipped).
		Dur("duration", res.Duration).Msg("group finished")
	return res, nil
}

func groupByPackage(units []partition.TestUnit) []packageUnits {
	var out []packageUnits
	pos := map[string]int{}
	for i, u := range units {
		p, ok := pos[u.Package]
		if !ok {
			p = len(out)
			pos[u.Package] = p
			out = append(out, packageUnits{path: u.Package})
		}
		out[p].index = append(out[p].index, i)
	}
	return out
}

// coverageOnly returns the in-scope packages that have no selected units.
// Without a cover directory there is nothing to collect.
func (r *Runner) coverageOnly(scope []string, selected []packageUnits) []string {
	if r.opts.CoverDir == "" {
		return nil
	}
	has := make(map[string]bool, len(selected))
	for _, pu := range selected {
		has[pu.path] = true
	}
	var out []string
	for _, p := range scope {
		if !has[p] {
			out = append(out, p)
		}
	}
	return out
}

// RunPattern returns an anchored -run expression selecting exactly names.
// No names selects no tests.
func RunPattern(names []string) string {
	if len(names) == 0 {
		return "^$"
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return "^(" + strings.Join(quoted, "|") + ")$"
}

func (r *Runner) runPackage(ctx context.Context, log zerolog.Logger, run GroupRun, idx int, pkg string, names []string) (packageRun, error) {
	log = log.With().Str("package", pkg).Logger()
	selected := make(map[string]bool, len(names))
	for _, n := range names {
		selected[n] = true
	}

	args := []string{"test", "-json", "-count=1", "-run", RunPattern(names)}
	args = append(args, r.tagArgs()...)
	if r.opts.Timeout > 0 {
		args = append(args, "-timeout", r.opts.Timeout.String())
	}
	var profile string
	if r.opts.CoverDir != "" {
		profile = filepath.Join(r.opts.CoverDir, fmt.Sprintf("%s-%03d.out", run.Group, idx))
		args = append(args, "-coverprofile", profile)
	}
	args = append(args, pkg)

	pr, pw := io.Pipe()
	var stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		err := r.cmd.Run(ctx, r.opts.Dir, pw, &stderr, r.opts.GoBin, args...)
		_ = pw.Close()
		done <- err
	}()

	agg := testjson.NewAggregator()
	outputs := map[string][]string{}
	_, streamErr := testjson.Stream(ctx, pr, func(e testjson.TestEvent) {
		agg.Add(e)
		if !selected[e.Test] {
			return
		}
		switch e.Action {
		case testjson.ActionOutput:
			if line := strings.TrimRight(stripansi.Strip(e.Output), "\n"); line != "" {
				outputs[e.Test] = append(outputs[e.Test], line)
			}
		case testjson.StatusPass, testjson.StatusFail, testjson.StatusSkip:
			logUnit(log, e, outputs[e.Test], run.Verbose)
		}
	})
	runErr := <-done
	if streamErr != nil {
		return packageRun{}, streamErr
	}

	var exitErr *ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		if ctx.Err() != nil {
			return packageRun{}, ctx.Err()
		}
		return packageRun{}, &RuntimeError{Op: "go test " + pkg, Err: runErr}
	}

	out := packageRun{stderr: nonEmptyLines(stripansi.Strip(stderr.String()))}
	for _, p := range agg.Results() {
		if p.Name == pkg {
			out.result = p
			out.found = true
		}
	}
	if !out.found && exitErr != nil {
		// The process failed without reporting the package: treat as a build failure.
		out.result = testjson.TestPackageResult{Name: pkg, BuildError: strings.Join(out.stderr, "\n")}
		if out.result.BuildError == "" {
			out.result.BuildError = exitErr.Error()
		}
		out.found = true
	}
	// A package with no tests to run may report nothing but still writes a profile.
	if profile != "" && (out.found || len(names) == 0) && out.result.BuildError == "" {
		out.profile = profile
	}
	if out.found && out.result.BuildError != "" {
		log.Error().Msg("package failed to build")
		for _, line := range buildOutput(out) {
			log.Error().Msg(line)
		}
	}
	return out, nil
}

func logUnit(log zerolog.Logger, e testjson.TestEvent, output []string, verbose bool) {
	dur := time.Duration(e.Elapsed * float64(time.Second))
	var ev *zerolog.Event
	var outcome partition.Outcome
	switch e.Action {
	case testjson.StatusPass:
		ev, outcome = log.Info(), partition.OutcomePassed
	case testjson.StatusSkip:
		ev, outcome = log.Info(), partition.OutcomeSkipped
	default:
		ev, outcome = log.Error(), partition.OutcomeFailed
	}
	ev.Str("test", e.Test).Dur("duration", dur).Msg(string(outcome))
	if verbose || outcome == partition.OutcomeFailed {
		for _, line := range output {
			log.Info().Str("test", e.Test).Msg(line)
		}
	}
}

func buildOutput(pr packageRun) []string {
	lines := nonEmptyLines(pr.result.BuildError)
	if len(lines) == 1 && len(pr.stderr) > 0 && lines[0] != pr.stderr[0] {
		lines = append(lines, pr.stderr...)
	}
	return lines
}

func applyOutcome(u *partition.TestUnit, pr packageRun) {
	if !pr.found {
		u.Outcome = partition.OutcomeFailed
		u.Output = []string{"no result reported"}
		return
	}
	if pr.result.BuildError != "" {
		u.Outcome = partition.OutcomeFailed
		u.Output = buildOutput(pr)
		return
	}
	tr, ok := pr.result.Test(u.Name)
	if !ok {
		u.Outcome = partition.OutcomeFailed
		u.Output = []string{"no result reported"}
		return
	}
	u.Duration = tr.Duration
	u.Output = stripLines(tr.Output)
	switch tr.Status {
	case testjson.TestPass:
		u.Outcome = partition.OutcomePassed
	case testjson.TestSkip:
		u.Outcome = partition.OutcomeSkipped
	default:
		u.Outcome = partition.OutcomeFailed
	}
}

func stripLines(lines []string) []string {
	if len(lines) == 0 {
		return nil
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = stripansi.Strip(l)
	}
	return out
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimRight(l, "\r"); strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
