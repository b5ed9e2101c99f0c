// Package build wires the partitioner, the test runner and the coverage gate
// into the stage pipeline.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkoosis/buildgate/internal/config"
	"github.com/dkoosis/buildgate/internal/metrics"
	"github.com/dkoosis/buildgate/internal/pipeline"
	"github.com/dkoosis/buildgate/internal/runner"
	"github.com/dkoosis/buildgate/pkg/covdata"
	"github.com/dkoosis/buildgate/pkg/coverage"
	"github.com/dkoosis/buildgate/pkg/partition"
	"github.com/dkoosis/buildgate/pkg/report"
)

// Stage names.
const (
	StageTest            = "test"
	StageIntegrationTest = "integrationTest"
	StageCoverageReport  = "coverageReport"
	StageVerifyCoverage  = "verifyCoverage"
	StageCheck           = "check"
)

// Report file names under the coverage directory.
const (
	ReportText    = "report.txt"
	ReportJSON    = "report.json"
	ReportSARIF   = "report.sarif"
	MergedRecords = "records.json"
	RunReport     = "buildgate.json"
	profilesDir   = "profiles"
)

// ErrNoCoverageInputs is returned by the report stage when no test run
// produced a profile and no input files were given.
var ErrNoCoverageInputs = errors.New("no coverage inputs")

// Options adjust a Gate.
type Options struct {
	// Inputs are coverage files to verify instead of running tests. When
	// set, the test stages are not registered.
	Inputs []string
	// Now overrides the clock used for report timestamps.
	Now func() time.Time
	// Version is written into SARIF output.
	Version string
}

// Gate owns the state shared by the stages of one invocation.
type Gate struct {
	cfg     *config.Config
	runner  *runner.Runner
	log     zerolog.Logger
	opts    Options
	report  *report.Report
	metrics *metrics.Recorder

	discovery *runner.Discovery
	groups    map[partition.Group]runner.GroupResult
	order     []partition.Group
	records   []coverage.Record
	verdict   *coverage.Verdict
	summary   *report.CoverageSummary
}

// Outcome is what a Run produced.
type Outcome struct {
	Report   *report.Report
	Pipeline pipeline.Result
	Groups   []runner.GroupResult
	Coverage *report.CoverageSummary
}

// New returns a Gate for cfg. cmd executes the go tool.
func New(cfg *config.Config, cmd runner.Commander, log zerolog.Logger, opts Options) *Gate {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	rep := report.New(opts.Now())
	g := &Gate{
		cfg:     cfg,
		log:     log.With().Str("run_id", rep.RunID).Logger(),
		opts:    opts,
		report:  rep,
		metrics: metrics.NewRecorder(rep.RunID),
		groups:  map[partition.Group]runner.GroupResult{},
	}
	g.runner = runner.New(cmd, runner.Options{
		GoBin:       cfg.GoBin,
		Dir:         cfg.Dir,
		Packages:    cfg.Packages,
		BuildTags:   cfg.BuildTags,
		TagFilter:   cfg.Integration.Tags,
		Parallelism: cfg.Parallelism,
		CoverDir:    g.profileDir(),
		Timeout:     cfg.Timeout,
	}, g.log)
	return g
}

// RunID identifies this invocation in logs, reports and metrics.
func (g *Gate) RunID() string { return g.report.RunID }

func (g *Gate) profileDir() string {
	dir := filepath.Join(g.cfg.CoverageDir(), profilesDir)
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// Pipeline returns a pipeline with every stage of the gate registered.
func (g *Gate) Pipeline() *pipeline.Pipeline {
	p := pipeline.New(g.log)
	withTests := len(g.opts.Inputs) == 0

	reportDeps := []string{}
	if withTests {
		p.Register(pipeline.Stage{
			Name:        StageTest,
			Description: "Runs the standard tests, or the integration tests when the integration property is set.",
			Action:      g.testAction,
		})
		p.Register(pipeline.Stage{
			Name:        StageIntegrationTest,
			Description: "Runs the integration tests.",
			RunsAfter:   []string{StageTest},
			Action: func(ctx context.Context) error {
				return g.runGroup(ctx, partition.Integration)
			},
		})
		reportDeps = append(reportDeps, StageTest)
	}
	coverageReport := pipeline.Stage{
		Name:        StageCoverageReport,
		Description: "Loads coverage data, applies exclusions and writes the coverage reports.",
		DependsOn:   reportDeps,
		Action:      g.coverageReportAction,
	}
	if withTests {
		coverageReport.RunsAfter = []string{StageIntegrationTest}
	}
	p.Register(coverageReport)
	p.Register(pipeline.Stage{
		Name:        StageVerifyCoverage,
		Description: "Fails when an aggregated coverage ratio is below its rule minimum.",
		DependsOn:   []string{StageCoverageReport},
		Action:      g.verifyCoverageAction,
	})
	if withTests {
		p.Register(pipeline.Stage{
			Name:        StageCheck,
			Description: "Runs all verification stages.",
			DependsOn:   []string{StageTest, StageVerifyCoverage},
			Action: func(context.Context) error {
				g.log.Info().Msg("all checks passed")
				return nil
			},
		})
	}
	return p
}

// Run executes targets and everything they depend on. The error joins every
// failed stage and is nil only when the run passed.
func (g *Gate) Run(ctx context.Context, targets ...string) (Outcome, error) {
	res, runErr := g.Pipeline().Run(ctx, pipeline.Options{Continue: g.cfg.Continue}, targets...)

	var pipeErr *pipeline.Error
	if errors.As(runErr, &pipeErr) {
		return Outcome{Report: g.report}, runErr
	}

	for _, s := range res.Stages {
		sum := report.StageSummary{Name: s.Name, Status: string(s.Status), Duration: s.Duration}
		if s.Err != nil {
			sum.Error = s.Err.Error()
		}
		g.report.AddStage(sum)
		g.metrics.RecordStage(s.Name, string(s.Status), s.Duration)
	}

	out := Outcome{Report: g.report, Pipeline: res, Coverage: g.summary}
	for _, grp := range g.order {
		out.Groups = append(out.Groups, g.groups[grp])
	}

	if err := g.writeRunArtifacts(); err != nil {
		return out, err
	}
	if runErr != nil {
		return out, runErr
	}
	return out, res.Err()
}

// List discovers tests and partitions them without running anything.
func (g *Gate) List(ctx context.Context) (partition.Result, []runner.PackageFailure, error) {
	d, err := g.discover(ctx)
	if err != nil {
		return partition.Result{}, nil, err
	}
	return partition.Partition(d.Units, g.cfg.Predicate(), g.cfg.Integration.Exclude), d.Failures, nil
}

func (g *Gate) discover(ctx context.Context) (*runner.Discovery, error) {
	if g.discovery != nil {
		return g.discovery, nil
	}
	d, err := g.runner.Discover(ctx)
	if err != nil {
		return nil, err
	}
	g.discovery = &d
	return g.discovery, nil
}

func (g *Gate) testAction(ctx context.Context) error {
	group := partition.Standard
	if g.cfg.IntegrationProperty {
		group = partition.Integration
	}
	return g.runGroup(ctx, group)
}

// runGroup executes group once per invocation; a second request for the same
// group reports the first outcome.
func (g *Gate) runGroup(ctx context.Context, group partition.Group) error {
	if res, ok := g.groups[group]; ok {
		g.log.Info().Str("group", string(group)).Msg("group already executed")
		return res.Err()
	}
	d, err := g.discover(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(g.profileDir(), 0o755); err != nil {
		return &runner.RuntimeError{Op: "creating coverage directory", Err: err}
	}

	units := partition.Select(d.Units, group, g.cfg.Predicate(), g.cfg.Integration.Exclude)
	res, err := g.runner.RunGroup(ctx, runner.GroupRun{
		Group:    group,
		Units:    units,
		Failures: d.Failures,
		Verbose:  g.cfg.Group(group).Verbose,
		Packages: d.Packages,
	})
	if err != nil {
		return err
	}

	g.groups[group] = res
	g.order = append(g.order, group)
	g.report.AddGroup(groupSummary(res))
	passed, failed, skipped := res.Counts()
	g.metrics.RecordGroup(group, passed, failed, skipped, res.Duration)
	return res.Err()
}

func groupSummary(res runner.GroupResult) report.GroupSummary {
	passed, failed, skipped := res.Counts()
	s := report.GroupSummary{
		Group:    string(res.Group),
		Passed:   passed,
		Failed:   failed,
		Skipped:  skipped,
		Duration: res.Duration,
	}
	for _, u := range res.FailedUnits() {
		s.FailedTests = append(s.FailedTests, report.FailedTest{Package: u.Package, Name: u.Name, Output: u.Output})
	}
	for _, f := range res.Failures {
		s.BuildFailures = append(s.BuildFailures, f.Package)
	}
	return s
}

// coverageInputs lists cover profiles of executed groups followed by the
// configured and explicit inputs.
func (g *Gate) coverageInputs() []string {
	var inputs []string
	for _, grp := range g.order {
		inputs = append(inputs, g.groups[grp].Profiles...)
	}
	inputs = append(inputs, g.cfg.Coverage.Inputs...)
	return append(inputs, g.opts.Inputs...)
}

func (g *Gate) coverageReportAction(ctx context.Context) error {
	inputs := g.coverageInputs()
	if len(inputs) == 0 {
		return &coverage.ConfigError{Err: ErrNoCoverageInputs}
	}
	records, err := covdata.Load(ctx, inputs...)
	if err != nil {
		return &runner.RuntimeError{Op: "loading coverage", Err: err}
	}
	g.records = records
	g.log.Info().Int("inputs", len(inputs)).Int("records", len(records)).Msg("coverage loaded")

	v, err := coverage.Evaluate(records, g.cfg.Exclusions(), g.cfg.Coverage.Rules)
	if err != nil {
		return err
	}
	g.verdict = &v
	g.summary = report.NewCoverageSummary(records, g.cfg.Exclusions(), v)
	g.report.SetCoverage(g.summary)
	g.metrics.RecordVerdict(v)

	for _, p := range v.Excluded {
		g.log.Debug().Str("path", p).Msg("excluded from coverage")
	}
	return g.writeCoverageReports()
}

func (g *Gate) verifyCoverageAction(context.Context) error {
	if g.verdict == nil {
		return fmt.Errorf("coverage was not evaluated")
	}
	for _, res := range g.verdict.Results {
		ev := g.log.Info()
		if !res.Passed {
			ev = g.log.Error()
		}
		ev.Str("metric", string(res.Rule.Metric)).
			Int64("covered", res.Counter.Covered).
			Int64("total", res.Counter.Total).
			Float64("ratio", res.Actual).
			Float64("minimum", res.Rule.Minimum).
			Bool("vacuous", res.Vacuous).
			Msg("coverage rule")
	}
	return g.verdict.Err()
}
