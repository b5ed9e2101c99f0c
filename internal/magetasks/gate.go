package magetasks

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"

	"github.com/dkoosis/buildgate/internal/build"
	"github.com/dkoosis/buildgate/internal/config"
	"github.com/dkoosis/buildgate/internal/runner"
	"github.com/dkoosis/buildgate/internal/version"
	"github.com/dkoosis/buildgate/pkg/mapper"
	"github.com/dkoosis/buildgate/pkg/pattern"
	"github.com/dkoosis/buildgate/pkg/render"
)

// GateTest runs the standard tests of this repository through the gate.
func GateTest() error { return runGate("Standard Tests", build.StageTest) }

// GateIntegration runs the integration tests.
func GateIntegration() error { return runGate("Integration Tests", build.StageIntegrationTest) }

// coverageTargets selects both groups; coverageReport alone only depends on
// the standard group.
var coverageTargets = []string{build.StageIntegrationTest, build.StageCoverageReport}

// GateCoverage runs both groups and writes the coverage reports without
// failing on violations.
func GateCoverage() error { return runGate("Coverage Report", coverageTargets...) }

// GateCheck runs the tests and verifies coverage.
func GateCheck() error { return runGate("Check", build.StageCheck) }

// runGate resolves the configuration the same way the CLI does, with
// BUILDGATE_* variables as the only overrides, and runs targets in-process.
func runGate(label string, targets ...string) error {
	PrintH2Header(label)

	cfg, err := gateConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := zerolog.New(zerolog.ConsoleWriter{Out: zerolog.SyncWriter(os.Stderr)}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()
	gate := build.New(cfg, runner.ExecCommander{}, log, build.Options{Version: version.Version})
	out, err := gate.Run(ctx, targets...)
	if out.Report != nil && len(out.Report.Stages) > 0 {
		fmt.Fprint(Out, render.NewTerminal(render.ThemeByName(cfg.Theme), 100).Render(gatePatterns(out)))
	}
	if err != nil {
		PrintError(label + " failed")
		return err
	}
	PrintSuccess(label)
	return nil
}

func gateConfig() (*config.Config, error) {
	v, err := config.NewViper(nil)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Resolve(v)
	if err != nil {
		return nil, err
	}
	if ProjectRoot != "" && cfg.Dir == "." {
		cfg.Dir = ProjectRoot
	}
	return cfg, nil
}

func gatePatterns(out build.Outcome) []pattern.Pattern {
	var patterns []pattern.Pattern
	for _, g := range out.Groups {
		patterns = append(patterns, mapper.FromTestJSON(string(g.Group), g.Packages)...)
	}
	if out.Coverage != nil {
		patterns = append(patterns, mapper.FromCoverage(out.Coverage, mapper.DefaultLowestFiles)...)
	}
	return append(patterns, mapper.FromStages(out.Report))
}
