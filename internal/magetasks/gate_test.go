package magetasks

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/buildgate/internal/build"
	"github.com/dkoosis/buildgate/internal/config"
	"github.com/dkoosis/buildgate/pkg/pattern"
	"github.com/dkoosis/buildgate/pkg/report"
)

func TestGateConfig_UsesProjectRoot_When_DirIsDefault(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "gate.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("output_dir: out\n"), 0o600))
	t.Setenv(config.EnvPrefix+"_CONFIG", cfgPath)
	t.Setenv(config.EnvPrefix+"_PARALLELISM", "2")

	orig := ProjectRoot
	ProjectRoot = "/src/buildgate"
	t.Cleanup(func() { ProjectRoot = orig })

	cfg, err := gateConfig()
	require.NoError(t, err)
	assert.Equal(t, "/src/buildgate", cfg.Dir)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, 2, cfg.Parallelism)
}

func TestGateCoverage_SelectsBothGroups(t *testing.T) {
	p := build.New(config.Default(), nil, zerolog.Nop(), build.Options{}).Pipeline()

	order, err := p.Plan(coverageTargets...)
	require.NoError(t, err)
	assert.Equal(t, []string{build.StageTest, build.StageIntegrationTest, build.StageCoverageReport}, order)
}

func TestGatePatterns_EndsWithStageSummary(t *testing.T) {
	rep := report.New(time.Now())
	rep.AddStage(report.StageSummary{Name: build.StageTest, Status: "SUCCEEDED"})

	patterns := gatePatterns(build.Outcome{Report: rep})
	require.Len(t, patterns, 1)
	sum, ok := patterns[0].(*pattern.Summary)
	require.True(t, ok)
	assert.Equal(t, pattern.SummaryKindGate, sum.Kind)
}
