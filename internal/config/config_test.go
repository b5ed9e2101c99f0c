package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/buildgate/pkg/coverage"
	"github.com/dkoosis/buildgate/pkg/partition"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []coverage.Rule{{Metric: coverage.Line, Minimum: 0.75}, {Metric: coverage.Branch, Minimum: 0.70}}, cfg.Coverage.Rules)
	assert.Contains(t, cfg.Coverage.Exclusions, "**/models/**")
	assert.Contains(t, cfg.Coverage.Exclusions, "**/*Application")
	assert.True(t, cfg.Group(partition.Integration).Verbose)
	assert.False(t, cfg.Group(partition.Standard).Verbose)
	assert.Equal(t, partition.DefaultPredicate(), cfg.Predicate())
	assert.Equal(t, filepath.Join("build", "buildgate", "coverage"), cfg.CoverageDir())
}

func TestDefaultExclusions_DropEntryPoints_When_GoOrJaCoCo(t *testing.T) {
	t.Parallel()

	ex := Default().Exclusions()
	for _, path := range []string{
		"example.com/store/cmd/store/main.go",
		"dev/acme/store/StoreApplication",
		"dev/acme/store/config/CorsConfig",
	} {
		assert.True(t, coverage.Excluded(path, ex), path)
	}
	for _, path := range []string{
		"dev/acme/store/service/OrderService",
		"dev/acme/store/ApplicationService",
		"example.com/store/orders/service.go",
	} {
		assert.False(t, coverage.Excluded(path, ex), path)
	}
}

func TestDecode_OverlaysDefaults_When_KeysPresent(t *testing.T) {
	t.Parallel()

	cfg := Default()
	err := Decode(strings.NewReader(`
parallelism: 8
timeout: 10m
integration:
  patterns: ["*E2E"]
coverage:
  rules:
    - metric: LINE
      minimum: 0.9
  exclusions: ["**/generated/**"]
`), cfg)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Parallelism)
	assert.Equal(t, 10*time.Minute, cfg.Timeout)
	assert.Equal(t, []string{"*E2E"}, cfg.Integration.Patterns)
	assert.Equal(t, []string{"integration"}, cfg.Integration.Tags, "untouched keys keep defaults")
	assert.Equal(t, []coverage.Rule{{Metric: coverage.Line, Minimum: 0.9}}, cfg.Coverage.Rules)
	assert.Equal(t, []coverage.Exclusion{{Pattern: "**/generated/**"}}, cfg.Exclusions())
}

func TestDecode_ReturnsError_When_KeyUnknown(t *testing.T) {
	t.Parallel()

	err := Decode(strings.NewReader("parallelsim: 2\n"), Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parallelsim")
}

func TestDecode_AcceptsEmptyDocument(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(""), cfg))
	assert.Equal(t, Default(), cfg)
}

func TestValidate_ReportsEveryProblem_When_SeveralSettingsInvalid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Parallelism = 0
	cfg.Format = "html"
	cfg.Integration.Patterns = []string{"Test[abc"}
	cfg.Coverage.Rules = []coverage.Rule{{Metric: "LINES", Minimum: 0.5}, {Metric: coverage.Branch, Minimum: -0.1}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, IsError(err))

	msg := err.Error()
	assert.Contains(t, msg, "5 problems")
	assert.Contains(t, msg, "parallelism")
	assert.Contains(t, msg, `format: "html"`)
	assert.Contains(t, msg, `integration pattern #1 "Test[abc"`)
	assert.Contains(t, msg, `rule #1: unknown metric "LINES"`)
	assert.Contains(t, msg, "rule #2 (BRANCH): minimum -0.1")
}

func TestLoadFile_ReadsLocalConfig_When_FileExists(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(FileName, []byte("output_dir: out\n"), 0o600))

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, FileName, cfg.Source)
}

func TestLoadFile_UsesXDGPath_When_LocalMissing(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	xdgRoot := filepath.Join(dir, "xdg")
	require.NoError(t, os.MkdirAll(filepath.Join(xdgRoot, "buildgate"), 0o755))
	path := filepath.Join(xdgRoot, "buildgate", FileName)
	require.NoError(t, os.WriteFile(path, []byte("theme: mono\n"), 0o600))
	t.Setenv("XDG_CONFIG_HOME", xdgRoot)

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "mono", cfg.Theme)
	assert.Equal(t, path, cfg.Source)
}

func TestLoadFile_ReturnsDefaults_When_NoConfigAvailable(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile_ReturnsError_When_ExplicitPathMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, IsError(err))
}
