package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/dkoosis/buildgate/pkg/coverage"
	"github.com/dkoosis/buildgate/pkg/partition"
)

// FileName is the project configuration file.
const FileName = ".buildgate.yaml"

// Constants for default values.
const (
	DefaultGoBin       = "go"
	DefaultOutputDir   = "build/buildgate"
	DefaultParallelism = 4
	DefaultFormat      = "auto"
	DefaultTheme       = "default"
	DefaultLogLevel    = "info"
)

var (
	validFormats = []string{"auto", "terminal", "llm", "json"}
	validThemes  = []string{"default", "orca", "mono"}
)

// Config is the build configuration. It is built once per invocation and
// not modified afterwards.
type Config struct {
	Dir         string        `yaml:"dir"`
	Packages    []string      `yaml:"packages"`
	GoBin       string        `yaml:"go_bin"`
	BuildTags   []string      `yaml:"build_tags"`
	Parallelism int           `yaml:"parallelism"`
	Timeout     time.Duration `yaml:"timeout"`
	OutputDir   string        `yaml:"output_dir"`

	Integration IntegrationConfig `yaml:"integration"`
	Groups      GroupsConfig      `yaml:"groups"`
	Coverage    CoverageConfig    `yaml:"coverage"`

	Format      string `yaml:"format"`
	Theme       string `yaml:"theme"`
	LogLevel    string `yaml:"log_level"`
	MetricsFile string `yaml:"metrics_file"`
	Continue    bool   `yaml:"continue"`

	// IntegrationProperty switches the test stage to the integration group.
	IntegrationProperty bool `yaml:"-"`

	// Source is the file the configuration was read from, empty for defaults.
	Source string `yaml:"-"`
}

// IntegrationConfig defines the integration predicate.
type IntegrationConfig struct {
	Patterns []string `yaml:"patterns"`
	Tags     []string `yaml:"tags"`
	Exclude  []string `yaml:"exclude"`
}

// GroupConfig controls how a group's test output is logged.
type GroupConfig struct {
	Verbose bool `yaml:"verbose"`
}

// GroupsConfig holds per-group settings.
type GroupsConfig struct {
	Standard    GroupConfig `yaml:"standard"`
	Integration GroupConfig `yaml:"integration"`
}

// CoverageConfig holds the gate rules.
type CoverageConfig struct {
	Rules      []coverage.Rule `yaml:"rules"`
	Exclusions []string        `yaml:"exclusions"`
	Inputs     []string        `yaml:"inputs"` // extra reports, e.g. jacoco.xml
	SARIF      bool            `yaml:"sarif"`
}

// Default returns the built-in configuration.
func Default() *Config {
	pred := partition.DefaultPredicate()
	return &Config{
		Dir:         ".",
		Packages:    []string{"./..."},
		GoBin:       DefaultGoBin,
		BuildTags:   slices.Clone(pred.Tags),
		Parallelism: DefaultParallelism,
		OutputDir:   DefaultOutputDir,
		Integration: IntegrationConfig{
			Patterns: pred.Patterns,
			Tags:     pred.Tags,
		},
		Groups: GroupsConfig{
			Standard:    GroupConfig{Verbose: false},
			Integration: GroupConfig{Verbose: true},
		},
		Coverage: CoverageConfig{
			Rules: []coverage.Rule{
				{Metric: coverage.Line, Minimum: 0.75},
				{Metric: coverage.Branch, Minimum: 0.70},
			},
			Exclusions: []string{
				"**/config/**",
				"**/dto/**",
				"**/exceptions/**",
				"**/models/**",
				"**/main.go",
				"**/*Application",
			},
		},
		Format:   DefaultFormat,
		Theme:    DefaultTheme,
		LogLevel: DefaultLogLevel,
	}
}

// Predicate returns the integration membership predicate.
func (c *Config) Predicate() partition.Predicate {
	return partition.Predicate{Patterns: c.Integration.Patterns, Tags: c.Integration.Tags}
}

// Exclusions returns the coverage exclusions.
func (c *Config) Exclusions() []coverage.Exclusion {
	out := make([]coverage.Exclusion, len(c.Coverage.Exclusions))
	for i, p := range c.Coverage.Exclusions {
		out[i] = coverage.Exclusion{Pattern: p}
	}
	return out
}

// Group returns the settings for g.
func (c *Config) Group(g partition.Group) GroupConfig {
	if g == partition.Integration {
		return c.Groups.Integration
	}
	return c.Groups.Standard
}

// CoverageDir is where reports and cover profiles are written.
func (c *Config) CoverageDir() string {
	return filepath.Join(c.OutputDir, "coverage")
}

// Decode reads YAML onto base. Unknown keys are errors.
func Decode(r io.Reader, base *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(base); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadFile reads the configuration file at path over the defaults. With an
// empty path the local file and then the user config dir are tried; finding
// neither yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = findConfigPath()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("reading %s: %w", path, err)}
	}
	if err := Decode(bytes.NewReader(data), cfg); err != nil {
		return nil, &Error{Err: fmt.Errorf("parsing %s: %w", path, err)}
	}
	cfg.Source = path
	return cfg, nil
}

// findConfigPath checks the working directory first, then the XDG user
// config dir.
func findConfigPath() string {
	if _, err := os.Stat(FileName); err == nil {
		return FileName
	}
	configHome, err := os.UserConfigDir()
	if err != nil || configHome == "" || configHome == "/" {
		return ""
	}
	xdgPath := filepath.Join(configHome, "buildgate", FileName)
	if _, err := os.Stat(xdgPath); err == nil {
		return xdgPath
	}
	return ""
}

// Error reports invalid configuration. It is fatal.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	var merr *multierror.Error
	if errors.As(e.Err, &merr) && len(merr.Errors) > 1 {
		return fmt.Sprintf("invalid configuration (%d problems): %s", len(merr.Errors), joinErrors(merr.Errors))
	}
	if merr != nil && len(merr.Errors) == 1 {
		return "invalid configuration: " + merr.Errors[0].Error()
	}
	return "invalid configuration: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func joinErrors(errs []error) string {
	var b bytes.Buffer
	for i, err := range errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if len(c.Packages) == 0 {
		result = multierror.Append(result, errors.New("packages: at least one package pattern is required"))
	}
	if c.GoBin == "" {
		result = multierror.Append(result, errors.New("go_bin: must not be empty"))
	}
	if c.Parallelism < 1 {
		result = multierror.Append(result, fmt.Errorf("parallelism: must be at least 1, got %d", c.Parallelism))
	}
	if c.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("timeout: must not be negative, got %s", c.Timeout))
	}
	if c.OutputDir == "" {
		result = multierror.Append(result, errors.New("output_dir: must not be empty"))
	}
	if !slices.Contains(validFormats, c.Format) {
		result = multierror.Append(result, fmt.Errorf("format: %q is not one of %v", c.Format, validFormats))
	}
	if !slices.Contains(validThemes, c.Theme) {
		result = multierror.Append(result, fmt.Errorf("theme: %q is not one of %v", c.Theme, validThemes))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil || c.LogLevel == "" {
		result = multierror.Append(result, fmt.Errorf("log_level: %q is not a valid level", c.LogLevel))
	}
	if err := c.Predicate().Validate(); err != nil {
		result = multierror.Append(result, fmt.Errorf("integration: %w", err))
	}
	if err := partition.ValidateExclude(c.Integration.Exclude); err != nil {
		result = multierror.Append(result, fmt.Errorf("integration: %w", err))
	}
	if err := coverage.Validate(c.Exclusions(), c.Coverage.Rules); err != nil {
		var ce *coverage.ConfigError
		var merr *multierror.Error
		if errors.As(err, &ce) && errors.As(ce.Err, &merr) {
			for _, e := range merr.Errors {
				result = multierror.Append(result, fmt.Errorf("coverage: %w", e))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return &Error{Err: err}
	}
	return nil
}

// IsError reports whether err is a configuration error from this package or
// from the coverage gate.
func IsError(err error) bool {
	var e *Error
	return errors.As(err, &e) || coverage.IsConfigError(err)
}
