package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. BUILDGATE_OUTPUT_DIR.
const EnvPrefix = "BUILDGATE"

// Keys that can be overridden from the environment or the command line. Each
// key maps to a flag of the same name with underscores replaced by dashes.
const (
	KeyConfig      = "config"
	KeyDir         = "dir"
	KeyPackages    = "packages"
	KeyGoBin       = "go_bin"
	KeyBuildTags   = "build_tags"
	KeyParallelism = "parallelism"
	KeyTimeout     = "timeout"
	KeyOutputDir   = "output_dir"
	KeyFormat      = "format"
	KeyTheme       = "theme"
	KeyLogLevel    = "log_level"
	KeyMetricsFile = "metrics_file"
	KeyContinue    = "continue"
	KeyIntegration = "integration"
)

var overridableKeys = []string{
	KeyConfig, KeyDir, KeyPackages, KeyGoBin, KeyBuildTags, KeyParallelism, KeyTimeout,
	KeyOutputDir, KeyFormat, KeyTheme, KeyLogLevel, KeyMetricsFile, KeyContinue, KeyIntegration,
}

// FlagName returns the command-line flag for a key.
func FlagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// NewViper returns a viper instance reading BUILDGATE_* variables and the
// given flags. Flags not present in the set are ignored.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	for _, key := range overridableKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
		if flags == nil {
			continue
		}
		if f := flags.Lookup(FlagName(key)); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

// Resolve builds the effective configuration with precedence
// CLI flags > environment > file > defaults, then validates it.
func Resolve(v *viper.Viper) (*Config, error) {
	cfg, err := LoadFile(v.GetString(KeyConfig))
	if err != nil {
		return nil, err
	}
	apply(v, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// apply overlays every key viper considers set. Unchanged flags are not set.
func apply(v *viper.Viper, cfg *Config) {
	set := v.IsSet
	if set(KeyDir) {
		cfg.Dir = v.GetString(KeyDir)
	}
	if set(KeyPackages) {
		cfg.Packages = splitList(v.GetStringSlice(KeyPackages))
	}
	if set(KeyGoBin) {
		cfg.GoBin = v.GetString(KeyGoBin)
	}
	if set(KeyBuildTags) {
		cfg.BuildTags = splitList(v.GetStringSlice(KeyBuildTags))
	}
	if set(KeyParallelism) {
		cfg.Parallelism = v.GetInt(KeyParallelism)
	}
	if set(KeyTimeout) {
		cfg.Timeout = v.GetDuration(KeyTimeout)
	}
	if set(KeyOutputDir) {
		cfg.OutputDir = v.GetString(KeyOutputDir)
	}
	if set(KeyFormat) {
		cfg.Format = v.GetString(KeyFormat)
	}
	if set(KeyTheme) {
		cfg.Theme = v.GetString(KeyTheme)
	}
	if set(KeyLogLevel) {
		cfg.LogLevel = v.GetString(KeyLogLevel)
	}
	if set(KeyMetricsFile) {
		cfg.MetricsFile = v.GetString(KeyMetricsFile)
	}
	if set(KeyContinue) {
		cfg.Continue = v.GetBool(KeyContinue)
	}
	if set(KeyIntegration) {
		cfg.IntegrationProperty = v.GetBool(KeyIntegration)
	}
}

// splitList accepts both repeated values and comma-separated values, the
// form environment variables arrive in.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, part)
		}
	}
	return out
}
