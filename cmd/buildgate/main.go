// buildgate runs a Go module's tests in standard and integration groups and
// gates the build on aggregated coverage.
//
// Usage:
//
//	buildgate test                 # standard tests
//	buildgate test --integration   # integration tests instead
//	buildgate integration-test
//	buildgate coverage report [inputs...]
//	buildgate coverage verify [inputs...]
//	buildgate check                # tests plus coverage verification
//	buildgate list                 # show the partition without running
//
// Output modes (auto-detected):
//
//	terminal  styled Unicode output (default when TTY)
//	llm       terse plain text (default when piped)
//	json      structured JSON for automation
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dkoosis/buildgate/internal/build"
	"github.com/dkoosis/buildgate/internal/config"
	"github.com/dkoosis/buildgate/internal/exitcode"
	"github.com/dkoosis/buildgate/internal/runner"
	"github.com/dkoosis/buildgate/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, runner.ExecCommander{})
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the exit code, so tests can drive it
// without os.Exit.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, cmd runner.Commander) int {
	a := &app{stdout: stdout, stderr: stderr, commander: cmd}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "buildgate: %v\n", err)
		return exitcode.Code(err)
	}
	return exitcode.Success
}

type app struct {
	stdout    io.Writer
	stderr    io.Writer
	commander runner.Commander
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "buildgate",
		Short:         "Partitioned Go test runner with a coverage gate",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addGlobalFlags(root.PersistentFlags())

	testCmd := &cobra.Command{
		Use:   "test",
		Short: "Run the standard tests (integration tests with --integration)",
		Args:  cobra.NoArgs,
		RunE:  a.stageRunner(build.StageTest),
	}
	testCmd.Flags().Bool("integration", false, "run the integration group instead of the standard group")

	coverageCmd := &cobra.Command{
		Use:   "coverage",
		Short: "Coverage reporting and verification",
	}
	coverageCmd.AddCommand(
		&cobra.Command{
			Use:   "report [inputs...]",
			Short: "Write coverage reports; runs the tests unless inputs are given",
			RunE:  a.stageRunner(build.StageCoverageReport),
		},
		&cobra.Command{
			Use:   "verify [inputs...]",
			Short: "Write coverage reports and fail when a rule is violated",
			RunE:  a.stageRunner(build.StageVerifyCoverage),
		},
	)

	root.AddCommand(
		testCmd,
		&cobra.Command{
			Use:   "integration-test",
			Short: "Run the integration tests",
			Args:  cobra.NoArgs,
			RunE:  a.stageRunner(build.StageIntegrationTest),
		},
		coverageCmd,
		&cobra.Command{
			Use:   "check",
			Short: "Run the tests and verify coverage",
			Args:  cobra.NoArgs,
			RunE:  a.stageRunner(build.StageCheck),
		},
		&cobra.Command{
			Use:   "list",
			Short: "Show which group every test belongs to",
			Args:  cobra.NoArgs,
			RunE:  a.list,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run:   a.version,
		},
	)
	return root
}

// stageRunner returns a command that runs target through the pipeline.
// Positional arguments are coverage inputs.
func (a *app) stageRunner(target string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, log, err := a.setup(cmd)
		if err != nil {
			return err
		}
		gate := build.New(cfg, a.commander, log, build.Options{Inputs: args, Version: buildVersion()})
		out, err := gate.Run(cmd.Context(), target)
		a.render(cfg, out)
		return err
	}
}

func (a *app) list(cmd *cobra.Command, _ []string) error {
	cfg, log, err := a.setup(cmd)
	if err != nil {
		return err
	}
	gate := build.New(cfg, a.commander, log, build.Options{Version: buildVersion()})
	res, failures, err := gate.List(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprint(a.stdout, a.renderer(cfg).Render(listPatterns(res, failures)))
	return nil
}

func (a *app) version(*cobra.Command, []string) {
	fmt.Fprintf(a.stdout, "buildgate %s (commit %s, built %s)\n", version.Version, version.CommitHash, version.BuildDate)
}

func buildVersion() string { return version.Version }

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.String(config.FlagName(config.KeyConfig), "", "config file (default ./"+config.FileName+" or the user config dir)")
	fs.String(config.FlagName(config.KeyDir), "", "module directory to test")
	fs.StringSlice(config.FlagName(config.KeyPackages), nil, "package patterns to test (default ./...)")
	fs.String(config.FlagName(config.KeyGoBin), "", "go binary")
	fs.StringSlice(config.FlagName(config.KeyBuildTags), nil, "build tags passed to go list and go test")
	fs.Int(config.FlagName(config.KeyParallelism), 0, fmt.Sprintf("packages tested concurrently (default %d)", config.DefaultParallelism))
	fs.Duration(config.FlagName(config.KeyTimeout), 0, "per-package test timeout")
	fs.String(config.FlagName(config.KeyOutputDir), "", "directory for reports (default "+config.DefaultOutputDir+")")
	fs.String(config.FlagName(config.KeyFormat), config.DefaultFormat, "output format: auto, terminal, llm, json")
	fs.String(config.FlagName(config.KeyTheme), config.DefaultTheme, "theme: default, orca, mono")
	fs.String(config.FlagName(config.KeyLogLevel), config.DefaultLogLevel, "log level: debug, info, warn, error")
	fs.String(config.FlagName(config.KeyMetricsFile), "", "write Prometheus metrics to this textfile")
	fs.Bool(config.FlagName(config.KeyContinue), false, "keep running independent stages after a failure")
}

// setup resolves configuration from the command's flags and builds the
// logger. Log output goes to stderr so stdout carries only the rendered
// result.
func (a *app) setup(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return nil, zerolog.Nop(), &config.Error{Err: err}
	}
	cfg, err := config.Resolve(v)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{
		Out:     zerolog.SyncWriter(a.stderr),
		NoColor: !isTTYWriter(a.stderr),
	}).Level(level).With().Timestamp().Logger()
	return cfg, log, nil
}
