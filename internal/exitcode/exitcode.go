// Package exitcode maps gate outcomes to process exit codes.
package exitcode

import (
	"context"
	"errors"

	"github.com/dkoosis/buildgate/internal/config"
	"github.com/dkoosis/buildgate/internal/pipeline"
	"github.com/dkoosis/buildgate/internal/runner"
	"github.com/dkoosis/buildgate/pkg/coverage"
)

// Exit codes:
//
// * Success (0): every selected test passed and every coverage rule held
// * TestFailure (1): a test failed or a coverage rule was violated
// * RuntimeErr (2): invalid configuration, missing inputs or tool failures
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures or coverage violations
	RuntimeErr  = 2 // Configuration or runtime errors
)

// Code classifies err. Configuration and runtime problems win over test
// failures when both are present.
func Code(err error) int {
	if err == nil {
		return Success
	}

	var (
		pipeErr    *pipeline.Error
		runtimeErr *runner.RuntimeError
	)
	switch {
	case config.IsError(err), coverage.IsConfigError(err):
		return RuntimeErr
	case errors.As(err, &pipeErr), errors.As(err, &runtimeErr):
		return RuntimeErr
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return RuntimeErr
	}

	var groupErr *runner.GroupFailedError
	if coverage.IsViolation(err) || errors.As(err, &groupErr) {
		return TestFailure
	}
	return RuntimeErr
}
