package coverage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ErrNoRecords is returned when rules are configured but no coverage data
// was supplied at all.
var ErrNoRecords = errors.New("no coverage records available")

// ConfigError reports malformed rules or exclusions. It is fatal and
// distinct from a coverage violation.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	var merr *multierror.Error
	if errors.As(e.Err, &merr) {
		msgs := make([]string, 0, len(merr.Errors))
		for _, err := range merr.Errors {
			msgs = append(msgs, err.Error())
		}
		return "coverage configuration: " + strings.Join(msgs, "; ")
	}
	return "coverage configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ViolationError lists every rule the verdict failed.
type ViolationError struct {
	Violations []Violation
}

func (e *ViolationError) Error() string {
	if len(e.Violations) == 1 {
		return "coverage check failed: " + e.Violations[0].String()
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("coverage check failed with %d violations: %s", len(e.Violations), strings.Join(parts, "; "))
}

// IsConfigError reports whether err is a coverage configuration error.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsViolation reports whether err is a coverage violation.
func IsViolation(err error) bool {
	var ve *ViolationError
	return errors.As(err, &ve)
}
