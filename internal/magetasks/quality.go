package magetasks

import (
	"fmt"
)

// QualityCheck runs the linters, the gate and the build. Lint findings are
// reported but do not fail the check.
func QualityCheck() error {
	PrintH1Header("buildgate Quality Checks")

	if err := LintAll(); err != nil {
		PrintWarning("Linting issues found: " + err.Error())
	}
	if err := GateCheck(); err != nil {
		return fmt.Errorf("gate failed: %w", err)
	}
	if err := BuildAll(); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	PrintSuccess("Quality checks complete")
	return nil
}
