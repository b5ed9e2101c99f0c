package magetasks

import (
	"errors"
	"os/exec"
	"strings"

	"github.com/magefile/mage/sh"
)

// Run prints a section header for label and runs cmd with output streamed to
// the console.
func Run(label, cmd string, args ...string) error {
	PrintH2Header(label)
	if err := sh.RunV(cmd, args...); err != nil {
		PrintError(label + " failed")
		return err
	}
	PrintSuccess(label)
	return nil
}

// IsCommandNotFound checks if the error indicates the command was not found.
// This handles exec.ErrNotFound and platform-specific string fallbacks.
func IsCommandNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "executable file not found") ||
		strings.Contains(errStr, "no such file or directory")
}
