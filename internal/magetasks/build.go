package magetasks

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/magefile/mage/sh"
)

// BuildAll builds the buildgate binary with version information.
func BuildAll() error {
	ldflags := fmt.Sprintf("-s -w -X '%[1]s/internal/version.Version=%[2]s' -X '%[1]s/internal/version.CommitHash=%[3]s' -X '%[1]s/internal/version.BuildDate=%[4]s'",
		ModulePath, gitVersion(), gitCommit(), time.Now().UTC().Format(time.RFC3339))

	if err := Run("Build", "go", "build", "-ldflags", ldflags, "-o", BinPath, MainPackage); err != nil {
		return err
	}
	PrintInfo("Built: " + BinPath)
	return nil
}

// Clean removes build artifacts and gate reports.
func Clean() error {
	PrintH2Header("Clean")
	for _, dir := range []string{"./bin", "./build"} {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	if err := sh.Run("go", "clean", "-cache"); err != nil {
		PrintWarning("go clean -cache failed: " + err.Error())
	}
	PrintSuccess("Cleaned build artifacts")
	return nil
}

func gitVersion() string {
	out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty", "--match=v*")
	if err != nil {
		return "dev"
	}
	return strings.TrimSpace(out)
}

func gitCommit() string {
	out, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(out)
}
