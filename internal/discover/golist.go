package discover

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Package is the subset of `go list -json` output used for discovery.
type Package struct {
	ImportPath   string
	Dir          string
	GoFiles      []string
	TestGoFiles  []string
	XTestGoFiles []string
	Error        *struct{ Err string }
}

// TestFiles returns internal and external test files.
func (p Package) TestFiles() []string {
	return append(append([]string{}, p.TestGoFiles...), p.XTestGoFiles...)
}

// HasCode reports whether the package has non-test Go files to cover.
func (p Package) HasCode() bool {
	return p.Error == nil && len(p.GoFiles) > 0
}

// DecodePackages reads the concatenated JSON objects printed by `go list -json`.
func DecodePackages(r io.Reader) ([]Package, error) {
	dec := json.NewDecoder(r)
	var out []Package
	for {
		var p Package
		err := dec.Decode(&p)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decoding go list output: %w", err)
		}
		out = append(out, p)
	}
}
