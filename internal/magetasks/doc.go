// Package magetasks implements the Magefile targets for buildgate: building
// the binary, linting, and running buildgate's own gate against this
// repository.
package magetasks
