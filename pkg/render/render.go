// Package render provides output renderers for buildgate's visualization patterns.
package render

import "github.com/dkoosis/buildgate/pkg/pattern"

// Renderer converts patterns to formatted output.
type Renderer interface {
	Render(patterns []pattern.Pattern) string
}
