package magetasks

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureOut(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	orig := Out
	Out = &buf
	t.Cleanup(func() { Out = orig })
	fn()
	return buf.String()
}

func TestPrintH1Header_CentersTitle(t *testing.T) {
	out := captureOut(t, func() { PrintH1Header("Test Title") })
	assert.Contains(t, out, "Test Title")
	assert.Contains(t, out, "=====")
}

func TestPrintH2Header(t *testing.T) {
	out := captureOut(t, func() { PrintH2Header("Test Section") })
	assert.Contains(t, out, "=== Test Section ===")
}

func TestPrintMessages(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string)
		icon string
	}{
		{"success", PrintSuccess, "✅"},
		{"warning", PrintWarning, "⚠️"},
		{"error", PrintError, "❌"},
		{"info", PrintInfo, "ℹ️"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureOut(t, func() { tt.fn("message for " + tt.name) })
			assert.Contains(t, out, "message for "+tt.name)
			assert.Contains(t, out, tt.icon)
		})
	}
}
