package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSniff_DetectsFormat_When_InputRecognized(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  Format
	}{
		{"sarif", `{"version":"2.1.0","runs":[{"tool":{"driver":{"name":"t"}},"results":[]}]}`, SARIF},
		{"go test json", `{"Action":"start","Package":"example.com/pkg"}` + "\n", GoTestJSON},
		{"go test json output", `{"Action":"output","Package":"p","Output":"=== RUN TestFoo\n"}` + "\n{}", GoTestJSON},
		{"cover profile", "mode: atomic\nexample.com/p/a.go:3.14,5.2 1 1\n", GoCoverProfile},
		{"cover profile leading newline", "\n\nmode: set\n", GoCoverProfile},
		{"jacoco with prolog", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?><!DOCTYPE report PUBLIC "-//JACOCO//DTD Report 1.1//EN" "report.dtd"><report name="store">`, JaCoCoXML},
		{"jacoco bare", `<report name="store"><package name="a"/></report>`, JaCoCoXML},
		{"records", `{"records":[{"path":"a.go","counters":{"LINE":{"covered":1,"total":2}}}]}`, RecordsJSON},
		{"other xml", `<?xml version="1.0"?><testsuite/>`, Unknown},
		{"empty", "", Unknown},
		{"plain text", "this is not json", Unknown},
		{"invalid json", "{invalid", Unknown},
		{"json without action", `{"foo":"bar"}`, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Sniff([]byte(tt.input))
			assert.Equal(t, tt.want, got, "got %s", got)
		})
	}
}

func TestFormat_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "jacoco-xml", JaCoCoXML.String())
	assert.Equal(t, "unknown", Format(99).String())
}
