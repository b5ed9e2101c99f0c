// Package detect sniffs input bytes to determine the input format.
package detect

import (
	"bytes"
	"encoding/json"
)

// Format represents a recognized input format.
type Format int

const (
	Unknown        Format = iota
	SARIF                 // SARIF 2.1.0 JSON document
	GoTestJSON            // go test -json NDJSON stream
	GoCoverProfile        // go test -coverprofile output
	JaCoCoXML             // JaCoCo XML report
	RecordsJSON           // buildgate coverage records document
)

func (f Format) String() string {
	switch f {
	case SARIF:
		return "sarif"
	case GoTestJSON:
		return "go-test-json"
	case GoCoverProfile:
		return "go-cover"
	case JaCoCoXML:
		return "jacoco-xml"
	case RecordsJSON:
		return "records-json"
	default:
		return "unknown"
	}
}

// Sniff examines the first bytes of input to determine format.
// Input must contain at least the first line.
func Sniff(data []byte) Format {
	data = bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(data) == 0 {
		return Unknown
	}

	if bytes.HasPrefix(data, []byte("mode:")) {
		return GoCoverProfile
	}
	if data[0] == '<' {
		if isJaCoCo(data) {
			return JaCoCoXML
		}
		return Unknown
	}
	if data[0] != '{' {
		return Unknown
	}

	// SARIF and records are whole documents; go test -json is NDJSON.
	if isSARIF(data) {
		return SARIF
	}
	if isRecords(data) {
		return RecordsJSON
	}
	if isGoTestJSON(data) {
		return GoTestJSON
	}
	return Unknown
}

func isJaCoCo(data []byte) bool {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	return bytes.Contains(head, []byte("<report")) &&
		(bytes.HasPrefix(data, []byte("<?xml")) || bytes.HasPrefix(data, []byte("<!DOCTYPE")) || bytes.HasPrefix(data, []byte("<report")))
}

func isSARIF(data []byte) bool {
	var probe struct {
		Version string            `json:"version"`
		Runs    []json.RawMessage `json:"runs"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Version != "" && probe.Runs != nil
}

func isRecords(data []byte) bool {
	var probe struct {
		Records []json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Records != nil
}

func isGoTestJSON(data []byte) bool {
	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}

	var event struct {
		Action  string `json:"Action"`
		Package string `json:"Package"`
	}
	if err := json.Unmarshal(firstLine, &event); err != nil {
		return false
	}

	validActions := map[string]bool{
		"start": true, "run": true, "pause": true, "cont": true,
		"pass": true, "bench": true, "fail": true, "output": true, "skip": true,
		"build-output": true, "build-fail": true,
	}
	return validActions[event.Action]
}
