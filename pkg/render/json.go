package render

import (
	"encoding/json"

	"github.com/dkoosis/buildgate/pkg/pattern"
)

// JSONSchemaVersion identifies the layout written by the JSON renderer.
const JSONSchemaVersion = "buildgate/v1"

// JSON renders patterns for automation. Every pattern is wrapped with its
// type so consumers can dispatch without inspecting fields.
type JSON struct{}

func NewJSON() *JSON { return &JSON{} }

type jsonDocument struct {
	Schema   string        `json:"schema"`
	Passed   bool          `json:"passed"`
	Patterns []jsonPattern `json:"patterns"`
}

type jsonPattern struct {
	Type pattern.PatternType `json:"type"`
	Data pattern.Pattern     `json:"data"`
}

// Render implements Renderer. passed is false when any summary reports an
// error item.
func (j *JSON) Render(patterns []pattern.Pattern) string {
	doc := jsonDocument{
		Schema:   JSONSchemaVersion,
		Passed:   true,
		Patterns: make([]jsonPattern, 0, len(patterns)),
	}
	for _, p := range patterns {
		if s, ok := p.(*pattern.Summary); ok && hasError(s) {
			doc.Passed = false
		}
		doc.Patterns = append(doc.Patterns, jsonPattern{Type: p.Type(), Data: p})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		errJSON, _ := json.Marshal(map[string]string{"error": err.Error()})
		return string(errJSON) + "\n"
	}
	return string(data) + "\n"
}

func hasError(s *pattern.Summary) bool {
	for _, m := range s.Metrics {
		if m.Kind == "error" {
			return true
		}
	}
	return false
}
