package sarif

import (
	"encoding/json"
	"io"
)

// Builder accumulates results for a single run.
type Builder struct {
	doc   Document
	rules map[string]int
}

// NewBuilder returns a builder for a run of the named tool.
func NewBuilder(toolName, toolVersion string) *Builder {
	return &Builder{
		doc: Document{
			Version: Version,
			Schema:  SchemaURI,
			Runs: []Run{{
				Tool:    Tool{Driver: Driver{Name: toolName, Version: toolVersion}},
				Results: []Result{},
			}},
		},
		rules: map[string]int{},
	}
}

func (b *Builder) run() *Run { return &b.doc.Runs[0] }

// AddRule registers rule metadata. Registering an ID twice keeps the first
// description.
func (b *Builder) AddRule(id, description string) *Builder {
	b.ruleIndex(id, description)
	return b
}

func (b *Builder) ruleIndex(id, description string) int {
	if idx, ok := b.rules[id]; ok {
		return idx
	}
	r := Rule{ID: id}
	if description != "" {
		r.ShortDescription = &Message{Text: description}
	}
	driver := &b.run().Tool.Driver
	driver.Rules = append(driver.Rules, r)
	b.rules[id] = len(driver.Rules) - 1
	return b.rules[id]
}

// AddResult appends a finding. file may be empty for findings without a
// location; line and col are omitted when zero.
func (b *Builder) AddResult(ruleID, level, message, file string, line, col int) *Builder {
	return b.add(Result{RuleID: ruleID, Level: level, Message: Message{Text: message}}, file, line, col)
}

func (b *Builder) add(r Result, file string, line, col int) *Builder {
	idx := b.ruleIndex(r.RuleID, "")
	r.RuleIndex = &idx
	if file != "" {
		loc := Location{PhysicalLocation: PhysicalLocation{ArtifactLocation: ArtifactLocation{URI: file}}}
		if line > 0 {
			loc.PhysicalLocation.Region = &Region{StartLine: line, StartColumn: col}
		}
		r.Locations = []Location{loc}
	}
	run := b.run()
	run.Results = append(run.Results, r)
	return b
}

// SetExecutionSuccessful records the overall outcome as the run's single
// invocation.
func (b *Builder) SetExecutionSuccessful(ok bool) *Builder {
	b.run().Invocations = []Invocation{{ExecutionSuccessful: ok}}
	return b
}

// Document returns the document built so far.
func (b *Builder) Document() *Document {
	return &b.doc
}

// WriteTo writes the document as indented JSON.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	data, err := json.MarshalIndent(b.doc, "", "  ")
	if err != nil {
		return 0, err
	}
	n, err := w.Write(append(data, '\n'))
	return int64(n), err
}
