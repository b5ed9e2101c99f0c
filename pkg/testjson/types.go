// Package testjson parses go test -json NDJSON streams.
package testjson

import "time"

// Event actions emitted by test2json.
const (
	StatusPass   = "pass"
	StatusFail   = "fail"
	StatusSkip   = "skip"
	ActionRun    = "run"
	ActionStart  = "start"
	ActionOutput = "output"
)

// Per-test status values carried in TestResult.Status.
const (
	TestPass = "PASS"
	TestFail = "FAIL"
	TestSkip = "SKIP"
)

// ProcessFunc receives each decoded event from Stream.
type ProcessFunc func(TestEvent)

// TestEvent represents a single event from go test -json output.
type TestEvent struct {
	Time    time.Time `json:"Time"`
	Action  string    `json:"Action"` // start, run, pass, fail, skip, output, bench, pause, cont
	Package string    `json:"Package"`
	Test    string    `json:"Test"`
	Elapsed float64   `json:"Elapsed"`
	Output  string    `json:"Output"`
}

// TestResult represents a single test with its status.
type TestResult struct {
	Name     string
	Status   string // "PASS", "FAIL", "SKIP"
	Duration time.Duration
	Output   []string
}

// TestPackageResult represents aggregated results for one package.
type TestPackageResult struct {
	Name        string
	Passed      int
	Failed      int
	Skipped     int
	Duration    time.Duration
	Coverage    float64
	FailedTests []FailedTest
	AllTests    []TestResult
	BuildError  string // non-empty if package failed to build
	Panicked    bool
	PanicOutput []string
}

// FailedTest captures a test failure with its output.
type FailedTest struct {
	Name   string
	Output []string
}

// ListedPackage is one package's output from go test -list.
type ListedPackage struct {
	Package string
	Tests   []string
	Failed  bool     // the package did not compile
	Output  []string // compiler output when Failed
}

// TotalTests returns the total number of tests in this package.
func (r *TestPackageResult) TotalTests() int {
	return r.Passed + r.Failed + r.Skipped
}

// Status returns "pass", "fail", or "skip" for the package.
func (r *TestPackageResult) Status() string {
	if r.BuildError != "" || r.Panicked || r.Failed > 0 {
		return StatusFail
	}
	if r.Passed == 0 && r.Skipped > 0 {
		return StatusSkip
	}
	return StatusPass
}

// Test returns the named test result and whether it was reported.
func (r *TestPackageResult) Test(name string) (TestResult, bool) {
	for _, t := range r.AllTests {
		if t.Name == name {
			return t, true
		}
	}
	return TestResult{}, false
}
