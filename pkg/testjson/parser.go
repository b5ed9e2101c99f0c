package testjson

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

const maxLineSize = 1024 * 1024

// ParseStream aggregates a complete go test -json stream. It returns the
// per-package results and the number of malformed lines skipped.
func ParseStream(r io.Reader) ([]TestPackageResult, int, error) {
	agg := NewAggregator()
	malformed, err := Stream(context.Background(), r, agg.Add)
	if err != nil {
		return nil, malformed, fmt.Errorf("scanning test output: %w", err)
	}
	return agg.Results(), malformed, nil
}

// scanResult carries a scanned line or terminal error from the scanner goroutine.
type scanResult struct {
	line []byte
	err  error
}

// Stream parses go test -json events line by line and calls fn for each one.
// Stops on EOF or when ctx is cancelled. Returns the number of malformed lines
// skipped and any error.
//
// Cancellation: the scanner runs in a background goroutine. On context cancel,
// Stream closes r (if it implements io.Closer) to unblock the scanner. If r
// does not implement io.Closer (e.g. *bufio.Reader), the caller must close the
// underlying reader externally to prevent a goroutine leak.
func Stream(ctx context.Context, r io.Reader, fn ProcessFunc) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lines := make(chan scanResult)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			// Copy bytes, the scanner reuses its buffer.
			cp := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- scanResult{line: cp}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- scanResult{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	var malformed int
	for {
		select {
		case <-ctx.Done():
			// Attempt to unblock the scanner goroutine.
			if c, ok := r.(io.Closer); ok {
				_ = c.Close()
			}
			return malformed, ctx.Err()
		case res, ok := <-lines:
			if !ok {
				return malformed, nil
			}
			if res.err != nil {
				return malformed, res.err
			}
			if len(res.line) == 0 {
				continue
			}
			var event TestEvent
			if err := json.Unmarshal(res.line, &event); err != nil {
				malformed++
				continue
			}
			fn(event)
		}
	}
}

// ListedTests extracts the test names printed by `go test -list <re> -json`,
// keyed by package in first-seen order. Only names with a Test, Example,
// Fuzz or Benchmark prefix are returned.
func ListedTests(r io.Reader) ([]ListedPackage, int, error) {
	var (
		order []string
		byPkg = map[string]*ListedPackage{}
	)
	malformed, err := Stream(context.Background(), r, func(e TestEvent) {
		if e.Package == "" {
			return
		}
		lp, ok := byPkg[e.Package]
		if !ok {
			lp = &ListedPackage{Package: e.Package}
			byPkg[e.Package] = lp
			order = append(order, e.Package)
		}
		switch e.Action {
		case ActionOutput:
			if e.Test != "" {
				return
			}
			name := strings.TrimSpace(e.Output)
			if isTestName(name) {
				lp.Tests = append(lp.Tests, name)
			} else if name != "" && !strings.HasPrefix(name, "ok ") && !strings.HasPrefix(name, "?") {
				lp.Output = append(lp.Output, name)
			}
		case StatusFail:
			if e.Test == "" {
				lp.Failed = true
			}
		}
	})
	if err != nil {
		return nil, malformed, fmt.Errorf("reading test list: %w", err)
	}
	out := make([]ListedPackage, 0, len(order))
	for _, name := range order {
		out = append(out, *byPkg[name])
	}
	return out, malformed, nil
}

func isTestName(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t:") {
		return false
	}
	for _, prefix := range []string{"Test", "Example", "Fuzz", "Benchmark"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

// Aggregator folds a go test -json event stream into per-package results.
// It is not safe for concurrent use.
type Aggregator struct {
	packages map[string]*pkgState
	order    []string
}

type pkgState struct {
	name        string
	passed      int
	failed      int
	skipped     int
	duration    time.Duration
	coverage    float64
	failedTests map[string]*testState
	allTests    map[string]*testState
	testOrder   []string
	buildError  string
	panicked    bool
	panicOutput []string
	// Track output for tests in progress
	outputBuf map[string][]string
}

type testState struct {
	name     string
	status   string
	duration time.Duration
	output   []string
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		packages: make(map[string]*pkgState),
	}
}

func (a *Aggregator) getOrCreate(name string) *pkgState {
	if pkg, ok := a.packages[name]; ok {
		return pkg
	}
	pkg := &pkgState{
		name:        name,
		failedTests: make(map[string]*testState),
		allTests:    make(map[string]*testState),
		outputBuf:   make(map[string][]string),
	}
	a.packages[name] = pkg
	a.order = append(a.order, name)
	return pkg
}

// Add folds one event into the aggregate.
func (a *Aggregator) Add(e TestEvent) {
	pkg := a.getOrCreate(e.Package)

	switch e.Action {
	case StatusPass:
		if e.Test != "" {
			pkg.passed++
			ts := pkg.getOrCreateTest(e.Test)
			ts.status = TestPass
			ts.duration = elapsed(e)
			ts.output = pkg.outputBuf[e.Test]
		} else {
			pkg.duration = elapsed(e)
		}

	case StatusFail:
		if e.Test != "" {
			pkg.failed++
			ts := pkg.getOrCreateTest(e.Test)
			ts.status = TestFail
			ts.duration = elapsed(e)
			ts.output = pkg.outputBuf[e.Test]
			pkg.failedTests[e.Test] = ts
		} else {
			pkg.duration = elapsed(e)
			// Failed with no tests run means the package did not build.
			if pkg.passed == 0 && pkg.failed == 0 && pkg.skipped == 0 {
				pkg.buildError = strings.Join(pkg.outputBuf[""], "\n")
				if pkg.buildError == "" {
					pkg.buildError = "package failed before running tests"
				}
			}
		}

	case StatusSkip:
		if e.Test != "" {
			pkg.skipped++
			ts := pkg.getOrCreateTest(e.Test)
			ts.status = TestSkip
			ts.duration = elapsed(e)
			ts.output = pkg.outputBuf[e.Test]
		}

	case ActionOutput:
		output := strings.TrimRight(e.Output, "\n")
		if output == "" {
			return
		}
		pkg.outputBuf[e.Test] = append(pkg.outputBuf[e.Test], output)

		if strings.Contains(output, "panic:") || strings.HasPrefix(output, "goroutine ") {
			pkg.panicked = true
			pkg.panicOutput = append(pkg.panicOutput, output)
		}

		if strings.Contains(output, "coverage:") && strings.Contains(output, "% of statements") {
			var cov float64
			idx := strings.Index(output, "coverage:")
			_, _ = fmt.Sscanf(output[idx:], "coverage: %f%% of statements", &cov)
			if cov > 0 {
				pkg.coverage = cov
			}
		}
	}
}

func elapsed(e TestEvent) time.Duration {
	return time.Duration(e.Elapsed * float64(time.Second))
}

func (pkg *pkgState) getOrCreateTest(name string) *testState {
	if ts, ok := pkg.allTests[name]; ok {
		return ts
	}
	ts := &testState{name: name}
	pkg.allTests[name] = ts
	pkg.testOrder = append(pkg.testOrder, name)
	return ts
}

// Results returns per-package results in first-seen order. Packages with no
// test activity are omitted.
func (a *Aggregator) Results() []TestPackageResult {
	results := make([]TestPackageResult, 0, len(a.order))
	for _, name := range a.order {
		pkg := a.packages[name]
		if pkg.passed == 0 && pkg.failed == 0 && pkg.skipped == 0 && pkg.buildError == "" && !pkg.panicked {
			continue
		}

		r := TestPackageResult{
			Name:       pkg.name,
			Passed:     pkg.passed,
			Failed:     pkg.failed,
			Skipped:    pkg.skipped,
			Duration:   pkg.duration,
			Coverage:   pkg.coverage,
			BuildError: pkg.buildError,
			Panicked:   pkg.panicked,
		}

		if pkg.panicked {
			r.PanicOutput = pkg.panicOutput
		}

		for _, testName := range pkg.testOrder {
			ts := pkg.allTests[testName]
			r.AllTests = append(r.AllTests, TestResult{
				Name:     ts.name,
				Status:   ts.status,
				Duration: ts.duration,
				Output:   ts.output,
			})
		}

		for _, testName := range pkg.testOrder {
			if ft, ok := pkg.failedTests[testName]; ok {
				r.FailedTests = append(r.FailedTests, FailedTest{
					Name:   ft.name,
					Output: ft.output,
				})
			}
		}

		results = append(results, r)
	}
	return results
}
