package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/buildgate/pkg/partition"
)

type fakeResponse struct {
	stdout string
	stderr string
	err    error
}

// fakeCommander answers go invocations by subcommand and final argument.
type fakeCommander struct {
	mu        sync.Mutex
	responses map[string]fakeResponse // key: "<subcommand> <last arg>"
	calls     [][]string
	profiles  bool // write an empty profile wherever -coverprofile points
}

func (f *fakeCommander) Run(_ context.Context, _ string, stdout, stderr io.Writer, _ string, args ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	resp, ok := f.responses[args[0]+" "+args[len(args)-1]]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("unexpected call: %v", args)
	}
	if f.profiles {
		for i, a := range args[:len(args)-1] {
			if a == "-coverprofile" {
				if err := os.WriteFile(args[i+1], []byte("mode: set\n"), 0o600); err != nil {
					return err
				}
			}
		}
	}
	_, _ = io.WriteString(stdout, resp.stdout)
	_, _ = io.WriteString(stderr, resp.stderr)
	return resp.err
}

func (f *fakeCommander) callFor(sub, last string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c[0] == sub && c[len(c)-1] == last {
			return c
		}
	}
	return nil
}

func lines(ls ...string) string { return strings.Join(ls, "\n") + "\n" }

const ordersPkg = "example.com/store/orders"

func newTestRunner(f Commander, buf *bytes.Buffer) *Runner {
	return New(f, Options{Parallelism: 2, CoverDir: "cov"}, zerolog.New(buf))
}

func TestDiscover_ListsUnitsWithTags_When_PackagesHaveTests(t *testing.T) {
	t.Parallel()

	f := &fakeCommander{responses: map[string]fakeResponse{
		"list ./...": {stdout: `{"ImportPath":"example.com/store/orders","Dir":"../discover/testdata/orders","TestGoFiles":["orders_test.go","repository_test.go"]}`},
		"test ./...": {stdout: lines(
			`{"Action":"output","Package":"example.com/store/orders","Output":"TestCreate\n"}`,
			`{"Action":"output","Package":"example.com/store/orders","Output":"TestRepositorySave\n"}`,
			`{"Action":"output","Package":"example.com/store/orders","Output":"BenchmarkEncode\n"}`,
			`{"Action":"pass","Package":"example.com/store/orders"}`,
			`{"Action":"output","Package":"example.com/store/broken","Output":"broken_test.go:3:1: undefined: x\n"}`,
			`{"Action":"fail","Package":"example.com/store/broken"}`,
		), err: &ExitError{Code: 1}},
	}}
	var logs bytes.Buffer
	r := New(f, Options{BuildTags: []string{"integration"}, TagFilter: []string{"integration"}}, zerolog.New(&logs))

	d, err := r.Discover(context.Background())
	require.NoError(t, err)

	require.Len(t, d.Units, 2)
	assert.Equal(t, partition.TestUnit{Package: ordersPkg, Name: "TestCreate"}, d.Units[0])
	assert.Equal(t, []string{"integration"}, d.Units[1].Tags)
	require.Len(t, d.Failures, 1)
	assert.Equal(t, "example.com/store/broken", d.Failures[0].Package)
	assert.Contains(t, d.Failures[0].Output[0], "undefined: x")

	assert.Contains(t, f.callFor("test", "./..."), "integration")
}

func TestDiscover_ReturnsRuntimeError_When_GoBinaryMissing(t *testing.T) {
	t.Parallel()

	f := &fakeCommander{responses: map[string]fakeResponse{
		"list ./...": {err: exec.ErrNotFound},
	}}
	_, err := New(f, Options{}, zerolog.Nop()).Discover(context.Background())

	var rt *RuntimeError
	require.ErrorAs(t, err, &rt)
	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestRunGroup_RecordsOutcomes_When_TestsFinish(t *testing.T) {
	t.Parallel()

	f := &fakeCommander{responses: map[string]fakeResponse{
		"test " + ordersPkg: {stdout: lines(
			`{"Action":"run","Package":"example.com/store/orders","Test":"TestCreate"}`,
			`{"Action":"pass","Package":"example.com/store/orders","Test":"TestCreate","Elapsed":0.01}`,
			`{"Action":"run","Package":"example.com/store/orders","Test":"TestCancel"}`,
			`{"Action":"output","Package":"example.com/store/orders","Test":"TestCancel","Output":"    orders_test.go:20: \u001b[31mwant cancelled\u001b[0m\n"}`,
			`{"Action":"fail","Package":"example.com/store/orders","Test":"TestCancel","Elapsed":0.02}`,
			`{"Action":"run","Package":"example.com/store/orders","Test":"TestSlow"}`,
			`{"Action":"skip","Package":"example.com/store/orders","Test":"TestSlow","Elapsed":0}`,
			`{"Action":"fail","Package":"example.com/store/orders","Elapsed":0.1}`,
		), err: &ExitError{Code: 1}},
	}}
	var logs bytes.Buffer
	r := newTestRunner(f, &logs)

	units := []partition.TestUnit{
		{Package: ordersPkg, Name: "TestCreate"},
		{Package: ordersPkg, Name: "TestCancel"},
		{Package: ordersPkg, Name: "TestSlow"},
		{Package: ordersPkg, Name: "TestVanished"},
	}
	res, err := r.RunGroup(context.Background(), GroupRun{Group: partition.Standard, Units: units})
	require.NoError(t, err)

	outcomes := make([]partition.Outcome, 0, len(res.Units))
	for _, u := range res.Units {
		outcomes = append(outcomes, u.Outcome)
	}
	assert.Equal(t, []partition.Outcome{
		partition.OutcomePassed, partition.OutcomeFailed, partition.OutcomeSkipped, partition.OutcomeFailed,
	}, outcomes)
	assert.Equal(t, []string{"    orders_test.go:20: want cancelled"}, res.Units[1].Output, "ansi stripped")
	assert.Equal(t, []string{"no result reported"}, res.Units[3].Output)
	assert.Empty(t, units[0].Outcome, "input units are not mutated")

	var gf *GroupFailedError
	require.ErrorAs(t, res.Err(), &gf)
	assert.Equal(t, []string{ordersPkg + ".TestCancel", ordersPkg + ".TestVanished"}, gf.Tests)
	assert.Equal(t, []string{"cov/standard-000.out"}, res.Profiles)

	call := f.callFor("test", ordersPkg)
	assert.Contains(t, call, "^(TestCreate|TestCancel|TestSlow|TestVanished)$")

	out := logs.String()
	assert.Contains(t, out, `"message":"PASSED"`)
	assert.Contains(t, out, `"message":"FAILED"`)
	assert.Contains(t, out, `"message":"SKIPPED"`)
	assert.Contains(t, out, "want cancelled", "failure output is logged in quiet mode")
}

func TestRunGroup_LogsPassingOutput_When_Verbose(t *testing.T) {
	t.Parallel()

	stream := lines(
		`{"Action":"output","Package":"example.com/store/orders","Test":"TestOrdersIT","Output":"connected to db\n"}`,
		`{"Action":"pass","Package":"example.com/store/orders","Test":"TestOrdersIT","Elapsed":1.5}`,
		`{"Action":"pass","Package":"example.com/store/orders","Elapsed":1.6}`,
	)
	units := []partition.TestUnit{{Package: ordersPkg, Name: "TestOrdersIT"}}

	for _, verbose := range []bool{true, false} {
		f := &fakeCommander{responses: map[string]fakeResponse{"test " + ordersPkg: {stdout: stream}}}
		var logs bytes.Buffer
		res, err := newTestRunner(f, &logs).RunGroup(context.Background(), GroupRun{Group: partition.Integration, Units: units, Verbose: verbose})
		require.NoError(t, err)
		assert.NoError(t, res.Err())
		assert.Equal(t, verbose, strings.Contains(logs.String(), "connected to db"), "verbose=%v", verbose)
	}
}

func TestRunGroup_FailsEveryUnit_When_PackageDoesNotBuild(t *testing.T) {
	t.Parallel()

	f := &fakeCommander{responses: map[string]fakeResponse{
		"test " + ordersPkg: {
			stdout: lines(`{"Action":"fail","Package":"example.com/store/orders","Elapsed":0}`),
			stderr: "# example.com/store/orders\norders.go:9:2: undefined: Order\n",
			err:    &ExitError{Code: 1},
		},
	}}
	res, err := newTestRunner(f, &bytes.Buffer{}).RunGroup(context.Background(), GroupRun{
		Group: partition.Standard,
		Units: []partition.TestUnit{{Package: ordersPkg, Name: "TestA"}, {Package: ordersPkg, Name: "TestB"}},
	})
	require.NoError(t, err)

	for _, u := range res.Units {
		assert.Equal(t, partition.OutcomeFailed, u.Outcome)
		assert.Contains(t, strings.Join(u.Output, "\n"), "undefined: Order")
	}
	assert.Empty(t, res.Profiles)
}

func TestRunGroup_ReturnsRuntimeError_When_ProcessCannotStart(t *testing.T) {
	t.Parallel()

	f := &fakeCommander{responses: map[string]fakeResponse{
		"test " + ordersPkg: {err: errors.New("fork/exec go: permission denied")},
	}}
	_, err := newTestRunner(f, &bytes.Buffer{}).RunGroup(context.Background(), GroupRun{
		Group: partition.Standard,
		Units: []partition.TestUnit{{Package: ordersPkg, Name: "TestA"}},
	})

	var rt *RuntimeError
	require.ErrorAs(t, err, &rt)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestRunGroup_KeepsDiscoveryOrder_When_PackagesRunConcurrently(t *testing.T) {
	t.Parallel()

	pass := func(pkg, test string) fakeResponse {
		return fakeResponse{stdout: lines(
			fmt.Sprintf(`{"Action":"pass","Package":%q,"Test":%q,"Elapsed":0.01}`, pkg, test),
			fmt.Sprintf(`{"Action":"pass","Package":%q,"Elapsed":0.01}`, pkg),
		)}
	}
	f := &fakeCommander{responses: map[string]fakeResponse{
		"test example.com/a": pass("example.com/a", "TestA"),
		"test example.com/b": pass("example.com/b", "TestB"),
		"test example.com/c": pass("example.com/c", "TestC"),
	}}
	units := []partition.TestUnit{
		{Package: "example.com/c", Name: "TestC"},
		{Package: "example.com/a", Name: "TestA"},
		{Package: "example.com/b", Name: "TestB"},
	}

	res, err := newTestRunner(f, &bytes.Buffer{}).RunGroup(context.Background(), GroupRun{Group: partition.Standard, Units: units})
	require.NoError(t, err)
	require.NoError(t, res.Err())

	var got []string
	for _, p := range res.Packages {
		got = append(got, p.Name)
	}
	assert.Equal(t, []string{"example.com/c", "example.com/a", "example.com/b"}, got)
	assert.Equal(t, []string{"cov/standard-000.out", "cov/standard-001.out", "cov/standard-002.out"}, res.Profiles)
}

func TestRunGroup_Fails_When_DiscoveryReportedBrokenPackage(t *testing.T) {
	t.Parallel()

	res, err := newTestRunner(&fakeCommander{}, &bytes.Buffer{}).RunGroup(context.Background(), GroupRun{
		Group:    partition.Integration,
		Failures: []PackageFailure{{Package: "example.com/broken"}},
	})
	require.NoError(t, err)

	var gf *GroupFailedError
	require.ErrorAs(t, res.Err(), &gf)
	assert.Equal(t, []string{"example.com/broken"}, gf.Packages)
}

func TestRunPattern_QuotesNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `^(TestA|Test\.B)$`, RunPattern([]string{"TestA", "Test.B"}))
	assert.Equal(t, "^$", RunPattern(nil))
}

func TestDiscover_ListsCoverageScope_When_PackagesHaveCode(t *testing.T) {
	t.Parallel()

	f := &fakeCommander{responses: map[string]fakeResponse{
		"list ./...": {stdout: lines(
			`{"ImportPath":"example.com/store/orders","Dir":"../discover/testdata/orders","GoFiles":["service.go"],"TestGoFiles":["orders_test.go"]}`,
			`{"ImportPath":"example.com/store/billing","Dir":"billing","GoFiles":["invoice.go"]}`,
			`{"ImportPath":"example.com/store/fixtures","Dir":"fixtures"}`,
			`{"ImportPath":"example.com/store/broken","Dir":"broken","GoFiles":["broken.go"],"TestGoFiles":["broken_test.go"]}`,
		)},
		"test ./...": {stdout: lines(
			`{"Action":"output","Package":"example.com/store/orders","Output":"TestCreate\n"}`,
			`{"Action":"pass","Package":"example.com/store/orders"}`,
			`{"Action":"output","Package":"example.com/store/broken","Output":"broken_test.go:3:1: undefined: x\n"}`,
			`{"Action":"fail","Package":"example.com/store/broken"}`,
		), err: &ExitError{Code: 1}},
	}}

	d, err := New(f, Options{}, zerolog.Nop()).Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{ordersPkg, "example.com/store/billing"}, d.Packages)
}

func TestRunGroup_CollectsProfilesOfUntestedPackages_When_CoverDirSet(t *testing.T) {
	t.Parallel()

	const billingPkg = "example.com/store/billing"
	f := &fakeCommander{profiles: true, responses: map[string]fakeResponse{
		"test " + ordersPkg: {stdout: lines(
			`{"Action":"run","Package":"example.com/store/orders","Test":"TestCreate"}`,
			`{"Action":"pass","Package":"example.com/store/orders","Test":"TestCreate"}`,
			`{"Action":"pass","Package":"example.com/store/orders"}`,
		)},
		"test " + billingPkg: {stdout: lines(
			`{"Action":"output","Package":"example.com/store/billing","Output":"?   \texample.com/store/billing\t[no test files]\n"}`,
			`{"Action":"skip","Package":"example.com/store/billing"}`,
		)},
	}}
	dir := t.TempDir()
	r := New(f, Options{Parallelism: 2, CoverDir: dir}, zerolog.Nop())

	res, err := r.RunGroup(context.Background(), GroupRun{
		Group:    partition.Standard,
		Units:    []partition.TestUnit{{Package: ordersPkg, Name: "TestCreate"}},
		Packages: []string{ordersPkg, billingPkg},
	})
	require.NoError(t, err)

	call := f.callFor("test", billingPkg)
	require.NotNil(t, call)
	assert.Contains(t, call, "^$")
	assert.Equal(t, []string{
		filepath.Join(dir, "standard-000.out"),
		filepath.Join(dir, "standard-001.out"),
	}, res.Profiles)
	require.Len(t, res.Packages, 1, "untested packages report no results")
	assert.Equal(t, ordersPkg, res.Packages[0].Name)
	assert.False(t, res.Failed())
}

func TestRunGroup_SkipsUntestedPackages_When_CoverageDisabled(t *testing.T) {
	t.Parallel()

	f := &fakeCommander{responses: map[string]fakeResponse{
		"test " + ordersPkg: {stdout: lines(
			`{"Action":"pass","Package":"example.com/store/orders","Test":"TestCreate"}`,
			`{"Action":"pass","Package":"example.com/store/orders"}`,
		)},
	}}
	r := New(f, Options{Parallelism: 1}, zerolog.Nop())

	_, err := r.RunGroup(context.Background(), GroupRun{
		Group:    partition.Standard,
		Units:    []partition.TestUnit{{Package: ordersPkg, Name: "TestCreate"}},
		Packages: []string{ordersPkg, "example.com/store/billing"},
	})
	require.NoError(t, err)
	assert.Nil(t, f.callFor("test", "example.com/store/billing"))
}

func TestMergeEnv_OverridesBase(t *testing.T) {
	t.Parallel()

	got := mergeEnv([]string{"A=1", "GOFLAGS=-mod=vendor"}, map[string]string{"GOFLAGS": "-mod=mod", "B": "2"})
	assert.Equal(t, []string{"A=1", "B=2", "GOFLAGS=-mod=mod"}, got)
}
