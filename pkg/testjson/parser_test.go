package testjson

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ndjson(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}

func TestParseStream_CountsOutcomes_When_PassAndFailMixed(t *testing.T) {
	t.Parallel()

	input := ndjson(
		`{"Action":"run","Package":"example.com/orders","Test":"TestCreate"}`,
		`{"Action":"pass","Package":"example.com/orders","Test":"TestCreate","Elapsed":0.1}`,
		`{"Action":"run","Package":"example.com/orders","Test":"TestCancel"}`,
		`{"Action":"output","Package":"example.com/orders","Test":"TestCancel","Output":"    orders_test.go:12: want cancelled\n"}`,
		`{"Action":"fail","Package":"example.com/orders","Test":"TestCancel","Elapsed":0.2}`,
		`{"Action":"fail","Package":"example.com/orders","Elapsed":0.5}`,
	)

	results, malformed, err := ParseStream(strings.NewReader(input))
	require.NoError(t, err)
	assert.Zero(t, malformed)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, 1, r.Passed)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, StatusFail, r.Status())
	assert.Empty(t, r.BuildError)
	require.Len(t, r.FailedTests, 1)
	assert.Equal(t, "TestCancel", r.FailedTests[0].Name)
	assert.Equal(t, []string{"    orders_test.go:12: want cancelled"}, r.FailedTests[0].Output)

	tr, ok := r.Test("TestCreate")
	require.True(t, ok)
	assert.Equal(t, TestPass, tr.Status)
}

func TestParseStream_ExtractsCoverage_When_SummaryLinePresent(t *testing.T) {
	t.Parallel()

	input := ndjson(
		`{"Action":"pass","Package":"example.com/pkg","Test":"TestA","Elapsed":0.1}`,
		`{"Action":"output","Package":"example.com/pkg","Output":"coverage: 85.3% of statements\n"}`,
		`{"Action":"pass","Package":"example.com/pkg","Elapsed":0.5}`,
	)

	results, _, err := ParseStream(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 85.3, results[0].Coverage, 0.01)
}

func TestParseStream_FlagsPanic_When_OutputContainsPanic(t *testing.T) {
	t.Parallel()

	input := ndjson(
		`{"Action":"run","Package":"example.com/pkg","Test":"TestBad"}`,
		`{"Action":"output","Package":"example.com/pkg","Test":"TestBad","Output":"panic: runtime error: index out of range\n"}`,
		`{"Action":"fail","Package":"example.com/pkg","Test":"TestBad","Elapsed":0.0}`,
		`{"Action":"fail","Package":"example.com/pkg","Elapsed":0.0}`,
	)

	results, _, err := ParseStream(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Panicked)
	assert.NotEmpty(t, results[0].PanicOutput)
}

func TestParseStream_RecordsBuildError_When_PackageFailsWithoutTests(t *testing.T) {
	t.Parallel()

	input := ndjson(
		`{"Action":"output","Package":"example.com/broken","Output":"# example.com/broken\n"}`,
		`{"Action":"output","Package":"example.com/broken","Output":"./broken.go:3:1: syntax error\n"}`,
		`{"Action":"fail","Package":"example.com/broken","Elapsed":0.0}`,
	)

	results, _, err := ParseStream(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].BuildError, "syntax error")
	assert.Equal(t, StatusFail, results[0].Status())
}

func TestParseStream_OmitsPackage_When_NoTestActivity(t *testing.T) {
	t.Parallel()

	results, _, err := ParseStream(strings.NewReader(`{"Action":"start","Package":"example.com/empty"}` + "\n"))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestParseStream_SkipsMalformed_When_LinesAreNotJSON(t *testing.T) {
	t.Parallel()

	input := "not json\n{bad json\n" + ndjson(
		`{"Action":"run","Package":"x","Test":"T"}`,
		`{"Action":"pass","Package":"x","Test":"T","Elapsed":0.1}`,
		`{"Action":"pass","Package":"x","Elapsed":0.1}`,
	)

	results, malformed, err := ParseStream(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, malformed)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Passed)
}

func TestAggregator_KeepsOutput_When_TestSkipped(t *testing.T) {
	t.Parallel()

	agg := NewAggregator()
	agg.Add(TestEvent{Action: ActionRun, Package: "p", Test: "TestDB"})
	agg.Add(TestEvent{Action: ActionOutput, Package: "p", Test: "TestDB", Output: "    db_test.go:9: no database\n"})
	agg.Add(TestEvent{Action: StatusSkip, Package: "p", Test: "TestDB", Elapsed: 0.01})
	agg.Add(TestEvent{Action: StatusPass, Package: "p"})

	results := agg.Results()
	require.Len(t, results, 1)
	tr, ok := results[0].Test("TestDB")
	require.True(t, ok)
	assert.Equal(t, TestSkip, tr.Status)
	assert.Equal(t, []string{"    db_test.go:9: no database"}, tr.Output)
	assert.Equal(t, StatusSkip, results[0].Status())
}

func TestListedTests_ReturnsNames_When_ListOutputParsed(t *testing.T) {
	t.Parallel()

	input := ndjson(
		`{"Action":"start","Package":"example.com/orders"}`,
		`{"Action":"output","Package":"example.com/orders","Output":"TestCreate\n"}`,
		`{"Action":"output","Package":"example.com/orders","Output":"TestOrderRepositoryIT\n"}`,
		`{"Action":"output","Package":"example.com/orders","Output":"ExampleOrder\n"}`,
		`{"Action":"output","Package":"example.com/orders","Output":"ok  \texample.com/orders\t0.004s\n"}`,
		`{"Action":"pass","Package":"example.com/orders","Elapsed":0.004}`,
		`{"Action":"output","Package":"example.com/broken","Output":"./x.go:1:1: expected 'package'\n"}`,
		`{"Action":"fail","Package":"example.com/broken","Elapsed":0}`,
	)

	pkgs, malformed, err := ListedTests(strings.NewReader(input))
	require.NoError(t, err)
	assert.Zero(t, malformed)
	require.Len(t, pkgs, 2)

	assert.Equal(t, "example.com/orders", pkgs[0].Package)
	assert.Equal(t, []string{"TestCreate", "TestOrderRepositoryIT", "ExampleOrder"}, pkgs[0].Tests)
	assert.False(t, pkgs[0].Failed)

	assert.True(t, pkgs[1].Failed)
	assert.Empty(t, pkgs[1].Tests)
	assert.Equal(t, []string{"./x.go:1:1: expected 'package'"}, pkgs[1].Output)
}

func TestComputeStats_SumsPackages_When_Mixed(t *testing.T) {
	t.Parallel()

	s := ComputeStats([]TestPackageResult{
		{Name: "a", Passed: 5, Failed: 1},
		{Name: "b", Passed: 3, Skipped: 2},
	})
	assert.Equal(t, 11, s.TotalTests)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.FailedPkgs)
	assert.Equal(t, 2, s.Packages)
}
