package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the names of executed stages.
type recorder struct {
	ran  []string
	fail map[string]error
}

func (r *recorder) action(name string) Action {
	return func(context.Context) error {
		r.ran = append(r.ran, name)
		return r.fail[name]
	}
}

// gradleLike registers the verification chain of a typical Java build.
func gradleLike(rec *recorder) *Pipeline {
	p := New(zerolog.Nop())
	p.Register(Stage{Name: "test", Action: rec.action("test")})
	p.Register(Stage{Name: "integrationTest", RunsAfter: []string{"test"}, Action: rec.action("integrationTest")})
	p.Register(Stage{Name: "coverageReport", DependsOn: []string{"test"}, RunsAfter: []string{"integrationTest"}, Action: rec.action("coverageReport")})
	p.Register(Stage{Name: "verifyCoverage", DependsOn: []string{"coverageReport"}, Action: rec.action("verifyCoverage")})
	p.Register(Stage{Name: "check", DependsOn: []string{"test", "verifyCoverage"}, Action: rec.action("check")})
	return p
}

func TestPlan_PullsPrerequisites_When_TargetHasDependsOn(t *testing.T) {
	t.Parallel()

	p := gradleLike(&recorder{})

	plan, err := p.Plan("check")
	require.NoError(t, err)
	assert.Equal(t, []string{"test", "coverageReport", "verifyCoverage", "check"}, plan)

	plan, err = p.Plan("verifyCoverage")
	require.NoError(t, err)
	assert.Equal(t, []string{"test", "coverageReport", "verifyCoverage"}, plan)
}

func TestPlan_OrdersRunsAfter_When_BothSelected(t *testing.T) {
	t.Parallel()

	p := gradleLike(&recorder{})

	plan, err := p.Plan("integrationTest", "check")
	require.NoError(t, err)
	assert.Equal(t, []string{"test", "integrationTest", "coverageReport", "verifyCoverage", "check"}, plan)

	plan, err = p.Plan("integrationTest")
	require.NoError(t, err)
	assert.Equal(t, []string{"integrationTest"}, plan, "RunsAfter does not pull test in")
}

func TestPlan_ReturnsError_When_TargetUnknown(t *testing.T) {
	t.Parallel()

	_, err := gradleLike(&recorder{}).Plan("deploy")
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestValidate_RejectsGraph_When_Malformed(t *testing.T) {
	t.Parallel()

	noop := func(context.Context) error { return nil }
	tests := []struct {
		name   string
		stages []Stage
		kind   error
		msg    string
	}{
		{"duplicate", []Stage{{Name: "a", Action: noop}, {Name: "a", Action: noop}}, ErrInvalidPipeline, `duplicate stage "a"`},
		{"unknown ref", []Stage{{Name: "a", DependsOn: []string{"b"}, Action: noop}}, ErrInvalidPipeline, `unknown stage "b"`},
		{"self", []Stage{{Name: "a", RunsAfter: []string{"a"}, Action: noop}}, ErrInvalidPipeline, "itself"},
		{"no action", []Stage{{Name: "a"}}, ErrInvalidPipeline, "no action"},
		{"cycle", []Stage{
			{Name: "a", DependsOn: []string{"c"}, Action: noop},
			{Name: "b", DependsOn: []string{"a"}, Action: noop},
			{Name: "c", RunsAfter: []string{"b"}, Action: noop},
		}, ErrCycle, "a -> b -> c -> a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := New(zerolog.Nop())
			for _, s := range tt.stages {
				p.Register(s)
			}
			err := p.Validate()
			require.ErrorIs(t, err, tt.kind)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestRun_SkipsDependents_When_PrerequisiteFails(t *testing.T) {
	t.Parallel()

	rec := &recorder{fail: map[string]error{"test": errors.New("2 tests failed")}}
	res, err := gradleLike(rec).Run(context.Background(), Options{}, "check")
	require.NoError(t, err)

	assert.Equal(t, []string{"test"}, rec.ran)
	assert.True(t, res.Failed())
	for _, name := range []string{"coverageReport", "verifyCoverage", "check"} {
		sr, ok := res.Stage(name)
		require.True(t, ok)
		assert.Equal(t, Skipped, sr.Status, name)
	}

	var se *StageError
	require.ErrorAs(t, res.Err(), &se)
	assert.Equal(t, "test", se.Stage)
}

func TestRun_RunsDependents_When_ContinueSet(t *testing.T) {
	t.Parallel()

	rec := &recorder{fail: map[string]error{"test": errors.New("failed")}}
	res, err := gradleLike(rec).Run(context.Background(), Options{Continue: true}, "check")
	require.NoError(t, err)

	assert.Equal(t, []string{"test", "coverageReport", "verifyCoverage", "check"}, rec.ran)
	sr, _ := res.Stage("check")
	assert.Equal(t, Succeeded, sr.Status)
}

func TestRun_ReportsEveryFailure_When_SeveralStagesFail(t *testing.T) {
	t.Parallel()

	rec := &recorder{fail: map[string]error{
		"integrationTest": errors.New("it failed"),
		"verifyCoverage":  errors.New("below minimum"),
	}}
	res, err := gradleLike(rec).Run(context.Background(), Options{}, "integrationTest", "check")
	require.NoError(t, err)

	assert.Equal(t, []string{"test", "integrationTest", "coverageReport", "verifyCoverage"}, rec.ran)
	msg := res.Err().Error()
	assert.Contains(t, msg, "stage integrationTest failed")
	assert.Contains(t, msg, "stage verifyCoverage failed")
}

func TestRun_StopsAndReturnsError_When_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := New(zerolog.Nop())
	var ran []string
	p.Register(Stage{Name: "a", Action: func(context.Context) error { ran = append(ran, "a"); cancel(); return nil }})
	p.Register(Stage{Name: "b", DependsOn: []string{"a"}, Action: func(context.Context) error { ran = append(ran, "b"); return nil }})

	res, err := p.Run(ctx, Options{Continue: true}, "b")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, ran)
	sr, _ := res.Stage("b")
	assert.Equal(t, Skipped, sr.Status)
}
