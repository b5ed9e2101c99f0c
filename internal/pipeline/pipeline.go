// Package pipeline runs named stages in dependency order.
//
// DependsOn edges pull prerequisites into a run and gate the dependent on
// their success. RunsAfter edges only order stages that are both selected.
package pipeline

import (
	"container/heap"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// Action is the work of a stage.
type Action func(ctx context.Context) error

// Stage is a named unit of work.
type Stage struct {
	Name        string
	Description string
	DependsOn   []string
	RunsAfter   []string
	Action      Action
}

// Status is the outcome of a stage.
type Status string

const (
	Succeeded Status = "SUCCEEDED"
	Failed    Status = "FAILED"
	Skipped   Status = "SKIPPED"
)

// StageResult records one executed or skipped stage.
type StageResult struct {
	Name     string
	Status   Status
	Err      error
	Duration time.Duration
}

// Result lists stage results in execution order.
type Result struct {
	Stages []StageResult
}

// Failed reports whether any stage failed.
func (r Result) Failed() bool {
	for _, s := range r.Stages {
		if s.Status == Failed {
			return true
		}
	}
	return false
}

// Err returns every stage failure, or nil.
func (r Result) Err() error {
	var result *multierror.Error
	for _, s := range r.Stages {
		if s.Status == Failed {
			result = multierror.Append(result, &StageError{Stage: s.Name, Err: s.Err})
		}
	}
	return result.ErrorOrNil()
}

// Stage returns the result for name.
func (r Result) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// Options control a run.
type Options struct {
	// Continue runs dependents even when a prerequisite failed.
	Continue bool
}

// Pipeline holds registered stages. It is not safe for concurrent
// registration.
type Pipeline struct {
	stages []Stage
	log    zerolog.Logger
}

// New returns an empty pipeline.
func New(log zerolog.Logger) *Pipeline {
	return &Pipeline{log: log}
}

// Register adds a stage. Registration order breaks ordering ties.
func (p *Pipeline) Register(s Stage) {
	p.stages = append(p.stages, s)
}

// Stages returns the registered stages in registration order.
func (p *Pipeline) Stages() []Stage {
	return slices.Clone(p.stages)
}

func (p *Pipeline) indexOf(name string) int {
	for i, s := range p.stages {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Validate rejects empty or duplicate names, references to unknown stages,
// self references and cycles over both edge kinds.
func (p *Pipeline) Validate() error {
	seen := make(map[string]bool, len(p.stages))
	for _, s := range p.stages {
		if s.Name == "" {
			return invalidf("stage name is required")
		}
		if seen[s.Name] {
			return invalidf("duplicate stage %q", s.Name)
		}
		seen[s.Name] = true
		if s.Action == nil {
			return invalidf("stage %q has no action", s.Name)
		}
	}
	for _, s := range p.stages {
		for _, ref := range append(slices.Clone(s.DependsOn), s.RunsAfter...) {
			if !seen[ref] {
				return invalidf("stage %q references unknown stage %q", s.Name, ref)
			}
			if ref == s.Name {
				return invalidf("stage %q references itself", s.Name)
			}
		}
	}

	all := make([]bool, len(p.stages))
	for i := range all {
		all[i] = true
	}
	if order := p.topo(all); len(order) != len(p.stages) {
		return cycleError(p.findCycle())
	}
	return nil
}

// Plan returns the execution order for targets: the targets plus their
// transitive DependsOn prerequisites, topologically sorted.
func (p *Pipeline) Plan(targets ...string) ([]string, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	selected := make([]bool, len(p.stages))
	var visit func(i int)
	visit = func(i int) {
		if selected[i] {
			return
		}
		selected[i] = true
		for _, d := range p.stages[i].DependsOn {
			visit(p.indexOf(d))
		}
	}
	for _, t := range targets {
		i := p.indexOf(t)
		if i < 0 {
			return nil, &Error{Kind: ErrUnknownStage, Msg: t}
		}
		visit(i)
	}

	order := p.topo(selected)
	names := make([]string, len(order))
	for i, idx := range order {
		names[i] = p.stages[idx].Name
	}
	return names, nil
}

// Run executes the plan for targets sequentially. A stage whose DependsOn
// prerequisite failed or was skipped is skipped unless opts.Continue is set.
// The returned error is non-nil only for invalid plans or cancellation; stage
// failures are reported through Result.
func (p *Pipeline) Run(ctx context.Context, opts Options, targets ...string) (Result, error) {
	plan, err := p.Plan(targets...)
	if err != nil {
		return Result{}, err
	}

	var res Result
	status := make(map[string]Status, len(plan))
	for _, name := range plan {
		s := p.stages[p.indexOf(name)]
		log := p.log.With().Str("stage", name).Logger()

		if err := ctx.Err(); err != nil {
			res.Stages = append(res.Stages, StageResult{Name: name, Status: Skipped, Err: err})
			status[name] = Skipped
			continue
		}
		if blocked := blockedBy(s, status); blocked != "" && !opts.Continue {
			log.Warn().Str("prerequisite", blocked).Msg("stage skipped")
			res.Stages = append(res.Stages, StageResult{Name: name, Status: Skipped})
			status[name] = Skipped
			continue
		}

		log.Info().Msg("stage started")
		start := time.Now()
		runErr := s.Action(ctx)
		sr := StageResult{Name: name, Status: Succeeded, Duration: time.Since(start)}
		if runErr != nil {
			sr.Status = Failed
			sr.Err = runErr
			log.Error().Err(runErr).Dur("duration", sr.Duration).Msg("stage failed")
		} else {
			log.Info().Dur("duration", sr.Duration).Msg("stage finished")
		}
		res.Stages = append(res.Stages, sr)
		status[name] = sr.Status

		if runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)) {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func blockedBy(s Stage, status map[string]Status) string {
	for _, d := range s.DependsOn {
		if st := status[d]; st == Failed || st == Skipped {
			return d
		}
	}
	return ""
}

// edges returns, for each stage, the indices of the stages it must follow.
func (p *Pipeline) edges(selected []bool) [][]int {
	out := make([][]int, len(p.stages))
	for i, s := range p.stages {
		if !selected[i] {
			continue
		}
		for _, ref := range append(slices.Clone(s.DependsOn), s.RunsAfter...) {
			j := p.indexOf(ref)
			if j >= 0 && selected[j] && !slices.Contains(out[j], i) {
				out[j] = append(out[j], i)
			}
		}
	}
	return out
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topo is Kahn's algorithm over the selected stages with the ready queue
// ordered by registration index.
func (p *Pipeline) topo(selected []bool) []int {
	out := p.edges(selected)
	indeg := make([]int, len(p.stages))
	for _, targets := range out {
		for _, t := range targets {
			indeg[t]++
		}
	}

	ready := &intMinHeap{}
	for i := range p.stages {
		if selected[i] && indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}
	var order []int
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		order = append(order, n)
		for _, m := range out[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return order
}

// findCycle returns one cycle as stage names, first stage repeated at the end.
func (p *Pipeline) findCycle() []string {
	all := make([]bool, len(p.stages))
	for i := range all {
		all[i] = true
	}
	out := p.edges(all)

	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(p.stages))
	var stack []int
	var cycle []int

	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		stack = append(stack, u)
		for _, v := range out[u] {
			switch color[v] {
			case white:
				if dfs(v) {
					return true
				}
			case gray:
				start := slices.Index(stack, v)
				cycle = append(slices.Clone(stack[start:]), v)
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[u] = black
		return false
	}
	for i := range p.stages {
		if color[i] == white && dfs(i) {
			break
		}
	}

	names := make([]string, len(cycle))
	for i, idx := range cycle {
		names[i] = p.stages[idx].Name
	}
	return names
}
