package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/eduverse/agent-core/agent/contract"
)

const defaultStageTimeout = 30 * time.Second

// Stage is one named step of a pipeline. Exec receives the run so it can read
// any earlier stage's output; its return value is stored under Name. Fallback
// produces the substitute value when the policy answers SubstituteDefault.
// Retries is the number of re-invocations after the first attempt (0 = none).
type Stage struct {
	Name       string
	Capability string
	Timeout    time.Duration
	Retries    int
	Fallback   func(run *Run) any
	Exec       func(ctx context.Context, run *Run) (any, error)
}

// Run carries the state of one execution: an append-only value map keyed by
// stage name plus the outcome log. A Run lives for exactly one Execute call.
type Run struct {
	ID        string
	LearnerID string
	Request   any

	values   map[string]any
	outcomes []Outcome
	halted   bool
	err      error
}

func NewRun(learnerID string, request any) *Run {
	return &Run{
		ID:        uuid.NewString(),
		LearnerID: learnerID,
		Request:   request,
		values:    make(map[string]any, 8),
	}
}

// Value returns the output of an already-executed stage. Stage N can only
// ever observe stages 1..N-1: values are written in declaration order and
// never overwritten.
func (r *Run) Value(stage string) (any, bool) {
	v, ok := r.values[stage]
	return v, ok
}

func (r *Run) set(stage string, v any) {
	if _, exists := r.values[stage]; exists {
		panic(fmt.Sprintf("pipeline: duplicate stage output %q", stage))
	}
	r.values[stage] = v
}

func (r *Run) record(o Outcome) {
	r.outcomes = append(r.outcomes, o)
}

type Option func(*Pipeline)

// WithRunDeadline overrides the default run deadline (the sum of the
// configured per-stage timeouts).
func WithRunDeadline(d time.Duration) Option {
	return func(p *Pipeline) {
		p.deadline = d
	}
}

// Pipeline executes an ordered list of stages for a single run. Stages run
// strictly sequentially; failures are resolved through the degradation
// policy, never propagated raw past a stage boundary.
type Pipeline struct {
	name     string
	policy   *Policy
	stages   []Stage
	deadline time.Duration

	runner compose.Runnable[*Run, Result]
}

func New(ctx context.Context, name string, policy *Policy, stages []Stage, opts ...Option) (*Pipeline, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("pipeline name is required")
	}
	if policy == nil {
		return nil, errors.New("degradation policy is required")
	}
	if len(stages) == 0 {
		return nil, errors.New("stage list must not be empty")
	}

	seen := make(map[string]struct{}, len(stages))
	for i := range stages {
		st := &stages[i]
		if strings.TrimSpace(st.Name) == "" {
			return nil, fmt.Errorf("stage %d has no name", i)
		}
		if st.Exec == nil {
			return nil, fmt.Errorf("stage %s has no executor", st.Name)
		}
		if _, dup := seen[st.Name]; dup {
			return nil, fmt.Errorf("duplicate stage name %s", st.Name)
		}
		seen[st.Name] = struct{}{}
		if st.Timeout <= 0 {
			st.Timeout = defaultStageTimeout
		}
		if st.Retries < 0 {
			st.Retries = 0
		}
	}

	p := &Pipeline{
		name:   name,
		policy: policy,
		stages: stages,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	runner, err := p.compile(ctx)
	if err != nil {
		return nil, err
	}
	p.runner = runner
	return p, nil
}

func (p *Pipeline) compile(ctx context.Context) (compose.Runnable[*Run, Result], error) {
	graph := compose.NewGraph[*Run, Result]()

	for _, st := range p.stages {
		st := st
		if err := graph.AddLambdaNode(st.Name,
			compose.InvokableLambda(func(ctx context.Context, in *Run) (*Run, error) {
				return p.runStage(ctx, in, st)
			}),
		); err != nil {
			return nil, fmt.Errorf("add node %s: %w", st.Name, err)
		}
	}

	if err := graph.AddLambdaNode("finalize",
		compose.InvokableLambda(func(ctx context.Context, in *Run) (Result, error) {
			return p.finalize(in), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize: %w", err)
	}

	prev := compose.START
	for _, st := range p.stages {
		if err := graph.AddEdge(prev, st.Name); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", prev, st.Name, err)
		}
		prev = st.Name
	}
	if err := graph.AddEdge(prev, "finalize"); err != nil {
		return nil, fmt.Errorf("add edge %s->finalize: %w", prev, err)
	}
	if err := graph.AddEdge("finalize", compose.END); err != nil {
		return nil, fmt.Errorf("add edge finalize->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(p.name))
	if err != nil {
		return nil, fmt.Errorf("compile pipeline %s: %w", p.name, err)
	}
	return runner, nil
}

// Execute runs every stage in declaration order and always returns a Result
// when the pipeline machinery itself is healthy — including for aborted runs,
// whose Result still carries every outcome recorded before the halt.
func (p *Pipeline) Execute(ctx context.Context, run *Run) (Result, error) {
	if run == nil {
		return Result{}, errors.New("run is nil")
	}

	deadline := p.deadline
	if deadline <= 0 {
		for _, st := range p.stages {
			deadline += st.Timeout
		}
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	return p.runner.Invoke(ctx, run)
}

func (p *Pipeline) runStage(ctx context.Context, run *Run, st Stage) (*Run, error) {
	if run.halted {
		return run, nil
	}

	value, err := p.attempt(ctx, run, st)
	if err == nil {
		run.set(st.Name, value)
		run.record(Outcome{Stage: st.Name, Capability: st.Capability, State: OutcomeSuccess})
		return run, nil
	}

	kind := contract.FailureKind(err)
	action := p.policy.Decide(st.Name, kind)
	switch action {
	case SubstituteDefault:
		var fallback any
		if st.Fallback != nil {
			fallback = st.Fallback(run)
		}
		run.set(st.Name, fallback)
		run.record(Outcome{Stage: st.Name, Capability: st.Capability, State: OutcomeDegraded, Reason: kind, Err: err})
	case ProceedPartial:
		run.set(st.Name, value)
		run.record(Outcome{Stage: st.Name, Capability: st.Capability, State: OutcomeDegraded, Reason: kind, Err: err})
	default:
		run.record(Outcome{Stage: st.Name, Capability: st.Capability, State: OutcomeFailed, Reason: kind, Err: err})
		run.halted = true
		run.err = err
	}

	log.Warn().
		Str("pipeline", p.name).
		Str("run_id", run.ID).
		Str("stage", st.Name).
		Str("failure_kind", kind).
		Str("action", action.String()).
		Err(err).
		Msg("stage failed")

	return run, nil
}

func (p *Pipeline) attempt(ctx context.Context, run *Run, st Stage) (any, error) {
	var (
		value   any
		lastErr error
	)
	for i := 0; i <= st.Retries; i++ {
		if err := ctx.Err(); err != nil {
			// Run deadline elapsed between attempts: treat like a timeout.
			return value, fmt.Errorf("%w: run deadline elapsed in stage %s: %v", contract.ErrAdapterTimeout, st.Name, err)
		}
		stageCtx, cancel := context.WithTimeout(ctx, st.Timeout)
		v, err := invokeStage(stageCtx, run, st)
		cancel()
		if err == nil {
			return v, nil
		}
		value, lastErr = v, err
	}
	return value, lastErr
}

// invokeStage runs one executor attempt. A panicking executor is converted to
// an error so the degradation policy resolves it like any other stage failure
// instead of the panic escaping the run.
func invokeStage(ctx context.Context, run *Run, st Stage) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("%w: stage %s panicked: %v", contract.ErrAdapterRejected, st.Name, r)
		}
	}()
	return st.Exec(ctx, run)
}

func (p *Pipeline) finalize(run *Run) Result {
	status := StatusCompleted
	var degraded []string
	for _, o := range run.outcomes {
		switch o.State {
		case OutcomeFailed:
			status = StatusAborted
		case OutcomeDegraded:
			if status == StatusCompleted {
				status = StatusCompletedDegraded
			}
			field := o.Capability
			if field == "" {
				field = o.Stage
			}
			degraded = append(degraded, field)
		}
	}

	values := make(map[string]any, len(run.values))
	for k, v := range run.values {
		values[k] = v
	}

	return Result{
		RunID:          run.ID,
		Status:         status,
		Outcomes:       append([]Outcome(nil), run.outcomes...),
		Values:         values,
		DegradedFields: degraded,
		Err:            run.err,
	}
}
