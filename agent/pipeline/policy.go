package pipeline

import "github.com/eduverse/agent-core/agent/contract"

// Canonical stage names shared by all agent pipelines.
const (
	StageAnalyze         = "analyze"
	StageGatherContext   = "gather_context"
	StageGenerate        = "generate"
	StagePersist         = "persist"
	StageGradeAndPersist = "grade_and_persist"
)

// Action is the degradation policy's answer for a failed stage.
type Action int

const (
	Abort Action = iota
	SubstituteDefault
	ProceedPartial
)

func (a Action) String() string {
	switch a {
	case SubstituteDefault:
		return "substitute_default"
	case ProceedPartial:
		return "proceed_partial"
	default:
		return "abort"
	}
}

// Rule maps a (stage, failure-kind) pair to an action. Either side may be the
// wildcard "*".
type Rule struct {
	Stage   string
	Failure string
	Action  Action
}

type ruleKey struct {
	stage string
	kind  string
}

// Policy is the immutable rule table consulted when a stage exhausts its
// retries. Decide is pure: no I/O, same inputs always yield the same action,
// so concurrent runs share one Policy without synchronization.
type Policy struct {
	exact   map[ruleKey]Action
	byStage map[string]Action
	byKind  map[string]Action
}

func NewPolicy(rules ...Rule) *Policy {
	p := &Policy{
		exact:   make(map[ruleKey]Action, len(rules)),
		byStage: make(map[string]Action),
		byKind:  make(map[string]Action),
	}
	for _, r := range rules {
		switch {
		case r.Stage == contract.KindAny && r.Failure == contract.KindAny:
			// The global default is always Abort; an explicit (*, *) rule is
			// ignored rather than allowed to weaken it.
		case r.Failure == contract.KindAny:
			p.byStage[r.Stage] = r.Action
		case r.Stage == contract.KindAny:
			p.byKind[r.Failure] = r.Action
		default:
			p.exact[ruleKey{stage: r.Stage, kind: r.Failure}] = r.Action
		}
	}
	return p
}

// Decide resolves the action for a failed stage. Precedence: exact
// (stage, kind) match, then (stage, *), then (*, kind), then Abort.
func (p *Policy) Decide(stage, kind string) Action {
	if a, ok := p.exact[ruleKey{stage: stage, kind: kind}]; ok {
		return a
	}
	if a, ok := p.byStage[stage]; ok {
		return a
	}
	if a, ok := p.byKind[kind]; ok {
		return a
	}
	return Abort
}

// DefaultPolicy is the reference behavior shared by all four agents:
// a run survives losing personalization or durability, never generation.
func DefaultPolicy() *Policy {
	return NewPolicy(
		Rule{Stage: StageGatherContext, Failure: contract.KindAny, Action: SubstituteDefault},
		Rule{Stage: StageGenerate, Failure: contract.KindPartial, Action: ProceedPartial},
		Rule{Stage: StageGenerate, Failure: contract.KindAny, Action: Abort},
		Rule{Stage: StagePersist, Failure: contract.KindAny, Action: ProceedPartial},
		Rule{Stage: StageGradeAndPersist, Failure: contract.KindPartial, Action: ProceedPartial},
		Rule{Stage: contract.KindAny, Failure: contract.KindValidation, Action: Abort},
	)
}
