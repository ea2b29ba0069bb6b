package agents

import (
	"context"
	"errors"

	"github.com/eduverse/agent-core/agent/agents/curator"
	"github.com/eduverse/agent-core/agent/agents/examcoach"
	"github.com/eduverse/agent-core/agent/agents/planner"
	"github.com/eduverse/agent-core/agent/agents/tutor"
	contractx "github.com/eduverse/agent-core/agent/contract"
)

// Registry hands out the four built controllers sharing one adapter set.
type Registry interface {
	Tutor() *tutor.Tutor
	Planner() *planner.Planner
	Curator() *curator.Curator
	ExamCoach() *examcoach.ExamCoach
}

// Deps is the shared adapter set every controller is built over.
type Deps struct {
	Memory    contractx.MemoryStore
	Generator contractx.Generator
	Search    contractx.Search
	Store     contractx.PersistenceStore
	Notifier  contractx.Notifier
}

// Config carries the per-controller tuning knobs. Zero values use each
// controller's defaults.
type Config struct {
	Tutor     tutor.Config
	Planner   planner.Config
	Curator   curator.Config
	ExamCoach examcoach.Config
}

type registryImpl struct {
	tutor     *tutor.Tutor
	planner   *planner.Planner
	curator   *curator.Curator
	examCoach *examcoach.ExamCoach
}

func (r *registryImpl) Tutor() *tutor.Tutor             { return r.tutor }
func (r *registryImpl) Planner() *planner.Planner       { return r.planner }
func (r *registryImpl) Curator() *curator.Curator       { return r.curator }
func (r *registryImpl) ExamCoach() *examcoach.ExamCoach { return r.examCoach }

func NewRegistry(_ context.Context, deps Deps, cfg Config) (Registry, error) {
	if deps.Memory == nil {
		return nil, errors.New("memory store is required")
	}
	if deps.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if deps.Search == nil {
		return nil, errors.New("search adapter is required")
	}
	if deps.Store == nil {
		return nil, errors.New("persistence store is required")
	}

	t, err := tutor.New(deps.Memory, deps.Generator, deps.Store, deps.Notifier, cfg.Tutor)
	if err != nil {
		return nil, err
	}
	p, err := planner.New(deps.Memory, deps.Generator, deps.Store, deps.Notifier, cfg.Planner)
	if err != nil {
		return nil, err
	}
	c, err := curator.New(deps.Memory, deps.Generator, deps.Search, deps.Store, deps.Notifier, cfg.Curator)
	if err != nil {
		return nil, err
	}
	e, err := examcoach.New(deps.Memory, deps.Generator, deps.Store, deps.Notifier, cfg.ExamCoach)
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		tutor:     t,
		planner:   p,
		curator:   c,
		examCoach: e,
	}, nil
}
