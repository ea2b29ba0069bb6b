package nodes

import (
	"context"
	"time"

	contractx "github.com/eduverse/agent-core/agent/contract"
	pipelinex "github.com/eduverse/agent-core/agent/pipeline"
)

// CapabilityContext is the degraded-field name reported when the memory read
// is substituted.
const CapabilityContext = "context"

// GatherContext builds the shared memory-read stage. Its fallback is the
// empty learner context, so losing the memory service costs personalization
// only, never the run.
func GatherContext(memory contractx.MemoryStore, timeout time.Duration, retries int) pipelinex.Stage {
	return pipelinex.Stage{
		Name:       pipelinex.StageGatherContext,
		Capability: CapabilityContext,
		Timeout:    timeout,
		Retries:    retries,
		Fallback: func(run *pipelinex.Run) any {
			return contractx.EmptyLearnerContext(run.LearnerID)
		},
		Exec: func(ctx context.Context, run *pipelinex.Run) (any, error) {
			lc, err := memory.ReadHistory(ctx, run.LearnerID)
			if err != nil {
				return nil, err
			}
			if lc == nil {
				lc = contractx.EmptyLearnerContext(run.LearnerID)
			}
			return lc, nil
		},
	}
}

// LearnerContextOf reads the gather-context output from the run. Returns the
// empty context when the stage produced nothing usable.
func LearnerContextOf(run *pipelinex.Run) *contractx.LearnerContext {
	v, ok := run.Value(pipelinex.StageGatherContext)
	if !ok {
		return contractx.EmptyLearnerContext(run.LearnerID)
	}
	lc, ok := v.(*contractx.LearnerContext)
	if !ok || lc == nil {
		return contractx.EmptyLearnerContext(run.LearnerID)
	}
	return lc
}
