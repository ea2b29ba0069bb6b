package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/eduverse/agent-core/agent/contract"
	pipelinex "github.com/eduverse/agent-core/agent/pipeline"
)

// CapabilityPersistence is the degraded-field name reported when the durable
// write (or memory write-back) failed.
const CapabilityPersistence = "persistence"

// PersistValue is the persist stage's output. On degradation RecordID may be
// empty while the generated content is still served to the caller.
type PersistValue struct {
	RecordID      string
	MemoryUpdated bool
}

// RecordBuilder assembles the durable record and the memory write-back from
// the run's accumulated stage outputs.
type RecordBuilder func(run *pipelinex.Run) (*contractx.Record, *contractx.MemoryDelta, error)

// Persist builds the shared persist stage: insert the record, then
// best-effort memory write-back. Either failing yields a partial value; the
// default policy turns that into a degraded, not aborted, run.
func Persist(
	store contractx.PersistenceStore,
	memory contractx.MemoryStore,
	build RecordBuilder,
	timeout time.Duration,
) pipelinex.Stage {
	return pipelinex.Stage{
		Name:       pipelinex.StagePersist,
		Capability: CapabilityPersistence,
		Timeout:    timeout,
		Exec: func(ctx context.Context, run *pipelinex.Run) (any, error) {
			return execPersist(ctx, run, store, memory, build)
		},
	}
}

func execPersist(
	ctx context.Context,
	run *pipelinex.Run,
	store contractx.PersistenceStore,
	memory contractx.MemoryStore,
	build RecordBuilder,
) (any, error) {
	rec, delta, err := build(run)
	if err != nil {
		return PersistValue{}, fmt.Errorf("%w: build record: %v", contractx.ErrValidation, err)
	}

	recordID, err := store.WriteRecord(ctx, rec)
	if err != nil {
		return PersistValue{}, err
	}

	value := PersistValue{RecordID: recordID}
	if delta == nil || memory == nil {
		value.MemoryUpdated = delta == nil
		return value, nil
	}

	if err := memory.WriteUpdate(ctx, run.LearnerID, *delta); err != nil {
		return value, err
	}
	value.MemoryUpdated = true
	return value, nil
}

// PersistValueOf reads the persist stage output from a result, tolerating an
// absent or degraded stage.
func PersistValueOf(res pipelinex.Result) PersistValue {
	for _, name := range []string{pipelinex.StagePersist, pipelinex.StageGradeAndPersist} {
		if v, ok := res.Value(name); ok {
			if pv, ok := v.(PersistValue); ok {
				return pv
			}
		}
	}
	return PersistValue{}
}

// NotifyDegraded publishes an operator-visibility event for a run that did
// not complete cleanly. Best-effort: failures are logged, never surfaced.
func NotifyDegraded(notifier contractx.Notifier, agent contractx.AgentKind, res pipelinex.Result) {
	if notifier == nil || res.Status == pipelinex.StatusCompleted {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload := map[string]any{
		"event":           "run_degraded",
		"agent":           string(agent),
		"run_id":          res.RunID,
		"status":          string(res.Status),
		"degraded_fields": res.DegradedFields,
	}
	if res.Err != nil {
		payload["error"] = res.Err.Error()
	}
	if err := notifier.PublishJSON(ctx, payload); err != nil {
		log.Warn().
			Str("agent", string(agent)).
			Str("run_id", res.RunID).
			Err(err).
			Msg("degradation notice publish failed")
	}
}
