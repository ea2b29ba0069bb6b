package pipeline

// Status is the terminal state of one pipeline run.
type Status string

const (
	StatusCompleted         Status = "completed"
	StatusCompletedDegraded Status = "completed_degraded"
	StatusAborted           Status = "aborted"
)

type OutcomeState string

const (
	OutcomeSuccess  OutcomeState = "success"
	OutcomeDegraded OutcomeState = "degraded"
	OutcomeFailed   OutcomeState = "failed"
)

// Outcome records how one stage ended. Degraded carries the failure kind that
// triggered the substitution in Reason; Failed carries the terminal error.
type Outcome struct {
	Stage      string
	Capability string
	State      OutcomeState
	Reason     string
	Err        error
}

// Result is the terminal artifact of a pipeline execution. Status is Aborted
// iff at least one outcome failed, CompletedDegraded iff none failed and at
// least one degraded, Completed otherwise.
type Result struct {
	RunID          string
	Status         Status
	Outcomes       []Outcome
	Values         map[string]any
	DegradedFields []string
	Err            error
}

// Value returns the recorded output of a stage by name.
func (r Result) Value(stage string) (any, bool) {
	v, ok := r.Values[stage]
	return v, ok
}
