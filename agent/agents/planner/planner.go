package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/eduverse/agent-core/agent/contract"
	nodex "github.com/eduverse/agent-core/agent/nodes"
	pipelinex "github.com/eduverse/agent-core/agent/pipeline"
)

const (
	defaultDaysAhead  = 7
	defaultDailyHours = 2
)

type Config struct {
	ContextTimeout  time.Duration
	ContextRetries  int
	GenerateTimeout time.Duration
	GenerateRetries int
	PersistTimeout  time.Duration
	Policy          *pipelinex.Policy
}

func (c *Config) applyDefaults() {
	if c.ContextTimeout <= 0 {
		c.ContextTimeout = 10 * time.Second
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 45 * time.Second
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 10 * time.Second
	}
	if c.Policy == nil {
		c.Policy = pipelinex.DefaultPolicy()
	}
}

// Planner builds day-by-day study plans weighted toward a learner's weak
// areas.
type Planner struct {
	generator contractx.Generator
	notifier  contractx.Notifier
	pipeline  *pipelinex.Pipeline
	now       func() time.Time
}

func New(
	memory contractx.MemoryStore,
	generator contractx.Generator,
	store contractx.PersistenceStore,
	notifier contractx.Notifier,
	cfg Config,
) (*Planner, error) {
	if memory == nil {
		return nil, errors.New("memory store is required")
	}
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if store == nil {
		return nil, errors.New("persistence store is required")
	}
	cfg.applyDefaults()

	p := &Planner{generator: generator, notifier: notifier, now: time.Now}

	stages := []pipelinex.Stage{
		{
			Name:       pipelinex.StageAnalyze,
			Capability: "analysis",
			Timeout:    2 * time.Second,
			Exec: func(_ context.Context, run *pipelinex.Run) (any, error) {
				return analyze(run.Request.(contractx.PlanRequest)), nil
			},
		},
		nodex.GatherContext(memory, cfg.ContextTimeout, cfg.ContextRetries),
		{
			Name:       pipelinex.StageGenerate,
			Capability: "generation",
			Timeout:    cfg.GenerateTimeout,
			Retries:    cfg.GenerateRetries,
			Exec:       p.generate,
		},
		nodex.Persist(store, memory, buildRecord, cfg.PersistTimeout),
	}

	pl, err := pipelinex.New(context.Background(), "planner.handle", cfg.Policy, stages)
	if err != nil {
		return nil, err
	}
	p.pipeline = pl
	return p, nil
}

// Handle runs one study-planning request end to end.
func (p *Planner) Handle(ctx context.Context, req contractx.PlanRequest) (contractx.AgentResponse, error) {
	if err := req.Validate(); err != nil {
		return contractx.AgentResponse{}, err
	}

	run := pipelinex.NewRun(req.LearnerID, req)
	res, err := p.pipeline.Execute(ctx, run)
	if err != nil {
		return contractx.AgentResponse{}, err
	}
	nodex.NotifyDegraded(p.notifier, contractx.AgentPlanner, res)
	return nodex.BuildResponse(res, pipelinex.StageGenerate)
}

type requirements struct {
	Subjects   []string `json:"subjects"`
	DaysAhead  int      `json:"days_ahead"`
	DailyHours int      `json:"daily_hours"`
	Goals      []string `json:"goals,omitempty"`
}

func analyze(req contractx.PlanRequest) requirements {
	r := requirements{
		DaysAhead:  req.DaysAhead,
		DailyHours: req.DailyHours,
		Goals:      req.Goals,
	}
	for _, s := range req.Subjects {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			r.Subjects = append(r.Subjects, trimmed)
		}
	}
	if r.DaysAhead <= 0 {
		r.DaysAhead = defaultDaysAhead
	}
	if r.DailyHours <= 0 {
		r.DailyHours = defaultDailyHours
	}
	if len(r.Goals) == 0 {
		r.Goals = []string{"improve understanding"}
	}
	return r
}

func (p *Planner) generate(ctx context.Context, run *pipelinex.Run) (any, error) {
	r := requirementsOf(run)
	lc := nodex.LearnerContextOf(run)

	payload := map[string]any{
		"requirements":    r,
		"learner_context": lc,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal planner payload: %v", contractx.ErrValidation, err)
	}

	raw, err := p.generator.Complete(ctx, string(input), contractx.GenerateParams{Agent: contractx.AgentPlanner})
	if err != nil {
		return nil, err
	}

	start := p.now().UTC().Truncate(24 * time.Hour)
	plan := contractx.StudyPlan{
		StartDate:  start,
		EndDate:    start.AddDate(0, 0, r.DaysAhead),
		TotalHours: r.DaysAhead * r.DailyHours,
	}

	var parsed struct {
		DailyTasks map[string][]contractx.StudyTask `json:"daily_tasks"`
		TotalHours int                              `json:"total_hours"`
	}
	if err := nodex.DecodeModelJSON(raw, &parsed); err != nil || len(parsed.DailyTasks) == 0 {
		plan.DailyTasks = fallbackTasks(r)
		return plan, nil
	}
	plan.DailyTasks = parsed.DailyTasks
	if parsed.TotalHours > 0 {
		plan.TotalHours = parsed.TotalHours
	}
	return plan, nil
}

// fallbackTasks splits the daily hours evenly over the requested subjects,
// one bucket per day, when the model output is unusable.
func fallbackTasks(r requirements) map[string][]contractx.StudyTask {
	if len(r.Subjects) == 0 {
		return nil
	}
	perSubject := r.DailyHours * 60 / len(r.Subjects)
	tasks := make(map[string][]contractx.StudyTask, r.DaysAhead)
	for day := 1; day <= r.DaysAhead; day++ {
		key := fmt.Sprintf("day_%d", day)
		for _, subject := range r.Subjects {
			tasks[key] = append(tasks[key], contractx.StudyTask{
				Topic:           subject,
				Subject:         subject,
				DurationMinutes: perSubject,
				Priority:        "medium",
			})
		}
	}
	return tasks
}

func buildRecord(run *pipelinex.Run) (*contractx.Record, *contractx.MemoryDelta, error) {
	v, ok := run.Value(pipelinex.StageGenerate)
	if !ok {
		return nil, nil, errors.New("generate output missing")
	}
	plan, ok := v.(contractx.StudyPlan)
	if !ok {
		return nil, nil, errors.New("generate output has unexpected type")
	}

	payload, err := json.Marshal(plan)
	if err != nil {
		return nil, nil, err
	}

	req := run.Request.(contractx.PlanRequest)
	rec := &contractx.Record{
		LearnerID: run.LearnerID,
		Agent:     contractx.AgentPlanner,
		Kind:      "study_plan",
		Payload:   payload,
	}
	delta := &contractx.MemoryDelta{
		Agent:       contractx.AgentPlanner,
		Topic:       strings.Join(req.Subjects, ", "),
		UserInput:   fmt.Sprintf("plan %d days, %dh/day", plan.EndDate.Sub(plan.StartDate)/(24*time.Hour), req.DailyHours),
		AgentOutput: fmt.Sprintf("study plan with %d days, %d total hours", len(plan.DailyTasks), plan.TotalHours),
	}
	return rec, delta, nil
}

func requirementsOf(run *pipelinex.Run) requirements {
	if v, ok := run.Value(pipelinex.StageAnalyze); ok {
		if r, ok := v.(requirements); ok {
			return r
		}
	}
	return requirements{DaysAhead: defaultDaysAhead, DailyHours: defaultDailyHours}
}
