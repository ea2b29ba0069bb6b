package tutor

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

// Tutor produces personalized explanations through the shared four-stage
// pipeline.
type Tutor struct {
	generator contractx.Generator
	notifier  contractx.Notifier
	pipeline  *pipelinex.Pipeline
}

func New(
	memory contractx.MemoryStore,
	generator contractx.Generator,
	store contractx.PersistenceStore,
	notifier contractx.Notifier,
	cfg Config,
) (*Tutor, error) {
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

	t := &Tutor{generator: generator, notifier: notifier}

	stages := []pipelinex.Stage{
		{
			Name:       pipelinex.StageAnalyze,
			Capability: "analysis",
			Timeout:    2 * time.Second,
			Exec: func(_ context.Context, run *pipelinex.Run) (any, error) {
				return analyze(run.Request.(contractx.TutorRequest)), nil
			},
		},
		nodex.GatherContext(memory, cfg.ContextTimeout, cfg.ContextRetries),
		{
			Name:       pipelinex.StageGenerate,
			Capability: "generation",
			Timeout:    cfg.GenerateTimeout,
			Retries:    cfg.GenerateRetries,
			Exec:       t.generate,
		},
		nodex.Persist(store, memory, buildRecord, cfg.PersistTimeout),
	}

	p, err := pipelinex.New(context.Background(), "tutor.handle", cfg.Policy, stages)
	if err != nil {
		return nil, err
	}
	t.pipeline = p
	return t, nil
}

// Handle runs one tutoring request end to end.
func (t *Tutor) Handle(ctx context.Context, req contractx.TutorRequest) (contractx.AgentResponse, error) {
	if err := req.Validate(); err != nil {
		return contractx.AgentResponse{}, err
	}

	run := pipelinex.NewRun(req.LearnerID, req)
	res, err := t.pipeline.Execute(ctx, run)
	if err != nil {
		return contractx.AgentResponse{}, err
	}
	nodex.NotifyDegraded(t.notifier, contractx.AgentTutor, res)
	return nodex.BuildResponse(res, pipelinex.StageGenerate)
}

type analysis struct {
	Topic      string `json:"topic"`
	Subject    string `json:"subject"`
	Difficulty string `json:"difficulty"`
}

func analyze(req contractx.TutorRequest) analysis {
	a := analysis{
		Topic:      strings.TrimSpace(req.Topic),
		Subject:    strings.TrimSpace(req.Subject),
		Difficulty: strings.TrimSpace(req.Difficulty),
	}
	if a.Subject == "" {
		a.Subject = "general"
	}
	if a.Difficulty == "" {
		a.Difficulty = "medium"
	}
	return a
}

func (t *Tutor) generate(ctx context.Context, run *pipelinex.Run) (any, error) {
	a := analysisOf(run)
	lc := nodex.LearnerContextOf(run)

	payload := map[string]any{
		"request":         a,
		"learner_context": lc,
		"weak_area_hit":   containsFold(lc.WeakAreas, a.Topic),
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal tutor payload: %v", contractx.ErrValidation, err)
	}

	raw, err := t.generator.Complete(ctx, string(input), contractx.GenerateParams{Agent: contractx.AgentTutor})
	if err != nil {
		return nil, err
	}

	content := contractx.TutorContent{Topic: a.Topic, Subject: a.Subject}
	var parsed struct {
		Explanation string   `json:"explanation"`
		Examples    []string `json:"examples"`
		Resources   []string `json:"additional_resources"`
		Tips        []string `json:"learning_tips"`
	}
	if err := nodex.DecodeModelJSON(raw, &parsed); err != nil {
		// Non-JSON output still carries the explanation; keep the original
		// fallback shape rather than failing the run.
		content.Explanation = strings.TrimSpace(raw)
		return content, nil
	}
	content.Explanation = strings.TrimSpace(parsed.Explanation)
	content.Examples = parsed.Examples
	content.Resources = parsed.Resources
	content.Tips = parsed.Tips
	if content.Explanation == "" {
		content.Explanation = strings.TrimSpace(raw)
	}
	return content, nil
}

func buildRecord(run *pipelinex.Run) (*contractx.Record, *contractx.MemoryDelta, error) {
	v, ok := run.Value(pipelinex.StageGenerate)
	if !ok {
		return nil, nil, errors.New("generate output missing")
	}
	content, ok := v.(contractx.TutorContent)
	if !ok {
		return nil, nil, errors.New("generate output has unexpected type")
	}

	payload, err := json.Marshal(content)
	if err != nil {
		return nil, nil, err
	}

	rec := &contractx.Record{
		LearnerID: run.LearnerID,
		Agent:     contractx.AgentTutor,
		Kind:      "tutoring_session",
		Payload:   payload,
	}
	req := run.Request.(contractx.TutorRequest)
	delta := &contractx.MemoryDelta{
		Agent:       contractx.AgentTutor,
		Topic:       content.Topic,
		Subject:     content.Subject,
		UserInput:   req.Topic,
		AgentOutput: content.Explanation,
		Performance: "good",
	}
	return rec, delta, nil
}

func analysisOf(run *pipelinex.Run) analysis {
	if v, ok := run.Value(pipelinex.StageAnalyze); ok {
		if a, ok := v.(analysis); ok {
			return a
		}
	}
	return analysis{}
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
