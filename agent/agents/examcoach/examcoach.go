package examcoach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	contractx "github.com/eduverse/agent-core/agent/contract"
	nodex "github.com/eduverse/agent-core/agent/nodes"
	pipelinex "github.com/eduverse/agent-core/agent/pipeline"
)

const (
	defaultQuestionCount = 5
	minutesPerQuestion   = 3

	recordKindExamSheet = "exam_sheet"
	recordKindExamGrade = "exam_grade"
)

type Config struct {
	ContextTimeout  time.Duration
	ContextRetries  int
	GenerateTimeout time.Duration
	GenerateRetries int
	PersistTimeout  time.Duration
	GradeTimeout    time.Duration
	Policy          *pipelinex.Policy
}

func (c *Config) applyDefaults() {
	if c.ContextTimeout <= 0 {
		c.ContextTimeout = 10 * time.Second
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 60 * time.Second
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 10 * time.Second
	}
	if c.GradeTimeout <= 0 {
		c.GradeTimeout = 45 * time.Second
	}
	if c.Policy == nil {
		c.Policy = pipelinex.DefaultPolicy()
	}
}

// ExamCoach generates practice exams and grades submitted answers against the
// stored sheet.
type ExamCoach struct {
	generator contractx.Generator
	store     contractx.PersistenceStore
	memory    contractx.MemoryStore
	notifier  contractx.Notifier

	handlePipeline *pipelinex.Pipeline
	gradePipeline  *pipelinex.Pipeline
}

func New(
	memory contractx.MemoryStore,
	generator contractx.Generator,
	store contractx.PersistenceStore,
	notifier contractx.Notifier,
	cfg Config,
) (*ExamCoach, error) {
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

	e := &ExamCoach{
		generator: generator,
		store:     store,
		memory:    memory,
		notifier:  notifier,
	}

	handleStages := []pipelinex.Stage{
		{
			Name:       pipelinex.StageAnalyze,
			Capability: "analysis",
			Timeout:    2 * time.Second,
			Exec: func(_ context.Context, run *pipelinex.Run) (any, error) {
				return analyze(run.Request.(contractx.ExamRequest)), nil
			},
		},
		nodex.GatherContext(memory, cfg.ContextTimeout, cfg.ContextRetries),
		{
			Name:       pipelinex.StageGenerate,
			Capability: "generation",
			Timeout:    cfg.GenerateTimeout,
			Retries:    cfg.GenerateRetries,
			Exec:       e.generate,
		},
		nodex.Persist(store, memory, buildSheetRecord, cfg.PersistTimeout),
	}
	handle, err := pipelinex.New(context.Background(), "examcoach.handle", cfg.Policy, handleStages)
	if err != nil {
		return nil, err
	}
	e.handlePipeline = handle

	gradeStages := []pipelinex.Stage{
		nodex.GatherContext(memory, cfg.ContextTimeout, cfg.ContextRetries),
		{
			Name:       pipelinex.StageGradeAndPersist,
			Capability: nodex.CapabilityPersistence,
			Timeout:    cfg.GradeTimeout,
			Exec:       e.gradeAndPersist,
		},
	}
	grade, err := pipelinex.New(context.Background(), "examcoach.evaluate", cfg.Policy, gradeStages)
	if err != nil {
		return nil, err
	}
	e.gradePipeline = grade

	return e, nil
}

// Handle generates an exam sheet. The sheet is persisted under its exam ID so
// a later Evaluate call can retrieve the answer key.
func (e *ExamCoach) Handle(ctx context.Context, req contractx.ExamRequest) (contractx.AgentResponse, error) {
	if err := req.Validate(); err != nil {
		return contractx.AgentResponse{}, err
	}

	run := pipelinex.NewRun(req.LearnerID, req)
	res, err := e.handlePipeline.Execute(ctx, run)
	if err != nil {
		return contractx.AgentResponse{}, err
	}
	nodex.NotifyDegraded(e.notifier, contractx.AgentExamCoach, res)
	return nodex.BuildResponse(res, pipelinex.StageGenerate)
}

// Evaluate grades a submission against its stored sheet. A missing or
// unreadable sheet aborts; a failed grade write degrades and the grade is
// still returned.
func (e *ExamCoach) Evaluate(ctx context.Context, sub contractx.ExamSubmission) (contractx.AgentResponse, error) {
	if err := sub.Validate(); err != nil {
		return contractx.AgentResponse{}, err
	}

	run := pipelinex.NewRun(sub.LearnerID, sub)
	res, err := e.gradePipeline.Execute(ctx, run)
	if err != nil {
		return contractx.AgentResponse{}, err
	}
	nodex.NotifyDegraded(e.notifier, contractx.AgentExamCoach, res)

	if res.Status == pipelinex.StatusAborted {
		if res.Err != nil {
			return contractx.AgentResponse{}, fmt.Errorf("%w: %v", contractx.ErrPipelineAborted, res.Err)
		}
		return contractx.AgentResponse{}, contractx.ErrPipelineAborted
	}

	var gv gradeValue
	if v, ok := res.Value(pipelinex.StageGradeAndPersist); ok {
		gv, _ = v.(gradeValue)
	}
	return contractx.AgentResponse{
		RunID:          res.RunID,
		Status:         string(res.Status),
		Content:        gv.Grade,
		DegradedFields: res.DegradedFields,
		RecordID:       gv.RecordID,
	}, nil
}

type examSpec struct {
	Topic         string   `json:"topic"`
	Subject       string   `json:"subject"`
	QuestionCount int      `json:"question_count"`
	Difficulty    string   `json:"difficulty"`
	QuestionTypes []string `json:"question_types"`
}

func analyze(req contractx.ExamRequest) examSpec {
	s := examSpec{
		Topic:         strings.TrimSpace(req.Topic),
		Subject:       strings.TrimSpace(req.Subject),
		QuestionCount: req.QuestionCount,
		Difficulty:    strings.TrimSpace(req.Difficulty),
	}
	for _, qt := range req.QuestionTypes {
		if trimmed := strings.TrimSpace(qt); trimmed != "" {
			s.QuestionTypes = append(s.QuestionTypes, strings.ToLower(trimmed))
		}
	}
	if s.Subject == "" {
		s.Subject = "general"
	}
	if s.QuestionCount <= 0 {
		s.QuestionCount = defaultQuestionCount
	}
	if s.Difficulty == "" {
		s.Difficulty = "medium"
	}
	if len(s.QuestionTypes) == 0 {
		s.QuestionTypes = []string{"mcq", "short_answer"}
	}
	return s
}

func (e *ExamCoach) generate(ctx context.Context, run *pipelinex.Run) (any, error) {
	spec := specOf(run)

	payload := map[string]any{
		"exam":            spec,
		"learner_context": nodex.LearnerContextOf(run),
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal exam payload: %v", contractx.ErrValidation, err)
	}

	raw, err := e.generator.Complete(ctx, string(input), contractx.GenerateParams{Agent: contractx.AgentExamCoach})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Questions        []contractx.Question `json:"questions"`
		TimeLimitMinutes int                  `json:"time_limit_minutes"`
	}
	if err := nodex.DecodeModelJSON(raw, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Questions) == 0 {
		return nil, fmt.Errorf("%w: model produced no questions", contractx.ErrAdapterRejected)
	}

	sheet := contractx.ExamSheet{
		ExamID:           uuid.NewString(),
		Topic:            spec.Topic,
		Subject:          spec.Subject,
		Questions:        parsed.Questions,
		TimeLimitMinutes: parsed.TimeLimitMinutes,
	}
	for i := range sheet.Questions {
		if strings.TrimSpace(sheet.Questions[i].ID) == "" {
			sheet.Questions[i].ID = fmt.Sprintf("q%d", i+1)
		}
	}
	if sheet.TimeLimitMinutes <= 0 {
		sheet.TimeLimitMinutes = len(sheet.Questions) * minutesPerQuestion
	}
	return sheet, nil
}

// buildSheetRecord stores the sheet keyed by its exam ID, which is what
// Evaluate later looks up.
func buildSheetRecord(run *pipelinex.Run) (*contractx.Record, *contractx.MemoryDelta, error) {
	v, ok := run.Value(pipelinex.StageGenerate)
	if !ok {
		return nil, nil, errors.New("generate output missing")
	}
	sheet, ok := v.(contractx.ExamSheet)
	if !ok {
		return nil, nil, errors.New("generate output has unexpected type")
	}

	payload, err := json.Marshal(sheet)
	if err != nil {
		return nil, nil, err
	}

	rec := &contractx.Record{
		ID:        sheet.ExamID,
		LearnerID: run.LearnerID,
		Agent:     contractx.AgentExamCoach,
		Kind:      recordKindExamSheet,
		Payload:   payload,
	}
	delta := &contractx.MemoryDelta{
		Agent:       contractx.AgentExamCoach,
		Topic:       sheet.Topic,
		Subject:     sheet.Subject,
		UserInput:   fmt.Sprintf("exam on %s", sheet.Topic),
		AgentOutput: fmt.Sprintf("generated exam %s with %d questions", sheet.ExamID, len(sheet.Questions)),
	}
	return rec, delta, nil
}

type gradeValue struct {
	Grade    contractx.ExamGrade
	RecordID string
}

func (e *ExamCoach) gradeAndPersist(ctx context.Context, run *pipelinex.Run) (any, error) {
	sub := run.Request.(contractx.ExamSubmission)

	rec, err := e.store.ReadRecord(ctx, sub.ExamID)
	if err != nil {
		if errors.Is(err, contractx.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: exam %s not found", contractx.ErrValidation, sub.ExamID)
		}
		return nil, err
	}

	var sheet contractx.ExamSheet
	if err := json.Unmarshal(rec.Payload, &sheet); err != nil {
		return nil, fmt.Errorf("%w: stored exam %s is unreadable: %v", contractx.ErrValidation, sub.ExamID, err)
	}

	grade := score(sheet, sub)
	e.annotate(ctx, run, sheet, &grade)

	value := gradeValue{Grade: grade}

	payload, err := json.Marshal(grade)
	if err != nil {
		return value, fmt.Errorf("%w: marshal grade: %v", contractx.ErrPartialResults, err)
	}
	gradeRec := &contractx.Record{
		LearnerID: sub.LearnerID,
		Agent:     contractx.AgentExamCoach,
		Kind:      recordKindExamGrade,
		Payload:   payload,
	}
	recordID, err := e.store.WriteRecord(ctx, gradeRec)
	if err != nil {
		// The grade itself is complete; only durability was lost.
		return value, fmt.Errorf("%w: write grade: %v", contractx.ErrPartialResults, err)
	}
	value.RecordID = recordID

	delta := contractx.MemoryDelta{
		Agent:       contractx.AgentExamCoach,
		Topic:       sheet.Topic,
		Subject:     sheet.Subject,
		UserInput:   fmt.Sprintf("submitted exam %s", sub.ExamID),
		AgentOutput: fmt.Sprintf("scored %.0f%% (%d/%d)", grade.Score, grade.CorrectAnswers, grade.TotalQuestions),
		Performance: performance(grade.Score),
	}
	if err := e.memory.WriteUpdate(ctx, sub.LearnerID, delta); err != nil {
		return value, fmt.Errorf("%w: memory write-back: %v", contractx.ErrPartialResults, err)
	}
	return value, nil
}

// score compares each submitted answer against the stored key. Comparison is
// case-insensitive after trimming, which covers mcq, true/false, and exact
// short answers.
func score(sheet contractx.ExamSheet, sub contractx.ExamSubmission) contractx.ExamGrade {
	answers := make(map[string]string, len(sub.Answers))
	for _, a := range sub.Answers {
		answers[a.QuestionID] = a.UserAnswer
	}

	grade := contractx.ExamGrade{
		ExamID:         sheet.ExamID,
		TotalQuestions: len(sheet.Questions),
	}
	for _, q := range sheet.Questions {
		user := answers[q.ID]
		correct := equalAnswer(user, q.CorrectAnswer)
		if correct {
			grade.CorrectAnswers++
		}
		grade.QuestionResults = append(grade.QuestionResults, contractx.QuestionResult{
			QuestionID: q.ID,
			Correct:    correct,
			UserAnswer: user,
			Expected:   q.CorrectAnswer,
		})
	}
	if grade.TotalQuestions > 0 {
		grade.Score = float64(grade.CorrectAnswers) / float64(grade.TotalQuestions) * 100
	}
	return grade
}

// annotate asks the model for feedback and weak areas. Grading is already
// deterministic, so a model failure here costs commentary only.
func (e *ExamCoach) annotate(ctx context.Context, run *pipelinex.Run, sheet contractx.ExamSheet, grade *contractx.ExamGrade) {
	payload := map[string]any{
		"topic":            sheet.Topic,
		"subject":          sheet.Subject,
		"score":            grade.Score,
		"question_results": grade.QuestionResults,
		"learner_context":  nodex.LearnerContextOf(run),
	}
	input, err := json.Marshal(payload)
	if err != nil {
		grade.Feedback = genericFeedback(grade.Score)
		return
	}

	raw, err := e.generator.Complete(ctx, string(input), contractx.GenerateParams{Agent: contractx.AgentExamCoach})
	if err != nil {
		grade.Feedback = genericFeedback(grade.Score)
		return
	}

	var parsed struct {
		Feedback        string   `json:"feedback"`
		WeakAreas       []string `json:"weak_areas"`
		QuestionResults []struct {
			QuestionID string `json:"question_id"`
			Feedback   string `json:"feedback"`
		} `json:"question_results"`
	}
	if err := nodex.DecodeModelJSON(raw, &parsed); err != nil || strings.TrimSpace(parsed.Feedback) == "" {
		grade.Feedback = genericFeedback(grade.Score)
		return
	}
	grade.Feedback = strings.TrimSpace(parsed.Feedback)
	grade.WeakAreas = parsed.WeakAreas

	remarks := make(map[string]string, len(parsed.QuestionResults))
	for _, qr := range parsed.QuestionResults {
		if qr.Feedback != "" {
			remarks[qr.QuestionID] = qr.Feedback
		}
	}
	for i := range grade.QuestionResults {
		if remark, ok := remarks[grade.QuestionResults[i].QuestionID]; ok {
			grade.QuestionResults[i].Feedback = remark
		}
	}
}

func equalAnswer(user, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(user), strings.TrimSpace(expected))
}

func performance(score float64) string {
	switch {
	case score >= 80:
		return "excellent"
	case score >= 60:
		return "good"
	case score >= 40:
		return "needs_improvement"
	default:
		return "struggling"
	}
}

func genericFeedback(score float64) string {
	switch {
	case score >= 80:
		return "Strong result. Keep practicing to hold this level."
	case score >= 60:
		return "Solid result with room to improve. Review the missed questions."
	default:
		return "Several answers were incorrect. Revisit the topic fundamentals before retrying."
	}
}

func specOf(run *pipelinex.Run) examSpec {
	if v, ok := run.Value(pipelinex.StageAnalyze); ok {
		if s, ok := v.(examSpec); ok {
			return s
		}
	}
	return examSpec{QuestionCount: defaultQuestionCount, Difficulty: "medium", Subject: "general"}
}
