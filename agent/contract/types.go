package contract

import (
	"encoding/json"
	"strings"
	"time"
)

type AgentKind string

const (
	AgentTutor     AgentKind = "tutor"
	AgentPlanner   AgentKind = "planner"
	AgentCurator   AgentKind = "curator"
	AgentExamCoach AgentKind = "exam_coach"
)

// LearnerContext is the per-run snapshot of everything known about a learner.
// It is assembled fresh at the start of a run and never mutated afterwards.
type LearnerContext struct {
	LearnerID     string   `json:"learner_id"`
	Grade         string   `json:"grade,omitempty"`
	LearningStyle string   `json:"learning_style,omitempty"`
	RecentTopics  []string `json:"recent_topics,omitempty"`
	WeakAreas     []string `json:"weak_areas,omitempty"`
	StrongAreas   []string `json:"strong_areas,omitempty"`
	Summary       []string `json:"summary,omitempty"`
}

// EmptyLearnerContext is the substitute used when the memory read degrades.
func EmptyLearnerContext(learnerID string) *LearnerContext {
	return &LearnerContext{LearnerID: learnerID}
}

// MemoryDelta is the write-back issued after a run to keep learner history
// current.
type MemoryDelta struct {
	Agent       AgentKind `json:"agent"`
	Topic       string    `json:"topic"`
	Subject     string    `json:"subject,omitempty"`
	UserInput   string    `json:"user_input"`
	AgentOutput string    `json:"agent_output"`
	Performance string    `json:"performance,omitempty"`
}

type GenerateParams struct {
	Agent       AgentKind
	MaxTokens   int
	Temperature float32
}

// Candidate is one search hit before ranking.
type Candidate struct {
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	Snippet      string  `json:"snippet,omitempty"`
	ResourceType string  `json:"resource_type"`
	Score        float64 `json:"score,omitempty"`
	Source       string  `json:"source,omitempty"`
}

// Record is the durable representation written by a Persist stage. Records
// are append-only: corrections are new records, never updates.
type Record struct {
	ID        string          `json:"id"`
	LearnerID string          `json:"learner_id"`
	Agent     AgentKind       `json:"agent"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// AgentResponse is the single caller-visible shape of every entry point:
// content plus run status plus the capabilities that were reduced, if any.
type AgentResponse struct {
	RunID          string   `json:"run_id"`
	Status         string   `json:"status"`
	Content        any      `json:"content"`
	DegradedFields []string `json:"degraded_fields,omitempty"`
	RecordID       string   `json:"record_id,omitempty"`
}

/* ------------------------------- Tutor ---------------------------------- */

type TutorRequest struct {
	LearnerID  string `json:"learner_id"`
	Topic      string `json:"topic"`
	Subject    string `json:"subject,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

func (r TutorRequest) Validate() error {
	if strings.TrimSpace(r.LearnerID) == "" {
		return wrapValidation("learner id is required")
	}
	if strings.TrimSpace(r.Topic) == "" {
		return wrapValidation("topic is required")
	}
	return nil
}

type TutorContent struct {
	Topic       string   `json:"topic"`
	Subject     string   `json:"subject"`
	Explanation string   `json:"explanation"`
	Examples    []string `json:"examples,omitempty"`
	Resources   []string `json:"additional_resources,omitempty"`
	Tips        []string `json:"learning_tips,omitempty"`
}

/* ------------------------------ Planner ---------------------------------- */

type PlanRequest struct {
	LearnerID  string   `json:"learner_id"`
	Subjects   []string `json:"subjects"`
	DaysAhead  int      `json:"days_ahead,omitempty"`
	DailyHours int      `json:"daily_hours,omitempty"`
	Goals      []string `json:"goals,omitempty"`
}

func (r PlanRequest) Validate() error {
	if strings.TrimSpace(r.LearnerID) == "" {
		return wrapValidation("learner id is required")
	}
	subjects := 0
	for _, s := range r.Subjects {
		if strings.TrimSpace(s) != "" {
			subjects++
		}
	}
	if subjects == 0 {
		return wrapValidation("at least one non-blank subject is required")
	}
	if r.DaysAhead < 0 || r.DailyHours < 0 {
		return wrapValidation("days_ahead and daily_hours must be non-negative")
	}
	return nil
}

type StudyTask struct {
	Topic           string   `json:"topic"`
	Subject         string   `json:"subject"`
	DurationMinutes int      `json:"duration_minutes"`
	Priority        string   `json:"priority"`
	Resources       []string `json:"resources,omitempty"`
}

type StudyPlan struct {
	StartDate  time.Time              `json:"start_date"`
	EndDate    time.Time              `json:"end_date"`
	DailyTasks map[string][]StudyTask `json:"daily_tasks"`
	TotalHours int                    `json:"total_hours"`
}

/* ------------------------------ Curator ---------------------------------- */

type CuratorRequest struct {
	LearnerID     string   `json:"learner_id"`
	Topic         string   `json:"topic"`
	Subject       string   `json:"subject,omitempty"`
	ResourceTypes []string `json:"resource_types,omitempty"`
	MaxPerType    int      `json:"max_per_type,omitempty"`
}

func (r CuratorRequest) Validate() error {
	if strings.TrimSpace(r.LearnerID) == "" {
		return wrapValidation("learner id is required")
	}
	if strings.TrimSpace(r.Topic) == "" {
		return wrapValidation("topic is required")
	}
	return nil
}

type RankedResource struct {
	Title        string  `json:"title"`
	URL          string  `json:"url"`
	ResourceType string  `json:"resource_type"`
	Description  string  `json:"description,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
	Source       string  `json:"source,omitempty"`
}

type CuratedList struct {
	Topic       string           `json:"topic"`
	SearchQuery string           `json:"search_query"`
	Resources   []RankedResource `json:"resources"`
	TotalFound  int              `json:"total_found"`
}

/* ----------------------------- Exam coach -------------------------------- */

type ExamRequest struct {
	LearnerID     string   `json:"learner_id"`
	Topic         string   `json:"topic"`
	Subject       string   `json:"subject,omitempty"`
	QuestionCount int      `json:"question_count,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
	QuestionTypes []string `json:"question_types,omitempty"`
}

func (r ExamRequest) Validate() error {
	if strings.TrimSpace(r.LearnerID) == "" {
		return wrapValidation("learner id is required")
	}
	if strings.TrimSpace(r.Topic) == "" {
		return wrapValidation("topic is required")
	}
	if r.QuestionCount < 0 {
		return wrapValidation("question_count must be non-negative")
	}
	return nil
}

type Question struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Type          string   `json:"type"`
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
}

type ExamSheet struct {
	ExamID           string     `json:"exam_id"`
	Topic            string     `json:"topic"`
	Subject          string     `json:"subject"`
	Questions        []Question `json:"questions"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
}

type Answer struct {
	QuestionID string `json:"question_id"`
	UserAnswer string `json:"user_answer"`
}

type ExamSubmission struct {
	LearnerID string   `json:"learner_id"`
	ExamID    string   `json:"exam_id"`
	Answers   []Answer `json:"answers"`
}

func (s ExamSubmission) Validate() error {
	if strings.TrimSpace(s.LearnerID) == "" {
		return wrapValidation("learner id is required")
	}
	if strings.TrimSpace(s.ExamID) == "" {
		return wrapValidation("exam id is required")
	}
	if len(s.Answers) == 0 {
		return wrapValidation("at least one answer is required")
	}
	return nil
}

type QuestionResult struct {
	QuestionID string `json:"question_id"`
	Correct    bool   `json:"correct"`
	UserAnswer string `json:"user_answer"`
	Expected   string `json:"expected"`
	Feedback   string `json:"feedback,omitempty"`
}

type ExamGrade struct {
	ExamID          string           `json:"exam_id"`
	Score           float64          `json:"score"`
	TotalQuestions  int              `json:"total_questions"`
	CorrectAnswers  int              `json:"correct_answers"`
	Feedback        string           `json:"feedback,omitempty"`
	WeakAreas       []string         `json:"weak_areas,omitempty"`
	QuestionResults []QuestionResult `json:"question_results,omitempty"`
}
