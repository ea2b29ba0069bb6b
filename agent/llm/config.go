package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/eduverse/agent-core/agent/contract"
	geminix "github.com/eduverse/agent-core/pkg/gemini"
)

// Config carries the shared Gemini settings plus optional per-agent model and
// temperature overrides. A negative temperature means "use the shared value".
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://generativelanguage.googleapis.com/v1beta/openai"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"gemini-1.5-flash"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.7"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`

	TutorModel   string `envconfig:"TUTOR_MODEL" split_words:"true"`
	PlannerModel string `envconfig:"PLANNER_MODEL" split_words:"true"`
	CuratorModel string `envconfig:"CURATOR_MODEL" split_words:"true"`
	ExamModel    string `envconfig:"EXAM_MODEL" split_words:"true"`

	TutorTemperature   float32 `envconfig:"TUTOR_TEMPERATURE" split_words:"true" default:"-1"`
	PlannerTemperature float32 `envconfig:"PLANNER_TEMPERATURE" split_words:"true" default:"-1"`
	CuratorTemperature float32 `envconfig:"CURATOR_TEMPERATURE" split_words:"true" default:"-1"`
	ExamTemperature    float32 `envconfig:"EXAM_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: gemini api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// GeminiFor resolves the effective model configuration for one agent kind.
func (c Config) GeminiFor(kind contractx.AgentKind) geminix.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(model string, temperature float32) {
		if v := strings.TrimSpace(model); v != "" {
			modelName = v
		}
		if temperature >= 0 {
			temp = temperature
		}
	}

	switch kind {
	case contractx.AgentTutor:
		override(c.TutorModel, c.TutorTemperature)
	case contractx.AgentPlanner:
		override(c.PlannerModel, c.PlannerTemperature)
	case contractx.AgentCurator:
		override(c.CuratorModel, c.CuratorTemperature)
	case contractx.AgentExamCoach:
		override(c.ExamModel, c.ExamTemperature)
	}

	maxCompletionToken := c.MaxCompletionToken
	return geminix.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
	}
}
