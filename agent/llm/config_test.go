package llm

import (
	"errors"
	"testing"

	contractx "github.com/eduverse/agent-core/agent/contract"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	ok := Config{APIKey: "key", Model: "gemini-1.5-flash"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	missingKey := Config{Model: "gemini-1.5-flash"}
	if err := missingKey.Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("missing api key: %v", err)
	}

	missingModel := Config{APIKey: "key"}
	if err := missingModel.Validate(); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("missing model: %v", err)
	}
}

func TestGeminiForDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{
		APIKey:             "key",
		Model:              "gemini-1.5-flash",
		MaxCompletionToken: 2000,
		Temperature:        0.7,
		TutorTemperature:   -1,
		PlannerTemperature: -1,
		CuratorTemperature: -1,
		ExamTemperature:    -1,
	}

	got := cfg.GeminiFor(contractx.AgentTutor)
	if got.Model != "gemini-1.5-flash" {
		t.Fatalf("model = %s", got.Model)
	}
	if got.Temperature != 0.7 {
		t.Fatalf("temperature = %v", got.Temperature)
	}
	if got.MaxCompletionToken == nil || *got.MaxCompletionToken != 2000 {
		t.Fatalf("max completion token = %v", got.MaxCompletionToken)
	}
}

func TestGeminiForOverrides(t *testing.T) {
	t.Parallel()

	cfg := Config{
		APIKey:             "key",
		Model:              "gemini-1.5-flash",
		Temperature:        0.7,
		CuratorModel:       "gemini-1.5-pro",
		CuratorTemperature: 0.2,
		TutorTemperature:   -1,
		PlannerTemperature: -1,
		ExamTemperature:    -1,
	}

	curator := cfg.GeminiFor(contractx.AgentCurator)
	if curator.Model != "gemini-1.5-pro" {
		t.Fatalf("curator model = %s", curator.Model)
	}
	if curator.Temperature != 0.2 {
		t.Fatalf("curator temperature = %v", curator.Temperature)
	}

	// Other agents keep the shared settings.
	planner := cfg.GeminiFor(contractx.AgentPlanner)
	if planner.Model != "gemini-1.5-flash" || planner.Temperature != 0.7 {
		t.Fatalf("planner config = %+v", planner)
	}
}
