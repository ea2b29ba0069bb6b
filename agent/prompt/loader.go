package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/tutor.txt
	tutorRaw string

	//go:embed template/planner.txt
	plannerRaw string

	//go:embed template/curator.txt
	curatorRaw string

	//go:embed template/exam.txt
	examRaw string
)

// PromptSet holds the system prompts, one per agent kind.
type PromptSet struct {
	Tutor   string
	Planner string
	Curator string
	Exam    string
}

// LoadPromptSet returns the embedded prompts, trimmed. Safe for concurrent
// use; the embed is compile-time.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Tutor:   strings.TrimSpace(tutorRaw),
		Planner: strings.TrimSpace(plannerRaw),
		Curator: strings.TrimSpace(curatorRaw),
		Exam:    strings.TrimSpace(examRaw),
	}
}
