package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/eduverse/agent-core/agent/contract"
	promptx "github.com/eduverse/agent-core/agent/prompt"
)

// Generator implements contract.Generator on top of one compiled prompt→model
// graph per agent kind.
type Generator struct {
	runners map[contractx.AgentKind]compose.Runnable[string, *schema.Message]
}

var _ contractx.Generator = (*Generator)(nil)

func NewGenerator(ctx context.Context, cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts := promptx.LoadPromptSet()
	systemPrompts := map[contractx.AgentKind]string{
		contractx.AgentTutor:     prompts.Tutor,
		contractx.AgentPlanner:   prompts.Planner,
		contractx.AgentCurator:   prompts.Curator,
		contractx.AgentExamCoach: prompts.Exam,
	}

	runners := make(map[contractx.AgentKind]compose.Runnable[string, *schema.Message], len(systemPrompts))
	for kind, systemPrompt := range systemPrompts {
		modelCfg := cfg.GeminiFor(kind)
		chatModel, err := modelCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("create %s model: %w", kind, err)
		}
		runner, err := compileCompletionGraph(ctx, chatModel, systemPrompt, fmt.Sprintf("%s.completion_graph", kind))
		if err != nil {
			return nil, err
		}
		runners[kind] = runner
	}

	return &Generator{runners: runners}, nil
}

// Complete sends one prompt through the agent's chat model and returns the
// raw content. Failures are classified into the adapter error taxonomy.
func (g *Generator) Complete(ctx context.Context, prompt string, params contractx.GenerateParams) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt is empty", contractx.ErrValidation)
	}
	runner, ok := g.runners[params.Agent]
	if !ok {
		return "", fmt.Errorf("%w: no model for agent=%q", contractx.ErrValidation, params.Agent)
	}

	msg, err := runner.Invoke(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: model invoke: %v", contractx.ErrAdapterTimeout, err)
		}
		return "", fmt.Errorf("%w: model invoke: %v", contractx.ErrAdapterUnavailable, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("%w: model returned empty content", contractx.ErrAdapterRejected)
	}
	return msg.Content, nil
}

func compileCompletionGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
) (compose.Runnable[string, *schema.Message], error) {
	// System prompts carry literal JSON shape examples, so messages are built
	// directly instead of going through a format-string template.
	graph := compose.NewGraph[string, *schema.Message]()
	if err := graph.AddLambdaNode("prompt",
		compose.InvokableLambda(func(ctx context.Context, input string) ([]*schema.Message, error) {
			return []*schema.Message{
				schema.SystemMessage(systemPrompt),
				schema.UserMessage(input),
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile completion graph %s: %w", graphName, err)
	}
	return runner, nil
}
