package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	agentsx "github.com/eduverse/agent-core/agent/agents"
	llmx "github.com/eduverse/agent-core/agent/llm"
	storex "github.com/eduverse/agent-core/agent/store"
	configx "github.com/eduverse/agent-core/pkg/config"
	_ "github.com/eduverse/agent-core/pkg/logger/autoload"
	mem0x "github.com/eduverse/agent-core/pkg/mem0"
	qstashx "github.com/eduverse/agent-core/pkg/qstash"
	tavilyx "github.com/eduverse/agent-core/pkg/tavily"
)

func main() {
	ctx := context.Background()

	llmCfg := configx.MustNew[llmx.Config]("GEMINI")
	generator, err := llmx.NewGenerator(ctx, *llmCfg)
	if err != nil {
		log.Error().Err(err).Msg("build generator")
		os.Exit(1)
	}

	memCfg := configx.MustNew[mem0x.Config]("MEM0")
	memory, err := mem0x.NewClient(*memCfg)
	if err != nil {
		log.Error().Err(err).Msg("build memory client")
		os.Exit(1)
	}

	searchCfg := configx.MustNew[tavilyx.Config]("TAVILY")
	search, err := tavilyx.NewClient(*searchCfg)
	if err != nil {
		log.Error().Err(err).Msg("build search client")
		os.Exit(1)
	}

	storeCfg := configx.MustNew[storex.Config]("POSTGRES")
	store, err := storex.NewPostgres(*storeCfg)
	if err != nil {
		log.Error().Err(err).Msg("build persistence store")
		os.Exit(1)
	}
	if err := store.Init(ctx); err != nil {
		log.Error().Err(err).Msg("init persistence store")
		os.Exit(1)
	}

	deps := agentsx.Deps{
		Memory:    memory,
		Generator: generator,
		Search:    search,
		Store:     store,
	}

	// The degradation notifier is optional; without a token runs simply skip
	// operator notices.
	if os.Getenv("QSTASH_TOKEN") != "" {
		qstashCfg := configx.MustNew[qstashx.Config]("QSTASH")
		deps.Notifier = qstashx.MustNew(*qstashCfg)
	}

	registry, err := agentsx.NewRegistry(ctx, deps, agentsx.Config{})
	if err != nil {
		log.Error().Err(err).Msg("build agent registry")
		os.Exit(1)
	}
	_ = registry

	log.Info().
		Bool("notifier", deps.Notifier != nil).
		Msg("agent registry ready")
}
