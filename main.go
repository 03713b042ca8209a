package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/ngoclinhvu/medica/agent/agents"
	"github.com/ngoclinhvu/medica/agent/agents/conversation"
	"github.com/ngoclinhvu/medica/agent/agents/retrieval"
	"github.com/ngoclinhvu/medica/agent/agents/vision"
	"github.com/ngoclinhvu/medica/agent/agents/websearch"
	"github.com/ngoclinhvu/medica/agent/llm"
	"github.com/ngoclinhvu/medica/agent/orchestrator"
	"github.com/ngoclinhvu/medica/agent/prompt"
	"github.com/ngoclinhvu/medica/agent/router"
	"github.com/ngoclinhvu/medica/agent/state"
	"github.com/ngoclinhvu/medica/pkg/azurespeech"
	configx "github.com/ngoclinhvu/medica/pkg/config"
	_ "github.com/ngoclinhvu/medica/pkg/logger/autoload"
	"github.com/ngoclinhvu/medica/pkg/medvision"
	"github.com/ngoclinhvu/medica/pkg/pubmed"
	"github.com/ngoclinhvu/medica/pkg/qdrant"
	"github.com/ngoclinhvu/medica/pkg/tavily"
	"github.com/ngoclinhvu/medica/server"
)

type AppConfig struct {
	// SessionBackend selects where sessions live: "memory" or "postgres".
	SessionBackend string `envconfig:"SESSION_BACKEND" split_words:"true" default:"memory"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")

	store := buildStore(ctx, appCfg.SessionBackend)

	medvisionCfg := configx.MustNew[medvision.Config]("MEDVISION")
	medvisionClient, err := medvision.NewClient(*medvisionCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize medvision client")
	}

	qdrantCfg := configx.MustNew[qdrant.Config]("QDRANT")
	qdrantClient, err := qdrant.NewClient(*qdrantCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize qdrant client")
	}

	registry, err := agents.Build(
		*configx.MustNew[llm.Config]("LLM"),
		prompt.LoadPromptSet(),
		agents.Deps{
			Chunks:     qdrantClient,
			Web:        buildTavily(),
			Literature: buildPubMed(),
			Vision:     medvisionClient,
		},
		agents.Configs{
			Conversation: *configx.MustNew[conversation.Config]("CONVERSATION"),
			Retrieval:    *configx.MustNew[retrieval.Config]("RETRIEVAL"),
			Search:       *configx.MustNew[websearch.Config]("SEARCH"),
			Vision:       *configx.MustNew[vision.Config]("VISION"),
		},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("build agent registry")
	}

	classifier := router.New(medvisionClient, *configx.MustNew[router.Config]("ROUTER"))

	core, err := orchestrator.New(store, registry, classifier, *configx.MustNew[orchestrator.Config]("ORCHESTRATOR"))
	if err != nil {
		log.Fatal().Err(err).Msg("build orchestrator")
	}

	srv, err := server.New(*configx.MustNew[server.Config]("SERVER"), core, buildSpeech())
	if err != nil {
		log.Fatal().Err(err).Msg("build http server")
	}

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("shutdown complete")
}

func buildStore(ctx context.Context, backend string) state.Store {
	switch backend {
	case "postgres":
		cfg := configx.MustNew[state.PostgresStoreConfig]("SESSION_POSTGRES")
		store, err := state.NewPostgresStore(*cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("initialize postgres session store")
		}
		if err := store.Init(ctx); err != nil {
			log.Fatal().Err(err).Msg("prepare postgres session store")
		}
		return store
	default:
		cfg := configx.MustNew[state.MemoryStoreConfig]("SESSION_MEMORY")
		return state.NewMemoryStore(*cfg)
	}
}

// buildTavily and buildPubMed degrade to nil providers when unconfigured;
// the search agent tolerates a missing provider.
func buildTavily() websearch.WebSearcher {
	cfg, err := configx.New[tavily.Config]("TAVILY")
	if err != nil {
		log.Warn().Err(err).Msg("web search provider not configured")
		return nil
	}
	client, err := tavily.NewClient(*cfg)
	if err != nil {
		log.Warn().Err(err).Msg("web search provider not configured")
		return nil
	}
	return client
}

func buildPubMed() websearch.LiteratureSearcher {
	cfg, err := configx.New[pubmed.Config]("PUBMED")
	if err != nil {
		log.Warn().Err(err).Msg("literature provider not configured")
		return nil
	}
	client, err := pubmed.NewClient(*cfg)
	if err != nil {
		log.Warn().Err(err).Msg("literature provider not configured")
		return nil
	}
	return client
}

func buildSpeech() server.SpeechService {
	cfg, err := configx.New[azurespeech.Config]("AZURE_SPEECH")
	if err != nil {
		log.Warn().Err(err).Msg("speech services not configured")
		return nil
	}
	client, err := azurespeech.NewClient(*cfg)
	if err != nil {
		log.Warn().Err(err).Msg("speech services not configured")
		return nil
	}
	return client
}
