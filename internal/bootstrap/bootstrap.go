package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcoavk/urban-plan-assistant/internal/config"
	"github.com/marcoavk/urban-plan-assistant/internal/core/ports"
	"github.com/marcoavk/urban-plan-assistant/internal/core/usecase"
	"github.com/marcoavk/urban-plan-assistant/internal/infrastructure/cache/redis"
	"github.com/marcoavk/urban-plan-assistant/internal/infrastructure/llm/ollama"
	"github.com/marcoavk/urban-plan-assistant/internal/infrastructure/queue/nats"
	"github.com/marcoavk/urban-plan-assistant/internal/infrastructure/repository/postgres"
	"github.com/marcoavk/urban-plan-assistant/internal/infrastructure/resilience"
	"github.com/marcoavk/urban-plan-assistant/internal/infrastructure/vector/qdrant"
	"github.com/marcoavk/urban-plan-assistant/internal/observability/logging"
	"github.com/marcoavk/urban-plan-assistant/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Pipeline ports.QueryAnswerer
	Datasets ports.DatasetReader
	Metrics  *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := logging.NewJSONLogger("api", cfg.LogLevel)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	regimeRepo := postgres.NewRegimeRepository(db)
	if err := regimeRepo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	datasetRepo := postgres.NewDatasetRepository(db)

	answerCache, err := redis.New(cfg.RedisAddr)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init answer cache: %w", err)
	}

	events, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		answerCache.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init event publisher: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaEmbedModel)
	embedder := ollama.NewEmbedder(ollamaClient, resilience.NewExecutor(resilience.DefaultConfig()))

	searcher := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	httpMetrics := metrics.NewHTTPServerMetrics("api")

	retriever := usecase.NewStructuredRetriever(
		regimeRepo,
		logger,
		cfg.LookupConcurrency,
		time.Duration(cfg.LookupTimeoutSeconds)*time.Second,
	)
	pipeline := usecase.NewQueryPipeline(
		usecase.NewEntityExtractor(),
		usecase.NewQueryClassifier(usecase.DefaultThresholds()),
		usecase.NewContextualScorer(usecase.DefaultBoostConfig()),
		retriever,
		usecase.NewSynthesizer(),
		embedder,
		searcher,
		answerCache,
		events,
		httpMetrics,
		logger,
		usecase.PipelineConfig{
			VectorLimit:   cfg.VectorTopK,
			VectorTimeout: time.Duration(cfg.VectorTimeoutSeconds) * time.Second,
			LookupTimeout: time.Duration(cfg.LookupTimeoutSeconds) * time.Second,
			CacheTTL:      time.Duration(cfg.CacheTTLSeconds) * time.Second,
		},
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Pipeline: pipeline,
		Datasets: datasetRepo,
		Metrics:  httpMetrics,

		closeFn: func() {
			events.Close()
			answerCache.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
