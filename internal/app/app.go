package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/trivia-forge/internal/config"
	"github.com/gokatarajesh/trivia-forge/internal/content"
	"github.com/gokatarajesh/trivia-forge/internal/db/repository"
	sqlcgen "github.com/gokatarajesh/trivia-forge/internal/db/sqlc"
	"github.com/gokatarajesh/trivia-forge/internal/history"
	"github.com/gokatarajesh/trivia-forge/internal/llm"
	"github.com/gokatarajesh/trivia-forge/internal/logging"
	"github.com/gokatarajesh/trivia-forge/internal/preload"
	"github.com/gokatarajesh/trivia-forge/internal/prompt"
	"github.com/gokatarajesh/trivia-forge/internal/question"
	"github.com/gokatarajesh/trivia-forge/internal/server"
)

const sessionRetention = 30 * time.Minute

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool      *pgxpool.Pool
	redis     *redis.Client
	http      *http.Server
	scheduler *preload.Scheduler
}

// New bootstraps logger, Postgres, Redis, model providers and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	connString := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=10",
		cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database, cfg.Postgres.SSLMode)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	queries := sqlcgen.New(pool)
	questionRepo := repository.NewQuestionRepository(queries)
	statsRepo := repository.NewStatsRepository(queries, cfg.LLM.AuditCapacity)

	providers, catalog, err := buildProviders(ctx, cfg.LLM)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, err
	}
	logger.Info().Int("models", len(catalog.All())).Msg("model catalog loaded")

	invoker := llm.NewInvoker(catalog, providers, statsRepo, logger, llm.Options{
		FallbackModel:    cfg.LLM.FallbackModel,
		MaxConcurrent:    cfg.LLM.MaxConcurrentCalls,
		CallsPerWindow:   cfg.LLM.CallsPerWindow,
		Window:           cfg.LLM.RateWindow,
		CallTimeout:      cfg.LLM.CallTimeout,
		RateLimitRetries: cfg.LLM.RateLimitRetries,
		BackoffBase:      cfg.LLM.BackoffBase,
		AuditCapacity:    cfg.LLM.AuditCapacity,
	})

	prompts, err := prompt.NewBuilder(cfg.Generation.TemplatePath)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("load prompt templates: %w", err)
	}

	hist := history.NewStore(history.Options{
		SubcategoryCapacity: cfg.History.SubcategoryCapacity,
		EntityCapacity:      cfg.History.EntityCapacity,
		MaxCategories:       cfg.History.MaxCategories,
		Shuffle:             true,
	})

	cache := question.NewCache(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.EntryTTL, logger)
	generator := question.NewGenerator(invoker, catalog, prompts, hist, questionRepo, logger)

	registry := preload.NewRegistry(cfg.Preload.MinInterval, sessionRetention)
	scheduler := preload.NewScheduler(registry, generator, cache, logger, preload.Options{
		CategoryQuota:         cfg.Preload.CategoryQuota,
		MaxConcurrentSessions: cfg.Preload.MaxConcurrentSessions,
		AttemptTimeout:        cfg.Preload.AttemptTimeout,
		Temperature:           cfg.Preload.Temperature,
		RoundPacing:           cfg.Preload.RoundPacing,
		MaxRounds:             cfg.Preload.MaxRounds,
	})

	questionSvc := question.NewService(cache, generator, scheduler, questionRepo, logger, question.ServiceOptions{
		PreloadWait:     cfg.Generation.PreloadWait,
		Attempts:        cfg.Generation.Attempts,
		RetryDelay:      cfg.Generation.RetryDelay,
		Temperature:     cfg.Generation.Temperature,
		ReuseCooldown:   cfg.Generation.ReuseCooldown,
		ReuseCandidates: cfg.Generation.ReuseCandidates,
	})
	contentSvc := content.NewService(invoker, catalog, prompts, cfg.Generation.ContentTemp, logger)

	questionHTTP := question.NewHTTPHandler(questionSvc, logger)
	preloadHTTP := preload.NewHTTPHandler(scheduler, logger)
	contentHTTP := content.NewHTTPHandlers(contentSvc, logger)
	llmHTTP := llm.NewHTTPHandler(invoker, statsRepo, questionRepo, logger)

	apiServer := server.NewHTTPServer(cfg, logger, pool, redisClient, server.Routes{
		GenerateQuestion:   questionHTTP.HandleGenerate,
		PreloadQuestions:   preloadHTTP.HandlePreload,
		GenerateCategories: contentHTTP.GenerateCategories,
		MutateCategory:     contentHTTP.MutateCategory,
		ExplainIncorrect:   contentHTTP.ExplainIncorrect,
		QuestionModels:     llmHTTP.HandleModels,
		Stats:              llmHTTP.HandleStats,
		PromptHistory:      llmHTTP.HandlePromptHistory,
	})

	return &Application{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		redis:     redisClient,
		http:      apiServer,
		scheduler: scheduler,
	}, nil
}

// buildProviders creates a client per configured provider and the catalog
// of models they serve.
func buildProviders(ctx context.Context, cfg config.LLM) ([]llm.Provider, *llm.Catalog, error) {
	var (
		providers []llm.Provider
		specs     []llm.ModelSpec
	)

	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini client: %w", err)
		}
		providers = append(providers, gemini)
		for _, id := range cfg.GeminiModels {
			specs = append(specs, llm.DefaultSpec(id, llm.ProviderGemini, cfg.ModelLanguages))
		}
	}

	if cfg.OpenAIBaseURL != "" {
		openai, err := llm.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("openai client: %w", err)
		}
		providers = append(providers, openai)
		for _, id := range cfg.OpenAIModels {
			specs = append(specs, llm.DefaultSpec(id, llm.ProviderOpenAI, cfg.ModelLanguages))
		}
	}

	if len(specs) == 0 {
		return nil, nil, errors.New("no models configured")
	}
	return providers, llm.NewCatalog(specs...), nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	if err := a.scheduler.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("preload shutdown error")
	}

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}
