package server

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/trivia-forge/internal/config"
	"github.com/gokatarajesh/trivia-forge/internal/logging"
)

// Routes groups the API handlers mounted under /api. Nil handlers are
// answered with 501.
type Routes struct {
	GenerateQuestion   http.HandlerFunc
	PreloadQuestions   http.HandlerFunc
	GenerateCategories http.HandlerFunc
	MutateCategory     http.HandlerFunc
	ExplainIncorrect   http.HandlerFunc
	QuestionModels     http.HandlerFunc
	Stats              http.HandlerFunc
	PromptHistory      http.HandlerFunc
}

// NewHTTPServer wires base routes (health, metrics, ping) and the API.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, pool *pgxpool.Pool, redis *redis.Client, routes Routes) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.IntoContext(r.Context(), logger)
		if err := pingDependencies(ctx, pool, redis); err != nil {
			logging.FromContext(ctx).Error().Err(err).Msg("dependency ping failed")
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	for path, h := range map[string]http.HandlerFunc{
		"/api/generate-question":   routes.GenerateQuestion,
		"/api/preload-questions":   routes.PreloadQuestions,
		"/api/generate-categories": routes.GenerateCategories,
		"/api/mutate-category":     routes.MutateCategory,
		"/api/explain-incorrect":   routes.ExplainIncorrect,
		"/api/models/questions":    routes.QuestionModels,
		"/api/stats":               routes.Stats,
		"/api/prompt-history":      routes.PromptHistory,
	} {
		if h == nil {
			h = notImplemented
		}
		mux.Handle(path, withRequestLog(logger, h))
	}

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func notImplemented(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "handler not configured", http.StatusNotImplemented)
}

// withRequestLog logs one line per API call and puts the logger in context.
func withRequestLog(logger zerolog.Logger, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r.WithContext(logging.IntoContext(r.Context(), logger)))
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(start)).
			Msg("api request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func pingDependencies(ctx context.Context, pool *pgxpool.Pool, redis *redis.Client) error {
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	if err := redis.Ping(ctx).Err(); err != nil {
		return err
	}
	return nil
}
