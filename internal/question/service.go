package question

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/trivia-forge/internal/llm"
	"github.com/gokatarajesh/trivia-forge/internal/metrics"
)

const (
	defaultPreloadWait = 20 * time.Second
	defaultAttempts    = 3
	defaultTemperature = 1.2
	defaultCooldown    = time.Hour
	defaultCandidates  = 5
)

// RecordCache is the take/put/count contract the coordinator and the
// preload scheduler share.
type RecordCache interface {
	Put(ctx context.Context, k CacheKey, rec Record) error
	Take(ctx context.Context, k CacheKey) (Record, bool)
	Count(ctx context.Context, k CacheKey) int
}

// PreloadWaiter blocks on an in-flight preload for a session. It reports
// false without waiting when nothing is scheduled or running.
type PreloadWaiter interface {
	Wait(ctx context.Context, sessionID string, timeout time.Duration) bool
}

// Request asks for the next question of a game session.
type Request struct {
	Session string `json:"gameId" validate:"required,max=128"`
	Params
}

// Result is a served record plus where it came from.
type Result struct {
	Record
	Source string `json:"source"`
}

type ServiceOptions struct {
	PreloadWait time.Duration
	Attempts    int
	RetryDelay  time.Duration
	Temperature float32
	// ReuseCooldown is how long an archived question rests after being
	// served before it may be served again.
	ReuseCooldown   time.Duration
	ReuseCandidates int
}

// Service is the per-request coordinator: cache first, then a bounded wait
// on the session's preload, then the archive of rested questions, then
// on-the-fly generation, then a placeholder.
type Service struct {
	cache     RecordCache
	generator *Generator
	preload   PreloadWaiter
	archive   ReusableArchive
	logger    zerolog.Logger
	opts      ServiceOptions
}

// NewService wires the coordinator. preload and archive may be nil, which
// skips their tier.
func NewService(cache RecordCache, generator *Generator, preload PreloadWaiter, archive ReusableArchive, logger zerolog.Logger, opts ServiceOptions) *Service {
	if opts.PreloadWait <= 0 {
		opts.PreloadWait = defaultPreloadWait
	}
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.ReuseCooldown <= 0 {
		opts.ReuseCooldown = defaultCooldown
	}
	if opts.ReuseCandidates <= 0 {
		opts.ReuseCandidates = defaultCandidates
	}
	return &Service{
		cache:     cache,
		generator: generator,
		preload:   preload,
		archive:   archive,
		logger:    logger.With().Str("component", "question_service").Logger(),
		opts:      opts,
	}
}

// NextQuestion always yields a well-formed record. The only error returned
// is llm.ErrUnsupportedModel; every other failure ends in a placeholder
// with Degraded set.
func (s *Service) NextQuestion(ctx context.Context, req Request) (Result, error) {
	model, err := s.generator.ResolveModel(req.Model)
	if err != nil {
		return Result{}, err
	}

	key := req.CacheKey()
	if rec, ok := s.cache.Take(ctx, key); ok {
		return s.served(rec, SourceCache), nil
	}

	// A timed-out wait still retries the cache: a running session may have
	// filled this category already.
	if s.preload != nil {
		s.preload.Wait(ctx, req.Session, s.opts.PreloadWait)
		if rec, ok := s.cache.Take(ctx, key); ok {
			return s.served(rec, SourcePreload), nil
		}
	}

	if rec, ok := s.fromArchive(ctx, req, model); ok {
		return s.served(rec, SourceArchive), nil
	}

	params := req.Params
	var lastErr error
	for attempt := 1; attempt <= s.opts.Attempts; attempt++ {
		if attempt > 1 {
			if !sleepCtx(ctx, s.opts.RetryDelay) {
				lastErr = ctx.Err()
				break
			}
			// vary the prompt so a repeated bad output is less likely
			if params.Theme != "" {
				params.IncludeTheme = !params.IncludeTheme
			}
		}

		rec, err := s.generator.Generate(ctx, params, s.opts.Temperature)
		if err == nil {
			return s.served(rec, SourceGenerated), nil
		}
		if errors.Is(err, llm.ErrUnsupportedModel) {
			return Result{}, err
		}
		lastErr = err
		s.logger.Warn().Err(err).
			Str("session", req.Session).
			Str("category", req.Category).
			Int("attempt", attempt).
			Msg("on-the-fly generation attempt failed")
	}

	s.logger.Error().Err(lastErr).
		Str("session", req.Session).
		Str("category", req.Category).
		Str("model", req.Model).
		Str("game_mode", req.GameMode).
		Str("knowledge_level", req.KnowledgeLevel).
		Str("language", req.Language).
		Str("theme", req.Theme).
		Bool("include_theme", req.IncludeTheme).
		Msg("serving placeholder question")
	return s.served(Placeholder(req.Language), SourcePlaceholder), nil
}

func (s *Service) served(rec Record, source string) Result {
	metrics.QuestionsServed.WithLabelValues(source).Inc()
	return Result{Record: rec, Source: source}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
