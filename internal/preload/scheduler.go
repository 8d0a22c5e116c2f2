package preload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/gokatarajesh/trivia-forge/internal/llm"
	"github.com/gokatarajesh/trivia-forge/internal/metrics"
	"github.com/gokatarajesh/trivia-forge/internal/question"
)

const (
	defaultQuota          = 2
	defaultMaxSessions    = 2
	defaultAttemptTimeout = 30 * time.Second
	defaultTemperature    = 1.2
	defaultMaxRounds      = 8
)

// Generator produces one validated record per call.
type Generator interface {
	ResolveModel(selector string) (string, error)
	Generate(ctx context.Context, p question.Params, temperature float32) (question.Record, error)
}

// Request asks for the cache to be filled for a session's categories.
type Request struct {
	Session        string   `json:"gameId" validate:"required,max=128"`
	Categories     []string `json:"categories" validate:"required,min=1,max=32,dive,required,max=120"`
	Model          string   `json:"model" validate:"required"`
	GameMode       string   `json:"gameMode" validate:"required,oneof=mcq short_answer"`
	KnowledgeLevel string   `json:"knowledgeLevel" validate:"required,oneof=basic intermediate expert"`
	Language       string   `json:"language" validate:"required,min=2,max=8"`
	Theme          string   `json:"theme" validate:"max=120"`
	IncludeTheme   bool     `json:"includeCategoryTheme"`
}

// Params returns the generation parameters for one category.
func (r Request) Params(category string) question.Params {
	return question.Params{
		Category:       category,
		Model:          r.Model,
		GameMode:       r.GameMode,
		KnowledgeLevel: r.KnowledgeLevel,
		Language:       r.Language,
		Theme:          r.Theme,
		IncludeTheme:   r.IncludeTheme,
	}
}

// Fingerprint identifies requests that would produce the same work.
func (r Request) Fingerprint() string {
	cats := uniqueCategories(r.Categories)
	sort.Strings(cats)
	h := sha256.New()
	for _, part := range []string{
		strings.Join(cats, "\x1f"),
		r.Model,
		r.GameMode,
		r.KnowledgeLevel,
		r.Language,
		r.Params("").EffectiveTheme(),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

type Options struct {
	CategoryQuota         int
	MaxConcurrentSessions int
	AttemptTimeout        time.Duration
	Temperature           float32
	RoundPacing           time.Duration
	MaxRounds             int
}

// Scheduler runs preload sessions in the background. At most
// MaxConcurrentSessions run at once; the rest wait in StateScheduled.
type Scheduler struct {
	registry  *Registry
	generator Generator
	cache     question.RecordCache
	slots     *semaphore.Weighted
	opts      Options
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

func NewScheduler(registry *Registry, generator Generator, cache question.RecordCache, logger zerolog.Logger, opts Options) *Scheduler {
	if opts.CategoryQuota <= 0 {
		opts.CategoryQuota = defaultQuota
	}
	if opts.MaxConcurrentSessions <= 0 {
		opts.MaxConcurrentSessions = defaultMaxSessions
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = defaultAttemptTimeout
	}
	if opts.Temperature <= 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = defaultMaxRounds
	}
	return &Scheduler{
		registry:  registry,
		generator: generator,
		cache:     cache,
		slots:     semaphore.NewWeighted(int64(opts.MaxConcurrentSessions)),
		opts:      opts,
		logger:    logger.With().Str("component", "preload_scheduler").Logger(),
	}
}

// Schedule registers req and starts its run in the background. It returns
// llm.ErrUnsupportedModel for an unknown selector and ErrThrottled when the
// session asked again too soon.
func (s *Scheduler) Schedule(req Request) (Outcome, error) {
	if _, err := s.generator.ResolveModel(req.Model); err != nil {
		return "", err
	}

	sess, outcome, err := s.registry.Begin(req.Session, req.Fingerprint())
	if err != nil {
		if errors.Is(err, ErrThrottled) {
			metrics.PreloadSessions.WithLabelValues("throttled").Inc()
		}
		return "", err
	}
	metrics.PreloadSessions.WithLabelValues(string(outcome)).Inc()
	if outcome == OutcomeInProgress {
		return outcome, nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(sess, req)
	}()
	return outcome, nil
}

// Wait delegates to the registry so the scheduler can stand in for it.
func (s *Scheduler) Wait(ctx context.Context, sessionID string, timeout time.Duration) bool {
	return s.registry.Wait(ctx, sessionID, timeout)
}

// Shutdown cancels all sessions and waits for their runs to unwind.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.registry.Close()
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(sess *Session, req Request) {
	ctx := sess.Context()
	log := s.logger.With().Str("session", sess.ID).Logger()
	defer sess.finish(time.Now())

	if err := s.slots.Acquire(ctx, 1); err != nil {
		log.Info().Msg("preload canceled before start")
		return
	}
	defer s.slots.Release(1)

	sess.start()
	started := time.Now()
	categories := uniqueCategories(req.Categories)

	for round := 1; round <= s.opts.MaxRounds; round++ {
		pending := s.underQuota(ctx, req, categories)
		if len(pending) == 0 {
			log.Info().Int("rounds", round-1).Dur("elapsed", time.Since(started)).Msg("preload complete")
			return
		}

		var g errgroup.Group
		for _, category := range pending {
			g.Go(func() error {
				s.produce(ctx, req, category)
				return nil
			})
		}
		_ = g.Wait()

		if ctx.Err() != nil {
			log.Info().Int("round", round).Msg("preload canceled")
			return
		}
		if round < s.opts.MaxRounds && !sleep(ctx, s.opts.RoundPacing) {
			return
		}
	}

	if pending := s.underQuota(ctx, req, categories); len(pending) > 0 {
		log.Warn().Strs("categories", pending).Int("rounds", s.opts.MaxRounds).Msg("preload gave up with categories under quota")
	}
}

// underQuota lists categories below quota, fewest cached first.
func (s *Scheduler) underQuota(ctx context.Context, req Request, categories []string) []string {
	type entry struct {
		category string
		count    int
	}
	var starved []entry
	for _, c := range categories {
		n := s.cache.Count(ctx, question.KeyFor(req.Params(c), c))
		if n < s.opts.CategoryQuota {
			starved = append(starved, entry{category: c, count: n})
		}
	}
	sort.SliceStable(starved, func(i, j int) bool {
		return starved[i].count < starved[j].count
	})

	out := make([]string, len(starved))
	for i, e := range starved {
		out[i] = e.category
	}
	return out
}

func (s *Scheduler) produce(ctx context.Context, req Request, category string) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.opts.AttemptTimeout)
	defer cancel()

	p := req.Params(category)
	rec, err := s.generator.Generate(attemptCtx, p, s.opts.Temperature)
	if err != nil {
		outcome := "failed"
		var verr *question.ValidationError
		switch {
		case errors.As(err, &verr):
			outcome = "invalid"
		case errors.Is(err, context.DeadlineExceeded):
			outcome = "timeout"
		case llm.IsRateLimited(err):
			outcome = "rate_limited"
		}
		metrics.PreloadProduced.WithLabelValues(outcome).Inc()
		s.logger.Warn().Err(err).
			Str("session", req.Session).
			Str("category", category).
			Str("model", req.Model).
			Str("outcome", outcome).
			Msg("preload attempt failed")
		return
	}

	if err := s.cache.Put(ctx, question.KeyFor(p, category), rec); err != nil {
		metrics.PreloadProduced.WithLabelValues("cache_error").Inc()
		s.logger.Error().Err(err).Str("session", req.Session).Str("category", category).Msg("preload cache put failed")
		return
	}
	metrics.PreloadProduced.WithLabelValues("cached").Inc()
}

func uniqueCategories(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		k := strings.ToLower(c)
		if _, dup := seen[k]; dup || c == "" {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) bool {
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
