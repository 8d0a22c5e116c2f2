// Package llm wraps the external model providers behind a single
// rate-limited entry point with retry, fallback, statistics and an audit
// trail.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/gokatarajesh/trivia-forge/internal/logging"
	"github.com/gokatarajesh/trivia-forge/internal/metrics"
)

const (
	defaultMaxConcurrent = 4
	defaultCallTimeout   = 40 * time.Second
	defaultBackoffBase   = 2 * time.Second
	sinkTimeout          = 3 * time.Second
	rawLogLimit          = 500
)

// Sink persists call outcomes. Implementations are expected to be durable
// but failures only get logged.
type Sink interface {
	RecordCall(ctx context.Context, model string, success bool, latency time.Duration) error
	RecordAudit(ctx context.Context, entry AuditEntry) error
	RecordFailure(ctx context.Context, model, message, raw string) error
}

// Options tunes the shared call budget. Zero values fall back to defaults.
type Options struct {
	FallbackModel    string
	MaxConcurrent    int
	CallsPerWindow   int
	Window           time.Duration
	CallTimeout      time.Duration
	RateLimitRetries int
	BackoffBase      time.Duration
	AuditCapacity    int
}

// Invoker is the process-wide gateway to the models. Every caller shares
// its concurrency slots and rate limiter.
type Invoker struct {
	catalog   *Catalog
	providers map[string]Provider
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
	stats     *Stats
	audit     *AuditTrail
	sink      Sink
	logger    zerolog.Logger
	opts      Options
}

func NewInvoker(catalog *Catalog, providers []Provider, sink Sink, logger zerolog.Logger, opts Options) *Invoker {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.RateLimitRetries < 0 {
		opts.RateLimitRetries = 0
	}

	// Burst 1 spaces calls Window/N apart so no window ever sees more than N.
	limit := rate.Inf
	if opts.CallsPerWindow > 0 && opts.Window > 0 {
		limit = rate.Every(opts.Window / time.Duration(opts.CallsPerWindow))
	}

	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p != nil {
			byName[p.Name()] = p
		}
	}

	return &Invoker{
		catalog:   catalog,
		providers: byName,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		limiter:   rate.NewLimiter(limit, 1),
		stats:     NewStats(),
		audit:     NewAuditTrail(opts.AuditCapacity),
		sink:      sink,
		logger:    logger.With().Str("component", "llm_invoker").Logger(),
		opts:      opts,
	}
}

func (inv *Invoker) Catalog() *Catalog { return inv.catalog }

func (inv *Invoker) Stats() *Stats { return inv.stats }

func (inv *Invoker) Audit() *AuditTrail { return inv.audit }

// Invoke sends prompt to modelID and returns the extracted structured value,
// or the raw text when no JSON object could be recovered.
//
// Rate-limited attempts back off and retry on the same model. Any other
// failure gets one retry on the fallback model when it differs from modelID.
func (inv *Invoker) Invoke(ctx context.Context, prompt, modelID string, temperature float32) (any, error) {
	spec, ok := inv.catalog.Lookup(modelID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelID)
	}

	raw, err := inv.callWithBackoff(ctx, spec, prompt, temperature)
	if err != nil && !IsRateLimited(err) && ctx.Err() == nil {
		if fb, ok := inv.fallbackFor(modelID); ok {
			inv.logger.Warn().Err(err).
				Str("model", modelID).
				Str("fallback", fb.ID).
				Msg("model call failed, retrying on fallback")
			spec = fb
			raw, err = inv.callWithBackoff(ctx, spec, prompt, temperature)
		}
	}
	if err != nil {
		inv.reportFailure(ctx, spec.ID, err, raw)
		return nil, fmt.Errorf("%w: %s: %w", ErrGenerationFailed, spec.ID, err)
	}

	return Extract(raw), nil
}

func (inv *Invoker) fallbackFor(modelID string) (ModelSpec, bool) {
	fb := inv.opts.FallbackModel
	if fb == "" || fb == modelID {
		return ModelSpec{}, false
	}
	return inv.catalog.Lookup(fb)
}

func (inv *Invoker) callWithBackoff(ctx context.Context, spec ModelSpec, prompt string, temperature float32) (string, error) {
	b := retry.NewExponential(inv.opts.BackoffBase)
	b = retry.WithJitterPercent(30, b)
	b = retry.WithMaxRetries(uint64(inv.opts.RateLimitRetries), b)

	var raw string
	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		out, err := inv.call(ctx, spec, prompt, temperature)
		if err != nil {
			if IsRateLimited(err) {
				inv.logger.Warn().
					Str("model", spec.ID).
					Int("attempt", attempt).
					Msg("rate limited, backing off")
				return retry.RetryableError(err)
			}
			return err
		}
		raw = out
		return nil
	})
	return raw, err
}

// call performs exactly one provider request inside the shared budget.
func (inv *Invoker) call(ctx context.Context, spec ModelSpec, prompt string, temperature float32) (string, error) {
	provider, ok := inv.providers[spec.Provider]
	if !ok {
		return "", &ProviderError{Kind: KindTransient, Model: spec.ID, Err: fmt.Errorf("provider %q not configured", spec.Provider)}
	}

	if err := inv.limiter.Wait(ctx); err != nil {
		return "", &ProviderError{Kind: KindTransient, Model: spec.ID, Err: err}
	}
	if err := inv.sem.Acquire(ctx, 1); err != nil {
		return "", &ProviderError{Kind: KindTransient, Model: spec.ID, Err: err}
	}
	defer inv.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, inv.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	raw, err := provider.Complete(callCtx, Request{
		Model:       spec.ID,
		Prompt:      prompt,
		Temperature: temperature,
		JSON:        spec.JSONMode,
	})
	latency := time.Since(start)

	inv.recordAttempt(ctx, spec.ID, err == nil, latency)
	if err != nil {
		var perr *ProviderError
		if !errors.As(err, &perr) {
			err = &ProviderError{Kind: KindTransient, Model: spec.ID, Err: err}
		}
		return "", err
	}

	inv.recordAudit(ctx, spec.ID, prompt, raw)
	return raw, nil
}

func (inv *Invoker) recordAttempt(ctx context.Context, model string, success bool, latency time.Duration) {
	inv.stats.Record(model, success, latency)

	outcome := "success"
	if !success {
		outcome = "error"
	}
	metrics.ModelCalls.WithLabelValues(model, outcome).Inc()
	metrics.ModelLatency.WithLabelValues(model).Observe(latency.Seconds())

	if inv.sink == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := inv.sink.RecordCall(sctx, model, success, latency); err != nil {
		inv.logger.Error().Err(err).Str("model", model).Msg("persist model stats failed")
	}
}

func (inv *Invoker) recordAudit(ctx context.Context, model, prompt, raw string) {
	entry := AuditEntry{
		ID:        uuid.NewString(),
		Model:     model,
		Prompt:    prompt,
		Response:  raw,
		CreatedAt: time.Now().UTC(),
	}
	inv.audit.Add(entry)

	if inv.sink == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if err := inv.sink.RecordAudit(sctx, entry); err != nil {
		inv.logger.Error().Err(err).Str("model", model).Msg("persist prompt audit failed")
	}
}

func (inv *Invoker) reportFailure(ctx context.Context, model string, err error, raw string) {
	truncated := logging.Truncate(raw, rawLogLimit)
	inv.logger.Error().Err(err).
		Str("model", model).
		Str("kind", KindOf(err).String()).
		Str("raw", truncated).
		Msg("generation failed")

	if inv.sink == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkTimeout)
	defer cancel()
	if serr := inv.sink.RecordFailure(sctx, model, err.Error(), truncated); serr != nil {
		inv.logger.Error().Err(serr).Str("model", model).Msg("persist error log failed")
	}
}
