package preload

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/trivia-forge/internal/history"
	"github.com/gokatarajesh/trivia-forge/internal/llm"
	"github.com/gokatarajesh/trivia-forge/internal/prompt"
	"github.com/gokatarajesh/trivia-forge/internal/question"
)

type memoryCache struct {
	mu    sync.Mutex
	store map[question.CacheKey][]question.Record
}

func newMemoryCache() *memoryCache {
	return &memoryCache{store: map[question.CacheKey][]question.Record{}}
}

func (c *memoryCache) Put(_ context.Context, k question.CacheKey, rec question.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[k] = append(c.store[k], rec)
	return nil
}

func (c *memoryCache) Take(_ context.Context, k question.CacheKey) (question.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.store[k]
	if len(q) == 0 {
		return question.Record{}, false
	}
	c.store[k] = q[1:]
	return q[0], true
}

func (c *memoryCache) Count(_ context.Context, k question.CacheKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store[k])
}

type fakeGenerator struct {
	calls    atomic.Int64
	generate func(ctx context.Context, p question.Params) (question.Record, error)
}

func (g *fakeGenerator) ResolveModel(selector string) (string, error) {
	if selector == "unknown-model" {
		return "", fmt.Errorf("%w: %s", llm.ErrUnsupportedModel, selector)
	}
	return selector, nil
}

func (g *fakeGenerator) Generate(ctx context.Context, p question.Params, _ float32) (question.Record, error) {
	n := g.calls.Add(1)
	if g.generate != nil {
		return g.generate(ctx, p)
	}
	return question.Record{ID: fmt.Sprint(n), Question: "Question number " + fmt.Sprint(n)}, nil
}

func preloadRequest(session string, categories ...string) Request {
	return Request{
		Session:        session,
		Categories:     categories,
		Model:          "gemini-2.5-flash",
		GameMode:       question.GameModeMCQ,
		KnowledgeLevel: question.LevelBasic,
		Language:       "en",
	}
}

func newTestScheduler(gen Generator, cache question.RecordCache, opts Options) *Scheduler {
	return NewScheduler(NewRegistry(0, time.Hour), gen, cache, zerolog.New(io.Discard), opts)
}

func awaitDone(t *testing.T, s *Scheduler, session string) {
	t.Helper()
	sess, ok := s.registry.Lookup(session)
	require.True(t, ok)
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %s never finished", session)
	}
}

func TestScheduler_FillsQuota(t *testing.T) {
	cache := newMemoryCache()
	gen := &fakeGenerator{}
	s := newTestScheduler(gen, cache, Options{CategoryQuota: 2})

	req := preloadRequest("g1", "Science", "History", "science")
	outcome, err := s.Schedule(req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeScheduled, outcome)
	awaitDone(t, s, "g1")

	for _, c := range []string{"Science", "History"} {
		assert.Equal(t, 2, cache.Count(context.Background(), question.KeyFor(req.Params(c), c)), c)
	}
	assert.Equal(t, int64(4), gen.calls.Load())
}

func TestScheduler_SkipsCategoriesAtQuota(t *testing.T) {
	cache := newMemoryCache()
	req := preloadRequest("g1", "Science", "History")
	for i := 0; i < 2; i++ {
		require.NoError(t, cache.Put(context.Background(), question.KeyFor(req.Params("Science"), "Science"), question.Record{}))
	}

	var mu sync.Mutex
	var seen []string
	gen := &fakeGenerator{generate: func(_ context.Context, p question.Params) (question.Record, error) {
		mu.Lock()
		seen = append(seen, p.Category)
		mu.Unlock()
		return question.Record{Question: "q"}, nil
	}}
	s := newTestScheduler(gen, cache, Options{CategoryQuota: 2})

	_, err := s.Schedule(req)
	require.NoError(t, err)
	awaitDone(t, s, "g1")

	assert.Equal(t, []string{"History", "History"}, seen)
}

func TestScheduler_UnderQuotaMostStarvedFirst(t *testing.T) {
	cache := newMemoryCache()
	req := preloadRequest("g1", "Art", "Science", "History")
	put := func(c string, n int) {
		for i := 0; i < n; i++ {
			_ = cache.Put(context.Background(), question.KeyFor(req.Params(c), c), question.Record{})
		}
	}
	put("Art", 1)
	put("Science", 3)

	s := newTestScheduler(&fakeGenerator{}, cache, Options{CategoryQuota: 3})
	got := s.underQuota(context.Background(), req, uniqueCategories(req.Categories))
	assert.Equal(t, []string{"History", "Art"}, got)
}

func TestScheduler_FailuresStillFireDone(t *testing.T) {
	gen := &fakeGenerator{generate: func(context.Context, question.Params) (question.Record, error) {
		return question.Record{}, &question.ValidationError{Reason: "bad"}
	}}
	s := newTestScheduler(gen, newMemoryCache(), Options{CategoryQuota: 2, MaxRounds: 3})

	_, err := s.Schedule(preloadRequest("g1", "Science", "History"))
	require.NoError(t, err)
	awaitDone(t, s, "g1")

	assert.Equal(t, int64(6), gen.calls.Load())
	sess, _ := s.registry.Lookup("g1")
	assert.Equal(t, StateDone, sess.State())
}

func TestScheduler_AttemptTimeout(t *testing.T) {
	gen := &fakeGenerator{generate: func(ctx context.Context, _ question.Params) (question.Record, error) {
		<-ctx.Done()
		return question.Record{}, ctx.Err()
	}}
	s := newTestScheduler(gen, newMemoryCache(), Options{AttemptTimeout: 10 * time.Millisecond, MaxRounds: 2})

	_, err := s.Schedule(preloadRequest("g1", "Science"))
	require.NoError(t, err)
	awaitDone(t, s, "g1")
	assert.Equal(t, int64(2), gen.calls.Load())
}

func TestScheduler_RejectsUnsupportedModel(t *testing.T) {
	s := newTestScheduler(&fakeGenerator{}, newMemoryCache(), Options{})
	req := preloadRequest("g1", "Science")
	req.Model = "unknown-model"

	_, err := s.Schedule(req)
	assert.ErrorIs(t, err, llm.ErrUnsupportedModel)
	_, ok := s.registry.Lookup("g1")
	assert.False(t, ok)
}

func TestScheduler_DedupesIdenticalRequest(t *testing.T) {
	release := make(chan struct{})
	gen := &fakeGenerator{generate: func(ctx context.Context, _ question.Params) (question.Record, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return question.Record{Question: "q"}, nil
	}}
	s := newTestScheduler(gen, newMemoryCache(), Options{CategoryQuota: 1})

	req := preloadRequest("g1", "Science")
	outcome, err := s.Schedule(req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeScheduled, outcome)

	outcome, err = s.Schedule(req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInProgress, outcome)

	close(release)
	awaitDone(t, s, "g1")
	assert.Equal(t, int64(1), gen.calls.Load())
}

func TestScheduler_BoundsConcurrentSessions(t *testing.T) {
	release := make(chan struct{})
	var running, peak atomic.Int64
	gen := &fakeGenerator{generate: func(ctx context.Context, _ question.Params) (question.Record, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer running.Add(-1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return question.Record{Question: "q"}, nil
	}}
	s := newTestScheduler(gen, newMemoryCache(), Options{CategoryQuota: 1, MaxConcurrentSessions: 1})

	_, err := s.Schedule(preloadRequest("g1", "Science"))
	require.NoError(t, err)
	_, err = s.Schedule(preloadRequest("g2", "History"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return running.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	states := []State{}
	for _, id := range []string{"g1", "g2"} {
		sess, _ := s.registry.Lookup(id)
		states = append(states, sess.State())
	}
	assert.ElementsMatch(t, []State{StateRunning, StateScheduled}, states)

	close(release)
	awaitDone(t, s, "g1")
	awaitDone(t, s, "g2")
	assert.Equal(t, int64(1), peak.Load())
}

func TestScheduler_ShutdownUnblocksRuns(t *testing.T) {
	gen := &fakeGenerator{generate: func(ctx context.Context, _ question.Params) (question.Record, error) {
		<-ctx.Done()
		return question.Record{}, ctx.Err()
	}}
	s := newTestScheduler(gen, newMemoryCache(), Options{AttemptTimeout: time.Minute})

	_, err := s.Schedule(preloadRequest("g1", "Science"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return gen.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	sess, _ := s.registry.Lookup("g1")
	assert.Equal(t, StateDone, sess.State())
}

// scriptedInvoker alternates between a valid record and unusable text.
type scriptedInvoker struct {
	calls atomic.Int64
}

func (s *scriptedInvoker) Invoke(_ context.Context, _, _ string, _ float32) (any, error) {
	n := s.calls.Add(1)
	if n%2 == 0 {
		return "I am not able to produce JSON right now", nil
	}
	return map[string]any{
		"question":            fmt.Sprintf("Which fact number %d is the true one here?", n),
		"answer":              "First",
		"options":             []any{"First", "Second", "Third", "Fourth"},
		"explanation_correct": "Because it is first.",
		"explanation_summary": "Ordering matters.",
		"subcategory":         fmt.Sprintf("Topic %d", n),
		"key_entities":        []any{fmt.Sprintf("Entity %d", n)},
	}, nil
}

type passthroughModels struct{}

func (passthroughModels) Resolve(selector string) (string, error) { return selector, nil }

func TestScheduler_EndToEndWithRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zerolog.New(io.Discard)

	cache := question.NewCache(client, "e2e", time.Hour, logger)
	prompts, err := prompt.NewBuilder("")
	require.NoError(t, err)
	hist := history.NewStore(history.Options{})
	invoker := &scriptedInvoker{}
	gen := question.NewGenerator(invoker, passthroughModels{}, prompts, hist, nil, logger)

	s := NewScheduler(NewRegistry(0, time.Hour), gen, cache, logger, Options{CategoryQuota: 2})
	req := preloadRequest("g1", "Science", "History")
	_, err = s.Schedule(req)
	require.NoError(t, err)
	awaitDone(t, s, "g1")

	ctx := context.Background()
	for _, c := range []string{"Science", "History"} {
		key := question.KeyFor(req.Params(c), c)
		assert.Equal(t, 2, cache.Count(ctx, key), c)

		rec, ok := cache.Take(ctx, key)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(rec.Question, "Which fact number"))
		assert.Equal(t, "First", rec.Answer)
	}
	assert.Len(t, hist.Sample("Science").Subcategories, 2)
	assert.GreaterOrEqual(t, invoker.calls.Load(), int64(7))
}

func TestRequestFingerprint(t *testing.T) {
	a := preloadRequest("g1", "Science", "History")
	b := preloadRequest("g1", "History", "Science", "Science")
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	c := a
	c.KnowledgeLevel = question.LevelExpert
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	d := a
	d.Theme = "Space"
	assert.Equal(t, a.Fingerprint(), d.Fingerprint(), "theme without include flag does not change the work")
	d.IncludeTheme = true
	assert.NotEqual(t, a.Fingerprint(), d.Fingerprint())
}

func TestSchedulerWaitDelegates(t *testing.T) {
	s := newTestScheduler(&fakeGenerator{}, newMemoryCache(), Options{})
	assert.False(t, s.Wait(context.Background(), "nobody", time.Second))
}
