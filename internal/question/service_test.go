package question

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/trivia-forge/internal/db/repository"
	sqlcgen "github.com/gokatarajesh/trivia-forge/internal/db/sqlc"
	"github.com/gokatarajesh/trivia-forge/internal/history"
	"github.com/gokatarajesh/trivia-forge/internal/llm"
	"github.com/gokatarajesh/trivia-forge/internal/prompt"
)

type stubInvoker struct {
	mu      sync.Mutex
	calls   int
	respond func(call int) (any, error)
}

func (s *stubInvoker) Invoke(_ context.Context, _, _ string, _ float32) (any, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	return s.respond(call)
}

func (s *stubInvoker) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubResolver struct{}

func (stubResolver) Resolve(selector string) (string, error) {
	if selector == "unknown-model" {
		return "", fmt.Errorf("%w: %s", llm.ErrUnsupportedModel, selector)
	}
	return selector, nil
}

type stubPrompts struct {
	mu     sync.Mutex
	inputs []prompt.QuestionInput
}

func (s *stubPrompts) Question(in prompt.QuestionInput) (string, error) {
	s.mu.Lock()
	s.inputs = append(s.inputs, in)
	s.mu.Unlock()
	return "prompt for " + in.Category, nil
}

type stubArchive struct {
	mu       sync.Mutex
	inserted []sqlcgen.InsertGeneratedQuestionParams
	err      error
}

func (s *stubArchive) Insert(_ context.Context, params sqlcgen.InsertGeneratedQuestionParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, params)
	return s.err
}

type memoryCache struct {
	mu    sync.Mutex
	store map[CacheKey][]Record
}

func newMemoryCache() *memoryCache {
	return &memoryCache{store: map[CacheKey][]Record{}}
}

func (c *memoryCache) Put(_ context.Context, k CacheKey, rec Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[k] = append(c.store[k], rec)
	return nil
}

func (c *memoryCache) Take(_ context.Context, k CacheKey) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.store[k]
	if len(q) == 0 {
		return Record{}, false
	}
	c.store[k] = q[1:]
	return q[0], true
}

func (c *memoryCache) Count(_ context.Context, k CacheKey) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.store[k])
}

type stubWaiter struct {
	calls  int
	onWait func()
	result bool
}

func (s *stubWaiter) Wait(_ context.Context, _ string, _ time.Duration) bool {
	s.calls++
	if s.onWait != nil {
		s.onWait()
	}
	return s.result
}

type fixture struct {
	invoker *stubInvoker
	prompts *stubPrompts
	archive *stubArchive
	history *history.Store
	cache   *memoryCache
	waiter  *stubWaiter
	gen     *Generator
	svc     *Service
}

func newFixture(respond func(call int) (any, error)) *fixture {
	f := &fixture{
		invoker: &stubInvoker{respond: respond},
		prompts: &stubPrompts{},
		archive: &stubArchive{},
		history: history.NewStore(history.Options{}),
		cache:   newMemoryCache(),
		waiter:  &stubWaiter{},
	}
	f.gen = NewGenerator(f.invoker, stubResolver{}, f.prompts, f.history, f.archive, zerolog.New(io.Discard))
	f.useArchive(nil)
	return f
}

func (f *fixture) useArchive(archive ReusableArchive) {
	f.svc = NewService(f.cache, f.gen, f.waiter, archive, zerolog.New(io.Discard), ServiceOptions{Attempts: 3})
}

type mockReusableArchive struct {
	mock.Mock
}

func (m *mockReusableArchive) FindReusable(ctx context.Context, params sqlcgen.FindReusableQuestionsParams) ([]sqlcgen.GeneratedQuestion, error) {
	args := m.Called(ctx, params)
	rows, _ := args.Get(0).([]sqlcgen.GeneratedQuestion)
	return rows, args.Error(1)
}

func (m *mockReusableArchive) MarkUsed(ctx context.Context, id int64, usedBefore time.Time) (bool, error) {
	args := m.Called(ctx, id, usedBefore)
	return args.Bool(0), args.Error(1)
}

func archivedRow(id int64, question string) sqlcgen.GeneratedQuestion {
	return sqlcgen.GeneratedQuestion{
		ID:             id,
		Model:          "gemini-2.5-flash",
		Language:       "en",
		Category:       "Science",
		KnowledgeLevel: LevelBasic,
		GameMode:       GameModeMCQ,
		QuestionText:   question,
		AnswerText:     "Mars",
		Explanation:    pgtype.Text{String: "Iron oxide dust colours it red.", Valid: true},
		Subcategory:    pgtype.Text{String: "Planets", Valid: true},
		KeyEntities:    []byte(`["Mars"]`),
		Options:        []byte(`["Venus","Mars","Jupiter","Mercury"]`),
	}
}

func alwaysValid(int) (any, error) { return validMCQ(), nil }

func sampleRequest() Request {
	return Request{
		Session: "game-1",
		Params: Params{
			Category:       "Science",
			Model:          "gemini-2.5-flash",
			GameMode:       GameModeMCQ,
			KnowledgeLevel: LevelBasic,
			Language:       "en",
		},
	}
}

func TestNextQuestion_CacheHitSkipsGeneration(t *testing.T) {
	f := newFixture(alwaysValid)
	req := sampleRequest()
	require.NoError(t, f.cache.Put(context.Background(), req.CacheKey(), Record{ID: "cached", Question: "Cached question?"}))

	res, err := f.svc.NextQuestion(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Source)
	assert.Equal(t, "cached", res.ID)
	assert.Equal(t, 0, f.invoker.Calls())
	assert.Equal(t, 0, f.waiter.calls)
}

func TestNextQuestion_WaitsForPreload(t *testing.T) {
	f := newFixture(alwaysValid)
	req := sampleRequest()
	f.waiter.result = true
	f.waiter.onWait = func() {
		_ = f.cache.Put(context.Background(), req.CacheKey(), Record{ID: "preloaded"})
	}

	res, err := f.svc.NextQuestion(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SourcePreload, res.Source)
	assert.Equal(t, "preloaded", res.ID)
	assert.Equal(t, 1, f.waiter.calls)
	assert.Equal(t, 0, f.invoker.Calls())
}

func TestNextQuestion_RetriesCacheAfterPreloadTimeout(t *testing.T) {
	f := newFixture(alwaysValid)
	req := sampleRequest()
	f.waiter.result = false
	f.waiter.onWait = func() {
		_ = f.cache.Put(context.Background(), req.CacheKey(), Record{ID: "preloaded"})
	}

	res, err := f.svc.NextQuestion(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SourcePreload, res.Source)
	assert.Equal(t, "preloaded", res.ID)
	assert.Equal(t, 0, f.invoker.Calls())
	assert.Equal(t, 0, f.cache.Count(context.Background(), req.CacheKey()))
}

func TestNextQuestion_ServesRestedArchiveQuestion(t *testing.T) {
	f := newFixture(alwaysValid)
	archive := new(mockReusableArchive)
	f.useArchive(archive)

	before := time.Now()
	archive.On("FindReusable", mock.Anything, mock.MatchedBy(func(p sqlcgen.FindReusableQuestionsParams) bool {
		age := before.Sub(p.UsedBefore.Time)
		return p.Model == "gemini-2.5-flash" &&
			p.Category == "Science" &&
			p.GameMode == GameModeMCQ &&
			!p.Theme.Valid &&
			p.MaxRows == defaultCandidates &&
			age > 59*time.Minute && age < 61*time.Minute
	})).Return([]sqlcgen.GeneratedQuestion{archivedRow(7, "Which planet is known as the red planet?")}, nil)
	archive.On("MarkUsed", mock.Anything, int64(7), mock.AnythingOfType("time.Time")).Return(true, nil)

	res, err := f.svc.NextQuestion(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, SourceArchive, res.Source)
	assert.Equal(t, "7", res.ID)
	assert.Equal(t, "Mars", res.Answer)
	assert.Equal(t, []string{"Venus", "Mars", "Jupiter", "Mercury"}, res.Options)
	assert.Equal(t, []string{"Mars"}, res.KeyEntities)
	assert.Equal(t, 0, f.invoker.Calls())
	archive.AssertExpectations(t)
}

func TestNextQuestion_ArchiveSkipsClaimedAndBrokenRows(t *testing.T) {
	f := newFixture(alwaysValid)
	archive := new(mockReusableArchive)
	f.useArchive(archive)

	broken := archivedRow(3, "Which planet has the tallest volcano?")
	broken.Options = []byte(`["Mars"]`)
	rows := []sqlcgen.GeneratedQuestion{
		broken,
		archivedRow(4, "Which planet is known as the red planet?"),
		archivedRow(5, "Which planet has two small moons?"),
	}
	archive.On("FindReusable", mock.Anything, mock.Anything).Return(rows, nil)
	archive.On("MarkUsed", mock.Anything, int64(4), mock.Anything).Return(false, nil)
	archive.On("MarkUsed", mock.Anything, int64(5), mock.Anything).Return(true, nil)

	res, err := f.svc.NextQuestion(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, SourceArchive, res.Source)
	assert.Equal(t, "5", res.ID)
	archive.AssertNotCalled(t, "MarkUsed", mock.Anything, int64(3), mock.Anything)
	archive.AssertExpectations(t)
}

func TestNextQuestion_ArchiveFailureFallsThroughToGeneration(t *testing.T) {
	f := newFixture(alwaysValid)
	archive := new(mockReusableArchive)
	f.useArchive(archive)

	req := sampleRequest()
	req.Theme = "Space"
	req.IncludeTheme = true
	archive.On("FindReusable", mock.Anything, mock.MatchedBy(func(p sqlcgen.FindReusableQuestionsParams) bool {
		return p.Theme.Valid && p.Theme.String == "Space"
	})).Return(nil, errors.New("connection refused"))

	res, err := f.svc.NextQuestion(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SourceGenerated, res.Source)
	assert.Equal(t, 1, f.invoker.Calls())
	archive.AssertNotCalled(t, "MarkUsed", mock.Anything, mock.Anything, mock.Anything)
	archive.AssertExpectations(t)
}

func TestNextQuestion_GeneratesOnTheFly(t *testing.T) {
	f := newFixture(alwaysValid)

	res, err := f.svc.NextQuestion(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, SourceGenerated, res.Source)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "gemini-2.5-flash", res.Model)
	assert.False(t, res.Degraded)
	assert.Equal(t, 1, f.invoker.Calls())

	require.Len(t, f.archive.inserted, 1)
	assert.Equal(t, res.Question, f.archive.inserted[0].QuestionText)

	hist := f.history.Sample("Science")
	assert.Equal(t, []string{"Planets"}, hist.Subcategories)
	assert.Equal(t, []string{"Mars"}, hist.Entities)
}

func TestNextQuestion_RetriesAndTogglesTheme(t *testing.T) {
	f := newFixture(func(call int) (any, error) {
		if call < 3 {
			return "not json at all", nil
		}
		return validMCQ(), nil
	})
	req := sampleRequest()
	req.Theme = "Space"
	req.IncludeTheme = true

	res, err := f.svc.NextQuestion(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SourceGenerated, res.Source)
	assert.Equal(t, 3, f.invoker.Calls())

	require.Len(t, f.prompts.inputs, 3)
	assert.Equal(t, "Space", f.prompts.inputs[0].Theme)
	assert.Equal(t, "", f.prompts.inputs[1].Theme)
	assert.Equal(t, "Space", f.prompts.inputs[2].Theme)
}

func TestNextQuestion_DegradedPlaceholder(t *testing.T) {
	f := newFixture(func(int) (any, error) {
		return nil, fmt.Errorf("%w: boom", llm.ErrGenerationFailed)
	})
	req := sampleRequest()
	req.Language = "pl"

	res, err := f.svc.NextQuestion(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SourcePlaceholder, res.Source)
	assert.True(t, res.Degraded)
	assert.NotEmpty(t, res.Question)
	assert.Equal(t, 3, f.invoker.Calls())
	assert.Empty(t, f.archive.inserted)
}

func TestNextQuestion_UnsupportedModel(t *testing.T) {
	f := newFixture(alwaysValid)
	req := sampleRequest()
	req.Model = "unknown-model"

	_, err := f.svc.NextQuestion(context.Background(), req)
	assert.ErrorIs(t, err, llm.ErrUnsupportedModel)
	assert.Equal(t, 0, f.invoker.Calls())
	assert.Equal(t, 0, f.waiter.calls)
}

func TestNextQuestion_CanceledContextEndsRetries(t *testing.T) {
	f := newFixture(func(int) (any, error) { return "garbage", nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.svc.NextQuestion(ctx, sampleRequest())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, 1, f.invoker.Calls())
}

func TestGenerate_DuplicateArchiveIsIgnored(t *testing.T) {
	f := newFixture(alwaysValid)
	f.archive.err = fmt.Errorf("insert: %w", repository.ErrDuplicate)
	gen := NewGenerator(f.invoker, stubResolver{}, f.prompts, f.history, f.archive, zerolog.New(io.Discard))

	rec, err := gen.Generate(context.Background(), sampleRequest().Params, 1.2)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Question)
}

func TestGenerate_ValidationError(t *testing.T) {
	f := newFixture(func(int) (any, error) { return with(validMCQ(), "answer", "Pluto"), nil })
	gen := NewGenerator(f.invoker, stubResolver{}, f.prompts, f.history, f.archive, zerolog.New(io.Discard))

	_, err := gen.Generate(context.Background(), sampleRequest().Params, 1.2)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Reason, "not one of")
	assert.Empty(t, f.history.Sample("Science").Subcategories)
}

func TestGenerate_MergesClientHistory(t *testing.T) {
	f := newFixture(alwaysValid)
	f.history.Record("Science", "Chemistry", []string{"Curie"})
	gen := NewGenerator(f.invoker, stubResolver{}, f.prompts, f.history, f.archive, zerolog.New(io.Discard))

	p := sampleRequest().Params
	p.SubcategoryHistory = []string{"Chemistry", "Optics"}
	p.EntityHistory = []string{"Newton"}

	_, err := gen.Generate(context.Background(), p, 1.2)
	require.NoError(t, err)
	require.Len(t, f.prompts.inputs, 1)
	assert.ElementsMatch(t, []string{"Chemistry", "Optics"}, f.prompts.inputs[0].SubcategoryHistory)
	assert.ElementsMatch(t, []string{"Curie", "Newton"}, f.prompts.inputs[0].EntityHistory)
}
