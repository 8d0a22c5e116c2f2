package question

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/trivia-forge/internal/db/repository"
	sqlcgen "github.com/gokatarajesh/trivia-forge/internal/db/sqlc"
	"github.com/gokatarajesh/trivia-forge/internal/history"
	"github.com/gokatarajesh/trivia-forge/internal/logging"
	"github.com/gokatarajesh/trivia-forge/internal/prompt"
)

const rawLogLimit = 400

// Invoker calls a model and returns the extracted value (object or raw text).
type Invoker interface {
	Invoke(ctx context.Context, prompt, modelID string, temperature float32) (any, error)
}

// ModelResolver maps a model selector such as "random-pl" to a model id.
type ModelResolver interface {
	Resolve(selector string) (string, error)
}

// PromptBuilder renders question prompts.
type PromptBuilder interface {
	Question(in prompt.QuestionInput) (string, error)
}

// HistoryStore is the per-category repetition memory.
type HistoryStore interface {
	Record(category, subcategory string, entities []string)
	Sample(category string) history.CategoryHistory
}

type questionArchive interface {
	Insert(ctx context.Context, params sqlcgen.InsertGeneratedQuestionParams) error
}

// Generator runs a single generation attempt: prompt, invoke, validate,
// then archive and remember the result.
type Generator struct {
	invoker Invoker
	models  ModelResolver
	prompts PromptBuilder
	history HistoryStore
	archive questionArchive
	logger  zerolog.Logger
}

func NewGenerator(invoker Invoker, models ModelResolver, prompts PromptBuilder, hist HistoryStore, archive questionArchive, logger zerolog.Logger) *Generator {
	return &Generator{
		invoker: invoker,
		models:  models,
		prompts: prompts,
		history: hist,
		archive: archive,
		logger:  logger.With().Str("component", "question_generator").Logger(),
	}
}

// ResolveModel validates a selector without generating anything.
func (g *Generator) ResolveModel(selector string) (string, error) {
	return g.models.Resolve(selector)
}

// Generate produces one validated record for p. A *ValidationError is
// returned when the model answered with an unusable record.
func (g *Generator) Generate(ctx context.Context, p Params, temperature float32) (Record, error) {
	model, err := g.models.Resolve(p.Model)
	if err != nil {
		return Record{}, err
	}

	hist := g.history.Sample(p.Category)
	text, err := g.prompts.Question(prompt.QuestionInput{
		Language:           p.Language,
		Category:           p.Category,
		KnowledgeLevel:     p.KnowledgeLevel,
		GameMode:           p.GameMode,
		Theme:              p.EffectiveTheme(),
		SubcategoryHistory: mergeUnique(hist.Subcategories, p.SubcategoryHistory),
		EntityHistory:      mergeUnique(hist.Entities, p.EntityHistory),
	})
	if err != nil {
		return Record{}, fmt.Errorf("build prompt: %w", err)
	}

	raw, err := g.invoker.Invoke(ctx, text, model, temperature)
	if err != nil {
		return Record{}, err
	}

	if ok, reason := Validate(raw, p.GameMode); !ok {
		g.logger.Warn().
			Str("category", p.Category).
			Str("model", model).
			Str("game_mode", p.GameMode).
			Str("reason", reason).
			Str("raw", logging.Truncate(rawString(raw), rawLogLimit)).
			Msg("generated record rejected")
		return Record{}, &ValidationError{Reason: reason}
	}

	rec := Decode(raw.(map[string]any))
	rec.ID = uuid.NewString()
	rec.Model = model

	g.persist(ctx, rec, p)
	g.history.Record(p.Category, rec.Subcategory, rec.KeyEntities)
	return rec, nil
}

func (g *Generator) persist(ctx context.Context, rec Record, p Params) {
	if g.archive == nil {
		return
	}
	options, _ := json.Marshal(rec.Options)
	entities, _ := json.Marshal(rec.KeyEntities)

	err := g.archive.Insert(ctx, sqlcgen.InsertGeneratedQuestionParams{
		Model:          rec.Model,
		Language:       p.Language,
		Category:       p.Category,
		KnowledgeLevel: p.KnowledgeLevel,
		GameMode:       p.GameMode,
		Theme:          pgtype.Text{String: p.EffectiveTheme(), Valid: p.EffectiveTheme() != ""},
		QuestionText:   rec.Question,
		AnswerText:     rec.Answer,
		Explanation:    pgtype.Text{String: rec.Explanation, Valid: rec.Explanation != ""},
		Subcategory:    pgtype.Text{String: rec.Subcategory, Valid: rec.Subcategory != ""},
		KeyEntities:    entities,
		Options:        options,
	})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrDuplicate):
		g.logger.Info().Str("category", p.Category).Msg("question already archived")
	default:
		g.logger.Error().Err(err).Str("category", p.Category).Msg("archive question failed")
	}
}

func rawString(raw any) string {
	if s, ok := raw.(string); ok {
		return s
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprint(raw)
	}
	return string(data)
}

func mergeUnique(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}
	seen := make(map[string]struct{}, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			if _, dup := seen[s]; dup || s == "" {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
