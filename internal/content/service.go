// Package content produces the non-question text a game needs: the category
// board, replacement categories and explanations of wrong answers.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/trivia-forge/internal/logging"
)

const (
	BoardSize          = 6
	defaultTemperature = 1.0
	rawLogLimit        = 400
)

var (
	ErrNotEnoughCategories = errors.New("model returned too few categories")
	ErrNoChoices           = errors.New("model returned no replacement categories")
	ErrUnexpectedResponse  = errors.New("unexpected model response")
)

// Invoker calls a model and returns the extracted value (object or raw text).
type Invoker interface {
	Invoke(ctx context.Context, prompt, modelID string, temperature float32) (any, error)
}

// ModelResolver maps a selector such as "random-en" to a model id.
type ModelResolver interface {
	Resolve(selector string) (string, error)
}

// PromptBuilder renders the content prompts.
type PromptBuilder interface {
	Categories(theme, lang string) (string, error)
	Mutation(oldCategory, theme string, existing []string, lang string) (string, error)
	Explanation(question, correct, player, lang string) (string, error)
}

type CategoriesRequest struct {
	Theme    string `json:"theme" validate:"required,max=200"`
	Language string `json:"language" validate:"required,min=2,max=8"`
	Model    string `json:"model" validate:"required"`
}

type MutationRequest struct {
	OldCategory string   `json:"old_category" validate:"required,max=120"`
	Theme       string   `json:"theme" validate:"max=200"`
	Existing    []string `json:"existing_categories" validate:"max=32,dive,max=120"`
	Language    string   `json:"language" validate:"required,min=2,max=8"`
	Model       string   `json:"model" validate:"required"`
}

type ExplanationRequest struct {
	Question      string `json:"question" validate:"required,max=600"`
	CorrectAnswer string `json:"correct_answer" validate:"required,max=300"`
	PlayerAnswer  string `json:"player_answer" validate:"max=300"`
	Language      string `json:"language" validate:"required,min=2,max=8"`
	Model         string `json:"model" validate:"required"`
}

// Explanation is the friendly note shown after a wrong answer.
type Explanation struct {
	Text string `json:"explanation"`
}

type Service struct {
	invoker     Invoker
	models      ModelResolver
	prompts     PromptBuilder
	temperature float32
	logger      zerolog.Logger
}

func NewService(invoker Invoker, models ModelResolver, prompts PromptBuilder, temperature float32, logger zerolog.Logger) *Service {
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	return &Service{
		invoker:     invoker,
		models:      models,
		prompts:     prompts,
		temperature: temperature,
		logger:      logger.With().Str("component", "content_service").Logger(),
	}
}

// GenerateCategories returns exactly BoardSize category names for theme.
func (s *Service) GenerateCategories(ctx context.Context, req CategoriesRequest) ([]string, error) {
	prompt, err := s.prompts.Categories(req.Theme, req.Language)
	if err != nil {
		return nil, err
	}
	raw, model, err := s.invoke(ctx, prompt, req.Model)
	if err != nil {
		return nil, err
	}

	categories := stringsAt(raw, "categories")
	if len(categories) < BoardSize {
		s.logger.Warn().
			Str("model", model).
			Str("theme", req.Theme).
			Int("got", len(categories)).
			Str("raw", logging.Truncate(fmt.Sprint(raw), rawLogLimit)).
			Msg("category board too small")
		return nil, fmt.Errorf("%w: got %d, need %d", ErrNotEnoughCategories, len(categories), BoardSize)
	}
	return categories[:BoardSize], nil
}

// MutateCategory proposes replacements for one category on the board.
func (s *Service) MutateCategory(ctx context.Context, req MutationRequest) ([]string, error) {
	prompt, err := s.prompts.Mutation(req.OldCategory, req.Theme, req.Existing, req.Language)
	if err != nil {
		return nil, err
	}
	raw, model, err := s.invoke(ctx, prompt, req.Model)
	if err != nil {
		return nil, err
	}

	choices := stringsAt(raw, "choices")
	if len(choices) == 0 {
		s.logger.Warn().
			Str("model", model).
			Str("old_category", req.OldCategory).
			Str("raw", logging.Truncate(fmt.Sprint(raw), rawLogLimit)).
			Msg("mutation returned no choices")
		return nil, ErrNoChoices
	}
	return choices, nil
}

// ExplainIncorrect explains why the player's answer was wrong. Models that
// answer in plain text instead of JSON have the whole text used as the
// explanation.
func (s *Service) ExplainIncorrect(ctx context.Context, req ExplanationRequest) (Explanation, error) {
	prompt, err := s.prompts.Explanation(req.Question, req.CorrectAnswer, req.PlayerAnswer, req.Language)
	if err != nil {
		return Explanation{}, err
	}
	raw, model, err := s.invoke(ctx, prompt, req.Model)
	if err != nil {
		return Explanation{}, err
	}

	switch v := raw.(type) {
	case string:
		if text := strings.TrimSpace(v); text != "" {
			s.logger.Debug().Str("model", model).Msg("wrapping raw text explanation")
			return Explanation{Text: text}, nil
		}
	case map[string]any:
		if text, ok := v["explanation"].(string); ok && strings.TrimSpace(text) != "" {
			return Explanation{Text: strings.TrimSpace(text)}, nil
		}
	}
	s.logger.Warn().
		Str("model", model).
		Str("raw", logging.Truncate(fmt.Sprint(raw), rawLogLimit)).
		Msg("explanation has unexpected shape")
	return Explanation{}, ErrUnexpectedResponse
}

func (s *Service) invoke(ctx context.Context, prompt, selector string) (any, string, error) {
	model, err := s.models.Resolve(selector)
	if err != nil {
		return nil, "", err
	}
	raw, err := s.invoker.Invoke(ctx, prompt, model, s.temperature)
	if err != nil {
		return nil, model, err
	}
	return raw, model, nil
}

// stringsAt reads obj[key] as a list of non-empty trimmed strings.
func stringsAt(raw any, key string) []string {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	items, ok := obj[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
