package question

import (
	"strings"
)

// Game modes.
const (
	GameModeMCQ         = "mcq"
	GameModeShortAnswer = "short_answer"
)

// Knowledge levels.
const (
	LevelBasic        = "basic"
	LevelIntermediate = "intermediate"
	LevelExpert       = "expert"
)

// Sources reported alongside a served record.
const (
	SourceCache       = "cache"
	SourcePreload     = "preload"
	SourceArchive     = "archive"
	SourceGenerated   = "generated"
	SourcePlaceholder = "placeholder"
)

// Record is one validated trivia question.
type Record struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Options     []string `json:"options"`
	Explanation string   `json:"explanation"`
	Subcategory string   `json:"subcategory"`
	KeyEntities []string `json:"key_entities"`
	Model       string   `json:"model,omitempty"`
	Degraded    bool     `json:"degraded,omitempty"`
}

// Params scopes a generation request.
type Params struct {
	Category       string `json:"category" validate:"required,max=120"`
	Model          string `json:"model" validate:"required"`
	GameMode       string `json:"gameMode" validate:"required,oneof=mcq short_answer"`
	KnowledgeLevel string `json:"knowledgeLevel" validate:"required,oneof=basic intermediate expert"`
	Language       string `json:"language" validate:"required,min=2,max=8"`
	Theme          string `json:"theme" validate:"max=120"`
	IncludeTheme   bool   `json:"includeCategoryTheme"`

	// Client-side history, merged into the prompt only.
	SubcategoryHistory []string `json:"subcategoryHistory,omitempty"`
	EntityHistory      []string `json:"entityHistory,omitempty"`
}

// EffectiveTheme is the theme woven into prompts and cache keys.
func (p Params) EffectiveTheme() string {
	if !p.IncludeTheme {
		return ""
	}
	return strings.TrimSpace(p.Theme)
}

// CacheKey identifies the queue of ready records a request may draw from.
// Records are only interchangeable within the same language, mode, level
// and theme.
type CacheKey struct {
	Category       string
	Language       string
	GameMode       string
	KnowledgeLevel string
	Theme          string
}

func (p Params) CacheKey() CacheKey {
	return KeyFor(p, p.Category)
}

// KeyFor builds the cache key for category under the scope of p.
func KeyFor(p Params, category string) CacheKey {
	return CacheKey{
		Category:       strings.TrimSpace(category),
		Language:       p.Language,
		GameMode:       p.GameMode,
		KnowledgeLevel: p.KnowledgeLevel,
		Theme:          p.EffectiveTheme(),
	}
}

// Placeholder is served when every generation attempt failed. It renders
// as an error state without any special casing on the client.
func Placeholder(language string) Record {
	q, e := "Could not generate a question. Please try again.", "The question generator is temporarily unavailable."
	if language == "pl" {
		q, e = "Nie udało się wygenerować pytania. Spróbuj ponownie.", "Generator pytań jest chwilowo niedostępny."
	}
	return Record{
		Question:    q,
		Answer:      "",
		Options:     []string{},
		Explanation: e,
		KeyEntities: []string{},
		Degraded:    true,
	}
}
