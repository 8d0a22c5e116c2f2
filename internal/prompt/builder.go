// Package prompt composes model prompts from per-language template packs.
package prompt

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
)

//go:embed templates/*.json
var embedded embed.FS

// ErrUnknownLanguage is returned for languages without a template pack.
var ErrUnknownLanguage = errors.New("unknown prompt language")

const inspirationalWordCount = 2

type pack struct {
	Persona            string            `json:"persona"`
	ChainOfThought     string            `json:"chain_of_thought"`
	ContextHeader      string            `json:"context_header"`
	ContextLines       []string          `json:"context_lines"`
	Rules              []string          `json:"rules"`
	OutputFormat       string            `json:"output_format"`
	KnowledgeLevels    map[string]string `json:"knowledge_levels"`
	GameModes          map[string]string `json:"game_modes"`
	ThemeContext       string            `json:"theme_context"`
	NoTheme            string            `json:"no_theme"`
	NoHistory          string            `json:"no_history"`
	DefaultTheme       string            `json:"default_theme"`
	InspirationalWords []string          `json:"inspirational_words"`
	GenerateCategories string            `json:"generate_categories"`
	MutateCategory     string            `json:"mutate_category"`
	ExplainIncorrect   string            `json:"explain_incorrect"`
}

type compiled struct {
	raw          pack
	contextLines []*template.Template
	rules        []*template.Template
	themeContext *template.Template
	categories   *template.Template
	mutation     *template.Template
	explanation  *template.Template
}

// QuestionInput carries everything that shapes a question prompt. Theme is
// only woven in when non-empty.
type QuestionInput struct {
	Language           string
	Category           string
	KnowledgeLevel     string
	GameMode           string
	Theme              string
	SubcategoryHistory []string
	EntityHistory      []string
}

// Builder renders prompts. It is safe for concurrent use.
type Builder struct {
	packs map[string]*compiled
}

// NewBuilder loads the embedded packs. When overrideDir is set, any
// <lang>.json found there replaces or adds to the embedded pack set.
func NewBuilder(overrideDir string) (*Builder, error) {
	b := &Builder{packs: make(map[string]*compiled)}

	entries, err := fs.ReadDir(embedded, "templates")
	if err != nil {
		return nil, fmt.Errorf("read embedded templates: %w", err)
	}
	for _, e := range entries {
		data, err := embedded.ReadFile(path.Join("templates", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", e.Name(), err)
		}
		if err := b.load(strings.TrimSuffix(e.Name(), ".json"), data); err != nil {
			return nil, err
		}
	}

	if overrideDir == "" {
		return b, nil
	}
	files, err := filepath.Glob(filepath.Join(overrideDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list template overrides: %w", err)
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read template override %s: %w", f, err)
		}
		if err := b.load(strings.TrimSuffix(filepath.Base(f), ".json"), data); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *Builder) load(lang string, data []byte) error {
	var p pack
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode %s templates: %w", lang, err)
	}

	c := &compiled{raw: p}
	var err error
	parse := func(name, text string) *template.Template {
		if err != nil {
			return nil
		}
		var t *template.Template
		t, err = template.New(lang + "/" + name).Option("missingkey=error").Parse(text)
		return t
	}

	for i, line := range p.ContextLines {
		c.contextLines = append(c.contextLines, parse(fmt.Sprintf("context_%d", i), line))
	}
	for i, rule := range p.Rules {
		c.rules = append(c.rules, parse(fmt.Sprintf("rule_%d", i), rule))
	}
	c.themeContext = parse("theme_context", p.ThemeContext)
	c.categories = parse("generate_categories", p.GenerateCategories)
	c.mutation = parse("mutate_category", p.MutateCategory)
	c.explanation = parse("explain_incorrect", p.ExplainIncorrect)
	if err != nil {
		return fmt.Errorf("parse %s templates: %w", lang, err)
	}

	b.packs[lang] = c
	return nil
}

// Languages lists the available template languages.
func (b *Builder) Languages() []string {
	out := make([]string, 0, len(b.packs))
	for lang := range b.packs {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

func (b *Builder) pack(lang string) (*compiled, error) {
	c, ok := b.packs[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	return c, nil
}

// Question renders a question prompt. Context lines and rules are shuffled
// together so consecutive prompts differ even for identical input.
func (b *Builder) Question(in QuestionInput) (string, error) {
	c, err := b.pack(in.Language)
	if err != nil {
		return "", err
	}

	knowledge, ok := c.raw.KnowledgeLevels[in.KnowledgeLevel]
	if !ok {
		return "", fmt.Errorf("unknown knowledge level %q", in.KnowledgeLevel)
	}
	mode, ok := c.raw.GameModes[in.GameMode]
	if !ok {
		return "", fmt.Errorf("unknown game mode %q", in.GameMode)
	}

	themeContext := c.raw.NoTheme
	if strings.TrimSpace(in.Theme) != "" {
		if themeContext, err = render(c.themeContext, map[string]any{"Theme": in.Theme}); err != nil {
			return "", err
		}
	}

	data := map[string]any{
		"Category":           in.Category,
		"KnowledgePrompt":    knowledge,
		"GameModePrompt":     mode,
		"ThemeContext":       themeContext,
		"InspirationalWords": strings.Join(pickWords(c.raw.InspirationalWords, inspirationalWordCount), ", "),
		"SubcategoryHistory": quoteList(in.SubcategoryHistory, c.raw.NoHistory),
		"EntityHistory":      quoteList(in.EntityHistory, c.raw.NoHistory),
	}

	lines := make([]string, 0, len(c.contextLines)+len(c.rules))
	for _, t := range append(append([]*template.Template{}, c.contextLines...), c.rules...) {
		line, err := render(t, data)
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}
	rand.Shuffle(len(lines), func(i, j int) { lines[i], lines[j] = lines[j], lines[i] })

	return strings.Join([]string{
		c.raw.Persona,
		c.raw.ChainOfThought,
		c.raw.ContextHeader,
		strings.Join(lines, "\n"),
		c.raw.OutputFormat,
	}, "\n"), nil
}

// Categories renders the prompt asking for a fresh category board.
func (b *Builder) Categories(theme, lang string) (string, error) {
	c, err := b.pack(lang)
	if err != nil {
		return "", err
	}
	return render(c.categories, map[string]any{"Theme": theme})
}

// Mutation renders the prompt asking for replacement category names.
func (b *Builder) Mutation(oldCategory, theme string, existing []string, lang string) (string, error) {
	c, err := b.pack(lang)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(theme) == "" {
		theme = c.raw.DefaultTheme
	}
	return render(c.mutation, map[string]any{
		"OldCategory":        oldCategory,
		"Theme":              theme,
		"ExistingCategories": quoteList(existing, c.raw.NoHistory),
	})
}

// Explanation renders the prompt explaining a wrong answer.
func (b *Builder) Explanation(question, correct, player, lang string) (string, error) {
	c, err := b.pack(lang)
	if err != nil {
		return "", err
	}
	return render(c.explanation, map[string]any{
		"Question":      question,
		"CorrectAnswer": correct,
		"PlayerAnswer":  player,
	})
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func quoteList(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		quoted = append(quoted, fmt.Sprintf("%q", item))
	}
	return strings.Join(quoted, ", ")
}

func pickWords(pool []string, n int) []string {
	if len(pool) <= n {
		return append([]string{}, pool...)
	}
	idx := rand.Perm(len(pool))[:n]
	out := make([]string, 0, n)
	for _, i := range idx {
		out = append(out, pool[i])
	}
	return out
}
