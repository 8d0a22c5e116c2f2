package llm

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	// RandomPrefix selects a random model eligible for the given language,
	// e.g. "random-pl".
	RandomPrefix = "random-"
)

// ModelSpec describes one allow-listed model.
type ModelSpec struct {
	ID        string   `json:"id"`
	Provider  string   `json:"provider"`
	Languages []string `json:"languages"`
	JSONMode  bool     `json:"json_mode"`
}

// Catalog is the model allow-list. It is read-only after construction.
type Catalog struct {
	models map[string]ModelSpec
	order  []string
}

func NewCatalog(specs ...ModelSpec) *Catalog {
	c := &Catalog{models: make(map[string]ModelSpec, len(specs))}
	for _, spec := range specs {
		spec.ID = strings.TrimSpace(spec.ID)
		if spec.ID == "" {
			continue
		}
		if _, dup := c.models[spec.ID]; !dup {
			c.order = append(c.order, spec.ID)
		}
		c.models[spec.ID] = spec
	}
	return c
}

// DefaultSpec fills in JSON mode for a model id. Gemma models reject the
// JSON response MIME type so they are prompted for JSON in plain text.
func DefaultSpec(id, provider string, languages []string) ModelSpec {
	return ModelSpec{
		ID:        id,
		Provider:  provider,
		Languages: languages,
		JSONMode:  !strings.HasPrefix(strings.ToLower(id), "gemma"),
	}
}

// Lookup returns the spec for an exact model id.
func (c *Catalog) Lookup(id string) (ModelSpec, bool) {
	spec, ok := c.models[id]
	return spec, ok
}

// Resolve turns a model selector into a concrete model id. Selectors are
// either an allow-listed id or RandomPrefix followed by a language code.
func (c *Catalog) Resolve(selector string) (string, error) {
	selector = strings.TrimSpace(selector)
	if _, ok := c.models[selector]; ok {
		return selector, nil
	}
	if lang, ok := strings.CutPrefix(selector, RandomPrefix); ok && lang != "" {
		eligible := c.ForLanguage(lang)
		if len(eligible) == 0 {
			return "", fmt.Errorf("%w: no model for language %q", ErrUnsupportedModel, lang)
		}
		return eligible[rand.IntN(len(eligible))].ID, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedModel, selector)
}

// ForLanguage lists models tagged with lang, in registration order.
func (c *Catalog) ForLanguage(lang string) []ModelSpec {
	var out []ModelSpec
	for _, id := range c.order {
		spec := c.models[id]
		for _, l := range spec.Languages {
			if strings.EqualFold(l, lang) {
				out = append(out, spec)
				break
			}
		}
	}
	return out
}

// All lists every model sorted by id.
func (c *Catalog) All() []ModelSpec {
	out := make([]ModelSpec, 0, len(c.models))
	for _, spec := range c.models {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
