package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{
			name: "fenced block",
			raw:  "Here you go:\n```json\n{\"question\": \"Q?\", \"n\": 1}\n```\nEnjoy!",
			want: map[string]any{"question": "Q?", "n": float64(1)},
		},
		{
			name: "first balanced object wins over trailing garbage",
			raw:  `Sure! {"a": {"b": "c"}} and then {"other": true}`,
			want: map[string]any{"a": map[string]any{"b": "c"}},
		},
		{
			name: "braces inside strings are ignored",
			raw:  `prefix {"text": "a } tricky { value"} suffix`,
			want: map[string]any{"text": "a } tricky { value"},
		},
		{
			name: "no braces returns raw text",
			raw:  "I cannot answer that.",
			want: "I cannot answer that.",
		},
		{
			name: "unbalanced object returns raw text",
			raw:  `{"question": "open`,
			want: `{"question": "open`,
		},
		{
			name: "empty input",
			raw:  "",
			want: "",
		},
		{
			name: "broken fence with nothing else parseable degrades to raw",
			raw:  "```json\n{not json}\n``` later",
			want: "```json\n{not json}\n``` later",
		},
		{
			name: "stray closing brace before the object",
			raw:  `note: } {"ok": "yes"}`,
			want: map[string]any{"ok": "yes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.raw))
		})
	}
}

func TestExtractIsIdempotentOnValidJSON(t *testing.T) {
	record := map[string]any{
		"question":            "Which planet has the shortest day?",
		"answer":              "Jupiter",
		"options":             []any{"Jupiter", "Saturn", "Earth", "Mars"},
		"explanation_correct": "Jupiter rotates in under ten hours.",
		"explanation_summary": map[string]any{"fact": "fast spin"},
		"subcategory":         "Planets",
		"key_entities":        []any{"Jupiter"},
	}
	data, err := json.Marshal(record)
	require.NoError(t, err)

	assert.Equal(t, record, Extract(string(data)))
}

func TestExtractNeverPanics(t *testing.T) {
	inputs := []string{"{", "}", "{{{{", "}}}}{", "\"{\"", "```json```", "```json\n{\n```", "\x00{\x01}"}
	for _, in := range inputs {
		assert.NotPanics(t, func() { _ = Extract(in) }, in)
	}
}
