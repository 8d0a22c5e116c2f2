package question

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// PartKind tags which variant an ExplanationPart holds.
type PartKind int

const (
	PartEmpty PartKind = iota
	PartText
	PartList
	PartMapping
)

// ExplanationPart is one of the explanation sub-fields a model returns.
// Models send these as a string, a list, or an object; all three are
// normalized to display text by String.
type ExplanationPart struct {
	Kind    PartKind
	Text    string
	List    []string
	Mapping map[string]string
}

// ParsePart converts a decoded JSON value into an ExplanationPart.
func ParsePart(v any) ExplanationPart {
	switch val := v.(type) {
	case nil:
		return ExplanationPart{}
	case string:
		if strings.TrimSpace(val) == "" {
			return ExplanationPart{}
		}
		return ExplanationPart{Kind: PartText, Text: val}
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			if s := scalarText(item); s != "" {
				items = append(items, s)
			}
		}
		if len(items) == 0 {
			return ExplanationPart{}
		}
		return ExplanationPart{Kind: PartList, List: items}
	case map[string]any:
		m := make(map[string]string, len(val))
		for k, item := range val {
			if s := scalarText(item); s != "" {
				m[k] = s
			}
		}
		if len(m) == 0 {
			return ExplanationPart{}
		}
		return ExplanationPart{Kind: PartMapping, Mapping: m}
	default:
		if s := scalarText(val); s != "" {
			return ExplanationPart{Kind: PartText, Text: s}
		}
		return ExplanationPart{}
	}
}

// String renders the part: text is trimmed, list items go one per line and
// mapping entries become "key: value" lines in key order.
func (p ExplanationPart) String() string {
	switch p.Kind {
	case PartText:
		return strings.TrimSpace(p.Text)
	case PartList:
		return strings.Join(p.List, "\n")
	case PartMapping:
		keys := make([]string, 0, len(p.Mapping))
		for k := range p.Mapping {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, k+": "+p.Mapping[k])
		}
		return strings.Join(lines, "\n")
	default:
		return ""
	}
}

// JoinExplanation concatenates the rendered parts with blank lines,
// skipping parts that render empty.
func JoinExplanation(parts ...ExplanationPart) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := p.String(); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n\n")
}

func scalarText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64, bool, json.Number:
		return fmt.Sprint(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(data)
	}
}
