package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	greedyJSON = regexp.MustCompile(`(?s)\{.*\}`)
)

// Extract pulls a JSON object out of free-form model output. It returns a
// map[string]any on success and the untouched input otherwise; callers must
// be prepared for a string result.
func Extract(raw string) any {
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		if v, ok := decodeObject(m[1]); ok {
			return v
		}
	}

	if candidate, ok := balancedObject(raw); ok {
		if v, ok := decodeObject(candidate); ok {
			return v
		}
	}

	if span := greedyJSON.FindString(raw); span != "" {
		if v, ok := decodeObject(span); ok {
			return v
		}
	}

	return raw
}

func decodeObject(s string) (map[string]any, bool) {
	var v map[string]any
	if err := json.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// balancedObject returns the span from the first '{' to the brace that
// closes it. Braces inside JSON string literals are not counted.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
