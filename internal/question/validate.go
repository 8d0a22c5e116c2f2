package question

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	minQuestionRunes = 10
	maxQuestionRunes = 300
	mcqOptionCount   = 4
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError carries the reason a generated record was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid generated record: " + e.Reason
}

// Validate judges whether raw, a value produced by llm.Extract, is a usable
// record for gameMode. It never panics; a false result always comes with a
// human readable reason.
func Validate(raw any, gameMode string) (bool, string) {
	obj, ok := raw.(map[string]any)
	if !ok || obj == nil {
		return false, fmt.Sprintf("record is not an object (got %T)", raw)
	}

	q, ok := obj["question"].(string)
	if !ok {
		return false, "question is missing or not a string"
	}
	n := utf8.RuneCountInString(strings.TrimSpace(q))
	if n <= minQuestionRunes || n >= maxQuestionRunes {
		return false, fmt.Sprintf("question length %d outside (%d, %d)", n, minQuestionRunes, maxQuestionRunes)
	}

	for _, field := range []string{"explanation_correct", "explanation_summary"} {
		if isEmpty(obj[field]) {
			return false, field + " is missing or empty"
		}
	}
	for _, field := range []string{"subcategory", "key_entities"} {
		if isEmpty(obj[field]) {
			return false, field + " is missing or empty"
		}
	}

	if gameMode != GameModeMCQ {
		return true, ""
	}
	return validateChoices(obj)
}

func validateChoices(obj map[string]any) (bool, string) {
	rawOptions, ok := obj["options"].([]any)
	if !ok {
		return false, "options is missing or not a list"
	}
	if len(rawOptions) != mcqOptionCount {
		return false, fmt.Sprintf("expected %d options, got %d", mcqOptionCount, len(rawOptions))
	}

	options := make([]string, 0, len(rawOptions))
	for i, o := range rawOptions {
		s, ok := o.(string)
		if !ok {
			return false, fmt.Sprintf("option %d is not a string", i)
		}
		options = append(options, strings.TrimSpace(s))
	}
	if err := validate.Var(options, "dive,required"); err != nil {
		return false, "options contain an empty entry"
	}
	if err := validate.Var(options, "unique"); err != nil {
		return false, "options are not distinct"
	}

	answer, ok := obj["answer"].(string)
	if !ok || strings.TrimSpace(answer) == "" {
		return false, "answer is missing or empty"
	}
	answer = strings.TrimSpace(answer)
	for _, o := range options {
		if o == answer {
			return true, ""
		}
	}
	return false, fmt.Sprintf("answer %q is not one of the options", answer)
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}

// Decode converts a validated raw record into a Record, folding the
// explanation sub-fields into one display string.
func Decode(obj map[string]any) Record {
	rec := Record{
		Question:    strings.TrimSpace(stringField(obj, "question")),
		Answer:      strings.TrimSpace(stringField(obj, "answer")),
		Subcategory: strings.TrimSpace(scalarText(obj["subcategory"])),
		Options:     stringList(obj["options"]),
		KeyEntities: stringList(obj["key_entities"]),
		Explanation: JoinExplanation(
			ParsePart(obj["explanation_correct"]),
			ParsePart(obj["explanation_distractors"]),
			ParsePart(obj["explanation_summary"]),
		),
	}
	return rec
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// stringList keeps insertion order and drops empty or repeated entries.
func stringList(v any) []string {
	out := []string{}
	seen := map[string]struct{}{}
	add := func(s string) {
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	switch val := v.(type) {
	case []any:
		for _, item := range val {
			add(scalarText(item))
		}
	case string:
		add(strings.TrimSpace(val))
	}
	return out
}
