package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedModel is returned before any network call for ids outside the allow-list.
	ErrUnsupportedModel = errors.New("unsupported model")
	// ErrGenerationFailed wraps the last provider error once every retry is spent.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrEmptyResponse is reported by providers that answered without any text.
	ErrEmptyResponse = errors.New("empty model response")
)

// Kind classifies a provider failure. It is decided once at the provider boundary.
type Kind int

const (
	KindTransient Kind = iota + 1
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// ProviderError is the only error shape providers hand back to the invoker.
type ProviderError struct {
	Kind   Kind
	Model  string
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Model, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Model, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindOf reports the classification of err. Unclassified errors count as transient.
func KindOf(err error) Kind {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindTransient
}

// IsRateLimited reports whether err signals provider throttling.
func IsRateLimited(err error) bool {
	return err != nil && KindOf(err) == KindRateLimited
}

func classifyStatus(model string, status int, err error) *ProviderError {
	kind := KindTransient
	if status == 429 {
		kind = KindRateLimited
	}
	return &ProviderError{Kind: kind, Model: model, Status: status, Err: err}
}
