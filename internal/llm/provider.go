package llm

import "context"

// Request is one completion call against a concrete model.
type Request struct {
	Model       string
	Prompt      string
	Temperature float32
	// JSON asks the provider for a JSON-only response when the model supports it.
	JSON bool
}

// Provider issues a single completion call and returns the raw text.
// Failures must be returned as *ProviderError so the invoker can tell
// throttling apart from other faults.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}
