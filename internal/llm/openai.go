package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider speaks the chat completions protocol. Pointed at a local
// LM Studio or Ollama base URL it serves self-hosted models.
type OpenAIProvider struct {
	client openai.Client
}

func NewOpenAIProvider(baseURL, apiKey string) (*OpenAIProvider, error) {
	if baseURL == "" {
		return nil, errors.New("openai base url is empty")
	}
	if apiKey == "" {
		// local servers ignore the key but the SDK insists on one
		apiKey = "local"
	}
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	)
	return &OpenAIProvider{client: client}, nil
}

func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		Temperature: openai.Float(float64(req.Temperature)),
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus(req.Model, apiErr.StatusCode, err)
		}
		return "", &ProviderError{Kind: KindTransient, Model: req.Model, Err: err}
	}
	if len(completion.Choices) == 0 {
		return "", &ProviderError{Kind: KindTransient, Model: req.Model, Err: ErrEmptyResponse}
	}

	text := completion.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", &ProviderError{Kind: KindTransient, Model: req.Model, Err: ErrEmptyResponse}
	}
	return text, nil
}
