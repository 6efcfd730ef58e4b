package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	notes "github.com/haowjy/meridian-notes-go"
)

// DefaultBaseURL is the OpenAI API endpoint. Any OpenAI-compatible server
// (vLLM, Ollama, OpenRouter, ...) can be used instead.
const DefaultBaseURL = "https://api.openai.com/v1"

// Provider generates prediction output with OpenAI-compatible chat models.
type Provider struct {
	client *openai.Client
}

var _ notes.StreamGenerator = (*Provider)(nil)

// NewProvider creates a provider for any OpenAI-compatible API.
// An empty baseURL uses DefaultBaseURL.
func NewProvider(apiKey, baseURL string, opts ...option.RequestOption) (*Provider, error) {
	if apiKey == "" {
		return nil, notes.ErrInvalidAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := openai.NewClient(append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
	}, opts...)...)

	return &Provider{
		client: &client,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() notes.ProviderID {
	return notes.ProviderOpenAI
}

// SupportsModel accepts any non-empty model name; compatible servers use
// their own naming.
func (p *Provider) SupportsModel(model string) bool {
	return model != ""
}

// Generate returns a complete chat completion.
func (p *Provider) Generate(ctx context.Context, in *notes.GenerateInput) (*notes.GenerateOutput, error) {
	if err := p.validate(in); err != nil {
		return nil, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, buildChatParams(in))
	if err != nil {
		return nil, fmt.Errorf("openai API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai API returned no choices")
	}

	choice := resp.Choices[0]
	return &notes.GenerateOutput{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		StopReason:   string(choice.FinishReason),
		Extra:        map[string]any{"completion_id": resp.ID},
	}, nil
}

func (p *Provider) validate(in *notes.GenerateInput) error {
	if !p.SupportsModel(in.Model) {
		return &notes.ModelError{
			Model:    in.Model,
			Provider: p.Name().String(),
			Reason:   "model name must not be empty",
			Err:      notes.ErrInvalidModel,
		}
	}
	return nil
}

// buildChatParams converts a GenerateInput into a system + user message pair.
func buildChatParams(in *notes.GenerateInput) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(in.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(notes.SystemPrompt),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(in.BuildPrompt()),
					},
				},
			},
		},
	}

	if in.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(in.MaxTokens))
	}
	if in.Temperature > 0 {
		params.Temperature = openai.Float(in.Temperature)
	}

	return params
}
