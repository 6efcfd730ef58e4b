package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	notes "github.com/haowjy/meridian-notes-go"
)

// Provider generates prediction output with Anthropic (Claude) models.
type Provider struct {
	client *anthropic.Client
}

var _ notes.StreamGenerator = (*Provider)(nil)

// NewProvider creates a new Anthropic provider with the given API key.
// Extra request options (e.g. option.WithBaseURL) are passed to the SDK client.
func NewProvider(apiKey string, opts ...option.RequestOption) (*Provider, error) {
	if apiKey == "" {
		return nil, notes.ErrInvalidAPIKey
	}

	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)

	return &Provider{
		client: &client,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() notes.ProviderID {
	return notes.ProviderAnthropic
}

// SupportsModel returns true if this provider supports the given model.
// Anthropic models start with "claude-"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// Generate returns a complete response from Claude.
func (p *Provider) Generate(ctx context.Context, in *notes.GenerateInput) (*notes.GenerateOutput, error) {
	if err := p.validate(in); err != nil {
		return nil, err
	}

	message, err := p.client.Messages.New(ctx, buildMessageParams(in))
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	return convertFromAnthropicMessage(message), nil
}

func (p *Provider) validate(in *notes.GenerateInput) error {
	if !p.SupportsModel(in.Model) {
		return &notes.ModelError{
			Model:    in.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by Anthropic (must start with 'claude-')",
			Err:      notes.ErrInvalidModel,
		}
	}
	return nil
}
