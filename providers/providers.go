// Package providers builds a generator from a "provider/model" spec.
package providers

import (
	"fmt"
	"log/slog"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	notes "github.com/haowjy/meridian-notes-go"
	"github.com/haowjy/meridian-notes-go/providers/anthropic"
	"github.com/haowjy/meridian-notes-go/providers/lorem"
	"github.com/haowjy/meridian-notes-go/providers/openai"
)

// Config holds what a generator needs beyond its model name.
type Config struct {
	APIKey  string
	BaseURL string // anthropic and openai only; empty uses the vendor default
	Logger  *slog.Logger
}

// New parses spec ("openai/gpt-4o-mini", "lorem/lorem-fast", ...) and returns
// the generator with the model name it should be called with.
func New(spec string, cfg Config) (notes.Generator, string, error) {
	id, model, err := notes.ParseModelSpec(spec)
	if err != nil {
		return nil, "", err
	}

	var gen notes.Generator
	switch id {
	case notes.ProviderAnthropic:
		var opts []anthropicopt.RequestOption
		if cfg.BaseURL != "" {
			opts = append(opts, anthropicopt.WithBaseURL(cfg.BaseURL))
		}
		gen, err = anthropic.NewProvider(cfg.APIKey, opts...)
	case notes.ProviderOpenAI:
		gen, err = openai.NewProvider(cfg.APIKey, cfg.BaseURL)
	case notes.ProviderLorem:
		gen = lorem.NewProvider(cfg.Logger)
	default:
		return nil, "", fmt.Errorf("provider %q: %w", id, notes.ErrInvalidModel)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%s provider: %w", id, err)
	}

	if !gen.SupportsModel(model) {
		return nil, "", &notes.ModelError{
			Model:    model,
			Provider: id.String(),
			Reason:   "model not supported by provider",
			Err:      notes.ErrInvalidModel,
		}
	}
	return gen, model, nil
}
