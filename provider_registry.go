package notes

import (
	"fmt"
	"strings"
)

// ProviderID represents a unique generator provider identifier.
// Using a typed constant prevents typos and provides compile-time safety.
type ProviderID string

// Known provider identifiers
const (
	// ProviderAnthropic is Anthropic's Claude API
	ProviderAnthropic ProviderID = "anthropic"

	// ProviderOpenAI is OpenAI's API (or any OpenAI-compatible endpoint)
	ProviderOpenAI ProviderID = "openai"

	// ProviderLorem is the mock Lorem provider for testing
	ProviderLorem ProviderID = "lorem"
)

// String returns the string representation of the provider ID
func (p ProviderID) String() string {
	return string(p)
}

// IsValid returns true if the provider ID is a known provider
func (p ProviderID) IsValid() bool {
	switch p {
	case ProviderAnthropic, ProviderOpenAI, ProviderLorem:
		return true
	default:
		return false
	}
}

// ParseModelSpec splits a "provider/model" string such as
// "openai/gpt-4o-mini" or "anthropic/claude-haiku-4-5".
func ParseModelSpec(spec string) (ProviderID, string, error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(spec), "/")
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("model spec %q must be in 'provider/model' format: %w", spec, ErrInvalidModel)
	}

	id := ProviderID(strings.ToLower(provider))
	if !id.IsValid() {
		return "", "", &ModelError{
			Model:    model,
			Provider: provider,
			Reason:   "unknown provider (use anthropic, openai, or lorem)",
			Err:      ErrInvalidModel,
		}
	}
	return id, model, nil
}
