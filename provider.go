package notes

import (
	"context"
	"strings"
)

// Predictor is the caller-facing prediction API.
//
// Types used by this interface:
//   - PredictRequest: defined in request.go
//   - PredictResponse: defined in response.go
//   - StreamCallbacks: defined in streaming.go
type Predictor interface {
	// Predict runs a blocking prediction. The backend returns the full
	// response shape directly. Used on its own or as the streaming fallback.
	Predict(ctx context.Context, req *PredictRequest) (*PredictResponse, error)

	// PredictStream runs a streaming prediction, invoking callbacks as events
	// arrive, and returns the folded response when the stream ends.
	//
	// Usage:
	//   resp, err := predictor.PredictStream(ctx, req, notes.StreamCallbacks{
	//     OnChunk:    func(delta string) { fmt.Print(delta) },
	//     OnMetadata: func(meta notes.Metadata) { show(meta.Memories) },
	//   })
	PredictStream(ctx context.Context, req *PredictRequest, callbacks StreamCallbacks) (*PredictResponse, error)
}

// Generator produces the output text for a prediction on the server side.
// Implementations live under providers/.
type Generator interface {
	// Generate returns the complete output (blocking).
	Generate(ctx context.Context, in *GenerateInput) (*GenerateOutput, error)

	// Name returns the provider name (e.g., "anthropic", "openai", "lorem")
	Name() ProviderID

	// SupportsModel returns true if the provider supports the given model.
	SupportsModel(model string) bool
}

// StreamGenerator is implemented by generators that can emit output
// incrementally. onDelta is called for each fragment in order; returning an
// error from it aborts generation.
type StreamGenerator interface {
	Generator
	GenerateStream(ctx context.Context, in *GenerateInput, onDelta func(delta string) error) (*GenerateOutput, error)
}

// GenerateInput is the context handed to a generator.
type GenerateInput struct {
	// Model is the provider-specific model name (without the "provider/" prefix)
	Model string

	// Prompt is the user's note context
	Prompt string

	// Memories and Retrievals are plain texts merged into the prompt
	Memories   []string
	Retrievals []string

	// Temperature is passed through to providers that support it
	Temperature float64

	// MaxTokens caps the output length (0 = provider default)
	MaxTokens int
}

// GenerateOutput is what a generator returns.
type GenerateOutput struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	StopReason   string

	// Extra contains provider-specific data merged into raw_program_output
	Extra map[string]any
}

// RawProgramOutput flattens the output into the raw_program_output map.
func (o *GenerateOutput) RawProgramOutput(provider ProviderID) map[string]any {
	raw := map[string]any{
		"response":      o.Text,
		"provider":      provider.String(),
		"model":         o.Model,
		"input_tokens":  o.InputTokens,
		"output_tokens": o.OutputTokens,
		"stop_reason":   o.StopReason,
	}
	for k, v := range o.Extra {
		raw[k] = v
	}
	return raw
}

// SystemPrompt is sent to chat-style generators ahead of the merged context.
const SystemPrompt = "You are a writing assistant for a personal knowledge base. " +
	"Answer using the note context first, then the recalled memories and related notes. " +
	"Be concise and keep the user's terminology."

// BuildPrompt merges the note context with memories and retrievals.
// Non-empty sections are separated by a horizontal rule; items within a
// section by a blank line.
func (in *GenerateInput) BuildPrompt() string {
	sections := []string{in.Prompt}
	if len(in.Memories) > 0 {
		sections = append(sections, strings.Join(in.Memories, "\n\n"))
	}
	if len(in.Retrievals) > 0 {
		sections = append(sections, strings.Join(in.Retrievals, "\n\n"))
	}
	return strings.Join(sections, "\n\n---\n\n")
}
