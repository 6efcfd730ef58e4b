package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	notes "github.com/haowjy/meridian-notes-go"
)

// GenerateStream streams a chat completion, calling onDelta for each
// content fragment.
func (p *Provider) GenerateStream(ctx context.Context, in *notes.GenerateInput, onDelta func(string) error) (*notes.GenerateOutput, error) {
	if err := p.validate(in); err != nil {
		return nil, err
	}

	params := buildChatParams(in)
	// Request usage in streaming response
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	out := &notes.GenerateOutput{Model: in.Model, Extra: map[string]any{}}
	var text strings.Builder

	for stream.Next() {
		chunk := stream.Current()

		// Usage arrives on the final chunk
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			out.InputTokens = int(chunk.Usage.PromptTokens)
			out.OutputTokens = int(chunk.Usage.CompletionTokens)
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		if chunk.ID != "" {
			out.Extra["completion_id"] = chunk.ID
		}

		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			text.WriteString(choice.Delta.Content)
			if err := onDelta(choice.Delta.Content); err != nil {
				return nil, err
			}
		}
		if choice.FinishReason != "" {
			out.StopReason = string(choice.FinishReason)
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai streaming error: %w", err)
	}

	out.Text = text.String()
	return out, nil
}
