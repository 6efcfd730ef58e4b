package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	notes "github.com/haowjy/meridian-notes-go"
)

// GenerateStream streams a response from Claude, calling onDelta for each
// text delta as it arrives.
func (p *Provider) GenerateStream(ctx context.Context, in *notes.GenerateInput, onDelta func(string) error) (*notes.GenerateOutput, error) {
	if err := p.validate(in); err != nil {
		return nil, err
	}

	stream := p.client.Messages.NewStreaming(ctx, buildMessageParams(in))
	defer stream.Close()

	// Accumulator for final message metadata
	message := anthropic.Message{}

	for stream.Next() {
		event := stream.Current()

		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("failed to accumulate message: %w", err)
		}

		if text, ok := textDelta(event); ok {
			if err := onDelta(text); err != nil {
				return nil, err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic streaming error: %w", err)
	}

	return convertFromAnthropicMessage(&message), nil
}

// textDelta extracts the text of a text_delta event. Thinking, signature,
// and tool input deltas are ignored.
func textDelta(event anthropic.MessageStreamEventUnion) (string, bool) {
	e, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
	if !ok || e.Delta.Type != "text_delta" {
		return "", false
	}
	return e.Delta.Text, true
}
