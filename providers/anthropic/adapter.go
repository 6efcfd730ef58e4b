package anthropic

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	notes "github.com/haowjy/meridian-notes-go"
)

// convertFromAnthropicMessage flattens a Claude message into a GenerateOutput.
// Only text blocks contribute to the output; other block types are counted in Extra.
func convertFromAnthropicMessage(message *anthropic.Message) *notes.GenerateOutput {
	var sb strings.Builder
	skipped := 0
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
			continue
		}
		skipped++
	}

	extra := map[string]any{}
	if message.ID != "" {
		extra["message_id"] = message.ID
	}
	if message.StopSequence != "" {
		extra["stop_sequence"] = message.StopSequence
	}
	if message.Usage.CacheCreationInputTokens > 0 {
		extra["cache_creation_input_tokens"] = int(message.Usage.CacheCreationInputTokens)
	}
	if message.Usage.CacheReadInputTokens > 0 {
		extra["cache_read_input_tokens"] = int(message.Usage.CacheReadInputTokens)
	}
	if skipped > 0 {
		extra["skipped_blocks"] = skipped
	}

	return &notes.GenerateOutput{
		Text:         sb.String(),
		Model:        string(message.Model),
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
		StopReason:   string(message.StopReason),
		Extra:        extra,
	}
}
