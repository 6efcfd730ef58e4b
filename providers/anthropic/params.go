package anthropic

import (
	"github.com/anthropics/anthropic-sdk-go"

	notes "github.com/haowjy/meridian-notes-go"
)

// defaultMaxTokens is used when GenerateInput.MaxTokens is unset.
const defaultMaxTokens = 1024

// buildMessageParams constructs Anthropic API parameters from a GenerateInput.
// Shared between Generate and GenerateStream.
func buildMessageParams(in *notes.GenerateInput) anthropic.MessageNewParams {
	maxTokens := int64(in.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	apiParams := anthropic.MessageNewParams{
		Model:     anthropic.Model(in.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(in.BuildPrompt())),
		},
		System: []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: notes.SystemPrompt,
			},
		},
	}

	if in.Temperature > 0 {
		apiParams.Temperature = anthropic.Float(in.Temperature)
	}

	return apiParams
}
