package lorem

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	loremgen "github.com/bozaro/golorem"

	notes "github.com/haowjy/meridian-notes-go"
)

// defaultWords is the output length when GenerateInput.MaxTokens is unset.
const defaultWords = 60

// Provider is a mock generator that produces lorem ipsum text.
// Used for testing and development without requiring real API keys.
type Provider struct {
	mu        sync.Mutex // golorem's generator is not safe for concurrent use
	generator *loremgen.Lorem
	logger    *slog.Logger
}

var _ notes.StreamGenerator = (*Provider)(nil)

// NewProvider creates a new lorem ipsum provider.
func NewProvider(logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		generator: loremgen.New(),
		logger:    logger,
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() notes.ProviderID {
	return notes.ProviderLorem
}

// SupportsModel returns true if the model name starts with "lorem-".
// Example models: "lorem-fast", "lorem-slow", "lorem-instant", "lorem-cutoff"
func (p *Provider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// Generate returns a complete lorem ipsum response after a model-dependent
// delay that simulates a blocking API call.
func (p *Provider) Generate(ctx context.Context, in *notes.GenerateInput) (*notes.GenerateOutput, error) {
	if err := p.validate(in); err != nil {
		return nil, err
	}

	words, cutoff := p.plan(in)
	if err := sleep(ctx, getStreamDelay(in.Model)*10); err != nil {
		return nil, err
	}

	return p.output(in, strings.Join(words, " "), len(words), cutoff), nil
}

// GenerateStream emits one word per delta, paced by the model name.
func (p *Provider) GenerateStream(ctx context.Context, in *notes.GenerateInput, onDelta func(string) error) (*notes.GenerateOutput, error) {
	if err := p.validate(in); err != nil {
		return nil, err
	}

	words, cutoff := p.plan(in)
	delay := getStreamDelay(in.Model)

	p.logger.Debug("lorem stream started",
		slog.String("model", in.Model),
		slog.Int("words", len(words)),
		slog.Bool("cutoff", cutoff))

	var sb strings.Builder
	for i, word := range words {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		delta := word
		if i < len(words)-1 {
			delta += " "
		}
		if err := onDelta(delta); err != nil {
			return nil, err
		}
		sb.WriteString(delta)

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return p.output(in, sb.String(), len(words), cutoff), nil
}

func (p *Provider) validate(in *notes.GenerateInput) error {
	if !p.SupportsModel(in.Model) {
		return &notes.ModelError{
			Model:    in.Model,
			Provider: p.Name().String(),
			Reason:   "model not supported by Lorem provider (must start with 'lorem-')",
			Err:      notes.ErrInvalidModel,
		}
	}
	return nil
}

// plan picks the words to emit. Cutoff models generate 50% more than the
// budget and are truncated at it.
func (p *Provider) plan(in *notes.GenerateInput) ([]string, bool) {
	budget := in.MaxTokens
	if budget <= 0 {
		budget = defaultWords
	}

	target := budget
	cutoffModel := isCutoffModel(in.Model)
	if cutoffModel {
		target = budget + budget/2
	}

	words := strings.Fields(p.generateTextWords(target))
	if len(words) > target {
		words = words[:target]
	}
	if cutoffModel && len(words) > budget {
		return words[:budget], true
	}
	return words, false
}

func (p *Provider) output(in *notes.GenerateInput, text string, outputTokens int, cutoff bool) *notes.GenerateOutput {
	stopReason := "end_turn"
	if cutoff {
		stopReason = "max_tokens"
	}
	return &notes.GenerateOutput{
		Text:         text,
		Model:        in.Model,
		InputTokens:  len(strings.Fields(in.BuildPrompt())), // Word count as proxy
		OutputTokens: outputTokens,
		StopReason:   stopReason,
		Extra:        map[string]any{"mock": true},
	}
}

// getStreamDelay returns the delay between words based on the model name.
// - lorem-slow: 2 words/second (500ms per word)
// - lorem-fast: 30 words/second (33ms per word)
// - lorem-instant: no delay
// - default: 10 words/second
func getStreamDelay(model string) time.Duration {
	switch {
	case strings.Contains(model, "instant"):
		return 0
	case strings.Contains(model, "slow"):
		return 500 * time.Millisecond
	case strings.Contains(model, "fast"):
		return 33 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

// isCutoffModel returns true if the model should simulate max_tokens cutoff.
func isCutoffModel(model string) bool {
	return strings.Contains(model, "cutoff") || strings.Contains(model, "small")
}

// generateTextWords generates lorem ipsum text with approximately targetWords words.
func (p *Provider) generateTextWords(targetWords int) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sb strings.Builder
	wordCount := 0
	for wordCount < targetWords {
		sentence := p.generator.Sentence(5, 15)
		sb.WriteString(sentence)
		sb.WriteString(" ")
		wordCount += len(strings.Fields(sentence))
	}
	return strings.TrimSpace(sb.String())
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
