package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	notes "github.com/haowjy/meridian-notes-go"
)

func TestNewProvider_RequiresKey(t *testing.T) {
	_, err := NewProvider("", "")
	assert.ErrorIs(t, err, notes.ErrInvalidAPIKey)
}

func TestProvider_EmptyModel(t *testing.T) {
	p, err := NewProvider("k", "")
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), &notes.GenerateInput{Prompt: "x"})
	assert.ErrorIs(t, err, notes.ErrInvalidModel)
}

func TestProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			MaxCompletionTokens int `json:"max_completion_tokens"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body.Model)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
			assert.Equal(t, notes.SystemPrompt, body.Messages[0].Content)
			assert.Equal(t, "user", body.Messages[1].Role)
			assert.Equal(t, "note\n\n---\n\nhit", body.Messages[1].Content)
		}
		assert.Equal(t, 64, body.MaxCompletionTokens)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Steep for three minutes."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 5, "total_tokens": 25}
		}`)
	}))
	defer srv.Close()

	p, err := NewProvider("k", srv.URL, option.WithMaxRetries(0))
	require.NoError(t, err)

	out, err := p.Generate(context.Background(), &notes.GenerateInput{
		Model:      "gpt-4o-mini",
		Prompt:     "note",
		Retrievals: []string{"hit"},
		MaxTokens:  64,
	})
	require.NoError(t, err)

	assert.Equal(t, "Steep for three minutes.", out.Text)
	assert.Equal(t, "gpt-4o-mini", out.Model)
	assert.Equal(t, 20, out.InputTokens)
	assert.Equal(t, 5, out.OutputTokens)
	assert.Equal(t, "stop", out.StopReason)
	assert.Equal(t, "chatcmpl-1", out.Extra["completion_id"])
}

func TestProvider_GenerateStream(t *testing.T) {
	chunks := []string{
		`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"},"finish_reason":null}]}`,
		`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}`,
		`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[],"usage":{"prompt_tokens":7,"completion_tokens":2,"total_tokens":9}}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Stream        bool `json:"stream"`
			StreamOptions struct {
				IncludeUsage bool `json:"include_usage"`
			} `json:"stream_options"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)
		assert.True(t, body.StreamOptions.IncludeUsage, "usage is requested on the final chunk")

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			_, _ = io.WriteString(w, "data: "+c+"\n\n")
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p, err := NewProvider("k", srv.URL, option.WithMaxRetries(0))
	require.NoError(t, err)

	var deltas []string
	out, err := p.GenerateStream(context.Background(), &notes.GenerateInput{Model: "gpt-4o-mini", Prompt: "hi"}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	assert.Equal(t, "Hello", out.Text)
	assert.Equal(t, "stop", out.StopReason)
	assert.Equal(t, 7, out.InputTokens)
	assert.Equal(t, 2, out.OutputTokens)
}

func TestProvider_GenerateStream_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	p, err := NewProvider("bad", srv.URL, option.WithMaxRetries(0))
	require.NoError(t, err)

	called := false
	out, err := p.GenerateStream(context.Background(), &notes.GenerateInput{Model: "gpt-4o-mini", Prompt: "hi"}, func(string) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.False(t, called, "no deltas before the failure")
}
