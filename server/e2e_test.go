package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	notes "github.com/haowjy/meridian-notes-go"
	"github.com/haowjy/meridian-notes-go/client"
	"github.com/haowjy/meridian-notes-go/memory"
	"github.com/haowjy/meridian-notes-go/providers/lorem"
)

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	store, err := memory.NewStore(filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestClientRoundTrip_StreamMatchesBlocking(t *testing.T) {
	text := strings.Repeat("Tea leaves unfurl slowly. ", 20)
	srv := newTestServer(t, Options{
		Generator: &fakeGenerator{text: text},
		Retriever: &fakeRetriever{},
		APIKey:    "secret",
	})

	c, err := client.New(srv.URL, client.WithAPIKey("secret"), client.WithLogger(discardLogger), client.WithoutFallback())
	require.NoError(t, err)

	req := &notes.PredictRequest{Prompt: "tea", IncludeRetrieval: true}

	var chunks []string
	var snapshots []notes.Metadata
	streamed, err := c.PredictStream(context.Background(), req, notes.StreamCallbacks{
		OnChunk:    func(delta string) { chunks = append(chunks, delta) },
		OnMetadata: func(meta notes.Metadata) { snapshots = append(snapshots, meta) },
	})
	require.NoError(t, err)

	direct, err := c.Predict(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, direct, streamed)
	assert.Equal(t, text, strings.Join(chunks, ""))
	assert.Len(t, chunks, 3, "520 runes in chunks of 200")
	require.Len(t, snapshots, 1)
	assert.Equal(t, "tea.md", snapshots[0].Retrievals[0].ID)
}

func TestClientRoundTrip_FallbackWhenStreamUnavailable(t *testing.T) {
	s, err := New(Options{Generator: &fakeGenerator{text: "fallback output"}, Logger: discardLogger})
	require.NoError(t, err)

	// A proxy that does not support streaming
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/predict/stream" {
			http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
			return
		}
		s.Handler().ServeHTTP(w, r)
	}))
	defer srv.Close()

	c, err := client.New(srv.URL, client.WithLogger(discardLogger))
	require.NoError(t, err)

	req := &notes.PredictRequest{Prompt: "x"}
	var chunks int
	streamed, err := c.PredictStream(context.Background(), req, notes.StreamCallbacks{
		OnChunk: func(string) { chunks++ },
	})
	require.NoError(t, err)
	assert.Zero(t, chunks, "fallback does not replay chunks")

	direct, err := c.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, direct, streamed)
	assert.Equal(t, "fallback output", streamed.Output)
}

func TestClientRoundTrip_LiveGeneratorFailsBeforeOutput(t *testing.T) {
	gen := &fakeStreamer{}
	gen.err = errors.New("401 invalid upstream api key")
	srv := newTestServer(t, Options{Generator: gen})

	t.Run("fallback surfaces the blocking error", func(t *testing.T) {
		c, err := client.New(srv.URL, client.WithLogger(discardLogger))
		require.NoError(t, err)

		resp, err := c.PredictStream(context.Background(), &notes.PredictRequest{Prompt: "x"}, notes.StreamCallbacks{})
		require.Error(t, err)
		assert.Nil(t, resp)

		var httpErr *notes.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
		assert.Contains(t, httpErr.Message, "invalid upstream api key")
	})

	t.Run("without fallback", func(t *testing.T) {
		c, err := client.New(srv.URL, client.WithLogger(discardLogger), client.WithoutFallback())
		require.NoError(t, err)

		_, err = c.PredictStream(context.Background(), &notes.PredictRequest{Prompt: "x"}, notes.StreamCallbacks{})
		require.Error(t, err)
		assert.True(t, notes.IsStreamUnavailable(err))
	})
}

func TestClientRoundTrip_AuthErrors(t *testing.T) {
	srv := newTestServer(t, Options{Generator: &fakeGenerator{text: "x"}, APIKey: "secret"})

	c, err := client.New(srv.URL, client.WithAPIKey("wrong"), client.WithLogger(discardLogger))
	require.NoError(t, err)

	err = c.Health(context.Background())
	require.Error(t, err)
	assert.True(t, notes.IsAuthError(err))

	var httpErr *notes.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	assert.Equal(t, "Invalid API key", httpErr.Message)

	// The streaming call falls back and surfaces the blocking call's error
	_, err = c.PredictStream(context.Background(), &notes.PredictRequest{Prompt: "x"}, notes.StreamCallbacks{})
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusForbidden, httpErr.StatusCode)
}

func TestClientRoundTrip_LoremWithMemoryStore(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.Remember(ctx, "journal.md", "prefers short answers", ""))
	require.NoError(t, store.IndexNote(ctx, memory.Note{Path: "tea.md", Title: "Tea", Text: "Green tea steeps for two minutes."}))

	srv := newTestServer(t, Options{
		Generator: lorem.NewProvider(discardLogger),
		Model:     "lorem-instant",
		MaxTokens: 30,
		Memory:    store,
		Retriever: store,
	})

	c, err := client.New(srv.URL, client.WithLogger(discardLogger), client.WithoutFallback())
	require.NoError(t, err)

	notePath := "journal.md"
	var streamed strings.Builder
	resp, err := c.PredictStream(ctx, &notes.PredictRequest{
		Prompt:           "green tea",
		NotePath:         &notePath,
		IncludeMemory:    true,
		IncludeRetrieval: true,
	}, notes.StreamCallbacks{
		OnChunk: func(delta string) { streamed.WriteString(delta) },
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Output)
	assert.Equal(t, resp.Output, streamed.String())
	require.Len(t, resp.Memories, 1)
	assert.Equal(t, "prefers short answers", resp.Memories[0].Text)
	require.Len(t, resp.Retrievals, 1)
	assert.Equal(t, "tea.md", resp.Retrievals[0].ID)
	assert.Equal(t, "lorem", resp.RawProgramOutput["provider"])
	assert.Equal(t, float64(30), resp.RawProgramOutput["output_tokens"])

	recalled, err := store.Recall(ctx, notePath, 1)
	require.NoError(t, err)
	require.Len(t, recalled, 1)
	assert.Equal(t, resp.Output, recalled[0].Text, "output is remembered for the note")
}
