package server

import (
	"context"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	notes "github.com/haowjy/meridian-notes-go"
)

// chunkSize is the maximum number of runes per chunk event.
const chunkSize = 200

// predictBody is the request body. The include flags default to true when
// omitted.
type predictBody struct {
	Prompt           string  `json:"prompt"`
	NotePath         *string `json:"note_path"`
	IncludeMemory    *bool   `json:"include_memory"`
	IncludeRetrieval *bool   `json:"include_retrieval"`
}

func (b predictBody) request() *notes.PredictRequest {
	req := &notes.PredictRequest{
		Prompt:           b.Prompt,
		NotePath:         b.NotePath,
		IncludeMemory:    true,
		IncludeRetrieval: true,
	}
	if b.IncludeMemory != nil {
		req.IncludeMemory = *b.IncludeMemory
	}
	if b.IncludeRetrieval != nil {
		req.IncludeRetrieval = *b.IncludeRetrieval
	}
	return req
}

// prediction is the context gathered before generation.
type prediction struct {
	req        *notes.PredictRequest
	memories   []notes.MemorySnippet
	retrievals []notes.RetrievalHit
	input      *notes.GenerateInput
}

func (s *Server) bindRequest(c *gin.Context) (*notes.PredictRequest, bool) {
	var body predictBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abortWithDetail(c, http.StatusUnprocessableEntity, "Invalid request body: "+err.Error())
		return nil, false
	}
	req := body.request()
	if err := req.Validate(); err != nil {
		abortWithDetail(c, http.StatusUnprocessableEntity, err.Error())
		return nil, false
	}
	return req, true
}

// prepare recalls memories and retrieves notes as the request asks.
func (s *Server) prepare(ctx context.Context, req *notes.PredictRequest) (*prediction, error) {
	p := &prediction{
		req:        req,
		memories:   []notes.MemorySnippet{},
		retrievals: []notes.RetrievalHit{},
		input: &notes.GenerateInput{
			Model:       s.opts.Model,
			Prompt:      req.Prompt,
			Temperature: s.opts.Temperature,
			MaxTokens:   s.opts.MaxTokens,
		},
	}

	if req.IncludeMemory && s.opts.Memory != nil {
		memories, err := s.opts.Memory.Recall(ctx, req.NotePathOrDefault(), s.opts.RecallLimit)
		if err != nil {
			return nil, fmt.Errorf("recall memories: %w", err)
		}
		p.memories = memories
		for _, m := range memories {
			p.input.Memories = append(p.input.Memories, m.Text)
		}
	}

	if req.IncludeRetrieval && s.opts.Retriever != nil {
		hits, err := s.opts.Retriever.Search(ctx, req.Prompt, s.opts.RetrievalK)
		if err != nil {
			return nil, fmt.Errorf("search notes: %w", err)
		}
		p.retrievals = hits
		for _, h := range hits {
			p.input.Retrievals = append(p.input.Retrievals, h.Text)
		}
	}

	return p, nil
}

// finish records the output as a memory and returns the raw program output.
// Remembering outlives the request so a disconnecting client does not lose it.
func (s *Server) finish(ctx context.Context, p *prediction, out *notes.GenerateOutput) map[string]any {
	if p.req.IncludeMemory && s.opts.Memory != nil {
		if err := s.opts.Memory.Remember(context.WithoutCancel(ctx), p.req.NotePathOrDefault(), out.Text, ""); err != nil {
			s.logger.Warn("failed to remember output", "note_path", p.req.NotePathOrDefault(), "error", err)
		}
	}
	return out.RawProgramOutput(s.opts.Generator.Name())
}

func (s *Server) predict(c *gin.Context) {
	req, ok := s.bindRequest(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	p, err := s.prepare(ctx, req)
	if err != nil {
		_ = c.Error(err)
		abortWithDetail(c, http.StatusInternalServerError, err.Error())
		return
	}

	out, err := s.opts.Generator.Generate(ctx, p.input)
	if err != nil {
		_ = c.Error(err)
		abortWithDetail(c, http.StatusBadGateway, "generation failed: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, &notes.PredictResponse{
		Output:           out.Text,
		Memories:         p.memories,
		Retrievals:       p.retrievals,
		RawProgramOutput: s.finish(ctx, p, out),
	})
}

// chunkText splits text into pieces of at most size runes.
func chunkText(text string, size int) []string {
	var chunks []string
	for len(text) > 0 {
		end, n := 0, 0
		for end < len(text) && n < size {
			_, w := utf8.DecodeRuneInString(text[end:])
			end += w
			n++
		}
		chunks = append(chunks, text[:end])
		text = text[end:]
	}
	return chunks
}
