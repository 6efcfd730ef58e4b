package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	notes "github.com/haowjy/meridian-notes-go"
)

// predictStream answers with metadata, chunk, and complete events.
//
// Generators that stream send their deltas as they arrive, after a metadata
// event without raw output. Others are run to completion first. Either way a
// failure before any output surfaces as an HTTP status the client can fall
// back on; a failure after it is reported in an "error" event.
func (s *Server) predictStream(c *gin.Context) {
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

	streamer, live := s.opts.Generator.(notes.StreamGenerator)
	if !live {
		out, err := s.opts.Generator.Generate(ctx, p.input)
		if err != nil {
			_ = c.Error(err)
			abortWithDetail(c, http.StatusBadGateway, "generation failed: "+err.Error())
			return
		}
		raw := s.finish(ctx, p, out)

		w := newEventWriter(c)
		if err := w.send(notes.MetadataEvent{Memories: p.memories, Retrievals: p.retrievals, RawProgramOutput: raw}); err != nil {
			return
		}
		for _, chunk := range chunkText(out.Text, chunkSize) {
			if err := w.send(notes.ChunkEvent{Delta: chunk}); err != nil {
				return
			}
		}
		_ = w.send(notes.CompleteEvent{Output: &out.Text, Memories: p.memories, Retrievals: p.retrievals, RawProgramOutput: raw})
		return
	}

	// The response starts with the first delta. Until then a failure is
	// still an HTTP status the client can fall back on.
	var w *eventWriter
	start := func() error {
		if w != nil {
			return nil
		}
		w = newEventWriter(c)
		return w.send(notes.MetadataEvent{Memories: p.memories, Retrievals: p.retrievals})
	}

	out, err := streamer.GenerateStream(ctx, p.input, func(delta string) error {
		if err := start(); err != nil {
			return err
		}
		for _, chunk := range chunkText(delta, chunkSize) {
			if err := w.send(notes.ChunkEvent{Delta: chunk}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = c.Error(err)
		if w == nil {
			abortWithDetail(c, http.StatusBadGateway, "generation failed: "+err.Error())
			return
		}
		s.logger.Warn("stream generation failed", "error", err)
		_ = w.sendError(err)
		return
	}

	raw := s.finish(ctx, p, out)
	if err := start(); err != nil {
		return
	}
	_ = w.send(notes.CompleteEvent{Output: &out.Text, Memories: p.memories, Retrievals: p.retrievals, RawProgramOutput: raw})
}

// eventWriter writes "data: <json>\n\n" frames and flushes after each.
type eventWriter struct {
	c *gin.Context
}

func newEventWriter(c *gin.Context) *eventWriter {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	return &eventWriter{c: c}
}

func (w *eventWriter) send(event notes.Event) error {
	data, err := notes.MarshalEvent(event)
	if err != nil {
		return err
	}
	return w.write(data)
}

// sendError reports a failure after the stream has started. Clients that do
// not know the "error" type skip it.
func (w *eventWriter) sendError(cause error) error {
	data, err := json.Marshal(map[string]string{"type": "error", "detail": cause.Error()})
	if err != nil {
		return err
	}
	return w.write(data)
}

func (w *eventWriter) write(data []byte) error {
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}
