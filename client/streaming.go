package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	notes "github.com/haowjy/meridian-notes-go"
	"github.com/haowjy/meridian-notes-go/sse"
)

// readBufferSize is the size of each body read.
const readBufferSize = 32 << 10

// PredictStream issues a streaming prediction and folds every event into the
// returned response. Callbacks run synchronously in wire order.
//
// Reading ends at end-of-body, not at the complete event. If the stream
// cannot be opened (non-2xx status or no body) the call falls back to Predict
// and returns its result, unless the client was built WithoutFallback.
// Malformed frames and unknown event types are dropped.
func (c *Client) PredictStream(ctx context.Context, req *notes.PredictRequest, callbacks notes.StreamCallbacks) (*notes.PredictResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, err := c.openStream(ctx, req)
	if err != nil {
		if !notes.IsStreamUnavailable(err) || !c.fallback || ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("stream unavailable, falling back to predict",
			slog.String("base_url", c.baseURL),
			slog.Any("error", err))
		return c.Predict(ctx, req)
	}
	defer body.Close()

	return c.readStream(ctx, body, callbacks)
}

// openStream issues the streaming request and returns the event-stream body.
func (c *Client) openStream(ctx context.Context, req *notes.PredictRequest) (io.ReadCloser, error) {
	httpReq, err := c.buildHTTPRequest(ctx, http.MethodPost, predictStreamPath, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &notes.TransportError{Op: "predict/stream", URL: httpReq.URL.String(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, notes.NewStreamUnavailable(handleErrorResponse(resp))
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, notes.NewStreamUnavailable(nil)
	}

	return resp.Body, nil
}

// readStream runs the decode → frame → parse → apply pipeline until EOF.
func (c *Client) readStream(ctx context.Context, body io.Reader, callbacks notes.StreamCallbacks) (*notes.PredictResponse, error) {
	result := notes.NewPredictResponse()
	decoder := sse.NewDecoder()
	framer := sse.NewFramer()
	buf := make([]byte, readBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			c.dispatchFrames(result, framer.Feed(decoder.Decode(buf[:n])), callbacks)
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, &notes.TransportError{Op: "read", URL: c.baseURL + predictStreamPath, Err: readErr}
		}
	}

	c.dispatchFrames(result, framer.Feed(decoder.Flush()), callbacks)
	if pending := framer.Pending(); pending != "" {
		c.logger.Debug("dropping unterminated frame at end of stream", slog.Int("bytes", len(pending)))
	}

	return result, nil
}

// dispatchFrames interprets each payload and applies it. Per-frame failures
// are logged and skipped.
func (c *Client) dispatchFrames(result *notes.PredictResponse, payloads []string, callbacks notes.StreamCallbacks) {
	for _, payload := range payloads {
		event, err := notes.ParseEvent(payload)
		if err != nil {
			if errors.Is(err, notes.ErrUnknownEventType) {
				c.logger.Debug("skipping unknown stream event", slog.Any("error", err))
			} else {
				c.logger.Warn("skipping malformed stream frame",
					slog.Any("error", err),
					slog.String("payload", payload))
			}
			continue
		}
		callbacks.Dispatch(result, event)
	}
}
