// Package server exposes note prediction over HTTP: a blocking /predict
// endpoint, an SSE /predict/stream endpoint, and /health.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	notes "github.com/haowjy/meridian-notes-go"
)

// Memory recalls and records memories per note.
type Memory interface {
	Recall(ctx context.Context, notePath string, limit int) ([]notes.MemorySnippet, error)
	Remember(ctx context.Context, notePath, text, source string) error
}

// Retriever searches indexed notes.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]notes.RetrievalHit, error)
}

// Options configures a Server. Only Generator is required.
type Options struct {
	Generator   notes.Generator
	Model       string
	Temperature float64
	MaxTokens   int

	// Memory is consulted when a request sets include_memory (nil disables)
	Memory      Memory
	RecallLimit int

	// Retriever is consulted when a request sets include_retrieval (nil disables)
	Retriever  Retriever
	RetrievalK int

	// APIKey enables bearer authentication on every route when non-empty
	APIKey           string
	AllowCrossOrigin bool

	Logger *slog.Logger
}

// Server is the prediction HTTP server.
type Server struct {
	opts   Options
	logger *slog.Logger
	engine *gin.Engine
}

// New builds the router for opts.
func New(opts Options) (*Server, error) {
	if opts.Generator == nil {
		return nil, errors.New("server: generator is required")
	}
	if opts.RetrievalK <= 0 {
		opts.RetrievalK = 4
	}
	if opts.RecallLimit <= 0 {
		opts.RecallLimit = 10
	}
	opts.APIKey = strings.TrimSpace(opts.APIKey)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{opts: opts, logger: logger}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))
	if opts.AllowCrossOrigin {
		engine.Use(allowCrossOrigin())
	}

	auth := s.requireAPIKey()
	engine.GET("/health", auth, s.health)
	engine.POST("/predict", auth, s.predict)
	engine.POST("/predict/stream", auth, s.predictStream)

	s.engine = engine
	return s, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("prediction server listening", "addr", addr, "generator", s.opts.Generator.Name(), "model", s.opts.Model)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down prediction server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requireAPIKey rejects requests without "Authorization: Bearer <key>".
// A missing or malformed header is 401; a wrong key is 403.
func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.APIKey == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			abortWithDetail(c, http.StatusUnauthorized, "Missing or invalid authorization header")
			return
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.opts.APIKey)) != 1 {
			abortWithDetail(c, http.StatusForbidden, "Invalid API key")
			return
		}
		c.Next()
	}
}

// allowCrossOrigin answers preflights and allows any origin.
func allowCrossOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, Accept, X-Request-ID")
		c.Header("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if id := c.GetHeader("X-Request-ID"); id != "" {
			attrs = append(attrs, "request_id", id)
		}
		if len(c.Errors) > 0 {
			logger.Warn("request failed", append(attrs, "error", c.Errors.String())...)
			return
		}
		logger.Debug("request", attrs...)
	}
}

// abortWithDetail writes an error body in the {"detail": ...} shape the
// client parses.
func abortWithDetail(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
