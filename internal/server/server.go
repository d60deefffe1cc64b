// Package server exposes the webhook endpoint, short-link redirects and a
// health check over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/roach88/travelrelay/internal/livefeed"
	"github.com/roach88/travelrelay/internal/status"
	"github.com/roach88/travelrelay/internal/store"
)

// DefaultMaxBody limits webhook request bodies.
const DefaultMaxBody = 1 << 20 // 1MB

// Feed handles authenticated status deliveries.
type Feed interface {
	Handle(ctx context.Context, userID int64, ev status.Event) (livefeed.Result, error)
}

// Repository resolves webhook tokens and short links.
type Repository interface {
	GetUserByWebhookToken(ctx context.Context, token string) (store.User, error)
	ResolveLink(ctx context.Context, shortID string) (string, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr    string
	MaxBody int64

	// ShutdownTimeout bounds graceful shutdown after the context ends.
	ShutdownTimeout time.Duration
}

// Server is the travelrelay HTTP server.
type Server struct {
	cfg    Config
	repo   Repository
	feed   Feed
	router *gin.Engine
}

// New creates a server and registers its routes.
func New(cfg Config, repo Repository, feed Feed) *Server {
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = DefaultMaxBody
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLog())

	s := &Server{
		cfg:    cfg,
		repo:   repo,
		feed:   feed,
		router: router,
	}

	router.POST("/travelynx", s.handleWebhook)
	router.GET("/s/:id", s.handleShortLink)
	router.GET("/healthz", s.handleHealth)

	return s
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

const requestIDKey = "request_id"

// requestLog tags each request with a correlation id and logs it once
// finished.
func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(requestIDKey, id)
		c.Header("X-Request-Id", id)
		start := time.Now()

		c.Next()

		slog.Info("http request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
