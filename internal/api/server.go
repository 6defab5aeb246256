package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"wxbridge/internal/auth"
	"wxbridge/internal/events"
	"wxbridge/internal/transport"
)

// TextSender delivers an outbound text message to the chat platform.
// Satisfied by *wechat.Sender.
type TextSender interface {
	SendText(ctx context.Context, openID, content string) (int64, error)
}

// BreakerStater reports a downstream circuit breaker state for /healthz.
type BreakerStater interface {
	BreakerState() transport.State
}

// Config holds API server configuration.
type Config struct {
	Listen string

	// ClientID and ClientSecret are the credentials the engagement platform
	// presents on the token endpoint.
	ClientID     string
	ClientSecret string

	// RequestsPerMinute and Burst tune the per-client rate limiter. Zero
	// values disable limiting.
	RequestsPerMinute int
	Burst             int

	Version string
}

// Server represents the outbound-side HTTP API server.
type Server struct {
	config    Config
	sender    TextSender
	issuer    *auth.Issuer
	events    *events.Hub
	adapters  map[string]BreakerStater
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
	limiter   *rateLimiter
}

// New creates a new API server instance. adapters maps a display name to
// the downstream client whose breaker state /healthz reports.
func New(config Config, sender TextSender, issuer *auth.Issuer, hub *events.Hub, adapters map[string]BreakerStater, logger *slog.Logger) *Server {
	s := &Server{
		config:    config,
		sender:    sender,
		issuer:    issuer,
		events:    hub,
		adapters:  adapters,
		logger:    logger,
		startedAt: time.Now(),
	}
	if config.RequestsPerMinute > 0 {
		s.limiter = newRateLimiter(config.RequestsPerMinute, config.Burst)
	}
	return s
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverer)
	if s.limiter != nil {
		r.Use(s.limiter.middleware(s.writeError))
	}

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Route("/integration/box/1.0", func(r chi.Router) {
		r.Post("/token", s.handleToken)
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/posts/{postID}/messages", s.handlePostMessage)
		})
	})

	// Protected telemetry stream.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests; bodies are never logged.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// recoverer converts handler panics into a JSON 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("api handler panic",
					"panic", fmt.Sprint(rec),
					"path", r.URL.Path,
				)
				s.writeError(w, http.StatusInternalServerError, "InternalError", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
