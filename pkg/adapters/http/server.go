package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/tally"
	"github.com/aretw0/tally/internal/logging"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/ports"
	"github.com/aretw0/tally/pkg/registry"
	"github.com/aretw0/tally/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Assistant is the part of *tally.Assistant the HTTP surface needs.
type Assistant interface {
	Respond(ctx context.Context, req tally.Request, emitter ports.Emitter) (domain.Reply, error)
	Registry() *registry.Registry
}

// Server exposes an Assistant over HTTP.
type Server struct {
	Assistant Assistant
	Sessions  *session.Manager
	Records   ports.RecordStore
	Metrics   http.Handler
	Auth      *Authenticator
	Logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithSessions enables the conversation endpoints.
func WithSessions(m *session.Manager) Option {
	return func(s *Server) {
		s.Sessions = m
	}
}

// WithRecords enables the record listing endpoint.
func WithRecords(store ports.RecordStore) Option {
	return func(s *Server) {
		s.Records = store
	}
}

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.Metrics = h
	}
}

// WithAuthenticator configures how callers are identified.
func WithAuthenticator(a *Authenticator) Option {
	return func(s *Server) {
		s.Auth = a
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// NewHandler creates the HTTP handler for the assistant.
//
//	GET    /health
//	GET    /info
//	GET    /metrics                          (WithMetrics)
//	POST   /v1/chat                          SSE when Accept: text/event-stream
//	GET    /v1/actions
//	POST   /v1/actions/{name}/validate
//	GET    /v1/conversations                 (WithSessions)
//	GET    /v1/conversations/{id}            (WithSessions)
//	DELETE /v1/conversations/{id}            (WithSessions)
//	GET    /v1/records?kind=                 (WithRecords)
func NewHandler(assistant Assistant, opts ...Option) http.Handler {
	s := &Server{
		Assistant: assistant,
		Logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Auth == nil {
		s.Auth = NewAuthenticator(nil, "")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.Auth.Middleware)

		r.Post("/chat", s.Chat)
		r.Get("/actions", s.ListActions)
		r.Post("/actions/{name}/validate", s.ValidateAction)

		if s.Sessions != nil {
			r.Get("/conversations", s.ListConversations)
			r.Get("/conversations/{id}", s.GetConversation)
			r.Delete("/conversations/{id}", s.DeleteConversation)
		}
		if s.Records != nil {
			r.Get("/records", s.ListRecords)
		}
	})

	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+DefaultIdentityHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"app":           "tally-http",
		"version":       strings.TrimSpace(tally.Version),
		"actions":       s.Assistant.Registry().Names(),
		"conversations": s.Sessions != nil,
	})
}
