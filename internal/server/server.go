// Package server provides the HTTP API for charrag.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"charrag/config"
	"charrag/internal/domain"
	"charrag/internal/metrics"
	"charrag/internal/usecase"
)

// Defaults fill in request fields the client leaves out.
type Defaults struct {
	Query  domain.Query
	Prompt usecase.PromptOptions
}

// DefaultsFromConfig derives request defaults from the loaded config.
func DefaultsFromConfig(cfg *config.Config) (Defaults, error) {
	method, err := domain.ParseRelevanceMethod(cfg.Retrieve.RelevanceMethod)
	if err != nil {
		return Defaults{}, err
	}
	style, err := domain.ParseStyleLevel(cfg.Prompt.Style)
	if err != nil {
		return Defaults{}, err
	}
	return Defaults{
		Query: domain.Query{
			TopK:            cfg.Retrieve.TopK,
			MinRelevance:    cfg.Retrieve.MinRelevance,
			RelevanceMethod: method,
		},
		Prompt: usecase.PromptOptions{
			Style:       style,
			TokenBudget: cfg.Prompt.TokenBudget,
			MaxTokens:   cfg.Prompt.MaxTokens,
			MaxHistory:  cfg.Prompt.MaxHistory,
		},
	}, nil
}

// Server is the HTTP server for the charrag API.
type Server struct {
	catalog   *usecase.CharacterCatalog
	registry  *usecase.Registry
	retriever *usecase.Retriever
	responder *usecase.Responder
	defaults  Defaults
	metrics   *metrics.Metrics
	config    config.ServerConfig
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	catalog *usecase.CharacterCatalog,
	registry *usecase.Registry,
	retriever *usecase.Retriever,
	responder *usecase.Responder,
	defaults Defaults,
	m *metrics.Metrics,
	cfg config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		catalog:   catalog,
		registry:  registry,
		retriever: retriever,
		responder: responder,
		defaults:  defaults,
		metrics:   m,
		config:    cfg,
		logger:    logger,
	}
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes returns the API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	if s.config.Timeout > 0 {
		r.Use(middleware.Timeout(s.config.Timeout))
	}

	r.Route("/api/v1/characters", func(r chi.Router) {
		r.Get("/", s.handleListCharacters)
		r.Post("/{name}/retrieve", s.handleRetrieve)
		r.Post("/{name}/chat", s.handleChat)
		r.Post("/{name}/rebuild", s.handleRebuild)
		r.Post("/{name}/memories", s.handleRemember)
		r.Get("/{name}/index", s.handleIndexStatus)
		r.Delete("/{name}/index", s.handleReset)
	})
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.config.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// observe logs every request and records it under its route pattern so
// character names do not explode label cardinality.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(r.Method, route, status, start)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
