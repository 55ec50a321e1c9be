package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/jobcascade/internal/cascade"
	"github.com/me/jobcascade/internal/depgraph"
	"github.com/me/jobcascade/internal/lifecycle"
	"github.com/me/jobcascade/internal/metrics"
	"github.com/me/jobcascade/internal/registry"
	"github.com/me/jobcascade/internal/store"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Server is the jobcascade REST API server.
type Server struct {
	router      chi.Router
	logger      *slog.Logger
	startTime   time.Time
	store       store.Store
	projects    *registry.Registry
	resolver    *cascade.Resolver
	initializer *lifecycle.Initializer
	graph       *depgraph.Service
	metrics     *metrics.Metrics // optional; nil disables /metrics

	// mu serializes project mutations. Cascaded writes compare against the
	// template's effective value, so a project and its template must not be
	// written concurrently.
	mu sync.Mutex
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a new Server with all routes registered.
func New(
	st store.Store,
	projects *registry.Registry,
	resolver *cascade.Resolver,
	initializer *lifecycle.Initializer,
	graph *depgraph.Service,
	logger *slog.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		logger:      logger.With("component", "server"),
		startTime:   time.Now(),
		store:       st,
		projects:    projects,
		resolver:    resolver,
		initializer: initializer,
		graph:       graph,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(metricsMiddleware(s.metrics))
	r.Use(remoteUserMiddleware)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// API routes (JSON)
	r.Route("/api/v1", func(r chi.Router) {
		// Discovery
		r.Get("/", s.handleDiscovery)

		// Health
		r.Get("/health", s.handleHealth)

		// Projects
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetProject)
				r.Delete("/", s.handleDeleteProject)
				r.Get("/effective", s.handleGetEffective)
				r.Patch("/config", s.handleUpdateConfig)
				r.Post("/copy", s.handleCopyProject)
				r.Get("/builds", s.handleListBuilds)
			})
		})

		// Dependency graph
		r.Route("/graph", func(r chi.Router) {
			r.Get("/", s.handleGetGraph)
			r.Post("/rebuild", s.handleRebuildGraph)
		})

		// Build-completed events
		r.Post("/builds", s.handleBuildCompleted)

		// Build queue
		r.Get("/queue", s.handleListQueue)
	})
}
