// Package httpserver provides the REST API of the materials aggregator.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/materials-aggregator/internal/aggregator"
	"github.com/helixir/materials-aggregator/internal/database"
	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/repository"
	"github.com/helixir/materials-aggregator/internal/sources"
)

// RecordPersister stores fetched records with deduplication.
type RecordPersister interface {
	Upsert(ctx context.Context, records []domain.Record) (repository.UpsertResult, error)
}

// FeedSource returns the current payload of a cached single-source feed.
type FeedSource interface {
	Get(ctx context.Context) ([]domain.Record, error)
}

// MultiSourceFetcher fans a paper query out over several providers.
type MultiSourceFetcher interface {
	AllSources(ctx context.Context, query string, maxPerSource int, types ...domain.SourceType) aggregator.AllSourcesView
}

// TopicSearcher is the arXiv client surface used by the API.
type TopicSearcher interface {
	Fetch(ctx context.Context, q sources.Query) ([]domain.Record, error)
	FetchByTopic(ctx context.Context, topic string, limit int) ([]domain.Record, error)
}

// HealthChecker reports database health.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// RequestRecorder receives per-request metrics.
type RequestRecorder interface {
	RecordHTTPRequest(method, route string, status int, d time.Duration)
}

// Dependencies are the collaborators the handlers call into. Papers, News,
// Events and Persister are required; a nil source disables its routes'
// upstream calls and they answer 503.
type Dependencies struct {
	Papers    repository.PaperRepository
	News      repository.NewsRepository
	Events    repository.EventRepository
	Persister RecordPersister

	// Aggregator serves /api/papers/all-sources.
	Aggregator MultiSourceFetcher

	// ArXiv serves the arXiv fetch and topic routes.
	ArXiv TopicSearcher

	// PaperSources holds the single-provider adapters keyed by source
	// (pubmed_central, doaj, core).
	PaperSources map[domain.SourceType]sources.Adapter

	// NewsFeed and EventsFeed are the cached feeds behind GET /news and GET /events.
	NewsFeed   FeedSource
	EventsFeed FeedSource

	Health  HealthChecker
	Metrics RequestRecorder
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Dependencies
	validate   *validator.Validate
	now        func() time.Time
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(cfg Config, deps Dependencies, logger zerolog.Logger) *Server {
	s := newServer(deps, logger)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func newServer(deps Dependencies, logger zerolog.Logger) *Server {
	s := &Server{
		deps:     deps,
		validate: newValidator(),
		now:      time.Now,
		logger:   logger.With().Str("component", "http-server").Logger(),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the root handler, for embedding in tests or other servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlationIDMiddleware)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Get("/news", s.getNewsFeed)
	r.Get("/events", s.getEvents)
	r.Post("/events", s.createEvent)

	r.Route("/api", func(r chi.Router) {
		r.Route("/papers", func(r chi.Router) {
			r.Get("/", s.listPapers)
			r.Get("/recent", s.recentPapers)
			r.Get("/search", s.searchPapers)
			r.Get("/arxiv/fetch", s.fetchArXiv)
			r.Get("/arxiv/topic/{topic}", s.arxivTopic)
			r.Get("/pubmed", s.fetchFromSource(domain.SourcePubMedCentral))
			r.Get("/doaj", s.fetchFromSource(domain.SourceDOAJ))
			r.Get("/core", s.fetchFromSource(domain.SourceCORE))
			r.Get("/all-sources", s.fetchAllSources)
		})
		r.Get("/news", s.listNews)
		r.Get("/stats/papers", s.paperStats)
		r.Get("/stats/news", s.newsStats)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	health := s.deps.Health.Health(r.Context())
	if health.Healthy() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   database.StatusUnhealthy,
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler reports whether the database accepts queries.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}
	health := s.deps.Health.Health(r.Context())
	if !health.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": database.StatusHealthy,
	})
}
