// Command server runs the materials aggregator REST API, its gRPC health
// service and the Prometheus endpoint until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/materials-aggregator/internal/aggregator"
	"github.com/helixir/materials-aggregator/internal/config"
	"github.com/helixir/materials-aggregator/internal/database"
	"github.com/helixir/materials-aggregator/internal/observability"
	"github.com/helixir/materials-aggregator/internal/repository"
	"github.com/helixir/materials-aggregator/internal/server"
	httpserver "github.com/helixir/materials-aggregator/internal/server/http"
	"github.com/helixir/materials-aggregator/internal/sources"
	"github.com/helixir/materials-aggregator/internal/sources/providers"
)

const idleTimeout = 2 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LoggingConfig(cfg.Logging)).
		With().Str("component", "server").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := migrateUp(db, cfg.Database.MigrationPath, logger); err != nil {
			return err
		}
	}

	metrics := observability.NewMetrics("materials_aggregator")
	deps := buildDependencies(cfg, db, metrics, logger)

	api := httpserver.NewServer(httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     idleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, deps, logger)
	health := server.NewGRPCServer(server.Config{Address: cfg.Server.GRPCAddress()}, db, logger)
	metricsSrv := newMetricsServer(cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		health.Watch(gctx)
		return nil
	})
	g.Go(func() error {
		if err := health.Start(); err != nil {
			return fmt.Errorf("grpc health: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("address", cfg.Server.HTTPAddress()).Msg("REST API listening")
		return serveHTTP("rest api", api.Start)
	})
	if metricsSrv != nil {
		g.Go(func() error {
			logger.Info().Str("address", metricsSrv.Addr).Msg("metrics listening")
			return serveHTTP("metrics", metricsSrv.ListenAndServe)
		})
	}

	// Shut everything down on a signal or the first server failure.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		var errs []error
		errs = append(errs, api.Shutdown(shutdownCtx))
		if metricsSrv != nil {
			errs = append(errs, metricsSrv.Shutdown(shutdownCtx))
		}
		health.Shutdown(shutdownCtx)
		return errors.Join(errs...)
	})

	logger.Info().
		Int("paper_sources", len(deps.PaperSources)+boolToInt(deps.ArXiv != nil)).
		Bool("news_feed", deps.NewsFeed != nil).
		Bool("events_feed", deps.EventsFeed != nil).
		Msg("server ready")

	err = g.Wait()
	logger.Info().Err(err).Msg("server stopped")
	return err
}

// buildDependencies wires providers, storage and feeds into the REST API.
func buildDependencies(cfg *config.Config, db *database.DB, metrics *observability.Metrics, logger zerolog.Logger) httpserver.Dependencies {
	set := providers.Build(cfg.Sources, cfg.Aggregation, metrics, logger)

	deps := httpserver.Dependencies{
		Papers:       repository.NewPgPaperRepository(db),
		News:         repository.NewPgNewsRepository(db),
		Events:       repository.NewPgEventRepository(db),
		Persister:    repository.NewPersister(db, logger, repository.WithPersistRecorder(metrics)),
		Aggregator:   aggregator.New(set.PaperRegistry(), logger, aggregator.WithRecorder(metrics)),
		PaperSources: set.PaperSources(),
		Health:       db,
		Metrics:      metrics,
	}
	if set.ArXiv != nil {
		deps.ArXiv = set.ArXiv
	}
	if set.NewsAPI != nil {
		deps.NewsFeed = aggregator.NewCachedSource(set.NewsAPI, aggregator.CachedSourceConfig{
			Name:     "news",
			Query:    sources.Query{Limit: cfg.Sources.NewsAPI.MaxResults},
			TTL:      cfg.Sources.NewsAPI.CacheTTL,
			Policy:   aggregator.Strict,
			Recorder: metrics,
		}, logger)
	}
	if set.Events != nil {
		primary := cfg.Sources.Ticketmaster
		if !primary.Enabled {
			primary = cfg.Sources.AllEvents
		}
		deps.EventsFeed = aggregator.NewCachedSource(set.Events, aggregator.CachedSourceConfig{
			Name:     "events",
			Query:    sources.Query{Limit: primary.MaxResults},
			TTL:      primary.CacheTTL,
			Policy:   aggregator.BestEffort,
			Recorder: metrics,
		}, logger)
	}
	return deps
}

func newMetricsServer(cfg *config.Config) *http.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.Handler())
	return &http.Server{
		Addr:              cfg.Server.MetricsAddress(),
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}
}

// serveHTTP treats a graceful close as a clean exit.
func serveHTTP(name string, serve func() error) error {
	if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func migrateUp(db *database.DB, path string, logger zerolog.Logger) error {
	m, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn().Err(err).Msg("close migrator")
		}
	}()
	return m.Up()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
