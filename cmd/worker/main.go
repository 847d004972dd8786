// Command worker runs RefreshWorkflow and its activities on Temporal, keeps
// the periodic refresh schedule in place and, with Kafka enabled, starts
// refreshes requested on the refresh topic.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/materials-aggregator/internal/aggregator"
	"github.com/helixir/materials-aggregator/internal/config"
	"github.com/helixir/materials-aggregator/internal/database"
	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/observability"
	"github.com/helixir/materials-aggregator/internal/outbox"
	"github.com/helixir/materials-aggregator/internal/repository"
	"github.com/helixir/materials-aggregator/internal/sources/providers"
	"github.com/helixir/materials-aggregator/internal/temporal"
	"github.com/helixir/materials-aggregator/internal/temporal/activities"
	"github.com/helixir/materials-aggregator/internal/temporal/workflows"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LoggingConfig(cfg.Logging)).
		With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := observability.NewMetrics("materials_aggregator")
	set := providers.Build(cfg.Sources, cfg.Aggregation, metrics, logger)
	fetchers := map[domain.RecordKind]activities.SourceFetcher{
		domain.KindPaper: aggregator.New(set.PaperRegistry(), logger, aggregator.WithRecorder(metrics)),
		domain.KindNews:  aggregator.New(set.NewsRegistry(), logger, aggregator.WithRecorder(metrics)),
		domain.KindEvent: aggregator.New(set.EventsRegistry(), logger, aggregator.WithRecorder(metrics)),
	}

	// With Kafka disabled the publisher drops events.
	publisher, err := outbox.New(cfg.Kafka, logger, outbox.WithRecorder(metrics))
	if err != nil {
		return fmt.Errorf("ingest publisher: %w", err)
	}
	defer closeLogged(publisher.Close, "ingest publisher", logger)

	clientCfg := temporal.ClientConfig{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
		TaskQueue: cfg.Temporal.TaskQueue,
		TLS:       temporal.TLSConfig(cfg.Temporal.TLS),
		Logger:    observability.NewTemporalLogger(logger),
	}
	tc, err := temporal.NewClient(clientCfg)
	if err != nil {
		return err
	}
	refresh := temporal.NewRefreshClient(tc, clientCfg)
	defer refresh.Close()

	workerCfg := temporal.DefaultWorkerConfig(cfg.Temporal.TaskQueue)
	workerCfg.ActivityConcurrency = cfg.Temporal.ActivityConcurrency
	workerCfg.StopTimeout = cfg.Temporal.StopTimeout
	manager, err := temporal.NewWorkerManager(tc, workerCfg, logger)
	if err != nil {
		return err
	}
	manager.RegisterWorkflow(workflows.RefreshWorkflow, temporal.RefreshWorkflowName)
	manager.RegisterActivity(activities.NewRefreshActivities(
		fetchers,
		repository.NewPersister(db, logger, repository.WithPersistRecorder(metrics)),
		publisher,
		activities.WithRefreshRecorder(metrics),
	))

	if every := cfg.Temporal.RefreshInterval; every > 0 {
		input := temporal.RefreshInput{MaxPerSource: cfg.Aggregation.MaxResultsPerSource}
		if err := refresh.EnsureSchedule(ctx, temporal.DefaultScheduleID, every, input); err != nil {
			return err
		}
		logger.Info().Str("schedule_id", temporal.DefaultScheduleID).Dur("every", every).Msg("refresh schedule in place")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Start(gctx) })

	if cfg.Kafka.Enabled && cfg.Kafka.RefreshTopic != "" {
		listener := outbox.NewListener(outbox.ListenerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.RefreshTopic,
			GroupID: cfg.Kafka.GroupID,
		}, refresh, logger)
		defer closeLogged(listener.Close, "refresh listener", logger)
		g.Go(func() error { return listener.Run(gctx) })
	}

	logger.Info().
		Str("task_queue", cfg.Temporal.TaskQueue).
		Int("paper_sources", set.PaperRegistry().Len()).
		Msg("worker running")

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Info().Msg("worker stopped")
		return nil
	}
	return err
}

func closeLogged(closeFn func() error, what string, logger zerolog.Logger) {
	if err := closeFn(); err != nil {
		logger.Warn().Err(err).Str("resource", what).Msg("close failed")
	}
}
