// Package observability provides logging and metrics support for the
// materials aggregator.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//	logger.Info().Str("source", "doaj").Msg("fetch complete")
//
// Request-scoped loggers travel in the context:
//
//	ctx = observability.WithLogger(ctx, observability.WithRequestContext(logger, reqID))
//	log := observability.LoggerFromContext(ctx, logger)
//
// Swallowed upstream failures are logged with UpstreamFields plus a source
// field so every entry carries source, error_kind and status.
//
// # Metrics
//
//	metrics := observability.NewMetrics("materials_aggregator")
//	metrics.RecordCacheLookup("news", true)
//	metrics.RecordPersisted("paper", 12, 3)
//
// Metrics implements sources.RequestObserver and the aggregator's Recorder,
// so it can be handed directly to adapters and caches.
//
// # Standard Fields
//
//   - request_id: HTTP request identifier
//   - source: provider (arxiv, pubmed_central, doaj, core, newsapi, ticketmaster, allevents)
//   - kind: record kind (event, news, paper)
//   - error_kind: upstream failure class
//   - workflow_id, workflow_run_id: Temporal identifiers
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
