package activities

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/materials-aggregator/internal/aggregator"
	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/outbox"
	"github.com/helixir/materials-aggregator/internal/repository"
	"github.com/helixir/materials-aggregator/internal/sources"
	"github.com/helixir/materials-aggregator/internal/temporal/resilience"
)

// SourceFetcher fans a query out to the sources of one kind.
type SourceFetcher interface {
	FetchSources(ctx context.Context, q sources.Query, types []domain.SourceType) []aggregator.SourceResult
}

// RecordPersister stores records with natural-key dedup.
type RecordPersister interface {
	Upsert(ctx context.Context, records []domain.Record) (repository.UpsertResult, error)
}

// EventPublisher delivers ingest notifications.
type EventPublisher interface {
	Publish(ctx context.Context, events ...outbox.IngestEvent) error
}

// RefreshRecorder counts fetch outcomes per kind.
type RefreshRecorder interface {
	RecordRefresh(kind string, err error)
}

type nopRefreshRecorder struct{}

func (nopRefreshRecorder) RecordRefresh(string, error) {}

// RefreshActivities provides the activities of the refresh workflow.
//
// Methods on this struct are registered as Temporal activities via the worker.
type RefreshActivities struct {
	fetchers  map[domain.RecordKind]SourceFetcher
	persister RecordPersister
	publisher EventPublisher
	recorder  RefreshRecorder
}

// Option configures RefreshActivities.
type Option func(*RefreshActivities)

// WithRefreshRecorder sets the recorder notified after every FetchRecords call.
func WithRefreshRecorder(r RefreshRecorder) Option {
	return func(a *RefreshActivities) {
		if r != nil {
			a.recorder = r
		}
	}
}

// NewRefreshActivities creates the activity set. fetchers maps each kind to
// the fan-out over its sources; kinds without a fetcher fail permanently.
func NewRefreshActivities(fetchers map[domain.RecordKind]SourceFetcher, persister RecordPersister, publisher EventPublisher, opts ...Option) *RefreshActivities {
	if publisher == nil {
		publisher = outbox.NopPublisher{}
	}
	a := &RefreshActivities{
		fetchers:  fetchers,
		persister: persister,
		publisher: publisher,
		recorder:  nopRefreshRecorder{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchRecords queries every source of input.Kind. Per-source failures are
// reported in the output; the activity only fails when no source produced
// records and at least one failed.
func (a *RefreshActivities) FetchRecords(ctx context.Context, input FetchRecordsInput) (*FetchRecordsOutput, error) {
	logger := activity.GetLogger(ctx)

	fetcher, ok := a.fetchers[input.Kind]
	if !ok || fetcher == nil {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("no sources configured for kind %q", input.Kind), "unconfigured_kind", nil)
	}

	q := sources.Query{Text: input.Query, Limit: aggregator.ClampPerSource(input.MaxPerSource)}
	results := fetcher.FetchSources(ctx, q, nil)

	out := &FetchRecordsOutput{Kind: input.Kind}
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
			out.Errors = append(out.Errors, toSourceError(r.Source, r.Err))
			logger.Warn("source fetch failed", "kind", input.Kind, "source", r.Source, "error", r.Err)
			continue
		}
		out.Batches = appendBySource(out.Batches, r.Source, r.Records)
	}

	logger.Info("fetched records",
		"kind", input.Kind,
		"sources", len(results),
		"fetched", out.Fetched(),
		"failed", len(out.Errors),
	)

	if out.Fetched() == 0 && len(errs) > 0 {
		err := retryDecidingError(errs)
		a.recorder.RecordRefresh(string(input.Kind), err)
		return nil, resilience.ToApplicationError(
			fmt.Sprintf("fetch %s: all sources failed", input.Kind), err)
	}
	a.recorder.RecordRefresh(string(input.Kind), nil)
	return out, nil
}

// PersistRecords upserts one source's batch.
func (a *RefreshActivities) PersistRecords(ctx context.Context, input PersistRecordsInput) (*PersistRecordsOutput, error) {
	logger := activity.GetLogger(ctx)

	result, err := a.persister.Upsert(ctx, input.Records)
	if err != nil {
		logger.Error("failed to persist records", "kind", input.Kind, "source", input.Source, "error", err)
		return nil, resilience.ToApplicationError(fmt.Sprintf("persist %s/%s", input.Kind, input.Source), err)
	}

	logger.Info("persisted records",
		"kind", input.Kind,
		"source", input.Source,
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
		"skipped", result.Skipped,
	)

	return &PersistRecordsOutput{
		Received:   result.Received,
		Inserted:   result.Inserted,
		Duplicates: result.Duplicates,
		Skipped:    result.Skipped,
	}, nil
}

// PublishIngested publishes records.ingested notifications.
func (a *RefreshActivities) PublishIngested(ctx context.Context, input PublishIngestedInput) error {
	logger := activity.GetLogger(ctx)
	if len(input.Events) == 0 {
		return nil
	}

	if err := a.publisher.Publish(ctx, input.Events...); err != nil {
		logger.Error("failed to publish ingest notifications", "count", len(input.Events), "error", err)
		return fmt.Errorf("publish ingest notifications: %w", err)
	}

	logger.Info("published ingest notifications", "count", len(input.Events))
	return nil
}

// appendBySource groups records by the source stamped on each record, so a
// fallback adapter's secondary records land in their own batch.
func appendBySource(batches []SourceBatch, fallback domain.SourceType, records []domain.Record) []SourceBatch {
	for _, rec := range records {
		src := rec.Source
		if src == "" {
			src = fallback
		}
		idx := -1
		for i := range batches {
			if batches[i].Source == src {
				idx = i
				break
			}
		}
		if idx < 0 {
			batches = append(batches, SourceBatch{Source: src})
			idx = len(batches) - 1
		}
		batches[idx].Records = append(batches[idx].Records, rec)
	}
	return batches
}

func toSourceError(source domain.SourceType, err error) SourceError {
	se := SourceError{Source: source, Error: err.Error()}
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		se.Kind = upstream.Kind
	}
	return se
}

// retryDecidingError returns the first transient error, so one retryable
// source keeps the activity retryable. Only when every source failed
// permanently is a permanent error returned.
func retryDecidingError(errs []error) error {
	for _, err := range errs {
		if resilience.Classify(err) == resilience.Transient {
			return err
		}
	}
	return errs[0]
}
