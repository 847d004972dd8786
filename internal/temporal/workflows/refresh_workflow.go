// Package workflows defines the Temporal workflow that refreshes stored
// records from the external sources.
package workflows

import (
	"fmt"

	"go.temporal.io/sdk/workflow"

	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/outbox"
	litemporal "github.com/helixir/materials-aggregator/internal/temporal"
	"github.com/helixir/materials-aggregator/internal/temporal/activities"
	"github.com/helixir/materials-aggregator/internal/temporal/resilience"
)

// RefreshInput is an alias for the shared input type defined in the parent
// temporal package.
type RefreshInput = litemporal.RefreshInput

// Run and kind statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// AllKinds is refreshed when the input names no kinds.
var AllKinds = []domain.RecordKind{domain.KindEvent, domain.KindNews, domain.KindPaper}

// SourceOutcome is the per-source part of a kind's result.
type SourceOutcome struct {
	Source     domain.SourceType
	Fetched    int
	Inserted   int
	Duplicates int
	Skipped    int
	Error      string
}

// KindResult summarises the refresh of one kind.
type KindResult struct {
	Kind       domain.RecordKind
	Status     string
	Fetched    int
	Inserted   int
	Duplicates int
	Skipped    int
	Sources    []SourceOutcome
	Error      string
}

// RefreshResult contains the outcome of a refresh run.
type RefreshResult struct {
	// Status is completed when every kind completed, failed when every kind
	// failed and partial otherwise.
	Status string

	// Kinds lists one result per requested kind, sorted by kind.
	Kinds []KindResult

	Fetched  int
	Inserted int

	// Duration is the workflow execution time in seconds.
	Duration float64
}

// Kind returns the result for k, or nil.
func (r *RefreshResult) Kind(k domain.RecordKind) *KindResult {
	for i := range r.Kinds {
		if r.Kinds[i].Kind == k {
			return &r.Kinds[i]
		}
	}
	return nil
}

// refreshProgress is exposed via the QueryProgress query handler.
type refreshProgress struct {
	Status string
	Kinds  map[domain.RecordKind]string
}

// RefreshWorkflow fetches every requested kind in parallel, persists each
// source's batch and publishes one records.ingested notification per
// persisted batch. A failing kind is reported in the result and never fails
// the other kinds or the workflow.
func RefreshWorkflow(ctx workflow.Context, input RefreshInput) (*RefreshResult, error) {
	logger := workflow.GetLogger(ctx)
	startTime := workflow.Now(ctx)

	kinds := DeduplicateSorted(input.Kinds)
	if len(kinds) == 0 {
		kinds = AllKinds
	}

	progress := &refreshProgress{Status: StatusRunning, Kinds: make(map[domain.RecordKind]string, len(kinds))}
	for _, k := range kinds {
		progress.Kinds[k] = StatusPending
	}
	if err := workflow.SetQueryHandler(ctx, litemporal.QueryProgress, func() (*refreshProgress, error) {
		return progress, nil
	}); err != nil {
		logger.Error("failed to register progress query handler", "error", err)
		return nil, fmt.Errorf("register query handler: %w", err)
	}

	logger.Info("starting refresh", "kinds", kinds, "query", input.Query, "maxPerSource", input.MaxPerSource)

	results := make([]KindResult, len(kinds))
	wg := workflow.NewWaitGroup(ctx)
	for i, kind := range kinds {
		i, kind := i, kind
		if !kind.IsValid() {
			results[i] = KindResult{Kind: kind, Status: StatusFailed, Error: fmt.Sprintf("unknown record kind %q", kind)}
			progress.Kinds[kind] = StatusFailed
			continue
		}

		wg.Add(1)
		workflow.Go(ctx, func(gCtx workflow.Context) {
			defer wg.Done()
			progress.Kinds[kind] = StatusRunning
			results[i] = refreshKind(gCtx, kind, input)
			progress.Kinds[kind] = results[i].Status
		})
	}
	wg.Wait(ctx)

	result := &RefreshResult{Kinds: results}
	failed := 0
	for _, r := range results {
		result.Fetched += r.Fetched
		result.Inserted += r.Inserted
		if r.Status == StatusFailed {
			failed++
		}
	}
	switch {
	case failed == 0:
		result.Status = StatusCompleted
	case failed == len(results):
		result.Status = StatusFailed
	default:
		result.Status = StatusPartial
	}
	result.Duration = workflow.Now(ctx).Sub(startTime).Seconds()
	progress.Status = result.Status

	logger.Info("refresh finished",
		"status", result.Status,
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"failedKinds", failed,
	)
	return result, nil
}

func refreshKind(ctx workflow.Context, kind domain.RecordKind, input RefreshInput) KindResult {
	logger := workflow.GetLogger(ctx)
	phases := resilience.DefaultPhaseConfigs()
	var act *activities.RefreshActivities

	res := KindResult{Kind: kind, Status: StatusCompleted}

	fetchCtx := workflow.WithActivityOptions(ctx, phases[resilience.PhaseFetching].ActivityOptions())
	var fetched activities.FetchRecordsOutput
	err := workflow.ExecuteActivity(fetchCtx, act.FetchRecords, activities.FetchRecordsInput{
		Kind:         kind,
		Query:        input.Query,
		MaxPerSource: input.MaxPerSource,
	}).Get(ctx, &fetched)
	if err != nil {
		logger.Warn("fetch failed", "kind", kind, "error", err)
		res.Status = StatusFailed
		res.Error = err.Error()
		return res
	}

	for _, se := range fetched.Errors {
		res.Sources = append(res.Sources, SourceOutcome{Source: se.Source, Error: se.Error})
	}

	persistCtx := workflow.WithActivityOptions(ctx, phases[resilience.PhasePersisting].ActivityOptions())
	var events []outbox.IngestEvent
	for _, batch := range fetched.Batches {
		outcome := SourceOutcome{Source: batch.Source, Fetched: len(batch.Records)}
		res.Fetched += len(batch.Records)

		var persisted activities.PersistRecordsOutput
		err := workflow.ExecuteActivity(persistCtx, act.PersistRecords, activities.PersistRecordsInput{
			Kind:    kind,
			Source:  batch.Source,
			Records: batch.Records,
		}).Get(ctx, &persisted)
		if err != nil {
			logger.Warn("persist failed", "kind", kind, "source", batch.Source, "error", err)
			outcome.Error = err.Error()
			res.Sources = append(res.Sources, outcome)
			continue
		}

		outcome.Inserted = persisted.Inserted
		outcome.Duplicates = persisted.Duplicates
		outcome.Skipped = persisted.Skipped
		res.Inserted += persisted.Inserted
		res.Duplicates += persisted.Duplicates
		res.Skipped += persisted.Skipped
		res.Sources = append(res.Sources, outcome)

		events = append(events, outbox.IngestEvent{
			EventID:  fmt.Sprintf("%s-%s-%s", workflow.GetInfo(ctx).WorkflowExecution.RunID, kind, batch.Source),
			Kind:     kind,
			Source:   batch.Source,
			Inserted: persisted.Inserted,
			Fetched:  len(batch.Records),
			At:       workflow.Now(ctx).UTC(),
		})
	}

	if len(fetched.Batches) > 0 && len(events) == 0 {
		res.Status = StatusFailed
		res.Error = "every batch failed to persist"
		return res
	}

	if len(events) > 0 {
		publishCtx := workflow.WithActivityOptions(ctx, phases[resilience.PhasePublishing].ActivityOptions())
		err := workflow.ExecuteActivity(publishCtx, act.PublishIngested, activities.PublishIngestedInput{Events: events}).Get(ctx, nil)
		if err != nil {
			logger.Warn("publish failed, continuing", "kind", kind, "error", err)
		}
	}

	return res
}
