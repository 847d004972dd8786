package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/observability"
	"github.com/helixir/materials-aggregator/internal/sources"
)

const (
	// DefaultQuery is used when FetchAll is called with empty query text.
	DefaultQuery = "materials science"

	// DefaultMaxPerSource is used when no per-source limit is given.
	DefaultMaxPerSource = 10

	// MaxPerSource caps the per-source limit of FetchAll.
	MaxPerSource = 50
)

// Recorder receives aggregation metrics. observability.Metrics implements it.
type Recorder interface {
	RecordSourceFetch(source string, records int, duration time.Duration, err error)
	RecordCacheLookup(cache string, hit bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordSourceFetch(string, int, time.Duration, error) {}
func (nopRecorder) RecordCacheLookup(string, bool) {}

// SourceResult is the outcome of one adapter call within a fan-out.
type SourceResult struct {
	Source   domain.SourceType
	Records  []domain.Record
	Err      error
	Duration time.Duration
}

// Aggregator fans queries out to the adapters of a Registry.
type Aggregator struct {
	registry *Registry
	logger   zerolog.Logger
	recorder Recorder
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(a *Aggregator) {
		if r != nil {
			a.recorder = r
		}
	}
}

// New creates an Aggregator over registry.
func New(registry *Registry, logger zerolog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		registry: registry,
		logger:   logger.With().Str("component", "aggregator").Logger(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registry returns the registry the aggregator fans out to.
func (a *Aggregator) Registry() *Registry {
	return a.registry
}

// FetchSources calls the selected adapters concurrently and waits for all of
// them. Results come back in selection order with per-source errors kept.
func (a *Aggregator) FetchSources(ctx context.Context, q sources.Query, types []domain.SourceType) []SourceResult {
	adapters := a.registry.selectAdapters(types)
	if len(adapters) == 0 {
		return nil
	}

	results := make([]SourceResult, len(adapters))
	var wg sync.WaitGroup

	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, s sources.Adapter) {
			defer wg.Done()

			start := time.Now()
			records, err := s.Fetch(ctx, q)
			results[i] = SourceResult{
				Source:   s.Source(),
				Records:  records,
				Err:      err,
				Duration: time.Since(start),
			}
		}(i, adapter)
	}
	wg.Wait()

	for _, r := range results {
		a.recorder.RecordSourceFetch(string(r.Source), len(r.Records), r.Duration, r.Err)
		if r.Err != nil {
			observability.UpstreamFields(a.logger.Warn(), r.Err).
				Str("source", string(r.Source)).
				Dur("duration", r.Duration).
				Msg("source fetch failed")
		}
	}
	return results
}

// FetchAll queries the selected sources (all when types is empty) and returns
// each source's records keyed by source. A failing source maps to an empty
// slice. query defaults to DefaultQuery and maxPerSource is clamped to
// 1..MaxPerSource, defaulting to DefaultMaxPerSource.
func (a *Aggregator) FetchAll(ctx context.Context, query string, maxPerSource int, types ...domain.SourceType) map[domain.SourceType][]domain.Record {
	if query == "" {
		query = DefaultQuery
	}
	q := sources.Query{Text: query, Limit: ClampPerSource(maxPerSource)}

	out := make(map[domain.SourceType][]domain.Record)
	for _, r := range a.FetchSources(ctx, q, types) {
		if r.Err != nil || r.Records == nil {
			out[r.Source] = []domain.Record{}
			continue
		}
		out[r.Source] = r.Records
	}
	return out
}

// ClampPerSource applies the FetchAll limit rules.
func ClampPerSource(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxPerSource
	case n > MaxPerSource:
		return MaxPerSource
	default:
		return n
	}
}

// Flatten merges per-source results into one slice. Each record is tagged
// with its source and source label, and the slice is sorted by PublishedAt
// descending. Records without a date go last. Ties keep the order given by
// order, then the adapter's own order. Sources missing from order are
// appended in sorted key order.
func Flatten(results map[domain.SourceType][]domain.Record, order []domain.SourceType) []domain.Record {
	keys := make([]domain.SourceType, 0, len(results))
	seen := make(map[domain.SourceType]bool, len(results))
	for _, st := range order {
		if _, ok := results[st]; ok && !seen[st] {
			keys = append(keys, st)
			seen[st] = true
		}
	}
	var rest []domain.SourceType
	for st := range results {
		if !seen[st] {
			rest = append(rest, st)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	keys = append(keys, rest...)

	var merged []domain.Record
	for _, st := range keys {
		for _, r := range results[st] {
			r.Source = st
			r.SourceLabel = st.Label()
			merged = append(merged, r)
		}
	}
	SortByRecency(merged)
	if merged == nil {
		merged = []domain.Record{}
	}
	return merged
}

// SortByRecency stable-sorts records newest first with undated records last.
func SortByRecency(records []domain.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].PublishedAt, records[j].PublishedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}

// AllSourcesView is the merged multi-source response.
type AllSourcesView struct {
	Papers       []domain.Record `json:"papers"`
	Count        int             `json:"count"`
	Sources      []string        `json:"sources"`
	Query        string          `json:"query"`
	SourceCounts map[string]int  `json:"source_counts"`
}

// AllSources fetches from the selected sources and builds the merged view.
func (a *Aggregator) AllSources(ctx context.Context, query string, maxPerSource int, types ...domain.SourceType) AllSourcesView {
	if query == "" {
		query = DefaultQuery
	}
	results := a.FetchAll(ctx, query, maxPerSource, types...)

	order := types
	if len(order) == 0 {
		order = a.registry.Sources()
	}
	papers := Flatten(results, order)

	view := AllSourcesView{
		Papers:       papers,
		Count:        len(papers),
		Sources:      make([]string, 0, len(results)),
		Query:        query,
		SourceCounts: make(map[string]int, len(results)),
	}
	for _, st := range order {
		recs, ok := results[st]
		if !ok {
			continue
		}
		view.Sources = append(view.Sources, string(st))
		view.SourceCounts[string(st)] = len(recs)
	}
	return view
}
