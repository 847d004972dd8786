package aggregator

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/helixir/materials-aggregator/internal/cache"
	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/observability"
	"github.com/helixir/materials-aggregator/internal/sources"
)

// Cache lifetimes per adapter kind.
const (
	NewsTTL    = 20 * time.Minute
	EventsTTL  = 20 * time.Minute
	ScraperTTL = 30 * time.Minute

	// DefaultFetchTimeout bounds one shared upstream call on a cache miss.
	DefaultFetchTimeout = 2 * time.Minute
)

// Policy decides what a cache miss does with a failed fetch.
type Policy int

const (
	// BestEffort logs the failure and returns an empty result.
	BestEffort Policy = iota

	// Strict returns the failure to the caller.
	Strict
)

// String returns the policy name.
func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "best_effort"
}

// CachedSourceConfig configures a CachedSource.
type CachedSourceConfig struct {
	// Name labels the cache in logs and metrics. Defaults to the adapter's source.
	Name string

	// Query is the fixed query the cached payload answers.
	Query sources.Query

	// TTL is how long a successful payload stays fresh.
	TTL time.Duration

	// FetchTimeout bounds the upstream call shared by concurrent misses.
	// It does not end when the caller that started the call goes away.
	FetchTimeout time.Duration

	Policy   Policy
	Clock    cache.Clock
	Recorder Recorder
}

// CachedSource fronts one adapter with its own freshness cache.
// Concurrent misses share a single upstream call.
type CachedSource struct {
	adapter  sources.Adapter
	config   CachedSourceConfig
	cache    *cache.Freshness[[]domain.Record]
	group    singleflight.Group
	logger   zerolog.Logger
	recorder Recorder
}

// NewCachedSource wraps adapter with a freshness cache.
func NewCachedSource(adapter sources.Adapter, cfg CachedSourceConfig, logger zerolog.Logger) *CachedSource {
	if cfg.Name == "" {
		cfg.Name = string(adapter.Source())
	}
	if cfg.TTL <= 0 {
		cfg.TTL = NewsTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &CachedSource{
		adapter:  adapter,
		config:   cfg,
		cache:    cache.NewWithClock[[]domain.Record](cfg.Clock),
		logger:   logger.With().Str("component", "cached_source").Str("cache", cfg.Name).Logger(),
		recorder: recorder,
	}
}

// Name returns the cache label.
func (c *CachedSource) Name() string {
	return c.config.Name
}

// Source returns the wrapped adapter's source type.
func (c *CachedSource) Source() domain.SourceType {
	return c.adapter.Source()
}

// Get returns the cached payload while it is fresh. On a miss the adapter is
// called; a success replaces the payload and is returned, a failure leaves the
// cache untouched and is handled according to the policy. If ctx ends while
// waiting, Get returns ctx.Err() and the shared call carries on for the
// other callers.
func (c *CachedSource) Get(ctx context.Context) ([]domain.Record, error) {
	if records, ok := c.cache.Get(); ok {
		c.recorder.RecordCacheLookup(c.config.Name, true)
		return records, nil
	}
	c.recorder.RecordCacheLookup(c.config.Name, false)

	ch := c.group.DoChan(c.config.Name, func() (any, error) {
		if records, ok := c.cache.Get(); ok {
			return records, nil
		}
		return c.fetch(ctx)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}

	v, err := res.Val, res.Err
	if err != nil {
		if c.config.Policy == Strict {
			return nil, err
		}
		observability.UpstreamFields(c.logger.Warn(), err).
			Str("source", string(c.adapter.Source())).
			Msg("fetch failed, returning empty result")
		return []domain.Record{}, nil
	}
	return v.([]domain.Record), nil
}

// fetch calls the adapter detached from the cancellation of ctx, so callers
// joined to the same flight are not failed by the one that started it.
func (c *CachedSource) fetch(ctx context.Context) ([]domain.Record, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.FetchTimeout)
	defer cancel()

	start := time.Now()
	records, err := c.adapter.Fetch(ctx, c.config.Query)
	c.recorder.RecordSourceFetch(string(c.adapter.Source()), len(records), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.Record{}
	}
	c.cache.Set(records, c.config.TTL)
	return records, nil
}

// ExpiresAt reports when the cached payload expires.
func (c *CachedSource) ExpiresAt() time.Time {
	return c.cache.ExpiresAt()
}
