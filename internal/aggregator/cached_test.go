package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/sources"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestCachedSource_HitWithinTTL(t *testing.T) {
	clock := newClock()
	adapter := &stubAdapter{source: domain.SourceNewsAPI, fetch: returning(domain.Record{Kind: domain.KindNews, Title: "n"})}
	recorder := &recordingRecorder{}
	cs := NewCachedSource(adapter, CachedSourceConfig{TTL: NewsTTL, Clock: clock.Now, Recorder: recorder}, zerolog.Nop())

	first, err := cs.Get(context.Background())
	require.NoError(t, err)
	clock.Advance(NewsTTL - time.Second)
	second, err := cs.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, adapter.callCount())
	assert.Equal(t, 1, recorder.hits)
	assert.Equal(t, 1, recorder.misses)
	assert.Equal(t, "newsapi", cs.Name())
}

func TestCachedSource_RefetchesAfterExpiry(t *testing.T) {
	clock := newClock()
	adapter := &stubAdapter{source: domain.SourceNewsAPI}
	cs := NewCachedSource(adapter, CachedSourceConfig{TTL: time.Minute, Clock: clock.Now}, zerolog.Nop())

	_, err := cs.Get(context.Background())
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = cs.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, adapter.callCount())
}

func TestCachedSource_EmptySuccessIsCached(t *testing.T) {
	clock := newClock()
	adapter := &stubAdapter{source: domain.SourceAllEvents}
	cs := NewCachedSource(adapter, CachedSourceConfig{TTL: ScraperTTL, Clock: clock.Now}, zerolog.Nop())

	records, err := cs.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	_, err = cs.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.callCount())
	assert.Equal(t, clock.Now().Add(ScraperTTL), cs.ExpiresAt())
}

func TestCachedSource_BestEffortFailure(t *testing.T) {
	clock := newClock()
	adapter := &stubAdapter{source: domain.SourceTicketmaster, fetch: failing(errors.New("down"))}
	cs := NewCachedSource(adapter, CachedSourceConfig{Policy: BestEffort, TTL: EventsTTL, Clock: clock.Now}, zerolog.Nop())

	records, err := cs.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	// A failure is not cached, so the next call goes upstream again.
	_, err = cs.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.callCount())
	assert.True(t, cs.ExpiresAt().IsZero())
}

func TestCachedSource_StrictFailure(t *testing.T) {
	clock := newClock()
	upstreamErr := domain.NewStatusError(domain.SourceNewsAPI, 401, "")
	adapter := &stubAdapter{source: domain.SourceNewsAPI, fetch: failing(upstreamErr)}
	cs := NewCachedSource(adapter, CachedSourceConfig{Policy: Strict, Clock: clock.Now}, zerolog.Nop())

	records, err := cs.Get(context.Background())

	assert.Nil(t, records)
	assert.ErrorIs(t, err, domain.ErrCredentialInvalid)
}

func TestCachedSource_FailedRefreshKeepsValidEntry(t *testing.T) {
	clock := newClock()
	var fail bool
	adapter := &stubAdapter{source: domain.SourceNewsAPI, fetch: func(context.Context, sources.Query) ([]domain.Record, error) {
		if fail {
			return nil, errors.New("down")
		}
		return []domain.Record{{Kind: domain.KindNews, Title: "kept"}}, nil
	}}
	cs := NewCachedSource(adapter, CachedSourceConfig{Policy: Strict, TTL: time.Minute, Clock: clock.Now}, zerolog.Nop())

	_, err := cs.Get(context.Background())
	require.NoError(t, err)
	fail = true
	records, err := cs.Get(context.Background())

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0].Title)
}

func TestCachedSource_PassesFixedQuery(t *testing.T) {
	adapter := &stubAdapter{source: domain.SourceNewsAPI}
	q := sources.Query{Text: "chandigarh", Limit: 10}
	cs := NewCachedSource(adapter, CachedSourceConfig{Query: q, Name: "news"}, zerolog.Nop())

	_, err := cs.Get(context.Background())
	require.NoError(t, err)

	require.Len(t, adapter.queries, 1)
	assert.Equal(t, q, adapter.queries[0])
	assert.Equal(t, "news", cs.Name())
	assert.Equal(t, domain.SourceNewsAPI, cs.Source())
}

func TestCachedSource_ConcurrentGets(t *testing.T) {
	adapter := &stubAdapter{source: domain.SourceNewsAPI, fetch: returning(domain.Record{Kind: domain.KindNews, Title: "n"})}
	cs := NewCachedSource(adapter, CachedSourceConfig{TTL: time.Hour}, zerolog.Nop())

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := cs.Get(context.Background())
			assert.NoError(t, err)
			assert.Len(t, records, 1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, adapter.callCount(), 20)
	assert.GreaterOrEqual(t, adapter.callCount(), 1)
}

func TestCachedSource_CancelledCallerDoesNotFailOthers(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	adapter := &stubAdapter{source: domain.SourceNewsAPI, fetch: func(ctx context.Context, _ sources.Query) ([]domain.Record, error) {
		close(started)
		select {
		case <-release:
			return []domain.Record{{Kind: domain.KindNews, Title: "n"}}, nil
		case <-ctx.Done():
			return nil, domain.NewUnavailableError(domain.SourceNewsAPI, ctx.Err())
		}
	}}
	cs := NewCachedSource(adapter, CachedSourceConfig{TTL: time.Hour, Policy: Strict}, zerolog.Nop())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cs.Get(firstCtx)
		firstErr <- err
	}()
	<-started

	type result struct {
		records []domain.Record
		err     error
	}
	second := make(chan result, 1)
	go func() {
		records, err := cs.Get(context.Background())
		second <- result{records, err}
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Len(t, got.records, 1)
	assert.Equal(t, 1, adapter.callCount())

	// The detached fetch still filled the cache.
	records, err := cs.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 1, adapter.callCount())
}

func TestCachedSource_FetchTimeout(t *testing.T) {
	adapter := &stubAdapter{source: domain.SourceNewsAPI, fetch: func(ctx context.Context, _ sources.Query) ([]domain.Record, error) {
		<-ctx.Done()
		return nil, domain.NewUnavailableError(domain.SourceNewsAPI, ctx.Err())
	}}
	cs := NewCachedSource(adapter, CachedSourceConfig{TTL: time.Hour, Policy: Strict, FetchTimeout: 20 * time.Millisecond}, zerolog.Nop())

	_, err := cs.Get(context.Background())

	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPolicy_String(t *testing.T) {
	assert.Equal(t, "strict", Strict.String())
	assert.Equal(t, "best_effort", BestEffort.String())
}
