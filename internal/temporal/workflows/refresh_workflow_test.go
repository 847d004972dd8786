package workflows

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/outbox"
	litemporal "github.com/helixir/materials-aggregator/internal/temporal"
	"github.com/helixir/materials-aggregator/internal/temporal/activities"
)

func records(kind domain.RecordKind, source domain.SourceType, n int) []domain.Record {
	out := make([]domain.Record, n)
	for i := range out {
		out[i] = domain.Record{Kind: kind, Source: source, Title: string(source) + "-" + string(rune('a'+i))}
	}
	return out
}

// fixture wires activity mocks and records what the workflow sent them.
type fixture struct {
	mu        sync.Mutex
	fetched   map[domain.RecordKind]*activities.FetchRecordsOutput
	fetchErr  map[domain.RecordKind]error
	persistFn func(activities.PersistRecordsInput) (*activities.PersistRecordsOutput, error)
	publishFn func(activities.PublishIngestedInput) error

	persisted []activities.PersistRecordsInput
	published []outbox.IngestEvent
}

func newFixture() *fixture {
	return &fixture{
		fetched: map[domain.RecordKind]*activities.FetchRecordsOutput{
			domain.KindPaper: {Kind: domain.KindPaper, Batches: []activities.SourceBatch{
				{Source: domain.SourceArXiv, Records: records(domain.KindPaper, domain.SourceArXiv, 3)},
				{Source: domain.SourceDOAJ, Records: records(domain.KindPaper, domain.SourceDOAJ, 2)},
			}},
			domain.KindNews: {Kind: domain.KindNews, Batches: []activities.SourceBatch{
				{Source: domain.SourceNewsAPI, Records: records(domain.KindNews, domain.SourceNewsAPI, 4)},
			}},
			domain.KindEvent: {Kind: domain.KindEvent, Batches: []activities.SourceBatch{
				{Source: domain.SourceTicketmaster, Records: records(domain.KindEvent, domain.SourceTicketmaster, 1)},
			}},
		},
		fetchErr: map[domain.RecordKind]error{},
		persistFn: func(in activities.PersistRecordsInput) (*activities.PersistRecordsOutput, error) {
			n := len(in.Records)
			return &activities.PersistRecordsOutput{Received: n, Inserted: n - 1, Duplicates: 1}, nil
		},
		publishFn: func(activities.PublishIngestedInput) error { return nil },
	}
}

func (f *fixture) register(env *testsuite.TestWorkflowEnvironment) {
	var act *activities.RefreshActivities

	env.OnActivity(act.FetchRecords, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.FetchRecordsInput) (*activities.FetchRecordsOutput, error) {
			if err := f.fetchErr[in.Kind]; err != nil {
				return nil, err
			}
			return f.fetched[in.Kind], nil
		})

	env.OnActivity(act.PersistRecords, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.PersistRecordsInput) (*activities.PersistRecordsOutput, error) {
			f.mu.Lock()
			f.persisted = append(f.persisted, in)
			f.mu.Unlock()
			return f.persistFn(in)
		})

	env.OnActivity(act.PublishIngested, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.PublishIngestedInput) error {
			f.mu.Lock()
			f.published = append(f.published, in.Events...)
			f.mu.Unlock()
			return f.publishFn(in)
		})
}

func runRefresh(t *testing.T, f *fixture, input RefreshInput) (*testsuite.TestWorkflowEnvironment, *RefreshResult) {
	t.Helper()
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	f.register(env)

	env.ExecuteWorkflow(RefreshWorkflow, input)
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result RefreshResult
	require.NoError(t, env.GetWorkflowResult(&result))
	return env, &result
}

func TestRefreshWorkflow_AllKinds(t *testing.T) {
	f := newFixture()
	env, result := runRefresh(t, f, RefreshInput{Query: "perovskite", MaxPerSource: 5})

	assert.Equal(t, StatusCompleted, result.Status)
	require.Len(t, result.Kinds, 3)
	assert.Equal(t, []domain.RecordKind{domain.KindEvent, domain.KindNews, domain.KindPaper},
		[]domain.RecordKind{result.Kinds[0].Kind, result.Kinds[1].Kind, result.Kinds[2].Kind})

	papers := result.Kind(domain.KindPaper)
	require.NotNil(t, papers)
	assert.Equal(t, 5, papers.Fetched)
	assert.Equal(t, 3, papers.Inserted)
	assert.Equal(t, 2, papers.Duplicates)
	require.Len(t, papers.Sources, 2)
	assert.Equal(t, SourceOutcome{Source: domain.SourceArXiv, Fetched: 3, Inserted: 2, Duplicates: 1}, papers.Sources[0])

	assert.Equal(t, 10, result.Fetched)
	assert.Equal(t, 6, result.Inserted)

	assert.Len(t, f.persisted, 4)
	require.Len(t, f.published, 4)
	for _, ev := range f.published {
		assert.NotEmpty(t, ev.EventID)
		assert.False(t, ev.At.IsZero())
	}

	val, err := env.QueryWorkflow(litemporal.QueryProgress)
	require.NoError(t, err)
	var progress refreshProgress
	require.NoError(t, val.Get(&progress))
	assert.Equal(t, StatusCompleted, progress.Status)
	assert.Equal(t, StatusCompleted, progress.Kinds[domain.KindNews])
}

func TestRefreshWorkflow_OneKindFailing(t *testing.T) {
	f := newFixture()
	f.fetchErr[domain.KindNews] = temporal.NewNonRetryableApplicationError(
		"fetch news: all sources failed", "upstream_misconfigured", nil)

	_, result := runRefresh(t, f, RefreshInput{})

	assert.Equal(t, StatusPartial, result.Status)

	news := result.Kind(domain.KindNews)
	require.NotNil(t, news)
	assert.Equal(t, StatusFailed, news.Status)
	assert.Contains(t, news.Error, "all sources failed")
	assert.Zero(t, news.Fetched)

	assert.Equal(t, StatusCompleted, result.Kind(domain.KindPaper).Status)
	assert.Equal(t, StatusCompleted, result.Kind(domain.KindEvent).Status)
	for _, p := range f.persisted {
		assert.NotEqual(t, domain.KindNews, p.Kind)
	}
}

func TestRefreshWorkflow_SourceErrorsAreReported(t *testing.T) {
	f := newFixture()
	f.fetched[domain.KindPaper].Errors = []activities.SourceError{
		{Source: domain.SourceCORE, Kind: domain.UpstreamMisconfigured, Error: "CORE API key is not configured"},
	}

	_, result := runRefresh(t, f, RefreshInput{Kinds: []domain.RecordKind{domain.KindPaper}})

	papers := result.Kind(domain.KindPaper)
	require.NotNil(t, papers)
	assert.Equal(t, StatusCompleted, papers.Status)
	require.Len(t, papers.Sources, 3)
	assert.Equal(t, domain.SourceCORE, papers.Sources[0].Source)
	assert.Equal(t, "CORE API key is not configured", papers.Sources[0].Error)
}

func TestRefreshWorkflow_PersistFailures(t *testing.T) {
	t.Run("one failing batch is recorded and others still publish", func(t *testing.T) {
		f := newFixture()
		f.persistFn = func(in activities.PersistRecordsInput) (*activities.PersistRecordsOutput, error) {
			if in.Source == domain.SourceDOAJ {
				return nil, temporal.NewNonRetryableApplicationError("persist", "storage_failure", errors.New("disk full"))
			}
			return &activities.PersistRecordsOutput{Received: len(in.Records), Inserted: len(in.Records)}, nil
		}

		_, result := runRefresh(t, f, RefreshInput{Kinds: []domain.RecordKind{domain.KindPaper}})

		papers := result.Kind(domain.KindPaper)
		require.NotNil(t, papers)
		assert.Equal(t, StatusCompleted, papers.Status)
		assert.Equal(t, 3, papers.Inserted)
		require.Len(t, papers.Sources, 2)
		assert.NotEmpty(t, papers.Sources[1].Error)

		require.Len(t, f.published, 1)
		assert.Equal(t, domain.SourceArXiv, f.published[0].Source)
		assert.Equal(t, 3, f.published[0].Fetched)
	})

	t.Run("every batch failing fails the kind", func(t *testing.T) {
		f := newFixture()
		f.persistFn = func(activities.PersistRecordsInput) (*activities.PersistRecordsOutput, error) {
			return nil, temporal.NewNonRetryableApplicationError("persist", "storage_failure", nil)
		}

		_, result := runRefresh(t, f, RefreshInput{Kinds: []domain.RecordKind{domain.KindNews}})

		assert.Equal(t, StatusFailed, result.Status)
		assert.Equal(t, StatusFailed, result.Kind(domain.KindNews).Status)
		assert.Empty(t, f.published)
	})
}

func TestRefreshWorkflow_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture()
	f.publishFn = func(activities.PublishIngestedInput) error {
		return temporal.NewNonRetryableApplicationError("publish", "kafka", nil)
	}

	_, result := runRefresh(t, f, RefreshInput{Kinds: []domain.RecordKind{domain.KindEvent}})

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 1, result.Kind(domain.KindEvent).Fetched)
}

func TestRefreshWorkflow_KindSelection(t *testing.T) {
	f := newFixture()
	_, result := runRefresh(t, f, RefreshInput{
		Kinds: []domain.RecordKind{domain.KindNews, "podcast", domain.KindNews},
	})

	require.Len(t, result.Kinds, 2)
	assert.Equal(t, StatusPartial, result.Status)

	news := result.Kind(domain.KindNews)
	require.NotNil(t, news)
	assert.Equal(t, StatusCompleted, news.Status)

	unknown := result.Kind("podcast")
	require.NotNil(t, unknown)
	assert.Equal(t, StatusFailed, unknown.Status)
	assert.Contains(t, unknown.Error, "unknown record kind")
}

func TestRefreshWorkflow_EmptyFetch(t *testing.T) {
	f := newFixture()
	f.fetched[domain.KindEvent] = &activities.FetchRecordsOutput{Kind: domain.KindEvent}

	_, result := runRefresh(t, f, RefreshInput{Kinds: []domain.RecordKind{domain.KindEvent}})

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Zero(t, result.Fetched)
	assert.Empty(t, f.persisted)
	assert.Empty(t, f.published)
}
