package httpserver

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/materials-aggregator/internal/aggregator"
	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/repository"
	"github.com/helixir/materials-aggregator/internal/sources"
)

func storedPaper(title string) domain.StoredRecord {
	return domain.StoredRecord{
		ID: uuid.New(),
		Record: domain.Record{
			Kind:           domain.KindPaper,
			Source:         domain.SourceDOAJ,
			Title:          title,
			VenueOrJournal: "Materials",
		},
	}
}

func TestListPapers_Pagination(t *testing.T) {
	var captured repository.PaperFilter
	deps := newTestDeps()
	deps.Papers = &mockPaperRepo{
		listFn: func(_ context.Context, filter repository.PaperFilter) (repository.Page, error) {
			captured = filter
			items := make([]domain.StoredRecord, 10)
			for i := range items {
				items[i] = storedPaper("paper")
			}
			return repository.Page{
				Items: items,
				Total: 25,
				Page:  filter.Page,
				Limit: filter.Limit,
				Pages: repository.PageCount(25, filter.Limit),
			}, nil
		},
	}

	rr := get(t, newTestHTTPServer(deps), "/api/papers?page=1&limit=10&journal=nature&materials_focus=metals")
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, 1, captured.Page)
	assert.Equal(t, 10, captured.Limit)
	assert.Equal(t, "nature", captured.Journal)
	assert.Equal(t, "metals", captured.MaterialsFocus)

	var resp paperPageResponse
	decodeJSON(t, rr, &resp)
	assert.Equal(t, int64(25), resp.Total)
	assert.Equal(t, 3, resp.Pages)
	assert.Len(t, resp.Papers, 10)
}

func TestListPapers_MalformedParamsUseDefaults(t *testing.T) {
	var captured repository.PaperFilter
	deps := newTestDeps()
	deps.Papers = &mockPaperRepo{
		listFn: func(_ context.Context, filter repository.PaperFilter) (repository.Page, error) {
			captured = filter
			return repository.Page{Items: []domain.StoredRecord{}}, nil
		},
	}

	rr := get(t, newTestHTTPServer(deps), "/api/papers?page=abc&limit=")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, captured.Page)
	assert.Equal(t, repository.DefaultPageLimit, captured.Limit)
}

func TestListPapers_StorageErrorIsHidden(t *testing.T) {
	deps := newTestDeps()
	deps.Papers = &mockPaperRepo{
		listFn: func(context.Context, repository.PaperFilter) (repository.Page, error) {
			return repository.Page{}, errors.New("failed to count papers: connection reset by 10.0.0.3")
		},
	}

	rr := get(t, newTestHTTPServer(deps), "/api/papers")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal server error", errorMessage(t, rr))
}

func TestRecentPapers(t *testing.T) {
	t.Run("passes days and default limit", func(t *testing.T) {
		var gotDays, gotLimit int
		deps := newTestDeps()
		deps.Papers = &mockPaperRepo{
			recentFn: func(_ context.Context, days, limit int) ([]domain.StoredRecord, error) {
				gotDays, gotLimit = days, limit
				return []domain.StoredRecord{storedPaper("fresh")}, nil
			},
		}

		rr := get(t, newTestHTTPServer(deps), "/api/papers/recent?days=14")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 14, gotDays)
		assert.Equal(t, repository.DefaultRecentLimit, gotLimit)

		var resp recentPapersResponse
		decodeJSON(t, rr, &resp)
		assert.Equal(t, 14, resp.Days)
		assert.Len(t, resp.Papers, 1)
	})

	t.Run("out of range days is a bad request", func(t *testing.T) {
		deps := newTestDeps()
		deps.Papers = &mockPaperRepo{
			recentFn: func(context.Context, int, int) ([]domain.StoredRecord, error) {
				return nil, domain.NewValidationError("days", "must be between 1 and 365")
			},
		}

		rr := get(t, newTestHTTPServer(deps), "/api/papers/recent?days=400")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, errorMessage(t, rr), "days")
	})

	t.Run("empty result is an empty array", func(t *testing.T) {
		rr := get(t, newTestHTTPServer(newTestDeps()), "/api/papers/recent")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"papers":[],"days":7}`, rr.Body.String())
	})
}

func TestSearchPapers(t *testing.T) {
	var gotQuery string
	var gotMax int
	deps := newTestDeps()
	deps.Papers = &mockPaperRepo{
		searchFn: func(_ context.Context, query string, max int) ([]domain.StoredRecord, error) {
			gotQuery, gotMax = query, max
			if len([]rune(query)) < 2 {
				return nil, domain.NewValidationError("q", "must be at least 2 characters")
			}
			return []domain.StoredRecord{storedPaper("perovskite cells")}, nil
		},
	}
	s := newTestHTTPServer(deps)

	rr := get(t, s, "/api/papers/search?q=perovskite&max_results=5")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "perovskite", gotQuery)
	assert.Equal(t, 5, gotMax)

	var resp searchPapersResponse
	decodeJSON(t, rr, &resp)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "perovskite", resp.Query)

	rr = get(t, s, "/api/papers/search?q=a")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFetchArXiv(t *testing.T) {
	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	arxiv := &mockArXiv{mockAdapter: mockAdapter{
		source: domain.SourceArXiv,
		records: []domain.Record{
			{Kind: domain.KindPaper, Title: "new", ArXivID: "2406.1", PublishedAt: ptrTime(now.AddDate(0, 0, -2))},
			{Kind: domain.KindPaper, Title: "old", ArXivID: "2301.1", PublishedAt: ptrTime(now.AddDate(0, 0, -90))},
			{Kind: domain.KindPaper, Title: "undated", ArXivID: "2406.2"},
		},
	}}
	persister := &mockPersister{}
	deps := newTestDeps()
	deps.ArXiv = arxiv
	deps.Persister = persister
	s := newTestHTTPServer(deps)
	s.now = func() time.Time { return now }

	t.Run("drops papers older than days_back", func(t *testing.T) {
		rr := get(t, s, "/api/papers/arxiv/fetch?max_results=5&days_back=30")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 5, arxiv.lastQ.Limit)

		var resp fetchedPapersResponse
		decodeJSON(t, rr, &resp)
		assert.Equal(t, 2, resp.Count)
		assert.Equal(t, "Arxiv", resp.Source)
		assert.Equal(t, 30, resp.DaysBack)
		assert.Nil(t, resp.Inserted)
		assert.Empty(t, persister.calls)
	})

	t.Run("save persists and reports inserted", func(t *testing.T) {
		rr := get(t, s, "/api/papers/arxiv/fetch?days_back=365&save=true")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp fetchedPapersResponse
		decodeJSON(t, rr, &resp)
		require.NotNil(t, resp.Inserted)
		assert.Equal(t, 3, *resp.Inserted)
		require.Len(t, persister.calls, 1)
		assert.Len(t, persister.calls[0], 3)
	})

	t.Run("days_back out of range", func(t *testing.T) {
		rr := get(t, s, "/api/papers/arxiv/fetch?days_back=0")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestFetchArXiv_UpstreamFailureIsEmptySuccess(t *testing.T) {
	deps := newTestDeps()
	deps.ArXiv = &mockArXiv{mockAdapter: mockAdapter{
		source: domain.SourceArXiv,
		err:    domain.NewStatusError(domain.SourceArXiv, http.StatusServiceUnavailable, "maintenance"),
	}}

	rr := get(t, newTestHTTPServer(deps), "/api/papers/arxiv/fetch")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp fetchedPapersResponse
	decodeJSON(t, rr, &resp)
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Papers)
}

func TestArXivTopic(t *testing.T) {
	arxiv := &mockArXiv{mockAdapter: mockAdapter{
		source:  domain.SourceArXiv,
		records: []domain.Record{{Kind: domain.KindPaper, Title: "Graphene batteries"}},
	}}
	deps := newTestDeps()
	deps.ArXiv = arxiv

	rr := get(t, newTestHTTPServer(deps), "/api/papers/arxiv/topic/graphene%20batteries?max_results=7")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "graphene batteries", arxiv.lastTopic)
	assert.Equal(t, 7, arxiv.lastLimit)

	var resp fetchedPapersResponse
	decodeJSON(t, rr, &resp)
	assert.Equal(t, "graphene batteries", resp.Topic)
	assert.Equal(t, 1, resp.Count)
}

func TestFetchFromSource(t *testing.T) {
	t.Run("pubmed uses the default query", func(t *testing.T) {
		pmc := &mockAdapter{
			source:  domain.SourcePubMedCentral,
			records: []domain.Record{{Kind: domain.KindPaper, Title: "Alloy corrosion"}},
		}
		deps := newTestDeps()
		deps.PaperSources = map[domain.SourceType]sources.Adapter{domain.SourcePubMedCentral: pmc}

		rr := get(t, newTestHTTPServer(deps), "/api/papers/pubmed")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, aggregator.DefaultQuery, pmc.lastQ.Text)
		assert.Equal(t, defaultFetchResults, pmc.lastQ.Limit)

		var resp fetchedPapersResponse
		decodeJSON(t, rr, &resp)
		assert.Equal(t, "Pubmed Central", resp.Source)
		assert.Equal(t, aggregator.DefaultQuery, resp.Query)
		assert.Equal(t, 1, resp.Count)
	})

	t.Run("doaj network failure degrades to empty", func(t *testing.T) {
		deps := newTestDeps()
		deps.PaperSources = map[domain.SourceType]sources.Adapter{
			domain.SourceDOAJ: &mockAdapter{
				source: domain.SourceDOAJ,
				err:    domain.NewUnavailableError(domain.SourceDOAJ, errors.New("dial tcp: timeout")),
			},
		}

		rr := get(t, newTestHTTPServer(deps), "/api/papers/doaj?query=polymers")
		require.Equal(t, http.StatusOK, rr.Code)
		var resp fetchedPapersResponse
		decodeJSON(t, rr, &resp)
		assert.Equal(t, 0, resp.Count)
		assert.Equal(t, "polymers", resp.Query)
	})

	t.Run("core without credential is service unavailable", func(t *testing.T) {
		deps := newTestDeps()
		deps.PaperSources = map[domain.SourceType]sources.Adapter{
			domain.SourceCORE: &mockAdapter{
				source: domain.SourceCORE,
				err:    domain.NewMisconfiguredError(domain.SourceCORE, "CORE API key is not configured"),
			},
		}

		rr := get(t, newTestHTTPServer(deps), "/api/papers/core")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, errorMessage(t, rr), "misconfigured")
	})

	t.Run("unregistered source", func(t *testing.T) {
		rr := get(t, newTestHTTPServer(newTestDeps()), "/api/papers/core")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}

func TestFetchAllSources(t *testing.T) {
	view := aggregator.AllSourcesView{
		Papers: []domain.Record{
			{Kind: domain.KindPaper, Title: "a", Source: domain.SourceArXiv, ArXivID: "1"},
			{Kind: domain.KindPaper, Title: "b", Source: domain.SourceDOAJ, DOI: "10.1/b"},
		},
		Count:        2,
		Sources:      []string{"arxiv", "doaj"},
		Query:        "ceramics",
		SourceCounts: map[string]int{"arxiv": 1, "doaj": 1},
	}

	t.Run("selects sources and saves", func(t *testing.T) {
		agg := &mockAggregator{view: view}
		persister := &mockPersister{
			upsertFn: func(_ context.Context, records []domain.Record) (repository.UpsertResult, error) {
				return repository.UpsertResult{Received: len(records), Inserted: 1, Duplicates: 1}, nil
			},
		}
		deps := newTestDeps()
		deps.Aggregator = agg
		deps.Persister = persister

		rr := get(t, newTestHTTPServer(deps), "/api/papers/all-sources?query=ceramics&max_results=5&sources=arxiv,%20doaj&save=1")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ceramics", agg.lastQuery)
		assert.Equal(t, 5, agg.lastMax)
		assert.Equal(t, []domain.SourceType{domain.SourceArXiv, domain.SourceDOAJ}, agg.lastTypes)

		var resp allSourcesResponse
		decodeJSON(t, rr, &resp)
		assert.Equal(t, 2, resp.Count)
		assert.Equal(t, map[string]int{"arxiv": 1, "doaj": 1}, resp.SourceCounts)
		require.NotNil(t, resp.Inserted)
		assert.Equal(t, 1, *resp.Inserted)
		assert.Equal(t, 1, *resp.Duplicates)
	})

	t.Run("unknown source is rejected", func(t *testing.T) {
		deps := newTestDeps()
		deps.Aggregator = &mockAggregator{view: view}

		rr := get(t, newTestHTTPServer(deps), "/api/papers/all-sources?sources=newsapi")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("storage failure on save", func(t *testing.T) {
		deps := newTestDeps()
		deps.Aggregator = &mockAggregator{view: view}
		deps.Persister = &mockPersister{
			upsertFn: func(context.Context, []domain.Record) (repository.UpsertResult, error) {
				return repository.UpsertResult{}, domain.NewStorageError("upsert", errors.New("deadlock detected"))
			},
		}

		rr := get(t, newTestHTTPServer(deps), "/api/papers/all-sources?save=true")
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "storage failure", errorMessage(t, rr))
	})
}

func TestStats(t *testing.T) {
	deps := newTestDeps()
	deps.Papers = &mockPaperRepo{
		statsFn: func(context.Context) (*repository.PaperStats, error) {
			return &repository.PaperStats{
				TotalPapers:           3,
				TopJournals:           []repository.JournalCount{{Journal: "ArXiv", Count: 3}},
				MaterialsDistribution: map[string]int64{"metals": 2},
			}, nil
		},
	}
	deps.News = &mockNewsRepo{
		statsFn: func(context.Context) (*repository.NewsStats, error) {
			return &repository.NewsStats{
				TotalNews:  1,
				Categories: []repository.CategoryCount{{Category: "Research", Count: 1}},
				TopSources: []repository.SourceCount{{Source: "Reuters", Count: 1}},
			}, nil
		},
	}
	s := newTestHTTPServer(deps)

	rr := get(t, s, "/api/stats/papers")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"total_papers":3,"top_journals":[{"journal":"ArXiv","count":3}],"materials_distribution":{"metals":2}}`, rr.Body.String())

	rr = get(t, s, "/api/stats/news")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"total_news":1,"categories":[{"category":"Research","count":1}],"top_sources":[{"source":"Reuters","count":1}]}`, rr.Body.String())
}
