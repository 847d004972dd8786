package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/repository"
)

func TestListNews(t *testing.T) {
	var captured repository.NewsFilter
	deps := newTestDeps()
	deps.News = &mockNewsRepo{
		listFn: func(_ context.Context, filter repository.NewsFilter) (repository.Page, error) {
			captured = filter
			return repository.Page{Items: []domain.StoredRecord{}, Total: 11, Page: 2, Limit: 5, Pages: 3}, nil
		},
	}

	rr := get(t, newTestHTTPServer(deps), "/api/news?page=2&limit=5&category=Industry")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Industry", captured.Category)
	assert.Equal(t, 2, captured.Page)
	assert.Equal(t, 5, captured.Limit)
	assert.JSONEq(t, `{"news":[],"total":11,"page":2,"limit":5,"pages":3}`, rr.Body.String())
}

func TestGetNewsFeed(t *testing.T) {
	published := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	stored := domain.StoredRecord{
		ID: uuid.New(),
		Record: domain.Record{
			Kind:           domain.KindNews,
			Title:          "Steel prices rise",
			SourceURL:      "https://news.example/steel",
			VenueOrJournal: "Reuters",
			PublishedAt:    &published,
		},
	}

	t.Run("persists the feed and serves the latest stored", func(t *testing.T) {
		persister := &mockPersister{}
		var gotLimit int
		deps := newTestDeps()
		deps.Persister = persister
		deps.NewsFeed = &mockFeed{records: []domain.Record{stored.Record}}
		deps.News = &mockNewsRepo{
			latestFn: func(_ context.Context, limit int) ([]domain.StoredRecord, error) {
				gotLimit = limit
				return []domain.StoredRecord{stored}, nil
			},
		}

		rr := get(t, newTestHTTPServer(deps), "/news")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, feedPageSize, gotLimit)
		require.Len(t, persister.calls, 1)

		var resp []newsItemResponse
		decodeJSON(t, rr, &resp)
		require.Len(t, resp, 1)
		assert.Equal(t, "Reuters", resp[0].Source)
		assert.Equal(t, "https://news.example/steel", resp[0].URL)
		assert.Equal(t, stored.ID.String(), resp[0].ID)
	})

	t.Run("missing credential is service unavailable", func(t *testing.T) {
		deps := newTestDeps()
		deps.NewsFeed = &mockFeed{err: domain.NewMisconfiguredError(domain.SourceNewsAPI, "NewsAPI key is not configured")}

		rr := get(t, newTestHTTPServer(deps), "/news")
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Contains(t, errorMessage(t, rr), "NewsAPI key is not configured")
	})

	t.Run("upstream 401 is relabeled", func(t *testing.T) {
		deps := newTestDeps()
		deps.NewsFeed = &mockFeed{err: domain.NewStatusError(domain.SourceNewsAPI, http.StatusUnauthorized, `{"code":"apiKeyInvalid"}`)}

		rr := get(t, newTestHTTPServer(deps), "/news")
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Equal(t, "upstream rejected credentials", errorMessage(t, rr))
	})

	t.Run("upstream 429 is rate limited", func(t *testing.T) {
		upstream := domain.NewStatusError(domain.SourceNewsAPI, http.StatusTooManyRequests, "")
		upstream.RetryAfter = 1500 * time.Millisecond
		deps := newTestDeps()
		deps.NewsFeed = &mockFeed{err: upstream}

		rr := get(t, newTestHTTPServer(deps), "/news")
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.Equal(t, "2", rr.Header().Get("Retry-After"))
	})

	t.Run("other rejection passes status and excerpt through", func(t *testing.T) {
		deps := newTestDeps()
		deps.NewsFeed = &mockFeed{err: domain.NewStatusError(domain.SourceNewsAPI, http.StatusBadRequest, "parameterInvalid")}

		rr := get(t, newTestHTTPServer(deps), "/news")
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Equal(t, "upstream returned status 400: parameterInvalid", errorMessage(t, rr))
	})

	t.Run("storage failure still serves stored news", func(t *testing.T) {
		deps := newTestDeps()
		deps.NewsFeed = &mockFeed{records: []domain.Record{stored.Record}}
		deps.Persister = &mockPersister{
			upsertFn: func(context.Context, []domain.Record) (repository.UpsertResult, error) {
				return repository.UpsertResult{}, domain.NewStorageError("upsert", errors.New("disk full"))
			},
		}
		deps.News = &mockNewsRepo{
			latestFn: func(context.Context, int) ([]domain.StoredRecord, error) {
				return []domain.StoredRecord{stored}, nil
			},
		}

		rr := get(t, newTestHTTPServer(deps), "/news")
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestGetEvents(t *testing.T) {
	day := time.Date(2030, 1, 5, 0, 0, 0, 0, time.UTC)
	upcoming := domain.StoredRecord{
		ID: uuid.New(),
		Record: domain.Record{
			Kind:           domain.KindEvent,
			Source:         domain.SourceTicketmaster,
			SourceLabel:    "Ticketmaster",
			Title:          "Polymer Summit",
			PublishedAt:    &day,
			StartTime:      "10:00",
			VenueOrJournal: "PEC Auditorium",
			Price:          "499-1499.5 INR",
		},
	}

	persister := &mockPersister{}
	deps := newTestDeps()
	deps.Persister = persister
	deps.EventsFeed = &mockFeed{records: []domain.Record{upcoming.Record}}
	deps.Events = &mockEventRepo{
		upcomingFn: func(_ context.Context, limit int) ([]domain.StoredRecord, error) {
			assert.Equal(t, feedPageSize, limit)
			return []domain.StoredRecord{upcoming}, nil
		},
	}

	rr := get(t, newTestHTTPServer(deps), "/events")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, persister.calls, 1)

	var resp []eventResponse
	decodeJSON(t, rr, &resp)
	require.Len(t, resp, 1)
	assert.Equal(t, "2030-01-05", resp[0].Date)
	assert.Equal(t, "10:00", resp[0].Time)
	assert.Equal(t, "PEC Auditorium", resp[0].Venue)
	assert.Equal(t, "Ticketmaster", resp[0].Source)
}

func TestGetEvents_EmptyFeedSkipsPersist(t *testing.T) {
	persister := &mockPersister{}
	deps := newTestDeps()
	deps.Persister = persister
	deps.EventsFeed = &mockFeed{records: []domain.Record{}}

	rr := get(t, newTestHTTPServer(deps), "/events")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, persister.calls)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func postEvent(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return serveHTTP(s, req)
}

func TestCreateEvent(t *testing.T) {
	t.Run("creates a manual event", func(t *testing.T) {
		var created domain.Record
		deps := newTestDeps()
		deps.Events = &mockEventRepo{
			createFn: func(_ context.Context, event domain.Record) (*domain.StoredRecord, error) {
				created = event
				return &domain.StoredRecord{ID: uuid.New(), Record: event}, nil
			},
		}

		rr := postEvent(t, newTestHTTPServer(deps), `{
			"title": " Polymer Summit ",
			"date": "2030-01-05",
			"time": "10:00",
			"venue": "PEC Auditorium",
			"category": "Conference",
			"image": "https://img.example/a.png",
			"url": "https://events.example/polymer"
		}`)
		require.Equal(t, http.StatusCreated, rr.Code)

		assert.Equal(t, domain.SourceManual, created.Source)
		assert.Equal(t, domain.KindEvent, created.Kind)
		assert.Equal(t, "Polymer Summit", created.Title)
		require.NotNil(t, created.PublishedAt)
		assert.Equal(t, "2030-01-05", created.Date())
		assert.Equal(t, "https://img.example/a.png", created.ImageURL)

		var resp eventResponse
		decodeJSON(t, rr, &resp)
		assert.Equal(t, "Polymer Summit", resp.Title)
		assert.Equal(t, "2030-01-05", resp.Date)
		assert.Equal(t, "https://events.example/polymer", resp.URL)
		assert.NotEmpty(t, resp.ID)
	})

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"missing title", `{"date":"2030-01-05","time":"10:00","venue":"Hall"}`, "title"},
		{"blank venue", `{"title":"Summit","date":"2030-01-05","time":"10:00","venue":"  "}`, "venue"},
		{"missing time", `{"title":"Summit","date":"2030-01-05","venue":"Hall"}`, "time"},
		{"bad date", `{"title":"Summit","date":"05/01/2030","time":"10:00","venue":"Hall"}`, "date"},
		{"bad url", `{"title":"Summit","date":"2030-01-05","time":"10:00","venue":"Hall","url":"not a url"}`, "url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postEvent(t, newTestHTTPServer(newTestDeps()), tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, errorMessage(t, rr), tt.wantField)
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		rr := postEvent(t, newTestHTTPServer(newTestDeps()), `{"title":`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "invalid JSON request body", errorMessage(t, rr))
	})

	t.Run("duplicate is a conflict", func(t *testing.T) {
		deps := newTestDeps()
		deps.Events = &mockEventRepo{
			createFn: func(context.Context, domain.Record) (*domain.StoredRecord, error) {
				return nil, domain.NewAlreadyExistsError("event", "Summit 2030-01-05")
			},
		}

		rr := postEvent(t, newTestHTTPServer(deps), `{"title":"Summit","date":"2030-01-05","time":"10:00","venue":"Hall"}`)
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "event already exists: Summit 2030-01-05", errorMessage(t, rr))
	})
}
