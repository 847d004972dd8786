package ticketmaster

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/observability"
	"github.com/helixir/materials-aggregator/internal/sources"
)

func newTestClient(serverURL, apiKey string) *Client {
	return NewWithHTTPClient(Config{BaseURL: serverURL, APIKey: apiKey},
		sources.NewHTTPClient(sources.HTTPClientConfig{RateLimit: 100, BurstSize: 10, MaxRetries: -1}))
}

func TestClient_Fetch(t *testing.T) {
	var params map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/events.json", r.URL.Path)
		q := r.URL.Query()
		params = map[string]string{"city": q.Get("city"), "countryCode": q.Get("countryCode"), "size": q.Get("size"), "sort": q.Get("sort"), "apikey": q.Get("apikey")}
		w.Write([]byte(`{"_embedded":{"events":[
			{"name":"Sufi Night","url":"https://tm.example/e1","info":"Live qawwali",
			 "dates":{"start":{"localDate":"2024-06-01","localTime":"19:30:00"},"status":{"code":"onsale"}},
			 "classifications":[{"segment":{"name":"Music"}}],
			 "images":[{"url":"https://tm.example/e1.jpg"}],
			 "priceRanges":[{"min":499,"max":1499.5,"currency":"INR"}],
			 "_embedded":{"venues":[{"name":"Tagore Theatre"}]}},
			{"name":"Pop-up Market","dates":{"start":{"localDate":"2024-06-02"}}},
			{"name":"","dates":{"start":{"localDate":"2024-06-03"}}}
		]}}`))
	}))
	defer server.Close()

	records, err := newTestClient(server.URL, "tm-key").Fetch(context.Background(), sources.Query{Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"city": "Chandigarh", "countryCode": "IN", "size": "10", "sort": "date,asc", "apikey": "tm-key"}, params)

	require.Len(t, records, 2)
	first := records[0]
	assert.Equal(t, domain.KindEvent, first.Kind)
	assert.Equal(t, "Sufi Night", first.Title)
	require.NotNil(t, first.PublishedAt)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), *first.PublishedAt)
	assert.Equal(t, "19:30", first.StartTime)
	assert.Equal(t, "Tagore Theatre", first.VenueOrJournal)
	assert.Equal(t, "Music", first.Category)
	assert.Equal(t, "https://tm.example/e1.jpg", first.ImageURL)
	assert.Equal(t, "499-1499.5 INR", first.Price)
	assert.Equal(t, "Live qawwali", first.Description)
	assert.Equal(t, "onsale", first.Status)

	second := records[1]
	assert.Equal(t, "TBD", second.VenueOrJournal)
	assert.Equal(t, "Event in Chandigarh", second.Description)
	assert.Empty(t, second.StartTime)
	assert.Empty(t, second.Price)
}

func TestClient_FetchNoEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"page":{"totalElements":0}}`))
	}))
	defer server.Close()

	records, err := newTestClient(server.URL, "k").Fetch(context.Background(), sources.Query{})

	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestClient_FetchMissingKey(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:0", "").Fetch(context.Background(), sources.Query{})

	assert.ErrorIs(t, err, domain.ErrMisconfigured)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "10-20 USD", FormatPrice(10, 20, "USD"))
	assert.Equal(t, "0-0", FormatPrice(0, 0, ""))
}

func TestShortTime(t *testing.T) {
	assert.Equal(t, "08:05", ShortTime("08:05:00"))
	assert.Equal(t, "08:05", ShortTime("08:05"))
	assert.Empty(t, ShortTime(""))
}

func TestClient_FetchUnavailableHidesAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	_, err := newTestClient(baseURL, "tm-secret-key").Fetch(context.Background(), sources.Query{Limit: 5})
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.NotContains(t, err.Error(), "tm-secret-key")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	observability.UpstreamFields(logger.Warn(), err).Msg("fetch failed")
	assert.NotContains(t, buf.String(), "tm-secret-key")
	assert.Contains(t, buf.String(), "apikey=REDACTED")
}
