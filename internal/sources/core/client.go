// Package core fetches research outputs from the CORE aggregator (core.ac.uk).
// CORE requires an API key; without one the adapter returns no records.
package core

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/materials-aggregator/internal/classifier"
	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/sources"
)

const (
	// DefaultBaseURL is the CORE API base URL.
	DefaultBaseURL = "https://api.core.ac.uk/v3"

	// DefaultRateLimit matches CORE's registered-key allowance.
	DefaultRateLimit = 1.0

	// DefaultMaxResults is the default number of works per fetch.
	DefaultMaxResults = 20

	// DefaultQuery is used when the caller gives no query text.
	DefaultQuery = "materials science"

	defaultJournal = "CORE"
)

// Config holds configuration for the CORE client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RateLimit  float64
	BurstSize  int
	MaxRetries int
	MaxResults int
	Observer   sources.RequestObserver
	Logger     zerolog.Logger
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = sources.DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = 1
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements sources.Adapter for CORE.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
	warnOnce   sync.Once
}

var _ sources.Adapter = (*Client)(nil)

// New creates a new CORE client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Name:       string(domain.SourceCORE),
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			BurstSize:  cfg.BurstSize,
			MaxRetries: cfg.MaxRetries,
			Observer:   cfg.Observer,
		}),
	}
}

// NewWithHTTPClient creates a new CORE client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Source returns the source type identifier.
func (c *Client) Source() domain.SourceType {
	return domain.SourceCORE
}

// BuildQuery combines free text with CORE's broader materials qualifier.
func BuildQuery(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		text = DefaultQuery
	}
	return "(" + text + ") AND (materials OR nanotechnology OR graphene OR polymer)"
}

// Fetch returns CORE works matching q, or nothing when no API key is set.
func (c *Client) Fetch(ctx context.Context, q sources.Query) ([]domain.Record, error) {
	if c.config.APIKey == "" {
		c.warnOnce.Do(func() {
			c.config.Logger.Warn().Str("source", string(domain.SourceCORE)).Msg("CORE_API_KEY not set, source disabled")
		})
		return []domain.Record{}, nil
	}

	searchURL, err := c.buildSearchURL(BuildQuery(q.Text), q.EffectiveLimit(c.config.MaxResults))
	if err != nil {
		return nil, sources.InvalidURL(domain.SourceCORE, err)
	}

	body, err := sources.Get(ctx, c.httpClient, domain.SourceCORE, searchURL,
		http.Header{"Authorization": []string{"Bearer " + c.config.APIKey}})
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := sources.DecodeJSON(domain.SourceCORE, body, &resp); err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(resp.Results))
	for i := range resp.Results {
		if record, ok := workToRecord(&resp.Results[i]); ok {
			records = append(records, record)
		}
	}
	return records, nil
}

func (c *Client) buildSearchURL(searchQuery string, limit int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/search/works"

	query := url.Values{}
	query.Set("q", searchQuery)
	query.Set("limit", strconv.Itoa(limit))

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

func workToRecord(w *work) (domain.Record, bool) {
	title := strings.TrimSpace(w.Title)
	if title == "" {
		return domain.Record{}, false
	}

	authors := make([]string, 0, len(w.Authors))
	for _, a := range w.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	journalTitle := defaultJournal
	if len(w.Journals) > 0 && strings.TrimSpace(w.Journals[0].Title) != "" {
		journalTitle = strings.TrimSpace(w.Journals[0].Title)
	} else if p := strings.TrimSpace(w.Publisher); p != "" {
		journalTitle = p
	}

	published := sources.ParseDate(w.PublishedDate)
	if published == nil && w.YearPublished > 0 {
		published = sources.ParseYearMonth(strconv.Itoa(w.YearPublished), "")
	}

	workURL := ""
	for _, l := range w.Links {
		if l.Type == "display" {
			workURL = l.URL
			break
		}
	}
	if workURL == "" && w.ID != 0 {
		workURL = "https://core.ac.uk/works/" + strconv.FormatInt(w.ID, 10)
	}

	abstract := strings.TrimSpace(w.Abstract)
	record := domain.Record{
		Kind:           domain.KindPaper,
		Source:         domain.SourceCORE,
		Title:          title,
		PublishedAt:    published,
		SourceURL:      workURL,
		VenueOrJournal: journalTitle,
		Authors:        authors,
		Abstract:       abstract,
		DOI:            strings.TrimSpace(w.DOI),
		PDFURL:         strings.TrimSpace(w.DownloadURL),
	}
	classifier.Apply(&record, title+" "+abstract)
	return record, true
}
