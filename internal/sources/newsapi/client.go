// Package newsapi fetches headlines from NewsAPI.org. The API key is
// mandatory: a missing key is reported as a misconfiguration rather than an
// empty result.
package newsapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/materials-aggregator/internal/classifier"
	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/sources"
)

const (
	// DefaultBaseURL is the NewsAPI base URL.
	DefaultBaseURL = "https://newsapi.org/v2"

	// DefaultQuery is the default search phrase.
	DefaultQuery = "chandigarh"

	// DefaultLanguage restricts results to English.
	DefaultLanguage = "en"

	// DefaultPageSize is the default number of articles per fetch.
	DefaultPageSize = 20

	// apiKeyHeader carries the key so it stays out of logged URLs.
	apiKeyHeader = "X-Api-Key"

	unknownSource = "Unknown"
)

// Config holds configuration for the NewsAPI client.
type Config struct {
	BaseURL    string
	APIKey     string
	Query      string
	Language   string
	PageSize   int
	Timeout    time.Duration
	RateLimit  float64
	BurstSize  int
	MaxRetries int
	Observer   sources.RequestObserver
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Query == "" {
		c.Query = DefaultQuery
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.Timeout == 0 {
		c.Timeout = sources.DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = 1
	}
	if c.BurstSize == 0 {
		c.BurstSize = 2
	}
}

// article is one entry of the /everything response.
type article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
}

type everythingResponse struct {
	Status   string    `json:"status"`
	Articles []article `json:"articles"`
}

// Client implements sources.Adapter for NewsAPI.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

var _ sources.Adapter = (*Client)(nil)

// New creates a new NewsAPI client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Name:         string(domain.SourceNewsAPI),
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			MaxRetries:   cfg.MaxRetries,
			APIKey:       cfg.APIKey,
			APIKeyHeader: apiKeyHeader,
			Observer:     cfg.Observer,
		}),
	}
}

// NewWithHTTPClient creates a new NewsAPI client with a custom HTTP client.
// The API key is still read from cfg.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Source returns the source type identifier.
func (c *Client) Source() domain.SourceType {
	return domain.SourceNewsAPI
}

// Fetch returns the newest articles for q.Text, or the configured default
// query. A missing API key yields a misconfiguration error without any
// network call.
func (c *Client) Fetch(ctx context.Context, q sources.Query) ([]domain.Record, error) {
	if c.config.APIKey == "" {
		return nil, domain.NewMisconfiguredError(domain.SourceNewsAPI, "Missing NEWS_API_KEY")
	}

	text := strings.TrimSpace(q.Text)
	if text == "" {
		text = c.config.Query
	}

	endpoint, err := c.buildURL(text, q.EffectiveLimit(c.config.PageSize))
	if err != nil {
		return nil, sources.InvalidURL(domain.SourceNewsAPI, err)
	}

	body, err := sources.Get(ctx, c.httpClient, domain.SourceNewsAPI, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var resp everythingResponse
	if err := sources.DecodeJSON(domain.SourceNewsAPI, body, &resp); err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(resp.Articles))
	for i := range resp.Articles {
		if record, ok := articleToRecord(&resp.Articles[i]); ok {
			records = append(records, record)
		}
	}
	return records, nil
}

func (c *Client) buildURL(text string, pageSize int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/everything"

	query := url.Values{}
	query.Set("q", text)
	query.Set("language", c.config.Language)
	query.Set("sortBy", "publishedAt")
	query.Set("pageSize", strconv.Itoa(pageSize))

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// articleToRecord maps an article. NewsAPI marks deleted articles with the
// title "[Removed]"; those and untitled ones are skipped.
func articleToRecord(a *article) (domain.Record, bool) {
	title := strings.TrimSpace(a.Title)
	if title == "" || title == "[Removed]" {
		return domain.Record{}, false
	}

	source := strings.TrimSpace(a.Source.Name)
	if source == "" {
		source = unknownSource
	}

	record := domain.Record{
		Kind:           domain.KindNews,
		Source:         domain.SourceNewsAPI,
		Title:          title,
		PublishedAt:    sources.ParseDate(a.PublishedAt),
		SourceURL:      strings.TrimSpace(a.URL),
		VenueOrJournal: source,
		ImageURL:       strings.TrimSpace(a.URLToImage),
		Description:    strings.TrimSpace(a.Description),
	}
	classifier.Apply(&record, title+" "+record.Description)
	return record, true
}
