// Package doaj fetches open-access articles from the Directory of Open Access Journals.
package doaj

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
	// DefaultBaseURL is the DOAJ API base URL.
	DefaultBaseURL = "https://doaj.org/api/v2"

	// DefaultRateLimit stays below DOAJ's 2 requests per second.
	DefaultRateLimit = 2.0

	// DefaultMaxResults is the default page size.
	DefaultMaxResults = 20

	// DefaultQuery is used when the caller gives no query text.
	DefaultQuery = "materials science"

	defaultJournal = "DOAJ"
)

// Config holds configuration for the DOAJ client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64
	BurstSize  int
	MaxRetries int
	MaxResults int
	Observer   sources.RequestObserver
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
		c.BurstSize = 2
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements sources.Adapter for DOAJ.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

var _ sources.Adapter = (*Client)(nil)

// New creates a new DOAJ client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Name:       string(domain.SourceDOAJ),
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			BurstSize:  cfg.BurstSize,
			MaxRetries: cfg.MaxRetries,
			Observer:   cfg.Observer,
		}),
	}
}

// NewWithHTTPClient creates a new DOAJ client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Source returns the source type identifier.
func (c *Client) Source() domain.SourceType {
	return domain.SourceDOAJ
}

// BuildQuery combines free text with the materials qualifier.
func BuildQuery(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		text = DefaultQuery
	}
	return "(" + text + ") AND (materials OR nanotechnology)"
}

// Fetch returns the newest DOAJ articles matching q.
func (c *Client) Fetch(ctx context.Context, q sources.Query) ([]domain.Record, error) {
	searchURL, err := c.buildSearchURL(BuildQuery(q.Text), q.EffectiveLimit(c.config.MaxResults))
	if err != nil {
		return nil, sources.InvalidURL(domain.SourceDOAJ, err)
	}

	body, err := sources.Get(ctx, c.httpClient, domain.SourceDOAJ, searchURL, nil)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := sources.DecodeJSON(domain.SourceDOAJ, body, &resp); err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(resp.Results))
	for i := range resp.Results {
		if record, ok := articleToRecord(&resp.Results[i].BibJSON); ok {
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
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/search/articles"

	query := url.Values{}
	query.Set("q", searchQuery)
	query.Set("page", "1")
	query.Set("pageSize", strconv.Itoa(limit))
	query.Set("sort", "publishedDate:desc")

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// articleToRecord maps one bibjson block. Articles without a title are skipped.
func articleToRecord(bib *bibJSON) (domain.Record, bool) {
	title := strings.TrimSpace(bib.Title)
	if title == "" {
		return domain.Record{}, false
	}

	authors := make([]string, 0, len(bib.Author))
	for _, a := range bib.Author {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	journalTitle := strings.TrimSpace(bib.Journal.Title)
	if journalTitle == "" {
		journalTitle = defaultJournal
	}

	var doi string
	for _, id := range bib.Identifier {
		if strings.EqualFold(id.Type, "doi") {
			doi = strings.TrimSpace(id.ID)
			break
		}
	}

	var articleURL, pdfURL string
	if len(bib.Link) > 0 {
		articleURL = strings.TrimSpace(bib.Link[0].URL)
	}
	for _, l := range bib.Link {
		if strings.EqualFold(l.ContentType, "pdf") {
			pdfURL = strings.TrimSpace(l.URL)
			break
		}
	}
	if pdfURL == "" {
		pdfURL = articleURL
	}

	abstract := strings.TrimSpace(bib.Abstract)
	record := domain.Record{
		Kind:           domain.KindPaper,
		Source:         domain.SourceDOAJ,
		Title:          title,
		PublishedAt:    sources.ParseYearMonth(bib.Year, bib.Month),
		SourceURL:      articleURL,
		VenueOrJournal: journalTitle,
		Authors:        authors,
		Abstract:       abstract,
		DOI:            doi,
		PDFURL:         pdfURL,
	}
	classifier.Apply(&record, title+" "+abstract)
	return record, true
}
