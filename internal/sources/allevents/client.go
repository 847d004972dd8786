// Package allevents scrapes the AllEvents city listing page. The page embeds
// each event card as schema.org JSON-LD; plain card markup is read when no
// JSON-LD event is present.
package allevents

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/sources"
)

const (
	// DefaultBaseURL is the AllEvents site root.
	DefaultBaseURL = "https://allevents.in"

	// DefaultCity is the city slug of the listing page.
	DefaultCity = "chandigarh"

	// DefaultUserAgent is sent instead of the service UA; the site blocks
	// unknown clients.
	DefaultUserAgent = "Mozilla/5.0 (compatible; EventsBot/1.0)"

	// DefaultLimit bounds the number of scraped events returned.
	DefaultLimit = 20
)

// Config holds configuration for the scraper.
type Config struct {
	BaseURL    string
	City       string
	UserAgent  string
	Limit      int
	Timeout    time.Duration
	MaxRetries int
	Observer   sources.RequestObserver
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.City == "" {
		c.City = DefaultCity
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Limit == 0 {
		c.Limit = DefaultLimit
	}
	if c.Timeout == 0 {
		c.Timeout = sources.DefaultTimeout
	}
}

// Client implements sources.Adapter by scraping AllEvents.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

var _ sources.Adapter = (*Client)(nil)

// New creates a new scraper with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Name:       string(domain.SourceAllEvents),
			Timeout:    cfg.Timeout,
			RateLimit:  1,
			BurstSize:  1,
			MaxRetries: cfg.MaxRetries,
			UserAgent:  cfg.UserAgent,
			Observer:   cfg.Observer,
		}),
	}
}

// NewWithHTTPClient creates a new scraper with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Source returns the source type identifier.
func (c *Client) Source() domain.SourceType {
	return domain.SourceAllEvents
}

// Fetch downloads the listing page and returns up to the query limit of
// events in page order. Query text is ignored.
func (c *Client) Fetch(ctx context.Context, q sources.Query) ([]domain.Record, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/" + c.config.City + "/all"
	header := map[string][]string{"User-Agent": {c.config.UserAgent}}

	body, err := sources.Get(ctx, c.httpClient, domain.SourceAllEvents, endpoint, header)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewMalformedError(domain.SourceAllEvents, fmt.Errorf("parsing HTML: %w", err))
	}

	limit := q.EffectiveLimit(c.config.Limit)
	records := make([]domain.Record, 0, limit)

	for _, e := range extractLDEvents(doc) {
		if len(records) == limit {
			return records, nil
		}
		if record, ok := ldEventToRecord(e); ok {
			records = append(records, record)
		}
	}
	if len(records) > 0 {
		return records, nil
	}

	for _, cd := range extractCards(doc) {
		if len(records) == limit {
			break
		}
		records = append(records, domain.Record{
			Kind:        domain.KindEvent,
			Source:      domain.SourceAllEvents,
			Title:       cd.Title,
			PublishedAt: sources.ParseDate(cd.Date),
		})
	}
	return records, nil
}

func ldEventToRecord(e ldEvent) (domain.Record, bool) {
	title := strings.TrimSpace(e.Name)
	date, clock := splitStart(e.StartDate)
	published := sources.ParseDate(date)
	if title == "" && published == nil {
		return domain.Record{}, false
	}

	link := strings.TrimSpace(e.URL)
	if link == "" && strings.HasPrefix(e.ID, "http") {
		link = e.ID
	}

	return domain.Record{
		Kind:           domain.KindEvent,
		Source:         domain.SourceAllEvents,
		Title:          title,
		PublishedAt:    published,
		StartTime:      clock,
		SourceURL:      link,
		VenueOrJournal: locationName(e.Location),
		ImageURL:       imageURL(e.Image),
		Description:    strings.TrimSpace(e.Description),
		Status:         strings.TrimPrefix(e.EventStatus, "https://schema.org/"),
	}, true
}
