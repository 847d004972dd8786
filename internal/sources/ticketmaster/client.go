// Package ticketmaster fetches upcoming events from the Ticketmaster Discovery API.
package ticketmaster

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/sources"
)

const (
	// DefaultBaseURL is the Discovery API base URL.
	DefaultBaseURL = "https://app.ticketmaster.com/discovery/v2"

	// DefaultCity and DefaultCountryCode select the events feed.
	DefaultCity        = "Chandigarh"
	DefaultCountryCode = "IN"

	// DefaultSize is the default number of events per fetch.
	DefaultSize = 20

	// DefaultRateLimit stays below the Discovery API's 5 requests per second.
	DefaultRateLimit = 4.0

	defaultVenue = "TBD"
)

// Config holds configuration for the Ticketmaster client.
type Config struct {
	BaseURL     string
	APIKey      string
	City        string
	CountryCode string
	Size        int
	Timeout     time.Duration
	RateLimit   float64
	BurstSize   int
	MaxRetries  int
	Observer    sources.RequestObserver
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.City == "" {
		c.City = DefaultCity
	}
	if c.CountryCode == "" {
		c.CountryCode = DefaultCountryCode
	}
	if c.Size == 0 {
		c.Size = DefaultSize
	}
	if c.Timeout == 0 {
		c.Timeout = sources.DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = 4
	}
}

// Client implements sources.Adapter for Ticketmaster.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

var _ sources.Adapter = (*Client)(nil)

// New creates a new Ticketmaster client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Name:       string(domain.SourceTicketmaster),
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			BurstSize:  cfg.BurstSize,
			MaxRetries: cfg.MaxRetries,
			Observer:   cfg.Observer,
		}),
	}
}

// NewWithHTTPClient creates a new Ticketmaster client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Source returns the source type identifier.
func (c *Client) Source() domain.SourceType {
	return domain.SourceTicketmaster
}

// Fetch returns upcoming events in the configured city, soonest first.
// A missing API key yields a misconfiguration error without a network call.
func (c *Client) Fetch(ctx context.Context, q sources.Query) ([]domain.Record, error) {
	if c.config.APIKey == "" {
		return nil, domain.NewMisconfiguredError(domain.SourceTicketmaster, "Missing TICKETMASTER_API_KEY")
	}

	endpoint, err := c.buildURL(q.EffectiveLimit(c.config.Size))
	if err != nil {
		return nil, sources.InvalidURL(domain.SourceTicketmaster, err)
	}

	body, err := sources.Get(ctx, c.httpClient, domain.SourceTicketmaster, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := sources.DecodeJSON(domain.SourceTicketmaster, body, &resp); err != nil {
		return nil, err
	}

	records := make([]domain.Record, 0, len(resp.Embedded.Events))
	for i := range resp.Embedded.Events {
		if record, ok := c.eventToRecord(&resp.Embedded.Events[i]); ok {
			records = append(records, record)
		}
	}
	return records, nil
}

func (c *Client) buildURL(size int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/events.json"

	query := url.Values{}
	query.Set("city", c.config.City)
	query.Set("countryCode", c.config.CountryCode)
	query.Set("size", strconv.Itoa(size))
	query.Set("sort", "date,asc")
	// The Discovery API takes the key only as a query parameter;
	// sources.Get redacts it from errors.
	query.Set("apikey", c.config.APIKey)

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

func (c *Client) eventToRecord(e *event) (domain.Record, bool) {
	title := strings.TrimSpace(e.Name)
	published := sources.ParseDate(e.Dates.Start.LocalDate)
	if title == "" {
		return domain.Record{}, false
	}

	venue := defaultVenue
	if len(e.Embedded.Venues) > 0 && strings.TrimSpace(e.Embedded.Venues[0].Name) != "" {
		venue = strings.TrimSpace(e.Embedded.Venues[0].Name)
	}

	record := domain.Record{
		Kind:           domain.KindEvent,
		Source:         domain.SourceTicketmaster,
		Title:          title,
		PublishedAt:    published,
		StartTime:      ShortTime(e.Dates.Start.LocalTime),
		SourceURL:      strings.TrimSpace(e.URL),
		VenueOrJournal: venue,
		Description:    strings.TrimSpace(e.Info),
		Status:         e.Dates.Status.Code,
	}
	if record.Description == "" {
		record.Description = "Event in " + c.config.City
	}
	if len(e.Classifications) > 0 {
		record.Category = e.Classifications[0].Segment.Name
	}
	if len(e.Images) > 0 {
		record.ImageURL = e.Images[0].URL
	}
	if len(e.PriceRanges) > 0 {
		p := e.PriceRanges[0]
		record.Price = FormatPrice(p.Min, p.Max, p.Currency)
	}
	return record, true
}

// ShortTime trims a "15:04:05" local time to "15:04".
func ShortTime(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 5 {
		return s[:5]
	}
	return s
}

// FormatPrice renders a price range as "min-max CUR".
func FormatPrice(minPrice, maxPrice float64, currency string) string {
	return strings.TrimSpace(fmt.Sprintf("%s-%s %s",
		strconv.FormatFloat(minPrice, 'f', -1, 64),
		strconv.FormatFloat(maxPrice, 'f', -1, 64),
		currency))
}
