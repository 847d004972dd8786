// Package pmc fetches open-access articles from PubMed Central through the
// NCBI E-utilities: an esearch call for IDs, then one esummary call per ID.
package pmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/materials-aggregator/internal/classifier"
	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/sources"
)

const (
	// DefaultBaseURL is the E-utilities base URL.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is NCBI's limit without an API key.
	DefaultRateLimit = 3.0

	// APIKeyRateLimit is NCBI's limit with an API key.
	APIKeyRateLimit = 10.0

	// DefaultMaxResults is the default number of papers per fetch.
	DefaultMaxResults = 20

	// DefaultDetailConcurrency bounds parallel esummary calls.
	DefaultDetailConcurrency = 4

	// DefaultQuery is used when the caller gives no query text.
	DefaultQuery = "materials science"

	defaultJournal = "PubMed Central"
	articleBaseURL = "https://www.ncbi.nlm.nih.gov/pmc/articles/PMC"
)

// Config holds configuration for the PMC client.
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RateLimit         float64
	BurstSize         int
	MaxRetries        int
	MaxResults        int
	DetailConcurrency int
	Observer          sources.RequestObserver
	Logger            zerolog.Logger
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
		if c.APIKey != "" {
			c.RateLimit = APIKeyRateLimit
		}
	}
	if c.BurstSize == 0 {
		c.BurstSize = int(c.RateLimit)
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
	if c.DetailConcurrency <= 0 {
		c.DetailConcurrency = DefaultDetailConcurrency
	}
}

// Client implements sources.Adapter for PubMed Central.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

var _ sources.Adapter = (*Client)(nil)

// New creates a new PMC client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Name:       string(domain.SourcePubMedCentral),
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			BurstSize:  cfg.BurstSize,
			MaxRetries: cfg.MaxRetries,
			Observer:   cfg.Observer,
		}),
	}
}

// NewWithHTTPClient creates a new PMC client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Source returns the source type identifier.
func (c *Client) Source() domain.SourceType {
	return domain.SourcePubMedCentral
}

// BuildQuery combines free text with the materials qualifier.
func BuildQuery(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		text = DefaultQuery
	}
	return "(" + text + ") AND (materials OR nanotechnology)"
}

// Fetch searches PMC and resolves each hit to a record. Search failures are
// returned; a failed or malformed detail fetch drops only that record.
// Records keep the order of the search result.
func (c *Client) Fetch(ctx context.Context, q sources.Query) ([]domain.Record, error) {
	limit := q.EffectiveLimit(c.config.MaxResults)

	ids, err := c.search(ctx, BuildQuery(q.Text), limit)
	if err != nil {
		return nil, err
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}

	slots := make([]*domain.Record, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.DetailConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			record, err := c.fetchDetail(gctx, id)
			if err != nil {
				c.config.Logger.Debug().Err(err).Str("pmc_id", id).Msg("dropping pmc record")
				return nil
			}
			slots[i] = record
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, domain.NewUnavailableError(domain.SourcePubMedCentral, err)
	}

	records := make([]domain.Record, 0, len(ids))
	for _, r := range slots {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records, nil
}

func (c *Client) search(ctx context.Context, term string, limit int) ([]string, error) {
	params := url.Values{}
	params.Set("db", "pmc")
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(limit))
	params.Set("retmode", "json")
	params.Set("sort", "date")
	c.addAPIKey(params)

	body, err := sources.Get(ctx, c.httpClient, domain.SourcePubMedCentral, c.endpoint("esearch.fcgi", params), nil)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := sources.DecodeJSON(domain.SourcePubMedCentral, body, &resp); err != nil {
		return nil, err
	}
	return resp.ESearchResult.IDList, nil
}

func (c *Client) fetchDetail(ctx context.Context, id string) (*domain.Record, error) {
	params := url.Values{}
	params.Set("db", "pmc")
	params.Set("id", id)
	params.Set("retmode", "json")
	c.addAPIKey(params)

	body, err := sources.Get(ctx, c.httpClient, domain.SourcePubMedCentral, c.endpoint("esummary.fcgi", params), nil)
	if err != nil {
		return nil, err
	}

	var resp summaryResponse
	if err := sources.DecodeJSON(domain.SourcePubMedCentral, body, &resp); err != nil {
		return nil, err
	}
	raw, ok := resp.Result[id]
	if !ok {
		return nil, domain.NewMalformedError(domain.SourcePubMedCentral, fmt.Errorf("no summary for id %s", id))
	}
	var doc documentSummary
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, domain.NewMalformedError(domain.SourcePubMedCentral, err)
	}
	return summaryToRecord(id, &doc)
}

func (c *Client) endpoint(name string, params url.Values) string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + name + "?" + params.Encode()
}

func (c *Client) addAPIKey(params url.Values) {
	if c.config.APIKey != "" {
		params.Set("api_key", c.config.APIKey)
	}
}

// summaryToRecord maps an esummary document. Documents without a title are
// reported as malformed.
func summaryToRecord(id string, doc *documentSummary) (*domain.Record, error) {
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		return nil, domain.NewMalformedError(domain.SourcePubMedCentral, fmt.Errorf("summary %s has no title", id))
	}

	authors := make([]string, 0, len(doc.Authors))
	for _, a := range doc.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	journal := strings.TrimSpace(doc.FullJournalName)
	if journal == "" {
		journal = defaultJournal
	}

	published := sources.ParseDate(doc.PubDate)
	if published == nil {
		published = sources.ParseDate(doc.EPubDate)
	}

	record := &domain.Record{
		Kind:           domain.KindPaper,
		Source:         domain.SourcePubMedCentral,
		Title:          title,
		PublishedAt:    published,
		SourceURL:      articleBaseURL + id + "/",
		VenueOrJournal: journal,
		Authors:        authors,
		DOI:            extractDOI(doc),
		PDFURL:         articleBaseURL + id + "/pdf/",
	}
	classifier.Apply(record, title)
	return record, nil
}

// extractDOI prefers the doi article id and falls back to elocationid.
func extractDOI(doc *documentSummary) string {
	for _, aid := range doc.ArticleIDs {
		if aid.IDType == "doi" && strings.TrimSpace(aid.Value) != "" {
			return strings.TrimSpace(aid.Value)
		}
	}
	loc := strings.TrimSpace(doc.ELocationID)
	if rest, ok := strings.CutPrefix(loc, "doi:"); ok {
		return strings.TrimSpace(rest)
	}
	if strings.HasPrefix(loc, "10.") {
		return loc
	}
	return ""
}
