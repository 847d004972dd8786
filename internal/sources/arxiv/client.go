// Package arxiv fetches recent materials-science preprints from the arXiv API.
package arxiv

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/materials-aggregator/internal/classifier"
	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/sources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit follows arXiv's request of one call every few seconds.
	DefaultRateLimit = 0.5

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultMaxResults is the default number of papers per fetch.
	DefaultMaxResults = 50

	// journalName is the venue reported for every arXiv record.
	journalName = "ArXiv"
)

// MaterialsKeywords is the subject half of the default query.
var MaterialsKeywords = []string{
	"materials science",
	"nanomaterials",
	"graphene",
	"carbon nanotubes",
	"quantum dots",
	"perovskite",
	"metal organic frameworks",
	"MOF",
	"2D materials",
	"composite materials",
	"polymer",
	"ceramic",
	"metallic",
	"semiconductor",
	"superconductor",
	"catalyst",
	"battery materials",
	"solar cell materials",
	"biomaterials",
	"smart materials",
}

// InnovationTerms is the novelty half of the default query.
var InnovationTerms = []string{
	"breakthrough",
	"novel",
	"innovative",
	"new material",
	"discovery",
	"advancement",
	"improvement",
	"enhanced",
	"superior",
	"revolutionary",
}

// doiRegex finds a DOI embedded in free text.
var doiRegex = regexp.MustCompile(`10\.\d{4,}/[-._;()/:\w]+`)

// Config holds configuration for the arXiv client.
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
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements sources.Adapter for arXiv.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

var _ sources.Adapter = (*Client)(nil)

// New creates a new arXiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return &Client{
		config: cfg,
		httpClient: sources.NewHTTPClient(sources.HTTPClientConfig{
			Name:       string(domain.SourceArXiv),
			Timeout:    cfg.Timeout,
			RateLimit:  cfg.RateLimit,
			BurstSize:  cfg.BurstSize,
			MaxRetries: cfg.MaxRetries,
			Observer:   cfg.Observer,
		}),
	}
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Source returns the source type identifier.
func (c *Client) Source() domain.SourceType {
	return domain.SourceArXiv
}

// Fetch returns the newest papers matching the materials/innovation query,
// or, when q.Text is set, papers on that topic.
func (c *Client) Fetch(ctx context.Context, q sources.Query) ([]domain.Record, error) {
	searchQuery := BuildDefaultQuery()
	if topic := strings.TrimSpace(q.Text); topic != "" {
		searchQuery = BuildTopicQuery(topic)
	}
	return c.search(ctx, searchQuery, q.EffectiveLimit(c.config.MaxResults))
}

// FetchByTopic returns the newest materials papers about topic.
func (c *Client) FetchByTopic(ctx context.Context, topic string, limit int) ([]domain.Record, error) {
	return c.Fetch(ctx, sources.Query{Text: topic, Limit: limit})
}

func (c *Client) search(ctx context.Context, searchQuery string, limit int) ([]domain.Record, error) {
	searchURL, err := c.buildSearchURL(searchQuery, limit)
	if err != nil {
		return nil, sources.InvalidURL(domain.SourceArXiv, err)
	}

	body, err := sources.Get(ctx, c.httpClient, domain.SourceArXiv, searchURL, nil)
	if err != nil {
		return nil, err
	}

	var feed Feed
	if err := xml.NewDecoder(bytes.NewReader(body)).Decode(&feed); err != nil {
		return nil, domain.NewMalformedError(domain.SourceArXiv, err)
	}

	records := make([]domain.Record, 0, len(feed.Entries))
	for i := range feed.Entries {
		if record, ok := entryToRecord(&feed.Entries[i]); ok {
			records = append(records, record)
		}
	}
	return records, nil
}

// BuildDefaultQuery ORs the materials keywords, ORs the innovation terms and
// ANDs the two groups.
func BuildDefaultQuery() string {
	return "(" + orGroup(MaterialsKeywords) + ") AND (" + orGroup(InnovationTerms) + ")"
}

// BuildTopicQuery restricts a topic phrase to materials papers.
func BuildTopicQuery(topic string) string {
	return fmt.Sprintf(`all:"%s" AND all:materials`, strings.ReplaceAll(topic, `"`, ""))
}

func orGroup(terms []string) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = `all:"` + t + `"`
	}
	return strings.Join(parts, " OR ")
}

// buildSearchURL constructs the arXiv search API URL.
func (c *Client) buildSearchURL(searchQuery string, limit int) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"

	query := url.Values{}
	query.Set("search_query", searchQuery)
	query.Set("max_results", strconv.Itoa(limit))
	query.Set("sortBy", "submittedDate")
	query.Set("sortOrder", "descending")

	baseURL.RawQuery = query.Encode()
	return baseURL.String(), nil
}

// entryToRecord converts an Atom entry. Entries without a title are skipped.
func entryToRecord(entry *Entry) (domain.Record, bool) {
	title := normalizeWhitespace(entry.Title)
	if title == "" {
		return domain.Record{}, false
	}
	abstract := normalizeWhitespace(entry.Summary)

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	arxivID := extractArXivID(entry.ID)

	pdfURL := ""
	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			pdfURL = link.Href
			break
		}
	}
	if pdfURL == "" && arxivID != "" {
		pdfURL = "http://arxiv.org/pdf/" + arxivID
	}

	doi := strings.TrimSpace(entry.DOI)
	if doi == "" {
		doi = ExtractDOI(abstract)
	}

	record := domain.Record{
		Kind:           domain.KindPaper,
		Source:         domain.SourceArXiv,
		Title:          title,
		PublishedAt:    sources.ParseDate(entry.Published),
		SourceURL:      strings.TrimSpace(entry.ID),
		VenueOrJournal: journalName,
		Authors:        authors,
		Abstract:       abstract,
		DOI:            doi,
		ArXivID:        arxivID,
		PDFURL:         pdfURL,
	}
	if len(entry.Categories) > 0 {
		record.Category = entry.Categories[0].Term
	}
	classifier.Apply(&record, abstract)
	return record, true
}

// extractArXivID returns the last path segment of the entry id, version included.
func extractArXivID(entryID string) string {
	entryID = strings.TrimRight(strings.TrimSpace(entryID), "/")
	if entryID == "" {
		return ""
	}
	return entryID[strings.LastIndex(entryID, "/")+1:]
}

// ExtractDOI returns the first DOI found in text, or "".
func ExtractDOI(text string) string {
	return doiRegex.FindString(text)
}

// normalizeWhitespace trims and collapses whitespace runs.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
