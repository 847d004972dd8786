package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxKeywords bounds the derived keyword list of a record.
const MaxKeywords = 10

// DateLayout is the date-only layout used for event dates and natural keys.
const DateLayout = "2006-01-02"

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Record is the normalized shape every source adapter produces.
// Fields that do not apply to a kind are left empty.
type Record struct {
	Kind RecordKind `json:"kind"`

	// Source is the provider that produced the record. SourceLabel is filled
	// in by the aggregator when records from several providers are merged.
	Source      SourceType `json:"source,omitempty"`
	SourceLabel string     `json:"source_label,omitempty"`

	Title string `json:"title"`

	// PublishedAt is nil when the provider gave no parseable timestamp.
	// Events carry their start date here; StartTime holds the local time of day.
	PublishedAt *time.Time `json:"published_at,omitempty"`

	SourceURL      string   `json:"url,omitempty"`
	VenueOrJournal string   `json:"venue_or_journal,omitempty"`
	ImageURL       string   `json:"image_url,omitempty"`
	Category       string   `json:"category,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
	MaterialsFocus []string `json:"materials_focus,omitempty"`

	// Paper fields.
	Authors  []string `json:"authors,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
	DOI      string   `json:"doi,omitempty"`
	ArXivID  string   `json:"arxiv_id,omitempty"`
	PDFURL   string   `json:"pdf_url,omitempty"`

	// Event fields.
	StartTime   string `json:"time,omitempty"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"`
	Status      string `json:"status,omitempty"`
}

// StoredRecord is a persisted record with its generated identity.
type StoredRecord struct {
	ID uuid.UUID `json:"id"`
	Record
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the invariants every record must satisfy before it is
// handed to callers or persisted.
func (r *Record) Validate() error {
	if !r.Kind.IsValid() {
		return NewValidationError("kind", "unknown record kind")
	}
	if strings.TrimSpace(r.Title) == "" && r.PublishedAt == nil {
		return NewValidationError("title", "title and published_at are both empty")
	}
	if len(r.Keywords) > MaxKeywords {
		return NewValidationError("keywords", "more than 10 keywords")
	}
	return nil
}

// Date returns the record's date in DateLayout, or "" if it has none.
func (r *Record) Date() string {
	if r.PublishedAt == nil {
		return ""
	}
	return r.PublishedAt.Format(DateLayout)
}

// NaturalKey returns the content-derived deduplication key for the record.
// Events are keyed by title and date, news by URL and papers by DOI, then
// arXiv ID, then normalized title. Returns "" if no key can be derived.
func (r *Record) NaturalKey() string {
	switch r.Kind {
	case KindEvent:
		title := strings.TrimSpace(r.Title)
		if title == "" {
			return ""
		}
		return "event:" + title + "|" + r.Date()
	case KindNews:
		if u := strings.TrimSpace(r.SourceURL); u != "" {
			return "news:" + u
		}
		return ""
	case KindPaper:
		if doi := strings.TrimSpace(r.DOI); doi != "" {
			return "doi:" + strings.ToLower(doi)
		}
		if arxiv := strings.TrimSpace(r.ArXivID); arxiv != "" {
			return "arxiv:" + arxiv
		}
		if title := NormalizeTitle(r.Title); title != "" {
			return "title:" + title
		}
		return ""
	default:
		return ""
	}
}

// NormalizeTitle lowercases a title and collapses whitespace.
func NormalizeTitle(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return whitespaceRegex.ReplaceAllString(strings.ToLower(s), " ")
}
