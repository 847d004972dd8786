package repository

import (
	"context"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// Read limits for paper queries.
const (
	DefaultRecentDays   = 7
	MaxRecentDays       = 365
	DefaultRecentLimit  = 20
	DefaultSearchLimit  = 20
	MaxSearchLimit      = 100
	MinSearchQueryRunes = 2
	statsTopN           = 10
)

// PaperRepository reads persisted research papers.
type PaperRepository interface {
	// List returns one page of papers, newest first.
	List(ctx context.Context, filter PaperFilter) (Page, error)

	// Recent returns up to limit papers published within the last days days.
	// Returns domain.ErrInvalidInput if days is outside [1, MaxRecentDays].
	Recent(ctx context.Context, days, limit int) ([]domain.StoredRecord, error)

	// Search matches query against title, abstract and keywords.
	// Returns domain.ErrInvalidInput if query is shorter than two characters.
	Search(ctx context.Context, query string, max int) ([]domain.StoredRecord, error)

	// Stats summarizes the stored papers.
	Stats(ctx context.Context) (*PaperStats, error)
}

// PaperFilter specifies criteria for listing papers.
type PaperFilter struct {
	Pagination

	// Journal matches journals containing this text, case-insensitively (optional).
	Journal string

	// MaterialsFocus keeps papers classified under this category (optional).
	MaterialsFocus string
}

// JournalCount is one row of the top-journals table.
type JournalCount struct {
	Journal string `json:"journal"`
	Count   int64  `json:"count"`
}

// PaperStats summarizes stored papers.
type PaperStats struct {
	TotalPapers           int64            `json:"total_papers"`
	TopJournals           []JournalCount   `json:"top_journals"`
	MaterialsDistribution map[string]int64 `json:"materials_distribution"`
}
