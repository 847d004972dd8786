package repository

import (
	"context"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// NewsRepository reads persisted news articles.
type NewsRepository interface {
	// List returns one page of articles, newest first.
	List(ctx context.Context, filter NewsFilter) (Page, error)

	// Latest returns the limit most recent articles.
	Latest(ctx context.Context, limit int) ([]domain.StoredRecord, error)

	// Stats summarizes the stored articles.
	Stats(ctx context.Context) (*NewsStats, error)
}

// NewsFilter specifies criteria for listing news.
type NewsFilter struct {
	Pagination

	// Category keeps articles with exactly this category (optional).
	Category string
}

// CategoryCount is the number of articles in one category. Category is
// empty for uncategorized articles.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// SourceCount is the number of articles from one publisher.
type SourceCount struct {
	Source string `json:"source"`
	Count  int64  `json:"count"`
}

// NewsStats summarizes stored news.
type NewsStats struct {
	TotalNews  int64           `json:"total_news"`
	Categories []CategoryCount `json:"categories"`
	TopSources []SourceCount   `json:"top_sources"`
}
