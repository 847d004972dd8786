package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/helixir/materials-aggregator/internal/domain"
)

var _ NewsRepository = (*PgNewsRepository)(nil)

// PgNewsRepository is a PostgreSQL implementation of NewsRepository.
type PgNewsRepository struct {
	db DBTX
}

// NewPgNewsRepository creates a new PostgreSQL news repository.
func NewPgNewsRepository(db DBTX) *PgNewsRepository {
	return &PgNewsRepository{db: db}
}

// List returns one page of news, optionally restricted to one category.
func (r *PgNewsRepository) List(ctx context.Context, filter NewsFilter) (Page, error) {
	filter.normalize()

	whereClause := ""
	var args []any
	if c := strings.TrimSpace(filter.Category); c != "" {
		whereClause = "WHERE category = $1"
		args = append(args, c)
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM news "+whereClause, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("failed to count news: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM news
		%s
		ORDER BY published_at DESC NULLS LAST, created_at DESC
		LIMIT $%d OFFSET $%d`,
		newsColumns, whereClause, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, filter.offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("failed to list news: %w", err)
	}
	items, err := collect(rows, scanNews)
	if err != nil {
		return Page{}, fmt.Errorf("failed to scan news: %w", err)
	}
	return newPage(items, total, filter.Pagination), nil
}

// Latest returns the most recently published articles.
func (r *PgNewsRepository) Latest(ctx context.Context, limit int) ([]domain.StoredRecord, error) {
	limit = clampLimit(limit, DefaultPageLimit, MaxPageLimit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM news
		ORDER BY published_at DESC NULLS LAST, created_at DESC
		LIMIT $1`, newsColumns)

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest news: %w", err)
	}
	items, err := collect(rows, scanNews)
	if err != nil {
		return nil, fmt.Errorf("failed to scan news: %w", err)
	}
	return items, nil
}

// Stats returns the article total, per-category counts and the ten most
// frequent publishers.
func (r *PgNewsRepository) Stats(ctx context.Context) (*NewsStats, error) {
	stats := &NewsStats{
		Categories: []CategoryCount{},
		TopSources: []SourceCount{},
	}

	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM news").Scan(&stats.TotalNews); err != nil {
		return nil, fmt.Errorf("failed to count news: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT category, COUNT(*)
		FROM news
		GROUP BY category
		ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to count categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		stats.Categories = append(stats.Categories, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category counts: %w", err)
	}

	sourceRows, err := r.db.Query(ctx, `
		SELECT source_name, COUNT(*)
		FROM news
		GROUP BY source_name
		ORDER BY COUNT(*) DESC, source_name
		LIMIT $1`, statsTopN)
	if err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}
	defer sourceRows.Close()
	for sourceRows.Next() {
		var sc SourceCount
		if err := sourceRows.Scan(&sc.Source, &sc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		stats.TopSources = append(stats.TopSources, sc)
	}
	if err := sourceRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source counts: %w", err)
	}

	return stats, nil
}
