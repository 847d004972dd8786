package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db  DBTX
	now func() time.Time
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db DBTX) *PgPaperRepository {
	return &PgPaperRepository{db: db, now: time.Now}
}

// List returns one page of papers ordered by publication date, missing dates last.
func (r *PgPaperRepository) List(ctx context.Context, filter PaperFilter) (Page, error) {
	filter.normalize()

	var conditions []string
	var args []any
	argIndex := 1

	if j := strings.TrimSpace(filter.Journal); j != "" {
		conditions = append(conditions, fmt.Sprintf("journal ILIKE $%d", argIndex))
		args = append(args, containsPattern(j))
		argIndex++
	}
	if m := strings.TrimSpace(filter.MaterialsFocus); m != "" {
		conditions = append(conditions, fmt.Sprintf("materials_focus @> ARRAY[$%d]::text[]", argIndex))
		args = append(args, m)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM research_papers %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("failed to count papers: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM research_papers
		%s
		ORDER BY published_at DESC NULLS LAST, created_at DESC
		LIMIT $%d OFFSET $%d`,
		paperColumns, whereClause, argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.offset())

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return Page{}, fmt.Errorf("failed to list papers: %w", err)
	}
	papers, err := collect(rows, scanPaper)
	if err != nil {
		return Page{}, fmt.Errorf("failed to scan papers: %w", err)
	}

	return newPage(papers, total, filter.Pagination), nil
}

// Recent returns papers published on or after now minus days.
func (r *PgPaperRepository) Recent(ctx context.Context, days, limit int) ([]domain.StoredRecord, error) {
	if days < 1 || days > MaxRecentDays {
		return nil, domain.NewValidationError("days", fmt.Sprintf("must be between 1 and %d", MaxRecentDays))
	}
	limit = clampLimit(limit, DefaultRecentLimit, MaxPageLimit)
	cutoff := r.now().UTC().AddDate(0, 0, -days)

	query := fmt.Sprintf(`
		SELECT %s
		FROM research_papers
		WHERE published_at >= $1
		ORDER BY published_at DESC
		LIMIT $2`, paperColumns)

	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent papers: %w", err)
	}
	papers, err := collect(rows, scanPaper)
	if err != nil {
		return nil, fmt.Errorf("failed to scan papers: %w", err)
	}
	return papers, nil
}

// Search matches query case-insensitively against title, abstract or any keyword.
func (r *PgPaperRepository) Search(ctx context.Context, query string, max int) ([]domain.StoredRecord, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinSearchQueryRunes {
		return nil, domain.NewValidationError("q", "must be at least 2 characters")
	}
	max = clampLimit(max, DefaultSearchLimit, MaxSearchLimit)

	sqlQuery := fmt.Sprintf(`
		SELECT %s
		FROM research_papers
		WHERE title ILIKE $1
			OR abstract ILIKE $1
			OR EXISTS (SELECT 1 FROM unnest(keywords) AS k WHERE k ILIKE $1)
		ORDER BY published_at DESC NULLS LAST, created_at DESC
		LIMIT $2`, paperColumns)

	rows, err := r.db.Query(ctx, sqlQuery, containsPattern(query), max)
	if err != nil {
		return nil, fmt.Errorf("failed to search papers: %w", err)
	}
	papers, err := collect(rows, scanPaper)
	if err != nil {
		return nil, fmt.Errorf("failed to scan papers: %w", err)
	}
	return papers, nil
}

// Stats returns the paper total, the ten most common journals and the
// number of papers per materials category.
func (r *PgPaperRepository) Stats(ctx context.Context) (*PaperStats, error) {
	stats := &PaperStats{
		TopJournals:           []JournalCount{},
		MaterialsDistribution: map[string]int64{},
	}

	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM research_papers").Scan(&stats.TotalPapers); err != nil {
		return nil, fmt.Errorf("failed to count papers: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT journal, COUNT(*)
		FROM research_papers
		GROUP BY journal
		ORDER BY COUNT(*) DESC, journal
		LIMIT $1`, statsTopN)
	if err != nil {
		return nil, fmt.Errorf("failed to count journals: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var jc JournalCount
		if err := rows.Scan(&jc.Journal, &jc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan journal count: %w", err)
		}
		stats.TopJournals = append(stats.TopJournals, jc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal counts: %w", err)
	}

	focusRows, err := r.db.Query(ctx, `
		SELECT m, COUNT(*)
		FROM research_papers, unnest(materials_focus) AS m
		GROUP BY m`)
	if err != nil {
		return nil, fmt.Errorf("failed to count materials focus: %w", err)
	}
	defer focusRows.Close()
	for focusRows.Next() {
		var (
			material string
			count    int64
		)
		if err := focusRows.Scan(&material, &count); err != nil {
			return nil, fmt.Errorf("failed to scan materials count: %w", err)
		}
		stats.MaterialsDistribution[material] = count
	}
	if err := focusRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating materials counts: %w", err)
	}

	return stats, nil
}
