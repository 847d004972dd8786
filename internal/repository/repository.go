// Package repository provides PostgreSQL persistence for normalized records.
//
// # Overview
//
// Three tables back the three record kinds: research_papers, news and events.
// Every row carries the record's natural key (see domain.Record.NaturalKey) under a
// unique constraint, so storage enforces first-write-wins deduplication even
// when two writers race.
//
// # Writing
//
// Persister.Upsert is the only write path for fetched records. It groups the
// batch by kind, skips records whose natural key is already stored or repeated
// inside the batch, and commits every insert of the call in one transaction.
//
// # Reading
//
// PaperRepository, NewsRepository and EventRepository expose the paginated,
// filtered read operations the REST API serves. PostgreSQL implementations
// accept a DBTX so they run against the pool or inside a transaction.
//
// # Usage Pattern
//
//	db, _ := database.New(ctx, cfg, logger)
//	persister := repository.NewPersister(db, logger)
//	papers := repository.NewPgPaperRepository(db)
package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/materials-aggregator/internal/database"
	"github.com/helixir/materials-aggregator/internal/domain"
)

// DBTX is the database interface supporting both pool and transaction contexts.
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    return repository.NewPgEventRepository(tx).Create(ctx, record)
//	})
type DBTX = database.DBTX

// Transactor runs fn inside a single transaction, committing when fn returns
// nil and rolling back otherwise. *database.DB satisfies it.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Pagination defaults and limits shared by every list operation.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Pagination selects one page of a list result. Page is 1-based.
type Pagination struct {
	Page  int
	Limit int
}

// normalize floors Page at 1 and clamps Limit to [1, MaxPageLimit].
func (p *Pagination) normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	p.Limit = clampLimit(p.Limit, DefaultPageLimit, MaxPageLimit)
}

func (p Pagination) offset() int {
	return (p.Page - 1) * p.Limit
}

// Page is one page of persisted records with the totals needed to page further.
type Page struct {
	Items []domain.StoredRecord `json:"items"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
	Pages int                   `json:"pages"`
}

func newPage(items []domain.StoredRecord, total int64, p Pagination) Page {
	if items == nil {
		items = []domain.StoredRecord{}
	}
	return Page{
		Items: items,
		Total: total,
		Page:  p.Page,
		Limit: p.Limit,
		Pages: PageCount(total, p.Limit),
	}
}

// PageCount returns ceil(total/limit), or 0 when limit is not positive.
func PageCount(total int64, limit int) int {
	if limit <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

// clampLimit returns def for non-positive limits and caps the rest at max.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching s anywhere, with LIKE
// metacharacters in s taken literally.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// nullIfEmpty maps "" to SQL NULL for columns with unique constraints.
func nullIfEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// nonNil keeps NOT NULL array columns from receiving NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
