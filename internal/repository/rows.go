package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// kindTable describes how one record kind is stored.
type kindTable struct {
	name   string
	insert string
	args   func(id uuid.UUID, key string, rec *domain.Record) []any
}

const insertPaperSQL = `
	INSERT INTO research_papers (
		id, natural_key, title, abstract, authors, journal, published_at,
		doi, arxiv_id, url, pdf_url, image_url, category, keywords,
		materials_focus, source
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
	)
	ON CONFLICT DO NOTHING
	RETURNING id`

const insertNewsSQL = `
	INSERT INTO news (
		id, natural_key, title, summary, url, source_name, image_url,
		category, keywords, published_at, source
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
	)
	ON CONFLICT DO NOTHING
	RETURNING id`

const insertEventSQL = `
	INSERT INTO events (
		id, natural_key, title, event_date, event_time, venue, description,
		category, price, status, image_url, url, source
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
	)
	ON CONFLICT DO NOTHING
	RETURNING id`

var kindTables = map[domain.RecordKind]kindTable{
	domain.KindPaper: {
		name:   "research_papers",
		insert: insertPaperSQL,
		args: func(id uuid.UUID, key string, r *domain.Record) []any {
			return []any{
				id, key, r.Title, r.Abstract, nonNil(r.Authors), r.VenueOrJournal, r.PublishedAt,
				nullIfEmpty(r.DOI), nullIfEmpty(r.ArXivID), r.SourceURL, r.PDFURL, r.ImageURL,
				r.Category, nonNil(r.Keywords), nonNil(r.MaterialsFocus), string(r.Source),
			}
		},
	},
	domain.KindNews: {
		name:   "news",
		insert: insertNewsSQL,
		args: func(id uuid.UUID, key string, r *domain.Record) []any {
			return []any{
				id, key, r.Title, r.Description, r.SourceURL, r.VenueOrJournal, r.ImageURL,
				r.Category, nonNil(r.Keywords), r.PublishedAt, string(r.Source),
			}
		},
	},
	domain.KindEvent: {
		name:   "events",
		insert: insertEventSQL,
		args: func(id uuid.UUID, key string, r *domain.Record) []any {
			return []any{
				id, key, r.Title, eventDate(r.PublishedAt), r.StartTime, r.VenueOrJournal, r.Description,
				r.Category, r.Price, r.Status, r.ImageURL, r.SourceURL, string(r.Source),
			}
		},
	},
}

// eventDate truncates t to its calendar day for the DATE column.
func eventDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

const paperColumns = `id, title, abstract, authors, journal, published_at, doi, arxiv_id,
	url, pdf_url, image_url, category, keywords, materials_focus, source,
	created_at, updated_at`

const newsColumns = `id, title, summary, url, source_name, image_url, category, keywords,
	published_at, source, created_at, updated_at`

const eventColumns = `id, title, event_date, event_time, venue, description, category,
	price, status, image_url, url, source, created_at, updated_at`

func scanPaper(row pgx.Row) (domain.StoredRecord, error) {
	var (
		rec          domain.StoredRecord
		doi, arxivID *string
		source       string
	)
	err := row.Scan(
		&rec.ID, &rec.Title, &rec.Abstract, &rec.Authors, &rec.VenueOrJournal, &rec.PublishedAt,
		&doi, &arxivID, &rec.SourceURL, &rec.PDFURL, &rec.ImageURL, &rec.Category,
		&rec.Keywords, &rec.MaterialsFocus, &source, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.StoredRecord{}, err
	}
	rec.Kind = domain.KindPaper
	rec.DOI = derefString(doi)
	rec.ArXivID = derefString(arxivID)
	setSource(&rec.Record, source)
	return rec, nil
}

func scanNews(row pgx.Row) (domain.StoredRecord, error) {
	var (
		rec    domain.StoredRecord
		source string
	)
	err := row.Scan(
		&rec.ID, &rec.Title, &rec.Description, &rec.SourceURL, &rec.VenueOrJournal, &rec.ImageURL,
		&rec.Category, &rec.Keywords, &rec.PublishedAt, &source, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.StoredRecord{}, err
	}
	rec.Kind = domain.KindNews
	setSource(&rec.Record, source)
	return rec, nil
}

func scanEvent(row pgx.Row) (domain.StoredRecord, error) {
	var (
		rec    domain.StoredRecord
		source string
	)
	err := row.Scan(
		&rec.ID, &rec.Title, &rec.PublishedAt, &rec.StartTime, &rec.VenueOrJournal, &rec.Description,
		&rec.Category, &rec.Price, &rec.Status, &rec.ImageURL, &rec.SourceURL, &source,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return domain.StoredRecord{}, err
	}
	rec.Kind = domain.KindEvent
	setSource(&rec.Record, source)
	return rec, nil
}

func setSource(rec *domain.Record, source string) {
	rec.Source = domain.SourceType(source)
	if source != "" {
		rec.SourceLabel = rec.Source.Label()
	}
}

// collect drains rows through scan.
func collect(rows pgx.Rows, scan func(pgx.Row) (domain.StoredRecord, error)) ([]domain.StoredRecord, error) {
	defer rows.Close()

	out := []domain.StoredRecord{}
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
