package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// EventRepository reads and creates persisted events.
type EventRepository interface {
	// Upcoming returns up to limit events dated today or later, soonest first.
	// Events without a date follow the dated ones.
	Upcoming(ctx context.Context, limit int) ([]domain.StoredRecord, error)

	// Create stores a single event.
	// Returns domain.ErrAlreadyExists if an event with the same title and date exists.
	Create(ctx context.Context, event domain.Record) (*domain.StoredRecord, error)
}

const createEventSQL = `
	INSERT INTO events (
		id, natural_key, title, event_date, event_time, venue, description,
		category, price, status, image_url, url, source
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
	)
	ON CONFLICT DO NOTHING
	RETURNING ` + eventColumns

var _ EventRepository = (*PgEventRepository)(nil)

// PgEventRepository is a PostgreSQL implementation of EventRepository.
type PgEventRepository struct {
	db DBTX
}

// NewPgEventRepository creates a new PostgreSQL event repository.
func NewPgEventRepository(db DBTX) *PgEventRepository {
	return &PgEventRepository{db: db}
}

// Upcoming returns events on or after the database's current date.
func (r *PgEventRepository) Upcoming(ctx context.Context, limit int) ([]domain.StoredRecord, error) {
	limit = clampLimit(limit, DefaultPageLimit, MaxPageLimit)

	query := fmt.Sprintf(`
		SELECT %s
		FROM events
		WHERE event_date IS NULL OR event_date >= CURRENT_DATE
		ORDER BY event_date ASC NULLS LAST, event_time ASC, created_at DESC
		LIMIT $1`, eventColumns)

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming events: %w", err)
	}
	events, err := collect(rows, scanEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}
	return events, nil
}

// Create inserts event and returns the stored row.
func (r *PgEventRepository) Create(ctx context.Context, event domain.Record) (*domain.StoredRecord, error) {
	event.Kind = domain.KindEvent
	if err := event.Validate(); err != nil {
		return nil, err
	}
	key := event.NaturalKey()
	if key == "" {
		return nil, domain.NewValidationError("title", "title is required")
	}

	args := kindTables[domain.KindEvent].args(uuid.New(), key, &event)
	stored, err := scanEvent(r.db.QueryRow(ctx, createEventSQL, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewAlreadyExistsError("event", event.Title+" "+event.Date())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return &stored, nil
}
