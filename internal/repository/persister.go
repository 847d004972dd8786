package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/helixir/materials-aggregator/internal/database"
	"github.com/helixir/materials-aggregator/internal/domain"
)

// PersistRecorder receives persistence outcomes per record kind.
type PersistRecorder interface {
	RecordPersisted(kind string, inserted, duplicates int)
	RecordPersistFailed(kind string)
}

type nopPersistRecorder struct{}

func (nopPersistRecorder) RecordPersisted(string, int, int) {}
func (nopPersistRecorder) RecordPersistFailed(string)       {}

// UpsertResult counts what happened to each record of an Upsert call.
type UpsertResult struct {
	// Received is the number of records handed to Upsert.
	Received int `json:"received"`
	// Inserted is the number of new rows committed.
	Inserted int `json:"inserted"`
	// Duplicates were already stored or repeated earlier in the batch.
	Duplicates int `json:"duplicates"`
	// Skipped failed validation or had no derivable natural key.
	Skipped int `json:"skipped"`
}

// Persister writes fetched records, discarding any whose natural key is
// already stored. It is safe for concurrent use.
type Persister struct {
	db       Transactor
	logger   zerolog.Logger
	recorder PersistRecorder
}

// PersisterOption configures a Persister.
type PersisterOption func(*Persister)

// WithPersistRecorder reports outcomes to r.
func WithPersistRecorder(r PersistRecorder) PersisterOption {
	return func(p *Persister) {
		if r != nil {
			p.recorder = r
		}
	}
}

// NewPersister creates a Persister running its batches through db.
func NewPersister(db Transactor, logger zerolog.Logger, opts ...PersisterOption) *Persister {
	p := &Persister{
		db:       db,
		logger:   logger.With().Str("component", "persister").Logger(),
		recorder: nopPersistRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// kindBatch is the slice of an Upsert call belonging to one kind, with the
// natural key already derived for each record.
type kindBatch struct {
	kind    domain.RecordKind
	records []*domain.Record
	keys    []string
}

// Upsert inserts every record whose natural key is not yet stored. Inserts for
// all kinds commit together; on failure nothing is written and the error is a
// *domain.StorageError. Records that fail validation are skipped, not fatal.
func (p *Persister) Upsert(ctx context.Context, records []domain.Record) (UpsertResult, error) {
	result := UpsertResult{Received: len(records)}
	batches := p.group(records, &result)
	if len(batches) == 0 {
		return result, nil
	}

	counts := make(map[domain.RecordKind]*UpsertResult, len(batches))
	err := p.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		clear(counts)
		for _, b := range batches {
			c, err := p.insertBatch(ctx, tx, b)
			if err != nil {
				return fmt.Errorf("persist %s: %w", b.kind, err)
			}
			counts[b.kind] = c
		}
		return nil
	})
	if err != nil {
		for _, b := range batches {
			p.recorder.RecordPersistFailed(string(b.kind))
		}
		p.logger.Error().Err(err).Int("records", len(records)).Msg("persist batch rolled back")
		return UpsertResult{Received: len(records), Skipped: result.Skipped}, domain.NewStorageError("upsert", err)
	}

	for _, b := range batches {
		c := counts[b.kind]
		result.Inserted += c.Inserted
		result.Duplicates += c.Duplicates
		p.recorder.RecordPersisted(string(b.kind), c.Inserted, c.Duplicates)
	}

	p.logger.Debug().
		Int("received", result.Received).
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Int("skipped", result.Skipped).
		Msg("records persisted")

	return result, nil
}

// group splits records by kind in first-seen order and drops unusable ones.
func (p *Persister) group(records []domain.Record, result *UpsertResult) []*kindBatch {
	var batches []*kindBatch
	index := make(map[domain.RecordKind]*kindBatch)

	for i := range records {
		rec := &records[i]
		if err := rec.Validate(); err != nil {
			result.Skipped++
			p.logger.Debug().Err(err).Str("title", rec.Title).Msg("skipping invalid record")
			continue
		}
		key := rec.NaturalKey()
		if key == "" {
			result.Skipped++
			p.logger.Debug().Str("kind", string(rec.Kind)).Str("title", rec.Title).Msg("skipping record without natural key")
			continue
		}

		b, ok := index[rec.Kind]
		if !ok {
			b = &kindBatch{kind: rec.Kind}
			index[rec.Kind] = b
			batches = append(batches, b)
		}
		b.records = append(b.records, rec)
		b.keys = append(b.keys, key)
	}
	return batches
}

func (p *Persister) insertBatch(ctx context.Context, tx pgx.Tx, b *kindBatch) (*UpsertResult, error) {
	table, ok := kindTables[b.kind]
	if !ok {
		return nil, fmt.Errorf("no table for kind %q", b.kind)
	}

	// Serialize writers per kind so concurrent refreshes report accurate counts.
	if err := database.AcquireXactLock(ctx, tx, database.LockKey("persist:"+table.name)); err != nil {
		return nil, err
	}

	stored, err := existingKeys(ctx, tx, table.name, b.keys)
	if err != nil {
		return nil, err
	}

	counts := &UpsertResult{}
	seen := make(map[string]struct{}, len(b.keys))
	for i, rec := range b.records {
		key := b.keys[i]
		if _, dup := seen[key]; dup {
			counts.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		if _, dup := stored[key]; dup {
			counts.Duplicates++
			continue
		}

		var id uuid.UUID
		err := tx.QueryRow(ctx, table.insert, table.args(uuid.New(), key, rec)...).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			// Another unique column (doi, arxiv_id, url) already holds this record.
			counts.Duplicates++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert into %s: %w", table.name, err)
		}
		counts.Inserted++
	}
	return counts, nil
}

// existingKeys returns the subset of keys already stored in table.
func existingKeys(ctx context.Context, tx pgx.Tx, table string, keys []string) (map[string]struct{}, error) {
	query := fmt.Sprintf("SELECT natural_key FROM %s WHERE natural_key = ANY($1)", table)
	rows, err := tx.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("lookup existing keys in %s: %w", table, err)
	}
	defer rows.Close()

	stored := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan natural key: %w", err)
		}
		stored[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate natural keys: %w", err)
	}
	return stored, nil
}
