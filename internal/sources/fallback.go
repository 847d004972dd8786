package sources

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/helixir/materials-aggregator/internal/domain"
)

// Fallback tries a primary adapter and falls back to a secondary one when the
// primary fails or returns nothing. Source reports the primary's type.
type Fallback struct {
	primary   Adapter
	secondary Adapter
	logger    zerolog.Logger
}

var _ Adapter = (*Fallback)(nil)

// NewFallback creates a fallback chain of two adapters.
func NewFallback(primary, secondary Adapter, logger zerolog.Logger) *Fallback {
	return &Fallback{
		primary:   primary,
		secondary: secondary,
		logger:    logger.With().Str("component", "fallback").Logger(),
	}
}

// Source returns the primary adapter's source type.
func (f *Fallback) Source() domain.SourceType {
	return f.primary.Source()
}

// Fetch returns the primary's records when it succeeds with at least one
// record. Otherwise the secondary is tried; if it fails too, both errors are
// returned joined.
func (f *Fallback) Fetch(ctx context.Context, q Query) ([]domain.Record, error) {
	records, primaryErr := f.primary.Fetch(ctx, q)
	if primaryErr == nil && len(records) > 0 {
		return records, nil
	}
	if primaryErr != nil {
		f.logger.Warn().Err(primaryErr).
			Str("primary", string(f.primary.Source())).
			Str("secondary", string(f.secondary.Source())).
			Msg("primary source failed, falling back")
	}

	fallback, secondaryErr := f.secondary.Fetch(ctx, q)
	if secondaryErr != nil {
		if primaryErr != nil {
			return nil, errors.Join(primaryErr, secondaryErr)
		}
		return records, nil
	}
	return fallback, nil
}
