// Package sources provides the shared plumbing for external content providers.
//
// Every provider (arXiv, PubMed Central, DOAJ, CORE, NewsAPI, Ticketmaster,
// AllEvents) lives in its own subpackage and implements Adapter. Adapters
// build a provider-specific request, call the provider through HTTPClient and
// map each returned item into a domain.Record, running the classifier over
// paper text.
//
// Adapters always report failures as *domain.UpstreamError. Whether a failure
// is swallowed (best-effort) or surfaced is decided by the caller, see the
// aggregator package.
//
// Example usage:
//
//	client := doaj.New(doaj.Config{})
//	records, err := client.Fetch(ctx, sources.Query{Text: "perovskite", Limit: 20})
package sources

import (
	"context"

	"github.com/helixir/materials-aggregator/internal/domain"
)

const (
	// MaxLimit caps every per-call result limit.
	MaxLimit = 100

	// DefaultLimit is used when a query does not set one.
	DefaultLimit = 20
)

// Query carries the provider-agnostic fetch parameters.
type Query struct {
	// Text is the free-text query. Adapters combine it with their own
	// fixed qualifiers. Empty means the adapter's default query.
	Text string

	// Limit bounds the number of records requested from the provider.
	Limit int
}

// EffectiveLimit returns q.Limit clamped to 1..MaxLimit, or def when unset.
func (q Query) EffectiveLimit(def int) int {
	limit := q.Limit
	if limit <= 0 {
		limit = def
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit
}

// Adapter is implemented by every provider client.
type Adapter interface {
	// Source identifies the provider.
	Source() domain.SourceType

	// Fetch retrieves and normalizes records. Individual malformed items
	// are dropped; request-level failures return a *domain.UpstreamError.
	Fetch(ctx context.Context, q Query) ([]domain.Record, error)
}
