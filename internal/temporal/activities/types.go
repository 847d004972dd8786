// Package activities provides Temporal activity implementations for the
// refresh workflow.
//
// Activity inputs and outputs are defined as serializable structs that cross the
// Temporal serialization boundary. All fields must be exported for JSON
// serialization by the Temporal SDK's default data converter.
package activities

import (
	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/outbox"
)

// FetchRecordsInput contains the parameters for the FetchRecords activity.
type FetchRecordsInput struct {
	// Kind selects the feed to fetch.
	Kind domain.RecordKind

	// Query is the free-text query. Empty means each source's default.
	Query string

	// MaxPerSource bounds the records requested from each source.
	MaxPerSource int
}

// SourceBatch holds the records one source produced.
type SourceBatch struct {
	Source  domain.SourceType
	Records []domain.Record
}

// FetchRecordsOutput contains the results of the FetchRecords activity.
type FetchRecordsOutput struct {
	// Kind echoes the input kind.
	Kind domain.RecordKind

	// Batches holds one entry per source that returned records, in source order.
	Batches []SourceBatch

	// Errors contains any errors encountered from individual sources.
	Errors []SourceError
}

// Fetched returns the total number of records across all batches.
func (o *FetchRecordsOutput) Fetched() int {
	n := 0
	for _, b := range o.Batches {
		n += len(b.Records)
	}
	return n
}

// SourceError represents an error from a specific source during a fetch.
type SourceError struct {
	// Source is the provider that produced the error.
	Source domain.SourceType

	// Kind is the upstream error classification, empty for non-upstream errors.
	Kind domain.UpstreamKind

	// Error is the error message from the source.
	Error string
}

// PersistRecordsInput contains the parameters for the PersistRecords activity.
type PersistRecordsInput struct {
	Kind    domain.RecordKind
	Source  domain.SourceType
	Records []domain.Record
}

// PersistRecordsOutput contains the results of the PersistRecords activity.
type PersistRecordsOutput struct {
	Received   int
	Inserted   int
	Duplicates int
	Skipped    int
}

// PublishIngestedInput contains the notifications to publish.
type PublishIngestedInput struct {
	Events []outbox.IngestEvent
}
