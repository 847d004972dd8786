// Package domain provides the provider-agnostic record model and error taxonomy
// shared by the source adapters, the aggregator, persistence and the API.
package domain

import "strings"

// RecordKind identifies which feed a record belongs to.
// These values must match the kind column used by the persistence layer.
type RecordKind string

const (
	KindEvent RecordKind = "event"
	KindNews  RecordKind = "news"
	KindPaper RecordKind = "paper"
)

// IsValid reports whether k is a known record kind.
func (k RecordKind) IsValid() bool {
	switch k {
	case KindEvent, KindNews, KindPaper:
		return true
	default:
		return false
	}
}

// SourceType identifies the external provider that produced a record.
type SourceType string

const (
	SourceArXiv         SourceType = "arxiv"
	SourcePubMedCentral SourceType = "pubmed_central"
	SourceDOAJ          SourceType = "doaj"
	SourceCORE          SourceType = "core"
	SourceNewsAPI       SourceType = "newsapi"
	SourceTicketmaster  SourceType = "ticketmaster"
	SourceAllEvents     SourceType = "allevents"

	// SourceManual marks events created through the API.
	SourceManual SourceType = "manual"
)

// Label returns the human-readable source label: underscores become spaces
// and each word is title-cased ("pubmed_central" -> "Pubmed Central").
func (s SourceType) Label() string {
	words := strings.Fields(strings.ReplaceAll(string(s), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// Kind returns the record kind a source produces.
func (s SourceType) Kind() RecordKind {
	switch s {
	case SourceNewsAPI:
		return KindNews
	case SourceTicketmaster, SourceAllEvents, SourceManual:
		return KindEvent
	default:
		return KindPaper
	}
}
