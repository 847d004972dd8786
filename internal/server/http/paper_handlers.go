package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/materials-aggregator/internal/aggregator"
	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/observability"
	"github.com/helixir/materials-aggregator/internal/repository"
	"github.com/helixir/materials-aggregator/internal/sources"
)

const (
	defaultFetchResults = 20
	defaultDaysBack     = 30
	maxDaysBack         = 365
)

// paperSources are the providers selectable through all-sources.
var paperSources = map[domain.SourceType]bool{
	domain.SourceArXiv:         true,
	domain.SourcePubMedCentral: true,
	domain.SourceDOAJ:          true,
	domain.SourceCORE:          true,
}

// listPapers handles GET /api/papers.
func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := s.deps.Papers.List(r.Context(), repository.PaperFilter{
		Pagination:     parsePagination(r),
		Journal:        q.Get("journal"),
		MaterialsFocus: q.Get("materials_focus"),
	})
	if err != nil {
		s.respondError(w, r, "list papers", err)
		return
	}

	writeJSON(w, http.StatusOK, paperPageResponse{
		Papers: page.Items,
		Total:  page.Total,
		Page:   page.Page,
		Limit:  page.Limit,
		Pages:  page.Pages,
	})
}

// recentPapers handles GET /api/papers/recent.
func (s *Server) recentPapers(w http.ResponseWriter, r *http.Request) {
	days := intParam(r, "days", repository.DefaultRecentDays)
	papers, err := s.deps.Papers.Recent(r.Context(), days, intParam(r, "limit", repository.DefaultRecentLimit))
	if err != nil {
		s.respondError(w, r, "recent papers", err)
		return
	}
	writeJSON(w, http.StatusOK, recentPapersResponse{Papers: nonNilStored(papers), Days: days})
}

// searchPapers handles GET /api/papers/search.
func (s *Server) searchPapers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	papers, err := s.deps.Papers.Search(r.Context(), query, intParam(r, "max_results", repository.DefaultSearchLimit))
	if err != nil {
		s.respondError(w, r, "search papers", err)
		return
	}
	writeJSON(w, http.StatusOK, searchPapersResponse{Papers: nonNilStored(papers), Query: query, Count: len(papers)})
}

// fetchArXiv handles GET /api/papers/arxiv/fetch. Papers older than
// days_back are dropped; undated papers are kept.
func (s *Server) fetchArXiv(w http.ResponseWriter, r *http.Request) {
	if s.deps.ArXiv == nil {
		writeError(w, http.StatusServiceUnavailable, "arxiv source not configured")
		return
	}
	daysBack := intParam(r, "days_back", defaultDaysBack)
	if daysBack < 1 || daysBack > maxDaysBack {
		writeDomainError(w, domain.NewValidationError("days_back", "must be between 1 and 365"))
		return
	}

	q := sources.Query{Limit: intParam(r, "max_results", defaultFetchResults)}
	records, err := s.deps.ArXiv.Fetch(r.Context(), q)
	records, err = s.bestEffort(r, domain.SourceArXiv, records, err)
	if err != nil {
		s.respondError(w, r, "fetch arxiv", err)
		return
	}

	cutoff := s.now().UTC().AddDate(0, 0, -daysBack)
	kept := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		if rec.PublishedAt == nil || !rec.PublishedAt.Before(cutoff) {
			kept = append(kept, rec)
		}
	}

	resp := fetchedPapersResponse{
		Papers:   kept,
		Count:    len(kept),
		Source:   domain.SourceArXiv.Label(),
		DaysBack: daysBack,
	}
	if !s.saveIfRequested(w, r, kept, &resp.Inserted, &resp.Duplicates) {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// arxivTopic handles GET /api/papers/arxiv/topic/{topic}.
func (s *Server) arxivTopic(w http.ResponseWriter, r *http.Request) {
	if s.deps.ArXiv == nil {
		writeError(w, http.StatusServiceUnavailable, "arxiv source not configured")
		return
	}
	topic := strings.TrimSpace(chi.URLParam(r, "topic"))
	if topic == "" {
		writeDomainError(w, domain.NewValidationError("topic", "is required"))
		return
	}

	records, err := s.deps.ArXiv.FetchByTopic(r.Context(), topic, intParam(r, "max_results", defaultFetchResults))
	records, err = s.bestEffort(r, domain.SourceArXiv, records, err)
	if err != nil {
		s.respondError(w, r, "arxiv topic", err)
		return
	}

	resp := fetchedPapersResponse{
		Papers: records,
		Count:  len(records),
		Source: domain.SourceArXiv.Label(),
		Topic:  topic,
	}
	if !s.saveIfRequested(w, r, records, &resp.Inserted, &resp.Duplicates) {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// fetchFromSource returns the handler for a single-provider paper route
// such as GET /api/papers/pubmed.
func (s *Server) fetchFromSource(source domain.SourceType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapter := s.deps.PaperSources[source]
		if adapter == nil {
			writeError(w, http.StatusServiceUnavailable, string(source)+" source not configured")
			return
		}

		query := r.URL.Query().Get("query")
		if strings.TrimSpace(query) == "" {
			query = aggregator.DefaultQuery
		}
		records, err := adapter.Fetch(r.Context(), sources.Query{
			Text:  query,
			Limit: intParam(r, "max_results", defaultFetchResults),
		})
		records, err = s.bestEffort(r, source, records, err)
		if err != nil {
			s.respondError(w, r, "fetch "+string(source), err)
			return
		}

		resp := fetchedPapersResponse{
			Papers: records,
			Count:  len(records),
			Source: source.Label(),
			Query:  query,
		}
		if !s.saveIfRequested(w, r, records, &resp.Inserted, &resp.Duplicates) {
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// fetchAllSources handles GET /api/papers/all-sources. The optional
// sources parameter is a comma-separated list of provider names.
func (s *Server) fetchAllSources(w http.ResponseWriter, r *http.Request) {
	if s.deps.Aggregator == nil {
		writeError(w, http.StatusServiceUnavailable, "aggregator not configured")
		return
	}

	var types []domain.SourceType
	if raw := r.URL.Query().Get("sources"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			st := domain.SourceType(strings.TrimSpace(name))
			if !paperSources[st] {
				writeDomainError(w, domain.NewValidationError("sources", "unknown paper source "+string(st)))
				return
			}
			types = append(types, st)
		}
	}

	view := s.deps.Aggregator.AllSources(r.Context(),
		r.URL.Query().Get("query"),
		intParam(r, "max_results", aggregator.DefaultMaxPerSource),
		types...,
	)

	resp := allSourcesResponse{
		Papers:       view.Papers,
		Count:        view.Count,
		Sources:      view.Sources,
		Query:        view.Query,
		SourceCounts: view.SourceCounts,
	}
	if !s.saveIfRequested(w, r, view.Papers, &resp.Inserted, &resp.Duplicates) {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// bestEffort contains a live-fetch failure: only a missing credential
// reaches the client, everything else degrades to an empty result.
func (s *Server) bestEffort(r *http.Request, source domain.SourceType, records []domain.Record, err error) ([]domain.Record, error) {
	if err == nil {
		if records == nil {
			records = []domain.Record{}
		}
		return records, nil
	}
	if errors.Is(err, domain.ErrMisconfigured) {
		return nil, err
	}
	logger := observability.LoggerFromContext(r.Context(), s.logger)
	observability.UpstreamFields(logger.Warn(), err).
		Str("source", string(source)).
		Msg("fetch failed, returning empty result")
	return []domain.Record{}, nil
}

// saveIfRequested persists records when save=true and fills the counters.
// It writes the error response and returns false when persisting fails.
func (s *Server) saveIfRequested(w http.ResponseWriter, r *http.Request, records []domain.Record, inserted, duplicates **int) bool {
	if !boolParam(r, "save") {
		return true
	}
	result, err := s.persist(r.Context(), records)
	if err != nil {
		s.respondError(w, r, "save papers", err)
		return false
	}
	*inserted = &result.Inserted
	*duplicates = &result.Duplicates
	return true
}

func (s *Server) persist(ctx context.Context, records []domain.Record) (repository.UpsertResult, error) {
	if len(records) == 0 {
		return repository.UpsertResult{}, nil
	}
	return s.deps.Persister.Upsert(ctx, records)
}

func nonNilStored(items []domain.StoredRecord) []domain.StoredRecord {
	if items == nil {
		return []domain.StoredRecord{}
	}
	return items
}
