package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/observability"
	"github.com/helixir/materials-aggregator/internal/repository"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// writeDomainError maps domain errors to HTTP status codes. Storage and
// unknown errors never expose their cause.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var upstreamErr *domain.UpstreamError
	errors.As(err, &upstreamErr)

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrMisconfigured):
		msg := "provider misconfigured"
		if upstreamErr != nil && upstreamErr.Message != "" {
			msg = fmt.Sprintf("%s: %s", msg, upstreamErr.Message)
		}
		writeError(w, http.StatusServiceUnavailable, msg)
	case errors.Is(err, domain.ErrCredentialInvalid):
		writeError(w, http.StatusBadGateway, domain.ErrCredentialInvalid.Error())
	case errors.Is(err, domain.ErrRateLimited):
		if upstreamErr != nil && upstreamErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(upstreamErr.RetryAfter.Seconds()))))
		}
		writeError(w, http.StatusTooManyRequests, "rate limited by upstream provider")
	case errors.Is(err, domain.ErrUpstreamRejected):
		msg := "upstream rejected request"
		if upstreamErr != nil {
			msg = fmt.Sprintf("upstream returned status %d: %s", upstreamErr.StatusCode, upstreamErr.Message)
		}
		writeError(w, http.StatusBadGateway, msg)
	case errors.Is(err, domain.ErrUpstreamUnavailable), errors.Is(err, domain.ErrMalformedPayload):
		writeError(w, http.StatusBadGateway, "upstream unavailable")
	case errors.Is(err, domain.ErrStorageFailure):
		writeError(w, http.StatusInternalServerError, "storage failure")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondError logs err against the request and writes the mapped response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger := observability.LoggerFromContext(r.Context(), s.logger)
	event := logger.Warn()
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrAlreadyExists) {
		event = logger.Debug()
	}
	observability.UpstreamFields(event, err).Str("op", op).Msg("request failed")
	writeDomainError(w, err)
}

// intParam reads an integer query parameter. Missing or malformed values
// yield def.
func intParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// boolParam reads a boolean query parameter, defaulting to false.
func boolParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

// parsePagination reads page and limit. The repository floors page at 1 and
// clamps limit to 1..100.
func parsePagination(r *http.Request) repository.Pagination {
	return repository.Pagination{
		Page:  intParam(r, "page", 1),
		Limit: intParam(r, "limit", repository.DefaultPageLimit),
	}
}

// Response types for JSON serialization.

type paperPageResponse struct {
	Papers []domain.StoredRecord `json:"papers"`
	Total  int64                 `json:"total"`
	Page   int                   `json:"page"`
	Limit  int                   `json:"limit"`
	Pages  int                   `json:"pages"`
}

type newsPageResponse struct {
	News  []domain.StoredRecord `json:"news"`
	Total int64                 `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
	Pages int                   `json:"pages"`
}

type recentPapersResponse struct {
	Papers []domain.StoredRecord `json:"papers"`
	Days   int                   `json:"days"`
}

type searchPapersResponse struct {
	Papers []domain.StoredRecord `json:"papers"`
	Query  string                `json:"query"`
	Count  int                   `json:"count"`
}

// fetchedPapersResponse is returned by the live-fetch routes. Inserted and
// Duplicates are only set when save=true.
type fetchedPapersResponse struct {
	Papers     []domain.Record `json:"papers"`
	Count      int             `json:"count"`
	Source     string          `json:"source"`
	Query      string          `json:"query,omitempty"`
	Topic      string          `json:"topic,omitempty"`
	DaysBack   int             `json:"days_back,omitempty"`
	Inserted   *int            `json:"inserted,omitempty"`
	Duplicates *int            `json:"duplicates,omitempty"`
}

type allSourcesResponse struct {
	Papers       []domain.Record `json:"papers"`
	Count        int             `json:"count"`
	Sources      []string        `json:"sources"`
	Query        string          `json:"query"`
	SourceCounts map[string]int  `json:"source_counts"`
	Inserted     *int            `json:"inserted,omitempty"`
	Duplicates   *int            `json:"duplicates,omitempty"`
}

type newsItemResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary,omitempty"`
	URL         string     `json:"url"`
	Source      string     `json:"source"`
	Category    string     `json:"category,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	Image       string     `json:"image,omitempty"`
}

type eventResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
	Venue       string `json:"venue,omitempty"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"`
	Status      string `json:"status,omitempty"`
	Image       string `json:"image,omitempty"`
	URL         string `json:"url,omitempty"`
	Source      string `json:"source"`
}

func storedNewsToResponse(n domain.StoredRecord) newsItemResponse {
	return newsItemResponse{
		ID:          n.ID.String(),
		Title:       n.Title,
		Summary:     n.Description,
		URL:         n.SourceURL,
		Source:      n.VenueOrJournal,
		Category:    n.Category,
		PublishedAt: n.PublishedAt,
		Image:       n.ImageURL,
	}
}

func storedEventToResponse(e domain.StoredRecord) eventResponse {
	return eventResponse{
		ID:          e.ID.String(),
		Title:       e.Title,
		Date:        e.Date(),
		Time:        e.StartTime,
		Venue:       e.VenueOrJournal,
		Category:    e.Category,
		Description: e.Description,
		Price:       e.Price,
		Status:      e.Status,
		Image:       e.ImageURL,
		URL:         e.SourceURL,
		Source:      e.SourceLabel,
	}
}
