package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/materials-aggregator/internal/domain"
	"github.com/helixir/materials-aggregator/internal/observability"
	"github.com/helixir/materials-aggregator/internal/repository"
)

const (
	feedPageSize       = 10
	maxRequestBodySize = 1 << 20 // 1 MB
)

// createEventRequest is the JSON body of POST /events.
type createEventRequest struct {
	Title       string `json:"title" validate:"required,max=500"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string `json:"time" validate:"required,max=50"`
	Venue       string `json:"venue" validate:"required,max=500"`
	Category    string `json:"category" validate:"omitempty,max=100"`
	Description string `json:"description" validate:"omitempty,max=10000"`
	Image       string `json:"image" validate:"omitempty,url"`
	URL         string `json:"url" validate:"omitempty,url"`
}

// newValidator returns a validator that reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError converts the first failed rule into a domain validation error.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return domain.NewValidationError("body", err.Error())
	}
	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "datetime":
		msg = fmt.Sprintf("must be a date in %s form", fe.Param())
	case "url":
		msg = "must be a valid URL"
	case "max":
		msg = fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		msg = "failed " + fe.Tag() + " check"
	}
	return domain.NewValidationError(fe.Field(), msg)
}

// listNews handles GET /api/news.
func (s *Server) listNews(w http.ResponseWriter, r *http.Request) {
	page, err := s.deps.News.List(r.Context(), repository.NewsFilter{
		Pagination: parsePagination(r),
		Category:   r.URL.Query().Get("category"),
	})
	if err != nil {
		s.respondError(w, r, "list news", err)
		return
	}

	writeJSON(w, http.StatusOK, newsPageResponse{
		News:  page.Items,
		Total: page.Total,
		Page:  page.Page,
		Limit: page.Limit,
		Pages: page.Pages,
	})
}

// getNewsFeed handles GET /news: refresh the cached headlines, store them
// and answer with the latest stored articles. Upstream failures surface.
func (s *Server) getNewsFeed(w http.ResponseWriter, r *http.Request) {
	if s.deps.NewsFeed == nil {
		writeError(w, http.StatusServiceUnavailable, "news source not configured")
		return
	}
	ctx := r.Context()

	fetched, err := s.deps.NewsFeed.Get(ctx)
	if err != nil {
		s.respondError(w, r, "fetch news", err)
		return
	}
	s.persistFeed(r, "news", fetched)

	items, err := s.deps.News.Latest(ctx, feedPageSize)
	if err != nil {
		s.respondError(w, r, "latest news", err)
		return
	}

	resp := make([]newsItemResponse, len(items))
	for i, n := range items {
		resp[i] = storedNewsToResponse(n)
	}
	writeJSON(w, http.StatusOK, resp)
}

// getEvents handles GET /events: refresh the cached events, store them and
// answer with the next upcoming stored events.
func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.deps.EventsFeed != nil {
		fetched, err := s.deps.EventsFeed.Get(ctx)
		if err != nil {
			s.respondError(w, r, "fetch events", err)
			return
		}
		s.persistFeed(r, "events", fetched)
	}

	events, err := s.deps.Events.Upcoming(ctx, feedPageSize)
	if err != nil {
		s.respondError(w, r, "upcoming events", err)
		return
	}

	resp := make([]eventResponse, len(events))
	for i, e := range events {
		resp[i] = storedEventToResponse(e)
	}
	writeJSON(w, http.StatusOK, resp)
}

// persistFeed stores a feed payload. A storage failure is logged and the
// request is still served from what is already stored.
func (s *Server) persistFeed(r *http.Request, feed string, records []domain.Record) {
	result, err := s.persist(r.Context(), records)
	logger := observability.LoggerFromContext(r.Context(), s.logger)
	if err != nil {
		logger.Error().Err(err).Str("feed", feed).Int("records", len(records)).Msg("failed to persist feed")
		return
	}
	logger.Debug().
		Str("feed", feed).
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Msg("feed persisted")
}

// createEvent handles POST /events.
func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Venue = strings.TrimSpace(req.Venue)

	if err := s.validate.Struct(req); err != nil {
		writeDomainError(w, validationError(err))
		return
	}
	date, err := time.Parse(domain.DateLayout, req.Date)
	if err != nil {
		writeDomainError(w, domain.NewValidationError("date", "must be a date in 2006-01-02 form"))
		return
	}

	stored, err := s.deps.Events.Create(r.Context(), domain.Record{
		Kind:           domain.KindEvent,
		Source:         domain.SourceManual,
		Title:          req.Title,
		PublishedAt:    &date,
		StartTime:      req.Time,
		VenueOrJournal: req.Venue,
		Category:       req.Category,
		Description:    req.Description,
		ImageURL:       req.Image,
		SourceURL:      req.URL,
	})
	if err != nil {
		s.respondError(w, r, "create event", err)
		return
	}

	writeJSON(w, http.StatusCreated, storedEventToResponse(*stored))
}
