package httpserver

import "net/http"

// paperStats handles GET /api/stats/papers.
func (s *Server) paperStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Papers.Stats(r.Context())
	if err != nil {
		s.respondError(w, r, "paper stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// newsStats handles GET /api/stats/news.
func (s *Server) newsStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.News.Stats(r.Context())
	if err != nil {
		s.respondError(w, r, "news stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
