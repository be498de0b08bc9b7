// Package httpapi exposes the search pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/revimg/internal/search"
	"github.com/hyperifyio/revimg/internal/verify"
)

// Searcher runs the full pipeline for one image.
type Searcher interface {
	Search(ctx context.Context, imageURL string) (search.ResultMap, error)
}

// RecordLister lists recent verification records.
type RecordLister interface {
	RecentRecords(ctx context.Context, limit int) ([]verify.Record, error)
}

// UserChecker reports whether a user is on the spam user list.
type UserChecker interface {
	BlockedUser(name string) bool
}

// Server wraps chi.Router with the default middlewares.
type Server struct {
	Router   chi.Router
	Searcher Searcher
	Records  RecordLister
	Users    func() UserChecker
	// Ready reports whether spam data is loaded.
	Ready func() bool

	srv *http.Server
}

type searchRequest struct {
	ImageURL string `json:"image_url"`
}

type searchResponse struct {
	Results search.ResultMap `json:"results"`
	Total   int              `json:"total"`
}

// NewServer builds the router. gatherer serves /metrics; nil uses the
// default registry.
func NewServer(s Searcher, gatherer prometheus.Gatherer, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	srv := &Server{Searcher: s}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Get("/healthz", srv.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Post("/search", srv.search)
	r.Get("/verifications", srv.verifications)
	r.Get("/users/{name}", srv.user)
	srv.Router = r
	return srv
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 15 * time.Second,
	}
	log.Info().Str("addr", addr).Msg("HTTP server listening")
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	if s.Ready != nil && !s.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no spam data"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := url.Parse(req.ImageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, "image_url must be an absolute http(s) URL")
		return
	}
	res, err := s.Searcher.Search(r.Context(), req.ImageURL)
	if err != nil {
		log.Error().Err(err).Str("image_url", req.ImageURL).Msg("search failed")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: res, Total: res.Total()})
}

func (s *Server) verifications(w http.ResponseWriter, r *http.Request) {
	if s.Records == nil {
		writeError(w, http.StatusNotFound, "no record store configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	recs, err := s.Records.RecentRecords(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []verify.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) user(w http.ResponseWriter, r *http.Request) {
	var uc UserChecker
	if s.Users != nil {
		uc = s.Users()
	}
	if uc == nil {
		writeError(w, http.StatusServiceUnavailable, "spam lists not loaded")
		return
	}
	name := chi.URLParam(r, "name")
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "blocked": uc.BlockedUser(name)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
