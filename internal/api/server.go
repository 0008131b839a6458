// Package api provides the REST API over a storage reservoir.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/logward-dev/logward/internal/storage"
	"github.com/logward-dev/logward/pkg/models"
)

// Server is the REST API server.
type Server struct {
	reservoir *storage.Reservoir
	router    *chi.Mux
	server    *http.Server
}

// NewServer creates a new API server around an initialized reservoir.
func NewServer(addr string, reservoir *storage.Reservoir) *Server {
	s := &Server{
		reservoir: reservoir,
		router:    chi.NewRouter(),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.getHealth)
		r.Get("/capabilities", s.getCapabilities)

		r.Post("/logs", s.ingestLogs)
		r.Get("/logs", s.queryLogs)
		r.Delete("/logs", s.deleteLogs)
		r.Get("/logs/aggregate", s.aggregateLogs)
		r.Get("/logs/count", s.countLogs)
		r.Get("/logs/distinct", s.distinctValues)
		r.Get("/logs/top", s.topValues)

		r.Get("/segments", s.getSegments)
	})

	// Liveness probe, independent of storage state.
	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	return s
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ingestLogs accepts a JSON array of log records. With ?returning=true
// the stored records, including generated ids, are echoed back.
func (s *Server) ingestLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var records []models.LogRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if r.URL.Query().Get("returning") == "true" {
		result, err := s.reservoir.IngestReturning(ctx, records)
		if err != nil {
			s.respondStorageError(w, err)
			return
		}
		s.respondJSON(w, http.StatusCreated, result)
		return
	}

	result, err := s.reservoir.Ingest(ctx, records)
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, result)
}

// queryLogs returns one page of records matching the query string
// filters. Pagination is cursor-based: pass next_cursor from the
// previous page as ?cursor=.
func (s *Server) queryLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params := models.QueryParams{
		Search: r.URL.Query().Get("search"),
		Cursor: r.URL.Query().Get("cursor"),
	}
	if mode := r.URL.Query().Get("search_mode"); mode != "" {
		params.SearchMode = models.SearchMode(mode)
	}
	if order := r.URL.Query().Get("order"); order != "" {
		params.Order = models.SortOrder(order)
	}
	params.Limit = intParam(r, "limit", 0)
	params.Offset = intParam(r, "offset", 0)

	var err error
	if params.FilterSet, err = parseFilterSet(r); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.Range, err = parseTimeRange(r); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.reservoir.Query(ctx, params)
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// aggregateLogs returns per-level record counts bucketed by ?interval=.
func (s *Server) aggregateLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	interval, err := models.ParseInterval(r.URL.Query().Get("interval"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := models.AggregateParams{Interval: interval}
	if params.FilterSet, err = parseFilterSet(r); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.Range, err = parseTimeRange(r); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.reservoir.Aggregate(ctx, params)
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) countLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params := models.CountParams{
		Search: r.URL.Query().Get("search"),
	}
	if mode := r.URL.Query().Get("search_mode"); mode != "" {
		params.SearchMode = models.SearchMode(mode)
	}

	var err error
	if params.FilterSet, err = parseFilterSet(r); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.Range, err = parseTimeRange(r); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.reservoir.Count(ctx, params)
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// distinctValues returns the distinct values of ?field=, which is a
// column name or metadata.<key>.
func (s *Server) distinctValues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params := models.DistinctParams{
		Field: r.URL.Query().Get("field"),
		Limit: intParam(r, "limit", 0),
	}

	var err error
	if params.FilterSet, err = parseFilterSet(r); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.Range, err = parseTimeRange(r); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.reservoir.Distinct(ctx, params)
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) topValues(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	params := models.TopValuesParams{
		Field: r.URL.Query().Get("field"),
		Limit: intParam(r, "limit", 0),
	}

	var err error
	if params.FilterSet, err = parseFilterSet(r); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if params.Range, err = parseTimeRange(r); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.reservoir.TopValues(ctx, params)
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// deleteLogs removes all records in the given time range. On engines
// with asynchronous deletes the rows may remain visible briefly.
func (s *Server) deleteLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rng, err := parseTimeRange(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.reservoir.DeleteByTimeRange(ctx, models.DeleteParams{Range: rng})
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) getSegments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rng, err := parseTimeRange(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	segments, err := s.reservoir.GetSegments(ctx, rng.From, rng.To)
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"segments": segments,
		"total":    len(segments),
	})
}

func (s *Server) getCapabilities(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.reservoir.Capabilities())
}

// getHealth reports storage reachability, with measured latency.
func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.reservoir.HealthCheck(r.Context())
	if err != nil {
		s.respondStorageError(w, err)
		return
	}
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	s.respondJSON(w, code, status)
}

// parseFilterSet reads the repeatable dimension filters from the query
// string. Absent parameters yield nil slices, meaning no filter.
func parseFilterSet(r *http.Request) (models.FilterSet, error) {
	var fs models.FilterSet
	q := r.URL.Query()

	if v, ok := q["org_id"]; ok {
		fs.OrgIDs = v
	}
	if v, ok := q["project_id"]; ok {
		fs.ProjectIDs = v
	}
	if v, ok := q["service"]; ok {
		fs.Services = v
	}
	if v, ok := q["level"]; ok {
		levels := make([]models.Level, 0, len(v))
		for _, raw := range v {
			level, err := models.ParseLevel(raw)
			if err != nil {
				return models.FilterSet{}, err
			}
			levels = append(levels, level)
		}
		fs.Levels = levels
	}
	return fs, nil
}

// parseTimeRange reads the mandatory ?from= and ?to= RFC3339 bounds and
// the optional boundary flags.
func parseTimeRange(r *http.Request) (models.TimeRange, error) {
	var rng models.TimeRange
	q := r.URL.Query()

	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		return rng, errors.New("invalid or missing 'from' parameter, want RFC3339")
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		return rng, errors.New("invalid or missing 'to' parameter, want RFC3339")
	}

	rng.From = from
	rng.To = to
	rng.FromExclusive = q.Get("from_exclusive") == "true"
	rng.ToInclusive = q.Get("to_inclusive") == "true"
	return rng, nil
}

func intParam(r *http.Request, name string, def int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			return parsed
		}
	}
	return def
}

// respondStorageError maps storage errors to HTTP status codes.
// Validation problems are the caller's fault; lifecycle problems mean
// the backend is not ready to serve.
func (s *Server) respondStorageError(w http.ResponseWriter, err error) {
	switch {
	case models.IsValidation(err):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotConnected),
		errors.Is(err, models.ErrNotInitialized),
		errors.Is(err, models.ErrClosed):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
