// Package api serves stored extraction runs over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sashkaw/spatial-aez/internal/area"
	"github.com/sashkaw/spatial-aez/internal/export"
	"github.com/sashkaw/spatial-aez/internal/metrics"
	"github.com/sashkaw/spatial-aez/internal/store"
)

const maxListLimit = 1000

// Server exposes a store through a read-only JSON and CSV API.
type Server struct {
	store     store.Store
	metrics   *metrics.Metrics
	precision int
	origins   []string
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts m at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPrecision sets the decimals of served CSV tables.
func WithPrecision(p int) Option {
	return func(s *Server) { s.precision = p }
}

// WithAllowedOrigins restricts CORS origins. The default allows any.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// New returns a Server backed by st.
func New(st store.Store, opts ...Option) *Server {
	s := &Server{
		store:     st,
		precision: export.DefaultPrecision,
		origins:   []string{"*"},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/table.csv", s.handleRunTable)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{
		Status:  store.RunStatus(q.Get("status")),
		Dataset: q.Get("dataset"),
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit"), 0, maxListLimit); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0, -1); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	switch filter.Status {
	case "", store.RunStatusRunning, store.RunStatusComplete, store.RunStatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunTable(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	if run.Status != store.RunStatusComplete || run.Result == nil {
		writeError(w, http.StatusConflict, "run is "+string(run.Status))
		return
	}

	tbl, err := store.Table(r.Context(), s.store, run)
	if err != nil {
		zap.L().Error("api: load table", zap.String("run_id", run.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load table")
		return
	}
	unit, err := area.ParseUnit(run.Spec.Unit)
	if err != nil {
		unit = area.SquareKilometres
	}
	sheet := export.NewSheet(run.Spec.Dataset, tbl, run.Result.Countries, unit, s.precision)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": run.Spec.Dataset + ".csv"}))
	if err := export.WriteCSV(w, sheet); err != nil {
		zap.L().Error("api: write csv", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// loadRun fetches the run named in the path, writing the error response
// itself when it cannot.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (*store.Run, bool) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	case err != nil:
		zap.L().Error("api: get run", zap.String("run_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return nil, false
	}
	return run, true
}

// intParam parses an optional non-negative integer. limit < 0 means unbounded.
func intParam(raw string, def, limit int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 || (limit >= 0 && v > limit) {
		return 0, errors.New("out of range")
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
