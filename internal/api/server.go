// Package api exposes reports, company profiles and schedules over HTTP.
// Analyses are started asynchronously; clients poll a report for progress.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/regintel/internal/model"
	"github.com/sells-group/regintel/internal/monitoring"
	"github.com/sells-group/regintel/internal/runner"
	"github.com/sells-group/regintel/internal/store"
)

const maxBodyBytes = 1 << 20

// Options configures the HTTP handler.
type Options struct {
	AllowedOrigins []string
	// LookbackHours is the window used by the metrics endpoint.
	LookbackHours int
	// StuckAfter marks in-progress reports as stuck in metrics.
	StuckAfter time.Duration
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	store     store.Store
	runner    runner.Runner
	collector *monitoring.Collector
	opts      Options
	now       func() time.Time
}

// NewServer creates a Server backed by st that submits analyses to r.
func NewServer(st store.Store, r runner.Runner, opts Options) *Server {
	if opts.LookbackHours <= 0 {
		opts.LookbackHours = 24
	}
	return &Server{
		store:     st,
		runner:    r,
		collector: monitoring.NewCollector(st, opts.StuckAfter),
		opts:      opts,
		now:       time.Now,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/metrics", s.metrics)
		r.Get("/statistics", s.statistics)
		r.Get("/changes", s.changeHistory)

		r.Route("/profiles", func(r chi.Router) {
			r.Post("/", s.createProfile)
			r.Get("/", s.listProfiles)
			r.Get("/{id}", s.getProfile)
			r.Put("/{id}", s.updateProfile)
			r.Delete("/{id}", s.deleteProfile)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Post("/", s.createReport)
			r.Get("/", s.listReports)
			r.Get("/active", s.activeReports)
			r.Get("/{id}", s.getReport)
			r.Delete("/{id}", s.deleteReport)
			r.Get("/{id}/progress", s.reportProgress)
			r.Get("/{id}/changes", s.reportChanges)
			r.Get("/{id}/timeline", s.reportTimeline)
			r.Get("/{id}/export", s.exportReport)
			r.Post("/{id}/retry", s.retryReport)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", s.createSchedule)
			r.Get("/", s.listSchedules)
			r.Get("/{id}", s.getSchedule)
			r.Put("/{id}/active", s.setScheduleActive)
			r.Post("/{id}/run", s.runSchedule)
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: health ping failed", zap.Error(err))
		status, code = "degraded", http.StatusServiceUnavailable
	}
	active, err := s.store.ListReports(r.Context(), store.ReportFilter{
		Statuses: []model.ReportStatus{model.ReportPending, model.ReportInProgress},
		Limit:    1000,
	})
	if err != nil && code == http.StatusOK {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":          status,
		"active_analyses": len(active),
		"timestamp":       s.now().UTC(),
	})
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.collector.Collect(r.Context(), s.opts.LookbackHours)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// writeError maps domain errors onto HTTP status codes. Unexpected errors
// are logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, store.ErrProfileInUse):
		writeJSON(w, http.StatusConflict, errorBody{Error: "profile has analyses still running"})
	case errors.Is(err, store.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: "report is not in a state that allows this operation"})
	case errors.Is(err, model.ErrMissingCompanyName):
		badRequest(w, "company_name is required")
	case errors.Is(err, runner.ErrBusy):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "too many analyses running, try again later"})
	default:
		zap.L().Error("api: request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		badRequest(w, "invalid request body")
		return false
	}
	return true
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
