// Package httpapi serves a read-only JSON view of the scanner and its Prometheus metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"PreBurstSentinel/internal/metrics"
	"PreBurstSentinel/internal/model"
	"PreBurstSentinel/internal/recorder"
	"PreBurstSentinel/internal/scheduler"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// StatusSource reports the synchronizer state.
type StatusSource interface {
	Status() scheduler.Status
}

// OpportunitySource lists open records.
type OpportunitySource interface {
	Active() []model.Opportunity
}

// EventSource lists recorded lifecycle events.
type EventSource interface {
	RecentEvents(limit int) ([]recorder.EventRecord, error)
}

// Server is the read-only HTTP server.
type Server struct {
	router        *mux.Router
	server        *http.Server
	status        StatusSource
	opportunities OpportunitySource
	events        EventSource
}

// NewServer creates a server listening on addr. m may be nil, in which case /metrics is not served.
func NewServer(addr string, status StatusSource, opps OpportunitySource, events EventSource, m *metrics.Metrics) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		status:        status,
		opportunities: opps,
		events:        events,
	}
	s.setupRoutes(m)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(m *metrics.Metrics) {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	if m != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	api.HandleFunc("/status", s.statusHandler).Methods(http.MethodGet)
	api.HandleFunc("/universe", s.universe).Methods(http.MethodGet)
	api.HandleFunc("/opportunities", s.listOpportunities).Methods(http.MethodGet)
	api.HandleFunc("/opportunities/{pair}", s.getOpportunity).Methods(http.MethodGet)
	api.HandleFunc("/events", s.listEvents).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeError(w, http.StatusNotFound, "not found")
	})
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down http server")
	return s.server.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"running":        st.Running,
		"clock_degraded": st.Degraded,
	})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"running":        st.Running,
		"clock_degraded": st.Degraded,
		"owner":          st.Owner,
		"run_state":      st.Watermark.RunState.String(),
		"run_owner":      st.Watermark.RunOwner,
		"next_boundary":  st.Watermark.NextBoundary,
		"open":           len(st.Watermark.Opportunities),
		"last_report":    st.LastReport,
	})
}

func (s *Server) universe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"universe": s.status.Status().Watermark.Universe})
}

func (s *Server) listOpportunities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": s.opportunities.Active()})
}

func (s *Server) getOpportunity(w http.ResponseWriter, r *http.Request) {
	pair := mux.Vars(r)["pair"]
	for _, o := range s.opportunities.Active() {
		if o.Pair == pair {
			writeJSON(w, http.StatusOK, o)
			return
		}
	}
	writeError(w, http.StatusNotFound, "no open setup for "+pair)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	events, err := s.events.RecentEvents(limit)
	if err != nil {
		log.Error().Err(err).Msg("list events")
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if events == nil {
		events = []recorder.EventRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString()[:8])
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		log.Debug().
			Str("request_id", w.Header().Get("X-Request-ID")).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// responseWrapper captures HTTP status codes for logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
