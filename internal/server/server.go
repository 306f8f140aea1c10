// package server exposes the sync orchestrator over HTTP: job admission,
// the two polling read paths, and the dead-letter inspection endpoints.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subsync/internal/shared"
	"github.com/desertthunder/subsync/internal/syncjob"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP front for the sync service.
type Server struct {
	admission  *syncjob.Service
	tracker    *syncjob.Tracker
	dlq        *syncjob.DLQConsumer
	logger     *log.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a Server bound to addr.
func New(admission *syncjob.Service, tracker *syncjob.Tracker, dlq *syncjob.DLQConsumer, addr string, logger *log.Logger) *Server {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	srv := &Server{
		admission: admission,
		tracker:   tracker,
		dlq:       dlq,
		logger:    shared.WithLogger(logger, "component", "server"),
	}
	srv.router = srv.buildRouter()
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/sync", s.handleInitiateSync)
		r.Get("/sync/jobs/{jobID}", s.handleJobStatus)
		r.Get("/sync/active", s.handleActiveJob)

		r.Get("/dlq", s.handleListDLQ)
		r.Get("/dlq/summary", s.handleDLQSummary)
		r.Delete("/dlq/{entryID}", s.handleDeleteDLQ)
	})

	r.Get("/healthz", s.handleHealthz)

	return r
}

// Start begins serving. Blocks until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"durationMs", time.Since(start).Milliseconds())
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
