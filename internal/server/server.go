// Package server assembles the chi router, middleware chain, and HTTP
// lifecycle for the recognition service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/pagelens/pagelens/internal/errors"
	"github.com/pagelens/pagelens/internal/server/handlers"
	"github.com/pagelens/pagelens/internal/server/middleware"
)

// Options configures the server beyond its bind address.
type Options struct {
	// AllowedOrigins is the CORS origin pattern list.
	AllowedOrigins []string

	// RateLimitRPS throttles inbound OCR requests. Zero disables.
	RateLimitRPS float64

	// RateLimitBurst is the throttle burst size.
	RateLimitBurst int
}

// Server is the HTTP front of the service.
type Server struct {
	host    string
	port    int
	handler http.Handler
	httpSrv *http.Server
}

// New builds a server with the full middleware chain and route table.
func New(host string, port int, deps *handlers.Deps, opts Options) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS(opts.AllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteError(w, http.StatusNotFound, apperrors.ErrorBody{
			Code:      apperrors.CodeNotFound,
			Message:   "route not found",
			RequestID: apperrors.RequestIDFromContext(req.Context()),
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteError(w, http.StatusMethodNotAllowed, apperrors.ErrorBody{
			Code:      apperrors.CodeMethodNotAllowed,
			Message:   "method not allowed",
			RequestID: apperrors.RequestIDFromContext(req.Context()),
		})
	})

	r.Get("/health", deps.Health)
	r.Get("/health/live", deps.Liveness)
	r.Get("/health/ready", deps.Readiness)
	r.Get("/version", deps.Version)

	r.Route("/api", func(r chi.Router) {
		r.Get("/modes", deps.Modes)
		r.Post("/task/create", deps.CreateTask)
		r.Get("/progress/{task_id}", deps.Progress)

		r.With(middleware.Throttle(opts.RateLimitRPS, opts.RateLimitBurst)).
			Post("/ocr", deps.OCR)
	})

	return &Server{
		host:    host,
		port:    port,
		handler: r,
	}
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Port returns the configured bind port.
func (s *Server) Port() int {
	return s.port
}

// Start serves until the listener fails or Shutdown is called.
//
// Write timeout is deliberately unset: the OCR endpoint can legally run
// for minutes and the progress endpoint is a long-lived event stream.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
