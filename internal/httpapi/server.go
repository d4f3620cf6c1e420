// Package httpapi exposes routing over HTTP: an edit webhook, a manual
// sweep trigger, and read access to the routing ledger.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/switchyard/internal/dispatch"
	"github.com/roach88/switchyard/internal/engine"
)

// Default server timeouts, used unless overridden by options.
const (
	DefaultReadTimeout    = 10 * time.Second
	DefaultWriteTimeout   = 30 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Server is the HTTP front of the routing engine. Edit producers that
// cannot drop files into the spool post events here instead.
type Server struct {
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	router     *chi.Mux
	server     *http.Server

	readTimeout    time.Duration
	writeTimeout   time.Duration
	requestTimeout time.Duration
}

// Option adjusts server construction.
type Option func(*Server)

// WithRequestTimeout sets the per-request middleware timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.requestTimeout = d }
}

// WithHTTPTimeouts sets the listener's read and write timeouts.
func WithHTTPTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
	}
}

// NewServer creates a Server routing requests into eng.
func NewServer(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine:         eng,
		dispatcher:     dispatch.New(eng),
		router:         chi.NewRouter(),
		readTimeout:    DefaultReadTimeout,
		writeTimeout:   DefaultWriteTimeout,
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.requestTimeout))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/edits", s.handleEdits)
		r.Post("/sweep", s.handleSweep)
		r.Get("/ledger", s.handleLedger)
	})
}

// Start begins listening on addr. It blocks until the listener stops.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	slog.Info("webhook server listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// requestLogger logs one line per request with the request ID assigned
// upstream.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
