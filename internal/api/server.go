// Package api serves the ledgers over HTTP.
//
// Writes go through the engine (POST /v1/tx) and are answered once the
// transaction is persisted. Reads are served from the live node under the
// chain lock, or from the store for history.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/lotbridge/internal/engine"
)

// Server holds the HTTP handlers.
type Server struct {
	engine   *engine.Engine
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	timeout  time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer sets the registry /metrics exposes. Default: prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the request logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithSubmitTimeout bounds how long POST /v1/tx waits for its receipt.
// Default: 30s.
func WithSubmitTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// NewServer creates a Server over a running engine.
func NewServer(e *engine.Engine, opts ...Option) *Server {
	s := &Server{
		engine:   e,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/tx", s.submit)

		r.Get("/tokens", s.listTokens)
		r.Route("/tokens/{token}", func(r chi.Router) {
			r.Get("/", s.getToken)
			r.Get("/balances/{account}", s.getBalance)
			r.Get("/allowances/{owner}/{spender}", s.getAllowance)
		})

		r.Get("/transactions", s.listTransactions)
		r.Get("/transactions/{id}", s.getTransaction)
		r.Get("/events", s.listEvents)

		r.Get("/invariants", s.getInvariants)
	})

	return r
}

// logRequests logs one line per request with slog.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
