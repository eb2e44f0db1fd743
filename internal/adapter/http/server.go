package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures the HTTP server.
type Options struct {
	Addr         string
	CORSOrigins  []string
	WriteTimeout time.Duration // must exceed the render timeout
}

// Server exposes the map page, scene API, and health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the page, /api routes, /healthz, /readyz, and /metrics.
func NewServer(opts Options, ctrl Controller, renderer SceneRenderer, logger *slog.Logger) (*Server, error) {
	page, err := newPage()
	if err != nil {
		return nil, err
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}

	mux := http.NewServeMux()
	api := &api{ctrl: ctrl, renderer: renderer, page: page, logger: logger}

	mux.HandleFunc("GET /{$}", api.handlePage)
	mux.HandleFunc("POST /api/render", api.handleRender)
	mux.HandleFunc("GET /api/session", api.handleSession)
	mux.HandleFunc("GET /api/scene", api.handleScene)
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ctrl))
	mux.Handle("GET /metrics", promhttp.Handler())

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      RequestLogger(CORS(opts.CORSOrigins, mux), logger),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
	return s, nil
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
