// Package server exposes the bridge over HTTP: pairing, agent control, IDE
// file and terminal surfaces, and the realtime websocket. Handlers stay
// thin; all behavior lives behind the executor, runner, and registry.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/pocketdev/pkg/agent"
	"github.com/odvcencio/pocketdev/pkg/auth"
	"github.com/odvcencio/pocketdev/pkg/events"
	"github.com/odvcencio/pocketdev/pkg/logging"
	"github.com/odvcencio/pocketdev/pkg/persist"
	"github.com/odvcencio/pocketdev/pkg/ratelimit"
	"github.com/odvcencio/pocketdev/pkg/registry"
	"github.com/odvcencio/pocketdev/pkg/tools"
)

// PlaygroundSession is the well-known session id the playground surface
// drives. Every playground run reuses it.
const PlaygroundSession = "playground-main"

// Server owns the HTTP surface.
type Server struct {
	runner   *agent.Runner
	exec     *tools.Executor
	tokens   *auth.TokenManager
	limiter  *ratelimit.Limiter
	hub      *events.Hub
	listener *events.Listener
	reg      *registry.Registry
	logs     *registry.LogBook
	store    *persist.Store
	logger   *logging.Logger

	version   string
	startedAt time.Time
}

// Options carries the collaborators a Server needs.
type Options struct {
	Runner   *agent.Runner
	Executor *tools.Executor
	Tokens   *auth.TokenManager
	Limiter  *ratelimit.Limiter
	Hub      *events.Hub
	Listener *events.Listener
	Registry *registry.Registry
	Logs     *registry.LogBook
	Store    *persist.Store
	Logger   *logging.Logger
	Version  string
}

// New creates a Server.
func New(opts Options) *Server {
	return &Server{
		runner:    opts.Runner,
		exec:      opts.Executor,
		tokens:    opts.Tokens,
		limiter:   opts.Limiter,
		hub:       opts.Hub,
		listener:  opts.Listener,
		reg:       opts.Registry,
		logs:      opts.Logs,
		store:     opts.Store,
		logger:    opts.Logger,
		version:   opts.Version,
		startedAt: time.Now(),
	}
}

// Router builds the route tree. Rate limiting wraps everything except its
// exempt paths; token auth wraps /api and the websocket.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)
	r.Use(s.limiter.Middleware)

	r.Get("/health", s.handleHealth)
	r.Post("/auth/pair", s.handlePair)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.tokens.Middleware)

		r.Get("/agents", s.handleListAgents)
		r.Get("/agents/{id}", s.handleGetAgent)
		r.Post("/agents/{id}/approve", s.handleApprove)
		r.Post("/agents/{id}/message", s.handleMessage)

		r.Post("/playground/run", s.handlePlaygroundRun)
		r.Get("/system/status", s.handleSystemStatus)

		r.Route("/ide", func(r chi.Router) {
			r.Get("/files", s.handleListFiles)
			r.Get("/files/read", s.handleReadFile)
			r.Post("/files/write", s.handleWriteFile)
			r.Post("/terminal/run", s.handleTerminalRun)
			r.Get("/git/status", s.handleGitStatus)
			r.Post("/git/run", s.handleGitRun)
			r.Get("/workspaces", s.handleListWorkspaces)
			r.Post("/workspaces/switch", s.handleSwitchWorkspace)
		})
	})

	r.Route("/ws", func(r chi.Router) {
		r.Use(s.tokens.Middleware)
		r.Get("/realtime", s.handleRealtime)
	})

	return r
}

// ListenAndServe runs the server until ctx is cancelled, then drains with a
// short shutdown grace.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info(logging.CategoryHTTP, "server_started", addr, nil)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// observe logs each request and feeds the request metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		observeRequest(r.Method, ww.Status(), time.Since(start))
		s.logger.Debug(logging.CategoryHTTP, "request", r.URL.Path, map[string]any{
			"method":      r.Method,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}
