// Package api serves the agent's local HTTP API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/jandubois/healthagent/internal/db"
	"github.com/jandubois/healthagent/internal/probe"
)

// Agent is the view of the running agent the API needs.
type Agent interface {
	Hostname() string
	Results() map[string]*probe.Result
	Result(name string) (*probe.Result, bool)
	Configured(name string) bool
	Trigger(name string) error
}

// HistoryReader returns stored runs of a check.
type HistoryReader interface {
	RecentRuns(ctx context.Context, check string, limit int) ([]db.Run, error)
}

// Options configures optional parts of the API.
type Options struct {
	History     HistoryReader // nil disables the history route
	Metrics     http.Handler  // nil disables /metrics
	CORSOrigins []string
}

// Server is the local API server.
type Server struct {
	agent   Agent
	opts    Options
	logger  *zap.Logger
	server  *http.Server
	started time.Time
}

// NewServer creates a server listening on addr.
func NewServer(addr string, agent Agent, opts Options, logger *zap.Logger) *Server {
	s := &Server{
		agent:   agent,
		opts:    opts,
		logger:  logger,
		started: time.Now(),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run starts the server and shuts it down when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Router returns the API handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverer)
	r.Use(s.requestLogger)
	if len(s.opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/api/snapshot", s.handleSnapshot)
	r.Get("/api/checks/{name}", s.handleGetCheck)
	r.Post("/api/checks/{name}/run", s.handleRunCheck)
	if s.opts.History != nil {
		r.Get("/api/checks/{name}/history", s.handleCheckHistory)
	}
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}
	return r
}
