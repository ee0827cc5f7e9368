// Package dashboard serves the HTTP API for trajet: session lifecycle
// operations, the query path over the recorder, and the live feed over
// SSE and WebSocket.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fieldline/trajet/internal/agent"
	"github.com/fieldline/trajet/internal/backend"
	"github.com/fieldline/trajet/internal/config"
	"github.com/fieldline/trajet/internal/recorder"
	"github.com/fieldline/trajet/internal/session"
)

// Opts holds configuration for the API server.
type Opts struct {
	Registry  *session.Registry
	Store     *recorder.Store
	Agents    []agent.Agent
	Generator backend.Generator
	Embedder  backend.Embedder
	Scheduler config.SchedulerConfig
	Analysis  config.AnalysisConfig
	Retries   int
	Backoff   time.Duration
	Logger    *slog.Logger
	Port      int
}

// server carries the handler dependencies.
type server struct {
	reg      *session.Registry
	store    *recorder.Store
	agents   []agent.Agent
	gen      backend.Generator
	emb      backend.Embedder
	sched    config.SchedulerConfig
	analysis config.AnalysisConfig
	retries  int
	backoff  time.Duration
	log      *slog.Logger
}

// Start launches the API server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Start(ctx context.Context, opts Opts) error {
	router, err := NewRouter(opts)
	if err != nil {
		return err
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// NewRouter builds the gin router with all API routes registered.
func NewRouter(opts Opts) (*gin.Engine, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("dashboard: registry is required")
	}
	if opts.Generator == nil || opts.Embedder == nil {
		return nil, fmt.Errorf("dashboard: generator and embedder are required")
	}
	if len(opts.Agents) == 0 {
		return nil, fmt.Errorf("dashboard: at least one agent is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &server{
		reg:      opts.Registry,
		store:    opts.Store,
		agents:   opts.Agents,
		gen:      opts.Generator,
		emb:      opts.Embedder,
		sched:    opts.Scheduler,
		analysis: opts.Analysis,
		retries:  opts.Retries,
		backoff:  opts.Backoff,
		log:      logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, s)
	return router, nil
}
