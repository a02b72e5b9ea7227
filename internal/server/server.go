package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"launchpad/internal/orchestrator"
	"launchpad/internal/review"
)

const (
	HTTPReadTimeout  = 10 * time.Second
	HTTPWriteTimeout = 15 * time.Minute
	HTTPIdleTimeout  = 60 * time.Second

	// RequestTimeout bounds synchronous handlers, including /deployments/sync.
	RequestTimeout = 15 * time.Minute
)

// Config holds the server settings that are not collaborators.
type Config struct {
	// Options are the defaults every orchestration starts from.
	Options orchestrator.Options

	// APISecret enables request signing when non-empty.
	APISecret string

	// RateLimit is requests per second per client IP. Zero disables rate limiting.
	RateLimit float64
	RateBurst int

	// MaxRejections is the forced-approval threshold for review gates.
	MaxRejections int
}

// Server serves the launchpad HTTP API.
type Server struct {
	Orchestrator *orchestrator.Orchestrator
	Reviewer     *review.Reviewer
	LockManager  *orchestrator.LockManager
	Registry     *prometheus.Registry
	Logger       *slog.Logger
	Config       Config

	httpServer *http.Server
	deployWg   sync.WaitGroup
}

// NewServer creates a server. reviewer and registry may be nil, which disables
// the review and metrics routes.
func NewServer(orch *orchestrator.Orchestrator, reviewer *review.Reviewer, registry *prometheus.Registry, logger *slog.Logger, cfg Config) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Orchestrator: orch,
		Reviewer:     reviewer,
		LockManager:  orchestrator.NewLockManager(),
		Registry:     registry,
		Logger:       logger,
		Config:       cfg,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))
	r.Use(requestLogger(s.Logger))

	if s.Config.RateLimit > 0 {
		r.Use(NewRateLimitMiddleware(s.Config.RateLimit, max(s.Config.RateBurst, 1), s.Logger))
	}

	r.Get("/health", s.HandleHealth)
	if s.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
	}

	r.Get("/deployments", s.HandleOverview)
	r.Get("/deployments/{id}", s.HandleStatus)
	r.Get("/history", s.HandleHistory)

	r.Group(func(r chi.Router) {
		if s.Config.APISecret != "" {
			r.Use(NewSignatureMiddleware(s.Config.APISecret, s.Logger))
		}
		r.Post("/deployments", s.HandleDeploy)
		r.Post("/deployments/sync", s.HandleDeploySync)
		r.Post("/deployments/cleanup", s.HandleCleanup)
		r.Post("/reviews/{gate}", s.HandleReview)
	})

	return r
}

// Start listens on host:port until Shutdown is called.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.Logger.Info("server_starting", "addr", addr, "signing", s.Config.APISecret != "")

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// WaitForDeployments blocks until every background deployment has finished.
func (s *Server) WaitForDeployments() {
	s.deployWg.Wait()
}

// Shutdown stops accepting requests and drains background deployments.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.deployWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.Logger.Info("deployments_drained")
	case <-ctx.Done():
		s.Logger.Warn("shutdown_deadline_reached_with_running_deployments")
		return ctx.Err()
	}
	return err
}
