// internal/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"webpilot/api/schemas"
	"webpilot/internal/config"
	"webpilot/internal/observability"
)

// Planner turns a free-text command into a validated action plan.
type Planner interface {
	Interpret(ctx context.Context, command string, maxSteps int) (*schemas.ActionPlan, error)
}

// SessionFactory provides capped browser sessions for request execution.
type SessionFactory interface {
	NewSession(ctx context.Context) (schemas.SessionContext, error)
	ActiveSessions() int
	Shutdown(ctx context.Context) error
}

// PlanRunner walks a plan against a session and assembles the result.
type PlanRunner interface {
	Run(ctx context.Context, sess schemas.SessionContext, plan *schemas.ActionPlan) *schemas.AutomationResult
}

// Server hosts the automation HTTP surface.
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	planner  Planner
	sessions SessionFactory
	runner   PlanRunner
	limiter  *rate.Limiter
	metrics  *Metrics

	httpServer *http.Server
}

// New assembles the server from its collaborators.
func New(cfg *config.Config, logger *zap.Logger, planner Planner, sessions SessionFactory, runner PlanRunner) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger.Named("server"),
		planner:  planner,
		sessions: sessions,
		runner:   runner,
		limiter:  rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst),
	}
	s.metrics = NewMetrics(sessions.ActiveSessions)
	return s
}

// Routes builds the chi router with the standard middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	r.Post("/interact", s.handleInteract)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	return r
}

// Start runs the HTTP listener and blocks until shutdown completes. Shutdown
// order on SIGINT/SIGTERM: drain HTTP, close browser sessions and the
// allocator, flush logs.
func (s *Server) Start() error {
	defer observability.Sync()

	s.httpServer = &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Routes(),
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		s.logger.Info("Received shutdown signal, shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error.", zap.Error(err))
		}

		if err := s.sessions.Shutdown(ctx); err != nil {
			s.logger.Error("Browser manager shutdown error.", zap.Error(err))
		}

		close(idleConnsClosed)
	}()

	s.logger.Info("Server starting.", zap.String("address", s.cfg.Server.ListenAddr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("HTTP server ListenAndServe error.", zap.Error(err))
		s.sessions.Shutdown(context.Background())
		return err
	}

	<-idleConnsClosed
	s.logger.Info("Server stopped.")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
