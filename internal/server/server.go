// Package server assembles the HTTP + WebSocket API: routes, middleware
// chain, and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
	"github.com/quantrend/dexarb/internal/server/handler"
	"github.com/quantrend/dexarb/internal/server/middleware"
	"github.com/quantrend/dexarb/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port              int
	CORSOrigins       []string
	APIKey            string // empty disables authentication
	RateLimitRequests int    // per client per window; <= 0 disables limiting
	RateLimitWindow   time.Duration
}

// Handlers aggregates the endpoint handlers. Nil entries skip route
// registration, so each mode exposes only the surfaces it actually runs.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Monitor     *handler.MonitorHandler
	Pairs       *handler.PairsHandler
	Opportunity *handler.OpportunityHandler
	Config      *handler.ConfigHandler
	Analysis    *handler.AnalysisHandler
	Events      *handler.EventsHandler
	Archive     *handler.ArchiveHandler
	Audit       *handler.AuditHandler
}

// Server is the headless HTTP + WebSocket API of the engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all non-nil handlers registered and the
// middleware chain applied: CORS, then request logging, then auth, then
// per-client rate limiting, then audit recording of mutating calls. A nil
// limiter or non-positive request limit disables the rate limit stage; a nil
// audit store disables audit recording.
func New(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.KeyedLimiter, audit domain.AuditStore, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}
	if handlers.Monitor != nil {
		mux.HandleFunc("POST /api/monitor/start", handlers.Monitor.Start)
		mux.HandleFunc("POST /api/monitor/stop", handlers.Monitor.Stop)
	}
	if handlers.Pairs != nil {
		mux.HandleFunc("GET /api/pairs", handlers.Pairs.List)
		mux.HandleFunc("POST /api/pairs", handlers.Pairs.Add)
		mux.HandleFunc("DELETE /api/pairs/{key}", handlers.Pairs.Remove)
	}
	if handlers.Opportunity != nil {
		mux.HandleFunc("GET /api/opportunities", handlers.Opportunity.List)
		mux.HandleFunc("GET /api/opportunities/history", handlers.Opportunity.History)
		mux.HandleFunc("GET /api/opportunities/{id}", handlers.Opportunity.Get)
		mux.HandleFunc("POST /api/opportunities/{id}/execute", handlers.Opportunity.Execute)
		mux.HandleFunc("POST /api/circuit/reset", handlers.Opportunity.ResetCircuit)
		mux.HandleFunc("GET /api/executions", handlers.Opportunity.Executions)
		mux.HandleFunc("GET /api/executions/{id}", handlers.Opportunity.GetExecution)
		mux.HandleFunc("GET /api/profit", handlers.Opportunity.Profit)
	}
	if handlers.Config != nil {
		mux.HandleFunc("GET /api/config", handlers.Config.Get)
		mux.HandleFunc("PUT /api/config", handlers.Config.Update)
	}
	if handlers.Analysis != nil {
		mux.HandleFunc("GET /api/analysis/volatility", handlers.Analysis.Volatility)
		mux.HandleFunc("GET /api/analysis/candles", handlers.Analysis.Candles)
	}
	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.List)
	}
	if handlers.Archive != nil {
		mux.HandleFunc("POST /api/archive/trigger", handlers.Archive.Trigger)
		mux.HandleFunc("GET /api/archive", handlers.Archive.List)
		mux.HandleFunc("GET /api/archive/{kind}/{month}", handlers.Archive.Download)
	}
	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.List)
	}
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	if audit != nil {
		h = middleware.Audit(audit, logger)(h)
	}
	if limiter != nil && cfg.RateLimitRequests > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitRequests, cfg.RateLimitWindow)(h)
	}
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: h,
		// ReadHeaderTimeout rather than ReadTimeout: WebSocket upgrades share
		// this server and must not inherit a request-body deadline.
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
