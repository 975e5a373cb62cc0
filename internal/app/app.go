// Package app provides the top-level lifecycle of the dexarb engine. It
// wires the shared infrastructure (stores, Redis, object storage,
// notifications), builds the scan-and-execute core, and starts the
// goroutines the configured operating mode calls for.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantrend/dexarb/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger // tagged component=app for lifecycle logs
	base    *slog.Logger // undecorated root, handed to subsystems
	closers []func()
}

// New builds an App around a loaded configuration. The logger is the process
// root; it is handed to subsystems undecorated so each can attach its own
// component tag.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		base:   logger,
	}
}

// Run wires the infrastructure for the configured mode, hands off to that
// mode's runner, and blocks until the context is cancelled or a component
// fails. Cleanup of wired resources happens in Close, not here, so a caller
// can inspect state after a failed run.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "application starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.base)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case config.ModeMonitor:
		return a.MonitorMode(ctx, deps)
	case config.ModeTrade:
		return a.TradeMode(ctx, deps)
	case config.ModeArchive:
		return a.ArchiveMode(ctx, deps)
	case config.ModeFull:
		return a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close releases wired resources in reverse registration order, so consumers
// stop before the connections they depend on. Calling it again is a no-op.
func (a *App) Close() {
	a.logger.Info("application shutdown")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
