// Command dexarb runs the DEX arbitrage engine in one of four modes:
// monitor (detect and publish opportunities), trade (monitor plus execution),
// archive (one service that periodically offloads cold rows to object
// storage), or full (everything plus the HTTP API).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/quantrend/dexarb/internal/app"
	"github.com/quantrend/dexarb/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dexarb: %v\n", err)
		os.Exit(1)
	}
}

// run carries the real entry point so deferred cleanup still fires on the
// error path; main translates a non-nil return into exit code 1.
func run() error {
	var (
		configPath = flag.String("config", "config.toml", "path to the TOML configuration file")
		modeFlag   = flag.String("mode", "", "override the configured mode (monitor, trade, archive, full)")
		checkOnly  = flag.Bool("check", false, "load and validate the configuration, then exit")
		showVer    = flag.Bool("version", false, "print the build version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Println("dexarb", buildVersion())
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", *configPath, err)
	}
	if *modeFlag != "" {
		cfg.Mode = *modeFlag
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", *configPath, err)
	}
	if *checkOnly {
		fmt.Printf("%s: configuration ok (mode %s)\n", *configPath, cfg.Mode)
		return nil
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("dexarb starting",
		slog.String("version", buildVersion()),
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Int("venues", len(cfg.Venues)),
		slog.Int("pairs", len(cfg.Tokens.Pairs)),
	)
	logger.Debug("active configuration", slog.Any("config", config.RedactedConfig(cfg)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited", slog.String("error", err.Error()))
		return err
	}

	logger.Info("dexarb stopped")
	return nil
}

// newLogger builds the process-wide JSON logger. Validate has already
// rejected unknown level strings, so the fallback is never hit in practice.
func newLogger(levelStr string) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func buildVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		return bi.Main.Version
	}
	return "unknown"
}
