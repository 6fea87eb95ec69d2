// Command server runs the gomoku session server (spec component C3): TCP
// acceptor, dispatcher, reaper, resource-stats logger, and an optional
// match-history archive.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/gomokusrv/arbiter/internal/config"
	"github.com/gomokusrv/arbiter/internal/engine"
	"github.com/gomokusrv/arbiter/internal/historystore"
	"github.com/gomokusrv/arbiter/internal/sessionsrv"
)

const defaultConfigPath = "config/server.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := defaultConfigPath
	if p := os.Getenv("GOMOKUSRV_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("gomoku session server starting", "bind", cfg.BindAddress, "port", cfg.Port, "log_level", cfg.LogLevel)

	history, closeHistory := setupHistory(ctx, cfg)
	if closeHistory != nil {
		defer closeHistory()
	}

	srv := sessionsrv.New(cfg, &engine.GomokuEngine{}, history)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Run(gctx); err != nil {
			return fmt.Errorf("session server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}

// setupHistory wires the optional match-history archive (SPEC_FULL.md
// §11.6). Any failure here is non-fatal: gameplay never blocks on the
// archive being available.
func setupHistory(ctx context.Context, cfg config.Server) (sessionsrv.HistoryStore, func()) {
	if !cfg.Database.Enabled {
		slog.Info("match-history archive disabled (database.enabled=false)")
		return nil, nil
	}

	store, err := historystore.New(ctx, cfg.Database.DSN())
	if err != nil {
		slog.Warn("match-history store unavailable, archive disabled", "error", err)
		return nil, nil
	}
	slog.Info("match-history archive connected")
	return store, store.Close
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
