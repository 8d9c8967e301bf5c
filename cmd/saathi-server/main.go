// Command saathi-server serves the assistant to web clients: REST routes,
// the voice bridge over WebSocket and Prometheus metrics.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"go.aimuz.me/saathi/config"
	"go.aimuz.me/saathi/internal/assistant"
	"go.aimuz.me/saathi/internal/server"
	"go.aimuz.me/saathi/metrics"
	"go.aimuz.me/saathi/telemetry"
)

var (
	version = "dev"
	commit  = "none"
)

const shutdownTimeout = 10 * time.Second

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel(os.Getenv("SAATHI_LOG_LEVEL")),
		TimeFormat: time.TimeOnly,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("saathi-server", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	slog.Info("starting server", "version", version, "commit", commit)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Setup(ctx, "saathi-server")
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("shutdown tracing", "error", err)
		}
	}()

	a, err := assistant.New(cfg, metrics.NewMetrics("saathi"))
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start(cfg.Server.Address) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	return <-errc
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
