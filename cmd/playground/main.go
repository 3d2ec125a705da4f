package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ai-playground/internal/app"
	"ai-playground/internal/config"
	"ai-playground/internal/screen"
	"ai-playground/internal/shell"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("playground exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ---- Configuration (read only here) ----
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		return err
	}
	// stdout belongs to the shell
	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	// ---- Clients ----
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// ---- Metrics ----
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", cfg.MetricsAddr, "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	// ---- Shell ----
	var opts []shell.Option
	if len(cfg.PlayerCmd) > 0 {
		opts = append(opts, shell.WithPlayer(shell.CommandOpener(cfg.PlayerCmd)))
	}
	sh, err := shell.New(screen.Deps{
		Gateway:  a.Gateway,
		Recorder: a.Recorder,
		Logger:   logger,
	}, os.Stdin, os.Stdout, opts...)
	if err != nil {
		return err
	}
	return sh.Run(ctx)
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
