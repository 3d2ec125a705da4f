package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"ai-playground/handler"
	"ai-playground/internal/app"
	"ai-playground/internal/config"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load(os.Getenv)
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger := cfg.Logger(os.Stdout)
	slog.SetDefault(logger)

	// ---- Clients ----
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise clients", "err", err)
		os.Exit(1)
	}
	defer func() { _ = a.Close() }()

	// ---- Handler ----
	h, err := handler.NewHandler(a.Gateway,
		handler.WithRecorder(a.Recorder),
		handler.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
