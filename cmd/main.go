package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"portfolio-chat/handler"
	"portfolio-chat/internal/app"
	"portfolio-chat/internal/config"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// ---- Dependencies ----
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to build application", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	// ---- Handler ----
	h, err := handler.NewHandler(a.Chat, handler.WithLogger(logger))
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
