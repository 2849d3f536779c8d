// Command restkit-demo runs a small records API assembled from the restkit
// middleware stack: CSRF protection, content negotiation and conditional
// requests over a SQLite-backed resource.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/restkit/restkit/internal/config"
	"github.com/restkit/restkit/internal/csrf"
	"github.com/restkit/restkit/internal/records"
	"github.com/restkit/restkit/internal/server"
	"github.com/restkit/restkit/internal/storage/sqlite"
	"github.com/restkit/restkit/internal/telemetry"
	"github.com/restkit/restkit/internal/token"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.Load("config.yaml")
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	shutdown, err := telemetry.InitTracer("restkit-demo", logger)
	if err != nil {
		logger.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer shutdown(context.Background())

	codec, err := token.New(cfg.CSRFSecret(), cfg.CSRF.SecretSalt)
	if err != nil {
		logger.Error("failed to build token codec", slog.String("error", err.Error()))
		os.Exit(1)
	}

	protect := csrf.New(codec, server.CSRFOptions(cfg), logger)
	protect.BeforeProtect(csrf.SkipForBearerAuth)

	store, err := sqlite.New(cfg.Storage.SQLite.Path)
	if err != nil {
		logger.Error("failed to open storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	handler, err := records.NewHandler(store, cfg.Negotiation.QueryArgName, logger)
	if err != nil {
		logger.Error("failed to build records handler", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := server.New(cfg, logger, protect, handler)
	if err := srv.Start(); err != nil {
		logger.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
