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

	"github.com/askdb/askdb/internal/api"
	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/chart"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/export"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/rewrite"
	"github.com/askdb/askdb/internal/schema"
	s3store "github.com/askdb/askdb/internal/storage/s3"
	"github.com/askdb/askdb/internal/summary"
)

func main() {
	cfg, err := config.LoadFromEnv("askdb-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.Error("askdb-api stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	db, err := database.Open(context.Background(), database.ConfigFrom(cfg.Database))
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("close database", slog.Any("error", err))
		}
	}()

	completer, err := llm.New(cfg.AI, nil)
	if err != nil {
		return err
	}

	service := &pipeline.Service{
		Schema:     schema.NewIntrospector(db, cfg.Database.Schema),
		Generator:  nl2sql.NewGenerator(completer),
		Augmenter:  rewrite.Textual{},
		Executor:   query.NewExecutor(db),
		Summarizer: summary.NewGenerator(completer),
		Decider:    chart.NewDecider(completer),
		Logger:     logger,
	}

	readiness := []api.ReadinessCheck{
		api.CheckPing("database", func(ctx context.Context) error {
			return database.Ping(ctx, db, 0)
		}),
	}
	deps := api.Dependencies{
		Logger:            logger,
		Pipeline:          service,
		DependencyTimeout: 2 * time.Second,
	}
	if cfg.Export.Enabled {
		store, err := s3store.New(context.Background(), cfg.Export.ObjectStore)
		if err != nil {
			return err
		}
		deps.Exporter = &export.Service{
			Pipeline:    service,
			ObjectStore: store,
			Logger:      logger,
		}
		readiness = append(readiness, api.CheckPing("object store", store.Check))
	}
	deps.Readiness = api.CombineReadinessChecks(readiness...)

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			return err
		}
		if validator.Len() == 0 {
			logger.Warn("auth required but no static keys configured; every protected request will be rejected")
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("ai_provider", cfg.AI.Provider),
			slog.Bool("export_enabled", cfg.Export.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
		return err
	}
	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}
