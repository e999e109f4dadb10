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

	"github.com/sqlmesa/sqlmesa/internal/api"
	"github.com/sqlmesa/sqlmesa/internal/archive"
	"github.com/sqlmesa/sqlmesa/internal/auth"
	"github.com/sqlmesa/sqlmesa/internal/config"
	"github.com/sqlmesa/sqlmesa/internal/llm"
	"github.com/sqlmesa/sqlmesa/internal/observability"
	"github.com/sqlmesa/sqlmesa/internal/pipeline"
	"github.com/sqlmesa/sqlmesa/internal/session"
)

func main() {
	cfg, err := config.LoadFromEnv("sqlmesa-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	ai, err := llm.NewClient(llm.Config{
		BaseURL:        cfg.AI.BaseURL,
		APIKey:         cfg.AI.APIKey,
		Model:          cfg.AI.Model,
		EmbeddingModel: cfg.AI.EmbeddingModel,
		Temperature:    cfg.AI.Temperature,
		Timeout:        cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize ai client", slog.Any("error", err))
		os.Exit(1)
	}

	var archiver *archive.Archiver
	if cfg.Archive.Enabled {
		store, err := archive.NewS3Store(context.Background(), archive.S3Config{
			Endpoint:        cfg.Archive.Endpoint,
			Region:          cfg.Archive.Region,
			Bucket:          cfg.Archive.Bucket,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
			UseSSL:          cfg.Archive.UseSSL,
			Prefix:          cfg.Archive.Prefix,
		})
		if err != nil {
			logger.Error("failed to initialize result archive", slog.Any("error", err))
			os.Exit(1)
		}
		archiver = archive.NewArchiver(store, logger)
	}

	registry := session.NewRegistry(logger)
	defer registry.Close()

	svc := pipeline.New(ai, archiver, cfg.Pipeline, logger)

	deps := api.Dependencies{
		Logger:    logger,
		Readiness: api.CheckAIConfig(cfg),
		Registry:  registry,
		Connector: svc,
		Runner:    svc,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go registry.Sweep(ctx, cfg.Session.SweepInterval)

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
