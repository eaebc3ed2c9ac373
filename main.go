package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/curation-engine/pkg/config"
	"github.com/ekaya-inc/curation-engine/pkg/curationmanager"
	"github.com/ekaya-inc/curation-engine/pkg/database"
	"github.com/ekaya-inc/curation-engine/pkg/handlers"
	"github.com/ekaya-inc/curation-engine/pkg/index"
	"github.com/ekaya-inc/curation-engine/pkg/logging"
	"github.com/ekaya-inc/curation-engine/pkg/metrics"
	"github.com/ekaya-inc/curation-engine/pkg/remote"
	"github.com/ekaya-inc/curation-engine/pkg/repositories"
	"github.com/ekaya-inc/curation-engine/pkg/services"
	"github.com/ekaya-inc/curation-engine/pkg/storage"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("curation_manager", cfg.Curation.ManagerURL),
		zap.String("index", cfg.IndexURL),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Duration("poll_interval", cfg.Curation.PollInterval))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database.ConnectionString(), cfg.Database.MaxConnections)
	if err != nil {
		logger.Fatal("failed to connect to database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database.ConnectionString(), "migrations", logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	store, err := storage.NewFilesystemStorage(cfg.Storage.Root)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}

	indexClient := index.NewClient(cfg.IndexURL, logger)
	managerClient := curationmanager.NewClient(cfg.Curation.ManagerURL, logger)
	remoteClient := remote.NewClient(cfg.Curation.RemoteSystems, logger)

	jobRepo := repositories.NewCurationJobRepository(db)
	m := metrics.New()

	resolver := services.NewRelationshipResolver(store, indexClient, remoteClient, cfg.Curation, cfg.Storage, logger)
	builder := services.NewMessageBuilder(store, cfg.Storage, logger)
	curationService := services.NewCurationService(resolver, builder, managerClient, jobRepo, m, logger)
	publishService := services.NewPublishService(store, indexClient, remoteClient, cfg.Curation, m, logger)

	poller := services.NewJobPoller(jobRepo, managerClient, publishService, m, logger)
	poller.RunScheduler(ctx, cfg.Curation.PollInterval)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewCurationHandler(curationService, logger).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		logger.Info("starting curation-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
}
