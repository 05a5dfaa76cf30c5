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

	"github.com/pitchforge/pitch-builder-service/internal/api"
	"github.com/pitchforge/pitch-builder-service/internal/api/handlers"
	"github.com/pitchforge/pitch-builder-service/internal/core/domain"
	"github.com/pitchforge/pitch-builder-service/internal/core/services/flow"
	"github.com/pitchforge/pitch-builder-service/internal/core/services/generation"
	"github.com/pitchforge/pitch-builder-service/internal/infrastructure/agent"
	"github.com/pitchforge/pitch-builder-service/internal/infrastructure/cache"
	"github.com/pitchforge/pitch-builder-service/internal/infrastructure/database"
	"github.com/pitchforge/pitch-builder-service/internal/infrastructure/database/repositories"
	"github.com/pitchforge/pitch-builder-service/internal/infrastructure/queue"
	"github.com/pitchforge/pitch-builder-service/internal/pkg/config"
	"github.com/pitchforge/pitch-builder-service/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.Initialize(cfg.Environment)
	cfg.LogConfig()

	// Database
	db, err := database.NewPostgresDB(&cfg.Database, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.AutoMigrate(&domain.PitchSession{}); err != nil {
		log.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Redis
	redisCache, err := cache.NewRedisCache(&cfg.Cache, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	notifier := cache.NewNotifier(redisCache, log)
	guidanceCache := cache.NewGuidanceCache(redisCache,
		time.Duration(cfg.Flow.GuidanceCacheTTLHrs)*time.Hour)

	// Queue client
	asynqClient, err := queue.NewAsynqClient(&cfg.Queue, log)
	if err != nil {
		log.Error("failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer asynqClient.Close()

	pollInterval := time.Duration(cfg.Flow.PollIntervalSeconds) * time.Second
	pollBudget := pollInterval * time.Duration(cfg.Flow.PollMaxAttempts+10)
	enqueuer := queue.NewTaskEnqueuer(asynqClient, cfg.Queue.MaxRetries, pollBudget)

	// Core services
	sessionRepo := repositories.NewSessionRepository(db.DB, log)
	manager := flow.NewManager(sessionRepo, flow.Config{
		AutosaveDebounce:     time.Duration(cfg.Flow.AutosaveDebounceMS) * time.Millisecond,
		SaveRetryMaxAttempts: cfg.Flow.SaveRetryMaxAttempts,
	}, logger.NewServiceLogger("flow"))

	agentClient := agent.NewClient(&cfg.Agent, logger.NewServiceLogger("agent"))

	generator := generation.NewService(manager, sessionRepo, agentClient,
		notifier, enqueuer, guidanceCache,
		generation.WatcherConfig{
			Interval:    pollInterval,
			MaxAttempts: cfg.Flow.PollMaxAttempts,
		},
		logger.NewServiceLogger("generation"))

	// HTTP surface
	router := api.NewRouter(api.RouterConfig{
		SessionHandler: handlers.NewSessionHandler(manager, generator, sessionRepo),
		HealthHandler:  handlers.NewHealthHandler(db, redisCache),
		Production:     cfg.IsProduction(),
	})

	server := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info("api server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}

	// Dirty sessions flush before the process exits
	if err := manager.Flush(ctx); err != nil {
		log.Error("session flush failed", "error", err)
	}

	log.Info("shutdown complete")
}
