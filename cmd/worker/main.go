package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

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

	// Database
	db, err := database.NewPostgresDB(&cfg.Database, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

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

	sessionRepo := repositories.NewSessionRepository(db.DB, log)
	agentClient := agent.NewClient(&cfg.Agent, logger.NewServiceLogger("agent"))

	// Task server
	server, err := queue.NewAsynqServer(&cfg.Queue, log)
	if err != nil {
		log.Error("failed to create queue server", "error", err)
		os.Exit(1)
	}

	handlers := queue.NewTaskHandlers(sessionRepo, agentClient, notifier, guidanceCache,
		time.Duration(cfg.Flow.PollIntervalSeconds)*time.Second,
		logger.NewServiceLogger("worker"))
	handlers.Register(server)

	go func() {
		if err := server.Start(); err != nil {
			log.Error("worker failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker")
	server.Shutdown()
	log.Info("shutdown complete")
}
