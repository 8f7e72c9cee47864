// cmd/api/main.go
// Main entry point for the stories API
// This file bootstraps all components and starts the server

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	// Internal packages
	"github.com/imadgeboyega/kiekky-stories/internal/auth"
	"github.com/imadgeboyega/kiekky-stories/internal/common/database"
	"github.com/imadgeboyega/kiekky-stories/internal/config"
	"github.com/imadgeboyega/kiekky-stories/internal/log"
	"github.com/imadgeboyega/kiekky-stories/internal/player"
	"github.com/imadgeboyega/kiekky-stories/internal/stories"
)

var startTime = time.Now()

func main() {
	// 1. Load environment variables
	envErr := godotenv.Load()

	// 2. Load configuration and logging
	cfg := config.Load()
	log.Configure(log.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.IsDevelopment(),
	})
	logger := log.WithComponent("api")

	logger.Info().Msg("Starting Kiekky stories API")
	if envErr != nil {
		logger.Warn().Err(envErr).Msg("No .env file found, using environment variables")
	}

	// 3. Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Configuration validation failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Connect to PostgreSQL
	db, err := database.NewPostgresDBFromURL(ctx, cfg.DatabaseURL, database.DefaultPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer db.Close()
	logger.Info().Msg("Connected to PostgreSQL")

	// 5. Connect to Redis (optional)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClientFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, continuing with in-process fallbacks")
			redisClient = nil
		} else {
			defer redisClient.Close()
			logger.Info().Msg("Connected to Redis")
		}
	} else {
		logger.Warn().Msg("Redis URL not configured, skipping Redis connection")
	}

	// 6. Run database migrations
	if err := database.RunStoryMigrations(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}
	logger.Info().Msg("Database migrations completed")

	// 7. Stories module
	var (
		viewMarker stories.ViewMarker
		notifier   stories.DeletionNotifier
		positions  stories.PositionStore
	)
	if redisClient != nil {
		viewMarker = stories.NewRedisViewMarker(redisClient, cfg.StoryExpiry)
		notifier = stories.NewRedisDeletionNotifier(redisClient)
		positions = stories.NewRedisPositionStore(redisClient, cfg.StoryExpiry)
	} else {
		notifier = stories.NewLocalDeletionNotifier()
		positions = stories.NewMemoryPositionStore()
	}

	storiesRepo := stories.NewPostgresRepository(db)
	storiesService := stories.NewService(storiesRepo, viewMarker, notifier, stories.ServiceConfig{
		SlideDuration: cfg.SlideDuration,
	}, log.WithComponent("stories"))
	storiesHandler := stories.NewHandler(storiesService)

	cleanup := stories.NewCleanupService(storiesService, cfg.StoryCleanupInterval, log.WithComponent("cleanup"))
	if err := cleanup.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start story cleanup")
	}

	// 8. Playback module
	hub := player.NewHub(storiesService, positions, player.Config{
		TickInterval:  cfg.TickInterval,
		ReportTimeout: cfg.ViewReportTimeout,
	}, log.WithComponent("player"))
	go func() {
		if err := hub.Run(ctx, notifier); err != nil {
			logger.Error().Err(err).Msg("Story deletion subscription stopped")
		}
	}()
	playerHandler := player.NewHandler(hub, storiesService, cfg.AllowedOrigins, log.WithComponent("player"))

	// 9. Setup routes
	authMiddleware := auth.NewMiddleware(auth.NewJWTValidator(cfg.JWTSecret), log.WithComponent("auth"))

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck(db, redisClient)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	stories.RegisterRoutes(router, storiesHandler, authMiddleware)
	router.PathPrefix("/api/v1/playback").Handler(
		http.StripPrefix("/api/v1/playback", player.Routes(playerHandler, authMiddleware)))

	router.Use(loggingMiddleware(log.WithComponent("http")))
	router.Use(corsMiddleware(cfg.AllowedOrigins))

	// 10. Create and start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("environment", cfg.Environment).
			Msg("Server starting")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Hijacked websocket connections are not covered by srv.Shutdown
	hub.Shutdown()

	logger.Info().Msg("Server exited gracefully")
}
