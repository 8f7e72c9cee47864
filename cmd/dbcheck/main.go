// cmd/dbcheck/main.go
// Checks that the configured database and Redis are reachable and reports
// the state of the story tables. Pass -migrate to create them first.

package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/imadgeboyega/kiekky-stories/internal/common/database"
	"github.com/imadgeboyega/kiekky-stories/internal/config"
	"github.com/imadgeboyega/kiekky-stories/internal/log"
)

func main() {
	migrate := flag.Bool("migrate", false, "run story migrations before checking")
	flag.Parse()

	// Containers set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()
	log.Configure(log.Config{Level: "info", Pretty: true, Service: "kiekky-dbcheck"})
	logger := log.WithComponent("dbcheck")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPostgresDBFromURL(ctx, cfg.DatabaseURL, database.DefaultPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("Can't reach database")
	}
	defer db.Close()
	logger.Info().Msg("Database reachable")

	if *migrate {
		if err := database.RunStoryMigrations(ctx, db); err != nil {
			logger.Fatal().Err(err).Msg("Migrations failed")
		}
		logger.Info().Msg("Migrations applied")
	}

	failed := false
	for _, table := range []string{"stories", "story_slides", "story_views", "story_replies"} {
		var count int64
		// Table names come from the fixed list above
		if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+table); err != nil {
			logger.Error().Err(err).Str("table", table).Msg("Table check failed")
			failed = true
			continue
		}
		logger.Info().Str("table", table).Int64("rows", count).Msg("Table ok")
	}

	var active int64
	if err := db.GetContext(ctx, &active, "SELECT COUNT(*) FROM stories WHERE expires_at > NOW()"); err == nil {
		logger.Info().Int64("active_stories", active).Msg("Active stories")
	}

	if cfg.RedisURL != "" {
		client, err := database.NewRedisClientFromURL(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable; the API will fall back to in-process stores")
		} else {
			client.Close()
			logger.Info().Msg("Redis reachable")
		}
	}

	if failed {
		os.Exit(1)
	}
}
