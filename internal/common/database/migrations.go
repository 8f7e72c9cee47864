// internal/common/database/migrations.go
// Schema for the story tables

package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// storyMigrations run in order; each statement is idempotent
var storyMigrations = []string{
	// Owned by the account service; created here so a fresh database works
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		email VARCHAR(255) UNIQUE,
		username VARCHAR(100) UNIQUE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS display_name VARCHAR(100)`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS profile_picture TEXT`,
	`CREATE TABLE IF NOT EXISTS follows (
		follower_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		following_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (follower_id, following_id)
	)`,

	`CREATE TABLE IF NOT EXISTS stories (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stories_user_created ON stories (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_stories_expires_at ON stories (expires_at)`,
	`CREATE TABLE IF NOT EXISTS story_slides (
		id BIGSERIAL PRIMARY KEY,
		story_id BIGINT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
		kind VARCHAR(10) NOT NULL CHECK (kind IN ('photo', 'video', 'text')),
		position INT NOT NULL,
		media_url TEXT,
		body TEXT,
		style TEXT,
		duration_ms BIGINT CHECK (duration_ms IS NULL OR duration_ms > 0),
		UNIQUE (story_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS story_views (
		story_id BIGINT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
		viewer_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		viewed_at TIMESTAMP NOT NULL DEFAULT NOW(),
		PRIMARY KEY (story_id, viewer_id)
	)`,
	`CREATE TABLE IF NOT EXISTS story_replies (
		id BIGSERIAL PRIMARY KEY,
		story_id BIGINT NOT NULL REFERENCES stories(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		message TEXT,
		reaction VARCHAR(50),
		is_read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		CHECK (message IS NOT NULL OR reaction IS NOT NULL)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_story_replies_story ON story_replies (story_id, created_at DESC)`,
}

// RunStoryMigrations creates the story tables and the user columns they read
func RunStoryMigrations(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range storyMigrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
