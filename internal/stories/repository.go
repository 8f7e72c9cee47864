package stories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Repository interface {
	// Feed
	GetActiveFeed(ctx context.Context, viewerID int64) ([]*Story, error)
	GetSlides(ctx context.Context, storyIDs []int64) ([]*Slide, error)

	// Story
	GetStory(ctx context.Context, storyID int64) (*Story, error)
	DeleteStory(ctx context.Context, storyID int64) error

	// Views and replies
	RecordView(ctx context.Context, storyID int64, viewerID int64) error
	GetStoryViews(ctx context.Context, storyID int64) ([]*StoryView, error)
	CreateReply(ctx context.Context, reply *StoryReply) error
	GetStoryReplies(ctx context.Context, storyID int64) ([]*StoryReply, error)

	// Cleanup
	DeleteExpiredStories(ctx context.Context, before time.Time) ([]int64, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

// GetActiveFeed returns the latest unexpired story of the viewer and of every
// author the viewer follows
func (r *postgresRepository) GetActiveFeed(ctx context.Context, viewerID int64) ([]*Story, error) {
	query := `
        SELECT DISTINCT ON (s.user_id)
               s.id, s.user_id, s.expires_at, s.created_at,
               u.username, COALESCE(u.display_name, u.username), u.profile_picture,
               EXISTS(SELECT 1 FROM story_views sv WHERE sv.story_id = s.id AND sv.viewer_id = $1) AS has_viewed
        FROM stories s
        INNER JOIN users u ON s.user_id = u.id
        WHERE s.expires_at > NOW()
          AND (s.user_id = $1 OR s.user_id IN (
                SELECT following_id FROM follows WHERE follower_id = $1))
        ORDER BY s.user_id, s.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stories []*Story
	for rows.Next() {
		var story Story
		var user StoryUser
		err := rows.Scan(
			&story.ID, &story.UserID, &story.ExpiresAt, &story.CreatedAt,
			&user.Username, &user.DisplayName, &user.ProfilePicture,
			&story.HasViewed,
		)
		if err != nil {
			return nil, err
		}
		user.ID = story.UserID
		story.User = &user
		stories = append(stories, &story)
	}

	return stories, rows.Err()
}

// GetSlides loads the slides of several stories ordered by story then position
func (r *postgresRepository) GetSlides(ctx context.Context, storyIDs []int64) ([]*Slide, error) {
	if len(storyIDs) == 0 {
		return nil, nil
	}

	query := `
        SELECT id, story_id, kind, position, media_url, body, style, duration_ms
        FROM story_slides
        WHERE story_id = ANY($1)
        ORDER BY story_id, position`

	var slides []*Slide
	err := r.db.SelectContext(ctx, &slides, query, pq.Array(storyIDs))
	return slides, err
}

// GetStory retrieves a story by ID
func (r *postgresRepository) GetStory(ctx context.Context, storyID int64) (*Story, error) {
	var story Story
	query := `
        SELECT id, user_id, expires_at, created_at
        FROM stories
        WHERE id = $1`

	err := r.db.GetContext(ctx, &story, query, storyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStoryNotFound
	}
	if err != nil {
		return nil, err
	}

	story.IsExpired = time.Now().After(story.ExpiresAt)
	return &story, nil
}

// DeleteStory deletes a story; slides, views and replies cascade
func (r *postgresRepository) DeleteStory(ctx context.Context, storyID int64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM stories WHERE id = $1", storyID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrStoryNotFound
	}
	return nil
}

// RecordView records a story view
func (r *postgresRepository) RecordView(ctx context.Context, storyID int64, viewerID int64) error {
	query := `
        INSERT INTO story_views (story_id, viewer_id)
        VALUES ($1, $2)
        ON CONFLICT (story_id, viewer_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, storyID, viewerID)
	return err
}

// GetStoryViews retrieves all views for a story
func (r *postgresRepository) GetStoryViews(ctx context.Context, storyID int64) ([]*StoryView, error) {
	query := `
        SELECT sv.story_id, sv.viewer_id, sv.viewed_at,
               u.username, COALESCE(u.display_name, u.username), u.profile_picture
        FROM story_views sv
        INNER JOIN users u ON sv.viewer_id = u.id
        WHERE sv.story_id = $1
        ORDER BY sv.viewed_at DESC`

	rows, err := r.db.QueryContext(ctx, query, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []*StoryView
	for rows.Next() {
		var view StoryView
		var user StoryUser
		err := rows.Scan(
			&view.StoryID, &view.ViewerID, &view.ViewedAt,
			&user.Username, &user.DisplayName, &user.ProfilePicture,
		)
		if err != nil {
			return nil, err
		}
		user.ID = view.ViewerID
		view.Viewer = &user
		views = append(views, &view)
	}

	return views, rows.Err()
}

// CreateReply creates a reply to a story
func (r *postgresRepository) CreateReply(ctx context.Context, reply *StoryReply) error {
	query := `
        INSERT INTO story_replies (story_id, user_id, message, reaction)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query,
		reply.StoryID, reply.UserID, reply.Message, reply.Reaction,
	).Scan(&reply.ID, &reply.CreatedAt)
}

// GetStoryReplies retrieves all replies for a story
func (r *postgresRepository) GetStoryReplies(ctx context.Context, storyID int64) ([]*StoryReply, error) {
	query := `
        SELECT sr.id, sr.story_id, sr.user_id, sr.message, sr.reaction, sr.is_read, sr.created_at,
               u.username, COALESCE(u.display_name, u.username), u.profile_picture
        FROM story_replies sr
        INNER JOIN users u ON sr.user_id = u.id
        WHERE sr.story_id = $1
        ORDER BY sr.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var replies []*StoryReply
	for rows.Next() {
		var reply StoryReply
		var user StoryUser
		err := rows.Scan(
			&reply.ID, &reply.StoryID, &reply.UserID,
			&reply.Message, &reply.Reaction, &reply.IsRead, &reply.CreatedAt,
			&user.Username, &user.DisplayName, &user.ProfilePicture,
		)
		if err != nil {
			return nil, err
		}
		user.ID = reply.UserID
		reply.User = &user
		replies = append(replies, &reply)
	}

	return replies, rows.Err()
}

// DeleteExpiredStories deletes expired stories and returns their IDs
func (r *postgresRepository) DeleteExpiredStories(ctx context.Context, before time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, "DELETE FROM stories WHERE expires_at < $1 RETURNING id", before)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
