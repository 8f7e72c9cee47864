package stories

import (
	"database/sql"
	"time"

	"github.com/imadgeboyega/kiekky-stories/internal/playback"
)

// Story represents a user story
type Story struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Computed fields
	Slides    []*Slide   `json:"slides,omitempty"`
	ViewCount int        `json:"view_count,omitempty" db:"view_count"`
	HasViewed bool       `json:"has_viewed,omitempty" db:"has_viewed"`
	IsExpired bool       `json:"is_expired"`
	User      *StoryUser `json:"user,omitempty"`
}

// Slide is one photo, video or text frame of a story
type Slide struct {
	ID         int64          `json:"id" db:"id"`
	StoryID    int64          `json:"story_id" db:"story_id"`
	Kind       string         `json:"kind" db:"kind"` // photo, video or text
	Position   int            `json:"position" db:"position"`
	MediaURL   sql.NullString `json:"-" db:"media_url"`
	Body       sql.NullString `json:"-" db:"body"`
	Style      sql.NullString `json:"-" db:"style"`
	DurationMS sql.NullInt64  `json:"-" db:"duration_ms"`
}

// SlidePayload is the content handed to the presentation layer untouched
type SlidePayload struct {
	MediaURL string `json:"media_url,omitempty"`
	Body     string `json:"body,omitempty"`
	Style    string `json:"style,omitempty"`
}

// StoryUser represents user info in story response
type StoryUser struct {
	ID             int64   `json:"id" db:"id"`
	Username       string  `json:"username" db:"username"`
	DisplayName    string  `json:"display_name" db:"display_name"`
	ProfilePicture *string `json:"profile_picture" db:"profile_picture"`
}

// StoryView represents a story view
type StoryView struct {
	StoryID  int64      `json:"story_id" db:"story_id"`
	ViewerID int64      `json:"viewer_id" db:"viewer_id"`
	ViewedAt time.Time  `json:"viewed_at" db:"viewed_at"`
	Viewer   *StoryUser `json:"viewer,omitempty"`
}

// StoryReply represents a reply or reaction to a story
type StoryReply struct {
	ID        int64      `json:"id" db:"id"`
	StoryID   int64      `json:"story_id" db:"story_id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	Message   *string    `json:"message,omitempty" db:"message"`
	Reaction  *string    `json:"reaction,omitempty" db:"reaction"`
	IsRead    bool       `json:"is_read" db:"is_read"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	User      *StoryUser `json:"user,omitempty"`
}

// StoryReplyRequest represents request to reply to a story
type StoryReplyRequest struct {
	Message  string `json:"message,omitempty" validate:"omitempty,max=500"`
	Reaction string `json:"reaction,omitempty" validate:"omitempty,max=50"`
}

// FeedResponse is the carousel lineup returned to clients
type FeedResponse struct {
	Stories []playback.Story `json:"stories"`
	Total   int              `json:"total"`
}
