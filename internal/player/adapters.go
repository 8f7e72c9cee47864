// internal/player/adapters.go
// Bind a playback controller to the stories service for one viewer

package player

import (
	"context"
	"fmt"

	"github.com/imadgeboyega/kiekky-stories/internal/playback"
	"github.com/imadgeboyega/kiekky-stories/internal/stories"
)

// StoryService is the part of the stories service the player needs
type StoryService interface {
	FetchStories(ctx context.Context, viewerID int64) ([]playback.Story, error)
	ReportView(ctx context.Context, storyID int64, viewerID int64) error
	SubmitReaction(ctx context.Context, storyID int64, userID int64, emoji string) (*stories.StoryReply, error)
	SubmitReply(ctx context.Context, storyID int64, userID int64, text string) (*stories.StoryReply, error)
}

type viewReporter struct {
	stories  StoryService
	viewerID int64
}

func (r viewReporter) ReportView(ctx context.Context, storyID string) error {
	id, err := stories.ParseID(storyID)
	if err != nil {
		viewReports.WithLabelValues("invalid").Inc()
		return fmt.Errorf("story id %q: %w", storyID, err)
	}
	if err := r.stories.ReportView(ctx, id, r.viewerID); err != nil {
		viewReports.WithLabelValues("error").Inc()
		return err
	}
	viewReports.WithLabelValues("ok").Inc()
	return nil
}

type interactions struct {
	stories  StoryService
	viewerID int64
}

func (i interactions) SubmitReaction(ctx context.Context, storyID, emoji string) error {
	id, err := stories.ParseID(storyID)
	if err != nil {
		return fmt.Errorf("story id %q: %w", storyID, err)
	}
	_, err = i.stories.SubmitReaction(ctx, id, i.viewerID, emoji)
	return err
}

func (i interactions) SubmitReply(ctx context.Context, storyID, text string) error {
	id, err := stories.ParseID(storyID)
	if err != nil {
		return fmt.Errorf("story id %q: %w", storyID, err)
	}
	_, err = i.stories.SubmitReply(ctx, id, i.viewerID, text)
	return err
}
