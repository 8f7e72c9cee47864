package stories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imadgeboyega/kiekky-stories/internal/common/utils"
	"github.com/imadgeboyega/kiekky-stories/internal/playback"
	"github.com/rs/zerolog"
)

var (
	ErrStoryNotFound = errors.New("story not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrStoryExpired  = errors.New("story has expired")
	ErrOwnStory      = errors.New("cannot reply to your own story")
	ErrInvalidReply  = errors.New("message or reaction is required")
)

type Service interface {
	// Feed
	FetchStories(ctx context.Context, viewerID int64) ([]playback.Story, error)

	// Story interactions
	ReportView(ctx context.Context, storyID int64, viewerID int64) error
	SubmitReaction(ctx context.Context, storyID int64, userID int64, emoji string) (*StoryReply, error)
	SubmitReply(ctx context.Context, storyID int64, userID int64, text string) (*StoryReply, error)
	ReplyToStory(ctx context.Context, storyID int64, userID int64, req *StoryReplyRequest) (*StoryReply, error)
	GetStoryViews(ctx context.Context, storyID int64, userID int64) ([]*StoryView, error)
	GetStoryReplies(ctx context.Context, storyID int64, userID int64) ([]*StoryReply, error)

	// Story management
	DeleteStory(ctx context.Context, storyID int64, userID int64) error
	CleanupExpiredStories(ctx context.Context) error
}

// ServiceConfig carries the tunables the service reads from config
type ServiceConfig struct {
	SlideDuration time.Duration
}

type service struct {
	repo          Repository
	views         ViewMarker
	notifier      DeletionNotifier
	slideDuration time.Duration
	logger        zerolog.Logger
}

// NewService builds the stories service. views and notifier may be nil; a nil
// marker sends every view to the database and a nil notifier drops deletions.
func NewService(repo Repository, views ViewMarker, notifier DeletionNotifier, cfg ServiceConfig, logger zerolog.Logger) Service {
	if cfg.SlideDuration <= 0 {
		cfg.SlideDuration = playback.DefaultSlideDuration
	}
	return &service{
		repo:          repo,
		views:         views,
		notifier:      notifier,
		slideDuration: cfg.SlideDuration,
		logger:        logger,
	}
}

// FetchStories returns the viewer's carousel lineup
func (s *service) FetchStories(ctx context.Context, viewerID int64) ([]playback.Story, error) {
	feed, err := s.repo.GetActiveFeed(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}
	if len(feed) == 0 {
		return []playback.Story{}, nil
	}

	ids := make([]int64, len(feed))
	for i, story := range feed {
		ids[i] = story.ID
	}
	slides, err := s.repo.GetSlides(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load slides: %w", err)
	}

	byStory := make(map[int64][]*Slide, len(feed))
	for _, slide := range slides {
		byStory[slide.StoryID] = append(byStory[slide.StoryID], slide)
	}

	candidates := make([]playback.Candidate, 0, len(feed))
	for _, story := range feed {
		story.Slides = byStory[story.ID]
		candidates = append(candidates, playback.Candidate{
			Story:    s.toPlayback(story, viewerID),
			PostedAt: story.CreatedAt,
		})
	}

	lineup := playback.Lineup(formatID(viewerID), candidates)
	if dropped := len(candidates) - len(lineup); dropped > 0 {
		s.logger.Warn().
			Int64("viewer_id", viewerID).
			Int("dropped", dropped).
			Msg("Dropped malformed stories from lineup")
	}
	return lineup, nil
}

// toPlayback converts a stored story into the engine's representation.
// Photo and text slides without a stored duration get the configured one;
// video slides without one stay unknown until the player learns it.
func (s *service) toPlayback(story *Story, viewerID int64) playback.Story {
	out := playback.Story{
		ID:      formatID(story.ID),
		OwnerID: formatID(story.UserID),
		IsOwn:   story.UserID == viewerID,
		Slides:  make([]playback.Slide, 0, len(story.Slides)),
	}
	for i, slide := range story.Slides {
		kind := playback.SlideKind(slide.Kind)
		var duration time.Duration
		switch {
		case slide.DurationMS.Valid && slide.DurationMS.Int64 > 0:
			duration = time.Duration(slide.DurationMS.Int64) * time.Millisecond
		case kind != playback.SlideVideo:
			duration = s.slideDuration
		}
		out.Slides = append(out.Slides, playback.Slide{
			ID:       formatID(slide.ID),
			Kind:     kind,
			Order:    i,
			Duration: duration,
			Payload: SlidePayload{
				MediaURL: slide.MediaURL.String,
				Body:     slide.Body.String,
				Style:    slide.Style.String,
			},
		})
	}
	return out
}

// ReportView records that viewerID has seen the story. Own stories and
// repeated views are no-ops.
func (s *service) ReportView(ctx context.Context, storyID int64, viewerID int64) error {
	story, err := s.repo.GetStory(ctx, storyID)
	if err != nil {
		return err
	}
	if story.IsExpired {
		return ErrStoryExpired
	}
	if story.UserID == viewerID {
		return nil
	}

	if s.views != nil {
		fresh, err := s.views.MarkViewed(ctx, storyID, viewerID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("story_id", storyID).Msg("View marker unavailable")
		} else if !fresh {
			return nil
		}
	}

	if err := s.repo.RecordView(ctx, storyID, viewerID); err != nil {
		if s.views != nil {
			if ferr := s.views.Forget(ctx, storyID, viewerID); ferr != nil {
				s.logger.Warn().Err(ferr).Int64("story_id", storyID).Msg("Failed to clear view marker")
			}
		}
		return fmt.Errorf("record view: %w", err)
	}
	return nil
}

// SubmitReaction sends an emoji reaction to the story's author
func (s *service) SubmitReaction(ctx context.Context, storyID int64, userID int64, emoji string) (*StoryReply, error) {
	return s.ReplyToStory(ctx, storyID, userID, &StoryReplyRequest{Reaction: emoji})
}

// SubmitReply sends a text reply to the story's author
func (s *service) SubmitReply(ctx context.Context, storyID int64, userID int64, text string) (*StoryReply, error) {
	return s.ReplyToStory(ctx, storyID, userID, &StoryReplyRequest{Message: text})
}

// ReplyToStory stores a reply or reaction to a story
func (s *service) ReplyToStory(ctx context.Context, storyID int64, userID int64, req *StoryReplyRequest) (*StoryReply, error) {
	req.Message = strings.TrimSpace(req.Message)
	req.Reaction = strings.TrimSpace(req.Reaction)
	if req.Message == "" && req.Reaction == "" {
		return nil, ErrInvalidReply
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	story, err := s.repo.GetStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.IsExpired {
		return nil, ErrStoryExpired
	}
	if story.UserID == userID {
		return nil, ErrOwnStory
	}

	reply := &StoryReply{
		StoryID: storyID,
		UserID:  userID,
	}
	if req.Message != "" {
		reply.Message = &req.Message
	}
	if req.Reaction != "" {
		reply.Reaction = &req.Reaction
	}

	if err := s.repo.CreateReply(ctx, reply); err != nil {
		return nil, fmt.Errorf("create reply: %w", err)
	}
	return reply, nil
}

// GetStoryViews retrieves views for a story (only the owner may look)
func (s *service) GetStoryViews(ctx context.Context, storyID int64, userID int64) ([]*StoryView, error) {
	if err := s.requireOwner(ctx, storyID, userID); err != nil {
		return nil, err
	}
	return s.repo.GetStoryViews(ctx, storyID)
}

// GetStoryReplies retrieves replies for a story (only the owner may look)
func (s *service) GetStoryReplies(ctx context.Context, storyID int64, userID int64) ([]*StoryReply, error) {
	if err := s.requireOwner(ctx, storyID, userID); err != nil {
		return nil, err
	}
	return s.repo.GetStoryReplies(ctx, storyID)
}

// DeleteStory removes a story and tells open players to drop it
func (s *service) DeleteStory(ctx context.Context, storyID int64, userID int64) error {
	if err := s.requireOwner(ctx, storyID, userID); err != nil {
		return err
	}
	if err := s.repo.DeleteStory(ctx, storyID); err != nil {
		return err
	}

	s.publishDeleted(ctx, storyID)
	s.logger.Info().Int64("story_id", storyID).Int64("user_id", userID).Msg("Story deleted")
	return nil
}

// CleanupExpiredStories removes expired stories and tells open players to drop them
func (s *service) CleanupExpiredStories(ctx context.Context) error {
	ids, err := s.repo.DeleteExpiredStories(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("delete expired stories: %w", err)
	}
	for _, id := range ids {
		s.publishDeleted(ctx, id)
	}
	s.logger.Info().Int("deleted", len(ids)).Msg("Expired stories removed")
	return nil
}

func (s *service) publishDeleted(ctx context.Context, storyID int64) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, storyID); err != nil {
		s.logger.Error().Err(err).Int64("story_id", storyID).Msg("Failed to publish story deletion")
	}
}

func (s *service) requireOwner(ctx context.Context, storyID int64, userID int64) error {
	story, err := s.repo.GetStory(ctx, storyID)
	if err != nil {
		return err
	}
	if story.UserID != userID {
		return ErrUnauthorized
	}
	return nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseID parses an engine story ID back into a database ID
func ParseID(id string) (int64, error) {
	return strconv.ParseInt(id, 10, 64)
}
