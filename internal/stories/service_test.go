package stories

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/imadgeboyega/kiekky-stories/internal/common/utils"
	"github.com/imadgeboyega/kiekky-stories/internal/playback"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu  sync.Mutex
	ids []int64
}

func (n *recordingNotifier) Publish(_ context.Context, storyID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, storyID)
	return nil
}

func (n *recordingNotifier) Subscribe(ctx context.Context, _ func(int64)) error {
	<-ctx.Done()
	return nil
}

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// seedFeed builds: viewer 1 with an own photo+video story, followed authors 2
// and 3, unfollowed author 4 and a followed author 5 whose story has no slides
func seedFeed(repo *memoryRepo) {
	now := time.Now()
	repo.addStory(1, 1, now.Add(-3*time.Hour), "photo", "video")
	repo.addStory(2, 2, now.Add(-1*time.Hour), "text")
	repo.addStory(3, 3, now.Add(-2*time.Hour), "photo")
	repo.addStory(30, 3, now.Add(-5*time.Hour), "photo", "photo")
	repo.addStory(4, 4, now.Add(-10*time.Minute), "photo")
	repo.addStory(5, 5, now.Add(-20*time.Minute))
	repo.follow(1, 2)
	repo.follow(1, 3)
	repo.follow(1, 5)
}

func newTestService(repo Repository, views ViewMarker, notifier DeletionNotifier) Service {
	return NewService(repo, views, notifier, ServiceConfig{SlideDuration: 7 * time.Second}, zerolog.Nop())
}

func TestFetchStories_Lineup(t *testing.T) {
	repo := newMemoryRepo()
	seedFeed(repo)
	svc := newTestService(repo, nil, nil)

	lineup, err := svc.FetchStories(context.Background(), 1)
	require.NoError(t, err)

	ids := make([]string, len(lineup))
	for i, s := range lineup {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids, "own first, then newest author first")

	own := lineup[0]
	assert.True(t, own.IsOwn)
	require.Len(t, own.Slides, 2)
	assert.Equal(t, playback.SlidePhoto, own.Slides[0].Kind)
	assert.Equal(t, 7*time.Second, own.Slides[0].Duration)
	assert.Equal(t, playback.SlideVideo, own.Slides[1].Kind)
	assert.Zero(t, own.Slides[1].Duration, "video duration is learned by the player")
	assert.Equal(t, SlidePayload{MediaURL: "https://cdn.example/photo"}, own.Slides[0].Payload)

	assert.False(t, lineup[1].IsOwn)
	assert.Equal(t, "2", lineup[1].OwnerID)
}

func TestFetchStories_StoredDurationWins(t *testing.T) {
	repo := newMemoryRepo()
	repo.addStory(1, 2, time.Now(), "video")
	repo.slides[1][0].DurationMS.Int64 = 12500
	repo.slides[1][0].DurationMS.Valid = true
	repo.follow(1, 2)

	lineup, err := newTestService(repo, nil, nil).FetchStories(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, lineup, 1)
	assert.Equal(t, 12500*time.Millisecond, lineup[0].Slides[0].Duration)
}

func TestFetchStories_Empty(t *testing.T) {
	lineup, err := newTestService(newMemoryRepo(), nil, nil).FetchStories(context.Background(), 9)
	require.NoError(t, err)
	assert.NotNil(t, lineup)
	assert.Empty(t, lineup)
}

func TestReportView(t *testing.T) {
	ctx := context.Background()
	_, client := setupMiniRedis(t)

	repo := newMemoryRepo()
	seedFeed(repo)
	svc := newTestService(repo, NewRedisViewMarker(client, time.Hour), nil)

	t.Run("own story is a no-op", func(t *testing.T) {
		require.NoError(t, svc.ReportView(ctx, 1, 1))
		assert.Equal(t, 0, repo.viewCount())
	})

	t.Run("repeat report skips the database", func(t *testing.T) {
		require.NoError(t, svc.ReportView(ctx, 2, 1))
		assert.Equal(t, 1, repo.viewCount())

		repo.failView = errDown
		defer func() { repo.failView = nil }()
		assert.NoError(t, svc.ReportView(ctx, 2, 1))
	})

	t.Run("failed insert clears the marker", func(t *testing.T) {
		repo.failView = errDown
		assert.ErrorIs(t, svc.ReportView(ctx, 3, 1), errDown)

		repo.failView = nil
		require.NoError(t, svc.ReportView(ctx, 3, 1))
		assert.Equal(t, 2, repo.viewCount())
	})

	t.Run("missing story", func(t *testing.T) {
		assert.ErrorIs(t, svc.ReportView(ctx, 999, 1), ErrStoryNotFound)
	})
}

func TestReportView_Expired(t *testing.T) {
	repo := newMemoryRepo()
	repo.addStory(7, 2, time.Now().Add(-25*time.Hour), "photo")

	err := newTestService(repo, nil, nil).ReportView(context.Background(), 7, 1)
	assert.ErrorIs(t, err, ErrStoryExpired)
}

func TestReplies(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	seedFeed(repo)
	svc := newTestService(repo, nil, nil)

	reply, err := svc.SubmitReaction(ctx, 2, 1, "🔥")
	require.NoError(t, err)
	require.NotNil(t, reply.Reaction)
	assert.Equal(t, "🔥", *reply.Reaction)
	assert.Nil(t, reply.Message)

	reply, err = svc.SubmitReply(ctx, 2, 1, "  nice  ")
	require.NoError(t, err)
	assert.Equal(t, "nice", *reply.Message)

	_, err = svc.SubmitReply(ctx, 1, 1, "hi me")
	assert.ErrorIs(t, err, ErrOwnStory)

	_, err = svc.SubmitReply(ctx, 2, 1, "   ")
	assert.ErrorIs(t, err, ErrInvalidReply)

	_, err = svc.SubmitReply(ctx, 2, 1, strings.Repeat("a", 501))
	var verr *utils.ValidationError
	assert.ErrorAs(t, err, &verr)

	// Only the author sees replies
	_, err = svc.GetStoryReplies(ctx, 2, 1)
	assert.ErrorIs(t, err, ErrUnauthorized)
	replies, err := svc.GetStoryReplies(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, replies, 2)
}

func TestGetStoryViews_OwnerOnly(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	seedFeed(repo)
	svc := newTestService(repo, nil, nil)

	require.NoError(t, svc.ReportView(ctx, 2, 1))

	_, err := svc.GetStoryViews(ctx, 2, 3)
	assert.ErrorIs(t, err, ErrUnauthorized)

	views, err := svc.GetStoryViews(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(1), views[0].ViewerID)
}

func TestDeleteStory(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepo()
	seedFeed(repo)
	notifier := &recordingNotifier{}
	svc := newTestService(repo, nil, notifier)

	assert.ErrorIs(t, svc.DeleteStory(ctx, 2, 1), ErrUnauthorized)
	assert.Empty(t, notifier.ids)

	require.NoError(t, svc.DeleteStory(ctx, 2, 2))
	assert.Equal(t, []int64{2}, notifier.ids)

	assert.ErrorIs(t, svc.DeleteStory(ctx, 2, 2), ErrStoryNotFound)
}

func TestCleanupExpiredStories(t *testing.T) {
	repo := newMemoryRepo()
	repo.addStory(1, 1, time.Now().Add(-30*time.Hour), "photo")
	repo.addStory(2, 1, time.Now(), "photo")
	notifier := &recordingNotifier{}

	require.NoError(t, newTestService(repo, nil, notifier).CleanupExpiredStories(context.Background()))

	_, err := repo.GetStory(context.Background(), 1)
	assert.ErrorIs(t, err, ErrStoryNotFound)
	_, err = repo.GetStory(context.Background(), 2)
	assert.NoError(t, err)
	assert.Equal(t, []int64{1}, notifier.ids)
}

func TestCleanupService_RunsImmediately(t *testing.T) {
	repo := newMemoryRepo()
	repo.addStory(1, 1, time.Now().Add(-30*time.Hour), "photo")
	svc := newTestService(repo, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, NewCleanupService(svc, time.Hour, zerolog.Nop()).Start(ctx))

	assert.Eventually(t, func() bool {
		_, err := repo.GetStory(context.Background(), 1)
		return err == ErrStoryNotFound
	}, 2*time.Second, 10*time.Millisecond)
}
