package stories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"
)

// memoryRepo is an in-memory Repository for service and handler tests
type memoryRepo struct {
	mu       sync.Mutex
	stories  map[int64]*Story
	slides   map[int64][]*Slide
	follows  map[int64][]int64
	views    map[[2]int64]bool
	replies  []*StoryReply
	nextID   int64
	failView error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		stories: make(map[int64]*Story),
		slides:  make(map[int64][]*Slide),
		follows: make(map[int64][]int64),
		views:   make(map[[2]int64]bool),
		nextID:  100,
	}
}

func (r *memoryRepo) addStory(id, userID int64, created time.Time, kinds ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stories[id] = &Story{
		ID:        id,
		UserID:    userID,
		CreatedAt: created,
		ExpiresAt: created.Add(24 * time.Hour),
	}
	for i, kind := range kinds {
		r.slides[id] = append(r.slides[id], &Slide{
			ID:       id*10 + int64(i),
			StoryID:  id,
			Kind:     kind,
			Position: i,
			MediaURL: sql.NullString{String: "https://cdn.example/" + kind, Valid: kind != "text"},
		})
	}
}

func (r *memoryRepo) follow(follower, following int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.follows[follower] = append(r.follows[follower], following)
}

func (r *memoryRepo) viewCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *memoryRepo) GetActiveFeed(_ context.Context, viewerID int64) ([]*Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	allowed := map[int64]bool{viewerID: true}
	for _, id := range r.follows[viewerID] {
		allowed[id] = true
	}

	latest := make(map[int64]*Story)
	now := time.Now()
	for _, s := range r.stories {
		if !allowed[s.UserID] || !s.ExpiresAt.After(now) {
			continue
		}
		if cur, ok := latest[s.UserID]; !ok || s.CreatedAt.After(cur.CreatedAt) {
			latest[s.UserID] = s
		}
	}

	out := make([]*Story, 0, len(latest))
	for _, s := range latest {
		cp := *s
		cp.HasViewed = r.views[[2]int64{s.ID, viewerID}]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *memoryRepo) GetSlides(_ context.Context, storyIDs []int64) ([]*Slide, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Slide
	for _, id := range storyIDs {
		out = append(out, r.slides[id]...)
	}
	return out, nil
}

func (r *memoryRepo) GetStory(_ context.Context, storyID int64) (*Story, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stories[storyID]
	if !ok {
		return nil, ErrStoryNotFound
	}
	cp := *s
	cp.IsExpired = time.Now().After(s.ExpiresAt)
	return &cp, nil
}

func (r *memoryRepo) DeleteStory(_ context.Context, storyID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stories[storyID]; !ok {
		return ErrStoryNotFound
	}
	delete(r.stories, storyID)
	delete(r.slides, storyID)
	return nil
}

func (r *memoryRepo) RecordView(_ context.Context, storyID int64, viewerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failView != nil {
		return r.failView
	}
	r.views[[2]int64{storyID, viewerID}] = true
	return nil
}

func (r *memoryRepo) GetStoryViews(_ context.Context, storyID int64) ([]*StoryView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*StoryView
	for key := range r.views {
		if key[0] == storyID {
			out = append(out, &StoryView{StoryID: storyID, ViewerID: key[1]})
		}
	}
	return out, nil
}

func (r *memoryRepo) CreateReply(_ context.Context, reply *StoryReply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	reply.ID = r.nextID
	reply.CreatedAt = time.Now()
	r.replies = append(r.replies, reply)
	return nil
}

func (r *memoryRepo) GetStoryReplies(_ context.Context, storyID int64) ([]*StoryReply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*StoryReply
	for _, reply := range r.replies {
		if reply.StoryID == storyID {
			out = append(out, reply)
		}
	}
	return out, nil
}

func (r *memoryRepo) DeleteExpiredStories(_ context.Context, before time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, s := range r.stories {
		if s.ExpiresAt.Before(before) {
			delete(r.stories, id)
			delete(r.slides, id)
			ids = append(ids, id)
		}
	}
	return ids, nil
}

var errDown = errors.New("database down")
