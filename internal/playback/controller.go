package playback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrOwnStory                = errors.New("cannot react or reply to your own story")
	ErrInteractionsUnavailable = errors.New("story interactions are not configured")
)

// EndReason says why a session ended
type EndReason string

const (
	ReasonEndOfContent EndReason = "end_of_content"
	ReasonClosed       EndReason = "closed"
	ReasonStoryDeleted EndReason = "story_deleted"
)

// Snapshot is a read-only copy of the session state handed to observers
type Snapshot struct {
	Closed        bool          `json:"closed"`
	StoryIndex    int           `json:"story_index"`
	SlideIndex    int           `json:"slide_index"`
	StoryCount    int           `json:"story_count"`
	SlideCount    int           `json:"slide_count"`
	StoryID       string        `json:"story_id,omitempty"`
	OwnerID       string        `json:"owner_id,omitempty"`
	IsOwn         bool          `json:"is_own"`
	SlideID       string        `json:"slide_id,omitempty"`
	SlideKind     SlideKind     `json:"slide_kind,omitempty"`
	Elapsed       time.Duration `json:"-"`
	Duration      time.Duration `json:"-"`
	DurationKnown bool          `json:"duration_known"`
	Progress      float64       `json:"progress"`
	Paused        bool          `json:"paused"`
}

// MarshalJSON writes Elapsed and Duration as whole milliseconds
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type snapshot Snapshot
	return json.Marshal(struct {
		snapshot
		ElapsedMS  int64 `json:"elapsed_ms"`
		DurationMS int64 `json:"duration_ms"`
	}{snapshot(s), s.Elapsed.Milliseconds(), s.Duration.Milliseconds()})
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type snapshot Snapshot
	aux := struct {
		*snapshot
		ElapsedMS  int64 `json:"elapsed_ms"`
		DurationMS int64 `json:"duration_ms"`
	}{snapshot: (*snapshot)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Elapsed = time.Duration(aux.ElapsedMS) * time.Millisecond
	s.Duration = time.Duration(aux.DurationMS) * time.Millisecond
	return nil
}

// Ended is emitted once when a session ends
type Ended struct {
	Reason         EndReason `json:"reason"`
	LastStoryIndex int       `json:"last_story_index"`
	LastStoryID    string    `json:"last_story_id"`
	LastOwnerID    string    `json:"last_owner_id"`
}

// Observer receives state changes. Callbacks run while the controller holds its
// lock: they must not block and must not call back into the controller.
type Observer interface {
	OnState(Snapshot)
	OnEnded(Ended)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	State func(Snapshot)
	End   func(Ended)
}

func (o ObserverFuncs) OnState(s Snapshot) {
	if o.State != nil {
		o.State(s)
	}
}

func (o ObserverFuncs) OnEnded(e Ended) {
	if o.End != nil {
		o.End(e)
	}
}

// Interactions submits user reactions and replies for a story
type Interactions interface {
	SubmitReaction(ctx context.Context, storyID, emoji string) error
	SubmitReply(ctx context.Context, storyID, text string) error
}

// Config wires a controller to its collaborators
type Config struct {
	Clock         Clock
	Reporter      ViewReporter
	Observer      Observer
	Interactions  Interactions
	Dispatcher    Dispatcher
	ReportTimeout time.Duration
	Logger        zerolog.Logger
}

// Controller owns one playback session at a time. Every operation is serialized
// on a single lock so transitions apply strictly in sequence.
type Controller struct {
	clock         Clock
	reporter      ViewReporter
	observer      Observer
	interactions  Interactions
	dispatch      Dispatcher
	reportTimeout time.Duration
	logger        zerolog.Logger

	mu   sync.Mutex
	sess *session

	// view reports of every session this controller has run
	reports sync.WaitGroup
}

type session struct {
	stories   []Story
	resolver  *Resolver
	durations [][]time.Duration
	recorder  *Recorder
	sub       Subscription

	// stories removed upstream that playback has not reached yet
	deleted map[string]struct{}

	pos     Position
	elapsed time.Duration
	paused  bool
	closed  bool
}

// NewController returns a controller with no open session
func NewController(cfg Config) *Controller {
	clock := cfg.Clock
	if clock == nil {
		clock = NewTickerClock(0)
	}
	observer := cfg.Observer
	if observer == nil {
		observer = ObserverFuncs{}
	}
	c := &Controller{
		clock:         clock,
		reporter:      cfg.Reporter,
		observer:      observer,
		interactions:  cfg.Interactions,
		reportTimeout: cfg.ReportTimeout,
		logger:        cfg.Logger,
	}
	dispatch := cfg.Dispatcher
	if dispatch == nil {
		dispatch = goDispatcher
	}
	c.dispatch = func(fn func()) {
		c.reports.Add(1)
		dispatch(func() {
			defer c.reports.Done()
			fn()
		})
	}
	return c
}

// Open starts a new session over stories at story index start. A session that
// is still live is closed first.
func (c *Controller) Open(stories []Story, start int) error {
	if len(stories) == 0 {
		return &InvalidSessionError{Reason: "no stories"}
	}
	if start < 0 || start >= len(stories) {
		return &InvalidSessionError{Reason: fmt.Sprintf("start index %d out of range [0, %d)", start, len(stories))}
	}
	for _, s := range stories {
		if err := s.Validate(); err != nil {
			return &InvalidSessionError{Reason: "invalid story", Err: err}
		}
	}

	sess := newSession(stories, start)
	sess.recorder = NewRecorder(c.reporter, c.dispatch, c.reportTimeout, c.logger)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != nil && !c.sess.closed {
		c.endLocked(ReasonClosed)
	}
	c.sess = sess

	c.logger.Debug().
		Int("stories", len(stories)).
		Int("start", start).
		Msg("playback session opened")

	sess.recorder.RecordViewIfNeeded(sess.stories[start])
	sess.sub = c.clock.Start(func(delta time.Duration) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.sess != sess {
			return
		}
		c.tickLocked(delta)
	})
	c.emitStateLocked()
	return nil
}

func newSession(stories []Story, start int) *session {
	owned := make([]Story, len(stories))
	durations := make([][]time.Duration, len(stories))
	for i, s := range stories {
		owned[i] = s
		owned[i].Slides = append([]Slide(nil), s.Slides...)
		durations[i] = make([]time.Duration, len(s.Slides))
		for j, slide := range s.Slides {
			if d, ok := slideDuration(slide); ok {
				durations[i][j] = d
			}
		}
	}
	return &session{
		stories:   owned,
		resolver:  NewResolver(owned),
		durations: durations,
		pos:       Position{Story: start},
	}
}

// Tick advances time on the current slide by delta
func (c *Controller) Tick(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickLocked(delta)
}

func (c *Controller) tickLocked(delta time.Duration) {
	s := c.sess
	if s == nil || s.closed || s.paused || delta <= 0 {
		return
	}
	duration := s.currentDuration()
	if duration <= 0 {
		// video still waiting for its duration
		return
	}
	s.elapsed += delta
	if s.elapsed >= duration {
		// Advance never fails
		_ = c.navigateLocked(Advance())
		return
	}
	c.emitStateLocked()
}

// Pause freezes elapsed time on the current slide
func (c *Controller) Pause() {
	c.setPaused(true)
}

// Resume continues from where Pause left off
func (c *Controller) Resume() {
	c.setPaused(false)
}

func (c *Controller) setPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sess
	if s == nil || s.closed || s.paused == paused {
		return
	}
	s.paused = paused
	c.emitStateLocked()
}

// GoNext moves forward one slide regardless of elapsed time
func (c *Controller) GoNext() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live() {
		_ = c.navigateLocked(Advance())
	}
}

// GoPrev moves back one slide regardless of elapsed time
func (c *Controller) GoPrev() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live() {
		_ = c.navigateLocked(Retreat())
	}
}

// JumpToStory moves to slide 0 of story index
func (c *Controller) JumpToStory(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live() {
		return ErrSessionClosed
	}
	return c.navigateLocked(JumpTo(index))
}

// VideoReady supplies the intrinsic duration of the current video slide
func (c *Controller) VideoReady(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live() || duration <= 0 {
		return
	}
	s := c.sess
	if s.currentSlide().Kind != SlideVideo {
		return
	}
	s.durations[s.pos.Story][s.pos.Slide] = duration
	if s.elapsed >= duration {
		_ = c.navigateLocked(Advance())
		return
	}
	c.emitStateLocked()
}

// VideoEnded advances past the current video slide immediately
func (c *Controller) VideoEnded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live() || c.sess.currentSlide().Kind != SlideVideo {
		return
	}
	_ = c.navigateLocked(Advance())
}

// StoryDeleted ends the session when storyID is the story on screen and reports
// whether it did. Any other story of the session is only marked: navigating
// into it later ends the session instead of showing it.
func (c *Controller) StoryDeleted(storyID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live() {
		return false
	}
	s := c.sess
	if s.stories[s.pos.Story].ID == storyID {
		c.endLocked(ReasonStoryDeleted)
		return true
	}
	for _, story := range s.stories {
		if story.ID == storyID {
			if s.deleted == nil {
				s.deleted = make(map[string]struct{})
			}
			s.deleted[storyID] = struct{}{}
			return false
		}
	}
	return false
}

// Close ends the session. Safe to call any number of times.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live() {
		c.endLocked(ReasonClosed)
	}
}

// SubmitReaction sends emoji for the story currently on screen
func (c *Controller) SubmitReaction(ctx context.Context, emoji string) error {
	storyID, err := c.interactionTarget()
	if err != nil {
		return err
	}
	return c.interactions.SubmitReaction(ctx, storyID, emoji)
}

// SubmitReply sends text for the story currently on screen
func (c *Controller) SubmitReply(ctx context.Context, text string) error {
	storyID, err := c.interactionTarget()
	if err != nil {
		return err
	}
	return c.interactions.SubmitReply(ctx, storyID, text)
}

func (c *Controller) interactionTarget() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live() {
		return "", ErrSessionClosed
	}
	if c.interactions == nil {
		return "", ErrInteractionsUnavailable
	}
	story := c.sess.stories[c.sess.pos.Story]
	if story.IsOwn {
		return "", ErrOwnStory
	}
	return story.ID, nil
}

// Snapshot returns the current session state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until every view report dispatched so far is done, including
// those of sessions replaced by Open. Call it after Close.
func (c *Controller) Wait() {
	c.reports.Wait()
}

func (c *Controller) live() bool {
	return c.sess != nil && !c.sess.closed
}

func (c *Controller) navigateLocked(intent Intent) error {
	s := c.sess
	next, err := s.resolver.Resolve(s.pos, intent)
	if err != nil {
		return err
	}
	if next.Kind == Close {
		c.endLocked(ReasonEndOfContent)
		return nil
	}
	if _, gone := s.deleted[s.stories[next.Position.Story].ID]; gone {
		c.endLocked(ReasonStoryDeleted)
		return nil
	}

	s.pos = next.Position
	s.elapsed = 0
	if next.Kind != SameStory {
		s.recorder.RecordViewIfNeeded(s.stories[s.pos.Story])
	}
	c.emitStateLocked()
	return nil
}

func (c *Controller) endLocked(reason EndReason) {
	s := c.sess
	s.closed = true
	if s.sub != nil {
		s.sub.Cancel()
	}

	story := s.stories[s.pos.Story]
	c.logger.Debug().
		Str("reason", string(reason)).
		Int("last_story_index", s.pos.Story).
		Msg("playback session ended")

	c.observer.OnEnded(Ended{
		Reason:         reason,
		LastStoryIndex: s.pos.Story,
		LastStoryID:    story.ID,
		LastOwnerID:    story.OwnerID,
	})
}

func (c *Controller) emitStateLocked() {
	c.observer.OnState(c.snapshotLocked())
}

func (c *Controller) snapshotLocked() Snapshot {
	s := c.sess
	if s == nil {
		return Snapshot{Closed: true}
	}
	story := s.stories[s.pos.Story]
	slide := s.currentSlide()
	duration := s.currentDuration()
	snap := Snapshot{
		Closed:        s.closed,
		StoryIndex:    s.pos.Story,
		SlideIndex:    s.pos.Slide,
		StoryCount:    len(s.stories),
		SlideCount:    len(story.Slides),
		StoryID:       story.ID,
		OwnerID:       story.OwnerID,
		IsOwn:         story.IsOwn,
		SlideID:       slide.ID,
		SlideKind:     slide.Kind,
		Elapsed:       s.elapsed,
		Duration:      duration,
		DurationKnown: duration > 0,
		Paused:        s.paused,
	}
	if snap.DurationKnown {
		snap.Progress = Progress(s.elapsed, duration)
	}
	return snap
}

func (s *session) currentSlide() Slide {
	return s.stories[s.pos.Story].Slides[s.pos.Slide]
}

func (s *session) currentDuration() time.Duration {
	return s.durations[s.pos.Story][s.pos.Slide]
}
