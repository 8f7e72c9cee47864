// internal/player/hub.go

package player

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/imadgeboyega/kiekky-stories/internal/playback"
	"github.com/imadgeboyega/kiekky-stories/internal/stories"
	"github.com/rs/zerolog"
)

// Config tunes the sessions a hub creates
type Config struct {
	TickInterval  time.Duration
	ReportTimeout time.Duration

	// NewClock overrides the per-session clock, mostly for tests
	NewClock func() playback.Clock
}

// Hub tracks live playback sessions and fans story deletions out to them
type Hub struct {
	stories   StoryService
	positions stories.PositionStore
	cfg       Config
	logger    zerolog.Logger

	sessions    map[string]*Session
	sessionsMux sync.RWMutex

	// pending position writes
	wg sync.WaitGroup
}

func NewHub(svc StoryService, positions stories.PositionStore, cfg Config, logger zerolog.Logger) *Hub {
	if cfg.NewClock == nil {
		interval := cfg.TickInterval
		cfg.NewClock = func() playback.Clock { return playback.NewTickerClock(interval) }
	}
	if positions == nil {
		positions = stories.NewMemoryPositionStore()
	}
	return &Hub{
		stories:   svc,
		positions: positions,
		cfg:       cfg,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// Run delivers story deletions to live sessions until ctx is done
func (h *Hub) Run(ctx context.Context, notifier stories.DeletionNotifier) error {
	return notifier.Subscribe(ctx, func(storyID int64) {
		if n := h.StoryDeleted(storyID); n > 0 {
			h.logger.Info().Int64("story_id", storyID).Int("sessions", n).Msg("Ended sessions showing a deleted story")
		}
	})
}

// Open starts a session for viewerID on conn, playing lineup from start
func (h *Hub) Open(conn *websocket.Conn, viewerID int64, lineup []playback.Story, start int) *Session {
	id := uuid.NewString()
	s := &Session{
		id:       id,
		viewerID: viewerID,
		hub:      h,
		conn:     conn,
		send:     make(chan Frame, sendBuffer),
		ended:    make(chan struct{}),
		logger: h.logger.With().
			Str("session_id", id).
			Int64("viewer_id", viewerID).
			Logger(),
	}
	s.controller = playback.NewController(playback.Config{
		Clock:         h.cfg.NewClock(),
		Reporter:      viewReporter{stories: h.stories, viewerID: viewerID},
		Observer:      s,
		Interactions:  interactions{stories: h.stories, viewerID: viewerID},
		ReportTimeout: h.cfg.ReportTimeout,
		Logger:        s.logger,
	})

	h.register(s)
	go s.writePump()

	if err := s.controller.Open(lineup, start); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to open playback session")
		s.fail("could not start playback")
	}

	go s.readPump()
	return s
}

// StartIndex picks where a viewer's session begins: the requested owner if
// given, otherwise the author they were last watching
func (h *Hub) StartIndex(ctx context.Context, viewerID int64, lineup []playback.Story, owner string) int {
	if owner != "" {
		return playback.StartIndex(lineup, owner)
	}
	last, err := h.positions.LastOwner(ctx, viewerID)
	if err != nil {
		h.logger.Warn().Err(err).Int64("viewer_id", viewerID).Msg("Failed to load last position")
		return 0
	}
	if last == 0 {
		return 0
	}
	return playback.StartIndex(lineup, strconv.FormatInt(last, 10))
}

// StoryDeleted ends every session that contains the story and returns how many
func (h *Hub) StoryDeleted(storyID int64) int {
	id := strconv.FormatInt(storyID, 10)

	h.sessionsMux.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessionsMux.RUnlock()

	ended := 0
	for _, s := range sessions {
		if s.controller.StoryDeleted(id) {
			ended++
		}
	}
	return ended
}

// ActiveSessions returns the number of connected sessions
func (h *Hub) ActiveSessions() int {
	h.sessionsMux.RLock()
	defer h.sessionsMux.RUnlock()
	return len(h.sessions)
}

// Shutdown ends every session and waits for its pending view reports and
// position writes
func (h *Hub) Shutdown() {
	h.sessionsMux.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessionsMux.RUnlock()

	for _, s := range sessions {
		s.controller.Close()
	}
	for _, s := range sessions {
		s.controller.Wait()
	}
	h.wg.Wait()
}

func (h *Hub) register(s *Session) {
	h.sessionsMux.Lock()
	h.sessions[s.id] = s
	total := len(h.sessions)
	h.sessionsMux.Unlock()

	sessionsOpened.Inc()
	sessionsActive.Inc()
	s.logger.Info().Int("total", total).Msg("Playback session connected")
}

func (h *Hub) unregister(s *Session) {
	h.sessionsMux.Lock()
	_, exists := h.sessions[s.id]
	delete(h.sessions, s.id)
	total := len(h.sessions)
	h.sessionsMux.Unlock()

	if !exists {
		return
	}
	s.close()
	sessionsActive.Dec()
	s.logger.Info().Int("total", total).Msg("Playback session disconnected")
}

// sessionEnded runs under the session's controller lock
func (h *Hub) sessionEnded(s *Session, e playback.Ended) {
	sessionsEnded.WithLabelValues(string(e.Reason)).Inc()

	owner, err := strconv.ParseInt(e.LastOwnerID, 10, 64)
	if err != nil || owner == 0 {
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.positions.Remember(ctx, s.viewerID, owner); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to remember playback position")
		}
	}()
}
