package player

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/imadgeboyega/kiekky-stories/internal/auth"
	"github.com/imadgeboyega/kiekky-stories/internal/common/utils"
	"github.com/imadgeboyega/kiekky-stories/internal/playback"
	"github.com/imadgeboyega/kiekky-stories/internal/stories"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "player-secret"

type fakeStories struct {
	mu      sync.Mutex
	lineup  []playback.Story
	viewed  []int64
	replies []string

	// when set, ReportView waits for it to close
	block chan struct{}
}

func (f *fakeStories) FetchStories(_ context.Context, _ int64) ([]playback.Story, error) {
	return f.lineup, nil
}

func (f *fakeStories) ReportView(_ context.Context, storyID int64, _ int64) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewed = append(f.viewed, storyID)
	return nil
}

func (f *fakeStories) SubmitReaction(_ context.Context, storyID int64, userID int64, emoji string) (*stories.StoryReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, "reaction:"+emoji)
	return &stories.StoryReply{StoryID: storyID, UserID: userID, Reaction: &emoji}, nil
}

func (f *fakeStories) SubmitReply(_ context.Context, storyID int64, userID int64, text string) (*stories.StoryReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, "reply:"+text)
	return &stories.StoryReply{StoryID: storyID, UserID: userID, Message: &text}, nil
}

func (f *fakeStories) viewedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.viewed...)
}

func photo(id, owner string, isOwn bool, n int) playback.Story {
	s := playback.Story{ID: id, OwnerID: owner, IsOwn: isOwn}
	for i := 0; i < n; i++ {
		s.Slides = append(s.Slides, playback.Slide{
			ID:       id + "-" + string(rune('a'+i)),
			Kind:     playback.SlidePhoto,
			Order:    i,
			Duration: 5 * time.Second,
		})
	}
	return s
}

type testEnv struct {
	server *httptest.Server
	hub    *Hub
	svc    *fakeStories
	clocks chan *playback.ManualClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		svc: &fakeStories{lineup: []playback.Story{
			photo("10", "1", true, 1),
			photo("20", "2", false, 2),
			photo("30", "3", false, 1),
		}},
		clocks: make(chan *playback.ManualClock, 4),
	}
	env.hub = NewHub(env.svc, stories.NewMemoryPositionStore(), Config{
		NewClock: func() playback.Clock {
			c := playback.NewManualClock()
			env.clocks <- c
			return c
		},
	}, zerolog.Nop())

	mw := auth.NewMiddleware(auth.NewJWTValidator(testSecret), zerolog.Nop())
	handler := NewHandler(env.hub, env.svc, []string{"*"}, zerolog.Nop())
	env.server = httptest.NewServer(Routes(handler, mw))
	t.Cleanup(env.server.Close)
	return env
}

func token(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := utils.GenerateJWT(&utils.JWTClaims{
		UserID:    userID,
		Type:      "access",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}, testSecret)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) dial(t *testing.T, query string) (*websocket.Conn, *playback.ManualClock) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + token(t, 1) + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	select {
	case clock := <-e.clocks:
		return conn, clock
	case <-time.After(time.Second):
		t.Fatal("session clock not created")
		return nil, nil
	}
}

// readUntil reads frames until match returns true
func readUntil(t *testing.T, conn *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var frame Frame
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &frame))
		if match(frame) {
			return frame
		}
	}
}

func stateAt(story, slide int) func(Frame) bool {
	return func(f Frame) bool {
		return f.Type == FrameState && f.State.StoryIndex == story && f.State.SlideIndex == slide
	}
}

func send(t *testing.T, conn *websocket.Conn, cmd Command) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(cmd))
}

func TestSession_PlaysThroughLineup(t *testing.T) {
	env := newTestEnv(t)
	opened := testutil.ToFloat64(sessionsOpened)

	conn, clock := env.dial(t, "")
	first := readUntil(t, conn, stateAt(0, 0))
	assert.True(t, first.State.IsOwn)
	assert.NotEmpty(t, first.SessionID)
	assert.Equal(t, opened+1, testutil.ToFloat64(sessionsOpened))

	clock.Advance(5 * time.Second)
	readUntil(t, conn, stateAt(1, 0))

	send(t, conn, Command{Type: CmdNext})
	readUntil(t, conn, stateAt(1, 1))

	send(t, conn, Command{Type: CmdJump, Index: 2})
	readUntil(t, conn, stateAt(2, 0))

	clock.Advance(5 * time.Second)
	ended := readUntil(t, conn, func(f Frame) bool { return f.Type == FrameEnded })
	assert.Equal(t, playback.ReasonEndOfContent, ended.Ended.Reason)
	assert.Equal(t, "30", ended.Ended.LastStoryID)

	// The own story is never reported
	assert.Eventually(t, func() bool { return len(env.svc.viewedIDs()) == 2 }, time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []int64{20, 30}, env.svc.viewedIDs())

	// Position is remembered for the next session
	assert.Eventually(t, func() bool {
		owner, _ := env.hub.positions.LastOwner(context.Background(), 1)
		return owner == 3
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool { return env.hub.ActiveSessions() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSession_StartsAtRequestedOwner(t *testing.T) {
	env := newTestEnv(t)

	conn, _ := env.dial(t, "&owner=3")
	frame := readUntil(t, conn, func(f Frame) bool { return f.Type == FrameState })
	assert.Equal(t, 2, frame.State.StoryIndex)
	assert.Equal(t, "30", frame.State.StoryID)
}

func TestSession_Interactions(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := env.dial(t, "")
	readUntil(t, conn, stateAt(0, 0))

	send(t, conn, Command{Type: CmdReact, Emoji: "🔥"})
	errFrame := readUntil(t, conn, func(f Frame) bool { return f.Type == FrameError })
	assert.Equal(t, CmdReact, errFrame.Command)
	assert.Contains(t, errFrame.Error, "own story")

	send(t, conn, Command{Type: CmdNext})
	readUntil(t, conn, stateAt(1, 0))

	send(t, conn, Command{Type: CmdReply, Text: "love it"})
	ack := readUntil(t, conn, func(f Frame) bool { return f.Type == FrameAck })
	assert.Equal(t, CmdReply, ack.Command)

	env.svc.mu.Lock()
	assert.Equal(t, []string{"reply:love it"}, env.svc.replies)
	env.svc.mu.Unlock()
}

func TestSession_RejectsBadCommands(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := env.dial(t, "")
	readUntil(t, conn, stateAt(0, 0))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	frame := readUntil(t, conn, func(f Frame) bool { return f.Type == FrameError })
	assert.Equal(t, "invalid command payload", frame.Error)

	send(t, conn, Command{Type: "rewind"})
	frame = readUntil(t, conn, func(f Frame) bool { return f.Type == FrameError })
	assert.Equal(t, "rewind", frame.Command)

	send(t, conn, Command{Type: CmdJump, Index: 9})
	frame = readUntil(t, conn, func(f Frame) bool { return f.Type == FrameError })
	assert.Equal(t, CmdJump, frame.Command)

	send(t, conn, Command{Type: CmdVideoReady})
	frame = readUntil(t, conn, func(f Frame) bool { return f.Type == FrameError })
	assert.Equal(t, CmdVideoReady, frame.Command)
}

func TestHub_StoryDeletedEndsSession(t *testing.T) {
	env := newTestEnv(t)
	conn, _ := env.dial(t, "")
	readUntil(t, conn, stateAt(0, 0))

	assert.Equal(t, 0, env.hub.StoryDeleted(99))
	// not on screen yet: the session goes on until playback reaches it
	assert.Equal(t, 0, env.hub.StoryDeleted(30))
	assert.Equal(t, 1, env.hub.ActiveSessions())
	assert.Equal(t, 1, env.hub.StoryDeleted(10))

	frame := readUntil(t, conn, func(f Frame) bool { return f.Type == FrameEnded })
	assert.Equal(t, playback.ReasonStoryDeleted, frame.Ended.Reason)

	// Server hangs up after the final frame
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHub_RunDeliversDeletions(t *testing.T) {
	env := newTestEnv(t)
	notifier := stories.NewLocalDeletionNotifier()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.hub.Run(ctx, notifier)

	conn, _ := env.dial(t, "")
	readUntil(t, conn, stateAt(0, 0))

	// Retry until the subscription is in place
	require.Eventually(t, func() bool {
		_ = notifier.Publish(context.Background(), 10)
		return env.hub.ActiveSessions() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHub_ShutdownWaitsForViewReports(t *testing.T) {
	env := newTestEnv(t)
	release := make(chan struct{})
	env.svc.block = release

	conn, _ := env.dial(t, "")
	readUntil(t, conn, stateAt(0, 0))
	send(t, conn, Command{Type: CmdNext})
	readUntil(t, conn, stateAt(1, 0))

	done := make(chan struct{})
	go func() {
		env.hub.Shutdown()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Shutdown returned before the view report finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return")
	}
	assert.Equal(t, []int64{20}, env.svc.viewedIDs())
}

func TestSession_ClientClose(t *testing.T) {
	env := newTestEnv(t)
	closed := testutil.ToFloat64(sessionsEnded.WithLabelValues(string(playback.ReasonClosed)))

	conn, _ := env.dial(t, "")
	readUntil(t, conn, stateAt(0, 0))

	send(t, conn, Command{Type: CmdClose})
	frame := readUntil(t, conn, func(f Frame) bool { return f.Type == FrameEnded })
	assert.Equal(t, playback.ReasonClosed, frame.Ended.Reason)

	assert.Eventually(t, func() bool { return env.hub.ActiveSessions() == 0 }, time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.ToFloat64(sessionsEnded.WithLabelValues(string(playback.ReasonClosed))), closed+1)
}

func TestHandler_Lineup(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.hub.positions.Remember(context.Background(), 1, 2))

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/lineup", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token(t, 1))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body LineupResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Stories, 3)
	assert.Equal(t, 1, body.StartIndex, "resumes at the last watched author")
}

func TestHandler_EmptyLineup(t *testing.T) {
	env := newTestEnv(t)
	env.svc.lineup = nil

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?token=" + token(t, 1)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://kiekky.com"})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(req), "native clients send no origin")

	req.Header.Set("Origin", "https://kiekky.com")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}
