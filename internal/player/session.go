// internal/player/session.go

package player

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/imadgeboyega/kiekky-stories/internal/common/utils"
	"github.com/imadgeboyega/kiekky-stories/internal/playback"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Commands are small JSON objects
	maxMessageSize = 4 * 1024

	// Frames buffered per session before state frames are dropped
	sendBuffer = 64

	// Time allowed for a reaction or reply to be stored
	interactionTimeout = 5 * time.Second
)

// Session is one websocket connection driving one playback controller
type Session struct {
	id       string
	viewerID int64
	hub      *Hub
	conn     *websocket.Conn
	send     chan Frame

	// closed once the controller has ended, so the writer can flush and hang up
	ended     chan struct{}
	endOnce   sync.Once
	closeOnce sync.Once

	controller *playback.Controller
	logger     zerolog.Logger
}

// OnState queues a state frame. Runs under the controller lock.
func (s *Session) OnState(snap playback.Snapshot) {
	s.enqueue(Frame{Type: FrameState, State: &snap})
}

// OnEnded queues the final frame and tells the writer to finish.
// Runs under the controller lock.
func (s *Session) OnEnded(e playback.Ended) {
	s.enqueue(Frame{Type: FrameEnded, Ended: &e})
	s.finish()
	s.hub.sessionEnded(s, e)
}

func (s *Session) enqueue(frame Frame) {
	frame.SessionID = s.id
	frame.Timestamp = time.Now()
	select {
	case s.send <- frame:
	default:
		s.logger.Debug().Str("frame", frame.Type).Msg("Send buffer full, dropping frame")
	}
}

func (s *Session) finish() {
	s.endOnce.Do(func() { close(s.ended) })
}

// fail reports an error that ends the session before playback starts
func (s *Session) fail(msg string) {
	s.enqueue(Frame{Type: FrameError, Error: msg})
	s.finish()
}

// close stops the controller and releases the send queue. The controller is
// closed first so no observer callback can race the channel close.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.controller.Close()
		close(s.send)
	})
}

func (s *Session) readPump() {
	defer func() {
		s.hub.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		// Commands apply in arrival order
		s.processMessage(message)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if !ok {
				s.writeClose()
				return
			}
			if err := s.write(frame); err != nil {
				return
			}
			if frame.Type == FrameEnded {
				s.writeClose()
				return
			}

		case <-s.ended:
			s.flush()
			s.writeClose()
			return

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes whatever is still queued without waiting for more
func (s *Session) flush() {
	for {
		select {
		case frame, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(frame Frame) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(frame)
}

func (s *Session) writeClose() {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Session) processMessage(data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.enqueue(Frame{Type: FrameError, Error: "invalid command payload"})
		return
	}
	if err := utils.ValidateStruct(&cmd); err != nil {
		s.enqueue(Frame{Type: FrameError, Command: cmd.Type, Error: err.Error()})
		return
	}
	commandsTotal.WithLabelValues(cmd.Type).Inc()

	if err := s.handleCommand(cmd); err != nil {
		s.logger.Debug().Err(err).Str("command", cmd.Type).Msg("Command rejected")
		s.enqueue(Frame{Type: FrameError, Command: cmd.Type, Error: err.Error()})
	}
}

func (s *Session) handleCommand(cmd Command) error {
	c := s.controller

	switch cmd.Type {
	case CmdPause:
		c.Pause()
	case CmdResume:
		c.Resume()
	case CmdNext:
		c.GoNext()
	case CmdPrev:
		c.GoPrev()
	case CmdJump:
		return c.JumpToStory(cmd.Index)
	case CmdClose:
		c.Close()
	case CmdVideoReady:
		if cmd.DurationMS <= 0 {
			return errors.New("duration_ms must be positive")
		}
		c.VideoReady(time.Duration(cmd.DurationMS) * time.Millisecond)
	case CmdVideoEnded:
		c.VideoEnded()
	case CmdReact, CmdReply:
		ctx, cancel := context.WithTimeout(context.Background(), interactionTimeout)
		defer cancel()

		var err error
		if cmd.Type == CmdReact {
			err = c.SubmitReaction(ctx, cmd.Emoji)
		} else {
			err = c.SubmitReply(ctx, cmd.Text)
		}
		if err != nil {
			return err
		}
		s.enqueue(Frame{Type: FrameAck, Command: cmd.Type})
	}
	return nil
}
