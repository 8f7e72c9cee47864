// internal/player/protocol.go
// Websocket message shapes exchanged with the story viewer

package player

import (
	"time"

	"github.com/imadgeboyega/kiekky-stories/internal/playback"
)

// Command types sent by the client
const (
	CmdPause      = "pause"
	CmdResume     = "resume"
	CmdNext       = "next"
	CmdPrev       = "prev"
	CmdJump       = "jump"
	CmdClose      = "close"
	CmdVideoReady = "video_ready"
	CmdVideoEnded = "video_ended"
	CmdReact      = "react"
	CmdReply      = "reply"
)

// Frame types sent to the client
const (
	FrameState = "state"
	FrameEnded = "ended"
	FrameAck   = "ack"
	FrameError = "error"
)

// Command is one client instruction
type Command struct {
	Type       string `json:"type" validate:"required,oneof=pause resume next prev jump close video_ready video_ended react reply"`
	Index      int    `json:"index,omitempty" validate:"min=0"`
	DurationMS int64  `json:"duration_ms,omitempty" validate:"min=0"`
	Emoji      string `json:"emoji,omitempty" validate:"max=50"`
	Text       string `json:"text,omitempty" validate:"max=500"`
}

// Frame is one server message
type Frame struct {
	Type      string             `json:"type"`
	SessionID string             `json:"session_id"`
	State     *playback.Snapshot `json:"state,omitempty"`
	Ended     *playback.Ended    `json:"ended,omitempty"`
	Command   string             `json:"command,omitempty"`
	Error     string             `json:"error,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}
