package playback

import (
	"errors"
	"fmt"
)

// ErrSessionClosed is returned by operations that need a live session
var ErrSessionClosed = errors.New("playback session is closed")

// InvalidSessionError reports why Open refused to create a session
type InvalidSessionError struct {
	Reason string
	Err    error
}

func (e *InvalidSessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid playback session: %s: %v", e.Reason, e.Err)
	}
	return "invalid playback session: " + e.Reason
}

func (e *InvalidSessionError) Unwrap() error {
	return e.Err
}

// NavigationContractError means a caller asked for a story index that does not
// exist. It indicates a bug in the caller, not a runtime condition.
type NavigationContractError struct {
	Index int
	Count int
}

func (e *NavigationContractError) Error() string {
	return fmt.Sprintf("story index %d out of range [0, %d)", e.Index, e.Count)
}
