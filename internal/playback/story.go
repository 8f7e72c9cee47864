// internal/playback/story.go
// Story and slide data consumed by the playback engine

package playback

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultSlideDuration is how long photo and text slides stay on screen
const DefaultSlideDuration = 5 * time.Second

// SlideKind tags the content of a slide
type SlideKind string

const (
	SlidePhoto SlideKind = "photo"
	SlideVideo SlideKind = "video"
	SlideText  SlideKind = "text"
)

// Valid reports whether k is a known slide kind
func (k SlideKind) Valid() bool {
	switch k {
	case SlidePhoto, SlideVideo, SlideText:
		return true
	}
	return false
}

// Slide is one unit of story content. The engine only reads Kind and Duration;
// Payload is carried through for the presentation layer.
type Slide struct {
	ID       string        `json:"id"`
	Kind     SlideKind     `json:"kind"`
	Order    int           `json:"order"`
	Duration time.Duration `json:"-"` // zero on a video slide means "not known yet"
	Payload  any           `json:"payload,omitempty"`
}

// MarshalJSON writes Duration as whole milliseconds, the unit clients send back
func (s Slide) MarshalJSON() ([]byte, error) {
	type slide Slide
	return json.Marshal(struct {
		slide
		DurationMS int64 `json:"duration_ms"`
	}{slide(s), s.Duration.Milliseconds()})
}

func (s *Slide) UnmarshalJSON(data []byte) error {
	type slide Slide
	aux := struct {
		*slide
		DurationMS int64 `json:"duration_ms"`
	}{slide: (*slide)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Duration = time.Duration(aux.DurationMS) * time.Millisecond
	return nil
}

// Story is an ordered, non-empty sequence of slides from one author
type Story struct {
	ID      string  `json:"id"`
	OwnerID string  `json:"owner_id"`
	IsOwn   bool    `json:"is_own"`
	Slides  []Slide `json:"slides"`
}

// Validate checks the invariants the engine relies on: at least one slide,
// known kinds, and orders 0..n-1 in sequence.
func (s Story) Validate() error {
	if len(s.Slides) == 0 {
		return fmt.Errorf("story %s has no slides", s.ID)
	}
	for i, slide := range s.Slides {
		if !slide.Kind.Valid() {
			return fmt.Errorf("story %s slide %d: unknown kind %q", s.ID, i, slide.Kind)
		}
		if slide.Order != i {
			return fmt.Errorf("story %s slide %d: order %d breaks sequence", s.ID, i, slide.Order)
		}
		if slide.Duration < 0 {
			return fmt.Errorf("story %s slide %d: negative duration", s.ID, i)
		}
	}
	return nil
}

// slideDuration returns the duration the engine should time a slide against.
// Photo and text slides without an explicit duration get the default. A video
// slide with no duration reports false until the media signals it.
func slideDuration(slide Slide) (time.Duration, bool) {
	if slide.Duration > 0 {
		return slide.Duration, true
	}
	if slide.Kind == SlideVideo {
		return 0, false
	}
	return DefaultSlideDuration, true
}
