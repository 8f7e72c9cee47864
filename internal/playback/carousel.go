package playback

import (
	"sort"
	"time"
)

// Candidate is a story offered to the carousel together with when it was posted
type Candidate struct {
	Story    Story
	PostedAt time.Time
}

// Lineup orders candidates for a playback session: the viewer's own story
// first, then the latest story of every other author, newest author first.
// Candidates that would fail Validate are dropped.
func Lineup(viewerID string, candidates []Candidate) []Story {
	var own *Candidate
	latest := make(map[string]Candidate)

	for i := range candidates {
		cand := candidates[i]
		if cand.Story.Validate() != nil {
			continue
		}
		if cand.Story.IsOwn || (viewerID != "" && cand.Story.OwnerID == viewerID) {
			cand.Story.IsOwn = true
			if own == nil || cand.PostedAt.After(own.PostedAt) {
				own = &cand
			}
			continue
		}
		if prev, ok := latest[cand.Story.OwnerID]; !ok || cand.PostedAt.After(prev.PostedAt) {
			latest[cand.Story.OwnerID] = cand
		}
	}

	others := make([]Candidate, 0, len(latest))
	for _, cand := range latest {
		others = append(others, cand)
	}
	sort.SliceStable(others, func(i, j int) bool {
		if others[i].PostedAt.Equal(others[j].PostedAt) {
			return others[i].Story.OwnerID < others[j].Story.OwnerID
		}
		return others[i].PostedAt.After(others[j].PostedAt)
	})

	lineup := make([]Story, 0, len(others)+1)
	if own != nil {
		lineup = append(lineup, own.Story)
	}
	for _, cand := range others {
		lineup = append(lineup, cand.Story)
	}
	return lineup
}

// StartIndex finds the lineup entry for ownerID, or 0 when the author is absent
func StartIndex(lineup []Story, ownerID string) int {
	if ownerID == "" {
		return 0
	}
	for i, s := range lineup {
		if s.OwnerID == ownerID {
			return i
		}
	}
	return 0
}
