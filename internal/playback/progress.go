package playback

import "time"

// Progress converts time spent on a slide into a percentage in [0, 100].
// A non-positive duration counts as already complete.
func Progress(elapsed, duration time.Duration) float64 {
	if duration <= 0 {
		return 100
	}
	if elapsed <= 0 {
		return 0
	}
	pct := float64(elapsed) / float64(duration) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
