package playback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ViewReporter tells the outside world a viewer has seen a story
type ViewReporter interface {
	ReportView(ctx context.Context, storyID string) error
}

// ViewReporterFunc adapts a function to ViewReporter
type ViewReporterFunc func(ctx context.Context, storyID string) error

func (f ViewReporterFunc) ReportView(ctx context.Context, storyID string) error {
	return f(ctx, storyID)
}

// Dispatcher runs fire-and-forget work. The default starts a goroutine.
type Dispatcher func(fn func())

func goDispatcher(fn func()) { go fn() }

// Recorder gates view reports so each story is reported at most once per session.
// A failed report is logged and forgotten: the story stays marked as viewed.
type Recorder struct {
	reporter ViewReporter
	dispatch Dispatcher
	timeout  time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	viewed map[string]struct{}
	wg     sync.WaitGroup
}

// NewRecorder builds a recorder. A nil reporter records nothing externally but
// still tracks which stories were seen.
func NewRecorder(reporter ViewReporter, dispatch Dispatcher, timeout time.Duration, logger zerolog.Logger) *Recorder {
	if dispatch == nil {
		dispatch = goDispatcher
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Recorder{
		reporter: reporter,
		dispatch: dispatch,
		timeout:  timeout,
		logger:   logger,
		viewed:   make(map[string]struct{}),
	}
}

// RecordViewIfNeeded reports story once. It returns true when a report was dispatched.
func (r *Recorder) RecordViewIfNeeded(story Story) bool {
	if story.IsOwn {
		return false
	}

	r.mu.Lock()
	if _, seen := r.viewed[story.ID]; seen {
		r.mu.Unlock()
		return false
	}
	r.viewed[story.ID] = struct{}{}
	r.mu.Unlock()

	if r.reporter == nil {
		return true
	}

	storyID := story.ID
	r.wg.Add(1)
	r.dispatch(func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if err := r.reporter.ReportView(ctx, storyID); err != nil {
			r.logger.Warn().Err(err).Str("story_id", storyID).Msg("view report failed")
		}
	})
	return true
}

// Viewed reports whether storyID has been recorded in this session
func (r *Recorder) Viewed(storyID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.viewed[storyID]
	return ok
}

// Wait blocks until all dispatched reports have finished
func (r *Recorder) Wait() {
	r.wg.Wait()
}
