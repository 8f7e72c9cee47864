package playback

import (
	"sync"
	"time"
)

// Clock delivers periodic ticks to the controller. Implementations decide what
// a tick is: a wall-clock ticker, a frame callback, or a test driving time by hand.
type Clock interface {
	// Start begins delivering ticks to fn until the subscription is cancelled.
	Start(fn func(delta time.Duration)) Subscription
}

// Subscription is a live tick stream. Cancel is idempotent.
type Subscription interface {
	Cancel()
}

// TickerClock ticks on a time.Ticker and reports the measured wall time between ticks
type TickerClock struct {
	Interval time.Duration
}

// NewTickerClock returns a clock ticking every interval
func NewTickerClock(interval time.Duration) *TickerClock {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &TickerClock{Interval: interval}
}

func (c *TickerClock) Start(fn func(delta time.Duration)) Subscription {
	sub := &tickerSubscription{stop: make(chan struct{})}
	ticker := time.NewTicker(c.Interval)

	go func() {
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case now := <-ticker.C:
				delta := now.Sub(last)
				last = now
				fn(delta)
			case <-sub.stop:
				return
			}
		}
	}()

	return sub
}

type tickerSubscription struct {
	stop chan struct{}
	once sync.Once
}

func (s *tickerSubscription) Cancel() {
	s.once.Do(func() { close(s.stop) })
}

// ManualClock hands control of time to the caller. Advance delivers a tick
// synchronously to every live subscription.
type ManualClock struct {
	mu   sync.Mutex
	next int
	subs map[int]func(time.Duration)
}

// NewManualClock returns a clock that only ticks when told to
func NewManualClock() *ManualClock {
	return &ManualClock{subs: make(map[int]func(time.Duration))}
}

func (c *ManualClock) Start(fn func(delta time.Duration)) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.subs[id] = fn
	return &manualSubscription{clock: c, id: id}
}

// Advance delivers one tick of d to all live subscriptions
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	fns := make([]func(time.Duration), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(d)
	}
}

// Subscribers returns the number of live subscriptions
func (c *ManualClock) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

type manualSubscription struct {
	clock *ManualClock
	id    int
}

func (s *manualSubscription) Cancel() {
	s.clock.mu.Lock()
	defer s.clock.mu.Unlock()
	delete(s.clock.subs, s.id)
}
