package usecase

import (
	"sync"
	"sync/atomic"
	"time"

	"interviewdesk/internal/ports"
)

// TickerFunc builds a ticker; tests substitute a manual one.
type TickerFunc func(interval time.Duration) ports.Ticker

// NewTimeTicker adapts time.Ticker to ports.Ticker.
func NewTimeTicker(interval time.Duration) ports.Ticker {
	return timeTicker{time.NewTicker(interval)}
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.ticker.C }
func (t timeTicker) Stop() { t.ticker.Stop() }

// SessionClock counts a session down one second per tick and fires expiry exactly once.
// It cannot be paused; Stop is only for session teardown.
type SessionClock struct {
	ticker    ports.Ticker
	remaining atomic.Int64
	expired   atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
}

func NewSessionClock(seconds int, ticker ports.Ticker) *SessionClock {
	c := &SessionClock{
		ticker: ticker,
		stop:   make(chan struct{}),
	}
	c.remaining.Store(int64(max(seconds, 0)))
	return c
}

// Start begins ticking. onTick receives the remaining seconds after each decrement; onExpire
// runs once when the count reaches zero.
func (c *SessionClock) Start(onTick func(remaining int), onExpire func()) {
	c.startOnce.Do(func() {
		go c.run(onTick, onExpire)
	})
}

func (c *SessionClock) run(onTick func(int), onExpire func()) {
	defer c.ticker.Stop()

	if c.remaining.Load() == 0 {
		c.expire(onExpire)
		return
	}
	for {
		select {
		case <-c.stop:
			return
		case <-c.ticker.C():
		}
		select {
		case <-c.stop:
			return
		default:
		}

		remaining := c.remaining.Add(-1)
		if remaining < 0 {
			c.remaining.Store(0)
			remaining = 0
		}
		if onTick != nil {
			onTick(int(remaining))
		}
		if remaining == 0 {
			c.expire(onExpire)
			return
		}
	}
}

func (c *SessionClock) expire(onExpire func()) {
	if c.expired.CompareAndSwap(false, true) && onExpire != nil {
		onExpire()
	}
}

// Remaining returns the seconds left.
func (c *SessionClock) Remaining() int {
	return int(c.remaining.Load())
}

// Expired reports whether the countdown reached zero.
func (c *SessionClock) Expired() bool {
	return c.expired.Load()
}

// Stop halts ticking. It does not wait for an in-progress callback.
func (c *SessionClock) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}
