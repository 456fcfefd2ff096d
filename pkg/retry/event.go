package retry

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Event describes one retry that is about to happen. It is built by the
// policy after a transient failure, before the backoff delay, and is never
// modified afterwards.
type Event struct {
	// Source is the policy that is retrying
	Source *Policy

	// RetryCount is the number of retries consumed, including this one
	RetryCount int

	// RetryDelay is the delay about to be applied
	RetryDelay time.Duration

	// Cause is the failure that triggered the retry
	Cause error

	// Time is when the event was emitted, on the policy clock
	Time time.Time
}

// Listener observes retries. OnRetry runs on the shared dispatcher
// goroutine, never on the goroutine calling Policy.Do, so it should return
// quickly.
type Listener interface {
	OnRetry(evt Event)
}

// ListenerFunc adapts a plain function to Listener
type ListenerFunc func(evt Event)

// OnRetry calls f(evt)
func (f ListenerFunc) OnRetry(evt Event) {
	f(evt)
}

// LogListener returns a listener that writes every retry to logger at
// level.
func LogListener(logger *slog.Logger, level slog.Level) Listener {
	return ListenerFunc(func(evt Event) {
		logger.LogAttrs(context.Background(), level, "retrying operation",
			slog.String("policy", evt.Source.Name()),
			slog.Int("retry_count", evt.RetryCount),
			slog.Duration("retry_delay", evt.RetryDelay),
			slog.Any("cause", evt.Cause),
		)
	})
}

// CountingListener tallies the events it receives
type CountingListener struct {
	events     atomic.Int64
	lastCount  atomic.Int64
	totalDelay atomic.Int64
}

// OnRetry records evt
func (c *CountingListener) OnRetry(evt Event) {
	c.events.Add(1)
	c.lastCount.Store(int64(evt.RetryCount))
	c.totalDelay.Add(int64(evt.RetryDelay))
}

// Events returns the number of events received
func (c *CountingListener) Events() int64 {
	return c.events.Load()
}

// LastRetryCount returns RetryCount of the most recent event
func (c *CountingListener) LastRetryCount() int {
	return int(c.lastCount.Load())
}

// TotalDelay returns the sum of RetryDelay over all events
func (c *CountingListener) TotalDelay() time.Duration {
	return time.Duration(c.totalDelay.Load())
}
