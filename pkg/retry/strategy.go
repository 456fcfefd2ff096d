package retry

import (
	"context"
	"time"

	"github.com/jzx17/goretry/pkg/types"
)

// Strategy is immutable backoff configuration. It hands out a fresh State
// for every execution and may be shared by any number of policies and
// goroutines.
type Strategy interface {
	// NewState returns a new cursor positioned before the first retry
	NewState() State
}

// State is the single-use cursor of one execution. It is not safe for
// concurrent use; each call to Policy.Do gets its own.
type State interface {
	// HasRetries reports whether another retry is permitted. When it
	// reports true it also consumes that retry: RetryCount grows by one and
	// RetryDelay moves to the delay for the new count. Calling it twice
	// consumes two retries.
	HasRetries() bool

	// RetryCount returns the number of retries consumed so far
	RetryCount() int

	// RetryDelay returns the delay to apply before the current retry
	RetryDelay() time.Duration

	// DelayRetry blocks for RetryDelay on the clock carried by ctx. It
	// returns ctx.Err() if ctx is done before the delay elapses.
	DelayRetry(ctx context.Context) error
}

// delayFunc maps a retry count to its delay
type delayFunc func(count int) time.Duration

// retryState is the State shared by all built-in strategies. The delay for
// a count is computed once, when the count is reached, so jittered delays
// reported to listeners match the delay actually slept.
type retryState struct {
	maxRetries int
	count      int
	delay      time.Duration
	next       delayFunc
}

func newRetryState(maxRetries int, next delayFunc) *retryState {
	return &retryState{
		maxRetries: maxRetries,
		delay:      next(0),
		next:       next,
	}
}

func (s *retryState) HasRetries() bool {
	if s.count < s.maxRetries {
		s.count++
		s.delay = s.next(s.count)
		return true
	}
	return false
}

func (s *retryState) RetryCount() int {
	return s.count
}

func (s *retryState) RetryDelay() time.Duration {
	return s.delay
}

func (s *retryState) DelayRetry(ctx context.Context) error {
	if !types.Sleep(types.ClockFromContext(ctx), s.delay, ctx.Done()) {
		return ctx.Err()
	}
	return nil
}
