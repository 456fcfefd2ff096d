// Package retry provides backoff algorithm implementations
package retry

import (
	"math/rand"
	"sync"
	"time"
)

// Defaults for ExponentialBackoff
const (
	DefaultMaxRetries = 10
	DefaultMinBackoff = 1 * time.Second
	DefaultMaxBackoff = 30 * time.Second
	DefaultSlotTime   = 2 * time.Second

	// DefaultSeed seeds the contention window generator so runs repeat
	DefaultSeed int64 = 1
)

// maxContentionPeriods caps the exponent of the contention window
const maxContentionPeriods = 10

// Negative retry budgets and durations passed to the constructors are
// treated as zero: no retries, no sleep. Config.Validate rejects them
// eagerly for callers that build strategies from configuration.

func nonNegative[T int | time.Duration](v T) T {
	if v < 0 {
		return 0
	}
	return v
}

// FixedInterval retries after the same delay every time
type FixedInterval struct {
	maxRetries int
	interval   time.Duration
}

// NewFixedInterval creates a fixed interval strategy
func NewFixedInterval(maxRetries int, interval time.Duration) *FixedInterval {
	return &FixedInterval{
		maxRetries: nonNegative(maxRetries),
		interval:   nonNegative(interval),
	}
}

// NewState returns a fresh execution cursor
func (b *FixedInterval) NewState() State {
	return newRetryState(b.maxRetries, func(int) time.Duration {
		return b.interval
	})
}

// MaxRetries returns the retry budget
func (b *FixedInterval) MaxRetries() int {
	return b.maxRetries
}

// Incremental grows the delay linearly: the k-th retry waits
// initial + increment*(k-1). There is no cap, so keep maxRetries bounded.
type Incremental struct {
	maxRetries int
	initial    time.Duration
	increment  time.Duration
}

// NewIncremental creates a linearly increasing strategy
func NewIncremental(maxRetries int, initial, increment time.Duration) *Incremental {
	return &Incremental{
		maxRetries: nonNegative(maxRetries),
		initial:    nonNegative(initial),
		increment:  nonNegative(increment),
	}
}

// NewState returns a fresh execution cursor
func (b *Incremental) NewState() State {
	return newRetryState(b.maxRetries, b.delay)
}

func (b *Incremental) delay(count int) time.Duration {
	if count <= 1 {
		return b.initial
	}
	return b.initial + time.Duration(count-1)*b.increment
}

// MaxRetries returns the retry budget
func (b *Incremental) MaxRetries() int {
	return b.maxRetries
}

// ExponentialBackoff implements truncated binary exponential backoff as
// used for Ethernet contention. Before retry k it waits
// min(minBackoff + r*slotTime, maxBackoff) where r is drawn uniformly from
// [0, 2^min(k, 10)). No delay is ever applied before the first attempt.
//
// The random source belongs to the strategy, so successive executions keep
// drawing from one sequence. It is guarded by a mutex because states of
// concurrent executions share it.
type ExponentialBackoff struct {
	maxRetries int
	minBackoff time.Duration
	maxBackoff time.Duration
	slotTime   time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// BackoffOption is a functional option for configuring ExponentialBackoff.
type BackoffOption func(*ExponentialBackoff)

// WithMinBackoff sets the smallest delay applied before a retry.
func WithMinBackoff(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.minBackoff = d
	}
}

// WithMaxBackoff sets the delay cap.
func WithMaxBackoff(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.maxBackoff = d
	}
}

// WithSlotTime sets the width of one contention slot.
func WithSlotTime(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) {
		b.slotTime = d
	}
}

// WithRand sets the random source used to pick a slot. Tests should pass a
// seeded source for deterministic delays.
func WithRand(r *rand.Rand) BackoffOption {
	return func(b *ExponentialBackoff) {
		if r != nil {
			b.rng = r
		}
	}
}

// NewExponentialBackoff creates a truncated binary exponential backoff
// strategy. Unset parameters default to 1s minimum, 30s maximum and a 2s
// slot, with a generator seeded with DefaultSeed.
//
// Example:
//
//	backoff := retry.NewExponentialBackoff(5,
//	    retry.WithMinBackoff(100*time.Millisecond),
//	    retry.WithMaxBackoff(5*time.Second),
//	    retry.WithSlotTime(200*time.Millisecond),
//	)
func NewExponentialBackoff(maxRetries int, opts ...BackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		maxRetries: maxRetries,
		minBackoff: DefaultMinBackoff,
		maxBackoff: DefaultMaxBackoff,
		slotTime:   DefaultSlotTime,
	}

	for _, opt := range opts {
		opt(b)
	}

	b.maxRetries = nonNegative(b.maxRetries)
	b.minBackoff = nonNegative(b.minBackoff)
	b.slotTime = nonNegative(b.slotTime)
	if b.maxBackoff < b.minBackoff {
		b.maxBackoff = b.minBackoff
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewSource(DefaultSeed)) // #nosec G404 -- crypto rand not needed for backoff jitter
	}

	return b
}

// NewState returns a fresh execution cursor
func (b *ExponentialBackoff) NewState() State {
	return newRetryState(b.maxRetries, b.delay)
}

func (b *ExponentialBackoff) delay(count int) time.Duration {
	if count == 0 {
		return 0
	}

	window := 1 << min(count, maxContentionPeriods)
	b.mu.Lock()
	slot := b.rng.Intn(window)
	b.mu.Unlock()

	return min(b.minBackoff+time.Duration(slot)*b.slotTime, b.maxBackoff)
}

// MaxRetries returns the retry budget
func (b *ExponentialBackoff) MaxRetries() int {
	return b.maxRetries
}

// MinBackoff returns the minimum delay for tests and debugging.
func (b *ExponentialBackoff) MinBackoff() time.Duration {
	return b.minBackoff
}

// MaxBackoff returns the delay cap for tests and debugging.
func (b *ExponentialBackoff) MaxBackoff() time.Duration {
	return b.maxBackoff
}

// SlotTime returns the slot width for tests and debugging.
func (b *ExponentialBackoff) SlotTime() time.Duration {
	return b.slotTime
}
