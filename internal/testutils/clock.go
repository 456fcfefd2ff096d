package testutils

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/jzx17/goretry/pkg/types"
)

// NewMockClock creates a mock clock for testing
func NewMockClock(t testing.TB) *quartz.Mock {
	return quartz.NewMock(t)
}

// ClockWrapper wraps quartz.Mock to implement our Clock interface.
// Timers only fire when the test advances the mock.
type ClockWrapper struct {
	*quartz.Mock

	// Timers receives the duration of every timer created, when non-nil
	Timers chan time.Duration
}

// NewClockWrapper creates a new ClockWrapper
func NewClockWrapper(mock *quartz.Mock) *ClockWrapper {
	return &ClockWrapper{Mock: mock}
}

// Now returns the current time
func (c *ClockWrapper) Now() time.Time {
	return c.Mock.Now()
}

// Since returns the time elapsed since t
func (c *ClockWrapper) Since(t time.Time) time.Duration {
	return c.Mock.Since(t)
}

// NewTimer creates a new Timer
func (c *ClockWrapper) NewTimer(d time.Duration) types.Timer {
	timer := c.Mock.NewTimer(d)
	if c.Timers != nil {
		c.Timers <- d
	}
	return &TimerWrapper{timer: timer}
}

// TimerWrapper wraps quartz timer
type TimerWrapper struct {
	timer *quartz.Timer
}

func (t *TimerWrapper) C() <-chan time.Time {
	return t.timer.C
}

func (t *TimerWrapper) Stop() bool {
	return t.timer.Stop()
}

// AutoClock is a mock clock whose timers fire immediately: creating a timer
// advances mock time by the timer duration. Sequential retry loops run
// instantly while mock time still reflects every delay that was slept.
//
// AutoClock must not be shared by concurrently sleeping goroutines.
type AutoClock struct {
	mock  *quartz.Mock
	start time.Time

	mu    sync.Mutex
	slept []time.Duration
}

// NewAutoClock creates an AutoClock backed by a fresh quartz mock
func NewAutoClock(t testing.TB) *AutoClock {
	mock := quartz.NewMock(t)
	return &AutoClock{mock: mock, start: mock.Now()}
}

func (c *AutoClock) Now() time.Time {
	return c.mock.Now()
}

func (c *AutoClock) Since(t time.Time) time.Duration {
	return c.mock.Since(t)
}

func (c *AutoClock) NewTimer(d time.Duration) types.Timer {
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.mu.Unlock()

	c.mock.Advance(d).MustWait(context.Background())
	fired := make(chan time.Time, 1)
	fired <- c.mock.Now()
	return firedTimer{c: fired}
}

// Elapsed returns mock time passed since the clock was created
func (c *AutoClock) Elapsed() time.Duration {
	return c.mock.Since(c.start)
}

// Slept returns every timer duration requested so far, in order
func (c *AutoClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.slept))
	copy(out, c.slept)
	return out
}

type firedTimer struct {
	c chan time.Time
}

func (t firedTimer) C() <-chan time.Time {
	return t.c
}

func (t firedTimer) Stop() bool {
	return false
}
