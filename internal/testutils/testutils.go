// Package testutils provides simplified testing utilities and helper functions
package testutils

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// DefaultTimeout bounds how long a single test may wait on async delivery
const DefaultTimeout = 5 * time.Second

// Context returns a context that is cancelled when the test ends or after
// DefaultTimeout, whichever comes first
func Context(t testing.TB) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	t.Cleanup(cancel)
	return ctx
}

// FlakyOp is an operation that fails a fixed number of times before it
// succeeds. It counts every call.
type FlakyOp struct {
	failures int64
	err      error
	value    int
	calls    atomic.Int64
}

// NewFlakyOp returns an operation that returns err on its first failures
// calls and value afterwards. A negative failures count never succeeds.
func NewFlakyOp(failures int, err error, value int) *FlakyOp {
	return &FlakyOp{failures: int64(failures), err: err, value: value}
}

// Call runs one attempt
func (f *FlakyOp) Call(ctx context.Context) (int, error) {
	n := f.calls.Add(1)
	if f.failures < 0 || n <= f.failures {
		return 0, f.err
	}
	return f.value, nil
}

// Run runs one attempt, discarding the value
func (f *FlakyOp) Run(ctx context.Context) error {
	_, err := f.Call(ctx)
	return err
}

// Calls returns how many attempts were made
func (f *FlakyOp) Calls() int {
	return int(f.calls.Load())
}
