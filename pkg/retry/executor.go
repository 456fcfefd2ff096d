// Package retry provides retry executor implementation
package retry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jzx17/goretry/pkg/types"
)

// ExecuteFunc is the function type to retry
type ExecuteFunc[T any] func(ctx context.Context) (T, error)

// Do runs fn under the policy. It returns nil once fn succeeds. Otherwise
// it returns the failure that ended the loop: the fatal error itself, the
// last transient error once retries are exhausted, or a cancellation error.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Action(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Action runs fn under policy p and returns its result.
//
// Each failure is handled in this order:
//  1. If ctx is done, or the failure wraps context.Canceled, the loop stops
//     and a cancellation error is returned. The detector is not consulted
//     and no event is emitted.
//  2. A failure the detector does not consider transient is returned as
//     is.
//  3. If the retry budget is spent the failure is returned as is.
//  4. Otherwise an Event is emitted, the backoff delay is slept and fn is
//     called again.
//
// The backoff delay blocks the calling goroutine; use ActionAsync to retry
// in the background.
func Action[T any](ctx context.Context, p *Policy, fn ExecuteFunc[T]) (T, error) {
	var zero T

	ctx = types.WithClock(ctx, p.clock)
	state := p.strategy.NewState()

	for {
		p.updateStats(func(stats *Stats) {
			stats.TotalAttempts++
		})

		result, err := fn(ctx)
		if err == nil {
			p.updateStats(func(stats *Stats) {
				stats.TotalSuccesses++
			})
			return result, nil
		}

		if cerr := cancellation(ctx, err); cerr != nil {
			return zero, p.cancelled(state, cerr)
		}

		if !p.detector.IsTransient(err) {
			p.updateStats(func(stats *Stats) {
				stats.TotalFailures++
			})
			return zero, err
		}

		if !state.HasRetries() {
			p.updateStats(func(stats *Stats) {
				stats.TotalFailures++
			})
			p.logger.Warn("retries exhausted",
				"policy", p.name,
				"retry_count", state.RetryCount(),
				"error", err,
			)
			return zero, err
		}

		evt := Event{
			Source:     p,
			RetryCount: state.RetryCount(),
			RetryDelay: state.RetryDelay(),
			Cause:      err,
			Time:       p.clock.Now(),
		}
		p.updateStats(func(stats *Stats) {
			stats.TotalRetries++
			stats.TotalRetryDelay += evt.RetryDelay
			stats.LastRetryTime = evt.Time
		})
		p.logger.Debug("retrying",
			"policy", p.name,
			"retry_count", evt.RetryCount,
			"retry_delay", evt.RetryDelay,
			"error", err,
		)
		p.emit(evt)

		if derr := state.DelayRetry(ctx); derr != nil {
			return zero, p.cancelled(state, cancellation(ctx, err))
		}
	}
}

// ActionAsync runs Action on a new goroutine and delivers its outcome on
// the returned channel, which is closed afterwards.
func ActionAsync[T any](ctx context.Context, p *Policy, fn ExecuteFunc[T]) <-chan types.Result[T] {
	resultChan := make(chan types.Result[T], 1)

	go func() {
		defer close(resultChan)

		start := p.clock.Now()
		value, err := Action(ctx, p, fn)
		duration := p.clock.Since(start)

		resultChan <- types.Result[T]{
			Value:    value,
			Error:    err,
			Duration: duration,
		}
	}()

	return resultChan
}

func (p *Policy) cancelled(state State, err error) error {
	p.updateStats(func(stats *Stats) {
		stats.TotalCancellations++
	})
	p.logger.Debug("retry cancelled",
		"policy", p.name,
		"retry_count", state.RetryCount(),
		"error", err,
	)
	return err
}

// cancellation returns the error to report when err ends the loop by
// cancellation, or nil when it does not. A done ctx always cancels; the
// returned error then matches ctx.Err() under errors.Is while keeping err
// reachable. A live ctx cancels only when err wraps context.Canceled.
// Deadlines that belong to a single attempt are left to the detector.
func cancellation(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		if errors.Is(err, cerr) {
			return err
		}
		return fmt.Errorf("%w: %w", cerr, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
