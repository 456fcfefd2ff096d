// Package retry re-executes fallible operations under a backoff strategy
// until they succeed, run out of retries, fail with a non-transient error,
// or are cancelled.
//
// Key Features:
//
// 1. Backoff strategies (Strategy):
//   - FixedInterval: the same delay before every retry
//   - Incremental: delay grows by a constant step per retry
//   - ExponentialBackoff: truncated binary exponential backoff, with the
//     contention window capped at 2^10 slots
//
// 2. Failure classification (TransientDetector):
//   - DefaultDetector: explicit markers plus transient network errors
//   - DetectorFunc, AlwaysTransient, NeverTransient
//   - SQL aware detectors live in package sqlretry
//
// 3. Retry events (Listener):
//   - Every retry emits an Event to the listeners of its policy
//   - Events are delivered asynchronously, in emission order, by a single
//     process-wide dispatcher goroutine started on the first AddListener
//   - Emitting never blocks the retrying goroutine
//
// 4. Cancellation:
//   - A done context, or a failure wrapping context.Canceled, stops the
//     loop at once and is never classified as transient
//
// Basic usage example:
//
//	policy := retry.NewPolicy(
//		retry.NewExponentialBackoff(5, retry.WithMinBackoff(100*time.Millisecond)),
//		retry.NewDefaultDetector(),
//		retry.WithName("orders"),
//	)
//
//	result, err := retry.Action(ctx, policy, func(ctx context.Context) (string, error) {
//		return doSomething(ctx)
//	})
//
// Listening to retries:
//
//	_ = policy.AddListener(retry.ListenerFunc(func(evt retry.Event) {
//		log.Printf("retry %d in %v: %v", evt.RetryCount, evt.RetryDelay, evt.Cause)
//	}))
//
// Configuration from the environment:
//
//	cfg, err := retry.ConfigFromEnv("ORDERS_RETRY")
//	strategy, err := cfg.Strategy()
//
// Error handling:
//
// Terminal failures are returned unwrapped, so callers can inspect the real
// cause with errors.Is and errors.As. Only cancellation is reported as a
// context error, with the last failure still reachable in its chain.
//
// Thread safety:
//
// Strategies and policies are safe for concurrent use. Each execution
// owns its State.
package retry
