// Package retry provides retry mechanism strategies and implementations
package retry

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jzx17/goretry/pkg/types"
)

// Policy retries operations under a Strategy, classifying failures with a
// TransientDetector and reporting each retry to its listeners.
//
// A Policy is safe for concurrent use. Every call to Do or Action gets its
// own State, so concurrent executions never share a retry count.
type Policy struct {
	name       string
	strategy   Strategy
	detector   TransientDetector
	clock      types.Clock
	logger     *slog.Logger
	dispatcher *dispatcher

	// listeners is replaced wholesale on every registration and never
	// mutated in place, so the dispatcher reads it without locking.
	listenersMu sync.Mutex
	listeners   atomic.Pointer[[]Listener]

	statsMu sync.Mutex
	stats   Stats
}

// Stats contains retry statistics for one policy
type Stats struct {
	TotalAttempts      int64         // operation invocations
	TotalRetries       int64         // retries consumed
	TotalSuccesses     int64         // executions that returned a result
	TotalFailures      int64         // executions ended by a fatal or exhausted failure
	TotalCancellations int64         // executions ended by cancellation
	TotalRetryDelay    time.Duration // sum of applied backoff delays
	LastRetryTime      time.Time     // clock time of the latest retry
}

// Option is a configuration option for a Policy
type Option func(*Policy)

// WithName sets the name used in logs and available to listeners
func WithName(name string) Option {
	return func(p *Policy) {
		p.name = name
	}
}

// WithClock sets the clock used for backoff delays and event timestamps
func WithClock(clock types.Clock) Option {
	return func(p *Policy) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets the logger for retry diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// withDispatcher replaces the process-wide dispatcher, for tests
func withDispatcher(d *dispatcher) Option {
	return func(p *Policy) {
		p.dispatcher = d
	}
}

// NewPolicy creates a policy. A nil detector falls back to DefaultDetector.
// Panics if strategy is nil.
func NewPolicy(strategy Strategy, detector TransientDetector, opts ...Option) *Policy {
	if strategy == nil {
		panic("retry: strategy cannot be nil")
	}
	if detector == nil {
		detector = NewDefaultDetector()
	}

	p := &Policy{
		name:       "default",
		strategy:   strategy,
		detector:   detector,
		clock:      types.NewRealClock(),
		logger:     slog.New(slog.DiscardHandler),
		dispatcher: defaultDispatcher,
	}
	p.listeners.Store(&[]Listener{})

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Name returns the policy name
func (p *Policy) Name() string {
	return p.name
}

// Logger returns the logger the policy reports through
func (p *Policy) Logger() *slog.Logger {
	return p.logger
}

// AddListener registers l for the retry events of this policy. Listeners
// are called in registration order. The first registration in the process
// starts the shared dispatcher goroutine.
func (p *Policy) AddListener(l Listener) error {
	if l == nil {
		return types.ErrNilListener
	}

	p.listenersMu.Lock()
	old := *p.listeners.Load()
	next := make([]Listener, len(old), len(old)+1)
	copy(next, old)
	next = append(next, l)
	p.listeners.Store(&next)
	p.listenersMu.Unlock()

	p.dispatcher.start()
	return nil
}

// Listeners returns the current listener snapshot. The slice must not be
// modified.
func (p *Policy) Listeners() []Listener {
	return *p.listeners.Load()
}

// emit queues evt for asynchronous delivery. Without listeners it does
// nothing.
func (p *Policy) emit(evt Event) {
	if len(p.Listeners()) == 0 {
		return
	}
	p.dispatcher.enqueue(evt)
}

// Stats returns a copy of the policy statistics
func (p *Policy) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// ResetStats resets statistics
func (p *Policy) ResetStats() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats = Stats{}
}

// updateStats updates statistics (thread-safe)
func (p *Policy) updateStats(fn func(*Stats)) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	fn(&p.stats)
}
