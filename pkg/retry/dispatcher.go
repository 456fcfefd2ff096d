package retry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// defaultDispatcher delivers the events of every policy in the process.
var defaultDispatcher = newDispatcher()

// dispatcher owns the shared, unbounded FIFO of pending events and the
// single goroutine draining it. The goroutine is started on first need and
// runs for the lifetime of the process.
type dispatcher struct {
	once    sync.Once
	started atomic.Int32

	mu    sync.Mutex
	ready *sync.Cond // queue became non-empty
	idle  *sync.Cond // queue drained and nothing in delivery
	queue []Event
	busy  bool
}

func newDispatcher() *dispatcher {
	d := &dispatcher{}
	d.ready = sync.NewCond(&d.mu)
	d.idle = sync.NewCond(&d.mu)
	return d
}

// start launches the delivery goroutine exactly once
func (d *dispatcher) start() {
	d.once.Do(func() {
		d.started.Add(1)
		go d.run()
	})
}

// enqueue appends evt without blocking on delivery
func (d *dispatcher) enqueue(evt Event) {
	d.mu.Lock()
	d.queue = append(d.queue, evt)
	d.mu.Unlock()
	d.ready.Signal()
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		for len(d.queue) == 0 {
			if d.busy {
				d.busy = false
				d.idle.Broadcast()
			}
			d.ready.Wait()
		}
		evt := d.queue[0]
		d.queue[0] = Event{}
		d.queue = d.queue[1:]
		d.busy = true
		d.mu.Unlock()

		d.deliver(evt)
	}
}

// deliver hands evt to the listeners its source had at delivery time, in
// registration order. A panicking listener is logged and skipped; the
// remaining listeners still receive the event.
func (d *dispatcher) deliver(evt Event) {
	for _, l := range evt.Source.Listeners() {
		d.notify(l, evt)
	}
}

func (d *dispatcher) notify(l Listener, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			evt.Source.logger.Error("retry event listener panicked",
				"policy", evt.Source.Name(),
				"retry_count", evt.RetryCount,
				"panic", fmt.Sprint(r),
			)
		}
	}()
	l.OnRetry(evt)
}

// waitIdle blocks until every event enqueued so far has been delivered
func (d *dispatcher) waitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		d.mu.Lock()
		d.idle.Broadcast()
		d.mu.Unlock()
	})
	defer stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) > 0 || d.busy {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.idle.Wait()
	}
	return nil
}

// WaitIdle blocks until the process-wide dispatcher has delivered every
// event emitted before the call, or ctx is done. It is mainly useful in
// tests and at shutdown.
func WaitIdle(ctx context.Context) error {
	return defaultDispatcher.waitIdle(ctx)
}
