package retry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jzx17/goretry/internal/testutils"
	"github.com/jzx17/goretry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNewPolicy_Defaults(t *testing.T) {
	p := NewPolicy(NewFixedInterval(1, 0), nil)

	assert.Equal(t, "default", p.Name())
	assert.IsType(t, &DefaultDetector{}, p.detector)
	assert.Same(t, defaultDispatcher, p.dispatcher)
	assert.Empty(t, p.Listeners())
}

func TestNewPolicy_NilStrategyPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewPolicy(nil, AlwaysTransient)
	})
}

func TestAddListener_Nil(t *testing.T) {
	d := newDispatcher()
	p := NewPolicy(NewFixedInterval(1, 0), AlwaysTransient, withDispatcher(d))

	err := p.AddListener(nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNilListener)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	assert.Empty(t, p.Listeners(), "registry must be unchanged")
	assert.Zero(t, d.started.Load(), "dispatcher must not start")
}

func TestAddListener_StartsDispatcherOnce(t *testing.T) {
	d := newDispatcher()
	first := NewPolicy(NewFixedInterval(1, 0), AlwaysTransient, withDispatcher(d))
	second := NewPolicy(NewFixedInterval(1, 0), AlwaysTransient, withDispatcher(d))

	assert.Zero(t, d.started.Load())

	for i := 0; i < 3; i++ {
		require.NoError(t, first.AddListener(&recorder{}))
		require.NoError(t, second.AddListener(&recorder{}))
	}

	assert.Equal(t, int32(1), d.started.Load())
}

func TestAddListener_SameListenerTwice(t *testing.T) {
	d := newDispatcher()
	p := NewPolicy(NewFixedInterval(1, 0), AlwaysTransient, withDispatcher(d))
	rec := &recorder{}

	require.NoError(t, p.AddListener(rec))
	require.NoError(t, p.AddListener(rec))

	_ = p.Do(testutils.Context(t), testutils.NewFlakyOp(-1, errTransient, 0).Run)
	require.NoError(t, d.waitIdle(testutils.Context(t)))

	assert.Len(t, rec.Events(), 2, "a listener registered twice is called twice")
}

func TestListeners_RegistrationOrder(t *testing.T) {
	d := newDispatcher()
	p := NewPolicy(NewFixedInterval(2, 0), AlwaysTransient, withDispatcher(d))

	var mu sync.Mutex
	var calls []string
	listener := func(name string) Listener {
		return ListenerFunc(func(evt Event) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, name)
		})
	}
	require.NoError(t, p.AddListener(listener("a")))
	require.NoError(t, p.AddListener(listener("b")))
	require.NoError(t, p.AddListener(listener("c")))

	_ = p.Do(testutils.Context(t), testutils.NewFlakyOp(-1, errTransient, 0).Run)
	require.NoError(t, d.waitIdle(testutils.Context(t)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c", "a", "b", "c"}, calls)
}

func TestListeners_OnlyOwnPolicy(t *testing.T) {
	d := newDispatcher()
	a := NewPolicy(NewFixedInterval(2, 0), AlwaysTransient, withDispatcher(d), WithName("a"))
	b := NewPolicy(NewFixedInterval(1, 0), AlwaysTransient, withDispatcher(d), WithName("b"))
	recA, recB := &recorder{}, &recorder{}
	require.NoError(t, a.AddListener(recA))
	require.NoError(t, b.AddListener(recB))

	_ = a.Do(testutils.Context(t), testutils.NewFlakyOp(-1, errTransient, 0).Run)
	_ = b.Do(testutils.Context(t), testutils.NewFlakyOp(-1, errTransient, 0).Run)
	require.NoError(t, d.waitIdle(testutils.Context(t)))

	require.Len(t, recA.Events(), 2)
	require.Len(t, recB.Events(), 1)
	for _, evt := range recA.Events() {
		assert.Equal(t, "a", evt.Source.Name())
	}
	assert.Equal(t, "b", recB.Events()[0].Source.Name())
}

func TestListeners_PanicDoesNotStopDelivery(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	d := newDispatcher()
	p := NewPolicy(NewFixedInterval(3, 0), AlwaysTransient, withDispatcher(d), WithLogger(logger))

	require.NoError(t, p.AddListener(ListenerFunc(func(Event) {
		panic("listener bug")
	})))
	rec := &recorder{}
	require.NoError(t, p.AddListener(rec))

	err := p.Do(testutils.Context(t), testutils.NewFlakyOp(-1, errTransient, 0).Run)
	require.NoError(t, d.waitIdle(testutils.Context(t)))

	assert.ErrorIs(t, err, errTransient, "listener failures never reach the caller")
	assert.Len(t, rec.Events(), 3)
	assert.Contains(t, logs.String(), "listener bug")
}

func TestListeners_ConcurrentRegistration(t *testing.T) {
	d := newDispatcher()
	p := NewPolicy(NewFixedInterval(1, 0), AlwaysTransient, withDispatcher(d))

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			return p.AddListener(&recorder{})
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, p.Listeners(), 50)
	assert.Equal(t, int32(1), d.started.Load())
}

func TestListeners_RegisteredWhileRetrying(t *testing.T) {
	d := newDispatcher()
	p := NewPolicy(NewFixedInterval(5, 0), AlwaysTransient, withDispatcher(d))
	first := &recorder{}
	require.NoError(t, p.AddListener(first))

	late := &recorder{}
	var calls int
	err := p.Do(testutils.Context(t), func(ctx context.Context) error {
		calls++
		if calls == 3 {
			require.NoError(t, p.AddListener(late))
		}
		return errTransient
	})
	require.NoError(t, d.waitIdle(testutils.Context(t)))

	require.ErrorIs(t, err, errTransient)
	assert.Len(t, first.Events(), 5)
	// delivery reads the listeners current at delivery time, so the late
	// listener sees at least the events emitted after it was added
	assert.GreaterOrEqual(t, len(late.Events()), 3)
}

func TestEmit_DoesNotBlockOnSlowListener(t *testing.T) {
	d := newDispatcher()
	p := NewPolicy(NewFixedInterval(20, 0), AlwaysTransient, withDispatcher(d))

	release := make(chan struct{})
	require.NoError(t, p.AddListener(ListenerFunc(func(Event) {
		<-release
	})))

	done := make(chan error, 1)
	go func() {
		done <- p.Do(testutils.Context(t), testutils.NewFlakyOp(-1, errTransient, 0).Run)
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errTransient)
	case <-time.After(testutils.DefaultTimeout):
		t.Fatal("emitting blocked on a stuck listener")
	}

	close(release)
	require.NoError(t, d.waitIdle(testutils.Context(t)))
}

func TestLogListener(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	d := newDispatcher()
	p := NewPolicy(NewFixedInterval(1, 25*time.Millisecond), AlwaysTransient,
		withDispatcher(d), WithClock(testutils.NewAutoClock(t)), WithName("orders"))
	require.NoError(t, p.AddListener(LogListener(logger, slog.LevelInfo)))

	_ = p.Do(testutils.Context(t), testutils.NewFlakyOp(-1, errors.New("boom"), 0).Run)
	require.NoError(t, d.waitIdle(testutils.Context(t)))

	out := logs.String()
	assert.Contains(t, out, `"policy":"orders"`)
	assert.Contains(t, out, `"retry_count":1`)
	assert.Contains(t, out, `"cause":"boom"`)
}

func TestWaitIdle_ContextDone(t *testing.T) {
	d := newDispatcher()
	p := NewPolicy(NewFixedInterval(1, 0), AlwaysTransient, withDispatcher(d))

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, p.AddListener(ListenerFunc(func(Event) {
		<-release
	})))
	_ = p.Do(testutils.Context(t), testutils.NewFlakyOp(-1, errTransient, 0).Run)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, d.waitIdle(ctx), context.DeadlineExceeded)
}

func TestWaitIdle_DefaultDispatcher(t *testing.T) {
	p := NewPolicy(NewFixedInterval(2, 0), AlwaysTransient)
	counter := &CountingListener{}
	require.NoError(t, p.AddListener(counter))

	_ = p.Do(testutils.Context(t), testutils.NewFlakyOp(-1, errTransient, 0).Run)

	require.NoError(t, WaitIdle(testutils.Context(t)))
	assert.Equal(t, int64(2), counter.Events())
	assert.Equal(t, 2, counter.LastRetryCount())
	assert.GreaterOrEqual(t, defaultDispatcher.started.Load(), int32(1))
}
