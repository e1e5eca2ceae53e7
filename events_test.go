package oors

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_EmitInSubscriptionOrder(t *testing.T) {
	bus := NewEventBus("test")
	var got []string

	bus.On("ping", func(ctx context.Context, e Event) error {
		got = append(got, "first")
		return nil
	})
	bus.On(EventAny, func(ctx context.Context, e Event) error {
		got = append(got, "wildcard:"+e.Type())
		return nil
	})
	bus.On("ping", func(ctx context.Context, e Event) error {
		got = append(got, "second")
		return nil
	})

	require.NoError(t, bus.Emit(context.Background(), "ping", "", nil))
	assert.Equal(t, []string{"first", "wildcard:ping", "second"}, got)
}

func TestEventBus_EventAttributes(t *testing.T) {
	bus := NewEventBus("urn:test")
	var received Event

	bus.On("module:a:after:setup", func(ctx context.Context, e Event) error {
		received = e
		return nil
	})
	require.NoError(t, bus.Emit(context.Background(), "module:a:after:setup", "a",
		ModulePayload{Module: "a", State: StateReady}))

	require.NoError(t, received.Validate())
	assert.Equal(t, "urn:test", received.Source())
	assert.Equal(t, "a", received.Subject())

	id, err := uuid.Parse(received.ID())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())

	var payload ModulePayload
	require.NoError(t, received.DataAs(&payload))
	assert.Equal(t, StateReady, payload.State)
}

func TestEventBus_OnceAndUnsubscribe(t *testing.T) {
	bus := NewEventBus("test")
	var once, always int

	bus.Once("tick", func(ctx context.Context, e Event) error {
		once++
		return nil
	})
	off := bus.On("tick", func(ctx context.Context, e Event) error {
		always++
		return nil
	})

	ctx := context.Background()
	require.NoError(t, bus.Emit(ctx, "tick", "", nil))
	require.NoError(t, bus.Emit(ctx, "tick", "", nil))
	off()
	require.NoError(t, bus.Emit(ctx, "tick", "", nil))

	assert.Equal(t, 1, once)
	assert.Equal(t, 2, always)
	assert.Equal(t, 0, bus.ListenerCount("tick"))
}

func TestEventBus_ErrorsAreJoined(t *testing.T) {
	bus := NewEventBus("test")
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	var ran int

	bus.On("x", func(ctx context.Context, e Event) error { ran++; return errA })
	bus.On("x", func(ctx context.Context, e Event) error { ran++; return errB })

	err := bus.Emit(context.Background(), "x", "", nil)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, 2, ran)
}

func TestEventBus_EmitAsyncWaitsForAll(t *testing.T) {
	bus := NewEventBus("test")
	var count atomic.Int32
	release := make(chan struct{})

	var started sync.WaitGroup
	for i := 0; i < 3; i++ {
		started.Add(1)
		bus.On("load", func(ctx context.Context, e Event) error {
			started.Done()
			<-release
			count.Add(1)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- bus.EmitAsync(context.Background(), "load", "", nil) }()

	// all three run at the same time, so none can finish before release
	started.Wait()
	assert.Equal(t, int32(0), count.Load())
	close(release)

	require.NoError(t, <-done)
	assert.Equal(t, int32(3), count.Load())
}

func TestModuleEvent(t *testing.T) {
	assert.Equal(t, "module:blog:before:initialize", ModuleEvent("blog", BeforeHook("initialize")))
}

func TestEventBus_UnencodableData(t *testing.T) {
	bus := NewEventBus("test")
	var delivered atomic.Int32
	bus.On("ping", func(ctx context.Context, e Event) error {
		delivered.Add(1)
		return nil
	})

	err := bus.Emit(context.Background(), "ping", "", map[string]any{"fn": func() {}})
	assert.ErrorIs(t, err, ErrEventData)
	err = bus.EmitAsync(context.Background(), "ping", "", make(chan int))
	assert.ErrorIs(t, err, ErrEventData)
	assert.Zero(t, delivered.Load())

	require.NoError(t, bus.Emit(context.Background(), "ping", "", map[string]any{"ok": 1}))
	assert.EqualValues(t, 1, delivered.Load())
}

func TestModuleContext_EmitUnencodableData(t *testing.T) {
	m := NewManager()
	var emitErr error
	mod := newTestModule("a").withInit(func(mc *ModuleContext) error {
		emitErr = mc.Emit(context.Background(), "tick", func() {})
		return nil
	})
	require.NoError(t, m.Register(mod))
	assert.ErrorIs(t, emitErr, ErrEventData)
}
