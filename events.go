package oors

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event is the CloudEvents envelope used on the kernel bus.
type Event = cloudevents.Event

// Kernel event types. Module scoped events are built with ModuleEvent.
const (
	EventBeforeSetup      = "before:setup"
	EventAfterSetup       = "after:setup"
	EventSetupFailed      = "setup:failed"
	EventModuleRegistered = "module:registered"
	EventModuleLoaded     = "module:loaded"
	EventModuleFailed     = "module:failed"
	EventConfigChanged    = "config:changed"

	// EventAny subscribes to every event.
	EventAny = "*"
)

// ModuleEvent returns the type of an event scoped to one module, e.g.
// "module:router:after:setup".
func ModuleEvent(module, event string) string {
	return "module:" + module + ":" + event
}

// EventHandler handles a single event.
type EventHandler func(ctx context.Context, event Event) error

// ModulePayload is the data carried by module lifecycle events.
type ModulePayload struct {
	Module string      `json:"module"`
	State  ModuleState `json:"state,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// NewEvent creates a CloudEvent with a time ordered id. Data, when not nil,
// is encoded as JSON; data that cannot be encoded is an ErrEventData error.
func NewEvent(eventType, source, subject string, data any) (Event, error) {
	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	if subject != "" {
		event.SetSubject(subject)
	}
	if data != nil {
		if err := event.SetData(cloudevents.ApplicationJSON, data); err != nil {
			return event, fmt.Errorf("%w: %s: %w", ErrEventData, eventType, err)
		}
	}
	return event, nil
}

// generateEventID generates a UUIDv7, falling back to v4.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

type subscription struct {
	id      uint64
	handler EventHandler
	once    bool
	fired   atomic.Bool
}

// EventBus is a named-event publish/subscribe bus. Handlers for an event
// type run in subscription order.
type EventBus struct {
	mu     sync.RWMutex
	source string
	subs   map[string][]*subscription
	nextID uint64
}

// NewEventBus creates a bus whose events carry the given CloudEvents source.
func NewEventBus(source string) *EventBus {
	return &EventBus{
		source: source,
		subs:   make(map[string][]*subscription),
	}
}

// On subscribes handler to eventType. The returned function removes it.
func (b *EventBus) On(eventType string, handler EventHandler) func() {
	return b.subscribe(eventType, handler, false)
}

// Once subscribes handler for a single delivery.
func (b *EventBus) Once(eventType string, handler EventHandler) func() {
	return b.subscribe(eventType, handler, true)
}

func (b *EventBus) subscribe(eventType string, handler EventHandler, once bool) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &subscription{id: b.nextID, handler: handler, once: once}
	b.subs[eventType] = append(b.subs[eventType], sub)

	return func() { b.remove(eventType, sub.id) }
}

func (b *EventBus) remove(eventType string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[eventType] = slices.DeleteFunc(b.subs[eventType], func(s *subscription) bool {
		return s.id == id
	})
	if len(b.subs[eventType]) == 0 {
		delete(b.subs, eventType)
	}
}

// ListenerCount returns how many handlers would receive eventType,
// wildcard subscribers included.
func (b *EventBus) ListenerCount(eventType string) int {
	return len(b.listeners(eventType))
}

func (b *EventBus) listeners(eventType string) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := append([]*subscription(nil), b.subs[eventType]...)
	if eventType != EventAny {
		subs = append(subs, b.subs[EventAny]...)
	}
	slices.SortFunc(subs, func(a, c *subscription) int {
		return cmp.Compare(a.id, c.id)
	})
	return subs
}

// claim reports whether sub should run for this delivery, detaching once
// subscriptions on first use.
func (b *EventBus) claim(eventType string, sub *subscription) bool {
	if !sub.once {
		return true
	}
	if !sub.fired.CompareAndSwap(false, true) {
		return false
	}
	b.remove(eventType, sub.id)
	b.remove(EventAny, sub.id)
	return true
}

// Emit builds an event and delivers it synchronously to every handler in
// subscription order. Handler errors are joined; all handlers run. Nothing
// is delivered when data cannot be encoded.
func (b *EventBus) Emit(ctx context.Context, eventType, subject string, data any) error {
	event, err := NewEvent(eventType, b.source, subject, data)
	if err != nil {
		return err
	}
	return b.Publish(ctx, event)
}

// Publish delivers an already built event synchronously.
func (b *EventBus) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, sub := range b.listeners(event.Type()) {
		if !b.claim(event.Type(), sub) {
			continue
		}
		if err := sub.handler(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", event.Type(), err))
		}
	}
	return errors.Join(errs...)
}

// EmitAsync delivers the event to every handler concurrently and waits for
// all of them to return.
func (b *EventBus) EmitAsync(ctx context.Context, eventType, subject string, data any) error {
	event, err := NewEvent(eventType, b.source, subject, data)
	if err != nil {
		return err
	}

	subs := b.listeners(eventType)
	errs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		if !b.claim(eventType, sub) {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sub.handler(ctx, event); err != nil {
				errs[i] = fmt.Errorf("event %s: %w", eventType, err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
