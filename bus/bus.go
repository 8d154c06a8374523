// Package bus provides the in-process publish/subscribe event bus used for
// orchestration observability. Publishing is fire-and-forget: a full buffer
// drops the event and a failing handler never reaches the publisher.
package bus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventKind identifies an event. The set of kinds emitted by the core is
// closed; anything else travels as an OpaqueEvent.
type EventKind string

const (
	KindHandoffInitiated         EventKind = "handoff.initiated"
	KindHandoffFallbackInitiated EventKind = "handoff.fallback.initiated"
	KindHandoffFallbackSucceeded EventKind = "handoff.fallback.succeeded"
	KindHandoffFailedPermanently EventKind = "handoff.failed.permanently"
	KindHandoffRecovered         EventKind = "handoff.recovered"
	KindToolExecutionRetry       EventKind = "tool.execution.retry"
	KindToolExecutionFailed      EventKind = "tool.execution.failed.permanently"
	KindOpaque                   EventKind = "opaque"
)

// subscriptionCounter generates unique subscription IDs.
var subscriptionCounter int64

// Event is the interface implemented by every event kind.
type Event interface {
	Timestamp() time.Time
	Kind() EventKind
}

// Handler processes a single event.
type Handler func(Event)

// Bus is the pub/sub interface consumed by the core.
type Bus interface {
	Publish(event Event)
	Subscribe(kind EventKind, handler Handler) string
	Unsubscribe(subscriptionID string)
	Stop()
}

// ChannelBus is a buffered-channel Bus implementation.
type ChannelBus struct {
	mu       sync.RWMutex
	handlers map[EventKind]map[string]Handler
	events   chan Event
	done     chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// New creates a channel-backed bus with the given buffer size.
func New(buffer int, logger *zap.Logger) *ChannelBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 100
	}
	b := &ChannelBus{
		handlers: make(map[EventKind]map[string]Handler),
		events:   make(chan Event, buffer),
		done:     make(chan struct{}),
		logger:   logger.With(zap.String("component", "event_bus")),
	}
	go b.dispatch()
	return b
}

// Publish enqueues an event. A full buffer drops the event so publishers
// never block.
func (b *ChannelBus) Publish(event Event) {
	select {
	case b.events <- event:
	case <-b.done:
	default:
		b.logger.Debug("event dropped, buffer full", zap.String("kind", string(event.Kind())))
	}
}

// Subscribe registers a handler for a kind and returns the subscription ID.
func (b *ChannelBus) Subscribe(kind EventKind, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[string]Handler)
	}
	id := fmt.Sprintf("%s-%d", kind, atomic.AddInt64(&subscriptionCounter, 1))
	b.handlers[kind][id] = handler
	return id
}

// Unsubscribe removes a subscription.
func (b *ChannelBus) Unsubscribe(subscriptionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind, handlers := range b.handlers {
		if _, ok := handlers[subscriptionID]; ok {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(b.handlers, kind)
			}
			return
		}
	}
}

func (b *ChannelBus) dispatch() {
	for {
		select {
		case event := <-b.events:
			b.mu.RLock()
			src := b.handlers[event.Kind()]
			handlers := make([]Handler, 0, len(src))
			for _, h := range src {
				handlers = append(handlers, h)
			}
			b.mu.RUnlock()

			for _, handler := range handlers {
				h := handler
				go func() {
					defer func() {
						if r := recover(); r != nil {
							b.logger.Error("event handler panicked", zap.Any("recover", r))
						}
					}()
					h(event)
				}()
			}
		case <-b.done:
			return
		}
	}
}

// Stop shuts the bus down. Pending events are discarded.
func (b *ChannelBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
}
