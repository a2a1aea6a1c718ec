package memory

import (
	"context"
	"sync"

	"github.com/aescanero/carecoord/pkg/domain"
	"github.com/aescanero/carecoord/pkg/ports"
	"go.uber.org/zap"
)

const subscriptionBuffer = 64

// subscription delivers events to one handler in publish order
type subscription struct {
	handler ports.EventHandler
	events  chan domain.Event
	done    chan struct{}
	once    sync.Once
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// EventBus implements ports.EventBus in process. Each subscriber gets its
// own buffered queue; a full queue drops the event for that subscriber.
type EventBus struct {
	subscribers map[string][]*subscription
	mu          sync.RWMutex
	logger      *zap.Logger
}

// NewEventBus creates a new in-memory event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string][]*subscription),
		logger:      logger,
	}
}

// Publish publishes an event to all subscribers of a topic
func (e *EventBus) Publish(ctx context.Context, topic string, event domain.Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, sub := range e.subscribers[topic] {
		select {
		case sub.events <- event:
		case <-sub.done:
		default:
			e.logger.Warn("subscriber queue full, dropping event",
				zap.String("topic", topic),
				zap.String("event_id", event.ID))
		}
	}

	return nil
}

// Subscribe registers handler on topic until ctx is cancelled
func (e *EventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	sub := &subscription{
		handler: handler,
		events:  make(chan domain.Event, subscriptionBuffer),
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	e.subscribers[topic] = append(e.subscribers[topic], sub)
	e.mu.Unlock()

	go e.deliver(ctx, topic, sub)

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.done:
		}
		e.unsubscribe(topic, sub)
	}()

	return nil
}

// Unsubscribe removes all subscriptions from a topic
func (e *EventBus) Unsubscribe(ctx context.Context, topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, sub := range e.subscribers[topic] {
		sub.stop()
	}
	delete(e.subscribers, topic)
	return nil
}

// Close closes the event bus and cleans up resources
func (e *EventBus) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, subs := range e.subscribers {
		for _, sub := range subs {
			sub.stop()
		}
	}
	e.subscribers = make(map[string][]*subscription)
	return nil
}

func (e *EventBus) deliver(ctx context.Context, topic string, sub *subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case event := <-sub.events:
			if err := sub.handler(ctx, event); err != nil {
				e.logger.Warn("event handler failed",
					zap.String("topic", topic),
					zap.String("event_id", event.ID),
					zap.Error(err))
			}
		}
	}
}

// unsubscribe removes a single subscription from a topic
func (e *EventBus) unsubscribe(topic string, sub *subscription) {
	sub.stop()

	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.subscribers[topic]
	for i, s := range subs {
		if s == sub {
			e.subscribers[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(e.subscribers[topic]) == 0 {
		delete(e.subscribers, topic)
	}
}
