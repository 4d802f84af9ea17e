package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type identifies a lifecycle event on the bus.
type Type string

const (
	OrderCompleted Type = "order_completed"
	OrderCancelled Type = "order_cancelled"
	StartBot       Type = "start_bot"
	StopBot        Type = "stop_bot"
)

// Event is the transient payload delivered to subscribers. It exists only for
// the duration of a publish call and is never persisted.
type Event struct {
	Type    Type
	Payload interface{}
	Time    time.Time
}

// HandlerFunc receives a published event. Handlers must not panic the bus:
// panics are recovered, logged and isolated from sibling subscribers.
type HandlerFunc func(ctx context.Context, event Event)

// subscription pins the handler variant at subscribe time. Sync handlers run
// inline on PublishSync; async handlers always get their own goroutine.
type subscription struct {
	fn    HandlerFunc
	async bool
}

// Bus is the pub/sub hub connecting the engine components. It is the only
// cross-component communication channel for lifecycle events.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Type][]subscription
	logger      *zap.SugaredLogger

	// pending counts in-flight async handlers. A cond instead of a WaitGroup:
	// the live poll loop publishes concurrently with the tick loop's Wait, a
	// reuse pattern WaitGroup forbids when the counter hits zero.
	pendingMu   sync.Mutex
	pendingCond *sync.Cond
	pending     int
}

// NewBus creates an empty event bus.
func NewBus(logger *zap.SugaredLogger) *Bus {
	b := &Bus{
		subscribers: make(map[Type][]subscription),
		logger:      logger,
	}
	b.pendingCond = sync.NewCond(&b.pendingMu)
	return b
}

// Subscribe registers a synchronous handler: PublishSync invokes it inline on
// the caller's goroutine.
func (b *Bus) Subscribe(eventType Type, fn HandlerFunc) {
	b.addSubscription(eventType, subscription{fn: fn, async: false})
}

// SubscribeAsync registers an asynchronous handler: it always runs on its own
// goroutine, regardless of how the event was published.
func (b *Bus) SubscribeAsync(eventType Type, fn HandlerFunc) {
	b.addSubscription(eventType, subscription{fn: fn, async: true})
}

func (b *Bus) addSubscription(eventType Type, sub subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	b.logger.Debugf("Handler subscribed to event: %s", eventType)
}

// Publish fans an event out to all subscribers concurrently and waits until
// every handler has returned. A failing handler never affects its siblings or
// the publisher.
func (b *Bus) Publish(ctx context.Context, eventType Type, payload interface{}) {
	subs := b.snapshot(eventType)
	if len(subs) == 0 {
		return
	}

	event := Event{Type: eventType, Payload: payload, Time: time.Now()}
	b.logger.Debugf("Publishing event: %s", eventType)

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s subscription) {
			defer wg.Done()
			b.safeInvoke(ctx, s, event)
		}(sub)
	}
	wg.Wait()
}

// PublishSync delivers an event without blocking on async subscribers: sync
// handlers run inline on the caller's goroutine, async handlers are scheduled
// and tracked so Wait can drain them at shutdown.
func (b *Bus) PublishSync(eventType Type, payload interface{}) {
	subs := b.snapshot(eventType)
	if len(subs) == 0 {
		return
	}

	event := Event{Type: eventType, Payload: payload, Time: time.Now()}
	b.logger.Debugf("Publishing sync event: %s", eventType)

	for _, sub := range subs {
		if sub.async {
			b.dispatchStarted()
			go func(s subscription) {
				defer b.dispatchFinished()
				b.safeInvoke(context.Background(), s, event)
			}(sub)
		} else {
			b.safeInvoke(context.Background(), sub, event)
		}
	}
}

// Wait blocks until all async handlers scheduled by PublishSync have returned.
// Safe to call while other goroutines keep publishing.
func (b *Bus) Wait() {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	for b.pending > 0 {
		b.pendingCond.Wait()
	}
}

func (b *Bus) dispatchStarted() {
	b.pendingMu.Lock()
	b.pending++
	b.pendingMu.Unlock()
}

func (b *Bus) dispatchFinished() {
	b.pendingMu.Lock()
	b.pending--
	if b.pending == 0 {
		b.pendingCond.Broadcast()
	}
	b.pendingMu.Unlock()
}

// Clear drops all subscriptions for the given event type, or every
// subscription when no type is given.
func (b *Bus) Clear(eventTypes ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(eventTypes) == 0 {
		b.subscribers = make(map[Type][]subscription)
		return
	}
	for _, t := range eventTypes {
		delete(b.subscribers, t)
	}
}

func (b *Bus) snapshot(eventType Type) []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.subscribers[eventType]
	if len(subs) == 0 {
		return nil
	}
	cpy := make([]subscription, len(subs))
	copy(cpy, subs)
	return cpy
}

func (b *Bus) safeInvoke(ctx context.Context, sub subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("Panic in subscriber for event %s: %v", event.Type, r)
		}
	}()
	sub.fn(ctx, event)
}
