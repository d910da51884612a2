// Package bus is the process-wide typed publish/subscribe hub.
//
// Publish is synchronous only as far as enqueueing: every subscription owns an
// unbounded mailbox drained by its own goroutine, so a slow listener never
// blocks the publisher or other listeners. Publishes of one kind are
// serialized, which gives every listener of that kind the same order.
// Delivery is at-most-once with no replay for late subscribers.
package bus

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/model"
)

type Bus struct {
	mu     sync.RWMutex
	topics map[model.Kind]*topic
	closed bool
	logger *zap.Logger
}

type topic struct {
	mu   sync.Mutex
	subs []*Subscription
}

func New() *Bus {
	return &Bus{
		topics: make(map[model.Kind]*topic),
		logger: zap.L().Named("bus"),
	}
}

// Publish enqueues msg for every listener currently subscribed to its kind.
func (b *Bus) Publish(msg model.Message) {
	if msg == nil {
		return
	}
	b.mu.RLock()
	t, ok := b.topics[msg.Kind()]
	closed := b.closed
	b.mu.RUnlock()
	if !ok || closed {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.subs {
		s.enqueue(msg)
	}
}

// Subscribe registers listener for messages of type T, which must be a
// concrete message struct. name identifies the listener in logs.
func Subscribe[T model.Message](b *Bus, name string, listener func(T) error) *Subscription {
	var zero T
	return b.subscribe(zero.Kind(), name, func(msg model.Message) error {
		typed, ok := msg.(T)
		if !ok {
			return fmt.Errorf("unexpected message type %T for kind %s", msg, msg.Kind())
		}
		return listener(typed)
	})
}

func (b *Bus) subscribe(kind model.Kind, name string, deliver func(model.Message) error) *Subscription {
	s := &Subscription{
		kind:    kind,
		name:    name,
		bus:     b,
		deliver: deliver,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  b.logger.With(zap.String("listener", name), zap.String("kind", kind.String())),
	}

	b.mu.Lock()
	t, ok := b.topics[kind]
	if !ok {
		t = &topic{}
		b.topics[kind] = t
	}
	b.mu.Unlock()

	t.mu.Lock()
	subs := make([]*Subscription, 0, len(t.subs)+1)
	subs = append(subs, t.subs...)
	t.subs = append(subs, s)
	t.mu.Unlock()

	go s.loop()
	return s
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.RLock()
	t, ok := b.topics[s.kind]
	b.mu.RUnlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	subs := make([]*Subscription, 0, len(t.subs))
	for _, existing := range t.subs {
		if existing != s {
			subs = append(subs, existing)
		}
	}
	t.subs = subs
}

// Close stops every subscription. Later publishes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	var subs []*Subscription
	for _, t := range b.topics {
		t.mu.Lock()
		subs = append(subs, t.subs...)
		t.mu.Unlock()
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}
