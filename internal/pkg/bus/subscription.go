package bus

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/model"
)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	kind    model.Kind
	name    string
	bus     *Bus
	deliver func(model.Message) error
	logger  *zap.Logger

	mu    sync.Mutex
	queue []model.Message

	signal    chan struct{}
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func (s *Subscription) Kind() model.Kind {
	return s.kind
}

// Close unregisters the listener and discards messages still queued. It
// does not wait for an in-flight delivery, so a listener may close its own
// subscription. Wait on Done to know the listener has returned.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.unsubscribe(s)
		close(s.done)
	})
}

// Done is closed once the subscription is closed and no delivery is running.
func (s *Subscription) Done() <-chan struct{} {
	return s.stopped
}

func (s *Subscription) enqueue(msg model.Message) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) loop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		for {
			s.mu.Lock()
			batch := s.queue
			s.queue = nil
			s.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, msg := range batch {
				select {
				case <-s.done:
					return
				default:
				}
				s.notify(msg)
			}
		}
	}
}

func (s *Subscription) notify(msg model.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("listener panicked", zap.Error(fmt.Errorf("%v", r)))
		}
	}()
	if err := s.deliver(msg); err != nil {
		s.logger.Error("listener failed", zap.Error(err))
	}
}
