package bus

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anicoll/homehub/internal/pkg/model"
)

type recorder struct {
	mu   sync.Mutex
	msgs []model.UpdateVariableMessage
}

func (r *recorder) listen(msg model.UpdateVariableMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) values() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Value)
	}
	return out
}

func update(v int) model.UpdateVariableMessage {
	return model.UpdateVariableMessage{Gateway: "tado", DeviceID: "home1_zone1", Name: "Temperature", Value: v}
}

func newObservedBus(t *testing.T) (*Bus, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	b := New()
	b.logger = zap.New(core)
	t.Cleanup(b.Close)
	return b, logs
}

func TestBus_EveryListenerReceivesInPublishOrder(t *testing.T) {
	b, _ := newObservedBus(t)
	const listeners, messages = 5, 200

	recorders := make([]*recorder, listeners)
	for i := range recorders {
		recorders[i] = &recorder{}
		Subscribe(b, fmt.Sprintf("r%d", i), recorders[i].listen)
	}

	want := make([]any, 0, messages)
	for i := range messages {
		b.Publish(update(i))
		want = append(want, i)
	}

	for _, r := range recorders {
		assert.Eventually(t, func() bool { return len(r.values()) == messages }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, want, r.values())
	}
}

func TestBus_ConcurrentPublishersShareOneOrder(t *testing.T) {
	b, _ := newObservedBus(t)
	a, c := &recorder{}, &recorder{}
	Subscribe(b, "a", a.listen)
	Subscribe(b, "c", c.listen)

	var wg sync.WaitGroup
	for p := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				b.Publish(update(p*1000 + i))
			}
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return len(a.values()) == 200 && len(c.values()) == 200 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, a.values(), c.values())
}

func TestBus_OnlyMatchingKindIsDelivered(t *testing.T) {
	b, _ := newObservedBus(t)
	notes := make(chan model.NotifyUserMessage, 4)
	Subscribe(b, "notes", func(msg model.NotifyUserMessage) error {
		notes <- msg
		return nil
	})

	b.Publish(update(1))
	b.Publish(model.NotifyUserMessage{Text: "hello"})

	select {
	case msg := <-notes:
		assert.Equal(t, "hello", msg.Text)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
	select {
	case msg := <-notes:
		t.Fatalf("unexpected delivery %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_FailingListenerDoesNotStopOthers(t *testing.T) {
	b, logs := newObservedBus(t)

	Subscribe(b, "erroring", func(model.UpdateVariableMessage) error {
		return errors.New("listener broke")
	})
	Subscribe(b, "panicking", func(model.UpdateVariableMessage) error {
		panic("listener exploded")
	})
	healthy := &recorder{}
	Subscribe(b, "healthy", healthy.listen)

	assert.NotPanics(t, func() {
		b.Publish(update(1))
		b.Publish(update(2))
	})

	assert.Eventually(t, func() bool { return len(healthy.values()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return logs.FilterMessage("listener failed").Len() == 2 && logs.FilterMessage("listener panicked").Len() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestBus_SlowListenerDoesNotBlockPublisher(t *testing.T) {
	b, _ := newObservedBus(t)
	release := make(chan struct{})
	Subscribe(b, "slow", func(model.UpdateVariableMessage) error {
		<-release
		return nil
	})
	fast := &recorder{}
	Subscribe(b, "fast", fast.listen)

	start := time.Now()
	for i := range 100 {
		b.Publish(update(i))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Eventually(t, func() bool { return len(fast.values()) == 100 }, time.Second, 5*time.Millisecond)
	close(release)
}

func TestBus_NoReplayForLateSubscribers(t *testing.T) {
	b, _ := newObservedBus(t)
	b.Publish(update(1))

	late := &recorder{}
	Subscribe(b, "late", late.listen)
	b.Publish(update(2))

	assert.Eventually(t, func() bool { return len(late.values()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []any{2}, late.values())
}

func listeners(b *Bus, kind model.Kind) int {
	b.mu.RLock()
	t, ok := b.topics[kind]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

func TestSubscription_Close(t *testing.T) {
	b, _ := newObservedBus(t)
	r := &recorder{}
	sub := Subscribe(b, "closing", r.listen)
	require.Equal(t, 1, listeners(b, model.KindUpdateVariable))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, listeners(b, model.KindUpdateVariable))

	b.Publish(update(1))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, r.values())
}

func TestSubscription_CloseFromOwnListener(t *testing.T) {
	b, _ := newObservedBus(t)
	r := &recorder{}
	var sub *Subscription
	sub = Subscribe(b, "once", func(msg model.UpdateVariableMessage) error {
		sub.Close()
		return r.listen(msg)
	})

	b.Publish(update(1))
	b.Publish(update(2))

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop")
	}
	assert.Equal(t, []any{1}, r.values())
	assert.Equal(t, 0, listeners(b, model.KindUpdateVariable))
}

func TestSubscription_DoneWaitsForInFlightDelivery(t *testing.T) {
	b, _ := newObservedBus(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	sub := Subscribe(b, "slow", func(model.UpdateVariableMessage) error {
		close(entered)
		<-release
		return nil
	})

	b.Publish(update(1))
	<-entered
	sub.Close()

	select {
	case <-sub.Done():
		t.Fatal("done before the listener returned")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop")
	}
}
