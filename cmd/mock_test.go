package cmd

import (
	"context"
	"sync"
	"time"

	"github.com/anicoll/homehub/internal/pkg/bus"
	"github.com/anicoll/homehub/internal/pkg/model"
	"github.com/anicoll/homehub/internal/pkg/mqtt"
)

type mockScripts struct {
	GetScriptFunc func(ctx context.Context, id string) (*model.Script, error)
	SchedulesFunc func(ctx context.Context) ([]model.ScheduledScript, error)
	TriggersFunc  func(ctx context.Context) ([]model.VariableTrigger, error)
}

func (m *mockScripts) GetScript(ctx context.Context, id string) (*model.Script, error) {
	if m.GetScriptFunc != nil {
		return m.GetScriptFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockScripts) Schedules(ctx context.Context) ([]model.ScheduledScript, error) {
	if m.SchedulesFunc != nil {
		return m.SchedulesFunc(ctx)
	}
	return nil, nil
}

func (m *mockScripts) Triggers(ctx context.Context) ([]model.VariableTrigger, error) {
	if m.TriggersFunc != nil {
		return m.TriggersFunc(ctx)
	}
	return nil, nil
}

type mockHistory struct {
	GetHistoryFunc func(ctx context.Context, key model.VariableKey, from, to *time.Time) ([]model.Variable, error)
	CleanupFunc    func(ctx context.Context, retention time.Duration) (int64, error)
}

func (m *mockHistory) GetHistory(ctx context.Context, key model.VariableKey, from, to *time.Time) ([]model.Variable, error) {
	if m.GetHistoryFunc != nil {
		return m.GetHistoryFunc(ctx, key, from, to)
	}
	return nil, nil
}

func (m *mockHistory) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if m.CleanupFunc != nil {
		return m.CleanupFunc(ctx, retention)
	}
	return 0, nil
}

// mockBridge hands the hub's bus to the test once run has wired it.
type mockBridge struct {
	SubscribeCommandsFunc func(publisher mqtt.MessagePublisher) error

	once  sync.Once
	ready chan *bus.Bus
}

func newMockBridge() *mockBridge {
	return &mockBridge{ready: make(chan *bus.Bus, 1)}
}

func (m *mockBridge) Listen(b *bus.Bus) []*bus.Subscription {
	m.once.Do(func() { m.ready <- b })
	return nil
}

func (m *mockBridge) SubscribeCommands(publisher mqtt.MessagePublisher) error {
	if m.SubscribeCommandsFunc != nil {
		return m.SubscribeCommandsFunc(publisher)
	}
	return nil
}

type recordingSink struct {
	mu   sync.Mutex
	vars []model.Variable
}

func (s *recordingSink) Write(_ context.Context, vars []model.Variable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars = append(s.vars, vars...)
	return nil
}

func (s *recordingSink) written() []model.Variable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Variable(nil), s.vars...)
}
