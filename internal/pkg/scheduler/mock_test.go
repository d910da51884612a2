package scheduler

import (
	"context"
	"sync"

	"github.com/anicoll/homehub/internal/pkg/model"
)

type mockExecutor struct {
	mu         sync.Mutex
	submitted  []string
	SubmitFunc func(ctx context.Context, scriptID string)
}

func (m *mockExecutor) Submit(ctx context.Context, scriptID string) {
	m.mu.Lock()
	m.submitted = append(m.submitted, scriptID)
	m.mu.Unlock()
	if m.SubmitFunc != nil {
		m.SubmitFunc(ctx, scriptID)
	}
}

func (m *mockExecutor) Submitted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.submitted...)
}

type mockSource struct {
	SchedulesFunc func(ctx context.Context) ([]model.ScheduledScript, error)
	TriggersFunc  func(ctx context.Context) ([]model.VariableTrigger, error)
}

func (m *mockSource) Schedules(ctx context.Context) ([]model.ScheduledScript, error) {
	if m.SchedulesFunc != nil {
		return m.SchedulesFunc(ctx)
	}
	return nil, nil
}

func (m *mockSource) Triggers(ctx context.Context) ([]model.VariableTrigger, error) {
	if m.TriggersFunc != nil {
		return m.TriggersFunc(ctx)
	}
	return nil, nil
}
