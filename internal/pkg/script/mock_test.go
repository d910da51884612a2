package script

import (
	"context"
	"sync"

	"github.com/anicoll/homehub/internal/pkg/model"
)

type mockRepository struct {
	GetScriptFunc func(ctx context.Context, id string) (*model.Script, error)
}

func (m *mockRepository) GetScript(ctx context.Context, id string) (*model.Script, error) {
	if m.GetScriptFunc != nil {
		return m.GetScriptFunc(ctx, id)
	}
	return nil, nil
}

type mockHost struct {
	RunFunc func(ctx context.Context, s model.Script, bindings *Bindings) error
}

func (m *mockHost) Run(ctx context.Context, s model.Script, bindings *Bindings) error {
	if m.RunFunc != nil {
		return m.RunFunc(ctx, s, bindings)
	}
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []model.Message
}

func (p *recordingPublisher) Publish(msg model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func (p *recordingPublisher) Messages() []model.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Message(nil), p.msgs...)
}

func scriptRepo(scripts ...model.Script) *mockRepository {
	return &mockRepository{
		GetScriptFunc: func(_ context.Context, id string) (*model.Script, error) {
			for _, s := range scripts {
				if s.ID == id {
					return &s, nil
				}
			}
			return nil, nil
		},
	}
}
