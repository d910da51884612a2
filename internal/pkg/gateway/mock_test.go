package gateway

import (
	"context"
	"sync"

	"github.com/anicoll/homehub/internal/pkg/model"
)

type mockStore struct {
	LoadDevicesFunc  func(ctx context.Context, gateway string) ([]model.Device, error)
	SaveDeviceFunc   func(ctx context.Context, gateway string, device model.Device) error
	DeleteDeviceFunc func(ctx context.Context, gateway, id string) error
}

func (m *mockStore) LoadDevices(ctx context.Context, gateway string) ([]model.Device, error) {
	if m.LoadDevicesFunc != nil {
		return m.LoadDevicesFunc(ctx, gateway)
	}
	return nil, nil
}

func (m *mockStore) SaveDevice(ctx context.Context, gateway string, device model.Device) error {
	if m.SaveDeviceFunc != nil {
		return m.SaveDeviceFunc(ctx, gateway, device)
	}
	return nil
}

func (m *mockStore) DeleteDevice(ctx context.Context, gateway, id string) error {
	if m.DeleteDeviceFunc != nil {
		return m.DeleteDeviceFunc(ctx, gateway, id)
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

type mockGateway struct {
	*Base
	ActionsFunc       func(device model.Device) []model.Action
	StartFunc         func(ctx context.Context) error
	ExecuteActionFunc func(ctx context.Context, device model.Device, action model.Action, values map[string]string) error
	ShutdownFunc      func() error
}

func newMockGateway(name string, opts ...Option) *mockGateway {
	return &mockGateway{Base: NewBase(name, &recordingPublisher{}, opts...)}
}

func (m *mockGateway) Actions(device model.Device) []model.Action {
	if m.ActionsFunc != nil {
		return m.ActionsFunc(device)
	}
	return nil
}

func (m *mockGateway) Start(ctx context.Context) error {
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockGateway) ExecuteAction(ctx context.Context, device model.Device, action model.Action, values map[string]string) error {
	if m.ExecuteActionFunc != nil {
		return m.ExecuteActionFunc(ctx, device, action, values)
	}
	return nil
}

func (m *mockGateway) Shutdown() error {
	if m.ShutdownFunc != nil {
		return m.ShutdownFunc()
	}
	return nil
}
