package variable

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/homehub/internal/pkg/bus"
	"github.com/anicoll/homehub/internal/pkg/model"
	"github.com/anicoll/homehub/internal/pkg/publisher"
	"github.com/anicoll/homehub/internal/pkg/script"
)

type mockPersister struct {
	LoadVariablesFunc func(ctx context.Context) ([]model.Variable, error)
}

func (m *mockPersister) LoadVariables(ctx context.Context) ([]model.Variable, error) {
	if m.LoadVariablesFunc != nil {
		return m.LoadVariablesFunc(ctx)
	}
	return nil, nil
}

type mockPublisher struct {
	mu          sync.Mutex
	batches     [][]model.Variable
	PublishFunc func(ctx context.Context, vars []model.Variable) error
	PendingFunc func() bool
}

func (m *mockPublisher) Pending() bool {
	if m.PendingFunc != nil {
		return m.PendingFunc()
	}
	return false
}

func (m *mockPublisher) Publish(ctx context.Context, vars []model.Variable) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, vars); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, vars)
	return nil
}

func (m *mockPublisher) Batches() [][]model.Variable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]model.Variable(nil), m.batches...)
}

func temperature(v any) model.UpdateVariableMessage {
	return model.UpdateVariableMessage{Gateway: "tado", DeviceID: "home1_zone1", Name: "Temperature", Value: v}
}

func TestStore_LastWriteWinsThroughBus(t *testing.T) {
	b := bus.New()
	t.Cleanup(b.Close)
	s := New(nil, nil)
	sub := s.Listen(b)
	t.Cleanup(sub.Close)

	b.Publish(temperature(21.5))
	b.Publish(temperature(22.0))

	assert.Eventually(t, func() bool {
		v, ok := s.Get("tado", "home1_zone1", "Temperature")
		return ok && v == 22.0
	}, time.Second, 5*time.Millisecond)
}

func TestStore_GetAndGetAll(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := New(nil, nil)
	s.now = func() time.Time { return now }

	s.Apply(temperature(21.5))
	s.Apply(model.UpdateVariableMessage{Gateway: "tado", DeviceID: "home1_zone1", Name: "Humidity", Value: 40.0})
	s.Apply(model.UpdateVariableMessage{Gateway: "tado", DeviceID: "home1_zone2", Name: "Humidity", Value: 55.0})

	v, ok := s.Get("tado", "home1_zone1", "Temperature")
	require.True(t, ok)
	assert.Equal(t, 21.5, v)

	_, ok = s.Get("tado", "home1_zone1", "temperature")
	assert.False(t, ok)

	rec, ok := s.GetRecord("tado", "home1_zone1", "Temperature")
	require.True(t, ok)
	assert.Equal(t, now, rec.Timestamp)

	assert.Equal(t, map[string]any{"Temperature": 21.5, "Humidity": 40.0}, s.GetAll("tado", "home1_zone1"))
	assert.Empty(t, s.GetAll("lifx", "abc"))
	assert.Len(t, s.Snapshot(), 3)
}

func TestStore_Init(t *testing.T) {
	persister := &mockPersister{LoadVariablesFunc: func(context.Context) ([]model.Variable, error) {
		return []model.Variable{
			{VariableKey: model.VariableKey{Gateway: "tado", DeviceID: "home1_zone1", Name: "Temperature"}, Value: 19.0},
			{VariableKey: model.VariableKey{Gateway: "tado", DeviceID: "home1_zone1", Name: "Mode"}, Value: "HOME"},
		}, nil
	}}
	s := New(persister, nil)
	s.Apply(temperature(21.5))

	require.NoError(t, s.Init(context.Background()))
	v, _ := s.Get("tado", "home1_zone1", "Temperature")
	assert.Equal(t, 21.5, v)
	v, _ = s.Get("tado", "home1_zone1", "Mode")
	assert.Equal(t, "HOME", v)

	failing := New(&mockPersister{LoadVariablesFunc: func(context.Context) ([]model.Variable, error) {
		return nil, errors.New("relation does not exist")
	}}, nil)
	assert.Error(t, failing.Init(context.Background()))
}

func TestStore_FlushBatchesChangedKeys(t *testing.T) {
	pub := &mockPublisher{}
	s := New(nil, pub)

	s.Apply(temperature(21.0))
	s.Apply(temperature(21.5))
	s.Apply(model.UpdateVariableMessage{Gateway: "tado", DeviceID: "home1_zone1", Name: "Humidity", Value: 40.0})
	require.NoError(t, s.Flush(context.Background()))
	require.NoError(t, s.Flush(context.Background()))

	batches := pub.Batches()
	require.Len(t, batches, 1)
	names := []string{}
	for _, v := range batches[0] {
		names = append(names, v.Name)
		if v.Name == "Temperature" {
			assert.Equal(t, 21.5, v.Value)
		}
	}
	sort.Strings(names)
	assert.Equal(t, []string{"Humidity", "Temperature"}, names)
}

type flakySink struct {
	mu     sync.Mutex
	down   bool
	writes [][]model.Variable
}

func (f *flakySink) Write(_ context.Context, vars []model.Variable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection lost")
	}
	f.writes = append(f.writes, vars)
	return nil
}

func (f *flakySink) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func TestStore_FailedSinkCatchesUpOnNextFlush(t *testing.T) {
	pub := publisher.New()
	flaky := &flakySink{down: true}
	healthy := &flakySink{}
	require.NoError(t, pub.Register("postgres", flaky))
	require.NoError(t, pub.Register("influx", healthy))

	s := New(nil, pub)
	s.Apply(temperature(21.5))

	err := s.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres")
	assert.Empty(t, flaky.writes)
	require.Len(t, healthy.writes, 1)

	flaky.setDown(false)
	require.NoError(t, s.Flush(context.Background()))
	require.Len(t, flaky.writes, 1)
	require.Len(t, flaky.writes[0], 1)
	assert.Equal(t, 21.5, flaky.writes[0][0].Value)
	assert.Len(t, healthy.writes, 1)

	require.NoError(t, s.Flush(context.Background()))
	assert.Len(t, flaky.writes, 1)
}

func TestStore_FlushSkipsIdlePublisher(t *testing.T) {
	pending := false
	pub := &mockPublisher{PendingFunc: func() bool { return pending }}
	s := New(nil, pub)

	require.NoError(t, s.Flush(context.Background()))
	assert.Empty(t, pub.Batches())

	pending = true
	require.NoError(t, s.Flush(context.Background()))
	require.Len(t, pub.Batches(), 1)
	assert.Empty(t, pub.Batches()[0])
}

func TestStore_RunFlushesOnTickAndShutdown(t *testing.T) {
	pub := &mockPublisher{}
	s := New(nil, pub, WithFlushInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	s.Apply(temperature(21.5))
	assert.Eventually(t, func() bool { return len(pub.Batches()) == 1 }, time.Second, 5*time.Millisecond)

	s.Apply(temperature(22.0))
	cancel()
	require.NoError(t, <-done)
	batches := pub.Batches()
	last := batches[len(batches)-1]
	assert.Equal(t, 22.0, last[0].Value)
}

func TestStore_ScriptBindings(t *testing.T) {
	s := New(nil, nil)
	s.Apply(temperature(21.5))

	var seen []any
	record := script.ProviderFunc(func() []script.Binding {
		return []script.Binding{{Name: "record", Value: script.Func(func(_ context.Context, args ...any) (any, error) {
			seen = append(seen, args...)
			return nil, nil
		})}}
	})
	bindings, err := script.NewBindings(s, record)
	require.NoError(t, err)

	err = script.NewLuaHost().Run(context.Background(), model.Script{ID: "v", Source: `
		record(variable("tado", "home1_zone1", "Temperature"))
		record(variable("tado", "home1_zone1", "Missing"))
		record(variables("tado", "home1_zone1").Temperature)
	`}, bindings)
	require.NoError(t, err)
	assert.Equal(t, []any{21.5, nil, 21.5}, seen)

	_, err = s.scriptVariable(context.Background(), "tado")
	assert.Error(t, err)
}
