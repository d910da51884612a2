// Package variable aggregates the latest value of every device variable
// reported on the bus.
package variable

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/bus"
	"github.com/anicoll/homehub/internal/pkg/model"
)

const DefaultFlushInterval = 10 * time.Second

// Persister restores the table at startup.
type Persister interface {
	LoadVariables(ctx context.Context) ([]model.Variable, error)
}

// Publisher receives changed variables on every flush. It keeps whatever
// a destination failed to store and reports it through Pending until a
// later Publish delivers it.
type Publisher interface {
	Publish(ctx context.Context, vars []model.Variable) error
	Pending() bool
}

// Store is the in-memory variable table. Updates are applied in bus order
// so the last published value wins. Changed keys are written behind in
// batches by Run.
type Store struct {
	persister Persister
	publisher Publisher
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger

	mu     sync.RWMutex
	values map[model.VariableKey]model.Variable
	dirty  map[model.VariableKey]struct{}
}

type Option func(*Store)

func WithFlushInterval(d time.Duration) Option {
	return func(s *Store) {
		s.interval = d
	}
}

func New(persister Persister, publisher Publisher, opts ...Option) *Store {
	s := &Store{
		persister: persister,
		publisher: publisher,
		interval:  DefaultFlushInterval,
		now:       time.Now,
		logger:    zap.L().Named("variable"),
		values:    make(map[model.VariableKey]model.Variable),
		dirty:     make(map[model.VariableKey]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init loads previously persisted values. Keys already updated from the bus
// are not overwritten.
func (s *Store) Init(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	vars, err := s.persister.LoadVariables(ctx)
	if err != nil {
		return fmt.Errorf("load variables: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vars {
		if _, ok := s.values[v.VariableKey]; ok {
			continue
		}
		s.values[v.VariableKey] = v
	}
	s.logger.Info("loaded variables", zap.Int("count", len(vars)))
	return nil
}

// Listen subscribes the store to UpdateVariableMessages on b.
func (s *Store) Listen(b *bus.Bus) *bus.Subscription {
	return bus.Subscribe(b, "variables", func(msg model.UpdateVariableMessage) error {
		s.Apply(msg)
		return nil
	})
}

// Apply upserts the variable carried by msg.
func (s *Store) Apply(msg model.UpdateVariableMessage) {
	key := msg.Key()
	s.mu.Lock()
	s.values[key] = model.Variable{VariableKey: key, Value: msg.Value, Timestamp: s.now()}
	s.dirty[key] = struct{}{}
	s.mu.Unlock()
}

func (s *Store) Get(gateway, deviceID, name string) (any, bool) {
	v, ok := s.GetRecord(gateway, deviceID, name)
	return v.Value, ok
}

func (s *Store) GetRecord(gateway, deviceID, name string) (model.Variable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[model.VariableKey{Gateway: gateway, DeviceID: deviceID, Name: name}]
	return v, ok
}

// GetAll returns every variable of one device keyed by name.
func (s *Store) GetAll(gateway, deviceID string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any)
	for key, v := range s.values {
		if key.Gateway == gateway && key.DeviceID == deviceID {
			out[key.Name] = v.Value
		}
	}
	return out
}

// Snapshot returns a copy of the whole table.
func (s *Store) Snapshot() []model.Variable {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Variable, 0, len(s.values))
	for _, v := range s.values {
		out = append(out, v)
	}
	return out
}

// Run flushes changed variables every interval until ctx is done, then
// flushes once more.
func (s *Store) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Flush(flushCtx); err != nil {
				s.logger.Error("final flush failed", zap.Error(err))
			}
			return nil
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.logger.Error("flush failed", zap.Error(err))
			}
		}
	}
}

// Flush hands the variables changed since the last flush to the publisher.
// It also runs when nothing changed but the publisher still holds a failed
// batch, so a recovered destination catches up without a new update.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	dirty := s.dirty
	s.dirty = make(map[model.VariableKey]struct{})
	batch := make([]model.Variable, 0, len(dirty))
	for key := range dirty {
		batch = append(batch, s.values[key])
	}
	s.mu.Unlock()

	if s.publisher == nil {
		return nil
	}
	if len(batch) == 0 && !s.publisher.Pending() {
		return nil
	}
	if err := s.publisher.Publish(ctx, batch); err != nil {
		return err
	}
	s.logger.Debug("flushed variables", zap.Int("count", len(batch)))
	return nil
}
