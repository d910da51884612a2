package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/bus"
	"github.com/anicoll/homehub/internal/pkg/model"
)

var ErrInvalidTrigger = errors.New("scheduler: invalid trigger")

// TriggerSource lists the configured variable triggers.
type TriggerSource interface {
	Triggers(ctx context.Context) ([]model.VariableTrigger, error)
}

// Triggers submits scripts when a watched variable is updated.
type Triggers struct {
	executor Executor
	logger   *zap.Logger

	mu    sync.RWMutex
	byKey map[model.VariableKey][]string
}

func NewTriggers(executor Executor) *Triggers {
	return &Triggers{
		executor: executor,
		logger:   zap.L().Named("triggers"),
		byKey:    make(map[model.VariableKey][]string),
	}
}

func (t *Triggers) Add(trigger model.VariableTrigger) error {
	if trigger.ScriptID == "" || trigger.Gateway == "" || trigger.DeviceID == "" || trigger.Variable == "" {
		return fmt.Errorf("%w: %+v", ErrInvalidTrigger, trigger)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	key := trigger.Key()
	for _, id := range t.byKey[key] {
		if id == trigger.ScriptID {
			return nil
		}
	}
	t.byKey[key] = append(t.byKey[key], trigger.ScriptID)
	return nil
}

func (t *Triggers) Load(ctx context.Context, source TriggerSource) error {
	triggers, err := source.Triggers(ctx)
	if err != nil {
		return fmt.Errorf("load triggers: %w", err)
	}
	for _, trigger := range triggers {
		if err := t.Add(trigger); err != nil {
			return err
		}
	}
	t.logger.Info("loaded triggers", zap.Int("count", len(triggers)))
	return nil
}

// Listen subscribes to UpdateVariableMessages on b. Scripts run under ctx.
func (t *Triggers) Listen(ctx context.Context, b *bus.Bus) *bus.Subscription {
	return bus.Subscribe(b, "triggers", func(msg model.UpdateVariableMessage) error {
		t.Handle(ctx, msg)
		return nil
	})
}

// Handle submits every script watching msg's key and returns how many.
func (t *Triggers) Handle(ctx context.Context, msg model.UpdateVariableMessage) int {
	t.mu.RLock()
	scripts := t.byKey[msg.Key()]
	t.mu.RUnlock()

	for _, id := range scripts {
		t.logger.Debug("trigger fired", zap.String("script", id), zap.String("variable", msg.Name))
		t.executor.Submit(ctx, id)
	}
	return len(scripts)
}
