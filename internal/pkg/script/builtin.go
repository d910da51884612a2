package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/model"
)

// MessagePublisher is the slice of the bus scripts publish through.
type MessagePublisher interface {
	Publish(msg model.Message)
}

// Builtins binds notify, command and log.
type Builtins struct {
	publisher MessagePublisher
	logger    *zap.Logger
}

func NewBuiltins(publisher MessagePublisher) *Builtins {
	return &Builtins{publisher: publisher, logger: zap.L().Named("script")}
}

func (b *Builtins) Bindings() []Binding {
	return []Binding{
		{Name: "notify", Value: Func(b.notify)},
		{Name: "command", Value: Func(b.command)},
		{Name: "log", Value: Func(b.log)},
	}
}

func (b *Builtins) notify(_ context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("notify: missing text")
	}
	b.publisher.Publish(model.NotifyUserMessage{Text: join(args)})
	return nil, nil
}

func (b *Builtins) command(_ context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("command: missing action id")
	}
	actionID, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("command: action id must be a string, got %T", args[0])
	}
	var params map[string]string
	if len(args) > 1 {
		var err error
		if params, err = StringMap(args[1]); err != nil {
			return nil, fmt.Errorf("command: %w", err)
		}
	}
	b.publisher.Publish(model.CommandMessage{ActionID: actionID, Parameters: params})
	return nil, nil
}

func (b *Builtins) log(_ context.Context, args ...any) (any, error) {
	b.logger.Info(join(args))
	return nil, nil
}

func join(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return strings.Join(parts, " ")
}
