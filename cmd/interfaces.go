package cmd

import (
	"context"
	"time"

	"github.com/anicoll/homehub/internal/pkg/bus"
	"github.com/anicoll/homehub/internal/pkg/gateway"
	"github.com/anicoll/homehub/internal/pkg/model"
	"github.com/anicoll/homehub/internal/pkg/mqtt"
	"github.com/anicoll/homehub/internal/pkg/publisher"
	"github.com/anicoll/homehub/internal/pkg/scheduler"
	"github.com/anicoll/homehub/internal/pkg/script"
	"github.com/anicoll/homehub/internal/pkg/variable"
)

// ScriptSource is where run reads scripts, schedules and variable triggers from.
type ScriptSource interface {
	script.Repository
	scheduler.ScheduleSource
	scheduler.TriggerSource
}

// HistoryStore serves and prunes recorded variable history.
type HistoryStore interface {
	GetHistory(ctx context.Context, key model.VariableKey, from, to *time.Time) ([]model.Variable, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// MessageBridge relays bus messages to and from an external broker.
type MessageBridge interface {
	Listen(b *bus.Bus) []*bus.Subscription
	SubscribeCommands(publisher mqtt.MessagePublisher) error
}

type namedSink struct {
	name string
	sink publisher.Sink
}

// dependencies are the external systems run is wired to. Every field may be
// left empty; the hub then runs without that capability.
type dependencies struct {
	Devices   gateway.DeviceStore
	Variables variable.Persister
	Scripts   ScriptSource
	History   HistoryStore
	Bridge    MessageBridge
	Sinks     []namedSink
	// Runners are long-running loops of the dependencies themselves.
	Runners []func(ctx context.Context) error
}

func (d *dependencies) addSink(name string, sink publisher.Sink) {
	d.Sinks = append(d.Sinks, namedSink{name: name, sink: sink})
}

// noScripts is used when neither a database nor a scripts file is configured.
type noScripts struct{}

func (noScripts) GetScript(context.Context, string) (*model.Script, error) {
	return nil, nil
}

func (noScripts) Schedules(context.Context) ([]model.ScheduledScript, error) {
	return nil, nil
}

func (noScripts) Triggers(context.Context) ([]model.VariableTrigger, error) {
	return nil, nil
}
