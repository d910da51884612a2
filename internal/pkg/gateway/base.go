package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/model"
)

const saveTimeout = 5 * time.Second

// Base implements the device bookkeeping shared by all gateways. Plugins
// embed *Base and supply Actions, Start and ExecuteAction.
//
// The device set is copy-on-write: readers take the current slice under a
// read lock and never observe a partially updated device.
type Base struct {
	name       string
	canCreate  bool
	properties []model.PropertySpec
	store      DeviceStore
	publisher  MessagePublisher
	logger     *zap.Logger

	mu      sync.RWMutex
	devices []model.Device
}

type Option func(*Base)

// WithDeviceCreation lets users create devices declaring the given properties.
func WithDeviceCreation(properties ...model.PropertySpec) Option {
	return func(b *Base) {
		b.canCreate = true
		b.properties = properties
	}
}

// WithStore sets where user-created devices are persisted.
func WithStore(store DeviceStore) Option {
	return func(b *Base) {
		b.store = store
	}
}

func NewBase(name string, publisher MessagePublisher, opts ...Option) *Base {
	b := &Base{
		name:      name,
		publisher: publisher,
		logger:    zap.L().Named("gateway").With(zap.String("gateway", name)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Base) Name() string {
	return b.name
}

func (b *Base) Logger() *zap.Logger {
	return b.logger
}

func (b *Base) CanCreateDevices() bool {
	return b.canCreate
}

func (b *Base) DeviceProperties() []model.PropertySpec {
	return append([]model.PropertySpec(nil), b.properties...)
}

func (b *Base) Devices() []model.Device {
	b.mu.RLock()
	devices := b.devices
	b.mu.RUnlock()

	out := make([]model.Device, len(devices))
	for i, d := range devices {
		out[i] = d.Clone()
	}
	return out
}

// Device returns the device with the given id.
func (b *Base) Device(id string) (model.Device, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, d := range b.devices {
		if d.ID == id {
			return d.Clone(), true
		}
	}
	return model.Device{}, false
}

// Actions is the default for gateways without actions.
func (b *Base) Actions(model.Device) []model.Action {
	return nil
}

// ExecuteAction is the default for gateways without actions.
func (b *Base) ExecuteAction(context.Context, model.Device, model.Action, map[string]string) error {
	return ErrUnsupported
}

func (b *Base) Shutdown() error {
	return nil
}

// CreateEmptyDevice returns a blank device carrying every declared property.
func (b *Base) CreateEmptyDevice() (model.Device, error) {
	if !b.canCreate {
		return model.Device{}, ErrUnsupported
	}
	props := make(map[string]string, len(b.properties))
	for _, p := range b.properties {
		props[p.Name] = ""
	}
	return model.Device{Properties: props, Battery: model.BatteryUnknown}, nil
}

// AddDevice adds a user-created device and persists it. A failed save is
// logged and the device stays registered in memory.
func (b *Base) AddDevice(ctx context.Context, device model.Device) error {
	if !b.canCreate {
		return ErrUnsupported
	}
	if err := device.Validate(b.properties); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDevice, err)
	}
	if device.Battery == "" {
		device.Battery = model.BatteryUnknown
	}
	if !b.insert(device.Clone()) {
		return fmt.Errorf("%w: %s", ErrDeviceExists, device.ID)
	}

	if b.store == nil {
		return nil
	}
	saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	if err := b.store.SaveDevice(saveCtx, b.name, device); err != nil {
		b.logger.Error("failed to save device", zap.String("device", device.ID), zap.Error(err))
	}
	return nil
}

// LoadDevices restores persisted devices. Invalid or duplicate records are
// skipped.
func (b *Base) LoadDevices(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	devices, err := b.store.LoadDevices(ctx, b.name)
	if err != nil {
		return fmt.Errorf("load devices: %w", err)
	}
	for _, d := range devices {
		if err := d.Validate(b.properties); err != nil {
			b.logger.Warn("skipping stored device", zap.String("device", d.ID), zap.Error(err))
			continue
		}
		if !b.insert(d.Clone()) {
			b.logger.Debug("stored device already present", zap.String("device", d.ID))
		}
	}
	return nil
}

// Discover registers a device found by polling the vendor. It reports
// whether the device was new; at most one device exists per id.
func (b *Base) Discover(device model.Device) bool {
	if device.Battery == "" {
		device.Battery = model.BatteryUnknown
	}
	added := b.insert(device.Clone())
	if added {
		b.logger.Info("discovered device", zap.String("device", device.ID), zap.String("name", device.Name))
	}
	return added
}

// UpdateDevice replaces the device with fn applied to a copy of it.
func (b *Base) UpdateDevice(id string, fn func(*model.Device)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, d := range b.devices {
		if d.ID != id {
			continue
		}
		updated := d.Clone()
		fn(&updated)
		updated.ID = id
		devices := make([]model.Device, len(b.devices))
		copy(devices, b.devices)
		devices[i] = updated
		b.devices = devices
		return true
	}
	return false
}

// RemoveDevice deletes a device on user request.
func (b *Base) RemoveDevice(ctx context.Context, id string) error {
	b.mu.Lock()
	devices := make([]model.Device, 0, len(b.devices))
	found := false
	for _, d := range b.devices {
		if d.ID == id {
			found = true
			continue
		}
		devices = append(devices, d)
	}
	if found {
		b.devices = devices
	}
	b.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	if b.store != nil {
		if err := b.store.DeleteDevice(ctx, b.name, id); err != nil {
			b.logger.Error("failed to delete device", zap.String("device", id), zap.Error(err))
		}
	}
	return nil
}

// UpdateVariable publishes a new variable value for one of the gateway's devices.
func (b *Base) UpdateVariable(deviceID, name string, value any) {
	b.publisher.Publish(model.UpdateVariableMessage{
		Gateway:  b.name,
		DeviceID: deviceID,
		Name:     name,
		Value:    value,
	})
}

func (b *Base) NotifyUser(text string) {
	b.publisher.Publish(model.NotifyUserMessage{Text: text})
}

// Publish forwards any other message to the bus.
func (b *Base) Publish(msg model.Message) {
	b.publisher.Publish(msg)
}

func (b *Base) insert(device model.Device) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.devices {
		if d.ID == device.ID {
			return false
		}
	}
	devices := make([]model.Device, 0, len(b.devices)+1)
	devices = append(devices, b.devices...)
	b.devices = append(devices, device)
	return true
}
