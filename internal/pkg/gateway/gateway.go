// Package gateway holds the contract every device gateway implements, the
// embeddable Base that carries the shared device bookkeeping, the Registry of
// running gateways and the Router that dispatches CommandMessages to them.
package gateway

import (
	"context"
	"errors"

	"github.com/anicoll/homehub/internal/pkg/model"
)

var (
	ErrUnsupported    = errors.New("gateway: unsupported operation")
	ErrInvalidDevice  = errors.New("gateway: invalid device")
	ErrDeviceExists   = errors.New("gateway: device already exists")
	ErrDeviceNotFound = errors.New("gateway: device not found")
	ErrGatewayExists  = errors.New("gateway: already registered")
)

// Gateway adapts one vendor system. Name must not contain '.'.
type Gateway interface {
	Name() string
	// Devices returns a snapshot; mutating it does not affect the gateway.
	Devices() []model.Device
	CanCreateDevices() bool
	Actions(device model.Device) []model.Action
	CreateEmptyDevice() (model.Device, error)
	AddDevice(ctx context.Context, device model.Device) error
	// Start runs the gateway's loop until ctx is cancelled.
	Start(ctx context.Context) error
	ExecuteAction(ctx context.Context, device model.Device, action model.Action, values map[string]string) error
	Shutdown() error
}

// Describer is implemented by gateways that declare device configuration.
type Describer interface {
	DeviceProperties() []model.PropertySpec
}

// Loader is implemented by gateways that restore persisted devices before Start.
type Loader interface {
	LoadDevices(ctx context.Context) error
}

// Remover is implemented by gateways that allow a user to delete devices.
type Remover interface {
	RemoveDevice(ctx context.Context, id string) error
}

// DeviceStore persists user-created devices per gateway.
type DeviceStore interface {
	LoadDevices(ctx context.Context, gateway string) ([]model.Device, error)
	SaveDevice(ctx context.Context, gateway string, device model.Device) error
	DeleteDevice(ctx context.Context, gateway, id string) error
}

// MessagePublisher is the slice of the bus gateways publish through.
type MessagePublisher interface {
	Publish(msg model.Message)
}
