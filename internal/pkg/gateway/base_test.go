package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anicoll/homehub/internal/pkg/model"
)

var latLong = []model.PropertySpec{{Name: "Latitude", Required: true}, {Name: "Longitude", Required: true}}

func validDevice(id string) model.Device {
	return model.Device{ID: id, Name: id, Properties: map[string]string{"Latitude": "47.3", "Longitude": "8.5"}}
}

func TestBase_AddDevice(t *testing.T) {
	tests := map[string]struct {
		opts    []Option
		seed    []model.Device
		device  model.Device
		wantErr error
	}{
		"creation disallowed": {
			device:  validDevice("home"),
			wantErr: ErrUnsupported,
		},
		"invalid configuration": {
			opts:    []Option{WithDeviceCreation(latLong...)},
			device:  model.Device{ID: "home"},
			wantErr: ErrInvalidDevice,
		},
		"duplicate id": {
			opts:    []Option{WithDeviceCreation(latLong...)},
			seed:    []model.Device{validDevice("home")},
			device:  validDevice("home"),
			wantErr: ErrDeviceExists,
		},
		"valid": {
			opts:   []Option{WithDeviceCreation(latLong...)},
			device: validDevice("home"),
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			b := NewBase("Weather", &recordingPublisher{}, tt.opts...)
			for _, d := range tt.seed {
				require.NoError(t, b.AddDevice(context.Background(), d))
			}
			err := b.AddDevice(context.Background(), tt.device)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Len(t, b.Devices(), len(tt.seed))
				return
			}
			require.NoError(t, err)
			got, ok := b.Device(tt.device.ID)
			require.True(t, ok)
			assert.Equal(t, model.BatteryUnknown, got.Battery)
		})
	}
}

func TestBase_AddDevice_SaveFailureIsSwallowed(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	store := &mockStore{
		SaveDeviceFunc: func(context.Context, string, model.Device) error {
			return errors.New("disk full")
		},
	}
	b := NewBase("Weather", &recordingPublisher{}, WithDeviceCreation(latLong...), WithStore(store))
	b.logger = zap.New(core)

	require.NoError(t, b.AddDevice(context.Background(), validDevice("home")))
	_, ok := b.Device("home")
	assert.True(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("failed to save device").Len())
}

func TestBase_AddDevice_Persists(t *testing.T) {
	var saved []string
	store := &mockStore{
		SaveDeviceFunc: func(_ context.Context, gateway string, device model.Device) error {
			saved = append(saved, gateway+"/"+device.ID)
			return nil
		},
	}
	b := NewBase("Weather", &recordingPublisher{}, WithDeviceCreation(latLong...), WithStore(store))
	require.NoError(t, b.AddDevice(context.Background(), validDevice("home")))
	assert.Equal(t, []string{"Weather/home"}, saved)
}

func TestBase_CreateEmptyDevice(t *testing.T) {
	_, err := NewBase("Tado", &recordingPublisher{}).CreateEmptyDevice()
	assert.ErrorIs(t, err, ErrUnsupported)

	d, err := NewBase("Weather", &recordingPublisher{}, WithDeviceCreation(latLong...)).CreateEmptyDevice()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Latitude": "", "Longitude": ""}, d.Properties)
}

func TestBase_LoadDevices(t *testing.T) {
	store := &mockStore{
		LoadDevicesFunc: func(_ context.Context, gateway string) ([]model.Device, error) {
			assert.Equal(t, "Weather", gateway)
			return []model.Device{validDevice("a"), {ID: "broken"}, validDevice("a"), validDevice("b")}, nil
		},
	}
	b := NewBase("Weather", &recordingPublisher{}, WithDeviceCreation(latLong...), WithStore(store))
	require.NoError(t, b.LoadDevices(context.Background()))

	ids := []string{}
	for _, d := range b.Devices() {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)

	failing := NewBase("Weather", &recordingPublisher{}, WithStore(&mockStore{
		LoadDevicesFunc: func(context.Context, string) ([]model.Device, error) {
			return nil, errors.New("connection refused")
		},
	}))
	assert.Error(t, failing.LoadDevices(context.Background()))
}

func TestBase_DiscoverConcurrentlyKeepsOneDevicePerID(t *testing.T) {
	b := NewBase("Tado", &recordingPublisher{})

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Discover(model.Device{ID: "home1_zone1"}) {
				mu.Lock()
				added++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, added)
	assert.Len(t, b.Devices(), 1)
}

func TestBase_UpdateDeviceIsCopyOnWrite(t *testing.T) {
	b := NewBase("Tado", &recordingPublisher{})
	b.Discover(model.Device{ID: "zone", Name: "Living"})

	before := b.Devices()
	ok := b.UpdateDevice("zone", func(d *model.Device) {
		d.Name = "Lounge"
		d.Battery = model.BatteryLow
	})
	require.True(t, ok)

	assert.Equal(t, "Living", before[0].Name)
	after, _ := b.Device("zone")
	assert.Equal(t, "Lounge", after.Name)
	assert.Equal(t, model.BatteryLow, after.Battery)
	assert.False(t, b.UpdateDevice("missing", func(*model.Device) {}))
}

func TestBase_DevicesSnapshotIsDetached(t *testing.T) {
	b := NewBase("Tado", &recordingPublisher{})
	b.Discover(model.Device{ID: "zone", Properties: map[string]string{"Key": "v"}})

	snap := b.Devices()
	snap[0].Properties["Key"] = "changed"
	snap[0].Name = "changed"

	d, _ := b.Device("zone")
	assert.Equal(t, "v", d.Property("Key"))
	assert.Empty(t, d.Name)
}

func TestBase_RemoveDevice(t *testing.T) {
	var deleted []string
	store := &mockStore{
		DeleteDeviceFunc: func(_ context.Context, gateway, id string) error {
			deleted = append(deleted, fmt.Sprintf("%s/%s", gateway, id))
			return nil
		},
	}
	b := NewBase("Weather", &recordingPublisher{}, WithDeviceCreation(latLong...), WithStore(store))
	require.NoError(t, b.AddDevice(context.Background(), validDevice("home")))

	require.NoError(t, b.RemoveDevice(context.Background(), "home"))
	assert.Empty(t, b.Devices())
	assert.Equal(t, []string{"Weather/home"}, deleted)
	assert.ErrorIs(t, b.RemoveDevice(context.Background(), "home"), ErrDeviceNotFound)
}

func TestBase_BusHelpers(t *testing.T) {
	pub := &recordingPublisher{}
	b := NewBase("Tado", pub)

	b.UpdateVariable("home1_zone1", "Temperature", 21.5)
	b.NotifyUser("hello")

	assert.Equal(t, []model.Message{
		model.UpdateVariableMessage{Gateway: "Tado", DeviceID: "home1_zone1", Name: "Temperature", Value: 21.5},
		model.NotifyUserMessage{Text: "hello"},
	}, pub.Messages())
}
