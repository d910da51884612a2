// Package weather publishes forecasts from a Dark Sky compatible API
// (e.g. Pirate Weather) for user-created locations.
package weather

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/config"
	"github.com/anicoll/homehub/internal/pkg/contxt"
	"github.com/anicoll/homehub/internal/pkg/gateway"
	"github.com/anicoll/homehub/internal/pkg/gateways/rest"
	"github.com/anicoll/homehub/internal/pkg/model"
)

const (
	Name = "Weather"

	PropertyLatitude  = "Latitude"
	PropertyLongitude = "Longitude"

	defaultURL     = "https://api.pirateweather.net"
	minInterval    = 10 * time.Minute
	perDevice      = 150 * time.Second
	requestTimeout = time.Minute
)

type Gateway struct {
	*gateway.Base
	client *rest.Client
	apiKey string
}

func New(publisher gateway.MessagePublisher, store gateway.DeviceStore, settings config.Settings, opts ...rest.Option) *Gateway {
	base := settings.Get("url")
	if base == "" {
		base = defaultURL
	}
	opts = append([]rest.Option{rest.WithRetries(3, time.Second)}, opts...)
	return &Gateway{
		Base: gateway.NewBase(Name, publisher,
			gateway.WithStore(store),
			gateway.WithDeviceCreation(
				model.PropertySpec{Name: PropertyLatitude, Required: true},
				model.PropertySpec{Name: PropertyLongitude, Required: true},
			)),
		client: rest.New(base, opts...),
		apiKey: settings.Get("apikey"),
	}
}

// AddDevice also rejects coordinates that are not numbers.
func (g *Gateway) AddDevice(ctx context.Context, device model.Device) error {
	if _, _, err := coordinates(device); err != nil {
		return fmt.Errorf("%w: %w", gateway.ErrInvalidDevice, err)
	}
	return g.Base.AddDevice(ctx, device)
}

func (g *Gateway) Start(ctx context.Context) error {
	if g.apiKey == "" {
		g.NotifyUser("Add weather configuration (weather.apikey) to GATEWAY_SETTINGS.")
		return nil
	}

	for {
		g.Poll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(g.interval()):
		}
	}
}

// interval spreads requests so that larger device lists poll less often.
func (g *Gateway) interval() time.Duration {
	return max(time.Duration(len(g.Devices()))*perDevice, minInterval)
}

// Poll fetches the forecast of every device. It returns the number of
// devices updated.
func (g *Gateway) Poll(ctx context.Context) int {
	updated := 0
	for _, d := range g.Devices() {
		if ctx.Err() != nil {
			break
		}
		if err := g.update(ctx, d); err != nil {
			g.Logger().Error("failed to fetch forecast", zap.String("device", d.ID), zap.Error(err))
			continue
		}
		updated++
	}
	return updated
}

func (g *Gateway) update(ctx context.Context, device model.Device) error {
	lat, lon, err := coordinates(device)
	if err != nil {
		return err
	}
	ctx, cancel := contxt.NewContext(ctx, requestTimeout)
	defer cancel()

	var resp forecast
	path := fmt.Sprintf("/forecast/%s/%s,%s?units=si", g.apiKey,
		strconv.FormatFloat(lat, 'f', -1, 64), strconv.FormatFloat(lon, 'f', -1, 64))
	if err := g.client.Get(ctx, path, nil, &resp); err != nil {
		return err
	}

	g.publish(device.ID, "", resp.Currently)
	for i, p := range resp.Hourly.Data {
		g.publish(device.ID, fmt.Sprintf("H+%d_", i), p)
	}
	for i, p := range resp.Daily.Data {
		g.publish(device.ID, fmt.Sprintf("D+%d_", i), p)
	}
	return nil
}

func (g *Gateway) publish(deviceID, prefix string, p dataPoint) {
	for _, f := range fields {
		if v, ok := f.extract(p); ok {
			g.UpdateVariable(deviceID, prefix+f.name, v)
		}
	}
}

func coordinates(d model.Device) (float64, float64, error) {
	lat, err := strconv.ParseFloat(d.Property(PropertyLatitude), 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("invalid latitude %q", d.Property(PropertyLatitude))
	}
	lon, err := strconv.ParseFloat(d.Property(PropertyLongitude), 64)
	if err != nil || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("invalid longitude %q", d.Property(PropertyLongitude))
	}
	return lat, lon, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
