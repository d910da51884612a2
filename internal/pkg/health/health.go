// Package health periodically reports devices with a low battery.
package health

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/gateway"
	"github.com/anicoll/homehub/internal/pkg/model"
)

const DefaultInterval = time.Minute

// GatewaySource lists the gateways to inspect.
type GatewaySource interface {
	All() []gateway.Gateway
}

// Observer publishes one LowBatteryMessage per low device on every sweep.
// Alerts repeat each sweep while the battery stays low.
type Observer struct {
	gateways  GatewaySource
	publisher gateway.MessagePublisher
	interval  time.Duration
	logger    *zap.Logger
}

func New(gateways GatewaySource, publisher gateway.MessagePublisher, interval time.Duration) *Observer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Observer{
		gateways:  gateways,
		publisher: publisher,
		interval:  interval,
		logger:    zap.L().Named("health"),
	}
}

func (o *Observer) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.Sweep()
		}
	}
}

// Sweep inspects every device once and returns the number of alerts published.
func (o *Observer) Sweep() int {
	alerts := 0
	for _, g := range o.gateways.All() {
		low := lo.Filter(g.Devices(), func(d model.Device, _ int) bool {
			return d.Battery == model.BatteryLow
		})
		for _, d := range low {
			o.logger.Info("low battery", zap.String("gateway", g.Name()), zap.String("device", d.ID))
			o.publisher.Publish(model.LowBatteryMessage{Gateway: g.Name(), Device: d})
			alerts++
		}
	}
	return alerts
}
