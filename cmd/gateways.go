package cmd

import (
	"github.com/anicoll/homehub/internal/pkg/config"
	"github.com/anicoll/homehub/internal/pkg/gateway"
	"github.com/anicoll/homehub/internal/pkg/gateways/amber"
	"github.com/anicoll/homehub/internal/pkg/gateways/ifttt"
	"github.com/anicoll/homehub/internal/pkg/gateways/lifx"
	"github.com/anicoll/homehub/internal/pkg/gateways/tado"
	"github.com/anicoll/homehub/internal/pkg/gateways/weather"
)

// newGateways builds the plugin gateways enabled in cfg. Settings are
// looked up under the lower-cased gateway name, e.g. lifx.token.
func newGateways(cfg *config.Config, publisher gateway.MessagePublisher, devices gateway.DeviceStore) []gateway.Gateway {
	var out []gateway.Gateway
	if cfg.Enabled(tado.Name) {
		out = append(out, tado.New(publisher, cfg.Settings(tado.Name)))
	}
	if cfg.Enabled(lifx.Name) {
		out = append(out, lifx.New(publisher, cfg.Settings(lifx.Name)))
	}
	if cfg.Enabled(weather.Name) {
		out = append(out, weather.New(publisher, devices, cfg.Settings(weather.Name)))
	}
	if cfg.Enabled(ifttt.Name) {
		out = append(out, ifttt.New(publisher, devices, cfg.Settings(ifttt.Name)))
	}
	if cfg.Enabled(amber.Name) {
		out = append(out, amber.New(publisher, cfg.Settings(amber.Name)))
	}
	return out
}
