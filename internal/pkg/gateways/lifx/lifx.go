// Package lifx controls LIFX bulbs through the LIFX cloud HTTP API.
package lifx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/config"
	"github.com/anicoll/homehub/internal/pkg/contxt"
	"github.com/anicoll/homehub/internal/pkg/gateway"
	"github.com/anicoll/homehub/internal/pkg/gateways/rest"
	"github.com/anicoll/homehub/internal/pkg/model"
)

const (
	Name = "Lifx"

	defaultURL     = "https://api.lifx.com/v1"
	pollInterval   = time.Minute
	requestTimeout = 30 * time.Second
	icon           = "lightbulb"

	ActionSwitchOn         = "Switch On"
	ActionSwitchOff        = "Switch Off"
	ActionChangeColor      = "Change Color"
	ActionChangeBrightness = "Change Brightness"

	FieldTransition = "Transition time in seconds"
	FieldColor      = "Color"
	FieldBrightness = "Brightness"
)

var errNotConfigured = errors.New("lifx: token not configured")

var actions = []model.Action{
	model.NewAction(ActionSwitchOn, FieldTransition),
	model.NewAction(ActionSwitchOff, FieldTransition),
	model.NewAction(ActionChangeColor, FieldColor, FieldTransition),
	model.NewAction(ActionChangeBrightness, FieldBrightness, FieldTransition),
}

type Gateway struct {
	*gateway.Base
	client   *rest.Client
	token    string
	interval time.Duration
}

func New(publisher gateway.MessagePublisher, settings config.Settings, opts ...rest.Option) *Gateway {
	base := settings.Get("url")
	if base == "" {
		base = defaultURL
	}
	token := settings.Get("token")
	return &Gateway{
		Base:     gateway.NewBase(Name, publisher),
		client:   rest.New(base, append([]rest.Option{rest.WithHeader("Authorization", "Bearer "+token)}, opts...)...),
		token:    token,
		interval: pollInterval,
	}
}

func (g *Gateway) Actions(model.Device) []model.Action {
	return actions
}

// Start discovers connected bulbs every minute until ctx is done.
func (g *Gateway) Start(ctx context.Context) error {
	if g.token == "" {
		g.NotifyUser("Add lifx configuration (lifx.token) to GATEWAY_SETTINGS.")
		return nil
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		if err := g.Poll(ctx); err != nil {
			g.Logger().Error("failed to list lights", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll lists the lights of the account and publishes the state of every
// connected one.
func (g *Gateway) Poll(ctx context.Context) error {
	ctx, cancel := contxt.NewContext(ctx, requestTimeout)
	defer cancel()

	var lights []light
	if err := g.client.Get(ctx, "/lights/all", nil, &lights); err != nil {
		return err
	}
	for _, l := range lights {
		if !l.Connected {
			continue
		}
		g.Discover(model.Device{ID: l.ID, Name: l.Label, Icon: icon})
		g.UpdateVariable(l.ID, "Brightness", round2(l.Brightness))
		g.UpdateVariable(l.ID, "IsOn", l.Power == "on")
		g.UpdateVariable(l.ID, "Name", l.Label)
		g.UpdateVariable(l.ID, "GroupName", l.Group.Name)
		g.UpdateVariable(l.ID, "Color", l.Color.hex())
	}
	return nil
}

func (g *Gateway) ExecuteAction(ctx context.Context, device model.Device, action model.Action, values map[string]string) error {
	if g.token == "" {
		return errNotConfigured
	}
	ctx, cancel := contxt.NewContext(ctx, requestTimeout)
	defer cancel()

	req := stateRequest{Duration: transition(values)}
	switch strings.ToLower(action.Name) {
	case strings.ToLower(ActionSwitchOn):
		req.Power = "on"
	case strings.ToLower(ActionSwitchOff):
		req.Power = "off"
	case strings.ToLower(ActionChangeColor):
		color := strings.TrimSpace(values[FieldColor])
		if color == "" {
			return fmt.Errorf("lifx: %q is required", FieldColor)
		}
		req.Power, req.Color = "on", color
	case strings.ToLower(ActionChangeBrightness):
		b, err := strconv.ParseFloat(strings.TrimSpace(values[FieldBrightness]), 64)
		if err != nil {
			return fmt.Errorf("lifx: invalid brightness %q: %w", values[FieldBrightness], err)
		}
		b = math.Max(0, math.Min(1, b))
		req.Power, req.Brightness = "on", &b
	default:
		return fmt.Errorf("%w: %s", gateway.ErrUnsupported, action.Name)
	}

	path := "/lights/" + url.PathEscape("id:"+device.ID) + "/state"
	if err := g.client.Put(ctx, path, nil, req, nil); err != nil {
		return fmt.Errorf("set state of %s: %w", device.ID, err)
	}

	g.UpdateVariable(device.ID, "IsOn", req.Power == "on")
	if req.Color != "" {
		g.UpdateVariable(device.ID, "Color", req.Color)
	}
	if req.Brightness != nil {
		g.UpdateVariable(device.ID, "Brightness", round2(*req.Brightness))
	}
	return nil
}

func transition(values map[string]string) float64 {
	s, err := strconv.Atoi(strings.TrimSpace(values[FieldTransition]))
	if err != nil || s < 0 {
		return 0
	}
	return float64(s)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type stateRequest struct {
	Power      string   `json:"power,omitempty"`
	Color      string   `json:"color,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
	Duration   float64  `json:"duration"`
}

type light struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Connected  bool    `json:"connected"`
	Power      string  `json:"power"`
	Brightness float64 `json:"brightness"`
	Color      hsbk    `json:"color"`
	Group      struct {
		Name string `json:"name"`
	} `json:"group"`
}

type hsbk struct {
	Hue        float64 `json:"hue"`
	Saturation float64 `json:"saturation"`
	Kelvin     int     `json:"kelvin"`
}

// hex renders the hue and saturation at full brightness as #rrggbb.
func (c hsbk) hex() string {
	h := math.Mod(c.Hue, 360) / 60
	s := math.Max(0, math.Min(1, c.Saturation))
	x := s * (1 - math.Abs(math.Mod(h, 2)-1))
	var r, g, b float64
	switch {
	case h < 1:
		r, g = s, x
	case h < 2:
		r, g = x, s
	case h < 3:
		g, b = s, x
	case h < 4:
		g, b = x, s
	case h < 5:
		r, b = x, s
	default:
		r, b = s, x
	}
	m := 1 - s
	to8 := func(v float64) int { return int(math.Round((v + m) * 255)) }
	return fmt.Sprintf("#%02x%02x%02x", to8(r), to8(g), to8(b))
}
