// Package tado polls the tado° thermostat cloud for zone state.
package tado

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/config"
	"github.com/anicoll/homehub/internal/pkg/contxt"
	"github.com/anicoll/homehub/internal/pkg/gateway"
	"github.com/anicoll/homehub/internal/pkg/gateways/rest"
	"github.com/anicoll/homehub/internal/pkg/model"
)

const (
	Name = "tado"

	defaultURL     = "https://my.tado.com"
	pollInterval   = time.Minute
	requestTimeout = 30 * time.Second
	clientID       = "tado-webapp"
	icon           = "thermometer"
	refreshBefore  = 90 * time.Second
)

type Gateway struct {
	*gateway.Base
	client   *rest.Client
	username string
	password string
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	token *token
	home  int64
}

func New(publisher gateway.MessagePublisher, settings config.Settings, opts ...rest.Option) *Gateway {
	base := settings.Get("url")
	if base == "" {
		base = defaultURL
	}
	return &Gateway{
		Base:     gateway.NewBase(Name, publisher),
		client:   rest.New(base, append([]rest.Option{rest.WithHeader("Referer", "https://my.tado.com/")}, opts...)...),
		username: settings.Get("username"),
		password: settings.Get("password"),
		interval: pollInterval,
		now:      time.Now,
	}
}

// Start logs in and polls every zone until ctx is done.
func (g *Gateway) Start(ctx context.Context) error {
	if g.username == "" || g.password == "" {
		g.NotifyUser("Add tado configuration (tado.username, tado.password) to GATEWAY_SETTINGS.")
		return nil
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		if err := g.Poll(ctx); err != nil {
			g.Logger().Error("failed to poll tado", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll refreshes the access token when needed, then publishes the state of
// every zone of the home.
func (g *Gateway) Poll(ctx context.Context) error {
	ctx, cancel := contxt.NewContext(ctx, requestTimeout)
	defer cancel()

	tok, home, err := g.session(ctx)
	if err != nil {
		return err
	}
	header := http.Header{"Authorization": {"Bearer " + tok.AccessToken}}

	var zones []zoneDto
	if err := g.client.Get(ctx, fmt.Sprintf("/api/v2/homes/%d/zones", home), header, &zones); err != nil {
		return fmt.Errorf("list zones: %w", err)
	}
	for _, zone := range zones {
		id := fmt.Sprintf("%d_%d", home, zone.ID)
		battery := zone.battery()
		if !g.Discover(model.Device{ID: id, Name: zone.Name, Icon: icon, Battery: battery}) {
			g.UpdateDevice(id, func(d *model.Device) { d.Battery = battery })
		}

		var state stateDto
		if err := g.client.Get(ctx, fmt.Sprintf("/api/v2/homes/%d/zones/%d/state", home, zone.ID), header, &state); err != nil {
			g.Logger().Warn("failed to read zone state", zap.String("zone", zone.Name), zap.Error(err))
			continue
		}
		g.UpdateVariable(id, "Mode", state.TadoMode)
		g.UpdateVariable(id, "Temperature", math.Round(state.SensorDataPoints.InsideTemperature.Celsius))
		g.UpdateVariable(id, "Humidity", math.Round(state.SensorDataPoints.Humidity.Percentage))
		g.UpdateVariable(id, "TargetTemperature", math.Round(state.Setting.Temperature.Celsius))
		g.UpdateVariable(id, "Power", state.Setting.Power)
		g.UpdateVariable(id, "Type", state.Setting.Type)
	}
	return nil
}

func (g *Gateway) session(ctx context.Context) (*token, int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.token == nil:
		tok, err := g.requestToken(ctx, url.Values{
			"grant_type": {"password"},
			"username":   {g.username},
			"password":   {g.password},
		})
		if err != nil {
			return nil, 0, fmt.Errorf("login: %w", err)
		}
		g.token = tok
	case g.token.expires.Sub(g.now()) < refreshBefore:
		tok, err := g.requestToken(ctx, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {g.token.RefreshToken},
		})
		if err != nil {
			// the refresh token may have expired too; log in again next poll
			g.token = nil
			return nil, 0, fmt.Errorf("refresh token: %w", err)
		}
		g.token = tok
	}

	if g.home == 0 {
		var me meDto
		header := http.Header{"Authorization": {"Bearer " + g.token.AccessToken}}
		if err := g.client.Get(ctx, "/api/v1/me", header, &me); err != nil {
			return nil, 0, fmt.Errorf("read account: %w", err)
		}
		g.home = me.HomeID
	}
	return g.token, g.home, nil
}

func (g *Gateway) requestToken(ctx context.Context, params url.Values) (*token, error) {
	params.Set("client_id", clientID)
	params.Set("scope", "home.user")
	header := http.Header{"Origin": {"https://my.tado.com"}}

	var tok token
	if err := g.client.Post(ctx, "/oauth/token?"+params.Encode(), header, nil, &tok); err != nil {
		return nil, err
	}
	tok.expires = g.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return &tok, nil
}

type token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	expires      time.Time
}

type meDto struct {
	HomeID int64 `json:"homeId"`
}

type zoneDto struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Devices []struct {
		BatteryState string `json:"batteryState"`
	} `json:"devices"`
}

func (z zoneDto) battery() model.BatteryStatus {
	status := model.BatteryUnknown
	for _, d := range z.Devices {
		switch strings.ToUpper(d.BatteryState) {
		case "LOW":
			return model.BatteryLow
		case "NORMAL":
			status = model.BatteryOk
		}
	}
	return status
}

type stateDto struct {
	TadoMode string `json:"tadoMode"`
	Setting  struct {
		Type        string `json:"type"`
		Power       string `json:"power"`
		Temperature struct {
			Celsius float64 `json:"celsius"`
		} `json:"temperature"`
	} `json:"setting"`
	SensorDataPoints struct {
		InsideTemperature struct {
			Celsius float64 `json:"celsius"`
		} `json:"insideTemperature"`
		Humidity struct {
			Percentage float64 `json:"percentage"`
		} `json:"humidity"`
	} `json:"sensorDataPoints"`
}
