// Package ifttt fires IFTTT Maker webhooks.
package ifttt

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/anicoll/homehub/internal/pkg/config"
	"github.com/anicoll/homehub/internal/pkg/contxt"
	"github.com/anicoll/homehub/internal/pkg/gateway"
	"github.com/anicoll/homehub/internal/pkg/gateways/rest"
	"github.com/anicoll/homehub/internal/pkg/model"
)

const (
	Name = "IFTTT"

	PropertyKey      = "Key"
	ActionWebRequest = "Web request"
	FieldEventName   = "Event Name"

	defaultURL     = "https://maker.ifttt.com"
	requestTimeout = 15 * time.Second
)

var actions = []model.Action{model.NewAction(ActionWebRequest, FieldEventName)}

type Gateway struct {
	*gateway.Base
	client *rest.Client
}

func New(publisher gateway.MessagePublisher, store gateway.DeviceStore, settings config.Settings, opts ...rest.Option) *Gateway {
	base := settings.Get("url")
	if base == "" {
		base = defaultURL
	}
	return &Gateway{
		Base: gateway.NewBase(Name, publisher,
			gateway.WithStore(store),
			gateway.WithDeviceCreation(model.PropertySpec{Name: PropertyKey, Required: true})),
		client: rest.New(base, opts...),
	}
}

func (g *Gateway) Actions(model.Device) []model.Action {
	return actions
}

// Start has nothing to poll; webhooks are only fired by actions.
func (g *Gateway) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (g *Gateway) ExecuteAction(ctx context.Context, device model.Device, action model.Action, values map[string]string) error {
	if action.Name != ActionWebRequest {
		return fmt.Errorf("%w: %s", gateway.ErrUnsupported, action.Name)
	}
	event := strings.TrimSpace(values[FieldEventName])
	if event == "" {
		return fmt.Errorf("ifttt: %q is required", FieldEventName)
	}
	key := device.Property(PropertyKey)
	if key == "" {
		return fmt.Errorf("ifttt: device %s has no key", device.ID)
	}

	ctx, cancel := contxt.NewContext(ctx, requestTimeout)
	defer cancel()
	path := fmt.Sprintf("/trigger/%s/with/key/%s", url.PathEscape(event), url.PathEscape(key))
	if err := g.client.Post(ctx, path, nil, nil, nil); err != nil {
		return fmt.Errorf("trigger %s: %w", event, err)
	}
	return nil
}
