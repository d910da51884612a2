// Package amber publishes Amber Electric prices for every site of the account.
package amber

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/config"
	"github.com/anicoll/homehub/internal/pkg/contxt"
	"github.com/anicoll/homehub/internal/pkg/gateway"
	"github.com/anicoll/homehub/internal/pkg/gateways/rest"
	"github.com/anicoll/homehub/internal/pkg/model"
)

const (
	Name = "Amber"

	defaultURL     = "https://api.amber.com.au/v1"
	pollInterval   = 5 * time.Minute
	requestTimeout = 30 * time.Second
	icon           = "bolt"

	channelGeneral = "general"
	channelFeedIn  = "feedIn"
	currentType    = "CurrentInterval"
)

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
	return &Gateway{
		Base:     gateway.NewBase(Name, publisher),
		client:   rest.New(base, opts...),
		token:    settings.Get("token"),
		interval: pollInterval,
	}
}

func (g *Gateway) Start(ctx context.Context) error {
	if g.token == "" {
		g.NotifyUser("Add amber configuration (amber.token) to GATEWAY_SETTINGS.")
		return nil
	}

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		if err := g.Poll(ctx); err != nil {
			g.Logger().Error("failed to poll amber", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll discovers active sites and publishes their current prices.
func (g *Gateway) Poll(ctx context.Context) error {
	ctx, cancel := contxt.NewContext(ctx, requestTimeout)
	defer cancel()
	header := http.Header{"Authorization": {"Bearer " + g.token}}

	var sites []site
	if err := g.client.Get(ctx, "/sites", header, &sites); err != nil {
		return fmt.Errorf("list sites: %w", err)
	}
	for _, s := range sites {
		if s.Status == "closed" {
			continue
		}
		g.Discover(model.Device{ID: s.ID, Name: s.NMI, Icon: icon})

		var intervals []interval
		path := fmt.Sprintf("/sites/%s/prices/current?next=0&previous=0", s.ID)
		if err := g.client.Get(ctx, path, header, &intervals); err != nil {
			g.Logger().Warn("failed to read prices", zap.String("site", s.ID), zap.Error(err))
			continue
		}
		g.publish(s.ID, intervals)
	}
	return nil
}

func (g *Gateway) publish(siteID string, intervals []interval) {
	current := slices.DeleteFunc(slices.Clone(intervals), func(i interval) bool {
		return i.Type != currentType
	})
	slices.SortFunc(current, func(a, b interval) int {
		return a.StartTime.Compare(b.StartTime)
	})

	// the latest interval of each channel wins
	var general, feedIn *interval
	for i := range current {
		switch current[i].ChannelType {
		case channelGeneral:
			general = &current[i]
		case channelFeedIn:
			feedIn = &current[i]
		}
	}
	if general != nil {
		g.UpdateVariable(siteID, "GeneralPrice", round2(general.PerKwh))
		g.UpdateVariable(siteID, "SpotPrice", round2(general.SpotPerKwh))
		g.UpdateVariable(siteID, "Renewables", math.Round(general.Renewables))
		g.UpdateVariable(siteID, "Descriptor", general.Descriptor)
	}
	if feedIn != nil {
		// amber reports feed-in as a negative cost
		g.UpdateVariable(siteID, "FeedInPrice", round2(-feedIn.PerKwh))
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type site struct {
	ID     string `json:"id"`
	NMI    string `json:"nmi"`
	Status string `json:"status"`
}

type interval struct {
	Type        string    `json:"type"`
	PerKwh      float64   `json:"perKwh"`
	SpotPerKwh  float64   `json:"spotPerKwh"`
	Renewables  float64   `json:"renewables"`
	ChannelType string    `json:"channelType"`
	Descriptor  string    `json:"descriptor"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}
