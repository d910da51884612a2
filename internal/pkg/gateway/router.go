package gateway

import (
	"context"
	"maps"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/bus"
	"github.com/anicoll/homehub/internal/pkg/model"
)

// Submitter runs fire-and-forget tasks.
type Submitter interface {
	Go(ctx context.Context, name string, task func(ctx context.Context) error)
}

// Router turns CommandMessages into ExecuteAction calls. Commands that do
// not resolve to a gateway, device and action are dropped.
type Router struct {
	registry *Registry
	pool     Submitter
	logger   *zap.Logger
}

func NewRouter(registry *Registry, pool Submitter) *Router {
	return &Router{
		registry: registry,
		pool:     pool,
		logger:   zap.L().Named("router"),
	}
}

// Listen subscribes the router to CommandMessages on b. Actions run under ctx.
func (r *Router) Listen(ctx context.Context, b *bus.Bus) *bus.Subscription {
	return bus.Subscribe(b, "router", func(msg model.CommandMessage) error {
		r.Dispatch(ctx, msg)
		return nil
	})
}

// Dispatch resolves msg and submits the action to the pool without waiting
// for it. It reports whether an action was submitted.
func (r *Router) Dispatch(ctx context.Context, msg model.CommandMessage) bool {
	logger := r.logger.With(zap.String("action_id", msg.ActionID))

	parts := strings.Split(msg.ActionID, ".")
	g, ok := lo.Find(r.registry.All(), func(g Gateway) bool {
		return strings.HasPrefix(msg.ActionID, g.Name()) && parts[0] == g.Name()
	})
	if !ok {
		logger.Debug("no gateway for command")
		return false
	}

	id, ok := model.ParseActionID(msg.ActionID)
	if !ok {
		logger.Debug("malformed action id")
		return false
	}

	device, ok := lo.Find(g.Devices(), func(d model.Device) bool {
		return d.ID == id.Device
	})
	if !ok {
		logger.Debug("unknown device")
		return false
	}

	action, ok := lo.Find(g.Actions(device), func(a model.Action) bool {
		return a.Name == id.Action
	})
	if !ok {
		logger.Debug("unknown action")
		return false
	}

	params := maps.Clone(msg.Parameters)
	r.pool.Go(ctx, id.String(), func(ctx context.Context) error {
		return g.ExecuteAction(ctx, device, action, params)
	})
	return true
}
