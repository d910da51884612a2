package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Registry holds the active gateways keyed by their unique name.
type Registry struct {
	mu       sync.RWMutex
	gateways []Gateway
	byName   map[string]Gateway

	shutdownOnce sync.Once
	logger       *zap.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Gateway),
		logger: zap.L().Named("registry"),
	}
}

func (r *Registry) Register(g Gateway) error {
	name := g.Name()
	if name == "" || strings.Contains(name, ".") {
		return fmt.Errorf("gateway: invalid name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrGatewayExists, name)
	}
	r.byName[name] = g
	r.gateways = append(r.gateways, g)
	return nil
}

func (r *Registry) Get(name string) (Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.byName[name]
	return g, ok
}

// All returns the gateways in registration order.
func (r *Registry) All() []Gateway {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Gateway(nil), r.gateways...)
}

// Run loads persisted devices and starts every gateway, returning once all
// Start loops have returned. A failing gateway does not stop the others.
func (r *Registry) Run(ctx context.Context) error {
	var eg errgroup.Group
	for _, g := range r.All() {
		eg.Go(func() error {
			r.start(ctx, g)
			return nil
		})
	}
	return eg.Wait()
}

func (r *Registry) start(ctx context.Context, g Gateway) {
	logger := r.logger.With(zap.String("gateway", g.Name()))
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("gateway panicked", zap.Error(fmt.Errorf("%v", rec)))
		}
	}()

	if l, ok := g.(Loader); ok {
		if err := l.LoadDevices(ctx); err != nil {
			logger.Error("failed to load devices", zap.Error(err))
		}
	}

	logger.Info("starting gateway")
	if err := g.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gateway stopped", zap.Error(err))
		return
	}
	logger.Info("gateway stopped")
}

// Shutdown tears down every gateway. Only the first call has an effect.
func (r *Registry) Shutdown() error {
	var errs []error
	r.shutdownOnce.Do(func() {
		for _, g := range r.All() {
			if err := g.Shutdown(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", g.Name(), err))
			}
		}
	})
	return errors.Join(errs...)
}
