// Package publisher fans flushed variables out to every registered sink.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/model"
)

var errAlreadyRegistered = errors.New("publisher already registered")

// Sink stores or forwards a batch of variables.
type Sink interface {
	Write(ctx context.Context, vars []model.Variable) error
}

// Publisher writes every batch to each sink. Variables a sink failed to
// store are kept for that sink only and sent again with its next batch.
type Publisher struct {
	mu      sync.Mutex
	names   []string
	sinks   map[string]Sink
	pending map[string]map[model.VariableKey]model.Variable
	logger  *zap.Logger
}

func New() *Publisher {
	return &Publisher{
		sinks:   make(map[string]Sink),
		pending: make(map[string]map[model.VariableKey]model.Variable),
		logger:  zap.L().Named("publisher"),
	}
}

func (p *Publisher) Register(name string, sink Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.sinks[name]; ok {
		return errAlreadyRegistered
	}
	p.sinks[name] = sink
	p.names = append(p.names, name)
	return nil
}

// Pending reports whether any sink still holds variables from a failed write.
func (p *Publisher) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending) > 0
}

// Publish writes vars, plus anything left over from a sink's earlier
// failure, to every sink. A failing sink does not stop the others; the
// returned error joins the failures of the sinks that did not store their
// batch.
func (p *Publisher) Publish(ctx context.Context, vars []model.Variable) error {
	p.mu.Lock()
	names := append([]string(nil), p.names...)
	p.mu.Unlock()

	var errs []error
	for _, name := range names {
		sink, batch := p.take(name, vars)
		if len(batch) == 0 {
			continue
		}
		if err := sink.Write(ctx, batch); err != nil {
			p.retain(name, batch)
			p.logger.Error("failed to publish data", zap.Error(err), zap.String("publisher", name), zap.Int("count", len(batch)))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		p.logger.Debug("updated variables", zap.Int("count", len(batch)), zap.String("publisher", name))
	}
	return errors.Join(errs...)
}

// take removes the backlog of name and merges vars over it.
func (p *Publisher) take(name string, vars []model.Variable) (Sink, []model.Variable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	backlog := p.pending[name]
	delete(p.pending, name)
	if len(backlog) == 0 {
		return p.sinks[name], vars
	}
	for _, v := range vars {
		delete(backlog, v.VariableKey)
	}
	batch := make([]model.Variable, 0, len(backlog)+len(vars))
	for _, v := range backlog {
		batch = append(batch, v)
	}
	return p.sinks[name], append(batch, vars...)
}

func (p *Publisher) retain(name string, batch []model.Variable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	backlog, ok := p.pending[name]
	if !ok {
		backlog = make(map[model.VariableKey]model.Variable, len(batch))
		p.pending[name] = backlog
	}
	for _, v := range batch {
		if cur, ok := backlog[v.VariableKey]; ok && cur.Timestamp.After(v.Timestamp) {
			continue
		}
		backlog[v.VariableKey] = v
	}
}
