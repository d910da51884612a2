package script

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/model"
)

const DefaultTimeout = 30 * time.Second

// Repository looks scripts up by id. GetScript returns nil, nil when the
// script does not exist.
type Repository interface {
	GetScript(ctx context.Context, id string) (*model.Script, error)
}

// Host evaluates script source with the given bindings.
type Host interface {
	Run(ctx context.Context, s model.Script, bindings *Bindings) error
}

// Submitter runs fire-and-forget tasks.
type Submitter interface {
	Go(ctx context.Context, name string, task func(ctx context.Context) error)
}

type Engine struct {
	repo     Repository
	host     Host
	bindings *Bindings
	pool     Submitter
	timeout  time.Duration
	logger   *zap.Logger
}

type EngineOption func(*Engine)

func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

func NewEngine(repo Repository, host Host, bindings *Bindings, pool Submitter, opts ...EngineOption) *Engine {
	e := &Engine{
		repo:     repo,
		host:     host,
		bindings: bindings,
		pool:     pool,
		timeout:  DefaultTimeout,
		logger:   zap.L().Named("script"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the script synchronously. Absent and disabled scripts are a
// no-op. Failures are logged with the execution id and not returned.
func (e *Engine) Execute(ctx context.Context, scriptID string) {
	executionID := uuid.NewString()
	logger := e.logger.With(zap.String("script", scriptID), zap.String("execution_id", executionID))

	started := time.Now()
	ran, err := e.run(ctx, scriptID)
	switch {
	case err != nil:
		logger.Error("script failed", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
	case ran:
		logger.Debug("script finished", zap.Duration("elapsed", time.Since(started)))
	}
}

// Submit queues the script on the worker pool and returns immediately.
func (e *Engine) Submit(ctx context.Context, scriptID string) {
	e.pool.Go(ctx, "script:"+scriptID, func(ctx context.Context) error {
		e.Execute(ctx, scriptID)
		return nil
	})
}

func (e *Engine) run(ctx context.Context, scriptID string) (ran bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	s, err := e.repo.GetScript(ctx, scriptID)
	if err != nil {
		return false, fmt.Errorf("load script: %w", err)
	}
	if s == nil {
		e.logger.Debug("script not found", zap.String("script", scriptID))
		return false, nil
	}
	if !s.Enabled {
		e.logger.Debug("script disabled", zap.String("script", scriptID))
		return false, nil
	}
	if missing := e.bindings.Missing(s.Requires); len(missing) > 0 {
		return false, fmt.Errorf("%w: %s", ErrUnboundCapability, strings.Join(missing, ", "))
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.host.Run(runCtx, *s, e.bindings); err != nil {
		return true, err
	}
	return true, nil
}
