// Package scheduler starts scripts on cron schedules and on variable updates.
//
// Every due occurrence submits the script to the executor and returns at
// once. Runs of one script may overlap; scripts that must not overlap have
// to guard themselves.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/anicoll/homehub/internal/pkg/model"
)

var (
	ErrInvalidSchedule   = errors.New("scheduler: invalid schedule")
	ErrDuplicateSchedule = errors.New("scheduler: duplicate schedule")
)

// Executor runs a script without waiting for it.
type Executor interface {
	Submit(ctx context.Context, scriptID string)
}

// ScheduleSource lists the configured schedules.
type ScheduleSource interface {
	Schedules(ctx context.Context) ([]model.ScheduledScript, error)
}

// Parser accepts five or six fields (leading seconds) and descriptors such
// as @hourly or @every 5m.
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Scheduler struct {
	executor Executor
	cron     *cron.Cron
	logger   *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
}

func New(executor Executor, opts ...cron.Option) *Scheduler {
	logger := zap.L().Named("scheduler")
	opts = append([]cron.Option{cron.WithParser(Parser), cron.WithLogger(cronLogger{logger.Sugar()})}, opts...)
	return &Scheduler{
		executor: executor,
		cron:     cron.New(opts...),
		logger:   logger,
		ctx:      context.Background(),
		entries:  make(map[string]cron.EntryID),
	}
}

// Add registers a schedule. An unparsable expression is rejected.
func (s *Scheduler) Add(sched model.ScheduledScript) error {
	if sched.ID == "" {
		sched.ID = sched.ScriptID + "@" + sched.Cron
	}
	if _, err := Parser.Parse(sched.Cron); err != nil {
		return fmt.Errorf("%w: %s %q: %w", ErrInvalidSchedule, sched.ID, sched.Cron, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[sched.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSchedule, sched.ID)
	}
	scriptID := sched.ScriptID
	id, err := s.cron.AddFunc(sched.Cron, func() {
		s.logger.Debug("schedule due", zap.String("script", scriptID))
		s.executor.Submit(s.runContext(), scriptID)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSchedule, sched.ID, err)
	}
	s.entries[sched.ID] = id
	return nil
}

// Remove unregisters a schedule by id.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return false
	}
	s.cron.Remove(entry)
	delete(s.entries, id)
	return true
}

// Load adds every schedule from source. The first invalid schedule aborts.
func (s *Scheduler) Load(ctx context.Context, source ScheduleSource) error {
	schedules, err := source.Schedules(ctx)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	for _, sched := range schedules {
		if err := s.Add(sched); err != nil {
			return err
		}
	}
	s.logger.Info("loaded schedules", zap.Int("count", len(schedules)))
	return nil
}

// Len returns the number of registered schedules.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run fires schedules until ctx is done. Submitted scripts run under ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
