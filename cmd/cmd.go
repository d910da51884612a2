package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/homehub/internal/pkg/bus"
	"github.com/anicoll/homehub/internal/pkg/config"
	"github.com/anicoll/homehub/internal/pkg/database"
	"github.com/anicoll/homehub/internal/pkg/database/migration"
	"github.com/anicoll/homehub/internal/pkg/gateway"
	"github.com/anicoll/homehub/internal/pkg/health"
	"github.com/anicoll/homehub/internal/pkg/influx"
	"github.com/anicoll/homehub/internal/pkg/mqtt"
	"github.com/anicoll/homehub/internal/pkg/publisher"
	"github.com/anicoll/homehub/internal/pkg/scheduler"
	"github.com/anicoll/homehub/internal/pkg/script"
	"github.com/anicoll/homehub/internal/pkg/server"
	"github.com/anicoll/homehub/internal/pkg/variable"
	"github.com/anicoll/homehub/internal/pkg/worker"
)

// HubCommand is the main entry point of the hub. Configuration comes from
// the environment; flags override it.
func HubCommand(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	overrideFromFlags(c, cfg)

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, closeDeps, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDeps()

	return run(ctx, cfg, deps)
}

func overrideFromFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("http-addr") {
		cfg.HTTPAddr = c.String("http-addr")
	}
	if c.IsSet("database-url") {
		cfg.DatabaseURL = c.String("database-url")
	}
	if c.IsSet("migrations-folder") {
		cfg.MigrationsFolder = c.String("migrations-folder")
	}
	if c.IsSet("scripts-file") {
		cfg.ScriptsFile = c.String("scripts-file")
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var err error
	logCfg := zap.NewProductionConfig()
	logCfg.Level, err = zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	return logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
}

// connect opens every configured external system. The returned func closes
// them again.
func connect(ctx context.Context, cfg *config.Config) (*dependencies, func(), error) {
	deps := &dependencies{}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		if err := migration.Migrate(cfg.DatabaseURL, cfg.MigrationsFolder); err != nil {
			return nil, nil, err
		}
		db, err := database.NewDatabase(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.Devices = db
		deps.Variables = db
		deps.Scripts = db
		deps.History = db
		deps.addSink("postgres", db)
	} else {
		zap.L().Warn("no database configured, devices and variables will not be persisted")
	}

	if cfg.ScriptsFile != "" {
		repo, err := script.NewFileRepository(cfg.ScriptsFile)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		deps.Scripts = repo
	}

	if cfg.Mqtt.Host != "" {
		svc := mqtt.New(mqtt.NewClient(cfg.Mqtt.Host, cfg.Mqtt.ClientID, cfg.Mqtt.Username, cfg.Mqtt.Password), cfg.Mqtt.Prefix)
		if err := svc.Connect(); err != nil {
			closeAll()
			return nil, nil, err
		}
		closers = append(closers, svc.Disconnect)
		deps.Bridge = svc
		deps.addSink("mqtt", svc)
	}

	if cfg.Influx.URL != "" {
		sink := influx.New(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		closers = append(closers, sink.Close)
		deps.Runners = append(deps.Runners, sink.Run)
		deps.addSink("influx", sink)
	}

	return deps, closeAll, nil
}

func run(ctx context.Context, cfg *config.Config, deps *dependencies) error {
	logger := zap.L()
	if deps.Scripts == nil {
		deps.Scripts = noScripts{}
	}

	b := bus.New()
	defer b.Close()
	pool := worker.New()

	pub := publisher.New()
	for _, s := range deps.Sinks {
		if err := pub.Register(s.name, s.sink); err != nil {
			return err
		}
	}

	store := variable.New(deps.Variables, pub, variable.WithFlushInterval(cfg.FlushInterval))
	if err := store.Init(ctx); err != nil {
		return err
	}

	registry := gateway.NewRegistry()
	providers := []script.Provider{script.NewBuiltins(b), store}
	for _, g := range newGateways(cfg, b, deps.Devices) {
		if err := registry.Register(g); err != nil {
			return err
		}
		if p, ok := g.(script.Provider); ok {
			providers = append(providers, p)
		}
	}

	bindings, err := script.NewBindings(providers...)
	if err != nil {
		return err
	}
	engine := script.NewEngine(deps.Scripts, script.NewLuaHost(), bindings, pool, script.WithTimeout(cfg.ScriptTimeout))

	sched := scheduler.New(engine)
	if err := sched.Load(ctx, deps.Scripts); err != nil {
		return err
	}
	triggers := scheduler.NewTriggers(engine)
	if err := triggers.Load(ctx, deps.Scripts); err != nil {
		return err
	}

	cleanup, err := historyCleanup(deps.History, cfg)
	if err != nil {
		return err
	}

	eg, ctx := errgroup.WithContext(ctx)

	subs := []*bus.Subscription{
		store.Listen(b),
		gateway.NewRouter(registry, pool).Listen(ctx, b),
		triggers.Listen(ctx, b),
	}
	if deps.Bridge != nil {
		subs = append(subs, deps.Bridge.Listen(b)...)
		if err := deps.Bridge.SubscribeCommands(b); err != nil {
			return err
		}
	}
	defer func() {
		for _, s := range subs {
			s.Close()
		}
		for _, s := range subs {
			<-s.Done()
		}
	}()

	var serverOpts []server.Option
	if deps.History != nil {
		serverOpts = append(serverOpts, server.WithHistory(deps.History))
	}
	srv := server.New(registry, store, engine, b, server.AuthConfig{
		PasswordHash: cfg.Auth.PasswordHash,
		JWTSecret:    cfg.Auth.JWTSecret,
		TokenTTL:     cfg.Auth.TokenTTL,
	}, serverOpts...)
	observer := health.New(registry, b, cfg.HealthInterval)

	eg.Go(func() error {
		return registry.Run(ctx)
	})
	eg.Go(func() error {
		return sched.Run(ctx)
	})
	eg.Go(func() error {
		return observer.Run(ctx)
	})
	eg.Go(func() error {
		return store.Run(ctx)
	})
	eg.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.HTTPAddr)
	})
	if cleanup != nil {
		eg.Go(func() error {
			cleanup.Start()
			<-ctx.Done()
			<-cleanup.Stop().Done()
			return nil
		})
	}
	for _, r := range deps.Runners {
		eg.Go(func() error {
			return r(ctx)
		})
	}

	logger.Info("hub started", zap.Strings("gateways", gatewayNames(registry)), zap.String("addr", cfg.HTTPAddr))
	err = eg.Wait()

	if shutdownErr := registry.Shutdown(); shutdownErr != nil {
		logger.Error("gateway shutdown failed", zap.Error(shutdownErr))
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if drainErr := pool.Drain(drainCtx); drainErr != nil {
		logger.Warn("abandoning running tasks", zap.Int("running", pool.Running()), zap.Error(drainErr))
	}
	logger.Info("hub stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// historyCleanup schedules the pruning of variable history. It returns nil
// when there is no history to prune.
func historyCleanup(history HistoryStore, cfg *config.Config) (*cron.Cron, error) {
	if history == nil {
		return nil, nil
	}
	c := cron.New()
	if _, err := c.AddFunc(cfg.CleanupCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		removed, err := history.Cleanup(ctx, cfg.HistoryRetention)
		if err != nil {
			zap.L().Error("error cleaning up variable history", zap.Error(err))
			return
		}
		zap.L().Info("cleaned up variable history", zap.Int64("removed", removed))
	}); err != nil {
		return nil, fmt.Errorf("cleanup schedule %q: %w", cfg.CleanupCron, err)
	}
	return c, nil
}

func gatewayNames(r *gateway.Registry) []string {
	names := make([]string, 0)
	for _, g := range r.All() {
		names = append(names, g.Name())
	}
	return names
}
