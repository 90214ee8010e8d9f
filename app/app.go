// Package app wires a txrouter deployment from configuration: it opens the
// configured datasources, builds and registers one transaction manager per
// datasource and installs a router in front of them, with the default datasource
// serving calls that select no resource.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gaborage/txrouter/config"
	"github.com/gaborage/txrouter/datasource"
	"github.com/gaborage/txrouter/logger"
	"github.com/gaborage/txrouter/observability"
	"github.com/gaborage/txrouter/router"
	"github.com/gaborage/txrouter/transaction"
)

// App owns the opened datasources and the router dispatching to their managers.
type App struct {
	cfg         *config.Config
	log         logger.Logger
	obs         observability.Provider
	ownsObs     bool
	datasources map[string]*datasource.Datasource
	unregister  []func() error
	managers    map[string]transaction.Manager
	router      *router.Router
}

// Load reads the configuration at path and creates an App from it.
func Load(ctx context.Context, path string, opts *Options) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return New(ctx, cfg, opts)
}

// New creates an App from cfg. opts may be nil.
func New(ctx context.Context, cfg *config.Config, opts *Options) (*App, error) {
	b := newAppBootstrap(cfg, opts)
	b.log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Env).
		Int("datasources", len(cfg.Datasources)).
		Msg("Starting transaction router")

	factory, err := b.factory()
	if err != nil {
		return nil, err
	}
	obs, ownsObs, err := b.observability()
	if err != nil {
		return nil, err
	}

	opened, err := b.openDatasources(ctx)
	if err != nil {
		b.shutdownObservability(obs, ownsObs)
		return nil, err
	}

	unregister := b.poolMetrics(obs, opened)

	registry := b.opts.Registry
	if registry == nil {
		registry = router.NewRegistry(
			router.WithFactory(factory),
			router.WithLogger(b.log),
			router.WithMeterProvider(obs.MeterProvider()),
		)
	}
	managers, err := b.managers(factory, registry, opened, obs)
	if err != nil {
		unregisterAll(unregister, b.log)
		_ = closeAll(context.WithoutCancel(ctx), opened, b.log)
		b.shutdownObservability(obs, ownsObs)
		return nil, err
	}

	resolver := b.opts.Resolver
	if resolver == nil {
		resources := make(map[string]any, len(opened))
		for name, ds := range opened {
			resources[name] = ds.Resource
		}
		resolver = NewNamedResolver(resources)
	}

	var fallback transaction.Manager
	if name, ok := cfg.DefaultDatasource(); ok {
		fallback = managers[name]
		b.log.Info().Str("datasource", name).Msg("Default transaction manager selected")
	} else {
		b.log.Warn().Msg("No default datasource, calls without an active resource will fail")
	}

	rt := router.Wrap(fallback,
		router.WithRegistry(registry),
		router.WithResolver(resolver),
		router.WithLogger(b.log),
		router.WithTracerProvider(obs.TracerProvider()),
		router.WithMeterProvider(obs.MeterProvider()),
	)

	return &App{
		cfg:         cfg,
		log:         b.log,
		obs:         obs,
		ownsObs:     ownsObs,
		datasources: opened,
		unregister:  unregister,
		managers:    managers,
		router:      rt,
	}, nil
}

func (b *appBootstrap) shutdownObservability(p observability.Provider, owned bool) {
	if !owned {
		return
	}
	if err := observability.Shutdown(p, 0); err != nil {
		b.log.Error().Err(err).Msg("Failed to shutdown observability provider")
	}
}

// Router returns the transaction manager applications demarcate transactions with.
func (a *App) Router() *router.Router { return a.router }

// Config returns the configuration the App was built from.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the application logger.
func (a *App) Logger() logger.Logger { return a.log }

// Datasource returns the opened datasource called name.
func (a *App) Datasource(name string) (*datasource.Datasource, bool) {
	ds, ok := a.datasources[name]
	return ds, ok
}

// Manager returns the transaction manager of the datasource called name.
func (a *App) Manager(name string) (transaction.Manager, bool) {
	m, ok := a.managers[name]
	return m, ok
}

// DefaultDefinition returns the definition used by RunInTransaction, carrying the
// configured transaction timeout.
func (a *App) DefaultDefinition() *transaction.Definition {
	def := transaction.DefaultDefinition()
	def.Timeout = a.cfg.Transaction.Timeout
	return def
}

// RunInTransaction runs fn in a transaction demarcated through the router with
// DefaultDefinition. Select a datasource with WithDatasource.
func (a *App) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return transaction.RunInTransaction(ctx, a.router, a.DefaultDefinition(), fn)
}

// Close closes every datasource and shuts down the observability provider the App
// created.
func (a *App) Close(ctx context.Context) error {
	unregisterAll(a.unregister, a.log)
	err := closeAll(ctx, a.datasources, a.log)
	if a.ownsObs {
		if obsErr := a.obs.Shutdown(ctx); obsErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to shutdown observability: %w", obsErr))
		}
	}
	a.log.Info().Msg("Transaction router shutdown complete")
	return err
}
