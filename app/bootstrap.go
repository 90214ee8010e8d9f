package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gaborage/txrouter/config"
	"github.com/gaborage/txrouter/datasource"
	"github.com/gaborage/txrouter/logger"
	"github.com/gaborage/txrouter/observability"
	"github.com/gaborage/txrouter/router"
	"github.com/gaborage/txrouter/transaction"
	"github.com/gaborage/txrouter/transaction/sqltx"
)

// appBootstrap runs the initialization sequence of an App.
type appBootstrap struct {
	cfg  *config.Config
	log  logger.Logger
	opts *Options
}

func newAppBootstrap(cfg *config.Config, opts *Options) *appBootstrap {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.New(cfg.Log.Level, cfg.Log.Pretty)
	}
	return &appBootstrap{cfg: cfg, log: log, opts: opts}
}

// observability returns the provider and whether the App owns it.
func (b *appBootstrap) observability() (observability.Provider, bool, error) {
	if b.opts.Observability != nil {
		return b.opts.Observability, false, nil
	}
	if !b.cfg.Exists("observability") {
		return observability.NewNoopProvider(), true, nil
	}

	var obsCfg observability.Config
	if err := b.cfg.Unmarshal("observability", &obsCfg); err != nil {
		return nil, false, fmt.Errorf("failed to read observability config: %w", err)
	}
	if obsCfg.Service.Name == "" {
		obsCfg.Service.Name = b.cfg.App.Name
	}
	if obsCfg.Environment == "" {
		obsCfg.Environment = b.cfg.App.Env
	}
	p, err := observability.NewProvider(&obsCfg, b.log)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// openDatasources opens every configured datasource concurrently. On failure the
// ones already opened are closed.
func (b *appBootstrap) openDatasources(ctx context.Context) (map[string]*datasource.Datasource, error) {
	opener := b.opts.Opener
	if opener == nil {
		opener = datasource.Open
	}

	var (
		mu     sync.Mutex
		opened = make(map[string]*datasource.Datasource, len(b.cfg.Datasources))
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, dsCfg := range b.cfg.Datasources {
		g.Go(func() error {
			ds, err := opener(gctx, name, &dsCfg, b.log)
			if err != nil {
				return fmt.Errorf("failed to open datasource %s: %w", name, err)
			}
			mu.Lock()
			opened[name] = ds
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = closeAll(context.WithoutCancel(ctx), opened, b.log)
		return nil, err
	}
	return opened, nil
}

// factory builds managers with the configured synchronization mode.
func (b *appBootstrap) factory() (router.Factory, error) {
	mode, err := transaction.ParseSyncMode(b.cfg.Transaction.Synchronization)
	if err != nil {
		return nil, config.NewInvalidFieldError("transaction.synchronization", err.Error(),
			[]string{"always", "on_actual", "never"})
	}
	base := router.NewFactory(b.log)
	return func(resource any) (transaction.Manager, error) {
		m, err := base(resource)
		if err != nil {
			return nil, err
		}
		if sc, ok := m.(transaction.SynchronizationConfigurer); ok {
			sc.SetSynchronization(mode)
		}
		return m, nil
	}, nil
}

// managers creates one manager per datasource and registers it. Relational
// datasources are tracked so begin latency is measured; the registry still keys
// their managers on the opened handle.
func (b *appBootstrap) managers(factory router.Factory, registry *router.Registry,
	opened map[string]*datasource.Datasource, obs observability.Provider) (map[string]transaction.Manager, error) {
	managers := make(map[string]transaction.Manager, len(opened))
	for _, name := range sortedKeys(opened) {
		resource := opened[name].Resource
		if db, ok := resource.(*sql.DB); ok {
			resource = sqltx.NewTrackedDataSource(db, name,
				sqltx.TrackWithLogger(b.log),
				sqltx.TrackWithMeterProvider(obs.MeterProvider()),
				sqltx.TrackWithSlowThreshold(b.cfg.Transaction.SlowBegin))
		}
		m, err := factory(resource)
		if err != nil {
			return nil, fmt.Errorf("failed to create transaction manager for datasource %s: %w", name, err)
		}
		registry.Register(m)
		managers[name] = m
		b.log.Debug().
			Str("datasource", name).
			Str("manager_type", fmt.Sprintf("%T", m)).
			Msg("Registered transaction manager")
	}
	return managers, nil
}

// poolMetrics registers the pool gauges of every opened datasource. Registration
// failures are logged and do not fail the App.
func (b *appBootstrap) poolMetrics(obs observability.Provider, opened map[string]*datasource.Datasource) []func() error {
	meter := obs.MeterProvider().Meter(datasource.MeterName)
	unregister := make([]func() error, 0, len(opened))
	for _, name := range sortedKeys(opened) {
		fn, err := datasource.RegisterPoolMetrics(meter, opened[name])
		if err != nil {
			b.log.Warn().Err(err).Str("datasource", name).Msg("Failed to register connection pool metrics")
		}
		unregister = append(unregister, fn)
	}
	return unregister
}

func unregisterAll(fns []func() error, log logger.Logger) {
	for _, fn := range fns {
		if err := fn(); err != nil {
			log.Warn().Err(err).Msg("Failed to unregister connection pool metrics")
		}
	}
}

func closeAll(ctx context.Context, opened map[string]*datasource.Datasource, log logger.Logger) error {
	var errs []error
	for _, name := range sortedKeys(opened) {
		if err := opened[name].Close(ctx); err != nil {
			log.Error().Err(err).Str("datasource", name).Msg("Failed to close datasource")
			errs = append(errs, fmt.Errorf("close datasource %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
