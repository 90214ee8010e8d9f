// Package datasource opens the transactional resources named in the configuration:
// PostgreSQL (database/sql through pgx, or a native pgxpool), Oracle through go-ora
// and MongoDB clients. The opened handles are what the router classifies and keys
// its transaction managers on.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gaborage/txrouter/config"
	"github.com/gaborage/txrouter/logger"
)

const defaultConnectTimeout = 10 * time.Second

// ErrUnsupportedType is returned for a datasource type without an opener.
var ErrUnsupportedType = errors.New("unsupported datasource type")

// Datasource is an opened resource.
type Datasource struct {
	Name string
	Type string
	// Resource is the transactional handle: *sql.DB, *pgxpool.Pool or *mongo.Client.
	Resource any

	close func(ctx context.Context) error
}

// New wraps a resource opened elsewhere. closeFn may be nil.
func New(name, typ string, resource any, closeFn func(ctx context.Context) error) *Datasource {
	return &Datasource{Name: name, Type: typ, Resource: resource, close: closeFn}
}

// Close releases the underlying pool or client.
func (d *Datasource) Close(ctx context.Context) error {
	if d == nil || d.close == nil {
		return nil
	}
	return d.close(ctx)
}

// Open connects the datasource described by cfg and verifies it with a ping
// bounded by a connect timeout. A failed ping closes the handle.
func Open(ctx context.Context, name string, cfg *config.DatasourceConfig, log logger.Logger) (*Datasource, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithFields(map[string]any{"datasource": name, "type": cfg.Type})

	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	var (
		ds  *Datasource
		err error
	)
	switch cfg.Type {
	case config.PostgreSQL:
		if cfg.Mode == config.ModeNative {
			ds, err = openPostgresNative(ctx, cfg, log)
		} else {
			ds, err = openPostgres(ctx, cfg, log)
		}
	case config.Oracle:
		ds, err = openOracle(ctx, cfg, log)
	case config.MongoDB:
		ds, err = openMongo(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
	if err != nil {
		connErr := config.NewConnectionError("datasources."+name, err.Error(), troubleshooting(cfg))
		connErr.Cause = err
		return nil, connErr
	}
	ds.Name = name
	ds.Type = cfg.Type
	return ds, nil
}

func troubleshooting(cfg *config.DatasourceConfig) []string {
	if cfg.ConnectionString != "" {
		return []string{"verify the connection string", "check network access to the server"}
	}
	return []string{
		fmt.Sprintf("check that %s is reachable at %s:%d", cfg.Type, cfg.Host, cfg.Port),
		"verify username and password",
	}
}

// poolSettings is the subset of *sql.DB used to apply pool configuration.
type poolSettings interface {
	SetMaxOpenConns(n int)
	SetMaxIdleConns(n int)
	SetConnMaxLifetime(d time.Duration)
	SetConnMaxIdleTime(d time.Duration)
}

func applyPool(db poolSettings, pool config.PoolConfig) {
	if pool.MaxOpen > 0 {
		db.SetMaxOpenConns(pool.MaxOpen)
	}
	if pool.MaxIdle > 0 {
		db.SetMaxIdleConns(pool.MaxIdle)
	}
	if pool.MaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.MaxLifetime)
	}
	if pool.MaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.MaxIdleTime)
	}
}
