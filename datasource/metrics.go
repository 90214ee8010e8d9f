package datasource

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// MeterName is the instrumentation scope of the pool gauges.
	MeterName = "github.com/gaborage/txrouter/datasource"

	metricPoolActive = "db.connection.pool.active"
	metricPoolIdle   = "db.connection.pool.idle"
	metricPoolTotal  = "db.connection.pool.total"
)

// PoolStats is a point-in-time view of a connection pool.
type PoolStats struct {
	InUse   int64
	Idle    int64
	MaxOpen int64
}

// Stats reports the pool statistics of the datasource. ok is false for resources
// without a connection pool view, such as MongoDB clients.
func (d *Datasource) Stats() (PoolStats, bool) {
	switch r := d.Resource.(type) {
	case *sql.DB:
		s := r.Stats()
		return PoolStats{InUse: int64(s.InUse), Idle: int64(s.Idle), MaxOpen: int64(s.MaxOpenConnections)}, true
	case *pgxpool.Pool:
		s := r.Stat()
		return PoolStats{InUse: int64(s.AcquiredConns()), Idle: int64(s.IdleConns()), MaxOpen: int64(s.MaxConns())}, true
	default:
		return PoolStats{}, false
	}
}

type poolGauges struct {
	ds     *Datasource
	active metric.Int64ObservableGauge
	idle   metric.Int64ObservableGauge
	total  metric.Int64ObservableGauge
	attrs  metric.MeasurementOption
}

func (g *poolGauges) observe(_ context.Context, o metric.Observer) error {
	stats, ok := g.ds.Stats()
	if !ok {
		return nil
	}
	o.ObserveInt64(g.active, stats.InUse, g.attrs)
	o.ObserveInt64(g.idle, stats.Idle, g.attrs)
	o.ObserveInt64(g.total, stats.MaxOpen, g.attrs)
	return nil
}

// RegisterPoolMetrics registers observable gauges reporting the pool of ds on
// every collection. The returned function unregisters them. Datasources without
// a pool view register nothing.
func RegisterPoolMetrics(meter metric.Meter, ds *Datasource) (func() error, error) {
	noop := func() error { return nil }
	if _, ok := ds.Stats(); !ok {
		return noop, nil
	}

	g := &poolGauges{
		ds: ds,
		attrs: metric.WithAttributes(
			attribute.String("db.system", ds.Type),
			attribute.String("txrouter.datasource", ds.Name),
		),
	}
	var err, gErr error
	g.active, gErr = meter.Int64ObservableGauge(metricPoolActive, metric.WithDescription("Number of active database connections"))
	err = errors.Join(err, gErr)
	g.idle, gErr = meter.Int64ObservableGauge(metricPoolIdle, metric.WithDescription("Number of idle database connections"))
	err = errors.Join(err, gErr)
	g.total, gErr = meter.Int64ObservableGauge(metricPoolTotal, metric.WithDescription("Maximum number of database connections configured"))
	err = errors.Join(err, gErr)
	if err != nil {
		return noop, err
	}

	reg, err := meter.RegisterCallback(g.observe, g.active, g.idle, g.total)
	if err != nil {
		return noop, err
	}
	return reg.Unregister, nil
}
