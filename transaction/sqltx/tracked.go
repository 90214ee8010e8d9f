package sqltx

import (
	"context"
	"database/sql"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/gaborage/txrouter/logger"
	"github.com/gaborage/txrouter/observability"
	"github.com/gaborage/txrouter/transaction"
)

const (
	// DefaultSlowBeginThreshold is the begin latency above which a warning is logged.
	DefaultSlowBeginThreshold = 200 * time.Millisecond

	trackedMeterName    = "github.com/gaborage/txrouter/transaction/sqltx"
	metricBeginDuration = "txrouter.begin.duration"
	attrBeginOutcome    = "txrouter.begin.outcome"
	attrTrackedResource = "txrouter.datasource"
)

// TrackedDataSource is a delegating data source that times every BeginTx, records
// the latency as a histogram and logs slow or failed begins. Like any delegating
// data source it shares the manager of its target.
type TrackedDataSource struct {
	target    DataSource
	name      string
	log       logger.Logger
	threshold time.Duration
	duration  metric.Float64Histogram
	// warns caps slow-begin warnings; the excess is logged at debug level.
	warns *rate.Limiter
}

var (
	_ DataSource             = (*TrackedDataSource)(nil)
	_ transaction.Delegating = (*TrackedDataSource)(nil)
)

// TrackOption configures a TrackedDataSource.
type TrackOption func(*trackConfig)

type trackConfig struct {
	log       logger.Logger
	mp        metric.MeterProvider
	threshold time.Duration
	warnRate  rate.Limit
}

// TrackWithLogger sets the logger for slow and failed begins.
func TrackWithLogger(log logger.Logger) TrackOption {
	return func(c *trackConfig) { c.log = log }
}

// TrackWithMeterProvider sets the meter provider. The global one is used otherwise.
func TrackWithMeterProvider(mp metric.MeterProvider) TrackOption {
	return func(c *trackConfig) { c.mp = mp }
}

// TrackWithSlowThreshold overrides DefaultSlowBeginThreshold. Zero or negative
// values keep the default.
func TrackWithSlowThreshold(d time.Duration) TrackOption {
	return func(c *trackConfig) {
		if d > 0 {
			c.threshold = d
		}
	}
}

// TrackWithWarnRate limits slow-begin warnings to n per second, with a burst of n.
// Non-positive values keep the default of one per second.
func TrackWithWarnRate(n float64) TrackOption {
	return func(c *trackConfig) {
		if n > 0 {
			c.warnRate = rate.Limit(n)
		}
	}
}

// NewTrackedDataSource wraps target. name labels the measurements.
func NewTrackedDataSource(target DataSource, name string, opts ...TrackOption) *TrackedDataSource {
	cfg := trackConfig{log: logger.Nop(), threshold: DefaultSlowBeginThreshold, warnRate: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.mp == nil {
		cfg.mp = otel.GetMeterProvider()
	}

	burst := max(int(cfg.warnRate), 1)
	t := &TrackedDataSource{
		target:    target,
		name:      name,
		log:       cfg.log,
		threshold: cfg.threshold,
		warns:     rate.NewLimiter(cfg.warnRate, burst),
	}
	h, err := observability.CreateHistogram(cfg.mp.Meter(trackedMeterName), metricBeginDuration,
		"Latency of starting a relational transaction", metric.WithUnit("ms"))
	if err != nil {
		cfg.log.Warn().Err(err).Str("metric", metricBeginDuration).Msg("Failed to create metric instrument")
	}
	t.duration = h
	return t
}

// BeginTx implements DataSource.
func (t *TrackedDataSource) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	start := time.Now()
	tx, err := t.target.BeginTx(ctx, opts)
	elapsed := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	if t.duration != nil {
		t.duration.Record(ctx, float64(elapsed.Microseconds())/1000, metric.WithAttributes(
			attribute.String(attrTrackedResource, t.name),
			attribute.String(attrBeginOutcome, outcome),
		))
	}

	log := t.log.WithFields(map[string]any{
		"datasource":  t.name,
		"duration_ms": elapsed.Milliseconds(),
	})
	switch {
	case err != nil:
		log.Error().Err(err).Msg("Failed to begin transaction")
	case elapsed > t.threshold && t.warns.Allow():
		log.Warn().Msgf("Slow transaction begin detected (%s)", elapsed)
	case elapsed > t.threshold:
		log.Debug().Msgf("Slow transaction begin detected (%s)", elapsed)
	default:
		log.Debug().Msg("Transaction begun")
	}
	return tx, err
}

// Target implements transaction.Delegating.
func (t *TrackedDataSource) Target() any { return t.target }
