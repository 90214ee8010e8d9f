package router

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/txrouter/logger"
)

const instrumentationName = "github.com/gaborage/txrouter/router"

type settings struct {
	resolver       Resolver
	registry       *Registry
	factory        Factory
	customFactory  bool
	log            logger.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Router or a Registry.
type Option func(*settings)

// WithResolver sets the active-resource resolver. Defaults to NoopResolver.
func WithResolver(r Resolver) Option {
	return func(s *settings) { s.resolver = r }
}

// WithRegistry sets the registry a Router dispatches through. Defaults to DefaultRegistry().
func WithRegistry(r *Registry) Option {
	return func(s *settings) { s.registry = r }
}

// WithFactory sets the factory a Registry creates managers with. It is a
// registry option: New ignores it, with a warning, since a Router only
// dispatches through an existing registry. Pass it to NewRegistry instead.
func WithFactory(f Factory) Option {
	return func(s *settings) {
		s.factory = f
		s.customFactory = f != nil
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(s *settings) { s.log = log }
}

// WithTracerProvider sets the tracer provider. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *settings) { s.meterProvider = mp }
}

func newSettings(opts []Option) *settings {
	s := &settings{}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.resolver == nil {
		s.resolver = NoopResolver{}
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	if s.factory == nil {
		s.factory = NewFactory(s.log)
	}
	if s.tracerProvider == nil {
		s.tracerProvider = otel.GetTracerProvider()
	}
	if s.meterProvider == nil {
		s.meterProvider = otel.GetMeterProvider()
	}
	return s
}

func (s *settings) meter() metric.Meter {
	return s.meterProvider.Meter(instrumentationName)
}
