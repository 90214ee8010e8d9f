package observability

import (
	"fmt"
	"strings"
	"time"
)

const (
	// EndpointStdout selects the pretty-printing stdout exporters.
	EndpointStdout = "stdout"

	ProtocolHTTP = "http"
	ProtocolGRPC = "grpc"

	defaultSampleRate      = 1.0
	defaultMetricsInterval = 30 * time.Second
	defaultBatchTimeout    = 5 * time.Second
)

// Config configures the OpenTelemetry provider. It is read from the
// "observability" section of the txrouter configuration.
type Config struct {
	Enabled     bool          `koanf:"enabled"`
	Service     ServiceConfig `koanf:"service"`
	Environment string        `koanf:"environment"`
	// Endpoint is EndpointStdout or an OTLP collector address (host:port).
	Endpoint string `koanf:"endpoint"`
	Protocol string `koanf:"protocol"`
	Insecure bool   `koanf:"insecure"`
	// Headers are sent with every OTLP export, e.g. for authentication.
	Headers map[string]string `koanf:"headers"`

	// SampleRate is the trace sampling ratio in [0.0, 1.0]. Nil means 1.0;
	// a pointer keeps an explicit 0.0 distinguishable from unset.
	SampleRate      *float64      `koanf:"samplerate"`
	BatchTimeout    time.Duration `koanf:"batchtimeout"`
	MetricsInterval time.Duration `koanf:"metricsinterval"`
}

// ServiceConfig identifies the service in exported resources.
type ServiceConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = EndpointStdout
	}
	if c.Protocol == "" {
		c.Protocol = ProtocolHTTP
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SampleRate == nil {
		rate := defaultSampleRate
		c.SampleRate = &rate
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = defaultBatchTimeout
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = defaultMetricsInterval
	}
}

// Validate checks an enabled configuration. A disabled one is always valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if !c.Enabled {
		return nil
	}
	if c.Service.Name == "" {
		return ErrMissingServiceName
	}
	if c.SampleRate != nil && (*c.SampleRate < 0 || *c.SampleRate > 1) {
		return fmt.Errorf("%w: got %v", ErrInvalidSampleRate, *c.SampleRate)
	}
	if c.Endpoint == EndpointStdout {
		return nil
	}
	if c.Protocol != ProtocolHTTP && c.Protocol != ProtocolGRPC {
		return fmt.Errorf("protocol '%s': %w", c.Protocol, ErrInvalidProtocol)
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint '%s': %w", c.Endpoint, ErrInvalidEndpointFormat)
	}
	return nil
}
