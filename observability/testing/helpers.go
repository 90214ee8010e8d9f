// Package testing provides in-memory OpenTelemetry providers and assertions for
// unit tests of instrumented txrouter components.
//
// Usage:
//
//	tp := NewTestTraceProvider()
//	mp := NewTestMeterProvider()
//	r := router.New(fallback, router.WithTracerProvider(tp), router.WithMeterProvider(mp))
//
//	spans := NewSpanCollector(t, tp.Exporter).WithName("txrouter.commit")
//	assert.Equal(t, int64(1), SumInt64(t, mp.Collect(t), "txrouter.calls"))
package testing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTraceProvider wraps the SDK TracerProvider and in-memory exporter for testing.
type TestTraceProvider struct {
	*sdktrace.TracerProvider
	Exporter *tracetest.InMemoryExporter
}

// NewTestTraceProvider creates a TracerProvider exporting synchronously to memory.
func NewTestTraceProvider() *TestTraceProvider {
	exporter := tracetest.NewInMemoryExporter()
	return &TestTraceProvider{
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)),
		Exporter:       exporter,
	}
}

// TestMeterProvider wraps the SDK MeterProvider and manual reader for testing.
type TestMeterProvider struct {
	*sdkmetric.MeterProvider
	Reader *sdkmetric.ManualReader
}

// NewTestMeterProvider creates a MeterProvider read on demand.
func NewTestMeterProvider() *TestMeterProvider {
	reader := sdkmetric.NewManualReader()
	return &TestMeterProvider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		Reader:        reader,
	}
}

// Collect reads all metrics from the provider.
func (tmp *TestMeterProvider) Collect(t *testing.T) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, tmp.Reader.Collect(context.Background(), &rm), "failed to collect metrics")
	return rm
}

// SpanCollector filters captured spans.
type SpanCollector struct {
	t     *testing.T
	spans tracetest.SpanStubs
}

// NewSpanCollector snapshots the spans of exporter.
func NewSpanCollector(t *testing.T, exporter *tracetest.InMemoryExporter) *SpanCollector {
	t.Helper()
	return &SpanCollector{t: t, spans: exporter.GetSpans()}
}

// Len returns the number of collected spans.
func (sc *SpanCollector) Len() int { return len(sc.spans) }

// WithName keeps the spans called name.
func (sc *SpanCollector) WithName(name string) *SpanCollector {
	filtered := make(tracetest.SpanStubs, 0, len(sc.spans))
	for i := range sc.spans {
		if sc.spans[i].Name == name {
			filtered = append(filtered, sc.spans[i])
		}
	}
	return &SpanCollector{t: sc.t, spans: filtered}
}

// First returns the first span, failing the test when there is none.
func (sc *SpanCollector) First() tracetest.SpanStub {
	sc.t.Helper()
	require.NotEmpty(sc.t, sc.spans, "no spans in collection")
	return sc.spans[0]
}

// AssertCount asserts the number of collected spans.
func (sc *SpanCollector) AssertCount(expected int) *SpanCollector {
	sc.t.Helper()
	assert.Len(sc.t, sc.spans, expected, "unexpected number of spans")
	return sc
}

// AssertSpanAttribute asserts that span carries key with the expected value.
func AssertSpanAttribute(t *testing.T, span *tracetest.SpanStub, key string, expected any) {
	t.Helper()
	for _, attr := range span.Attributes {
		if string(attr.Key) != key {
			continue
		}
		switch v := expected.(type) {
		case string:
			assert.Equal(t, v, attr.Value.AsString(), "attribute %s value mismatch", key)
		case bool:
			assert.Equal(t, v, attr.Value.AsBool(), "attribute %s value mismatch", key)
		case int:
			assert.Equal(t, int64(v), attr.Value.AsInt64(), "attribute %s value mismatch", key)
		default:
			t.Fatalf("unsupported attribute value type: %T", expected)
		}
		return
	}
	t.Errorf("attribute %s not found in span", key)
}

// AssertSpanError asserts an error status, and the description when not empty.
func AssertSpanError(t *testing.T, span *tracetest.SpanStub, expectedDesc string) {
	t.Helper()
	assert.Equal(t, codes.Error, span.Status.Code, "expected error status")
	if expectedDesc != "" {
		assert.Equal(t, expectedDesc, span.Status.Description, "span error description mismatch")
	}
}

// AssertSpanOK asserts that span did not record an error.
func AssertSpanOK(t *testing.T, span *tracetest.SpanStub) {
	t.Helper()
	assert.NotEqual(t, codes.Error, span.Status.Code, "unexpected error status: %s", span.Status.Description)
}

// FindMetric finds a metric by name, nil when absent.
func FindMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// SumInt64 adds up the data points of an int64 counter whose attributes contain
// every attribute in match. A missing metric sums to zero.
func SumInt64(t *testing.T, rm metricdata.ResourceMetrics, name string, match ...attribute.KeyValue) int64 {
	t.Helper()
	m := FindMetric(rm, name)
	if m == nil {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is %T, not Sum[int64]", name, m.Data)

	var total int64
	for _, dp := range sum.DataPoints {
		if hasAll(dp.Attributes, match) {
			total += dp.Value
		}
	}
	return total
}

func hasAll(set attribute.Set, match []attribute.KeyValue) bool {
	for _, kv := range match {
		v, ok := set.Value(kv.Key)
		if !ok || v != kv.Value {
			return false
		}
	}
	return true
}
