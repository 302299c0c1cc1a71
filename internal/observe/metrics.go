// Package observe provides application-wide observability primitives for
// voxbridge: OpenTelemetry metrics, tracing, structured logging helpers, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxbridge metrics.
const meterName = "github.com/hveldt/voxbridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ResampleDuration tracks per-chunk resampling latency. Use with
	// attribute.String("direction", "capture"|"playback").
	ResampleDuration metric.Float64Histogram

	// ResampledChunks counts chunks that passed through a stream resampler,
	// by direction.
	ResampledChunks metric.Int64Counter

	// ResampledBytes counts input PCM bytes consumed by the resamplers, by
	// direction.
	ResampledBytes metric.Int64Counter

	// InvalidAudioInputs counts chunks rejected as malformed, by direction.
	// Each increment corresponds to a halted stream.
	InvalidAudioInputs metric.Int64Counter

	// RealtimeAudioChunks counts audio chunks exchanged with the realtime
	// speech API. Use with attribute.String("direction", "send"|"receive").
	RealtimeAudioChunks metric.Int64Counter

	// ActiveConnections tracks the number of live guild voice connections.
	ActiveConnections metric.Int64UpDownCounter

	// ConnectionTeardowns counts voice connection cleanups. Use with
	// attribute.Bool("forced", ...) for recovered stale connections and
	// attribute.String("status", "ok"|"error") for the transport outcome.
	ConnectionTeardowns metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for per-chunk audio processing latencies.
var latencyBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ResampleDuration, err = m.Float64Histogram("voxbridge.resample.duration",
		metric.WithDescription("Per-chunk resampling latency by direction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ResampledChunks, err = m.Int64Counter("voxbridge.resample.chunks",
		metric.WithDescription("Total chunks processed by the stream resamplers, by direction."),
	); err != nil {
		return nil, err
	}
	if met.ResampledBytes, err = m.Int64Counter("voxbridge.resample.bytes",
		metric.WithDescription("Total input PCM bytes consumed by the stream resamplers, by direction."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.InvalidAudioInputs, err = m.Int64Counter("voxbridge.resample.invalid_inputs",
		metric.WithDescription("Total malformed chunks rejected by the resamplers, by direction."),
	); err != nil {
		return nil, err
	}
	if met.RealtimeAudioChunks, err = m.Int64Counter("voxbridge.realtime.audio_chunks",
		metric.WithDescription("Total audio chunks exchanged with the realtime speech API, by direction."),
	); err != nil {
		return nil, err
	}

	if met.ActiveConnections, err = m.Int64UpDownCounter("voxbridge.voice.active_connections",
		metric.WithDescription("Number of live guild voice connections."),
	); err != nil {
		return nil, err
	}
	if met.ConnectionTeardowns, err = m.Int64Counter("voxbridge.voice.teardowns",
		metric.WithDescription("Total voice connection cleanups by forced flag and status."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("voxbridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordResample records one processed chunk for the given direction.
func (m *Metrics) RecordResample(ctx context.Context, direction string, inputBytes int, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("direction", direction))
	m.ResampleDuration.Record(ctx, d.Seconds(), attrs)
	m.ResampledChunks.Add(ctx, 1, attrs)
	m.ResampledBytes.Add(ctx, int64(inputBytes), attrs)
}

// RecordInvalidInput records one rejected chunk for the given direction.
func (m *Metrics) RecordInvalidInput(ctx context.Context, direction string) {
	m.InvalidAudioInputs.Add(ctx, 1,
		metric.WithAttributes(attribute.String("direction", direction)))
}

// RecordRealtimeChunk records one audio chunk exchanged with the realtime
// speech API ("send" or "receive").
func (m *Metrics) RecordRealtimeChunk(ctx context.Context, direction string) {
	m.RealtimeAudioChunks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("direction", direction)))
}
