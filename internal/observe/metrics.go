// Package observe provides application-wide observability primitives for
// Voicewire: OpenTelemetry metrics, tracing, and HTTP middleware for the
// operational endpoints.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voicewire metrics.
const meterName = "github.com/convogrid/voicewire"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Counters ---

	// ChunksCaptured counts microphone chunks emitted while listening.
	ChunksCaptured metric.Int64Counter

	// FramesSent counts frames handed to the transport.
	FramesSent metric.Int64Counter

	// FramesDropped counts outbound frames evicted under backpressure.
	FramesDropped metric.Int64Counter

	// DecodeFailures counts inbound frames that failed to decode.
	DecodeFailures metric.Int64Counter

	// TurnTransitions counts turn state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	TurnTransitions metric.Int64Counter

	// TranscriptEvents counts transcript deliveries. Use with attribute:
	//   attribute.String("speaker", ...)
	TranscriptEvents metric.Int64Counter

	// SynthRequests counts local synthesis attempts. Use with attribute:
	//   attribute.String("status", ...)
	SynthRequests metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live conversation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- Histograms ---

	// TurnDuration tracks the time from utterance handoff to the first
	// playable agent chunk.
	TurnDuration metric.Float64Histogram

	// SessionDuration tracks full session lifetimes.
	SessionDuration metric.Float64Histogram

	// HTTPRequestDuration tracks operational endpoint latency. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// conversational turn latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ChunksCaptured, err = m.Int64Counter("voicewire.capture.chunks",
		metric.WithDescription("Total microphone chunks emitted while listening."),
	); err != nil {
		return nil, err
	}
	if met.FramesSent, err = m.Int64Counter("voicewire.transport.frames_sent",
		metric.WithDescription("Total frames handed to the transport."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voicewire.transport.frames_dropped",
		metric.WithDescription("Total outbound frames evicted under backpressure."),
	); err != nil {
		return nil, err
	}
	if met.DecodeFailures, err = m.Int64Counter("voicewire.wire.decode_failures",
		metric.WithDescription("Total inbound frames that failed to decode."),
	); err != nil {
		return nil, err
	}
	if met.TurnTransitions, err = m.Int64Counter("voicewire.turn.transitions",
		metric.WithDescription("Total turn state changes by from and to state."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptEvents, err = m.Int64Counter("voicewire.transcripts",
		metric.WithDescription("Total transcript deliveries by speaker."),
	); err != nil {
		return nil, err
	}
	if met.SynthRequests, err = m.Int64Counter("voicewire.synth.requests",
		metric.WithDescription("Total local synthesis attempts by status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voicewire.active_sessions",
		metric.WithDescription("Number of live conversation sessions."),
	); err != nil {
		return nil, err
	}

	if met.TurnDuration, err = m.Float64Histogram("voicewire.turn.duration",
		metric.WithDescription("Time from utterance handoff to first playable agent chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("voicewire.session.duration",
		metric.WithDescription("Full session lifetime."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voicewire.http.request.duration",
		metric.WithDescription("Operational endpoint latency by method and path."),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTurnTransition records one turn state change.
func (m *Metrics) RecordTurnTransition(ctx context.Context, from, to string) {
	m.TurnTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordTranscript records one transcript delivery.
func (m *Metrics) RecordTranscript(ctx context.Context, speaker string) {
	m.TranscriptEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("speaker", speaker)),
	)
}

// RecordSynthRequest records one local synthesis attempt.
func (m *Metrics) RecordSynthRequest(ctx context.Context, status string) {
	m.SynthRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
