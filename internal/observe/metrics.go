// Package observe provides application-wide observability primitives for
// Expertline: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all Expertline metrics.
const meterName = "github.com/expertline/expertline"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per turn stage ---

	// TranscriptionDuration tracks speech-to-text transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// RoutingDuration tracks expert routing latency.
	RoutingDuration metric.Float64Histogram

	// GenerationDuration tracks streamed answer generation latency.
	GenerationDuration metric.Float64Histogram

	// SynthesisDuration tracks text-to-speech synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end turn latency.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// Turns counts completed turns. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	Turns metric.Int64Counter

	// ExpertSwitches counts turns in which routing picked a different
	// expert than the one previously bound to the session.
	ExpertSwitches metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveCalls tracks the number of live call sessions.
	ActiveCalls metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	stageHistogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.TranscriptionDuration, err = stageHistogram("expertline.transcription.duration",
		"Latency of speech-to-text transcription."); err != nil {
		return nil, err
	}
	if met.RoutingDuration, err = stageHistogram("expertline.routing.duration",
		"Latency of expert routing."); err != nil {
		return nil, err
	}
	if met.GenerationDuration, err = stageHistogram("expertline.generation.duration",
		"Latency of streamed answer generation."); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = stageHistogram("expertline.synthesis.duration",
		"Latency of text-to-speech synthesis."); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = stageHistogram("expertline.turn.duration",
		"End-to-end turn latency."); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("expertline.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("expertline.turns",
		metric.WithDescription("Total completed turns by status."),
	); err != nil {
		return nil, err
	}
	if met.ExpertSwitches, err = m.Int64Counter("expertline.expert.switches",
		metric.WithDescription("Total turns that switched to a different expert."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("expertline.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("expertline.active_calls",
		metric.WithDescription("Number of live call sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("expertline.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTurn is a convenience method that records a completed turn.
func (m *Metrics) RecordTurn(ctx context.Context, status string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
