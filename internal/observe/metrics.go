// Package observe provides application-wide observability primitives for
// Doorwarden: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
//
// Telemetry is strictly fire-and-forget with respect to the authentication
// flow: the OTel metric API does not return errors at record time, so a
// broken exporter can never affect an access decision.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Doorwarden metrics.
const meterName = "github.com/MrWong99/doorwarden"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// MatchDuration tracks passphrase matching latency.
	MatchDuration metric.Float64Histogram

	// PlaybackDuration tracks prompt playback latency on the device.
	PlaybackDuration metric.Float64Histogram

	// RecordDuration tracks audio capture latency on the device.
	RecordDuration metric.Float64Histogram

	// SessionDuration tracks the full doorbell event duration.
	SessionDuration metric.Float64Histogram

	// --- Counters ---

	// Attempts counts passphrase attempts. Use with attributes:
	//   attribute.String("device", ...), attribute.Bool("matched", ...)
	Attempts metric.Int64Counter

	// Outcomes counts terminal session outcomes. Use with attributes:
	//   attribute.String("device", ...), attribute.String("status", ...)
	Outcomes metric.Int64Counter

	// NoAudioRounds counts recording rounds that captured no usable audio.
	NoAudioRounds metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live doorbell sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// the range from sub-second prompt playback to multi-second recordings.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.STTDuration, err = m.Float64Histogram("doorwarden.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MatchDuration, err = m.Float64Histogram("doorwarden.match.duration",
		metric.WithDescription("Latency of passphrase matching."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("doorwarden.playback.duration",
		metric.WithDescription("Latency of prompt playback on the device."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecordDuration, err = m.Float64Histogram("doorwarden.record.duration",
		metric.WithDescription("Latency of audio capture on the device."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("doorwarden.session.duration",
		metric.WithDescription("Duration of a full doorbell event."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Attempts, err = m.Int64Counter("doorwarden.attempts",
		metric.WithDescription("Total passphrase attempts by device and match result."),
	); err != nil {
		return nil, err
	}
	if met.Outcomes, err = m.Int64Counter("doorwarden.outcomes",
		metric.WithDescription("Total terminal session outcomes by device and status."),
	); err != nil {
		return nil, err
	}
	if met.NoAudioRounds, err = m.Int64Counter("doorwarden.no_audio_rounds",
		metric.WithDescription("Total recording rounds that captured no usable audio."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("doorwarden.active_sessions",
		metric.WithDescription("Number of live doorbell sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("doorwarden.http.request.duration",
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

// RecordAttempt records one passphrase attempt with the standard attribute set.
func (m *Metrics) RecordAttempt(ctx context.Context, deviceID string, matched bool) {
	m.Attempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("device", deviceID),
			attribute.Bool("matched", matched),
		),
	)
}

// RecordOutcome records one terminal session outcome with the standard
// attribute set.
func (m *Metrics) RecordOutcome(ctx context.Context, deviceID, status string) {
	m.Outcomes.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("device", deviceID),
			attribute.String("status", status),
		),
	)
}
