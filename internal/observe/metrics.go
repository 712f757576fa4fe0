// Package observe provides application-wide observability primitives for
// pitchtrace: OpenTelemetry metrics, tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// installs a Prometheus exporter bridge so they can be scraped from /metrics.
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all pitchtrace metrics.
const meterName = "github.com/MrWong99/pitchtrace"

// Reasons reported with [Metrics.FramesDropped].
const (
	DropInference = "inference"
	DropCanceled  = "canceled"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// InferenceDuration tracks the latency of one model call per frame.
	InferenceDuration metric.Float64Histogram

	// FramesAssembled counts analysis frames produced by the assembler.
	FramesAssembled metric.Int64Counter

	// FramesDropped counts frames that produced no estimate. Use with
	// attribute.String("reason", ...).
	FramesDropped metric.Int64Counter

	// PointsEmitted counts points appended to the pitch series. Use with
	// attribute.Bool("valid", ...).
	PointsEmitted metric.Int64Counter

	// CaptureSessions tracks the number of live capture sessions.
	CaptureSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes method and path.
	HTTPRequestDuration metric.Float64Histogram
}

// inferenceBuckets are histogram boundaries in seconds sized for a single
// frame inference, which must stay well below the 64 ms frame period.
var inferenceBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.02, 0.032, 0.064, 0.128, 0.25, 0.5,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.InferenceDuration, err = m.Float64Histogram("pitchtrace.inference.duration",
		metric.WithDescription("Latency of one pitch model inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(inferenceBuckets...),
	); err != nil {
		return nil, err
	}

	if met.FramesAssembled, err = m.Int64Counter("pitchtrace.frames.assembled",
		metric.WithDescription("Total analysis frames assembled from capture chunks."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("pitchtrace.frames.dropped",
		metric.WithDescription("Total analysis frames that produced no estimate, by reason."),
	); err != nil {
		return nil, err
	}
	if met.PointsEmitted, err = m.Int64Counter("pitchtrace.points.emitted",
		metric.WithDescription("Total pitch points appended to the series, by validity."),
	); err != nil {
		return nil, err
	}

	if met.CaptureSessions, err = m.Int64UpDownCounter("pitchtrace.capture.sessions",
		metric.WithDescription("Number of live capture sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("pitchtrace.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordInference records the duration of one inference call tagged with the
// engine name and outcome.
func (m *Metrics) RecordInference(ctx context.Context, engine string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.InferenceDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("engine", engine),
			attribute.String("status", status),
		),
	)
}

// RecordFrameDropped increments the dropped-frame counter for reason.
func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordPoint increments the emitted-point counter. valid is false for NaN
// points.
func (m *Metrics) RecordPoint(ctx context.Context, valid bool) {
	m.PointsEmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("valid", strconv.FormatBool(valid))))
}
