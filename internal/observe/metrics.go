// Package observe provides the observability primitives of asreval:
// OpenTelemetry metrics and tracing, trace-aware logging, and HTTP
// middleware.
//
// Instruments are created through the OpenTelemetry Metrics API and exposed
// for scraping by the Prometheus bridge set up in [InitProvider]. Tests should
// build their own [Metrics] with [NewMetrics] and a ManualReader-backed
// provider instead of relying on [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/asreval"

// Metrics holds the metric instruments of an evaluation run and of the
// HTTP API. All fields are safe for concurrent use.
type Metrics struct {
	// AlignmentDuration tracks the time to align and backtrace one utterance.
	AlignmentDuration metric.Float64Histogram

	// FileDuration tracks the time to evaluate one recording.
	FileDuration metric.Float64Histogram

	// Utterances counts evaluated utterances. Attributes:
	//   attribute.String("language", ...), attribute.String("status", ...)
	Utterances metric.Int64Counter

	// Files counts evaluated recordings. Attribute:
	//   attribute.String("status", ...)
	Files metric.Int64Counter

	// Operations counts edit operations. Attribute:
	//   attribute.String("kind", ...)
	Operations metric.Int64Counter

	// UtteranceWER is the distribution of per-utterance word error rates.
	UtteranceWER metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// Alignment is quadratic in utterance length, so the buckets reach further
// down than typical request latencies.
var latencyBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5,
}

var werBuckets = []float64{
	0, 0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1, 1.5, 2,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AlignmentDuration, err = m.Float64Histogram("asreval.alignment.duration",
		metric.WithDescription("Time to align and backtrace one utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FileDuration, err = m.Float64Histogram("asreval.file.duration",
		metric.WithDescription("Time to evaluate one recording."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("asreval.utterances",
		metric.WithDescription("Evaluated utterances by language and status."),
	); err != nil {
		return nil, err
	}
	if met.Files, err = m.Int64Counter("asreval.files",
		metric.WithDescription("Evaluated recordings by status."),
	); err != nil {
		return nil, err
	}
	if met.Operations, err = m.Int64Counter("asreval.operations",
		metric.WithDescription("Edit operations by kind."),
	); err != nil {
		return nil, err
	}
	if met.UtteranceWER, err = m.Float64Histogram("asreval.utterance.wer",
		metric.WithDescription("Word error rate of individual utterances."),
		metric.WithExplicitBucketBoundaries(werBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("asreval.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path and status."),
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

// DefaultMetrics returns the package-level [Metrics] built on the global
// meter provider. It panics if instrument creation fails.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// Status returns "ok" for a nil error and "error" otherwise.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordUtterance records one evaluated utterance: its alignment time, its
// word error rate when it succeeded, and the outcome counter.
func (m *Metrics) RecordUtterance(ctx context.Context, language string, d time.Duration, wer float64, err error) {
	m.AlignmentDuration.Record(ctx, d.Seconds())
	if err == nil {
		m.UtteranceWER.Record(ctx, wer, metric.WithAttributes(Attr("language", language)))
	}
	m.Utterances.Add(ctx, 1, metric.WithAttributes(
		Attr("language", language),
		Attr("status", Status(err)),
	))
}

// RecordOperations adds n operations of the named kind.
func (m *Metrics) RecordOperations(ctx context.Context, kind string, n int) {
	if n == 0 {
		return
	}
	m.Operations.Add(ctx, int64(n), metric.WithAttributes(Attr("kind", kind)))
}

// RecordFile records one evaluated recording.
func (m *Metrics) RecordFile(ctx context.Context, d time.Duration, err error) {
	m.FileDuration.Record(ctx, d.Seconds())
	m.Files.Add(ctx, 1, metric.WithAttributes(Attr("status", Status(err))))
}
