// Package observe provides observability primitives for voxscribe:
// OpenTelemetry metrics, distributed tracing, trace-aware logging and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]; [Provider.MetricsHandler] serves them. A
// package-level [DefaultMetrics] instance is provided for convenience; tests
// should use [NewMetrics] with their own [metric.MeterProvider] to avoid
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

// scopeName is the instrumentation scope of every voxscribe meter and tracer.
const scopeName = "github.com/MrWong99/voxscribe"

// Metrics holds all OpenTelemetry instruments of the application. The
// underlying OTel types are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// RecognitionDuration tracks one Recognize call. Attributes:
	//   attribute.String("provider", ...), attribute.String("outcome", ...)
	RecognitionDuration metric.Float64Histogram

	// JobDuration tracks a whole transcription job from PCM to transcript.
	JobDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Segmentation counters ---

	Frames           metric.Int64Counter
	SpeechFrames     metric.Int64Counter
	ClassifierErrors metric.Int64Counter
	Segments         metric.Int64Counter
	Chunks           metric.Int64Counter

	// ChunkOutcomes counts dispatched chunks by attribute.String("outcome", ...).
	ChunkOutcomes metric.Int64Counter

	// --- Provider counters ---

	// ProviderRequests counts recognition requests. Attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed recognition requests by provider.
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes:
	//   attribute.String("breaker", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveJobs tracks the number of transcription jobs in flight.
	ActiveJobs metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries in seconds, sized for recognition
// calls that take from tens of milliseconds to most of a minute.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(scopeName)
	var err error
	met := &Metrics{}

	if met.RecognitionDuration, err = m.Float64Histogram("voxscribe.recognition.duration",
		metric.WithDescription("Latency of a single speech recognition request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.JobDuration, err = m.Float64Histogram("voxscribe.job.duration",
		metric.WithDescription("Latency of a complete transcription job."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxscribe.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.Frames, "voxscribe.vad.frames", "Analysis frames classified."},
		{&met.SpeechFrames, "voxscribe.vad.speech_frames", "Analysis frames classified as speech."},
		{&met.ClassifierErrors, "voxscribe.vad.errors", "Frames whose classification failed."},
		{&met.Segments, "voxscribe.segments", "Speech segments assembled."},
		{&met.Chunks, "voxscribe.chunks", "Aggregated chunks handed to recognition."},
		{&met.ChunkOutcomes, "voxscribe.chunk.outcomes", "Dispatched chunks by outcome."},
		{&met.ProviderRequests, "voxscribe.provider.requests", "Recognition requests by provider and status."},
		{&met.ProviderErrors, "voxscribe.provider.errors", "Failed recognition requests by provider."},
		{&met.BreakerTransitions, "voxscribe.breaker.transitions", "Circuit breaker state changes by breaker and new state."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveJobs, err = m.Int64UpDownCounter("voxscribe.active_jobs",
		metric.WithDescription("Number of transcription jobs in flight."),
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
// first call from [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// JobStats summarizes the segmentation stages of one job.
type JobStats struct {
	Frames           int
	SpeechFrames     int
	ClassifierErrors int
	Segments         int
	Chunks           int
	Duration         time.Duration
}

// RecordJob adds the counts of a finished job and its latency.
func (m *Metrics) RecordJob(ctx context.Context, s JobStats) {
	m.Frames.Add(ctx, int64(s.Frames))
	m.SpeechFrames.Add(ctx, int64(s.SpeechFrames))
	m.ClassifierErrors.Add(ctx, int64(s.ClassifierErrors))
	m.Segments.Add(ctx, int64(s.Segments))
	m.Chunks.Add(ctx, int64(s.Chunks))
	m.JobDuration.Record(ctx, s.Duration.Seconds())
}

// RecordRecognition records one dispatched chunk: its outcome, the latency of
// the recognition call and the provider request status.
func (m *Metrics) RecordRecognition(ctx context.Context, provider, outcome string, d time.Duration, failed bool) {
	m.ChunkOutcomes.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
	m.RecognitionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(Attr("provider", provider), Attr("outcome", outcome)),
	)
	status := "ok"
	if failed {
		status = "error"
		m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider)))
	}
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(Attr("provider", provider), Attr("status", status)),
	)
}

// RecordBreakerTransition counts a circuit breaker moving to state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(Attr("breaker", breaker), Attr("state", state)),
	)
}
