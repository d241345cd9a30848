// Package observe provides the harness's observability primitives:
// OpenTelemetry metrics, tracing, span-aware logging and the HTTP middleware
// for the admin server.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to Prometheus so they can be scraped from /metrics. Tests
// should build their own [Metrics] with [NewMetrics] over a manual reader
// instead of using [DefaultMetrics].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all harness metrics.
const meterName = "github.com/MrWong99/testcall"

// Stage names one provider-backed step of a call.
type Stage string

const (
	StageSTT        Stage = "stt"
	StageLLM        Stage = "llm"
	StageTTS        Stage = "tts"
	StageExtraction Stage = "extraction"
)

// Call outcomes recorded on [Metrics.Calls].
const (
	// OutcomeReviewed: the call ended with a booking under review.
	OutcomeReviewed = "reviewed"
	// OutcomeEnded: the call ended without a confident booking.
	OutcomeEnded = "ended"
	// OutcomeDenied: microphone permission was refused.
	OutcomeDenied = "denied"
)

// Extraction results recorded on [Metrics.Extractions].
const (
	ExtractionAccepted = "accepted"
	ExtractionRejected = "rejected"
	ExtractionFailed   = "failed"
)

// Metrics holds all metric instruments. The OTel instruments handle their own
// synchronisation.
type Metrics struct {
	// ---- stage latency ----

	STTDuration        metric.Float64Histogram
	LLMDuration        metric.Float64Histogram
	TTSDuration        metric.Float64Histogram
	ExtractionDuration metric.Float64Histogram

	// ---- counters ----

	// ProviderRequests counts provider calls by stage and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider calls by stage.
	ProviderErrors metric.Int64Counter

	// Calls counts finished calls by outcome.
	Calls metric.Int64Counter

	// Turns counts transcript turns by role.
	Turns metric.Int64Counter

	// Extractions counts extraction attempts by result.
	Extractions metric.Int64Counter

	// StaleResults counts async results discarded because their call or
	// state had moved on.
	StaleResults metric.Int64Counter

	// ---- gauges ----

	// ActiveCalls is 1 while a call is live.
	ActiveCalls metric.Int64UpDownCounter

	// ---- admin HTTP ----

	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds. Remote model calls sit
// between a few hundred milliseconds and tens of seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.STTDuration, err = histogram("testcall.stt.duration", "Latency of speech-to-text transcription."); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = histogram("testcall.llm.duration", "Latency of receptionist reply generation."); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = histogram("testcall.tts.duration", "Latency of text-to-speech synthesis."); err != nil {
		return nil, err
	}
	if met.ExtractionDuration, err = histogram("testcall.extraction.duration", "Latency of booking extraction."); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("testcall.provider.requests",
		metric.WithDescription("Provider calls by stage and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("testcall.provider.errors",
		metric.WithDescription("Failed provider calls by stage."),
	); err != nil {
		return nil, err
	}
	if met.Calls, err = m.Int64Counter("testcall.calls",
		metric.WithDescription("Finished calls by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("testcall.turns",
		metric.WithDescription("Transcript turns by role."),
	); err != nil {
		return nil, err
	}
	if met.Extractions, err = m.Int64Counter("testcall.extractions",
		metric.WithDescription("Extraction attempts by result."),
	); err != nil {
		return nil, err
	}
	if met.StaleResults, err = m.Int64Counter("testcall.stale_results",
		metric.WithDescription("Async results discarded after their call or state moved on."),
	); err != nil {
		return nil, err
	}

	if met.ActiveCalls, err = m.Int64UpDownCounter("testcall.active_calls",
		metric.WithDescription("Number of live calls."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("testcall.http.request.duration",
		metric.WithDescription("Admin HTTP request latency by method and path."),
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

// DefaultMetrics returns the package-level [Metrics] instance built on
// [otel.GetMeterProvider]. It panics if instrument creation fails.
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

func (m *Metrics) stageHistogram(s Stage) metric.Float64Histogram {
	switch s {
	case StageSTT:
		return m.STTDuration
	case StageLLM:
		return m.LLMDuration
	case StageTTS:
		return m.TTSDuration
	case StageExtraction:
		return m.ExtractionDuration
	}
	return nil
}

// RecordStage records the latency and outcome of one provider-backed stage.
func (m *Metrics) RecordStage(ctx context.Context, stage Stage, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(attribute.String("stage", string(stage)), attribute.String("status", status))
	if h := m.stageHistogram(stage); h != nil {
		h.Record(ctx, d.Seconds(), attrs)
	}
	m.RecordProviderRequest(ctx, "", string(stage), status)
	if err != nil {
		m.RecordProviderError(ctx, "", string(stage))
	}
}

// RecordProviderRequest increments the provider request counter. provider
// may be empty when the caller does not know which backend served the call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordCall counts a finished call.
func (m *Metrics) RecordCall(ctx context.Context, outcome string) {
	m.Calls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordTurn counts one transcript turn.
func (m *Metrics) RecordTurn(ctx context.Context, role string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

// RecordExtraction counts one extraction attempt.
func (m *Metrics) RecordExtraction(ctx context.Context, result string) {
	m.Extractions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordStale counts one discarded late result from the named operation.
func (m *Metrics) RecordStale(ctx context.Context, op string) {
	m.StaleResults.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
