// Package metrics exposes job and session counters through OpenTelemetry,
// exported in Prometheus format.
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/makeasinger/ttsstream"

// Metrics records pipeline counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	jobsStarted   metric.Int64Counter
	jobsCompleted metric.Int64Counter
	jobsFailed    metric.Int64Counter
	sessions      metric.Int64UpDownCounter
	synthDuration metric.Float64Histogram
	jobDuration   metric.Float64Histogram
}

// Setup builds a meter provider backed by the Prometheus exporter and returns
// the instruments, the scrape handler and a shutdown func.
func Setup() (*Metrics, http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("failed to initialize prometheus exporter: %v", err)
		mp := sdkmetric.NewMeterProvider()
		m, err := NewWithProvider(mp)
		return m, nil, mp.Shutdown, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	m, err := NewWithProvider(mp)
	if err != nil {
		return nil, nil, nil, err
	}
	return m, promhttp.Handler(), mp.Shutdown, nil
}

func NewWithProvider(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.jobsStarted, err = meter.Int64Counter("tts.jobs.started",
		metric.WithDescription("Jobs accepted for processing")); err != nil {
		return nil, err
	}
	if m.jobsCompleted, err = meter.Int64Counter("tts.jobs.completed",
		metric.WithDescription("Jobs that produced an artifact")); err != nil {
		return nil, err
	}
	if m.jobsFailed, err = meter.Int64Counter("tts.jobs.failed",
		metric.WithDescription("Jobs that ended in failure, by error code")); err != nil {
		return nil, err
	}
	if m.sessions, err = meter.Int64UpDownCounter("tts.sessions.active",
		metric.WithDescription("Open websocket sessions")); err != nil {
		return nil, err
	}
	if m.synthDuration, err = meter.Float64Histogram("tts.synthesis.duration",
		metric.WithDescription("Time spent synthesizing one chunk"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.jobDuration, err = meter.Float64Histogram("tts.job.duration",
		metric.WithDescription("Wall time of a job from start to terminal state"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) JobStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.jobsStarted.Add(ctx, 1)
}

func (m *Metrics) JobCompleted(ctx context.Context, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsCompleted.Add(ctx, 1)
	m.jobDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("outcome", "complete")))
}

func (m *Metrics) JobFailed(ctx context.Context, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
	m.jobDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("outcome", "failed")))
}

func (m *Metrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, 1)
}

func (m *Metrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, -1)
}

func (m *Metrics) ObserveSynthesis(ctx context.Context, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.synthDuration.Record(ctx, elapsed.Seconds())
}
