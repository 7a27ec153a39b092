package dbgclient

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/dbgnav/internal/dbgclient"

// RequestMetrics records remote request counts and latency.
type RequestMetrics struct {
	meter    metric.Meter
	logger   *zap.Logger
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inFlight metric.Int64UpDownCounter
}

// NewRequestMetrics creates the instruments on the global meter provider.
func NewRequestMetrics(logger *zap.Logger) *RequestMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &RequestMetrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *RequestMetrics) init() {
	var err error

	m.requests, err = m.meter.Int64Counter(
		"dbgnav.client.requests_total",
		metric.WithDescription("Remote debugger requests labeled by operation and outcome (ok, error, transport)."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create requests counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"dbgnav.client.request_duration_seconds",
		metric.WithDescription("Remote debugger request latency in seconds, labeled by operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.inFlight, err = m.meter.Int64UpDownCounter(
		"dbgnav.client.in_flight_requests",
		metric.WithDescription("Remote debugger requests currently outstanding."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create in-flight gauge", zap.Error(err))
	}
}

func (m *RequestMetrics) begin(ctx context.Context) {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.Add(ctx, 1)
}

func (m *RequestMetrics) end(ctx context.Context, op string, start time.Time, err error) {
	if m == nil {
		return
	}

	outcome := "ok"
	switch {
	case IsTransport(err):
		outcome = "transport"
	case err != nil:
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)

	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("op", op)))
	}
	if m.inFlight != nil {
		m.inFlight.Add(ctx, -1)
	}
}
