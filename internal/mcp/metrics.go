package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
)

const instrumentationName = "github.com/fyrsmithlabs/knowledged/internal/mcp"

// Metrics records tool calls: count by outcome, latency, calls in flight
// and failures by category.
type Metrics struct {
	meter  metric.Meter
	logger *zap.Logger

	calls    metric.Int64Counter
	latency  metric.Float64Histogram
	failures metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// NewMetrics creates Metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.calls, err = m.meter.Int64Counter(
		"knowledged.mcp.tool.invocations_total",
		metric.WithDescription("Tool calls by tool and outcome (ok, error)"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		m.logger.Warn("failed to create invocations counter", zap.Error(err))
	}

	// Ingestion and rebuilds run long, so the buckets reach 5m.
	m.latency, err = m.meter.Float64Histogram(
		"knowledged.mcp.tool.duration_seconds",
		metric.WithDescription("Tool call latency by tool"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.25, 1, 5, 15, 60, 300),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.failures, err = m.meter.Int64Counter(
		"knowledged.mcp.tool.errors_total",
		metric.WithDescription("Failed tool calls by tool and category"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.inFlight, err = m.meter.Int64UpDownCounter(
		"knowledged.mcp.tool.active_requests",
		metric.WithDescription("Tool calls currently running"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create active requests gauge", zap.Error(err))
	}
}

// Start marks a call to tool as running. The returned func ends it and
// records its outcome.
func (m *Metrics) Start(ctx context.Context, tool string) func(error) {
	toolAttr := attribute.String("tool", tool)
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1, metric.WithAttributes(toolAttr))
	}
	start := time.Now()

	return func(err error) {
		if m.inFlight != nil {
			m.inFlight.Add(ctx, -1, metric.WithAttributes(toolAttr))
		}
		if m.latency != nil {
			m.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(toolAttr))
		}

		outcome := "ok"
		if err != nil {
			outcome = "error"
			if m.failures != nil {
				m.failures.Add(ctx, 1, metric.WithAttributes(toolAttr,
					attribute.String("category", categorizeError(err))))
			}
		}
		if m.calls != nil {
			m.calls.Add(ctx, 1, metric.WithAttributes(toolAttr, attribute.String("outcome", outcome)))
		}
	}
}

// categorizeError maps an error onto a low-cardinality reason label.
func categorizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case knowledge.IsValidation(err):
		return "validation_error"
	case knowledge.IsNotFound(err):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, knowledge.ErrDimensionMismatch):
		return "embedding_error"
	default:
		return "internal_error"
	}
}
