package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/knowledge"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/knowledged/internal/http"

// unmatchedRoute labels requests that hit no registered route.
const unmatchedRoute = "unmatched"

// HTTPMetrics records request counts, latency, payload size and failures
// for the API routes.
type HTTPMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	requests metric.Int64Counter
	latency  metric.Float64Histogram
	bodySize metric.Int64Histogram
	inFlight metric.Int64UpDownCounter
	failures metric.Int64Counter
}

// NewHTTPMetrics creates HTTPMetrics on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HTTPMetrics{
		meter:  otel.Meter(httpInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	var err error

	m.requests, err = m.meter.Int64Counter(
		"knowledged.http.requests_total",
		metric.WithDescription("API requests by method, route and status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create requests counter", zap.Error(err))
	}

	// Ingestion and rebuild routes run for minutes, so the buckets reach 5m.
	m.latency, err = m.meter.Float64Histogram(
		"knowledged.http.request_duration_seconds",
		metric.WithDescription("API request latency by method, route and status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.bodySize, err = m.meter.Int64Histogram(
		"knowledged.http.response_size_bytes",
		metric.WithDescription("Response body size; payload routes return whole Markdown documents"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(256, 1024, 8192, 65536, 524288, 4194304),
	)
	if err != nil {
		m.logger.Warn("failed to create response size histogram", zap.Error(err))
	}

	m.inFlight, err = m.meter.Int64UpDownCounter(
		"knowledged.http.active_requests",
		metric.WithDescription("API requests currently being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create active requests gauge", zap.Error(err))
	}

	m.failures, err = m.meter.Int64Counter(
		"knowledged.http.errors_total",
		metric.WithDescription("Failed API requests by route and error category"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
//
// Handler errors are written by the error handler after the middleware
// chain returns, so the status is derived from the error here.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			if m.inFlight != nil {
				m.inFlight.Add(ctx, 1)
			}

			err := next(c)

			if m.inFlight != nil {
				m.inFlight.Add(ctx, -1)
			}

			route := routeLabel(c.Path())
			status := c.Response().Status
			if err != nil && !c.Response().Committed {
				status = statusFor(err)
			}
			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", route),
				attribute.Int("status", status),
			)

			if m.requests != nil {
				m.requests.Add(ctx, 1, attrs)
			}
			if m.latency != nil {
				m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.bodySize != nil && c.Response().Size > 0 {
				m.bodySize.Record(ctx, c.Response().Size, attrs)
			}
			if err != nil && m.failures != nil {
				m.failures.Add(ctx, 1, metric.WithAttributes(
					attribute.String("endpoint", route),
					attribute.String("category", errorCategory(err)),
				))
			}
			return err
		}
	}
}

// routeLabel returns the registered route pattern, e.g.
// /api/v1/metadata/:field, so parameter values never become labels.
func routeLabel(path string) string {
	if path == "" {
		return unmatchedRoute
	}
	return path
}

func errorCategory(err error) string {
	switch code := statusFor(err); {
	case knowledge.IsValidation(err):
		return "validation"
	case knowledge.IsNotFound(err):
		return "not_found"
	case code < 500:
		return "client"
	default:
		return "internal"
	}
}
