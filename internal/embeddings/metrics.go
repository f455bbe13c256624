package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/knowledged/internal/embeddings"

// Metrics holds embedding instruments. Instruments that fail to register
// stay nil and are skipped.
type Metrics struct {
	duration metric.Float64Histogram
	calls    metric.Int64Counter
	texts    metric.Int64Counter
	errors   metric.Int64Counter
}

// NewMetrics creates instruments on the global meter provider.
func NewMetrics() *Metrics {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	m.duration, _ = meter.Float64Histogram(
		"knowledged.embedding.duration_seconds",
		metric.WithDescription("Duration of embedding calls"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	m.calls, _ = meter.Int64Counter(
		"knowledged.embedding.calls_total",
		metric.WithDescription("Embedding calls by model and operation"),
		metric.WithUnit("{call}"),
	)
	m.texts, _ = meter.Int64Counter(
		"knowledged.embedding.texts_total",
		metric.WithDescription("Texts embedded"),
		metric.WithUnit("{text}"),
	)
	m.errors, _ = meter.Int64Counter(
		"knowledged.embedding.errors_total",
		metric.WithDescription("Failed embedding calls"),
		metric.WithUnit("{error}"),
	)
	return m
}

// Record records one embedding call.
func (m *Metrics) Record(ctx context.Context, model, operation string, d time.Duration, texts int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("operation", operation),
	)
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
	if m.calls != nil {
		m.calls.Add(ctx, 1, attrs)
	}
	if m.texts != nil && err == nil {
		m.texts.Add(ctx, int64(texts), attrs)
	}
	if m.errors != nil && err != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// instrumented decorates a Provider with Metrics.
type instrumented struct {
	Provider
	model   string
	metrics *Metrics
}

func withMetrics(p Provider, model string) Provider {
	return &instrumented{Provider: p, model: model, metrics: NewMetrics()}
}

func (i *instrumented) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := i.Provider.EmbedDocuments(ctx, texts)
	i.metrics.Record(ctx, i.model, "embed_documents", time.Since(start), len(texts), err)
	return vectors, err
}

func (i *instrumented) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := i.Provider.EmbedQuery(ctx, text)
	i.metrics.Record(ctx, i.model, "embed_query", time.Since(start), 1, err)
	return vector, err
}
