package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts table operations.
	// Labels: provider (chromem, qdrant), operation, result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "knowledged",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector table operations",
		},
		[]string{"provider", "operation", "result"},
	)

	// OperationDuration tracks how long table operations take.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "knowledged",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector table operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	// RowsTotal is the row count observed after the last write.
	RowsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "knowledged",
			Subsystem: "vectorstore",
			Name:      "rows",
			Help:      "Number of rows in the vector table",
		},
		[]string{"provider"},
	)

	// CircuitBreakerOpen is 1 while the qdrant circuit breaker rejects calls.
	CircuitBreakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "knowledged",
			Subsystem: "vectorstore",
			Name:      "circuit_breaker_open",
			Help:      "Whether the qdrant circuit breaker is open (1) or closed (0)",
		},
	)
)

// observe starts timing an operation. Call the returned func with a pointer
// to the named error result:
//
//	defer observe(providerChromem, "add")(&err)
func observe(provider, operation string) func(*error) {
	start := time.Now()
	return func(errp *error) {
		result := "success"
		if errp != nil && *errp != nil {
			result = "error"
		}
		OperationsTotal.WithLabelValues(provider, operation, result).Inc()
		OperationDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
	}
}
