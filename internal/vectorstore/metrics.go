// Package vectorstore provides Prometheus metrics for store operations.
package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// insertedRecordsTotal counts records inserted, by backend provider.
	insertedRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qaforge",
			Subsystem: "vectorstore",
			Name:      "inserted_records_total",
			Help:      "Total number of records inserted into the vector store",
		},
		[]string{"provider"},
	)

	// searchesTotal counts search operations by provider and result.
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "qaforge",
			Subsystem: "vectorstore",
			Name:      "searches_total",
			Help:      "Total number of similarity searches",
		},
		[]string{"provider", "result"},
	)

	// operationDuration tracks operation latency by provider and operation.
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "qaforge",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)
)

// observeInsert records metrics for an insert operation.
func observeInsert(provider string, count int, start time.Time, err error) {
	operationDuration.WithLabelValues(provider, "insert").Observe(time.Since(start).Seconds())
	if err == nil {
		insertedRecordsTotal.WithLabelValues(provider).Add(float64(count))
	}
}

// observeSearch records metrics for a search operation.
func observeSearch(provider string, start time.Time, err error) {
	operationDuration.WithLabelValues(provider, "search").Observe(time.Since(start).Seconds())
	result := "success"
	if err != nil {
		result = "error"
	}
	searchesTotal.WithLabelValues(provider, result).Inc()
}
