package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_query_duration_seconds",
			Help:    "Query processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"query_type"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_query_total",
			Help: "Total number of queries processed",
		},
		[]string{"status"},
	)

	CitationsPerQuery = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rag_citations_per_query",
			Help:    "Number of citations returned per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_provider_request_duration_seconds",
			Help:    "Provider round-trip duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	ProviderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_provider_errors_total",
			Help: "Total failed provider round-trips",
		},
		[]string{"operation"},
	)

	UploadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_upload_total",
			Help: "Total document upload attempts",
		},
		[]string{"status"},
	)

	DocumentsUploaded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_documents_uploaded_total",
			Help: "Total documents successfully ingested",
		},
	)

	StoreOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_store_operations_total",
			Help: "Total store management operations",
		},
		[]string{"operation", "status"},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(CitationsPerQuery)
	prometheus.MustRegister(ProviderRequestDuration)
	prometheus.MustRegister(ProviderErrors)
	prometheus.MustRegister(UploadTotal)
	prometheus.MustRegister(DocumentsUploaded)
	prometheus.MustRegister(StoreOperations)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
