// Package metrics provides Prometheus metrics collection for the trend
// prediction service. It defines the model, inference, market data and HTTP
// metrics exposed via the /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Prediction metrics
	PredictionsTotal  *prometheus.CounterVec // Completed predictions by model and label
	PredictionErrors  *prometheus.CounterVec // Failed predictions by model and reason
	PredictionLatency prometheus.Histogram   // End-to-end prediction latency
	PredictionScores  *prometheus.HistogramVec
	InferenceLatency  prometheus.Histogram // Model invocation latency

	// Model registry metrics
	ModelLoads        *prometheus.CounterVec // Successful artifact loads
	ModelLoadFailures *prometheus.CounterVec // Failed artifact loads
	ModelsLoaded      prometheus.Gauge       // Models currently usable

	// Market data metrics
	GatewayFetches *prometheus.CounterVec   // Gateway fetches by venue and status
	GatewayLatency *prometheus.HistogramVec // Gateway fetch latency by venue
	FetchRetries   prometheus.Counter       // Retried gateway fetches
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Scheduled inference
	ScheduledRuns *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of completed predictions",
		}, []string{"model", "label"}),
		PredictionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prediction_errors_total",
			Help: "Total number of failed predictions",
		}, []string{"model", "reason"}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end, including market data)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		PredictionScores: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prediction_raw_output",
			Help:    "Distribution of raw model outputs",
			Buckets: []float64{-0.05, -0.02, -0.01, -0.005, 0, 0.005, 0.01, 0.02, 0.05, 0.25, 0.5, 0.75, 1},
		}, []string{"model"}),
		InferenceLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inference_latency_seconds",
			Help:    "Model invocation latency in seconds",
			Buckets: []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.1},
		}),
		ModelLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "model_loads_total",
			Help: "Total number of model artifact loads",
		}, []string{"model"}),
		ModelLoadFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "model_load_failures_total",
			Help: "Total number of failed model artifact loads",
		}, []string{"model"}),
		ModelsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "models_loaded",
			Help: "Number of models loaded and usable",
		}),
		GatewayFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_fetches_total",
			Help: "Total number of market data fetches",
		}, []string{"venue", "status"}),
		GatewayLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_fetch_seconds",
			Help:    "Market data fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"venue"}),
		FetchRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_fetch_retries_total",
			Help: "Total number of retried market data fetches",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "series_cache_hits_total",
			Help: "Total number of market series cache hits",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "series_cache_misses_total",
			Help: "Total number of market series cache misses",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ScheduledRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduled_predictions_total",
			Help: "Total number of scheduled prediction runs",
		}, []string{"model", "status"}),
	}
}
