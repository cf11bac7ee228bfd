package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ecoroute", Name: "orders_created_total", Help: "Orders created, by delivery mode"},
		[]string{"mode"}, // solo | batched
	)
	BatchesDispatched = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ecoroute", Name: "batches_dispatched_total", Help: "Batch windows that elapsed and dispatched"})
	BatchSize         = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ecoroute", Name: "batch_dispatch_size", Help: "Members per dispatched batch",
		Buckets: []float64{1, 2, 3, 4, 5, 8, 12},
	})
	RushConversions = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ecoroute", Name: "rush_conversions_total", Help: "Waiting orders converted to solo rush delivery"})
	CO2SavedGrams   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ecoroute", Name: "co2_saved_grams_total", Help: "CO2 grams credited at dispatch"})
	WindowRepairs   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ecoroute", Name: "batch_window_repairs_total", Help: "Missing or invalid batch deadlines repaired"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ecoroute", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ecoroute",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
