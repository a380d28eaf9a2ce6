package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce      sync.Once
	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec
	regradeItemsTotal *prometheus.CounterVec
	scanRejectedTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avinci_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "avinci_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avinci_api_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		regradeItemsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avinci_regrade_items_total",
			Help: "Submissions processed by batch regrades, by outcome.",
		}, []string{"outcome"})

		scanRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avinci_scan_rejected_total",
			Help: "Scanned essay uploads rejected before transcription.",
		}, []string{"reason"})

		prometheus.MustRegister(apiRequestsTotal, apiLatencySeconds, apiErrorsTotal, regradeItemsTotal, scanRejectedTotal)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// RegradeItems exposes the per-outcome regrade counter.
func RegradeItems() *prometheus.CounterVec {
	RegisterMetrics()
	return regradeItemsTotal
}

// ScanRejected exposes the counter of rejected scan uploads.
func ScanRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return scanRejectedTotal
}
