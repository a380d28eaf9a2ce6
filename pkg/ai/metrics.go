package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "avinci",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of LLM generation requests",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"provider", "model"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "avinci",
		Subsystem: "ai",
		Name:      "requests_total",
		Help:      "Number of LLM generation requests by outcome",
	}, []string{"provider", "model", "outcome"})

	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "avinci",
		Subsystem: "ai",
		Name:      "retries_total",
		Help:      "Number of retried LLM calls after a transient failure",
	})
)

func observe(provider, model string, seconds float64, err error) {
	requestDuration.WithLabelValues(provider, model).Observe(seconds)
	outcome := "ok"
	if err != nil {
		outcome = string(CodeOf(err))
	}
	requestsTotal.WithLabelValues(provider, model, outcome).Inc()
}
