package generation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess       = "success"
	statusError         = "error"
	statusEmptyResponse = "error_empty_response"
)

var (
	generationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storytrain_generation_requests_total",
			Help: "Total number of requests to the text generation backend.",
		},
		[]string{"backend", "status"},
	)
	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storytrain_generation_duration_seconds",
			Help:    "Histogram of text generation request durations.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"backend"},
	)
	generationTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storytrain_generation_tokens",
			Help:    "Histogram of token counts per generation request.",
			Buckets: prometheus.LinearBuckets(50, 50, 20), // 50, 100, ..., 1000
		},
		[]string{"backend", "kind"}, // kind: prompt | completion
	)
)

func observeRequest(backend, status string, seconds float64) {
	generationRequestsTotal.WithLabelValues(backend, status).Inc()
	if status == statusSuccess {
		generationDuration.WithLabelValues(backend).Observe(seconds)
	}
}

func observeUsage(backend string, usage UsageInfo) {
	if usage.TotalTokens == 0 {
		return
	}
	generationTokens.WithLabelValues(backend, "prompt").Observe(float64(usage.PromptTokens))
	generationTokens.WithLabelValues(backend, "completion").Observe(float64(usage.CompletionTokens))
}
