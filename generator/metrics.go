package generator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bedtime_llm_requests_total",
			Help: "Total number of text-completion requests.",
		},
		[]string{"provider", "model", "kind", "status"},
	)
	llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bedtime_llm_request_duration_seconds",
			Help:    "Histogram of text-completion request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "model", "kind"},
	)
	llmTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bedtime_llm_tokens_total",
			Help: "Tokens used by text-completion requests, by kind (prompt, completion).",
		},
		[]string{"provider", "model", "kind"},
	)
	parseFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bedtime_parse_failures_total",
			Help: "Model responses that could not be parsed and were replaced by a fallback record.",
		},
		[]string{"step"},
	)
	revisionRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bedtime_revision_rounds",
			Help:    "Judge rounds used per story.",
			Buckets: prometheus.LinearBuckets(0, 1, 6),
		},
	)
	storiesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bedtime_stories_total",
			Help: "Pipeline runs, by outcome.",
		},
		[]string{"status"},
	)
)

func observeCall(provider, model, kind string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	llmRequestsTotal.With(prometheus.Labels{"provider": provider, "model": model, "kind": kind, "status": status}).Inc()
	if err == nil {
		llmRequestDuration.With(prometheus.Labels{"provider": provider, "model": model, "kind": kind}).Observe(seconds)
	}
}

func observeTokens(provider, model string, prompt, completion int) {
	if prompt > 0 {
		llmTokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		llmTokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completion))
	}
}
