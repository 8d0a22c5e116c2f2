// Package metrics registers the Prometheus collectors scraped from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trivia"

var (
	ModelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "calls_total",
		Help:      "Model invocations by model and outcome.",
	}, []string{"model", "outcome"})

	ModelLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "llm",
		Name:      "call_duration_seconds",
		Help:      "Wall-clock latency of a single model call.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"model"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Question cache take results.",
	}, []string{"result"})

	PreloadSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "preload",
		Name:      "sessions_total",
		Help:      "Preload scheduling decisions.",
	}, []string{"decision"})

	PreloadProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "preload",
		Name:      "attempts_total",
		Help:      "Per-category preload production attempts by outcome.",
	}, []string{"outcome"})

	QuestionsServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "question",
		Name:      "served_total",
		Help:      "Questions returned to clients by source.",
	}, []string{"source"})
)
