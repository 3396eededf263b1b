// Package metrics exposes prometheus collectors for sync, analysis and
// job activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncMessages counts per-message sync outcomes
	// (inserted, updated, skipped, error).
	SyncMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxd_sync_messages_total",
			Help: "Messages handled by mailbox sync, by outcome",
		},
		[]string{"mailbox", "outcome"},
	)

	// SyncRuns counts sync invocations by kind and result.
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxd_sync_runs_total",
			Help: "Mailbox sync invocations",
		},
		[]string{"kind", "result"},
	)

	// LLMCallLatency tracks model call latency in milliseconds.
	LLMCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inboxd_llm_call_duration_ms",
			Help:    "LLM endpoint call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 12), // 100ms to ~200s
		},
		[]string{"endpoint", "status"},
	)

	// LLMTokens counts prompt and completion tokens reported by the model.
	LLMTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxd_llm_tokens_total",
			Help: "Tokens reported by the LLM endpoint",
		},
		[]string{"direction"},
	)

	// JobItems counts batch job item outcomes (ok, skipped, error).
	JobItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inboxd_job_items_total",
			Help: "Batch job items processed, by outcome",
		},
		[]string{"kind", "outcome"},
	)

	// JobsActive is the number of jobs not yet completed.
	JobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inboxd_jobs_active",
			Help: "Batch jobs queued or running",
		},
	)
)

// RecordSyncMessage increments the per-message sync counter.
func RecordSyncMessage(mailbox, outcome string) {
	SyncMessages.WithLabelValues(mailbox, outcome).Inc()
}

// RecordSyncRun increments the sync run counter.
func RecordSyncRun(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SyncRuns.WithLabelValues(kind, result).Inc()
}

// RecordLLMCall observes one model call.
func RecordLLMCall(endpoint, status string, d time.Duration) {
	LLMCallLatency.WithLabelValues(endpoint, status).Observe(float64(d.Milliseconds()))
}

// RecordLLMTokens adds token usage for one call.
func RecordLLMTokens(prompt, completion int) {
	LLMTokens.WithLabelValues("prompt").Add(float64(prompt))
	LLMTokens.WithLabelValues("completion").Add(float64(completion))
}

// RecordJobItem increments the job item counter.
func RecordJobItem(kind, outcome string) {
	JobItems.WithLabelValues(kind, outcome).Inc()
}
