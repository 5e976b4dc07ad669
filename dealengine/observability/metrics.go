// Package observability provides Prometheus metrics instrumentation for the deal engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// RUN METRICS
// =============================================================================

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealcore_runs_total",
			Help: "Total number of deal runs",
		},
		[]string{"graph", "state"}, // state: completed, failed
	)

	runDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealcore_run_duration_seconds",
			Help:    "Deal run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 30, 60, 300, 1800},
		},
		[]string{"graph"},
	)
)

// =============================================================================
// STAGE METRICS
// =============================================================================

var (
	stageExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealcore_stage_executions_total",
			Help: "Total number of stage executions, counting revisions separately",
		},
		[]string{"stage", "status"}, // status: success, error
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealcore_stage_duration_seconds",
			Help:    "Stage execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"stage"},
	)
)

// =============================================================================
// TOOL METRICS
// =============================================================================

var (
	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealcore_tool_calls_total",
			Help: "Total number of mediated tool calls",
		},
		[]string{"tool", "status"}, // status: success, error, deduplicated
	)

	toolDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealcore_tool_duration_seconds",
			Help:    "Tool call duration in seconds, including retries",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool"},
	)
)

// =============================================================================
// CHECKPOINT METRICS
// =============================================================================

var (
	checkpointDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dealcore_checkpoint_decisions_total",
			Help: "Total checkpoint resolutions by decision",
		},
		[]string{"stage", "decision"}, // decision: approve, reject, revise, timeout
	)

	checkpointWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dealcore_checkpoint_wait_seconds",
			Help:    "Time a gated stage waited for its human decision",
			Buckets: []float64{1, 5, 30, 60, 300, 1800, 3600},
		},
		[]string{"stage"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordRun records run outcome metrics. Called when a run reaches a
// terminal state.
func RecordRun(graph string, state string, durationMS int) {
	runsTotal.WithLabelValues(graph, state).Inc()
	runDurationSeconds.WithLabelValues(graph).Observe(float64(durationMS) / 1000.0)
}

// RecordStageExecution records stage execution metrics. Each revision
// counts as its own execution.
func RecordStageExecution(stage string, status string, durationMS int) {
	stageExecutionsTotal.WithLabelValues(stage, status).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(float64(durationMS) / 1000.0)
}

// RecordToolCall records tool call metrics after the gateway finishes
// with a call, retries included.
func RecordToolCall(tool string, status string, durationMS int) {
	toolCallsTotal.WithLabelValues(tool, status).Inc()
	toolDurationSeconds.WithLabelValues(tool).Observe(float64(durationMS) / 1000.0)
}

// RecordCheckpointDecision records how a checkpoint resolved and how long
// the stage waited.
func RecordCheckpointDecision(stage string, decision string, waitedMS int) {
	checkpointDecisionsTotal.WithLabelValues(stage, decision).Inc()
	checkpointWaitSeconds.WithLabelValues(stage).Observe(float64(waitedMS) / 1000.0)
}
