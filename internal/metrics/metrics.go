// Package metrics exposes the core's prometheus gauges and counters: each
// daemon registers its own subset and serves them over /metrics via
// promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GoalQueueDepth tracks unprocessed goals waiting for the activity loop.
	GoalQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentientos_goal_queue_depth",
		Help: "Number of unprocessed goals in the queue file.",
	})

	// TraceEntriesTotal counts trace log appends, labeled by outcome.
	TraceEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentientos_trace_entries_total",
		Help: "Total trace entries appended, by intent and success.",
	}, []string{"intent", "success"})

	// ToolExecutionSeconds observes tool execution wall-clock duration.
	ToolExecutionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentientos_tool_execution_seconds",
		Help:    "Tool execution duration in seconds, by tool id and mode.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool_id", "mode"})

	// ReplayBufferSize reports the current replay buffer occupancy.
	ReplayBufferSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentientos_replay_buffer_size",
		Help: "Current number of experiences held in the replay buffer.",
	})

	// ModelHealthAvailable reports per-model breaker availability as 0/1.
	ModelHealthAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentientos_model_health_available",
		Help: "Whether a candidate model is currently available for dispatch (1) or not (0).",
	}, []string{"model_id"})

	// ServiceStatus reports a supervised service's lifecycle state.
	ServiceStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentientos_service_status",
		Help: "Supervised service status as an enum (0=Stopped,1=Starting,2=Running,3=Stopping,4=Failed,5=Restarting).",
	}, []string{"service"})

	// TrainerEpisodesTotal counts completed training episodes.
	TrainerEpisodesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentientos_trainer_episodes_total",
		Help: "Total training episodes completed by the RL trainer.",
	})

	// ActivityGoalsTotal counts goals the activity loop has executed, by
	// source and outcome.
	ActivityGoalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentientos_activity_goals_total",
		Help: "Total goals executed by the activity loop, by source and success.",
	}, []string{"source", "success"})
)
