// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 任务指标
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	heartbeatsTotal *prometheus.CounterVec

	// 流水线指标
	pipelineTerminal *prometheus.CounterVec
	signalWaits      *prometheus.CounterVec
	stageRetries     *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		attemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_attempts_total",
			Help:      "Total task attempts by task type and outcome.",
		}, []string{"task_type", "outcome"}),

		attemptDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_attempt_duration_seconds",
			Help:      "Task attempt duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"task_type"}),

		heartbeatsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liveness_proofs_total",
			Help:      "Liveness proofs emitted, by task type and kind (step/tick).",
		}, []string{"task_type", "kind"}),

		pipelineTerminal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_terminal_total",
			Help:      "Pipeline instances reaching a terminal state.",
		}, []string{"pipeline", "state"}),

		signalWaits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_waits_total",
			Help:      "Signal wait outcomes (approved/rejected/expired).",
		}, []string{"pipeline", "outcome"}),

		stageRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_retries_total",
			Help:      "Stage redispatch count by pipeline and stage.",
		}, []string{"pipeline", "stage"}),

		logger: logger.With(zap.String("component", "metrics")),
	}
}

// ObserveAttempt 记录一次 Attempt 的结果与耗时
func (c *Collector) ObserveAttempt(taskType, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.attemptsTotal.WithLabelValues(taskType, outcome).Inc()
	c.attemptDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// ObserveHeartbeat 记录一次活性证明
func (c *Collector) ObserveHeartbeat(taskType, kind string) {
	if c == nil {
		return
	}
	c.heartbeatsTotal.WithLabelValues(taskType, kind).Inc()
}

// ObservePipelineTerminal 记录流水线终态
func (c *Collector) ObservePipelineTerminal(pipeline, state string) {
	if c == nil {
		return
	}
	c.pipelineTerminal.WithLabelValues(pipeline, state).Inc()
}

// ObserveSignalWait 记录信号等待结果
func (c *Collector) ObserveSignalWait(pipeline, outcome string) {
	if c == nil {
		return
	}
	c.signalWaits.WithLabelValues(pipeline, outcome).Inc()
}

// ObserveStageRetry 记录一次阶段重派
func (c *Collector) ObserveStageRetry(pipeline, stage string) {
	if c == nil {
		return
	}
	c.stageRetries.WithLabelValues(pipeline, stage).Inc()
}
