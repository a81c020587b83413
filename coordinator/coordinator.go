package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/taskflow/internal/ctxkeys"
	"github.com/BaSui01/taskflow/internal/metrics"
	"github.com/BaSui01/taskflow/liveness"
	"github.com/BaSui01/taskflow/retry"
	"github.com/BaSui01/taskflow/task"
	"github.com/BaSui01/taskflow/types"
)

// DispatchOptions 单次派发的配置。
type DispatchOptions struct {
	// TaskInstanceID 稳定的任务实例标识，由调用方从编排实例标识派生，
	// 进程重启后无需额外协调即可恢复同一标识。
	TaskInstanceID string
	// HeartbeatInterval 后台心跳间隔。
	HeartbeatInterval time.Duration
	// HeartbeatTimeout 失活判定窗口：窗口内没有任何活性证明即判定
	// Attempt 死亡并重新派发。
	HeartbeatTimeout time.Duration
	// Retry 重试策略，nil 表示只执行一次。
	Retry *retry.Policy
}

// Validate 校验派发配置。
// 心跳间隔必须显著小于失活窗口，否则单次调度抖动就会误判失活。
func (o *DispatchOptions) Validate() error {
	if o.TaskInstanceID == "" {
		return types.NewError(types.ErrConfigInvalid, "task instance id must not be empty")
	}
	if o.HeartbeatInterval <= 0 {
		return types.NewError(types.ErrConfigInvalid, "heartbeat interval must be positive")
	}
	if o.HeartbeatTimeout <= 0 {
		return types.NewError(types.ErrConfigInvalid, "heartbeat timeout must be positive")
	}
	if o.HeartbeatInterval > o.HeartbeatTimeout/3 {
		return types.NewError(types.ErrConfigInvalid, fmt.Sprintf(
			"heartbeat interval %v must be at most a third of heartbeat timeout %v",
			o.HeartbeatInterval, o.HeartbeatTimeout,
		))
	}
	return nil
}

// Result 一次逻辑派发的结果。
type Result struct {
	Output   json.RawMessage
	Attempts int
}

// Coordinator worker 侧派发协调器。
type Coordinator struct {
	registry *task.Registry
	channel  liveness.Channel
	runner   *task.Runner
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewCoordinator 创建派发协调器。metrics 可为 nil。
func NewCoordinator(
	registry *task.Registry,
	channel liveness.Channel,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		registry: registry,
		channel:  channel,
		runner:   task.NewRunner(channel, logger).WithMetrics(collector),
		metrics:  collector,
		logger:   logger.With(zap.String("component", "coordinator")),
	}
}

// ctxLogger 用 ctx 携带的编排标识丰富日志字段。
func (c *Coordinator) ctxLogger(ctx context.Context) *zap.Logger {
	logger := c.logger
	if pid, ok := ctxkeys.PipelineID(ctx); ok {
		logger = logger.With(zap.String("pipeline_id", pid))
	}
	return logger
}

// Dispatch 派发一个逻辑任务并驱动其所有 Attempt 直至成功或终态失败。
//
// 每个 Attempt 使用注册表构造的全新适配器实例，检查点只经由活性通道
// 在 Attempt 之间传递，绝不走内存。失活超时与瞬时错误同等处理：退避后
// 重新派发，上一次的检查点交给新 Attempt。
func (c *Coordinator) Dispatch(
	ctx context.Context,
	taskType string,
	input json.RawMessage,
	opts DispatchOptions,
) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx = ctxkeys.WithTaskType(ctx, taskType)
	ctx = ctxkeys.WithTaskInstanceID(ctx, opts.TaskInstanceID)

	logger := c.ctxLogger(ctx)
	retryer := retry.NewBackoffRetryer(opts.Retry, logger)

	result := &Result{}
	err := retryer.Do(ctx, func(attempt int) error {
		result.Attempts = attempt

		adapter, err := c.registry.New(taskType)
		if err != nil {
			return types.NewError(types.ErrTaskNotFound, "cannot build adapter").
				WithCause(err).
				WithRetryable(false)
		}

		if attempt > 1 {
			logger.Info("redispatching task",
				zap.String("task_type", taskType),
				zap.String("task_instance_id", opts.TaskInstanceID),
				zap.Int("attempt", attempt),
			)
		}

		output, err := c.runAttempt(ctx, taskType, adapter, input, opts, attempt)
		if err != nil {
			return err
		}
		result.Output = output
		return nil
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

// runAttempt 监督一次 Attempt：前台执行 + 失活看门狗，任一方退出即
// 取消另一方，不留孤儿定时器。
func (c *Coordinator) runAttempt(
	ctx context.Context,
	taskType string,
	adapter task.Adapter,
	input json.RawMessage,
	opts DispatchOptions,
	attempt int,
) (json.RawMessage, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	attemptCtx = ctxkeys.WithAttempt(attemptCtx, attempt)

	start := time.Now()
	var output json.RawMessage

	g, gctx := errgroup.WithContext(attemptCtx)
	g.Go(func() error {
		defer cancel()
		out, err := c.runner.Execute(gctx, opts.TaskInstanceID, adapter, input, opts.HeartbeatInterval)
		if err != nil {
			return err
		}
		output = out
		return nil
	})
	g.Go(func() error {
		return c.watchdog(gctx, opts.TaskInstanceID, start, opts.HeartbeatTimeout)
	})

	err := g.Wait()

	outcome := "success"
	if err != nil {
		outcome = "error"
		if types.GetErrorCode(err) == types.ErrLivenessTimeout {
			outcome = "liveness_timeout"
		}
	}
	c.metrics.ObserveAttempt(taskType, outcome, time.Since(start))

	if err != nil {
		c.ctxLogger(ctx).Warn("attempt terminated",
			zap.String("task_type", taskType),
			zap.String("task_instance_id", opts.TaskInstanceID),
			zap.Int("attempt", attempt),
			zap.String("outcome", outcome),
			zap.Error(err),
		)
		return nil, err
	}
	return output, nil
}

// watchdog 失活看门狗：检测窗口内没有任何活性证明即判定 Attempt 死亡。
// 基线取 Attempt 启动时刻与最近证明时刻的较晚者，避免上一次 Attempt 的
// 陈旧证明触发误判。
func (c *Coordinator) watchdog(
	ctx context.Context,
	taskInstanceID string,
	start time.Time,
	timeout time.Duration,
) error {
	interval := timeout / 4
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			proof, err := c.channel.LastProof(ctx, taskInstanceID)
			if err != nil {
				// 通道瞬时故障不触发失活判定
				c.logger.Warn("watchdog failed to read liveness proof", zap.Error(err))
				continue
			}
			last := start
			if proof != nil && proof.At.After(last) {
				last = proof.At
			}
			if time.Since(last) > timeout {
				return types.NewError(types.ErrLivenessTimeout,
					fmt.Sprintf("no liveness proof within %v", timeout)).
					WithRetryable(true)
			}
		}
	}
}
