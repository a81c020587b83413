package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/internal/ctxkeys"
	"github.com/BaSui01/taskflow/internal/metrics"
	"github.com/BaSui01/taskflow/liveness"
)

// Runner 通用可恢复任务执行器，驱动一次 Attempt。
//
// 前台消费适配器的报告序列，后台按固定间隔补发心跳；两者唯一共享的可变
// 状态是"最近一次证明"，用单写单读的原子指针建模，无需互斥锁。
type Runner struct {
	channel liveness.Channel
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewRunner 创建任务执行器。
func NewRunner(channel liveness.Channel, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		channel: channel,
		logger:  logger.With(zap.String("component", "task_runner")),
	}
}

// WithMetrics 附加指标收集器，nil 等价于不收集。
func (r *Runner) WithMetrics(collector *metrics.Collector) *Runner {
	r.metrics = collector
	return r
}

// Execute 执行一次 Attempt：
//
//  1. 从活性通道取回上一次 Attempt 的检查点（首次执行为 nil）；
//  2. adapter.Setup 恢复或全新初始化；
//  3. 启动后台心跳循环，携带最近已知的检查点；
//  4. 消费报告序列，每个超步完成后立即上报携带该报告检查点的证明；
//  5. 序列耗尽后停止后台循环，取 FinalOutput 返回。
//
// 适配器错误绝不吞掉：先停止后台循环，再原样向上传播，由编排层决定
// 重试还是终态。
func (r *Runner) Execute(
	ctx context.Context,
	taskInstanceID string,
	adapter Adapter,
	input json.RawMessage,
	heartbeatInterval time.Duration,
) (json.RawMessage, error) {
	if heartbeatInterval <= 0 {
		return nil, fmt.Errorf("heartbeat interval must be positive, got %v", heartbeatInterval)
	}

	prior, err := liveness.LastCheckpoint(ctx, r.channel, taskInstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to read prior checkpoint: %w", err)
	}

	if prior != nil && !adapter.SupportsCheckpointing() {
		// 不支持检查点的适配器总是从头执行
		r.logger.Info("restarting from scratch, adapter has no checkpoint support",
			zap.String("task_instance_id", taskInstanceID),
		)
		prior = nil
	} else if prior != nil {
		r.logger.Info("resuming from checkpoint",
			zap.String("task_instance_id", taskInstanceID),
		)
	}

	if err := adapter.Setup(ctx, taskInstanceID, prior); err != nil {
		return nil, fmt.Errorf("adapter setup failed: %w", err)
	}

	taskType, ok := ctxkeys.TaskType(ctx)
	if !ok {
		taskType = "unknown"
	}

	// 最近一次证明：前台唯一写者，后台唯一读者
	var last atomic.Pointer[liveness.Proof]
	last.Store(&liveness.Proof{
		TaskInstanceID: taskInstanceID,
		Checkpoint:     prior,
		At:             time.Now(),
	})

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				proof := *last.Load()
				proof.At = time.Now()
				r.channel.Report(ctx, proof)
				r.metrics.ObserveHeartbeat(taskType, "tick")
			}
		}
	}()

	var stopOnce sync.Once
	stop := func() {
		stopOnce.Do(func() {
			close(done)
			wg.Wait()
		})
	}
	defer stop()

	reports, errs := adapter.Run(ctx, input)
	for report := range reports {
		proof := liveness.Proof{
			TaskInstanceID: taskInstanceID,
			Sequence:       report.Sequence,
			StepName:       report.StepName,
			Checkpoint:     report.Checkpoint,
			At:             time.Now(),
		}
		last.Store(&proof)
		// 超步完成后立即上报，收窄崩溃时的重放窗口
		r.channel.Report(ctx, proof)
		r.metrics.ObserveHeartbeat(taskType, "step")

		r.logger.Debug("superstep completed",
			zap.String("task_instance_id", taskInstanceID),
			zap.Int64("sequence", report.Sequence),
			zap.String("step", report.StepName),
		)
	}

	if err := <-errs; err != nil {
		stop()
		return nil, err
	}

	stop()
	output, err := adapter.FinalOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to collect final output: %w", err)
	}

	r.logger.Info("attempt completed",
		zap.String("task_instance_id", taskInstanceID),
		zap.Int64("supersteps", last.Load().Sequence),
	)
	return output, nil
}
