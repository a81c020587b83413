package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/taskflow/task"
	"github.com/BaSui01/taskflow/types"
)

// SleepingInput 休眠任务输入。
type SleepingInput struct {
	NumSteps  int           `json:"num_steps"`
	StepSleep time.Duration `json:"step_sleep"`
}

// SleepingAdapter 不支持检查点的休眠任务。
// 重派后总是从第 0 步重新开始，演示省略检查点模式的代价：
// 崩溃前已完成的进度全部作废。
type SleepingAdapter struct {
	stepsCompleted int
	totalSleep     time.Duration
	done           bool
}

// NewSleepingAdapter 创建休眠适配器。
func NewSleepingAdapter() *SleepingAdapter {
	return &SleepingAdapter{}
}

// SupportsCheckpointing 休眠任务不支持检查点。
func (a *SleepingAdapter) SupportsCheckpointing() bool { return false }

// Setup 总是全新初始化，忽略检查点参数。
func (a *SleepingAdapter) Setup(ctx context.Context, taskInstanceID string, checkpoint task.Checkpoint) error {
	a.stepsCompleted = 0
	a.totalSleep = 0
	a.done = false
	return nil
}

// Run 按步休眠，每步完成上报一次（不携带检查点）。
func (a *SleepingAdapter) Run(ctx context.Context, input json.RawMessage) (<-chan task.ProgressReport, <-chan error) {
	return task.Produce(ctx, func(ctx context.Context, emit func(task.ProgressReport) bool) error {
		var in SleepingInput
		if err := json.Unmarshal(input, &in); err != nil {
			return types.NewFatal("malformed sleeping input").WithCause(err)
		}
		if in.NumSteps <= 0 {
			in.NumSteps = 4
		}

		for step := 1; step <= in.NumSteps; step++ {
			if in.StepSleep > 0 {
				select {
				case <-time.After(in.StepSleep):
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			a.stepsCompleted = step
			a.totalSleep += in.StepSleep

			if !emit(task.ProgressReport{
				Sequence: int64(step),
				StepName: fmt.Sprintf("sleep_%d", step),
			}) {
				return ctx.Err()
			}
		}

		a.done = true
		return nil
	})
}

// FinalOutput 返回完成的步数与总休眠时长。
func (a *SleepingAdapter) FinalOutput() (json.RawMessage, error) {
	if !a.done {
		return nil, task.ErrIncomplete(TaskTypeSleeping)
	}
	return json.Marshal(map[string]any{
		"steps_completed":  a.stepsCompleted,
		"total_sleep_time": a.totalSleep.Seconds(),
	})
}

// Register 注册全部分析任务类型。
func Register(registry *task.Registry) error {
	factories := map[string]task.Factory{
		TaskTypeResearch: func() task.Adapter { return NewResearchAdapter() },
		TaskTypeSleeping: func() task.Adapter { return NewSleepingAdapter() },
	}
	for taskType, factory := range factories {
		if err := registry.Register(taskType, factory); err != nil {
			return err
		}
	}
	return nil
}
