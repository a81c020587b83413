package task

import (
	"context"
	"encoding/json"

	"github.com/BaSui01/taskflow/types"
)

// Checkpoint 适配器自定义的进度标记，对 Runner 完全不透明。
// 要求可序列化且全量：适配器曾经上报过的任何值都必须是合法的恢复输入。
type Checkpoint = json.RawMessage

// ProgressReport 一个超步完成后的进度报告。
// Sequence 在同一逻辑任务实例的所有 Attempt 间严格递增，仅用于观测；
// 恢复逻辑只使用 Checkpoint，两者刻意解耦，使不支持检查点的适配器
// 也能上报进度。
type ProgressReport struct {
	Sequence   int64      `json:"sequence"`
	StepName   string     `json:"step_name"`
	Checkpoint Checkpoint `json:"checkpoint,omitempty"`
}

// Adapter 包装一个可恢复的工作单元。
//
// 每个 Attempt 使用一个全新的适配器实例：Setup 在 Run 之前恰好调用一次，
// Run 返回的序列是单次、只进、不可重启的 —— 重启通过新 Attempt 再次调用
// Setup 建模，而不是重放该序列。
type Adapter interface {
	// SupportsCheckpointing 返回适配器是否支持基于检查点的恢复。
	// 纯函数，对同一适配器类型恒定。
	SupportsCheckpointing() bool

	// Setup 初始化适配器。checkpoint 非 nil 时必须恢复到该检查点之后；
	// 为 nil 时必须初始化全新状态。检查点结构非法时返回
	// types.ErrBadCheckpoint（致命，不可重试）。
	Setup(ctx context.Context, taskInstanceID string, checkpoint Checkpoint) error

	// Run 执行任务。报告通道按完成顺序产出每个超步的进度，耗尽后关闭；
	// 错误通道容量为 1，运行失败时在报告通道关闭后恰好收到终止错误。
	// 支持检查点的适配器为每个报告附带非 nil 检查点，反之总是附带 nil。
	Run(ctx context.Context, input json.RawMessage) (<-chan ProgressReport, <-chan error)

	// FinalOutput 返回累积结果，只能在 Run 的序列耗尽后调用，
	// 提前调用返回 types.ErrTaskIncomplete。
	FinalOutput() (json.RawMessage, error)
}

// ErrIncomplete 构造序列未耗尽即取结果的错误。
func ErrIncomplete(taskType string) error {
	return types.NewError(types.ErrTaskIncomplete, "final output requested before run completed: "+taskType)
}

// ErrCheckpoint 构造检查点结构非法的致命错误。
func ErrCheckpoint(taskType string, cause error) error {
	return types.NewError(types.ErrBadCheckpoint, "malformed checkpoint for "+taskType).
		WithCause(cause).
		WithRetryable(false)
}
