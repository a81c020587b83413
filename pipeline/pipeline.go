// Package pipeline 实现顺序编排状态机：按固定顺序派发任务、按阶段应用
// 差异化重试策略、在审批阶段挂起等待人工决策并处理超时过期。
//
// 阶段间严格串行，不存在并行阶段；并发只存在于单个 Attempt 内部的
// 活性协议中（见 task 包）。
package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/taskflow/retry"
	"github.com/BaSui01/taskflow/types"
)

// Stage 流水线中的一个阶段。
type Stage struct {
	// Name 阶段名，实例内唯一；任务实例 ID 由实例 ID 与阶段名派生。
	Name string `json:"name" yaml:"name"`
	// TaskType 注册表中的任务类型。
	TaskType string `json:"task_type" yaml:"task_type"`
	// Retry 本阶段的重试策略，nil 表示只执行一次。
	Retry *retry.Policy `json:"-" yaml:"-"`
	// HeartbeatInterval 本阶段 Attempt 的后台心跳间隔，0 取默认值。
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	// HeartbeatTimeout 本阶段的失活判定窗口，0 取默认值。
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	// RequiresApproval 标记该阶段完成后需要人工确认才能继续。
	RequiresApproval bool `json:"requires_approval" yaml:"requires_approval"`
}

// Definition 流水线定义：有序阶段列表 + 信号等待窗口。
type Definition struct {
	Name          string        `json:"name" yaml:"name"`
	Stages        []Stage       `json:"stages" yaml:"stages"`
	SignalTimeout time.Duration `json:"signal_timeout" yaml:"signal_timeout"`
}

// 默认活性协议参数
const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultHeartbeatTimeout  = 30 * time.Second
)

// Validate 校验流水线定义。
func (d *Definition) Validate() error {
	if d.Name == "" {
		return types.NewError(types.ErrConfigInvalid, "pipeline name must not be empty")
	}
	if len(d.Stages) == 0 {
		return types.NewError(types.ErrConfigInvalid, "pipeline must have at least one stage")
	}

	seen := make(map[string]bool, len(d.Stages))
	needsSignal := false
	for i, stage := range d.Stages {
		if stage.Name == "" {
			return types.NewError(types.ErrConfigInvalid, fmt.Sprintf("stage %d has no name", i))
		}
		if stage.TaskType == "" {
			return types.NewError(types.ErrConfigInvalid, "stage has no task type: "+stage.Name)
		}
		if seen[stage.Name] {
			return types.NewError(types.ErrConfigInvalid, "duplicate stage name: "+stage.Name)
		}
		seen[stage.Name] = true
		if stage.RequiresApproval {
			needsSignal = true
		}
	}
	if needsSignal && d.SignalTimeout <= 0 {
		return types.NewError(types.ErrConfigInvalid, "signal timeout required for approval stages")
	}
	return nil
}

// heartbeatOptions 返回阶段的活性协议参数（带默认值）。
func (s *Stage) heartbeatOptions() (interval, timeout time.Duration) {
	interval = s.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	timeout = s.HeartbeatTimeout
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	return interval, timeout
}

// StageResult 一个阶段的执行结果。
type StageResult struct {
	Name       string          `json:"name"`
	TaskType   string          `json:"task_type"`
	Attempts   int             `json:"attempts"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// DecisionOutcome 人工决策结果。
type DecisionOutcome string

const (
	DecisionApproved DecisionOutcome = "approved"
	DecisionRejected DecisionOutcome = "rejected"
	DecisionExpired  DecisionOutcome = "expired"
)

// DecisionRecord 审批阶段的决策记录。
type DecisionRecord struct {
	Outcome  DecisionOutcome `json:"outcome"`
	Feedback string          `json:"feedback,omitempty"`
	Stage    string          `json:"stage"`
	At       time.Time       `json:"at"`
}

// Instance 一次流水线执行实例。
// 只被编排器自身的状态迁移修改，到达终态后归档。
type Instance struct {
	ID           string          `json:"id"`
	Pipeline     string          `json:"pipeline"`
	State        State           `json:"state"`
	Stages       []StageResult   `json:"stages"`
	Decision     *DecisionRecord `json:"decision,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	FailedStage  string          `json:"failed_stage,omitempty"`
	ErrorCode    types.ErrorCode `json:"error_code,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Transitions  []Transition    `json:"transitions"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TaskInstanceID 派生阶段的稳定任务实例标识。
// 只依赖实例 ID 与阶段名，进程完全重启后仍可恢复同一标识。
func (in *Instance) TaskInstanceID(stage string) string {
	return in.ID + ":" + stage
}
