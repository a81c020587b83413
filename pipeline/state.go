package pipeline

import "time"

// State 流水线实例状态。
type State string

const (
	// StateCreated 实例已创建，尚未派发任何阶段
	StateCreated State = "created"
	// StateDispatching 正在派发某个阶段的任务
	StateDispatching State = "dispatching"
	// StateAwaitingSignal 挂起等待人工决策信号
	StateAwaitingSignal State = "awaiting_signal"
	// StateSucceeded 终态：全部阶段完成
	StateSucceeded State = "succeeded"
	// StateFailed 终态：某阶段重试预算耗尽或遇到致命错误
	StateFailed State = "failed"
	// StateExpired 终态：信号等待超时。与 Failed 严格区分：过期不是错误
	StateExpired State = "expired"
)

// Terminal 报告状态是否为终态。
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateExpired:
		return true
	}
	return false
}

// Transition 一次状态迁移记录。
type Transition struct {
	From  State     `json:"from"`
	To    State     `json:"to"`
	Stage string    `json:"stage,omitempty"`
	Note  string    `json:"note,omitempty"`
	At    time.Time `json:"at"`
}
