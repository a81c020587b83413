// Package liveness 提供任务活性通道：执行中的 Attempt 通过它上报活性证明，
// 失败后重新派发的 Attempt 通过它取回上一次证明携带的检查点。
//
// 通道语义刻意保持窄：Report 是非阻塞、尽力而为的；LastProof 在一次 Attempt
// 开始时只读取一次。恢复逻辑只依赖证明中的 Checkpoint，Sequence 仅用于观测。
package liveness

import (
	"context"
	"encoding/json"
	"time"
)

// Proof 一次活性证明，可选携带适配器自定义的检查点。
type Proof struct {
	TaskInstanceID string          `json:"task_instance_id"`
	Sequence       int64           `json:"sequence"`
	StepName       string          `json:"step_name,omitempty"`
	Checkpoint     json.RawMessage `json:"checkpoint,omitempty"`
	At             time.Time       `json:"at"`
}

// Channel 活性通道接口。
type Channel interface {
	// Report 上报活性证明。实现必须快速返回，失败只记录日志不向上传播。
	Report(ctx context.Context, proof Proof)

	// LastProof 返回任务实例最近一次的活性证明，没有历史时返回 nil。
	LastProof(ctx context.Context, taskInstanceID string) (*Proof, error)
}

// LastCheckpoint 读取任务实例最近一次证明携带的检查点。
// 没有历史或证明未携带检查点时返回 nil。
func LastCheckpoint(ctx context.Context, ch Channel, taskInstanceID string) (json.RawMessage, error) {
	proof, err := ch.LastProof(ctx, taskInstanceID)
	if err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, nil
	}
	return proof.Checkpoint, nil
}
