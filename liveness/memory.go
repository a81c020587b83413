package liveness

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// History 内存活性通道，适合单 worker 部署与测试。
// 保留每个任务实例的完整证明轨迹，便于观测与断言。
type History struct {
	proofs map[string][]Proof
	logger *zap.Logger
	mu     sync.RWMutex
}

// NewHistory 创建内存活性通道。
func NewHistory(logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{
		proofs: make(map[string][]Proof),
		logger: logger.With(zap.String("component", "liveness_history")),
	}
}

// Report 记录活性证明。
func (h *History) Report(ctx context.Context, proof Proof) {
	h.mu.Lock()
	h.proofs[proof.TaskInstanceID] = append(h.proofs[proof.TaskInstanceID], proof)
	h.mu.Unlock()

	h.logger.Debug("liveness proof recorded",
		zap.String("task_instance_id", proof.TaskInstanceID),
		zap.Int64("sequence", proof.Sequence),
		zap.String("step", proof.StepName),
	)
}

// LastProof 返回最近一次活性证明。
func (h *History) LastProof(ctx context.Context, taskInstanceID string) (*Proof, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	trace := h.proofs[taskInstanceID]
	if len(trace) == 0 {
		return nil, nil
	}
	last := trace[len(trace)-1]
	return &last, nil
}

// Proofs 返回任务实例的完整证明轨迹（副本）。
func (h *History) Proofs(taskInstanceID string) []Proof {
	h.mu.RLock()
	defer h.mu.RUnlock()

	trace := h.proofs[taskInstanceID]
	out := make([]Proof, len(trace))
	copy(out, trace)
	return out
}

// Reset 清空任务实例的证明轨迹。
func (h *History) Reset(taskInstanceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.proofs, taskInstanceID)
}
