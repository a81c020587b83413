package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/types"
)

// Decision 一次人工决策信号。
type Decision struct {
	Approved bool      `json:"approved"`
	Feedback string    `json:"feedback,omitempty"`
	At       time.Time `json:"at"`
}

// SignalHub 带外信号分发器：向等待中的编排实例投递审批/驳回信号。
//
// 等待是信号与超时之间的单发竞争，两个结果互斥且无竞态：先到者取消
// 后到者的等待。信号早于等待者到达时会被暂存，等待注册时立即消费，
// 避免投递与挂起之间的窗口丢信号。
type SignalHub struct {
	waiters map[string]chan Decision
	stashed map[string]Decision
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewSignalHub 创建信号分发器。
func NewSignalHub(logger *zap.Logger) *SignalHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalHub{
		waiters: make(map[string]chan Decision),
		stashed: make(map[string]Decision),
		logger:  logger.With(zap.String("component", "signal_hub")),
	}
}

// Send 向编排实例投递决策信号。同一实例的后续信号覆盖暂存值；
// 已有等待者时直接投递。
func (h *SignalHub) Send(instanceID string, decision Decision) error {
	if instanceID == "" {
		return fmt.Errorf("instance id must not be empty")
	}
	if decision.At.IsZero() {
		decision.At = time.Now()
	}

	h.mu.Lock()
	waiter, ok := h.waiters[instanceID]
	if ok {
		delete(h.waiters, instanceID)
		// 容量为 1 且注销只在锁内发生，此处绝不阻塞；在锁内完成写入，
		// 等待方超时注销时才能原子地看到"已投递或未投递"之一
		waiter <- decision
	} else {
		h.stashed[instanceID] = decision
	}
	h.mu.Unlock()

	h.logger.Info("decision signal delivered",
		zap.String("instance_id", instanceID),
		zap.Bool("approved", decision.Approved),
		zap.Bool("delivered_direct", ok),
	)
	return nil
}

// Wait 挂起等待编排实例的决策信号，直到信号到达或超时。
// 超时返回 types.ErrSignalTimeout（终态，不可重试）。
func (h *SignalHub) Wait(ctx context.Context, instanceID string, timeout time.Duration) (*Decision, error) {
	h.mu.Lock()
	if decision, ok := h.stashed[instanceID]; ok {
		delete(h.stashed, instanceID)
		h.mu.Unlock()
		return &decision, nil
	}
	waiter := make(chan Decision, 1)
	h.waiters[instanceID] = waiter
	h.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case decision := <-waiter:
		return &decision, nil
	case <-timer.C:
		if decision, ok := h.abandon(instanceID, waiter); ok {
			// 信号与超时同时到达：投递方已经报告送达，信号优先
			return &decision, nil
		}
		return nil, types.NewError(types.ErrSignalTimeout,
			fmt.Sprintf("no decision within %v", timeout)).
			WithRetryable(false)
	case <-ctx.Done():
		if decision, ok := h.abandon(instanceID, waiter); ok {
			return &decision, nil
		}
		return nil, ctx.Err()
	}
}

// abandon 注销等待者并排空竞争窗口里已投递的信号。Send 在锁内完成
// 投递，因此锁内排空后只有两种结果：拿到信号，或确认 Send 尚未投递
// （此后的信号会落入暂存，供下一次 Wait 消费）。
func (h *SignalHub) abandon(instanceID string, waiter chan Decision) (Decision, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.waiters, instanceID)
	select {
	case decision := <-waiter:
		return decision, true
	default:
		return Decision{}, false
	}
}
