package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/taskflow/internal/ctxkeys"
	"github.com/BaSui01/taskflow/task"
	"github.com/BaSui01/taskflow/types"
)

// InventoryAdapter 库存预留任务。单超步，不支持检查点。
// 订单标记 InventoryDown 时模拟服务降级：前 FailuresBeforeSuccess 次
// Attempt 返回瞬时错误，之后恢复成功，用于演示差异化重试策略。
type InventoryAdapter struct {
	// FailuresBeforeSuccess 降级模式下失败的 Attempt 数
	FailuresBeforeSuccess int
	// Delay 模拟预留耗时
	Delay time.Duration
	// DownDelay 降级模式下失败前的等待
	DownDelay time.Duration

	output json.RawMessage
	done   bool
}

// NewInventoryAdapter 创建库存预留适配器。
func NewInventoryAdapter() *InventoryAdapter {
	return &InventoryAdapter{
		FailuresBeforeSuccess: 4,
		Delay:                 time.Second,
		DownDelay:             time.Second,
	}
}

// SupportsCheckpointing 库存任务不支持检查点。
func (a *InventoryAdapter) SupportsCheckpointing() bool { return false }

// Setup 总是全新初始化。
func (a *InventoryAdapter) Setup(ctx context.Context, taskInstanceID string, checkpoint task.Checkpoint) error {
	a.output = nil
	a.done = false
	return nil
}

// Run 预留库存，降级模式下按 Attempt 序号渐进恢复。
func (a *InventoryAdapter) Run(ctx context.Context, input json.RawMessage) (<-chan task.ProgressReport, <-chan error) {
	return task.Produce(ctx, func(ctx context.Context, emit func(task.ProgressReport) bool) error {
		var order Order
		if err := json.Unmarshal(input, &order); err != nil {
			return types.NewFatal("malformed order input").WithCause(err)
		}

		attempt := ctxkeys.Attempt(ctx)
		result := fmt.Sprintf("Inventory reserved for order %s", order.OrderID)

		if order.InventoryDown && attempt <= a.FailuresBeforeSuccess {
			if a.DownDelay > 0 {
				select {
				case <-time.After(a.DownDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return types.NewTransient(
				fmt.Sprintf("inventory service down (attempt %d)", attempt))
		}
		if order.InventoryDown {
			result = fmt.Sprintf("%s (recovered after %d attempts)", result, attempt)
		}

		if a.Delay > 0 {
			select {
			case <-time.After(a.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if !emit(task.ProgressReport{Sequence: 1, StepName: "reserve_inventory"}) {
			return ctx.Err()
		}

		a.output, _ = json.Marshal(map[string]any{
			"order_id": order.OrderID,
			"result":   result,
			"attempt":  attempt,
		})
		a.done = true
		return nil
	})
}

// FinalOutput 返回预留结果。
func (a *InventoryAdapter) FinalOutput() (json.RawMessage, error) {
	if !a.done {
		return nil, task.ErrIncomplete(TaskTypeInventory)
	}
	return a.output, nil
}
