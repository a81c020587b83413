package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/taskflow/task"
	"github.com/BaSui01/taskflow/types"
)

// DeliveryAdapter 配送任务。单超步，不支持检查点。
// 审批驳回的反馈文本（编排器注入）会附加到配送结果中。
type DeliveryAdapter struct {
	// Delay 模拟配送调度耗时
	Delay time.Duration

	output json.RawMessage
	done   bool
}

// NewDeliveryAdapter 创建配送适配器。
func NewDeliveryAdapter() *DeliveryAdapter {
	return &DeliveryAdapter{Delay: time.Second}
}

// SupportsCheckpointing 配送任务不支持检查点。
func (a *DeliveryAdapter) SupportsCheckpointing() bool { return false }

// Setup 总是全新初始化。
func (a *DeliveryAdapter) Setup(ctx context.Context, taskInstanceID string, checkpoint task.Checkpoint) error {
	a.output = nil
	a.done = false
	return nil
}

// Run 执行配送。
func (a *DeliveryAdapter) Run(ctx context.Context, input json.RawMessage) (<-chan task.ProgressReport, <-chan error) {
	return task.Produce(ctx, func(ctx context.Context, emit func(task.ProgressReport) bool) error {
		var order Order
		if err := json.Unmarshal(input, &order); err != nil {
			return types.NewFatal("malformed order input").WithCause(err)
		}

		if a.Delay > 0 {
			select {
			case <-time.After(a.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if !emit(task.ProgressReport{Sequence: 1, StepName: "deliver_order"}) {
			return ctx.Err()
		}

		result := fmt.Sprintf("Order %s delivered", order.OrderID)
		a.output, _ = json.Marshal(map[string]string{
			"order_id": order.OrderID,
			"result":   result,
			"feedback": order.Feedback,
		})
		a.done = true
		return nil
	})
}

// FinalOutput 返回配送结果。
func (a *DeliveryAdapter) FinalOutput() (json.RawMessage, error) {
	if !a.done {
		return nil, task.ErrIncomplete(TaskTypeDelivery)
	}
	return a.output, nil
}
