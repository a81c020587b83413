package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/taskflow/task"
	"github.com/BaSui01/taskflow/types"
)

// PaymentAdapter 支付校验任务。单超步，不支持检查点。
// 有效期格式非法或已过期属于输入数据错误，返回致命错误直接判定
// 流水线失败，不消耗重试预算。
type PaymentAdapter struct {
	// Delay 模拟支付处理耗时
	Delay time.Duration
	// Now 时钟注入点，测试用；nil 取 time.Now
	Now func() time.Time

	output json.RawMessage
	done   bool
}

// NewPaymentAdapter 创建支付校验适配器。
func NewPaymentAdapter() *PaymentAdapter {
	return &PaymentAdapter{Delay: time.Second}
}

// SupportsCheckpointing 支付任务不支持检查点。
func (a *PaymentAdapter) SupportsCheckpointing() bool { return false }

// Setup 总是全新初始化，忽略检查点参数。
func (a *PaymentAdapter) Setup(ctx context.Context, taskInstanceID string, checkpoint task.Checkpoint) error {
	a.output = nil
	a.done = false
	return nil
}

// Run 校验有效期并模拟扣款。
func (a *PaymentAdapter) Run(ctx context.Context, input json.RawMessage) (<-chan task.ProgressReport, <-chan error) {
	return task.Produce(ctx, func(ctx context.Context, emit func(task.ProgressReport) bool) error {
		var order Order
		if err := json.Unmarshal(input, &order); err != nil {
			return types.NewFatal("malformed order input").WithCause(err)
		}

		month, year, err := parseExpiry(order.CreditCardExpiry)
		if err != nil {
			return types.NewFatal("invalid credit card expiry").WithCause(err)
		}
		now := time.Now
		if a.Now != nil {
			now = a.Now
		}
		if expired(month, year, now()) {
			return types.NewFatal("credit card expired")
		}

		if a.Delay > 0 {
			select {
			case <-time.After(a.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if !emit(task.ProgressReport{Sequence: 1, StepName: "process_payment"}) {
			return ctx.Err()
		}

		a.output, _ = json.Marshal(map[string]string{
			"order_id": order.OrderID,
			"result":   fmt.Sprintf("Payment processed for order %s", order.OrderID),
		})
		a.done = true
		return nil
	})
}

// FinalOutput 返回支付结果。
func (a *PaymentAdapter) FinalOutput() (json.RawMessage, error) {
	if !a.done {
		return nil, task.ErrIncomplete(TaskTypePayment)
	}
	return a.output, nil
}
