package fulfillment

import (
	"time"

	"github.com/BaSui01/taskflow/pipeline"
	"github.com/BaSui01/taskflow/retry"
	"github.com/BaSui01/taskflow/task"
)

// Register 注册全部履行任务类型。
func Register(registry *task.Registry) error {
	factories := map[string]task.Factory{
		TaskTypePayment:   func() task.Adapter { return NewPaymentAdapter() },
		TaskTypeInventory: func() task.Adapter { return NewInventoryAdapter() },
		TaskTypePacking:   func() task.Adapter { return NewPackingAdapter() },
		TaskTypeDelivery:  func() task.Adapter { return NewDeliveryAdapter() },
	}
	for taskType, factory := range factories {
		if err := registry.Register(taskType, factory); err != nil {
			return err
		}
	}
	return nil
}

// PipelineOptions 履行流水线的可调参数。
type PipelineOptions struct {
	// SignalTimeout 审批等待窗口
	SignalTimeout time.Duration
	// InventoryDown 库存服务降级模式：预留阶段放宽重试预算直到服务恢复
	InventoryDown bool
}

// Pipeline 组装订单履行流水线定义：
// 支付 → 库存预留 → 打包（审批门）→ 配送。
func Pipeline(opts PipelineOptions) pipeline.Definition {
	if opts.SignalTimeout <= 0 {
		opts.SignalTimeout = 30 * time.Second
	}

	inventoryRetry := retry.Single()
	if opts.InventoryDown {
		// 降级时放宽预算等待服务恢复
		inventoryRetry = &retry.Policy{
			MaxAttempts:  25,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		}
	}

	return pipeline.Definition{
		Name:          "order_fulfillment",
		SignalTimeout: opts.SignalTimeout,
		Stages: []pipeline.Stage{
			{
				Name:     "process_payment",
				TaskType: TaskTypePayment,
				Retry:    retry.Single(),
			},
			{
				Name:     "reserve_inventory",
				TaskType: TaskTypeInventory,
				Retry:    inventoryRetry,
			},
			{
				Name:     "pack_order_items",
				TaskType: TaskTypePacking,
				Retry: &retry.Policy{
					MaxAttempts:  10,
					InitialDelay: time.Second,
					MaxDelay:     30 * time.Second,
					Multiplier:   2.0,
					Jitter:       true,
				},
				HeartbeatInterval: 5 * time.Second,
				HeartbeatTimeout:  30 * time.Second,
				RequiresApproval:  true,
			},
			{
				Name:     "deliver_order",
				TaskType: TaskTypeDelivery,
				Retry:    retry.Single(),
			},
		},
	}
}
