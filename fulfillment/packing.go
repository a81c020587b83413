package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/taskflow/task"
	"github.com/BaSui01/taskflow/types"
)

// PackingCheckpoint 打包任务的检查点。
// TrackingID 是首个动作申请的外部资源标识：一旦出现在检查点中，
// 恢复时无条件复用，绝不重新申请。
type PackingCheckpoint struct {
	LastProcessedIndex int    `json:"last_processed_index"`
	LastItemSKU        string `json:"last_item_sku,omitempty"`
	TrackingID         string `json:"tracking_id,omitempty"`
}

// PackingAdapter 逐件打包任务，条目级检查点恢复的示范实现。
//
// 首次执行先申请追踪号并以哨兵下标 -1 立即上报检查点；每打包一件
// 上报一次携带最新下标的检查点。恢复规则：从 LastProcessedIndex+1
// 开始，下标 ≤ 检查点记录值的条目绝不重做。
type PackingAdapter struct {
	// AllocateTrackingID 外部追踪号分配器，nil 取 uuid
	AllocateTrackingID func() string
	// ItemDelay 模拟单件打包耗时
	ItemDelay time.Duration

	tracking string
	startIdx int
	total    int
	orderID  string
	done     bool
}

// NewPackingAdapter 创建打包适配器。
func NewPackingAdapter() *PackingAdapter {
	return &PackingAdapter{ItemDelay: 10 * time.Second}
}

// SupportsCheckpointing 打包任务支持检查点恢复。
func (a *PackingAdapter) SupportsCheckpointing() bool { return true }

// Setup 恢复或全新初始化。检查点结构非法返回致命错误。
func (a *PackingAdapter) Setup(ctx context.Context, taskInstanceID string, checkpoint task.Checkpoint) error {
	a.tracking = ""
	a.startIdx = 0
	a.done = false

	if checkpoint == nil {
		return nil
	}

	var cp PackingCheckpoint
	if err := json.Unmarshal(checkpoint, &cp); err != nil {
		return task.ErrCheckpoint(TaskTypePacking, err)
	}
	if cp.LastProcessedIndex < -1 {
		return task.ErrCheckpoint(TaskTypePacking,
			fmt.Errorf("last_processed_index out of range: %d", cp.LastProcessedIndex))
	}

	a.tracking = cp.TrackingID
	a.startIdx = cp.LastProcessedIndex + 1
	return nil
}

// Run 打包全部条目。
func (a *PackingAdapter) Run(ctx context.Context, input json.RawMessage) (<-chan task.ProgressReport, <-chan error) {
	return task.Produce(ctx, func(ctx context.Context, emit func(task.ProgressReport) bool) error {
		var order Order
		if err := json.Unmarshal(input, &order); err != nil {
			return types.NewFatal("malformed order input").WithCause(err)
		}
		a.orderID = order.OrderID
		a.total = len(order.ItemsToPack)

		// 首次执行：处理任何条目之前先申请追踪号并立即上报，
		// 保证第一件完成前崩溃也不会重复申请
		if a.tracking == "" {
			allocate := a.AllocateTrackingID
			if allocate == nil {
				allocate = uuid.NewString
			}
			a.tracking = allocate()

			cp := PackingCheckpoint{LastProcessedIndex: -1, TrackingID: a.tracking}
			if !emit(task.ProgressReport{
				Sequence:   1,
				StepName:   "acquire_tracking_id",
				Checkpoint: task.MarshalCheckpoint(cp),
			}) {
				return ctx.Err()
			}
		}

		for idx := a.startIdx; idx < a.total; idx++ {
			if a.ItemDelay > 0 {
				select {
				case <-time.After(a.ItemDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			sku := order.ItemsToPack[idx]
			cp := PackingCheckpoint{
				LastProcessedIndex: idx,
				LastItemSKU:        sku,
				TrackingID:         a.tracking,
			}
			if !emit(task.ProgressReport{
				// 序号跨 Attempt 连续：申请追踪号是第 1 个超步，条目 idx 是第 idx+2 个
				Sequence:   int64(idx + 2),
				StepName:   fmt.Sprintf("pack_item:%s", sku),
				Checkpoint: task.MarshalCheckpoint(cp),
			}) {
				return ctx.Err()
			}
		}

		a.done = true
		return nil
	})
}

// FinalOutput 返回打包结果，追踪号在崩溃恢复后保持不变。
func (a *PackingAdapter) FinalOutput() (json.RawMessage, error) {
	if !a.done {
		return nil, task.ErrIncomplete(TaskTypePacking)
	}
	return json.Marshal(map[string]any{
		"order_id":     a.orderID,
		"tracking_id":  a.tracking,
		"items_packed": a.total,
	})
}
