package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/BaSui01/taskflow/task"
)

// drainPacking 直接驱动适配器一轮 Run，收集全部 pack_item 下标。
func drainPacking(adapter *PackingAdapter, input json.RawMessage) ([]int, error) {
	reports, errs := adapter.Run(context.Background(), input)

	var indices []int
	for report := range reports {
		if report.StepName == "acquire_tracking_id" {
			continue
		}
		var cp PackingCheckpoint
		if err := json.Unmarshal(report.Checkpoint, &cp); err != nil {
			return nil, err
		}
		indices = append(indices, cp.LastProcessedIndex)
	}
	if err := <-errs; err != nil {
		return nil, err
	}
	return indices, nil
}

// 恢复不变式：从任意合法检查点下标续跑，剩余条目恰好各打包一次，
// 且追踪号保持首次申请的值。
func TestProperty_PackingResumeFromAnyCheckpoint(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("resume packs each remaining item exactly once", prop.ForAll(
		func(numItems int, lastDone int) bool {
			if lastDone >= numItems {
				lastDone = numItems - 1
			}

			items := make([]string, numItems)
			for i := range items {
				items[i] = fmt.Sprintf("sku-%d", i)
			}
			input, err := json.Marshal(Order{OrderID: "prop", ItemsToPack: items})
			if err != nil {
				return false
			}

			adapter := NewPackingAdapter()
			adapter.ItemDelay = 0
			adapter.AllocateTrackingID = func() string {
				t.Log("tracking ID reallocated on resume")
				return "TRK-FRESH"
			}

			checkpoint := task.MarshalCheckpoint(PackingCheckpoint{
				LastProcessedIndex: lastDone,
				TrackingID:         "TRK-PROP",
			})
			if err := adapter.Setup(context.Background(), "prop", checkpoint); err != nil {
				t.Logf("Setup failed: %v", err)
				return false
			}

			indices, err := drainPacking(adapter, input)
			if err != nil {
				t.Logf("Run failed: %v", err)
				return false
			}

			// 剩余条目恰好是 lastDone+1 .. numItems-1，顺序推进且不重复
			if len(indices) != numItems-1-lastDone {
				t.Logf("packed %d items, expected %d", len(indices), numItems-1-lastDone)
				return false
			}
			for i, idx := range indices {
				if idx != lastDone+1+i {
					t.Logf("index %d out of order: got %d", i, idx)
					return false
				}
			}

			output, err := adapter.FinalOutput()
			if err != nil {
				t.Logf("FinalOutput failed: %v", err)
				return false
			}
			var result map[string]any
			if err := json.Unmarshal(output, &result); err != nil {
				return false
			}
			if result["tracking_id"] != "TRK-PROP" {
				t.Logf("tracking ID changed on resume: %v", result["tracking_id"])
				return false
			}
			return result["items_packed"] == float64(numItems)
		},
		gen.IntRange(1, 12),
		gen.IntRange(-1, 11),
	))

	properties.TestingRun(t)
}
