package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/liveness"
	"github.com/BaSui01/taskflow/task"
	"github.com/BaSui01/taskflow/types"
)

func execute(t *testing.T, channel liveness.Channel, id string, adapter task.Adapter, input any) (json.RawMessage, error) {
	t.Helper()
	runner := task.NewRunner(channel, zap.NewNop())
	data, err := json.Marshal(input)
	require.NoError(t, err)
	return runner.Execute(context.Background(), id, adapter, data, time.Hour)
}

func TestResearchAdapter_CompletesAllNodes(t *testing.T) {
	history := liveness.NewHistory(zap.NewNop())
	adapter := NewResearchAdapter()

	output, err := execute(t, history, "r1", adapter, ResearchInput{Query: "go scheduler"})
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal(output, &result))
	assert.Equal(t, float64(4), result["superstep_count"])
	assert.Contains(t, result["final_report"], "plan research for: go scheduler")
	assert.Contains(t, result["final_report"], "write final report")

	proofs := history.Proofs("r1")
	require.Len(t, proofs, 4)
	assert.Equal(t, "plan", proofs[0].StepName)
	assert.Equal(t, "report", proofs[3].StepName)
}

func TestResearchAdapter_ResumeSkipsCompletedNodes(t *testing.T) {
	history := liveness.NewHistory(zap.NewNop())

	// 第一次 Attempt：analyze 节点模型故障，瞬时错误
	var calls []string
	failing := NewResearchAdapter()
	failing.Model = TextModelFunc(func(ctx context.Context, prompt string) (string, error) {
		calls = append(calls, prompt)
		if len(calls) == 3 {
			return "", errors.New("model backend unavailable")
		}
		return "[" + prompt + "]", nil
	})

	_, err := execute(t, history, "r2", failing, ResearchInput{Query: "raft"})
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err), "模型故障按瞬时处理")
	require.Len(t, history.Proofs("r2"), 2, "plan 和 search 已落检查点")

	// 第二次 Attempt：全新实例只补 analyze 和 report
	calls = nil
	recovered := NewResearchAdapter()
	recovered.Model = TextModelFunc(func(ctx context.Context, prompt string) (string, error) {
		calls = append(calls, prompt)
		return "[" + prompt + "]", nil
	})

	output, err := execute(t, history, "r2", recovered, ResearchInput{Query: "raft"})
	require.NoError(t, err)
	require.Len(t, calls, 2, "已完成节点不重算")
	assert.Contains(t, calls[0], "analyze findings")
	assert.Contains(t, calls[1], "write final report")

	var result map[string]any
	require.NoError(t, json.Unmarshal(output, &result))
	assert.Equal(t, float64(4), result["superstep_count"])
	// 检查点携带的 plan/search 产物并入最终报告
	assert.Contains(t, result["final_report"], "plan research for: raft")
}

func TestResearchAdapter_FeedbackEntersReportPrompt(t *testing.T) {
	var prompts []string
	adapter := NewResearchAdapter()
	adapter.Model = TextModelFunc(func(ctx context.Context, prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return prompt, nil
	})

	_, err := execute(t, liveness.NewHistory(zap.NewNop()), "r3", adapter,
		ResearchInput{Query: "kafka", Feedback: "cite primary sources"})
	require.NoError(t, err)

	require.Len(t, prompts, 4)
	assert.Contains(t, prompts[3], "reviewer feedback: cite primary sources")
	assert.NotContains(t, prompts[0], "reviewer feedback", "反馈只进报告节点")
}

func TestResearchAdapter_EmptyQueryIsFatal(t *testing.T) {
	_, err := execute(t, liveness.NewHistory(zap.NewNop()), "r4", NewResearchAdapter(),
		ResearchInput{})
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err))
}

func TestResearchAdapter_InvalidCheckpoint(t *testing.T) {
	adapter := NewResearchAdapter()

	err := adapter.Setup(context.Background(), "r5", json.RawMessage(`{"superstep":`))
	require.Error(t, err)
	assert.Equal(t, types.ErrBadCheckpoint, types.GetErrorCode(err))

	err = adapter.Setup(context.Background(), "r5", task.MarshalCheckpoint(ResearchCheckpoint{Superstep: 99}))
	require.Error(t, err)
	assert.Equal(t, types.ErrBadCheckpoint, types.GetErrorCode(err))
}

func TestSleepingAdapter_AlwaysRestartsFromZero(t *testing.T) {
	history := liveness.NewHistory(zap.NewNop())
	runner := task.NewRunner(history, zap.NewNop())
	input, _ := json.Marshal(SleepingInput{NumSteps: 3, StepSleep: 20 * time.Millisecond})

	// 第一次 Attempt 中途取消
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	_, err := runner.Execute(ctx, "s1", NewSleepingAdapter(), input, time.Hour)
	cancel()
	require.Error(t, err)
	require.NotEmpty(t, history.Proofs("s1"), "崩溃前有进度")

	// 重派后从第 1 步重来：全部 3 步都重新上报
	output, err := runner.Execute(context.Background(), "s1", NewSleepingAdapter(), input, time.Hour)
	require.NoError(t, err)

	var steps []string
	for _, proof := range history.Proofs("s1") {
		steps = append(steps, proof.StepName)
	}
	assert.Contains(t, steps, "sleep_1")
	assert.Equal(t, "sleep_3", steps[len(steps)-1])

	var result map[string]any
	require.NoError(t, json.Unmarshal(output, &result))
	assert.Equal(t, float64(3), result["steps_completed"])
}

func TestRegister(t *testing.T) {
	registry := task.NewRegistry(zap.NewNop())
	require.NoError(t, Register(registry))

	adapter, err := registry.New(TaskTypeResearch)
	require.NoError(t, err)
	assert.IsType(t, &ResearchAdapter{}, adapter)

	adapter, err = registry.New(TaskTypeSleeping)
	require.NoError(t, err)
	assert.IsType(t, &SleepingAdapter{}, adapter)
}
