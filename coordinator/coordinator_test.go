package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/taskflow/internal/ctxkeys"
	"github.com/BaSui01/taskflow/internal/metrics"
	"github.com/BaSui01/taskflow/liveness"
	"github.com/BaSui01/taskflow/retry"
	"github.com/BaSui01/taskflow/task"
	"github.com/BaSui01/taskflow/types"
)

// stepCheckpoint 测试适配器检查点
type stepCheckpoint struct {
	Done int `json:"done"`
}

// stepAdapter 分步测试适配器。failOn[attempt] 控制对应 Attempt 在
// 第几步后崩溃；processed 跨 Attempt 记录实际做过的步。
type stepAdapter struct {
	total     int
	failAfter int
	delay     time.Duration
	fatal     bool

	processed *[]int
	attempts  *int

	start int
	done  bool
}

func (a *stepAdapter) SupportsCheckpointing() bool { return true }

func (a *stepAdapter) Setup(ctx context.Context, taskInstanceID string, checkpoint task.Checkpoint) error {
	if a.attempts != nil {
		*a.attempts++
	}
	a.start = 0
	if checkpoint == nil {
		return nil
	}
	var cp stepCheckpoint
	if err := json.Unmarshal(checkpoint, &cp); err != nil {
		return task.ErrCheckpoint("step", err)
	}
	a.start = cp.Done
	return nil
}

func (a *stepAdapter) Run(ctx context.Context, input json.RawMessage) (<-chan task.ProgressReport, <-chan error) {
	return task.Produce(ctx, func(ctx context.Context, emit func(task.ProgressReport) bool) error {
		emitted := 0
		for i := a.start + 1; i <= a.total; i++ {
			if a.delay > 0 {
				select {
				case <-time.After(a.delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if a.processed != nil {
				*a.processed = append(*a.processed, i)
			}
			if !emit(task.ProgressReport{
				Sequence:   int64(i),
				StepName:   "step",
				Checkpoint: task.MarshalCheckpoint(stepCheckpoint{Done: i}),
			}) {
				return ctx.Err()
			}
			emitted++
			if a.failAfter > 0 && emitted == a.failAfter {
				if a.fatal {
					return types.NewFatal("poison step")
				}
				return types.NewTransient("simulated crash")
			}
		}
		a.done = true
		return nil
	})
}

func (a *stepAdapter) FinalOutput() (json.RawMessage, error) {
	if !a.done {
		return nil, task.ErrIncomplete("step")
	}
	return json.Marshal(map[string]int{"steps": a.total})
}

// lossyChannel 在开关拨下后丢弃所有上报，模拟 worker 与通道之间的
// 网络分区。读取路径不受影响。
type lossyChannel struct {
	inner liveness.Channel
	mu    sync.Mutex
	drop  bool
}

func (l *lossyChannel) Report(ctx context.Context, proof liveness.Proof) {
	l.mu.Lock()
	dropping := l.drop
	l.mu.Unlock()
	if dropping {
		return
	}
	l.inner.Report(ctx, proof)
}

func (l *lossyChannel) LastProof(ctx context.Context, taskInstanceID string) (*liveness.Proof, error) {
	return l.inner.LastProof(ctx, taskInstanceID)
}

func (l *lossyChannel) setDrop(drop bool) {
	l.mu.Lock()
	l.drop = drop
	l.mu.Unlock()
}

func fastOptions(id string, maxAttempts int) DispatchOptions {
	return DispatchOptions{
		TaskInstanceID:    id,
		HeartbeatInterval: 10 * time.Millisecond,
		HeartbeatTimeout:  100 * time.Millisecond,
		Retry: &retry.Policy{
			MaxAttempts:  maxAttempts,
			InitialDelay: 5 * time.Millisecond,
			MaxDelay:     20 * time.Millisecond,
			Multiplier:   2.0,
		},
	}
}

func newTestCoordinator(channel liveness.Channel, register func(*task.Registry)) *Coordinator {
	registry := task.NewRegistry(zap.NewNop())
	register(registry)
	return NewCoordinator(registry, channel, nil, zap.NewNop())
}

func TestDispatch_FirstAttemptSuccess(t *testing.T) {
	history := liveness.NewHistory(zap.NewNop())
	coord := newTestCoordinator(history, func(r *task.Registry) {
		r.MustRegister("test.step", func() task.Adapter { return &stepAdapter{total: 3} })
	})

	result, err := coord.Dispatch(context.Background(), "test.step", nil, fastOptions("d1", 3))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Attempts)
	assert.JSONEq(t, `{"steps":3}`, string(result.Output))
}

func TestDispatch_CrashResumeFromCheckpoint(t *testing.T) {
	history := liveness.NewHistory(zap.NewNop())

	var processed []int
	var attempts int
	first := true
	coord := newTestCoordinator(history, func(r *task.Registry) {
		r.MustRegister("test.step", func() task.Adapter {
			a := &stepAdapter{total: 5, processed: &processed, attempts: &attempts}
			if first {
				a.failAfter = 2
				first = false
			}
			return a
		})
	})

	result, err := coord.Dispatch(context.Background(), "test.step", nil, fastOptions("d2", 3))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, 2, attempts, "每个 Attempt 一个全新适配器实例")

	// 第二次从检查点续跑，1、2 不重复
	assert.Equal(t, []int{1, 2, 3, 4, 5}, processed)
}

func TestDispatch_FatalConsumesNoRetries(t *testing.T) {
	history := liveness.NewHistory(zap.NewNop())

	var attempts int
	coord := newTestCoordinator(history, func(r *task.Registry) {
		r.MustRegister("test.step", func() task.Adapter {
			return &stepAdapter{total: 5, failAfter: 1, fatal: true, attempts: &attempts}
		})
	})

	result, err := coord.Dispatch(context.Background(), "test.step", nil, fastOptions("d3", 5))
	require.Error(t, err)
	assert.Equal(t, 1, result.Attempts, "致命错误立即终止")
	assert.Equal(t, 1, attempts)
	assert.Equal(t, types.ErrFatalTask, types.GetErrorCode(err))
}

func TestDispatch_RetryBudgetExhausted(t *testing.T) {
	history := liveness.NewHistory(zap.NewNop())

	coord := newTestCoordinator(history, func(r *task.Registry) {
		r.MustRegister("test.step", func() task.Adapter {
			return &stepAdapter{total: 5, failAfter: 1}
		})
	})

	result, err := coord.Dispatch(context.Background(), "test.step", nil, fastOptions("d4", 3))
	require.Error(t, err)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, types.ErrRetryExhausted, types.GetErrorCode(err))
}

func TestDispatch_UnknownTaskType(t *testing.T) {
	history := liveness.NewHistory(zap.NewNop())
	coord := newTestCoordinator(history, func(r *task.Registry) {})

	_, err := coord.Dispatch(context.Background(), "test.missing", nil, fastOptions("d5", 3))
	require.Error(t, err)
	assert.Equal(t, types.ErrTaskNotFound, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err), "未注册类型不消耗重试预算")
}

func TestDispatch_LivenessTimeoutTriggersRedispatch(t *testing.T) {
	lossy := &lossyChannel{inner: liveness.NewHistory(zap.NewNop())}

	var attempts, built int
	coord := newTestCoordinator(lossy, func(r *task.Registry) {
		r.MustRegister("test.step", func() task.Adapter {
			built++
			if built == 1 {
				// 第一次 Attempt 中途拨下分区开关
				go func() {
					time.Sleep(60 * time.Millisecond)
					lossy.setDrop(true)
				}()
			}
			return &stepAdapter{total: 40, delay: 20 * time.Millisecond, attempts: &attempts}
		})
	})

	opts := fastOptions("d6", 2)
	opts.Retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		// 分区恢复，第二次 Attempt 正常上报
		lossy.setDrop(false)
	}

	result, err := coord.Dispatch(context.Background(), "test.step", nil, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Attempts, "失活超时按瞬时错误重派")
	assert.Equal(t, 2, attempts)
}

func TestDispatch_CountsLivenessProofs(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("taskflow", reg, nil)

	registry := task.NewRegistry(zap.NewNop())
	registry.MustRegister("test.step", func() task.Adapter { return &stepAdapter{total: 3} })
	coord := NewCoordinator(registry, liveness.NewHistory(zap.NewNop()), collector, zap.NewNop())

	_, err := coord.Dispatch(context.Background(), "test.step", nil, fastOptions("d7", 3))
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	var steps float64
	for _, mf := range families {
		if mf.GetName() != "taskflow_liveness_proofs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["kind"] != "step" {
				continue
			}
			assert.Equal(t, "test.step", labels["task_type"])
			steps += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(3), steps, "每条超步证明都计入指标")
}

func TestDispatch_RetryLogsCarryOrchestrationIDs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	history := liveness.NewHistory(zap.NewNop())
	first := true
	registry := task.NewRegistry(zap.NewNop())
	registry.MustRegister("test.step", func() task.Adapter {
		a := &stepAdapter{total: 3}
		if first {
			a.failAfter = 1
			first = false
		}
		return a
	})
	coord := NewCoordinator(registry, history, nil, zap.New(core))

	ctx := ctxkeys.WithPipelineID(context.Background(), "pi-1")
	_, err := coord.Dispatch(ctx, "test.step", nil, fastOptions("d8", 3))
	require.NoError(t, err)

	entries := logs.FilterMessage("redispatching task").All()
	require.NotEmpty(t, entries)
	assert.Equal(t, "pi-1", entries[0].ContextMap()["pipeline_id"])
}

func TestDispatchOptions_Validate(t *testing.T) {
	opts := DispatchOptions{
		TaskInstanceID:    "v1",
		HeartbeatInterval: 10 * time.Second,
		HeartbeatTimeout:  20 * time.Second,
	}
	err := opts.Validate()
	require.Error(t, err, "间隔必须不超过超时的三分之一")
	assert.Equal(t, types.ErrConfigInvalid, types.GetErrorCode(err))

	opts.HeartbeatInterval = 5 * time.Second
	opts.HeartbeatTimeout = 30 * time.Second
	assert.NoError(t, opts.Validate())
}
