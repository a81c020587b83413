package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/coordinator"
	"github.com/BaSui01/taskflow/internal/ctxkeys"
	"github.com/BaSui01/taskflow/internal/metrics"
	"github.com/BaSui01/taskflow/types"
)

// Orchestrator 顺序编排器。
// 它是唯一解读错误类别并决定重试还是终态的地方；Runner 与 Adapter 只
// 负责原样传播错误。
type Orchestrator struct {
	coord   *coordinator.Coordinator
	signals *coordinator.SignalHub
	store   InstanceStore
	metrics *metrics.Collector
	logger  *zap.Logger
	// faultFn 故障注入钩子，仅用于故障注入测试，正常输入绝不触发
	faultFn func(stage string) error
}

// Option 配置编排器。
type Option func(*Orchestrator)

// WithStore 设置实例归档存储。
func WithStore(store InstanceStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithMetrics 设置指标收集器。
func WithMetrics(collector *metrics.Collector) Option {
	return func(o *Orchestrator) { o.metrics = collector }
}

// WithFaultInjector 注入内部故障钩子。每次状态迁移前调用，返回非 nil
// 错误时实例直接进入 Failed。只在故障注入测试中使用。
func WithFaultInjector(fn func(stage string) error) Option {
	return func(o *Orchestrator) { o.faultFn = fn }
}

// NewOrchestrator 创建编排器。
func NewOrchestrator(
	coord *coordinator.Coordinator,
	signals *coordinator.SignalHub,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		coord:   coord,
		signals: signals,
		store:   NewMemoryInstanceStore(),
		logger:  logger.With(zap.String("component", "orchestrator")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run 驱动一次流水线实例直至终态。
//
// 终态（Succeeded / Failed / Expired）编码在返回的实例中；返回的 error
// 只表示基础设施问题（定义非法、context 取消），不表示业务失败。
func (o *Orchestrator) Run(ctx context.Context, def Definition, input json.RawMessage) (*Instance, error) {
	return o.RunAs(ctx, def, uuid.NewString(), input)
}

// RunAs 以调用方指定的实例 ID 驱动流水线。ID 是审批信号与阶段任务
// 实例标识的派生根，外部调用方（如按订单号寻址的 API）需要在实例
// 运行期间就持有它。
func (o *Orchestrator) RunAs(ctx context.Context, def Definition, instanceID string, input json.RawMessage) (*Instance, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	now := time.Now()
	inst := &Instance{
		ID:        instanceID,
		Pipeline:  def.Name,
		State:     StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ctx = ctxkeys.WithPipelineID(ctx, inst.ID)

	o.logger.Info("pipeline started",
		zap.String("instance_id", inst.ID),
		zap.String("pipeline", def.Name),
		zap.Int("stages", len(def.Stages)),
	)

	feedback := ""
	for _, stage := range def.Stages {
		stageInput := input
		if feedback != "" {
			// 驳回反馈转发给下一阶段的输入
			stageInput = injectFeedback(input, feedback)
			feedback = ""
		}

		output, ok := o.dispatchStage(ctx, inst, stage, stageInput)
		if !ok {
			o.archive(ctx, inst)
			return inst, ctx.Err()
		}

		if stage.RequiresApproval {
			decision, ok := o.awaitDecision(ctx, inst, stage, def.SignalTimeout)
			if !ok {
				o.archive(ctx, inst)
				return inst, ctx.Err()
			}
			if !decision.Approved {
				feedback = decision.Feedback
			}
		}

		inst.Result = output
	}

	o.transition(inst, StateSucceeded, "", "all stages completed")
	o.metrics.ObservePipelineTerminal(inst.Pipeline, string(StateSucceeded))
	o.archive(ctx, inst)

	o.logger.Info("pipeline succeeded", zap.String("instance_id", inst.ID))
	return inst, nil
}

// dispatchStage 派发一个阶段。返回 false 表示实例已进入终态。
func (o *Orchestrator) dispatchStage(
	ctx context.Context,
	inst *Instance,
	stage Stage,
	input json.RawMessage,
) (json.RawMessage, bool) {
	if !o.transition(inst, StateDispatching, stage.Name, "") {
		return nil, false
	}
	// 中间态也落档，运行期即可观测
	o.archive(ctx, inst)

	interval, timeout := stage.heartbeatOptions()
	policy := stage.Retry
	if policy != nil {
		cp := *policy
		prev := cp.OnRetry
		cp.OnRetry = func(attempt int, err error, delay time.Duration) {
			o.metrics.ObserveStageRetry(inst.Pipeline, stage.Name)
			if prev != nil {
				prev(attempt, err, delay)
			}
		}
		policy = &cp
	}

	started := time.Now()
	result, err := o.coord.Dispatch(ctx, stage.TaskType, input, coordinator.DispatchOptions{
		TaskInstanceID:    inst.TaskInstanceID(stage.Name),
		HeartbeatInterval: interval,
		HeartbeatTimeout:  timeout,
		Retry:             policy,
	})

	sr := StageResult{
		Name:       stage.Name,
		TaskType:   stage.TaskType,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if result != nil {
		sr.Attempts = result.Attempts
		sr.Output = result.Output
	}
	if err != nil {
		sr.Error = err.Error()
	}
	inst.Stages = append(inst.Stages, sr)

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, false
		}
		o.fail(inst, stage.Name, err)
		return nil, false
	}
	return result.Output, true
}

// awaitDecision 挂起等待人工决策。返回 false 表示实例已进入终态。
// 信号与超时是单发竞争，败者的等待被取消，不留陈旧定时器。
func (o *Orchestrator) awaitDecision(
	ctx context.Context,
	inst *Instance,
	stage Stage,
	timeout time.Duration,
) (*coordinator.Decision, bool) {
	if !o.transition(inst, StateAwaitingSignal, stage.Name, "") {
		return nil, false
	}
	o.archive(ctx, inst)

	decision, err := o.signals.Wait(ctx, inst.ID, timeout)
	if err != nil {
		if types.GetErrorCode(err) == types.ErrSignalTimeout {
			inst.Decision = &DecisionRecord{
				Outcome: DecisionExpired,
				Stage:   stage.Name,
				At:      time.Now(),
			}
			o.transition(inst, StateExpired, stage.Name, "no decision within window")
			o.metrics.ObservePipelineTerminal(inst.Pipeline, string(StateExpired))
			o.metrics.ObserveSignalWait(inst.Pipeline, string(DecisionExpired))
			o.logger.Warn("pipeline expired",
				zap.String("instance_id", inst.ID),
				zap.String("stage", stage.Name),
			)
			return nil, false
		}
		// context 取消等基础设施错误
		return nil, false
	}

	outcome := DecisionApproved
	if !decision.Approved {
		outcome = DecisionRejected
	}
	inst.Decision = &DecisionRecord{
		Outcome:  outcome,
		Feedback: decision.Feedback,
		Stage:    stage.Name,
		At:       decision.At,
	}
	o.metrics.ObserveSignalWait(inst.Pipeline, string(outcome))

	o.logger.Info("decision received",
		zap.String("instance_id", inst.ID),
		zap.String("stage", stage.Name),
		zap.String("outcome", string(outcome)),
	)
	return decision, true
}

// transition 执行状态迁移。迁移前运行自检钩子，钩子报错时实例进入
// Failed 并返回 false。
func (o *Orchestrator) transition(inst *Instance, to State, stage, note string) bool {
	if o.faultFn != nil {
		if err := o.faultFn(stage); err != nil {
			fault := types.NewError(types.ErrInternalFault, "internal self-check failed").
				WithCause(err).
				WithStage(stage)
			o.fail(inst, stage, fault)
			return false
		}
	}

	inst.Transitions = append(inst.Transitions, Transition{
		From:  inst.State,
		To:    to,
		Stage: stage,
		Note:  note,
		At:    time.Now(),
	})
	inst.State = to
	inst.UpdatedAt = time.Now()
	return true
}

// fail 将实例置为 Failed，记录肇事阶段与错误类别。
func (o *Orchestrator) fail(inst *Instance, stage string, err error) {
	inst.Transitions = append(inst.Transitions, Transition{
		From:  inst.State,
		To:    StateFailed,
		Stage: stage,
		Note:  err.Error(),
		At:    time.Now(),
	})
	inst.State = StateFailed
	inst.FailedStage = stage
	inst.ErrorCode = types.GetErrorCode(err)
	inst.ErrorMessage = err.Error()
	inst.UpdatedAt = time.Now()

	o.metrics.ObservePipelineTerminal(inst.Pipeline, string(StateFailed))
	o.logger.Error("pipeline failed",
		zap.String("instance_id", inst.ID),
		zap.String("stage", stage),
		zap.String("error_code", string(inst.ErrorCode)),
		zap.Error(err),
	)
}

// archive 归档终态实例。归档失败只记录日志，不影响终态。
func (o *Orchestrator) archive(ctx context.Context, inst *Instance) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(ctx, inst); err != nil {
		o.logger.Error("failed to archive instance",
			zap.String("instance_id", inst.ID),
			zap.Error(err),
		)
	}
}

// injectFeedback 将驳回反馈并入阶段输入。
// 输入为 JSON 对象时设置 feedback 字段，否则包一层信封。
func injectFeedback(input json.RawMessage, feedback string) json.RawMessage {
	var obj map[string]any
	if err := json.Unmarshal(input, &obj); err != nil || obj == nil {
		wrapped, _ := json.Marshal(map[string]any{
			"payload":  input,
			"feedback": feedback,
		})
		return wrapped
	}
	obj["feedback"] = feedback
	merged, _ := json.Marshal(obj)
	return merged
}
