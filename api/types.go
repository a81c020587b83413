package api

import (
	"github.com/BaSui01/taskflow/liveness"
	"github.com/BaSui01/taskflow/pipeline"
)

// =============================================================================
// 流水线启动类型
// =============================================================================

// StartOrderResponse 表示订单流水线已受理。
// @Description 订单受理响应结构
type StartOrderResponse struct {
	// 实例 ID，由订单号派生，审批与查询都用它寻址
	InstanceID string `json:"instance_id" example:"order-A1001"`
	// 流水线名称
	Pipeline string `json:"pipeline" example:"order_fulfillment"`
}

// =============================================================================
// 审批决策类型
// =============================================================================

// DecisionRequest 表示一次人工审批决策。
// @Description 审批决策请求结构
type DecisionRequest struct {
	// 决策反馈，驳回时转发给下一阶段
	Feedback string `json:"feedback,omitempty" example:"use FEDEX instead"`
}

// DecisionResponse 表示决策已送达等待中的实例。
// @Description 审批决策响应结构
type DecisionResponse struct {
	// 实例 ID
	InstanceID string `json:"instance_id" example:"order-A1001"`
	// 是否批准
	Approved bool `json:"approved" example:"true"`
}

// =============================================================================
// 实例查询类型
// =============================================================================

// InstanceList 表示实例归档查询结果。
// @Description 实例列表响应结构
type InstanceList struct {
	// 实例列表，按更新时间倒序
	Instances []*pipeline.Instance `json:"instances"`
	// 实例数量
	Count int `json:"count" example:"3"`
}

// =============================================================================
// 活性观测类型
// =============================================================================

// LivenessReport 表示任务实例的活性快照。
// @Description 活性观测响应结构
type LivenessReport struct {
	// 任务实例 ID（实例 ID + ":" + 阶段名）
	TaskInstanceID string `json:"task_instance_id" example:"order-A1001:pack_order_items"`
	// 最近一次活性证明，无历史时为 null
	LastProof *liveness.Proof `json:"last_proof"`
	// 最近的证明轨迹，新的在前
	Trace []liveness.Proof `json:"trace,omitempty"`
}

// =============================================================================
// 通用类型
// =============================================================================

// HealthResponse 表示服务健康状态。
// @Description 健康检查响应结构
type HealthResponse struct {
	// 状态
	Status string `json:"status" example:"ok"`
}

// VersionResponse 表示构建版本信息。
// @Description 版本信息响应结构
type VersionResponse struct {
	// 版本号
	Version string `json:"version" example:"1.0.0"`
	// 构建时间
	BuildTime string `json:"build_time"`
	// Git 提交
	GitCommit string `json:"git_commit"`
}

// ErrorResponse 表示请求失败。
// @Description 错误响应结构
type ErrorResponse struct {
	// 错误信息
	Error string `json:"error" example:"order_id is required"`
}
