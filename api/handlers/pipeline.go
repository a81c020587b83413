package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/api"
	"github.com/BaSui01/taskflow/coordinator"
	"github.com/BaSui01/taskflow/fulfillment"
	"github.com/BaSui01/taskflow/pipeline"
)

// =============================================================================
// 🚚 流水线 Handler
// =============================================================================

// OrderStarter 受理订单并在后台驱动流水线。
// 返回的实例 ID 由订单号派生，调用方立即可用它寻址审批与查询。
type OrderStarter interface {
	StartOrder(order fulfillment.Order) (instanceID, pipelineName string, err error)
}

// PipelineHandler 流水线接口处理器
type PipelineHandler struct {
	starter OrderStarter
	store   pipeline.InstanceStore
	signals *coordinator.SignalHub
	logger  *zap.Logger
}

// NewPipelineHandler 创建流水线处理器
func NewPipelineHandler(
	starter OrderStarter,
	store pipeline.InstanceStore,
	signals *coordinator.SignalHub,
	logger *zap.Logger,
) *PipelineHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PipelineHandler{
		starter: starter,
		store:   store,
		signals: signals,
		logger:  logger,
	}
}

// HandleStartOrder 启动一条订单履行流水线
// @Summary 提交订单
// @Accept json
// @Produce json
// @Param request body fulfillment.Order true "订单"
// @Success 202 {object} api.StartOrderResponse
// @Failure 400 {object} api.ErrorResponse
// @Router /api/v1/orders [post]
func (h *PipelineHandler) HandleStartOrder(w http.ResponseWriter, r *http.Request) {
	var order fulfillment.Order
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid order: %v", err))
		return
	}
	if order.OrderID == "" {
		WriteError(w, http.StatusBadRequest, "order_id is required")
		return
	}

	instanceID, pipelineName, err := h.starter.StartOrder(order)
	if err != nil {
		WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, api.StartOrderResponse{
		InstanceID: instanceID,
		Pipeline:   pipelineName,
	})
}

// HandleDecision 接收审批信号并转交信号枢纽。
// 无等待者时信号被暂存，实例到达审批门后立即消费。
// @Summary 审批决策
// @Accept json
// @Produce json
// @Param request body api.DecisionRequest false "决策反馈"
// @Success 200 {object} api.DecisionResponse
// @Failure 409 {object} api.ErrorResponse
// @Router /api/v1/instances/{id}/approve [post]
func (h *PipelineHandler) HandleDecision(approved bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instanceID := r.PathValue("id")

		var body api.DecisionRequest
		if r.Body != nil {
			// 空 body 合法，审批通过通常不带反馈
			_ = json.NewDecoder(r.Body).Decode(&body)
		}

		err := h.signals.Send(instanceID, coordinator.Decision{
			Approved: approved,
			Feedback: body.Feedback,
			At:       time.Now(),
		})
		if err != nil {
			WriteError(w, http.StatusConflict, err.Error())
			return
		}

		h.logger.Info("decision delivered",
			zap.String("instance_id", instanceID),
			zap.Bool("approved", approved),
		)
		WriteJSON(w, http.StatusOK, api.DecisionResponse{
			InstanceID: instanceID,
			Approved:   approved,
		})
	}
}

// HandleGetInstance 查询单个实例
// @Summary 查询实例
// @Produce json
// @Success 200 {object} pipeline.Instance
// @Failure 404 {object} api.ErrorResponse
// @Router /api/v1/instances/{id} [get]
func (h *PipelineHandler) HandleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := h.store.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, inst)
}

// HandleListInstances 列出归档实例
// @Summary 实例列表
// @Produce json
// @Param pipeline query string false "按流水线名过滤"
// @Param limit query int false "最大返回条数"
// @Success 200 {object} api.InstanceList
// @Router /api/v1/instances [get]
func (h *PipelineHandler) HandleListInstances(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	insts, err := h.store.List(r.Context(), r.URL.Query().Get("pipeline"), limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, api.InstanceList{
		Instances: insts,
		Count:     len(insts),
	})
}
