package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/taskflow/api"
	"github.com/BaSui01/taskflow/liveness"
)

// =============================================================================
// 💓 活性观测 Handler
// =============================================================================

// LivenessHandler 任务活性观测处理器
type LivenessHandler struct {
	channel  liveness.Channel
	traceLen int
	logger   *zap.Logger
}

// NewLivenessHandler 创建活性观测处理器
func NewLivenessHandler(channel liveness.Channel, logger *zap.Logger) *LivenessHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LivenessHandler{
		channel:  channel,
		traceLen: 64,
		logger:   logger,
	}
}

// HandleLiveness 输出任务实例的最近证明与轨迹
// @Summary 任务活性快照
// @Produce json
// @Success 200 {object} api.LivenessReport
// @Failure 500 {object} api.ErrorResponse
// @Router /api/v1/tasks/{id}/liveness [get]
func (h *LivenessHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	taskInstanceID := r.PathValue("id")

	last, err := h.channel.LastProof(r.Context(), taskInstanceID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// 轨迹只在通道实现支持时提供
	var trace []liveness.Proof
	switch ch := h.channel.(type) {
	case *liveness.History:
		trace = ch.Proofs(taskInstanceID)
	case *liveness.RedisChannel:
		trace, err = ch.Trace(r.Context(), taskInstanceID, int64(h.traceLen))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	WriteJSON(w, http.StatusOK, api.LivenessReport{
		TaskInstanceID: taskInstanceID,
		LastProof:      last,
		Trace:          trace,
	})
}
