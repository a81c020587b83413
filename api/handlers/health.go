package handlers

import (
	"net/http"

	"github.com/BaSui01/taskflow/api"
)

// =============================================================================
// 🩺 健康与版本 Handler
// =============================================================================

// HealthHandler 健康检查与版本信息处理器
type HealthHandler struct {
	version   string
	buildTime string
	gitCommit string
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(version, buildTime, gitCommit string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		buildTime: buildTime,
		gitCommit: gitCommit,
	}
}

// HandleHealth 处理健康检查请求
// @Summary 健康检查
// @Produce json
// @Success 200 {object} api.HealthResponse
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

// HandleVersion 处理版本信息请求
// @Summary 版本信息
// @Produce json
// @Success 200 {object} api.VersionResponse
// @Router /version [get]
func (h *HealthHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, api.VersionResponse{
		Version:   h.version,
		BuildTime: h.buildTime,
		GitCommit: h.gitCommit,
	})
}
