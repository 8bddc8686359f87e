package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"aegisher/api/internal/model"
	"aegisher/api/internal/service"
)

// SOSHandler SOS 处理器
type SOSHandler struct {
	sos *service.SOSService
}

// NewSOSHandler 创建 SOS 处理器
func NewSOSHandler(sos *service.SOSService) *SOSHandler {
	return &SOSHandler{sos: sos}
}

// RegisterRoutes 注册路由
func (h *SOSHandler) RegisterRoutes(r *gin.RouterGroup) {
	sos := r.Group("/sos")
	{
		sos.POST("/trigger", h.Trigger)
		sos.GET("/history/:userId", h.History)
		sos.PATCH("/:id/resolve", h.Resolve)
	}
}

// Trigger 触发 SOS
// @Summary Trigger an SOS alert
// @Description Notifies every trusted contact of the user. Without userId the alert is anonymous.
// @Tags SOS
// @Accept json
// @Produce json
// @Param body body model.TriggerSOSRequest true "Alert"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 429 {object} map[string]interface{}
// @Failure 500 {object} ErrorResponse
// @Router /sos/trigger [post]
func (h *SOSHandler) Trigger(c *gin.Context) {
	var req model.TriggerSOSRequest
	if !bindJSON(c, &req) {
		return
	}

	alert, err := h.sos.Trigger(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"message":    "SOS alert triggered successfully",
		"sosId":      alert.ID,
		"alertsSent": len(alert.AlertsSent),
		"timestamp":  alert.CreatedAt,
	})
}

// History 获取 SOS 历史
// @Summary SOS history
// @Description Up to 50 most recent alerts of a user, newest first
// @Tags SOS
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} ErrorResponse
// @Router /sos/history/{userId} [get]
func (h *SOSHandler) History(c *gin.Context) {
	alerts, err := h.sos.History(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(alerts),
		"alerts":  alerts,
	})
}

// Resolve 处理 SOS
// @Summary Resolve an SOS alert
// @Description Moves an active alert to resolved (default) or false_alarm
// @Tags SOS
// @Accept json
// @Produce json
// @Param id path string true "Alert ID"
// @Param body body model.ResolveSOSRequest false "Target status"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sos/{id}/resolve [patch]
func (h *SOSHandler) Resolve(c *gin.Context) {
	var req model.ResolveSOSRequest
	if !bindJSON(c, &req) {
		return
	}

	alert, err := h.sos.Resolve(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "SOS alert resolved",
		"alert":   alert,
	})
}
