package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"aegisher/api/internal/model"
	"aegisher/api/internal/service"
)

// RouteHandler 路线处理器
type RouteHandler struct {
	routes *service.RouteService
}

func NewRouteHandler(routes *service.RouteService) *RouteHandler {
	return &RouteHandler{routes: routes}
}

// RegisterRoutes 注册路由
func (h *RouteHandler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/routes")
	{
		g.POST("/compare", h.Compare)
		g.GET("/safe", h.Safe)
	}
}

// Compare 对比安全路线与普通路线
// @Summary Compare safe and normal routes
// @Tags Routes
// @Accept json
// @Produce json
// @Param body body model.CompareRoutesRequest true "Endpoints"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /routes/compare [post]
func (h *RouteHandler) Compare(c *gin.Context) {
	var req model.CompareRoutesRequest
	if !bindJSON(c, &req) {
		return
	}
	cmp, err := h.routes.Compare(&req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"recommendation": cmp.Recommendation,
		"message":        cmp.Message,
		"routes":         cmp.Routes,
		"timeDifference": cmp.TimeDifference,
		"dangerZones":    cmp.DangerZones,
	})
}

// Safe 获取安全路线
// @Summary Safe route only
// @Tags Routes
// @Produce json
// @Param startLat query number true "Start latitude"
// @Param startLng query number true "Start longitude"
// @Param endLat query number true "End latitude"
// @Param endLng query number true "End longitude"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /routes/safe [get]
func (h *RouteHandler) Safe(c *gin.Context) {
	p, err := queryFloats(c, "startLat", "startLng", "endLat", "endLng")
	if err != nil {
		respondError(c, err)
		return
	}
	route, err := h.routes.Safe(p[0], p[1], p[2], p[3])
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "route": route})
}
