package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"aegisher/api/internal/model"
	"aegisher/api/internal/service"
)

// PredictionHandler 危险预测处理器
type PredictionHandler struct {
	predictions *service.PredictionService
}

func NewPredictionHandler(predictions *service.PredictionService) *PredictionHandler {
	return &PredictionHandler{predictions: predictions}
}

// RegisterRoutes 注册路由
func (h *PredictionHandler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/danger-prediction")
	{
		g.POST("/analyze", h.Analyze)
		g.GET("/heatmap", h.Heatmap)
	}
}

// Analyze 危险等级分析
// @Summary Predict the danger level at a point
// @Description Scores nearby reports and recent SOS alerts. timeOfDay defaults to evening.
// @Tags DangerPrediction
// @Accept json
// @Produce json
// @Param body body model.AnalyzeRequest true "Point"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /danger-prediction/analyze [post]
func (h *PredictionHandler) Analyze(c *gin.Context) {
	var req model.AnalyzeRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.predictions.Analyze(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"location":        res.Location,
		"timestamp":       res.Timestamp,
		"prediction":      res.Prediction,
		"aiModel":         res.AIModel,
		"confidenceLevel": res.ConfidenceLevel,
	})
}

// Heatmap 危险热力图
// @Summary Danger heatmap
// @Description Scores an 11x11 grid with 0.01 degree spacing around the center
// @Tags DangerPrediction
// @Produce json
// @Param centerLat query number true "Center latitude"
// @Param centerLng query number true "Center longitude"
// @Param radius query int false "Radius in meters" default(10000)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /danger-prediction/heatmap [get]
func (h *PredictionHandler) Heatmap(c *gin.Context) {
	center, err := queryFloats(c, "centerLat", "centerLng")
	if err != nil {
		respondError(c, err)
		return
	}
	radius := queryInt(c, "radius", service.DefaultHeatmapRadius)

	res, err := h.predictions.Heatmap(c.Request.Context(), center[0], center[1], radius)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"gridSize":    res.GridSize,
		"center":      res.Center,
		"radius":      res.Radius,
		"heatmapData": res.HeatmapData,
	})
}
