package handler

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"aegisher/api/internal/model"
	"aegisher/api/internal/service"
)

// ReportHandler 安全报告处理器
type ReportHandler struct {
	reports *service.ReportService
	export  *service.ExportService
}

// NewReportHandler 创建安全报告处理器
func NewReportHandler(reports *service.ReportService, export *service.ExportService) *ReportHandler {
	return &ReportHandler{reports: reports, export: export}
}

// RegisterRoutes 注册路由
func (h *ReportHandler) RegisterRoutes(r *gin.RouterGroup) {
	reports := r.Group("/safety-reports")
	{
		reports.POST("", h.Submit)
		reports.POST("/submit", h.Submit)
		reports.GET("", h.List)
		reports.GET("/nearby", h.Nearby)
		reports.GET("/status", h.Status)
		reports.GET("/stats/summary", h.Stats)
		reports.GET("/export", h.Export)
		reports.GET("/:id", h.Get)
		reports.PATCH("/:id/upvote", h.Upvote)
	}
}

// Submit 提交安全报告
// @Summary Submit a safety report
// @Description Rate how safe a place feels. Numbers may be sent as strings.
// @Tags SafetyReports
// @Accept json
// @Produce json
// @Param body body model.SubmitReportRequest true "Report"
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /safety-reports [post]
func (h *ReportHandler) Submit(c *gin.Context) {
	var req model.SubmitReportRequest
	if !bindJSON(c, &req) {
		return
	}

	report, err := h.reports.Submit(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"message":  "Safety report submitted successfully",
		"reportId": report.ID,
		"report":   report,
	})
}

// List 获取全部安全报告
// @Summary List safety reports
// @Description All reports, newest first
// @Tags SafetyReports
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} ErrorResponse
// @Router /safety-reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	reports, err := h.reports.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(reports),
		"reports": reports,
	})
}

// Nearby 获取附近的安全报告
// @Summary Nearby safety reports
// @Description Up to 50 reports within radius meters, newest first
// @Tags SafetyReports
// @Produce json
// @Param latitude query number true "Latitude"
// @Param longitude query number true "Longitude"
// @Param radius query int false "Radius in meters" default(5000)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /safety-reports/nearby [get]
func (h *ReportHandler) Nearby(c *gin.Context) {
	coords, err := queryFloats(c, "latitude", "longitude")
	if err != nil {
		respondError(c, err)
		return
	}
	radius := queryInt(c, "radius", service.DefaultNearbyRadius)

	res, err := h.reports.Nearby(c.Request.Context(), coords[0], coords[1], float64(radius))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"count":               res.Count,
		"averageSafetyRating": res.AverageSafetyRating,
		"reports":             res.Reports,
	})
}

// Status 健康检查
// @Summary Safety reports status
// @Tags SafetyReports
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /safety-reports/status [get]
func (h *ReportHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "✅ Safety Reports API is live and healthy!",
	})
}

// Stats 平台统计
// @Summary Safety statistics
// @Description Total reports, average rating and counts per report type
// @Tags SafetyReports
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} ErrorResponse
// @Router /safety-reports/stats/summary [get]
func (h *ReportHandler) Stats(c *gin.Context) {
	stats, err := h.reports.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"statistics": stats,
	})
}

// Export 导出 Excel
// @Summary Export safety reports
// @Description Download every report as an xlsx workbook
// @Tags SafetyReports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} file
// @Failure 500 {object} ErrorResponse
// @Router /safety-reports/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.export.WriteReports(c.Request.Context(), &buf); err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+h.export.FileName(time.Now())+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// Get 获取单个报告
// @Summary Get a safety report
// @Tags SafetyReports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /safety-reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"report":  report,
	})
}

// Upvote 点赞
// @Summary Upvote a safety report
// @Tags SafetyReports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /safety-reports/{id}/upvote [patch]
func (h *ReportHandler) Upvote(c *gin.Context) {
	upvotes, err := h.reports.Upvote(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Report upvoted successfully",
		"upvotes": upvotes,
	})
}
