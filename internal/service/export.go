package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"aegisher/api/internal/apperr"
	"aegisher/api/internal/store"
)

const reportSheet = "Safety Reports"

var reportColumns = []interface{}{
	"ID", "Created At", "Latitude", "Longitude", "Address", "Place Name",
	"Safety Rating", "Report Type", "Time Of Day", "Comment", "Verified", "Upvotes",
}

// ExportService 报表导出服务
type ExportService struct {
	store *store.Store
}

// NewExportService 创建导出服务
func NewExportService(s *store.Store) *ExportService {
	return &ExportService{store: s}
}

// FileName returns the download name for an export made at t
func (s *ExportService) FileName(t time.Time) string {
	return fmt.Sprintf("safety_reports_%s.xlsx", t.UTC().Format("20060102"))
}

// WriteReports writes every safety report, newest first, as an xlsx workbook
func (s *ExportService) WriteReports(ctx context.Context, w io.Writer) error {
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return apperr.Internal(err, "Failed to export safety reports")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), reportSheet); err != nil {
		return apperr.Internal(err, "Failed to export safety reports")
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return apperr.Internal(err, "Failed to export safety reports")
	}
	if err := f.SetSheetRow(reportSheet, "A1", &reportColumns); err != nil {
		return apperr.Internal(err, "Failed to export safety reports")
	}
	if err := f.SetRowStyle(reportSheet, 1, 1, header); err != nil {
		return apperr.Internal(err, "Failed to export safety reports")
	}

	for i, r := range reports {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return apperr.Internal(err, "Failed to export safety reports")
		}
		row := []interface{}{
			r.ID,
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.Location.Latitude,
			r.Location.Longitude,
			r.Location.Address,
			r.Location.PlaceName,
			r.SafetyRating,
			string(r.ReportType),
			string(r.TimeOfDay),
			r.Comment,
			r.Verified,
			r.Upvotes,
		}
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return apperr.Internal(err, "Failed to export safety reports")
		}
	}

	// 表头冻结并设置列宽
	if err := f.SetColWidth(reportSheet, "A", "L", 18); err != nil {
		return apperr.Internal(err, "Failed to export safety reports")
	}
	if err := f.SetPanes(reportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return apperr.Internal(err, "Failed to export safety reports")
	}

	if err := f.Write(w); err != nil {
		return apperr.Internal(err, "Failed to export safety reports")
	}
	return nil
}
