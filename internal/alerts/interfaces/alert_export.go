package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	alerts "oxywatch-cloud/internal/alerts/domain"
)

// ExportRequest describes an alert history export.
type ExportRequest struct {
	TankID string
	Status string
	From   time.Time
	To     time.Time
}

// BuildAlertPDF renders an alert history report as PDF.
func BuildAlertPDF(req ExportRequest, list []alerts.Alert) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Oxygen Tank Alert Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Tank: %s", req.TankID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Window: %s .. %s", req.From.Format(time.RFC3339), req.To.Format(time.RFC3339)))
	pdf.Ln(5)
	if req.Status != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Status Filter: %s", req.Status))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("Alerts: %d", len(list)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(35, 6, "Created", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Condition", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Severity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Level", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Acknowledged By", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Resolved By", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Escalations", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, alert := range list {
		pdf.CellFormat(35, 6, alert.CreatedAt.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, string(alert.Condition), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, string(alert.Severity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(28, 6, string(alert.Status), "1", 0, "C", false, 0, "")
		pdf.CellFormat(20, 6, fillPercentLabel(alert), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, alert.AcknowledgedBy, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, alert.ResolvedBy, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", alert.EscalationLevel), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildAlertXLSX renders an alert history report as XLSX with a summary
// sheet, an alerts sheet, and an action history sheet.
func BuildAlertXLSX(req ExportRequest, list []alerts.Alert) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	alertsSheet := "alerts"
	actionsSheet := "actions"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(alertsSheet)
	f.NewSheet(actionsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Oxygen Tank Alert Report")
	_ = f.SetCellValue(summarySheet, "A3", "Tank")
	_ = f.SetCellValue(summarySheet, "B3", req.TankID)
	_ = f.SetCellValue(summarySheet, "A4", "From")
	_ = f.SetCellValue(summarySheet, "B4", req.From.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "To")
	_ = f.SetCellValue(summarySheet, "B5", req.To.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Status Filter")
	_ = f.SetCellValue(summarySheet, "B6", req.Status)
	_ = f.SetCellValue(summarySheet, "A7", "Alerts")
	_ = f.SetCellValue(summarySheet, "B7", len(list))

	headers := []string{"ID", "Created", "Condition", "Category", "Severity", "Status", "Message", "Fill %", "Acknowledged By", "Resolved By", "Escalation Level", "Notifications"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(alertsSheet, cell, header)
	}
	for i, alert := range list {
		row := i + 2
		values := []any{
			alert.ID,
			alert.CreatedAt.Format(time.RFC3339),
			string(alert.Condition),
			string(alert.Category),
			string(alert.Severity),
			string(alert.Status),
			alert.Message,
			fillPercentLabel(alert),
			alert.AcknowledgedBy,
			alert.ResolvedBy,
			alert.EscalationLevel,
			alert.NotificationCount,
		}
		for j, value := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			_ = f.SetCellValue(alertsSheet, cell, value)
		}
	}

	_ = f.SetCellValue(actionsSheet, "A1", "Alert ID")
	_ = f.SetCellValue(actionsSheet, "B1", "Action")
	_ = f.SetCellValue(actionsSheet, "C1", "Actor")
	_ = f.SetCellValue(actionsSheet, "D1", "Detail")
	_ = f.SetCellValue(actionsSheet, "E1", "At")
	row := 2
	for _, alert := range list {
		for _, entry := range alert.Actions {
			_ = f.SetCellValue(actionsSheet, fmt.Sprintf("A%d", row), alert.ID)
			_ = f.SetCellValue(actionsSheet, fmt.Sprintf("B%d", row), entry.Action)
			_ = f.SetCellValue(actionsSheet, fmt.Sprintf("C%d", row), entry.Actor)
			_ = f.SetCellValue(actionsSheet, fmt.Sprintf("D%d", row), entry.Detail)
			_ = f.SetCellValue(actionsSheet, fmt.Sprintf("E%d", row), entry.At.Format(time.RFC3339))
			row++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fillPercentLabel(alert alerts.Alert) string {
	if alert.SensorData == nil {
		return ""
	}
	return fmt.Sprintf("%.1f", alert.SensorData.FillPercent)
}
