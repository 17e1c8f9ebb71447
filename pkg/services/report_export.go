package services

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"bms-chat-api/pkg/mockdb"
	"bms-chat-api/pkg/models"

	"github.com/xuri/excelize/v2"
)

const reportSheet = "Report"

// 表の開始行（1行目タイトル、2行目サブタイトル、3行目空行）
const tableStartRow = 4

var (
	InventoryReportHeaders = []string{"Item ID", "Name", "Location", "Qty", "Status"}
	SalesReportHeaders     = []string{"Item ID", "Name", "Month", "Forecast", "Actual", "Accuracy", "Trend"}
)

// ReportExporter はレポートをExcelファイルとして書き出します。
type ReportExporter struct {
	store *mockdb.Store
}

// NewReportExporter は新しいReportExporterを生成します。
func NewReportExporter(store *mockdb.Store) *ReportExporter {
	return &ReportExporter{store: store}
}

// WriteReport はチャットから抽出したレポートを書き出します。
func (e *ReportExporter) WriteReport(w io.Writer, report models.ReportData) error {
	title := report.Title
	if title == "" {
		title = defaultReportTitle
	}
	rows := make([][]interface{}, 0, len(report.Rows))
	for _, r := range report.Rows {
		row := make([]interface{}, len(r))
		for i, cell := range r {
			row[i] = cell
		}
		rows = append(rows, row)
	}
	return writeWorkbook(w, title, StripSentinel(report.Summary), report.Headers, rows)
}

// WriteInventoryReport は拠点別在庫レポートを書き出します。
func (e *ReportExporter) WriteInventoryReport(w io.Writer, now time.Time) error {
	records := e.store.AllInventory()
	rows := make([][]interface{}, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []interface{}{rec.ItemID, e.itemName(rec.ItemID), rec.Location, rec.Quantity, string(rec.Status)})
	}
	return writeWorkbook(w, "BMS Inventory Report", generatedOn(now), InventoryReportHeaders, rows)
}

// WriteSalesReport は販売予測レポートを書き出します。
func (e *ReportExporter) WriteSalesReport(w io.Writer, now time.Time) error {
	forecasts := e.store.AllForecasts()
	rows := make([][]interface{}, 0, len(forecasts))
	for _, f := range forecasts {
		rows = append(rows, []interface{}{
			f.ItemID,
			e.itemName(f.ItemID),
			f.Month,
			f.ForecastQty,
			strconv.FormatFloat(f.ActualQty, 'f', 0, 64),
			fmt.Sprintf("%d%%", f.Accuracy),
			string(f.Trend),
		})
	}
	return writeWorkbook(w, "BMS Sales Forecast Report", generatedOn(now), SalesReportHeaders, rows)
}

func (e *ReportExporter) itemName(id string) string {
	if item, ok := e.store.Item(id); ok {
		return item.Name
	}
	return "Unknown"
}

func generatedOn(now time.Time) string {
	return "Generated on: " + now.Format("2006-01-02")
}

func writeWorkbook(w io.Writer, title, subtitle string, headers []string, rows [][]interface{}) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), reportSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := f.SetCellValue(reportSheet, "A1", title); err != nil {
		return fmt.Errorf("failed to write title: %w", err)
	}
	if subtitle != "" {
		if err := f.SetCellValue(reportSheet, "A2", subtitle); err != nil {
			return fmt.Errorf("failed to write subtitle: %w", err)
		}
	}

	titleStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16}})
	if err != nil {
		return fmt.Errorf("failed to create title style: %w", err)
	}
	if err := f.SetCellStyle(reportSheet, "A1", "A1", titleStyle); err != nil {
		return fmt.Errorf("failed to apply title style: %w", err)
	}

	if len(headers) > 0 {
		header := make([]interface{}, len(headers))
		for i, h := range headers {
			header[i] = h
		}
		start, _ := excelize.CoordinatesToCellName(1, tableStartRow)
		if err := f.SetSheetRow(reportSheet, start, &header); err != nil {
			return fmt.Errorf("failed to write header row: %w", err)
		}

		headStyle, err := f.NewStyle(&excelize.Style{
			Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
			Fill: excelize.Fill{Type: "pattern", Color: []string{"B91C1C"}, Pattern: 1},
		})
		if err != nil {
			return fmt.Errorf("failed to create header style: %w", err)
		}
		end, _ := excelize.CoordinatesToCellName(len(headers), tableStartRow)
		if err := f.SetCellStyle(reportSheet, start, end, headStyle); err != nil {
			return fmt.Errorf("failed to apply header style: %w", err)
		}

		lastCol, _ := excelize.ColumnNumberToName(len(headers))
		if err := f.SetColWidth(reportSheet, "A", lastCol, 18); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, tableStartRow+1+i)
		if err := f.SetSheetRow(reportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
