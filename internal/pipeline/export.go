package pipeline

import (
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"conciliar/internal"
)

// ReportExportRows flattens an analyze report for the triage worksheet,
// ordered automatic, possible, none.
func ReportExportRows(report internal.AnalyzeReport) []internal.ReconExportRow {
	out := make([]internal.ReconExportRow, 0,
		len(report.AutomaticDetails)+len(report.PossibleDetails)+len(report.NoneDetails))
	for _, bucket := range [][]internal.MatchDetail{report.AutomaticDetails, report.PossibleDetails, report.NoneDetails} {
		for _, detail := range bucket {
			row := internal.ReconExportRow{
				Status:         detail.Status,
				ClientTaxID:    detail.Document.Key.ClientTaxID,
				DocumentNumber: detail.Document.Key.DocumentNumber,
				DocumentTotal:  detail.Document.TotalValue,
				DocumentDate:   detail.Document.EarliestDate,
				LineCount:      detail.Document.LineCount,
				Score:          detail.Score,
				SignalDocument: detail.Signals.Document,
				SignalAmount:   detail.Signals.Amount,
				SignalDate:     detail.Signals.Date,
				SignalName:     detail.Signals.Name,
			}
			if detail.Invoice != nil {
				inv := detail.Invoice
				row.InvoiceID = &inv.ID
				row.InvoiceCode = &inv.DocumentCode
				row.OrderCode = &inv.OrderCode
				row.InvoiceClient = &inv.ClientDisplayName
				row.InvoiceTotal = &inv.TotalValue
			}
			out = append(out, row)
		}
	}
	return out
}

func ExportReportToXLSX(report internal.AnalyzeReport, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"status", "client_tax_id", "document_number", "document_total", "document_date", "line_count",
		"invoice_id", "invoice_code", "order_code", "invoice_client", "invoice_total",
		"score", "signal_document", "signal_amount", "signal_date", "signal_name",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range ReportExportRows(report) {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, string(row.Status))
		set(2, row.ClientTaxID)
		set(3, row.DocumentNumber)
		set(4, decimalValue(row.DocumentTotal))
		set(5, row.DocumentDate.Format("2006-01-02"))
		set(6, row.LineCount)
		set(7, derefInt(row.InvoiceID))
		set(8, derefString(row.InvoiceCode))
		set(9, derefString(row.OrderCode))
		set(10, derefString(row.InvoiceClient))
		set(11, derefDecimal(row.InvoiceTotal))
		set(12, row.Score)
		set(13, row.SignalDocument)
		set(14, row.SignalAmount)
		set(15, row.SignalDate)
		set(16, row.SignalName)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func decimalValue(v decimal.Decimal) float64 {
	f, _ := v.Float64()
	return f
}

func derefDecimal(v *decimal.Decimal) any {
	if v == nil {
		return ""
	}
	return decimalValue(*v)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}
