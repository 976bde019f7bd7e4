package pipeline

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"conciliar/internal"
)

func sampleReport() internal.AnalyzeReport {
	inv := internal.InvoiceRecord{
		ID: 1, ClientDisplayName: "ACME SAS", DocumentCode: "FV-1", OrderCode: "PED-1",
		InvoiceDate: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		TotalValue:  decimal.NewFromInt(1000000),
	}
	doc := internal.PurchaseDocument{
		Key:          internal.DocumentKey{ClientTaxID: "900111", DocumentNumber: "FE-100"},
		TotalValue:   decimal.NewFromInt(1000000),
		EarliestDate: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		LineCount:    2,
	}
	orphan := internal.PurchaseDocument{
		Key:          internal.DocumentKey{ClientTaxID: "800222", DocumentNumber: "FE-200"},
		TotalValue:   decimal.NewFromInt(5000),
		EarliestDate: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		LineCount:    1,
	}
	return internal.AnalyzeReport{
		AutomaticCount: 1,
		NoneCount:      1,
		AutomaticDetails: []internal.MatchDetail{{
			Document: doc, Invoice: &inv, Score: 1.0,
			Signals: internal.SignalBreakdown{Document: 0.40, Amount: 0.30, Date: 0.20, Name: 0.10},
			Status:  internal.MatchAutomatic,
		}},
		NoneDetails: []internal.MatchDetail{{Document: orphan, Status: internal.MatchNone}},
	}
}

func TestReportExportRows(t *testing.T) {
	rows := ReportExportRows(sampleReport())
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0].Status != internal.MatchAutomatic || rows[0].InvoiceID == nil || *rows[0].InvoiceID != 1 {
		t.Fatalf("first row %+v", rows[0])
	}
	if rows[1].Status != internal.MatchNone || rows[1].InvoiceID != nil {
		t.Fatalf("second row %+v", rows[1])
	}
}

func TestExportReportToXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.xlsx")
	if err := ExportReportToXLSX(sampleReport(), path); err != nil {
		t.Fatal(err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0][0] != "status" || rows[1][0] != "AUTOMATIC" || rows[2][0] != "NONE" {
		t.Fatalf("rows %v", rows)
	}
	if rows[1][7] != "FV-1" {
		t.Fatalf("invoice code cell %q", rows[1][7])
	}
}
