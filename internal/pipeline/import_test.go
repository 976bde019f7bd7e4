package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"conciliar/internal"
	"conciliar/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				t.Fatal(err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestImportPurchases(t *testing.T) {
	db := openTestDB(t)
	blob := buildWorkbook(t, [][]any{
		{"FUENTE", "NUM_DCTO", "FECHA", "COD_ARTICULO", "DETALLE", "CANTIDAD", "VALOR_UNITARIO", "TOTAL"},
		{"FE", "FE-100", "2025-03-14", "ART-1", "Cafe molido 500g", "2", "12500", "25000"},
		{"DV", "DV-9", "2025-03-15", "ART-1", "Devolucion cafe", "1", "12500", "12500"},
		{"XX", "??", "2025-03-15", "ART-2", "fila basura", "1", "1", "1"},
	})

	result, err := NewImportService(db).ImportPurchases(blob, "900111")
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalRows != 3 || result.PurchasesCreated != 1 || result.ReturnsCreated != 1 || result.Skipped != 1 {
		t.Fatalf("got %+v", result)
	}

	lines, err := db.FindPurchaseLines(internal.PurchaseLineFilter{ClientTaxID: "900111"})
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}

	byDoc := map[string]internal.PurchaseLine{}
	for _, line := range lines {
		byDoc[line.DocumentNumber] = line
	}
	if byDoc["FE-100"].SourceKind != internal.SourcePurchase || byDoc["FE-100"].LineTotal.String() != "25000" {
		t.Fatalf("purchase line %+v", byDoc["FE-100"])
	}
	// Returns are stored with a negated total.
	if byDoc["DV-9"].SourceKind != internal.SourceReturn || byDoc["DV-9"].LineTotal.String() != "-12500" {
		t.Fatalf("return line %+v", byDoc["DV-9"])
	}

	// Re-importing the same file updates in place instead of duplicating.
	again, err := NewImportService(db).ImportPurchases(blob, "900111")
	if err != nil {
		t.Fatal(err)
	}
	if again.PurchasesUpdated != 1 || again.ReturnsUpdated != 1 || again.PurchasesCreated != 0 {
		t.Fatalf("got %+v", again)
	}
	lines, _ = db.FindPurchaseLines(internal.PurchaseLineFilter{ClientTaxID: "900111"})
	if len(lines) != 2 {
		t.Fatalf("duplicated on re-import: %d lines", len(lines))
	}
}

func TestImportPurchasesRequiresTaxID(t *testing.T) {
	db := openTestDB(t)
	if _, err := NewImportService(db).ImportPurchases(nil, "  "); err == nil {
		t.Fatal("expected error")
	}
}

func TestImportPurchasesMissingColumn(t *testing.T) {
	db := openTestDB(t)
	blob := buildWorkbook(t, [][]any{
		{"FUENTE", "NUM_DCTO", "FECHA"},
		{"FE", "FE-1", "2025-03-14"},
	})
	if _, err := NewImportService(db).ImportPurchases(blob, "900111"); err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestImportInvoices(t *testing.T) {
	db := openTestDB(t)
	blob := buildWorkbook(t, [][]any{
		{"FACTURA", "PEDIDO", "CLIENTE", "FECHA_FACTURA", "VALOR"},
		{"FV-3311", "PED-5002", "DISTRIBUIDORA NORTE SAS", "2025-03-14", "1000000"},
		{"", "PED-1", "SIN FACTURA", "2025-03-14", "100"},
	})

	result, err := NewImportService(db).ImportInvoices(blob)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalRows != 2 || result.Created != 1 || result.Skipped != 1 {
		t.Fatalf("got %+v", result)
	}

	invoices, err := db.ListInvoices()
	if err != nil {
		t.Fatal(err)
	}
	if len(invoices) != 1 {
		t.Fatalf("got %d invoices", len(invoices))
	}
	inv := invoices[0]
	if inv.DocumentCode != "FV-3311" || inv.OrderCode != "PED-5002" || inv.TotalValue.String() != "1000000" {
		t.Fatalf("invoice %+v", inv)
	}
}
