package pipeline

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"conciliar/internal"
	"conciliar/internal/storage"
	"conciliar/internal/util"
)

// Purchase report columns as exported by the distributor ERP. FE rows are
// purchases, DV rows are returns.
const (
	colSource    = "FUENTE"
	colDocument  = "NUM_DCTO"
	colDate      = "FECHA"
	colItemCode  = "COD_ARTICULO"
	colDetail    = "DETALLE"
	colQuantity  = "CANTIDAD"
	colUnitValue = "VALOR_UNITARIO"
	colTotal     = "TOTAL"
)

type ImportResult struct {
	TotalRows        int
	PurchasesCreated int
	PurchasesUpdated int
	ReturnsCreated   int
	ReturnsUpdated   int
	Skipped          int
}

type ImportService struct {
	db *storage.DB
}

func NewImportService(db *storage.DB) *ImportService {
	return &ImportService{db: db}
}

// ImportPurchases loads one client's purchase report into the store. Rows
// that cannot be parsed are skipped and counted, not fatal; the report files
// are hand-touched often enough that a single bad row must not sink the rest.
func (s *ImportService) ImportPurchases(blob []byte, clientTaxID string) (ImportResult, error) {
	if strings.TrimSpace(clientTaxID) == "" {
		return ImportResult{}, fmt.Errorf("client tax id is required")
	}

	rows, header, err := readSheet(blob)
	if err != nil {
		return ImportResult{}, err
	}

	required := []string{colSource, colDocument, colDate, colItemCode, colQuantity, colUnitValue, colTotal}
	for _, name := range required {
		if _, ok := header[name]; !ok {
			return ImportResult{}, fmt.Errorf("missing column %s", name)
		}
	}

	result := ImportResult{TotalRows: len(rows)}
	for _, row := range rows {
		line, err := rowToPurchaseLine(row, header, clientTaxID)
		if err != nil {
			result.Skipped++
			continue
		}

		created, err := s.db.UpsertPurchaseLine(line)
		if err != nil {
			result.Skipped++
			continue
		}
		switch {
		case line.SourceKind == internal.SourceReturn && created:
			result.ReturnsCreated++
		case line.SourceKind == internal.SourceReturn:
			result.ReturnsUpdated++
		case created:
			result.PurchasesCreated++
		default:
			result.PurchasesUpdated++
		}
	}

	return result, nil
}

func rowToPurchaseLine(row []string, header map[string]int, clientTaxID string) (internal.PurchaseLine, error) {
	source := strings.ToUpper(strings.TrimSpace(cell(row, header, colSource)))
	var kind internal.SourceKind
	switch source {
	case "FE":
		kind = internal.SourcePurchase
	case "DV":
		kind = internal.SourceReturn
	default:
		return internal.PurchaseLine{}, fmt.Errorf("unknown source %q", source)
	}

	docNumber := strings.TrimSpace(cell(row, header, colDocument))
	itemCode := strings.TrimSpace(cell(row, header, colItemCode))
	if docNumber == "" || itemCode == "" {
		return internal.PurchaseLine{}, fmt.Errorf("missing document number or item code")
	}

	lineDate, err := util.ParseDate(cell(row, header, colDate))
	if err != nil {
		return internal.PurchaseLine{}, err
	}
	quantity, err := util.ParseAmount(cell(row, header, colQuantity))
	if err != nil {
		return internal.PurchaseLine{}, err
	}
	unitValue, err := util.ParseAmount(cell(row, header, colUnitValue))
	if err != nil {
		return internal.PurchaseLine{}, err
	}
	total, err := util.ParseAmount(cell(row, header, colTotal))
	if err != nil {
		return internal.PurchaseLine{}, err
	}

	// Returns carry their total as a negative amount so document sums are
	// net of returned goods.
	if kind == internal.SourceReturn {
		total = total.Abs().Neg()
	}

	qty, _ := quantity.Float64()
	return internal.PurchaseLine{
		ClientTaxID:    clientTaxID,
		DocumentNumber: docNumber,
		SourceKind:     kind,
		LineDate:       lineDate,
		ItemCode:       itemCode,
		Detail:         strings.TrimSpace(cell(row, header, colDetail)),
		Quantity:       qty,
		UnitValue:      unitValue,
		LineTotal:      total,
	}, nil
}

// Invoice ledger columns from the commission workbook.
const (
	colInvoiceCode   = "FACTURA"
	colOrderCode     = "PEDIDO"
	colInvoiceClient = "CLIENTE"
	colInvoiceDate   = "FECHA_FACTURA"
	colInvoiceValue  = "VALOR"
)

type InvoiceImportResult struct {
	TotalRows int
	Created   int
	Updated   int
	Skipped   int
}

// ImportInvoices loads the commission/invoice ledger exported by the
// commission side of the back office.
func (s *ImportService) ImportInvoices(blob []byte) (InvoiceImportResult, error) {
	rows, header, err := readSheet(blob)
	if err != nil {
		return InvoiceImportResult{}, err
	}

	for _, name := range []string{colInvoiceCode, colInvoiceClient, colInvoiceDate, colInvoiceValue} {
		if _, ok := header[name]; !ok {
			return InvoiceImportResult{}, fmt.Errorf("missing column %s", name)
		}
	}

	result := InvoiceImportResult{TotalRows: len(rows)}
	for _, row := range rows {
		code := strings.TrimSpace(cell(row, header, colInvoiceCode))
		client := strings.TrimSpace(cell(row, header, colInvoiceClient))
		if code == "" || client == "" {
			result.Skipped++
			continue
		}

		invoiceDate, err := util.ParseDate(cell(row, header, colInvoiceDate))
		if err != nil {
			result.Skipped++
			continue
		}
		totalValue, err := util.ParseAmount(cell(row, header, colInvoiceValue))
		if err != nil {
			result.Skipped++
			continue
		}

		created, err := s.db.UpsertInvoice(internal.InvoiceRecord{
			ClientDisplayName: client,
			DocumentCode:      code,
			OrderCode:         strings.TrimSpace(cell(row, header, colOrderCode)),
			InvoiceDate:       invoiceDate,
			TotalValue:        totalValue,
		})
		if err != nil {
			result.Skipped++
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	return result, nil
}

// readSheet returns the data rows and a header-name index for the first
// sheet of a workbook. Header matching is case-insensitive and ignores
// spaces and underscores.
func readSheet(blob []byte) ([][]string, map[string]int, error) {
	f, err := excelize.OpenReader(bytes.NewReader(blob))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("sheet %s has no data rows", sheet)
	}

	header := map[string]int{}
	for i, name := range rows[0] {
		header[normalizeHeaderName(name)] = i
	}
	return rows[1:], header, nil
}

func normalizeHeaderName(name string) string {
	s := strings.ToUpper(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

func cell(row []string, header map[string]int, name string) string {
	idx, ok := header[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return row[idx]
}
