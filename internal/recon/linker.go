package recon

import (
	"fmt"
	"time"

	"conciliar/internal"
)

// Linker applies a chosen (document, invoice) association to the store. The
// N line updates and the final invoice update are independent writes; a
// crash mid-sequence leaves a partially linked state that a later run can
// repair by re-linking.
type Linker struct {
	purchases PurchaseStore
	invoices  InvoiceStore
	now       func() time.Time
}

func NewLinker(purchases PurchaseStore, invoices InvoiceStore) *Linker {
	return &Linker{purchases: purchases, invoices: invoices, now: time.Now}
}

type LinkResult struct {
	Key         internal.DocumentKey
	InvoiceID   int
	Outcomes    []internal.LinkOutcome
	LinesLinked int
	FirstLineID int
	InvoiceErr  string
}

// Link re-fetches every line of the document and points each at the invoice.
// The re-fetch is deliberately not filtered by sourceKind, mirroring the
// recorded behavior of the linking path. One failing line does not abort the
// rest; a store-read failure does.
func (l *Linker) Link(key internal.DocumentKey, invoiceID int) (LinkResult, error) {
	lines, err := l.purchases.FindPurchaseLines(internal.PurchaseLineFilter{
		ClientTaxID:    key.ClientTaxID,
		DocumentNumber: key.DocumentNumber,
	})
	if err != nil {
		return LinkResult{}, fmt.Errorf("fetch lines for %s/%s: %w", key.ClientTaxID, key.DocumentNumber, err)
	}
	if len(lines) == 0 {
		return LinkResult{}, fmt.Errorf("%w: %s/%s", ErrNoLines, key.ClientTaxID, key.DocumentNumber)
	}

	result := LinkResult{Key: key, InvoiceID: invoiceID}
	at := l.now()
	for _, line := range lines {
		outcome := internal.LinkOutcome{LineID: line.ID, OK: true}
		if err := l.purchases.MarkPurchaseLineLinked(line.ID, invoiceID, at); err != nil {
			outcome.OK = false
			outcome.Reason = err.Error()
		} else {
			result.LinesLinked++
			if result.FirstLineID == 0 {
				result.FirstLineID = line.ID
			}
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	if result.LinesLinked > 0 {
		if err := l.invoices.MarkInvoiceReconciled(invoiceID, result.FirstLineID); err != nil {
			result.InvoiceErr = err.Error()
		}
	}

	return result, nil
}
