package recon

import (
	"errors"
	"time"

	"conciliar/internal"
)

// The reconciler only needs flat filter-reads and update-by-id writes; there
// is no transaction spanning the multi-line link sequence.

type PurchaseStore interface {
	FindPurchaseLines(filter internal.PurchaseLineFilter) ([]internal.PurchaseLine, error)
	MarkPurchaseLineLinked(id, invoiceID int, at time.Time) error
}

type InvoiceStore interface {
	ListInvoices() ([]internal.InvoiceRecord, error)
	MarkInvoiceReconciled(id, firstLineID int) error
}

// ClientRegistry resolves a tax id to the client's display name. An unknown
// tax id is reported as absent, not as an error.
type ClientRegistry interface {
	ResolveDisplayName(taxID string) (name string, ok bool, err error)
}

type RunStore interface {
	InsertRun(id string, kind internal.RunKind, startedAt time.Time) error
	FinishRun(id, status string, counts map[string]int) error
}

// ErrInsufficientData flags an analyze call that found an empty purchase or
// invoice corpus. The report returned alongside still carries the totals.
var ErrInsufficientData = errors.New("insufficient data: purchase or invoice corpus is empty")

// ErrNoLines means a link target document has no purchase lines in the store.
var ErrNoLines = errors.New("no purchase lines for document")
