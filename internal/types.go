package internal

import (
	"time"

	"github.com/shopspring/decimal"
)

type SourceKind string

const (
	SourcePurchase SourceKind = "purchase"
	SourceReturn   SourceKind = "return"
)

// PurchaseLine is one row of a client purchase report. Lines are created by
// bulk import and only ever mutated by the reconciliation linker or the
// manual override path.
type PurchaseLine struct {
	ID             int
	ClientTaxID    string
	DocumentNumber string
	SourceKind     SourceKind
	LineDate       time.Time
	ItemCode       string
	Detail         string
	Quantity       float64
	UnitValue      decimal.Decimal
	LineTotal      decimal.Decimal
	InvoiceRef     *int
	Synchronized   bool
	SyncTimestamp  *time.Time
}

type DocumentKey struct {
	ClientTaxID    string
	DocumentNumber string
}

// PurchaseDocument is the aggregate of all purchase-kind lines sharing one
// (clientTaxId, documentNumber) key. It is derived on every analyze run and
// never persisted.
type PurchaseDocument struct {
	Key          DocumentKey
	TotalValue   decimal.Decimal
	EarliestDate time.Time
	Quantity     float64
	LineCount    int
}

type InvoiceRecord struct {
	ID                   int
	ClientDisplayName    string
	DocumentCode         string
	OrderCode            string
	InvoiceDate          time.Time
	TotalValue           decimal.Decimal
	Reconciled           bool
	LinkedPurchaseLineID *int
}

type MatchStatus string

const (
	MatchAutomatic MatchStatus = "AUTOMATIC"
	MatchPossible  MatchStatus = "POSSIBLE"
	MatchNone      MatchStatus = "NONE"
)

// SignalBreakdown carries the independently capped score components:
// document number 0.40, amount 0.30, date 0.20, client name 0.10.
type SignalBreakdown struct {
	Document float64 `json:"document"`
	Amount   float64 `json:"amount"`
	Date     float64 `json:"date"`
	Name     float64 `json:"name"`
}

type MatchCandidate struct {
	InvoiceID int             `json:"invoiceId"`
	Score     float64         `json:"score"`
	Signals   SignalBreakdown `json:"signals"`
}

type MatchDetail struct {
	Document PurchaseDocument
	Invoice  *InvoiceRecord
	Score    float64
	Signals  SignalBreakdown
	Status   MatchStatus
}

type AnalyzeReport struct {
	RunID            string
	TotalDocuments   int
	TotalInvoices    int
	AutomaticCount   int
	PossibleCount    int
	NoneCount        int
	AutomaticDetails []MatchDetail
	PossibleDetails  []MatchDetail
	NoneDetails      []MatchDetail
}

// LinkOutcome records the result of one line update during commit. Failures
// are collected, not swallowed.
type LinkOutcome struct {
	LineID int
	OK     bool
	Reason string
}

type LinkFailure struct {
	Key       DocumentKey
	InvoiceID int
	LineID    int
	Reason    string
}

type CommitReport struct {
	RunID           string
	DocumentsLinked int
	LinesLinked     int
	Errors          int
	Failures        []LinkFailure
}

type RunKind string

const (
	RunAnalyze RunKind = "analyze"
	RunCommit  RunKind = "commit"
	RunLink    RunKind = "link"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// SyncRun is the persisted job record for one analyze/commit/link invocation.
// Concurrent runs are detectable through it but not prevented.
type SyncRun struct {
	ID         string
	Kind       RunKind
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
	Counts     map[string]int
}

type ClientRecord struct {
	TaxID       string
	DisplayName string
	City        *string
	Salesperson *string
	Active      bool
	UpdatedAt   *string
	RawJSON     string
}

type PurchaseLineFilter struct {
	Synchronized   *bool
	SourceKind     *SourceKind
	ClientTaxID    string
	DocumentNumber string
}

type MailRow struct {
	ID         int
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type ReconExportRow struct {
	Status         MatchStatus
	ClientTaxID    string
	DocumentNumber string
	DocumentTotal  decimal.Decimal
	DocumentDate   time.Time
	LineCount      int
	InvoiceID      *int
	InvoiceCode    *string
	OrderCode      *string
	InvoiceClient  *string
	InvoiceTotal   *decimal.Decimal
	Score          float64
	SignalDocument float64
	SignalAmount   float64
	SignalDate     float64
	SignalName     float64
}
