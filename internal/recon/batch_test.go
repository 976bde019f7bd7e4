package recon

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"conciliar/internal"
	"conciliar/internal/config"
)

type fakeRunStore struct {
	kinds     map[string]internal.RunKind
	statuses  map[string]string
	finishErr error
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{kinds: map[string]internal.RunKind{}, statuses: map[string]string{}}
}

func (f *fakeRunStore) InsertRun(id string, kind internal.RunKind, startedAt time.Time) error {
	f.kinds[id] = kind
	f.statuses[id] = internal.RunStatusRunning
	return nil
}

func (f *fakeRunStore) FinishRun(id, status string, counts map[string]int) error {
	if f.finishErr != nil {
		return f.finishErr
	}
	f.statuses[id] = status
	return nil
}

func testConfig() config.Config {
	return config.Config{
		MatchAutoThreshold:   0.80,
		MatchReviewThreshold: 0.50,
		AmountTolerance:      0.10,
		DateWindowDays:       7,
	}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func reconcilerFixture() (*Reconciler, *fakePurchaseStore, *fakeInvoiceStore, *fakeRunStore) {
	purchases := newFakePurchaseStore(
		// Document FE-100: two lines, total 750000, perfectly matched by invoice 1.
		func() internal.PurchaseLine {
			l := docLine(11, "FE-100")
			l.LineTotal = decimal.NewFromInt(500000)
			return l
		}(),
		func() internal.PurchaseLine {
			l := docLine(12, "FE-100")
			l.LineTotal = decimal.NewFromInt(250000)
			return l
		}(),
		// Document FE-200: single line, weaker match against invoice 2.
		internal.PurchaseLine{ID: 21, ClientTaxID: "800222", DocumentNumber: "FE-200",
			SourceKind: internal.SourcePurchase, LineDate: day(2025, 3, 10),
			LineTotal: decimal.NewFromInt(100)},
		// Document FE-300: no candidate anywhere.
		internal.PurchaseLine{ID: 31, ClientTaxID: "700333", DocumentNumber: "FE-300",
			SourceKind: internal.SourcePurchase, LineDate: day(2025, 3, 10),
			LineTotal: decimal.NewFromInt(5000)},
	)

	invoices := newFakeInvoiceStore(
		internal.InvoiceRecord{ID: 1, ClientDisplayName: "DISTRIBUIDORA NORTE SAS",
			DocumentCode: "FV-1", OrderCode: "FE-100", InvoiceDate: day(2025, 3, 10),
			TotalValue: decimal.NewFromInt(750000)},
		internal.InvoiceRecord{ID: 2, ClientDisplayName: "OTRO CLIENTE",
			DocumentCode: "FV-2", OrderCode: "FE-200", InvoiceDate: day(2025, 3, 17),
			TotalValue: decimal.NewFromInt(108)},
	)

	registry := fakeRegistry{"900111": "DISTRIBUIDORA NORTE SAS"}
	runs := newFakeRunStore()
	r := NewReconciler(purchases, invoices, registry, runs, testConfig(), quietLogger())
	return r, purchases, invoices, runs
}

func TestAnalyzeBuckets(t *testing.T) {
	r, _, _, runs := reconcilerFixture()

	report, err := r.Analyze()
	if err != nil {
		t.Fatal(err)
	}

	if report.TotalDocuments != 3 || report.TotalInvoices != 2 {
		t.Fatalf("totals %+v", report)
	}
	if report.AutomaticCount != 1 || report.PossibleCount != 1 || report.NoneCount != 1 {
		t.Fatalf("counts auto=%d possible=%d none=%d",
			report.AutomaticCount, report.PossibleCount, report.NoneCount)
	}

	auto := report.AutomaticDetails[0]
	if auto.Document.Key.DocumentNumber != "FE-100" || auto.Invoice.ID != 1 {
		t.Fatalf("automatic detail %+v", auto)
	}
	if !almostEqual(auto.Score, 1.0) {
		t.Fatalf("automatic score %v", auto.Score)
	}

	possible := report.PossibleDetails[0]
	if possible.Document.Key.DocumentNumber != "FE-200" || possible.Invoice.ID != 2 {
		t.Fatalf("possible detail %+v", possible)
	}
	// 0.40 document + 0.20 amount + 0.10 date.
	if !almostEqual(possible.Score, 0.70) {
		t.Fatalf("possible score %v", possible.Score)
	}

	none := report.NoneDetails[0]
	if none.Document.Key.DocumentNumber != "FE-300" || none.Invoice != nil {
		t.Fatalf("none detail %+v", none)
	}

	if report.RunID == "" || runs.statuses[report.RunID] != internal.RunStatusCompleted {
		t.Fatalf("run not recorded: %+v", runs.statuses)
	}
	if runs.kinds[report.RunID] != internal.RunAnalyze {
		t.Fatalf("run kind %s", runs.kinds[report.RunID])
	}
}

func TestAnalyzeInsufficientData(t *testing.T) {
	purchases := newFakePurchaseStore(docLine(11, "FE-1"))
	invoices := newFakeInvoiceStore() // empty ledger
	runs := newFakeRunStore()
	r := NewReconciler(purchases, invoices, fakeRegistry{}, runs, testConfig(), quietLogger())

	report, err := r.Analyze()
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("got %v want ErrInsufficientData", err)
	}
	// The report still carries the corpus totals.
	if report.TotalDocuments != 1 || report.TotalInvoices != 0 {
		t.Fatalf("totals %+v", report)
	}
	if runs.statuses[report.RunID] != internal.RunStatusFailed {
		t.Fatalf("run status %s", runs.statuses[report.RunID])
	}
}

func TestCommitAutomatic(t *testing.T) {
	r, purchases, invoices, _ := reconcilerFixture()

	_, commit, err := r.CommitAutomatic()
	if err != nil {
		t.Fatal(err)
	}
	if commit.DocumentsLinked != 1 || commit.LinesLinked != 2 || commit.Errors != 0 {
		t.Fatalf("got %+v", commit)
	}
	// Only the automatic bucket is touched.
	if purchases.linked[11] != 1 || purchases.linked[12] != 1 {
		t.Fatalf("linked map %v", purchases.linked)
	}
	if _, ok := purchases.linked[21]; ok {
		t.Fatal("possible match must not be auto-linked")
	}
	if invoices.reconciled[1] != 11 {
		t.Fatalf("invoice backref %v", invoices.reconciled)
	}
}

func TestCommitCollectsMissingDocuments(t *testing.T) {
	r, _, _, _ := reconcilerFixture()

	selection := []Selection{
		{Key: internal.DocumentKey{ClientTaxID: "900111", DocumentNumber: "FE-100"}, InvoiceID: 1},
		{Key: internal.DocumentKey{ClientTaxID: "999999", DocumentNumber: "GONE"}, InvoiceID: 2},
	}
	report, err := r.Commit(selection)
	if err != nil {
		t.Fatal(err)
	}
	if report.DocumentsLinked != 1 || report.Errors != 1 || len(report.Failures) != 1 {
		t.Fatalf("got %+v", report)
	}
	if report.Failures[0].Key.DocumentNumber != "GONE" {
		t.Fatalf("failure %+v", report.Failures[0])
	}
}

func TestNearMatchDocumentLinksAllLines(t *testing.T) {
	// Three lines of document 5002, 950 total, against an order-coded
	// invoice of 1000 two days later for a near-identical client name:
	// 0.40 + 0.30 + 0.15 + 0.9*0.10 = 0.94, automatic, all lines linked.
	purchases := newFakePurchaseStore(
		internal.PurchaseLine{ID: 1, ClientTaxID: "900111", DocumentNumber: "5002",
			SourceKind: internal.SourcePurchase, LineDate: day(2025, 3, 10),
			LineTotal: decimal.NewFromInt(400)},
		internal.PurchaseLine{ID: 2, ClientTaxID: "900111", DocumentNumber: "5002",
			SourceKind: internal.SourcePurchase, LineDate: day(2025, 3, 10),
			LineTotal: decimal.NewFromInt(300)},
		internal.PurchaseLine{ID: 3, ClientTaxID: "900111", DocumentNumber: "5002",
			SourceKind: internal.SourcePurchase, LineDate: day(2025, 3, 11),
			LineTotal: decimal.NewFromInt(250)},
	)
	invoices := newFakeInvoiceStore(
		internal.InvoiceRecord{ID: 1, ClientDisplayName: "ACME CALINA",
			DocumentCode: "FV-77", OrderCode: "PED-5002", InvoiceDate: day(2025, 3, 12),
			TotalValue: decimal.NewFromInt(1000)},
	)
	registry := fakeRegistry{"900111": "ACME CALI"}
	runs := newFakeRunStore()
	r := NewReconciler(purchases, invoices, registry, runs, testConfig(), quietLogger())

	analysis, commit, err := r.CommitAutomatic()
	if err != nil {
		t.Fatal(err)
	}

	if analysis.AutomaticCount != 1 {
		t.Fatalf("counts %+v", analysis)
	}
	detail := analysis.AutomaticDetails[0]
	if !almostEqual(detail.Score, 0.94) {
		t.Fatalf("score %v want 0.94", detail.Score)
	}
	want := internal.SignalBreakdown{Document: 0.40, Amount: 0.30, Date: 0.15, Name: 0.09}
	if !almostEqual(detail.Signals.Document, want.Document) || !almostEqual(detail.Signals.Amount, want.Amount) ||
		!almostEqual(detail.Signals.Date, want.Date) || !almostEqual(detail.Signals.Name, want.Name) {
		t.Fatalf("signals %+v want %+v", detail.Signals, want)
	}

	if commit.DocumentsLinked != 1 || commit.LinesLinked != 3 || commit.Errors != 0 {
		t.Fatalf("commit %+v", commit)
	}
	for _, id := range []int{1, 2, 3} {
		if purchases.linked[id] != 1 {
			t.Fatalf("line %d not linked: %v", id, purchases.linked)
		}
	}
	if invoices.reconciled[1] != 1 {
		t.Fatalf("invoice backref %v", invoices.reconciled)
	}
}

func TestFinishRunFailureIsLoggedNotFatal(t *testing.T) {
	r, _, _, runs := reconcilerFixture()
	runs.finishErr = errors.New("disk full")

	var buf bytes.Buffer
	r.log.SetOutput(&buf)

	report, err := r.Analyze()
	if err != nil {
		t.Fatal(err)
	}
	if report.AutomaticCount != 1 {
		t.Fatalf("analysis lost: %+v", report)
	}
	if !strings.Contains(buf.String(), "run record not finalized") {
		t.Fatalf("missing warning in log output: %q", buf.String())
	}
}

func TestLinkOneManualOverride(t *testing.T) {
	r, purchases, invoices, runs := reconcilerFixture()

	// Invoice 2 would never be the scored winner for FE-100; the manual path
	// must link it anyway.
	report, err := r.LinkOne(internal.DocumentKey{ClientTaxID: "900111", DocumentNumber: "FE-100"}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if report.DocumentsLinked != 1 || report.LinesLinked != 2 {
		t.Fatalf("got %+v", report)
	}
	if purchases.linked[11] != 2 || purchases.linked[12] != 2 {
		t.Fatalf("linked map %v", purchases.linked)
	}
	if invoices.reconciled[2] != 11 {
		t.Fatalf("invoice backref %v", invoices.reconciled)
	}
	if runs.kinds[report.RunID] != internal.RunLink {
		t.Fatalf("run kind %s", runs.kinds[report.RunID])
	}
}
