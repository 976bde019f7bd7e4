package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"conciliar/internal"
	"conciliar/internal/config"
	"conciliar/internal/connectors"
	imapconnector "conciliar/internal/connectors/imap"
	"conciliar/internal/pipeline"
	"conciliar/internal/recon"
	"conciliar/internal/registry"
	"conciliar/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	log := config.NewLogger()

	cmd := os.Args[1]
	switch cmd {
	case "registry:sync":
		svc := registry.NewSyncService(db, cfg)
		count, err := svc.Sync(context.Background())
		must(err)
		fmt.Printf("registry sync complete: %d clients\n", count)
	case "import:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "xlsx purchase report")
		taxID := fs.String("taxId", "", "client tax id")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" || strings.TrimSpace(*taxID) == "" {
			must(fmt.Errorf("--file and --taxId are required"))
		}
		blob, err := os.ReadFile(*file)
		must(err)
		result, err := pipeline.NewImportService(db).ImportPurchases(blob, *taxID)
		must(err)
		fmt.Printf("import done rows=%d purchases=%d/%d returns=%d/%d skipped=%d\n",
			result.TotalRows, result.PurchasesCreated, result.PurchasesUpdated,
			result.ReturnsCreated, result.ReturnsUpdated, result.Skipped)
	case "import:invoices":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "xlsx invoice ledger")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}
		blob, err := os.ReadFile(*file)
		must(err)
		result, err := pipeline.NewImportService(db).ImportInvoices(blob)
		must(err)
		fmt.Printf("import done rows=%d created=%d updated=%d skipped=%d\n",
			result.TotalRows, result.Created, result.Updated, result.Skipped)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		label := fs.String("label", cfg.MailLabel, "mailbox/label")
		max := fs.Int("max", cfg.MailFetchMax, "max messages")
		subject := fs.String("subject", cfg.MailSubjectFilter, "server-side subject filter")
		_ = fs.Parse(os.Args[2:])
		cfg.MailLabel = *label
		cfg.MailFetchMax = *max
		cfg.MailSubjectFilter = *subject
		conn, err := imapconnector.NewConnector(cfg)
		must(err)
		fetch := connectors.NewFetchService(db, cfg, conn)
		result, err := fetch.FetchReports()
		must(err)
		fmt.Printf("mail fetch done fetched=%d stored=%d known=%d\n", result.Fetched, result.Stored, result.Known)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		importer := pipeline.NewMailImportService(db, cfg, log)
		processed, skipped, err := importer.ProcessPending(*batch)
		must(err)
		fmt.Printf("mail process done processed=%d skipped=%d\n", processed, skipped)
	case "reconcile:analyze":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", "", "optional output xlsx path")
		_ = fs.Parse(os.Args[2:])
		reconciler := recon.NewReconciler(db, db, db, db, cfg, log)
		report, err := reconciler.Analyze()
		if errors.Is(err, recon.ErrInsufficientData) {
			fmt.Printf("nothing to analyze: documents=%d invoices=%d\n", report.TotalDocuments, report.TotalInvoices)
			return
		}
		must(err)
		printAnalyzeReport(report)
		if strings.TrimSpace(*out) != "" {
			must(pipeline.ExportReportToXLSX(report, *out))
			fmt.Printf("report exported to %s\n", *out)
		}
	case "reconcile:commit":
		reconciler := recon.NewReconciler(db, db, db, db, cfg, log)
		analysis, commit, err := reconciler.CommitAutomatic()
		if errors.Is(err, recon.ErrInsufficientData) {
			fmt.Printf("nothing to commit: documents=%d invoices=%d\n", analysis.TotalDocuments, analysis.TotalInvoices)
			return
		}
		must(err)
		fmt.Printf("commit done documents=%d lines=%d errors=%d\n",
			commit.DocumentsLinked, commit.LinesLinked, commit.Errors)
		for _, failure := range commit.Failures {
			fmt.Printf("  failed %s/%s invoice=%d line=%d: %s\n",
				failure.Key.ClientTaxID, failure.Key.DocumentNumber, failure.InvoiceID, failure.LineID, failure.Reason)
		}
	case "reconcile:link":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		taxID := fs.String("taxId", "", "client tax id")
		doc := fs.String("doc", "", "document number")
		invoiceID := fs.Int("invoiceId", 0, "invoice id")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*taxID) == "" || strings.TrimSpace(*doc) == "" || *invoiceID == 0 {
			must(fmt.Errorf("--taxId --doc --invoiceId are required"))
		}
		reconciler := recon.NewReconciler(db, db, db, db, cfg, log)
		key := internal.DocumentKey{ClientTaxID: *taxID, DocumentNumber: *doc}
		report, err := reconciler.LinkOne(key, *invoiceID)
		must(err)
		fmt.Printf("link done lines=%d errors=%d\n", report.LinesLinked, report.Errors)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		out := fs.String("out", filepath.Join(cfg.OutputDir, "reconcile.xlsx"), "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		reconciler := recon.NewReconciler(db, db, db, db, cfg, log)
		report, err := reconciler.Analyze()
		if err != nil && !errors.Is(err, recon.ErrInsufficientData) {
			must(err)
		}
		must(pipeline.ExportReportToXLSX(report, *out))
		fmt.Printf("report exported to %s\n", *out)
	case "runs:active":
		runs, err := db.ListActiveRuns()
		must(err)
		if len(runs) == 0 {
			fmt.Println("no active runs")
			return
		}
		for _, run := range runs {
			fmt.Printf("%s kind=%s started=%s\n", run.ID, run.Kind, run.StartedAt.Format("2006-01-02 15:04:05"))
		}
	default:
		usage()
		os.Exit(1)
	}
}

func printAnalyzeReport(report internal.AnalyzeReport) {
	fmt.Printf("analyze done documents=%d invoices=%d automatic=%d possible=%d none=%d\n",
		report.TotalDocuments, report.TotalInvoices,
		report.AutomaticCount, report.PossibleCount, report.NoneCount)
	for _, detail := range report.AutomaticDetails {
		fmt.Printf("  AUTO %s/%s -> invoice %d (%s) score=%.2f\n",
			detail.Document.Key.ClientTaxID, detail.Document.Key.DocumentNumber,
			detail.Invoice.ID, detail.Invoice.DocumentCode, detail.Score)
	}
	for _, detail := range report.PossibleDetails {
		fmt.Printf("  POSSIBLE %s/%s -> invoice %d (%s) score=%.2f\n",
			detail.Document.Key.ClientTaxID, detail.Document.Key.DocumentNumber,
			detail.Invoice.ID, detail.Invoice.DocumentCode, detail.Score)
	}
}

func usage() {
	fmt.Println("usage: conciliar <command>")
	fmt.Println("commands:")
	fmt.Println("  registry:sync")
	fmt.Println("  import:xlsx --file=report.xlsx --taxId=900123456")
	fmt.Println("  import:invoices --file=ledger.xlsx")
	fmt.Println("  mail:fetch [--label=INBOX] [--max=20]")
	fmt.Println("  mail:process [--batch=20]")
	fmt.Println("  reconcile:analyze [--out=./out/report.xlsx]")
	fmt.Println("  reconcile:commit")
	fmt.Println("  reconcile:link --taxId=... --doc=... --invoiceId=...")
	fmt.Println("  export:xlsx [--out=./out/reconcile.xlsx]")
	fmt.Println("  runs:active")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
