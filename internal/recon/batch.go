package recon

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"conciliar/internal"
	"conciliar/internal/config"
)

// noneDetailCap bounds the no-match detail list in the analyze report; the
// counts always cover the full population.
const noneDetailCap = 20

// Reconciler orchestrates grouping, candidate search, scoring and linking
// across the whole unreconciled population. Each public operation runs under
// a persisted sync run record so overlapping invocations are detectable.
type Reconciler struct {
	purchases PurchaseStore
	invoices  InvoiceStore
	registry  ClientRegistry
	runs      RunStore
	cfg       config.Config
	log       *logrus.Logger
}

func NewReconciler(purchases PurchaseStore, invoices InvoiceStore, registry ClientRegistry, runs RunStore, cfg config.Config, log *logrus.Logger) *Reconciler {
	return &Reconciler{purchases: purchases, invoices: invoices, registry: registry, runs: runs, cfg: cfg, log: log}
}

type Selection struct {
	Key       internal.DocumentKey
	InvoiceID int
}

// AutomaticSelection extracts the commit selection for the automatic bucket
// of an analyze report.
func AutomaticSelection(report internal.AnalyzeReport) []Selection {
	out := make([]Selection, 0, len(report.AutomaticDetails))
	for _, detail := range report.AutomaticDetails {
		if detail.Invoice == nil {
			continue
		}
		out = append(out, Selection{Key: detail.Document.Key, InvoiceID: detail.Invoice.ID})
	}
	return out
}

func (r *Reconciler) Analyze() (internal.AnalyzeReport, error) {
	runID := uuid.NewString()
	if err := r.runs.InsertRun(runID, internal.RunAnalyze, time.Now()); err != nil {
		return internal.AnalyzeReport{}, err
	}

	report, err := r.analyze(runID)
	status := internal.RunStatusCompleted
	if err != nil {
		status = internal.RunStatusFailed
	}
	r.finishRun(runID, status, map[string]int{
		"documents": report.TotalDocuments,
		"invoices":  report.TotalInvoices,
		"automatic": report.AutomaticCount,
		"possible":  report.PossibleCount,
		"none":      report.NoneCount,
	})
	return report, err
}

func (r *Reconciler) analyze(runID string) (internal.AnalyzeReport, error) {
	report := internal.AnalyzeReport{RunID: runID}

	filter := internal.PurchaseLineFilter{SourceKind: sourceKindPtr(internal.SourcePurchase)}
	if r.cfg.SkipSynced {
		synced := false
		filter.Synchronized = &synced
	}
	lines, err := r.purchases.FindPurchaseLines(filter)
	if err != nil {
		return report, err
	}
	invoices, err := r.invoices.ListInvoices()
	if err != nil {
		return report, err
	}

	documents := GroupDocuments(lines)
	report.TotalDocuments = len(documents)
	report.TotalInvoices = len(invoices)

	if len(documents) == 0 || len(invoices) == 0 {
		return report, ErrInsufficientData
	}

	invoiceByID := map[int]internal.InvoiceRecord{}
	for _, inv := range invoices {
		invoiceByID[inv.ID] = inv
	}

	finder := NewFinder(invoices, r.registry, r.cfg.AmountTolerance, r.cfg.DateWindowDays)
	classifier := Classifier{AutoThreshold: r.cfg.MatchAutoThreshold, ReviewThreshold: r.cfg.MatchReviewThreshold}

	for _, doc := range documents {
		candidates, resolvedName, err := finder.Candidates(doc)
		if err != nil {
			return report, err
		}

		if len(candidates) == 0 {
			report.NoneCount++
			if len(report.NoneDetails) < noneDetailCap {
				report.NoneDetails = append(report.NoneDetails, internal.MatchDetail{Document: doc, Status: internal.MatchNone})
			}
			continue
		}

		best, _ := BestCandidate(doc, candidates, resolvedName)
		inv := invoiceByID[best.InvoiceID]
		detail := internal.MatchDetail{
			Document: doc,
			Invoice:  &inv,
			Score:    best.Score,
			Signals:  best.Signals,
			Status:   classifier.Classify(best.Score),
		}

		switch detail.Status {
		case internal.MatchAutomatic:
			report.AutomaticCount++
			report.AutomaticDetails = append(report.AutomaticDetails, detail)
		case internal.MatchPossible:
			report.PossibleCount++
			report.PossibleDetails = append(report.PossibleDetails, detail)
		default:
			report.NoneCount++
			if len(report.NoneDetails) < noneDetailCap {
				report.NoneDetails = append(report.NoneDetails, detail)
			}
		}
	}

	r.log.WithFields(logrus.Fields{
		"run":       runID,
		"documents": report.TotalDocuments,
		"automatic": report.AutomaticCount,
		"possible":  report.PossibleCount,
		"none":      report.NoneCount,
	}).Info("reconciliation analyze complete")

	return report, nil
}

// Commit links every document in the selection to its chosen invoice.
// Per-item failures are collected into the report; a store-level failure
// aborts the remaining batch.
func (r *Reconciler) Commit(selection []Selection) (internal.CommitReport, error) {
	runID := uuid.NewString()
	if err := r.runs.InsertRun(runID, internal.RunCommit, time.Now()); err != nil {
		return internal.CommitReport{}, err
	}

	report, err := r.commit(runID, selection)
	status := internal.RunStatusCompleted
	if err != nil {
		status = internal.RunStatusFailed
	}
	r.finishRun(runID, status, map[string]int{
		"documentsLinked": report.DocumentsLinked,
		"linesLinked":     report.LinesLinked,
		"errors":          report.Errors,
	})
	return report, err
}

func (r *Reconciler) commit(runID string, selection []Selection) (internal.CommitReport, error) {
	report := internal.CommitReport{RunID: runID}
	linker := NewLinker(r.purchases, r.invoices)

	for _, sel := range selection {
		result, err := linker.Link(sel.Key, sel.InvoiceID)
		if err != nil {
			if errors.Is(err, ErrNoLines) {
				report.Errors++
				report.Failures = append(report.Failures, internal.LinkFailure{
					Key: sel.Key, InvoiceID: sel.InvoiceID, Reason: err.Error(),
				})
				continue
			}
			return report, err
		}

		report.LinesLinked += result.LinesLinked
		for _, outcome := range result.Outcomes {
			if !outcome.OK {
				report.Errors++
				report.Failures = append(report.Failures, internal.LinkFailure{
					Key: sel.Key, InvoiceID: sel.InvoiceID, LineID: outcome.LineID, Reason: outcome.Reason,
				})
			}
		}

		if result.InvoiceErr != "" {
			report.Errors++
			report.Failures = append(report.Failures, internal.LinkFailure{
				Key: sel.Key, InvoiceID: sel.InvoiceID, Reason: result.InvoiceErr,
			})
			continue
		}

		if result.LinesLinked > 0 {
			report.DocumentsLinked++
			r.log.WithFields(logrus.Fields{
				"run":      runID,
				"taxId":    sel.Key.ClientTaxID,
				"document": sel.Key.DocumentNumber,
				"invoice":  sel.InvoiceID,
				"lines":    result.LinesLinked,
			}).Info("document linked")
		}
	}

	return report, nil
}

// CommitAutomatic runs a fresh analyze and links the automatic bucket, the
// unattended end-to-end path.
func (r *Reconciler) CommitAutomatic() (internal.AnalyzeReport, internal.CommitReport, error) {
	analysis, err := r.Analyze()
	if err != nil {
		return analysis, internal.CommitReport{}, err
	}
	commit, err := r.Commit(AutomaticSelection(analysis))
	return analysis, commit, err
}

// LinkOne is the manual override: it bypasses scoring entirely and links the
// whole document to the operator-chosen invoice.
func (r *Reconciler) LinkOne(key internal.DocumentKey, invoiceID int) (internal.CommitReport, error) {
	runID := uuid.NewString()
	if err := r.runs.InsertRun(runID, internal.RunLink, time.Now()); err != nil {
		return internal.CommitReport{}, err
	}

	report := internal.CommitReport{RunID: runID}
	linker := NewLinker(r.purchases, r.invoices)
	result, err := linker.Link(key, invoiceID)
	if err != nil {
		r.finishRun(runID, internal.RunStatusFailed, nil)
		return report, err
	}

	report.LinesLinked = result.LinesLinked
	for _, outcome := range result.Outcomes {
		if !outcome.OK {
			report.Errors++
			report.Failures = append(report.Failures, internal.LinkFailure{
				Key: key, InvoiceID: invoiceID, LineID: outcome.LineID, Reason: outcome.Reason,
			})
		}
	}
	if result.InvoiceErr != "" {
		report.Errors++
		report.Failures = append(report.Failures, internal.LinkFailure{Key: key, InvoiceID: invoiceID, Reason: result.InvoiceErr})
	} else if result.LinesLinked > 0 {
		report.DocumentsLinked = 1
	}

	status := internal.RunStatusCompleted
	if report.Errors > 0 && report.LinesLinked == 0 {
		status = internal.RunStatusFailed
	}
	r.finishRun(runID, status, map[string]int{
		"documentsLinked": report.DocumentsLinked,
		"linesLinked":     report.LinesLinked,
		"errors":          report.Errors,
	})
	return report, nil
}

// finishRun finalizes the run record; a failed write would leave the run
// looking active forever, so it is at least surfaced in the log.
func (r *Reconciler) finishRun(runID, status string, counts map[string]int) {
	if err := r.runs.FinishRun(runID, status, counts); err != nil {
		r.log.WithError(err).WithField("run", runID).Warn("run record not finalized")
	}
}

func sourceKindPtr(kind internal.SourceKind) *internal.SourceKind { return &kind }
