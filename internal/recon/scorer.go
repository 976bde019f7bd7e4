package recon

import (
	"math"
	"sort"
	"strings"
	"time"

	"conciliar/internal"
	"conciliar/internal/util"
)

// Signal caps. The four signals sum to at most 1.0.
const (
	signalDocumentMax = 0.40
	signalAmountMax   = 0.30
	signalDateMax     = 0.20
	signalNameMax     = 0.10
)

// ScoreCandidate computes the confidence that inv is the invoice behind doc.
// resolvedName is the registry name for the document's client, empty when
// unresolved.
func ScoreCandidate(doc internal.PurchaseDocument, inv internal.InvoiceRecord, resolvedName string) internal.MatchCandidate {
	var signals internal.SignalBreakdown

	docNumber := strings.TrimSpace(doc.Key.DocumentNumber)
	if docNumber != "" &&
		(strings.Contains(inv.DocumentCode, docNumber) || strings.Contains(inv.OrderCode, docNumber)) {
		signals.Document = signalDocumentMax
	}

	// Relative difference against the invoice value; a zero-valued invoice
	// contributes nothing rather than dividing by zero.
	if inv.TotalValue.IsPositive() {
		diff, _ := doc.TotalValue.Sub(inv.TotalValue).Abs().Div(inv.TotalValue).Float64()
		switch {
		case diff <= 0.05:
			signals.Amount = signalAmountMax
		case diff <= 0.10:
			signals.Amount = 0.20
		case diff <= 0.20:
			signals.Amount = 0.10
		}
	}

	days := daysBetween(doc.EarliestDate, inv.InvoiceDate)
	switch {
	case days == 0:
		signals.Date = signalDateMax
	case days <= 3:
		signals.Date = 0.15
	case days <= 7:
		signals.Date = 0.10
	}

	if resolvedName != "" {
		ratio := util.SimilarityRatio(util.NormalizeName(resolvedName), util.NormalizeName(inv.ClientDisplayName))
		signals.Name = ratio * signalNameMax
	}

	score := signals.Document + signals.Amount + signals.Date + signals.Name
	if score > 1.0 {
		score = 1.0
	}

	return internal.MatchCandidate{InvoiceID: inv.ID, Score: score, Signals: signals}
}

// BestCandidate scores every candidate and picks the winner with an explicit
// deterministic order: score descending, then invoice id ascending.
func BestCandidate(doc internal.PurchaseDocument, candidates []internal.InvoiceRecord, resolvedName string) (internal.MatchCandidate, bool) {
	if len(candidates) == 0 {
		return internal.MatchCandidate{}, false
	}

	scored := make([]internal.MatchCandidate, 0, len(candidates))
	for _, inv := range candidates {
		scored = append(scored, ScoreCandidate(doc, inv, resolvedName))
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].InvoiceID < scored[j].InvoiceID
	})

	return scored[0], true
}

func daysBetween(a, b time.Time) int {
	hours := a.Sub(b).Hours()
	return int(math.Abs(hours) / 24)
}
