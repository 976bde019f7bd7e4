package recon

import (
	"sort"

	"conciliar/internal"
)

// GroupDocuments folds purchase lines into one document aggregate per
// (clientTaxId, documentNumber) key. Sum and min are order-independent, so
// the result does not depend on store ordering; the output is sorted by key
// to keep report ordering stable.
func GroupDocuments(lines []internal.PurchaseLine) []internal.PurchaseDocument {
	byKey := map[internal.DocumentKey]*internal.PurchaseDocument{}

	for _, line := range lines {
		if line.SourceKind != internal.SourcePurchase {
			continue
		}
		key := internal.DocumentKey{ClientTaxID: line.ClientTaxID, DocumentNumber: line.DocumentNumber}
		doc, ok := byKey[key]
		if !ok {
			doc = &internal.PurchaseDocument{Key: key, EarliestDate: line.LineDate}
			byKey[key] = doc
		}
		doc.TotalValue = doc.TotalValue.Add(line.LineTotal)
		doc.Quantity += line.Quantity
		doc.LineCount++
		if line.LineDate.Before(doc.EarliestDate) {
			doc.EarliestDate = line.LineDate
		}
	}

	out := make([]internal.PurchaseDocument, 0, len(byKey))
	for _, doc := range byKey {
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.ClientTaxID != out[j].Key.ClientTaxID {
			return out[i].Key.ClientTaxID < out[j].Key.ClientTaxID
		}
		return out[i].Key.DocumentNumber < out[j].Key.DocumentNumber
	})
	return out
}
