package recon

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"conciliar/internal"
	"conciliar/internal/util"
)

const clientNamePrefixLen = 10

// Finder retrieves plausible invoice candidates for one purchase document.
// The two corpora share no foreign key, so retrieval is a union of three
// heuristics followed by a hard amount prefilter.
type Finder struct {
	invoices        []internal.InvoiceRecord
	normalizedNames []string
	registry        ClientRegistry
	tolerance       decimal.Decimal
	windowDays      int
}

func NewFinder(invoices []internal.InvoiceRecord, registry ClientRegistry, amountTolerance float64, dateWindowDays int) *Finder {
	names := make([]string, len(invoices))
	for i, inv := range invoices {
		names[i] = util.NormalizeName(inv.ClientDisplayName)
	}
	return &Finder{
		invoices:        invoices,
		normalizedNames: names,
		registry:        registry,
		tolerance:       decimal.NewFromFloat(amountTolerance),
		windowDays:      dateWindowDays,
	}
}

// Candidates returns the prefiltered candidate set sorted by invoice id,
// plus the resolved client display name (empty when the registry has no
// entry for the tax id).
func (f *Finder) Candidates(doc internal.PurchaseDocument) ([]internal.InvoiceRecord, string, error) {
	resolvedName, ok, err := f.registry.ResolveDisplayName(doc.Key.ClientTaxID)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		resolvedName = ""
	}

	picked := map[int]internal.InvoiceRecord{}

	docNumber := strings.ToUpper(strings.TrimSpace(doc.Key.DocumentNumber))
	if docNumber != "" {
		for _, inv := range f.invoices {
			if strings.Contains(strings.ToUpper(inv.DocumentCode), docNumber) ||
				strings.Contains(strings.ToUpper(inv.OrderCode), docNumber) {
				picked[inv.ID] = inv
			}
		}
	}

	if resolvedName != "" {
		prefix := util.FirstRunes(util.NormalizeName(resolvedName), clientNamePrefixLen)
		for i, inv := range f.invoices {
			if strings.Contains(f.normalizedNames[i], prefix) {
				picked[inv.ID] = inv
			}
		}
	}

	windowStart := doc.EarliestDate.AddDate(0, 0, -f.windowDays)
	windowEnd := doc.EarliestDate.AddDate(0, 0, f.windowDays)
	for _, inv := range f.invoices {
		if !inv.InvoiceDate.Before(windowStart) && !inv.InvoiceDate.After(windowEnd) {
			picked[inv.ID] = inv
		}
	}

	// Amount prefilter: invoice total within ±tolerance of the document
	// total. Zero-valued invoices are dropped here instead of raising later.
	low := doc.TotalValue.Mul(decimal.NewFromInt(1).Sub(f.tolerance))
	high := doc.TotalValue.Mul(decimal.NewFromInt(1).Add(f.tolerance))

	out := make([]internal.InvoiceRecord, 0, len(picked))
	for _, inv := range picked {
		if inv.TotalValue.IsZero() {
			continue
		}
		if inv.TotalValue.GreaterThanOrEqual(low) && inv.TotalValue.LessThanOrEqual(high) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, resolvedName, nil
}
