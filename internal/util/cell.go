package util

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	reDotGrouped   = regexp.MustCompile(`^-?\d{1,3}(?:\.\d{3})+(?:,\d+)?$`)
	reCommaGrouped = regexp.MustCompile(`^-?\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
)

// ParseAmount parses a spreadsheet money cell into a decimal. Exports out of
// the ERP mix "1.234.567,89", "1,234,567.89" and plain "1234567.89" styles.
func ParseAmount(raw string) (decimal.Decimal, error) {
	compact := strings.TrimSpace(raw)
	compact = strings.ReplaceAll(compact, " ", "")
	compact = strings.ReplaceAll(compact, " ", "")
	compact = strings.TrimPrefix(compact, "$")
	if compact == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	switch {
	case reDotGrouped.MatchString(compact):
		compact = strings.ReplaceAll(compact, ".", "")
		compact = strings.ReplaceAll(compact, ",", ".")
	case reCommaGrouped.MatchString(compact):
		compact = strings.ReplaceAll(compact, ",", "")
	case strings.Contains(compact, ",") && !strings.Contains(compact, "."):
		compact = strings.ReplaceAll(compact, ",", ".")
	}

	return decimal.NewFromString(compact)
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01-02-06", // excelize default serial-date rendering
}

// ParseDate parses a spreadsheet date cell, dropping any time component.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date: %q", raw)
}
