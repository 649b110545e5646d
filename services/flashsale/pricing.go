package flashsale

import (
	"fmt"
	"math"

	"github.com/gosimple/slug"
)

// SelectionTotals sums original and sale prices over the selected items.
// Unknown ids are ignored.
func SelectionTotals(items []Item, selectedIDs []string) Totals {
	selected := make(map[string]struct{}, len(selectedIDs))
	for _, id := range selectedIDs {
		selected[id] = struct{}{}
	}

	var t Totals
	for _, item := range items {
		if _, ok := selected[item.ID]; !ok {
			continue
		}
		t.OriginalTotal += item.OriginalPriceCents
		t.SaleTotal += item.SalePriceCents
	}
	t.Savings = t.OriginalTotal - t.SaleTotal
	return t
}

// DiscountPercentage returns the stored value for percentage discounts and
// the rounded share of the original price otherwise. A zero original price
// yields 0.
func DiscountPercentage(s *Sale) int64 {
	if s.DiscountType == DiscountTypePercentage {
		return s.DiscountValue
	}
	if s.OriginalPriceCents == 0 {
		return 0
	}
	return int64(math.Round(float64(s.DiscountValue) / float64(s.OriginalPriceCents) * 100))
}

// ShareSlug is the public path segment of a shareable sale, empty otherwise.
func ShareSlug(s *Sale) string {
	if !s.IsShareable {
		return ""
	}
	base := slug.Make(s.Title)
	if base == "" {
		return s.ID
	}
	return fmt.Sprintf("%s-%s", base, s.ID)
}
