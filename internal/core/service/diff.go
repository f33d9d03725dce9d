package service

import (
	"sort"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// LineQuantity is a variant and a non-negative unit count.
type LineQuantity struct {
	VariantID string
	Quantity  int
}

// DiffResult lists the units to take from stock and the units to put back.
type DiffResult struct {
	Deduct  []LineQuantity
	Restock []LineQuantity
}

func (d DiffResult) Empty() bool {
	return len(d.Deduct) == 0 && len(d.Restock) == 0
}

// Coalesce sums quantities per variant. An order may list a variant on
// several lines.
func Coalesce(lines []LineQuantity) map[string]int {
	totals := make(map[string]int, len(lines))
	for _, l := range lines {
		totals[l.VariantID] += l.Quantity
	}
	return totals
}

// Diff computes the minimal per-variant stock movements that turn oldLines
// into newLines. Results are sorted by variant id.
func Diff(oldLines, newLines []LineQuantity) DiffResult {
	oldQty := Coalesce(oldLines)
	newQty := Coalesce(newLines)

	var result DiffResult
	for _, id := range unionKeys(oldQty, newQty) {
		delta := newQty[id] - oldQty[id]
		switch {
		case delta > 0:
			result.Deduct = append(result.Deduct, LineQuantity{VariantID: id, Quantity: delta})
		case delta < 0:
			result.Restock = append(result.Restock, LineQuantity{VariantID: id, Quantity: -delta})
		}
	}
	return result
}

// LineQuantities projects order lines onto variant quantities.
func LineQuantities(lines []domain.OrderLine) []LineQuantity {
	out := make([]LineQuantity, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineQuantity{VariantID: l.VariantID, Quantity: l.Quantity})
	}
	return out
}

func unionKeys(a, b map[string]int) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for _, m := range []map[string]int{a, b} {
		for k := range m {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func sortLines(lines []LineQuantity) {
	sort.Slice(lines, func(i, j int) bool { return lines[i].VariantID < lines[j].VariantID })
}
