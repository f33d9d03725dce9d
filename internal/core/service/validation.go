package service

import (
	"sort"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// StockRequirement is one deduction to check against a variant's current stock.
type StockRequirement struct {
	VariantID      string
	Requested      int
	TrackInventory bool
	CurrentStock   int
}

// Validate checks that every tracked variant can supply what is requested.
// Requirements naming the same variant are summed first. It has no side
// effects; CurrentStock must come from a fresh store read.
func Validate(items []StockRequirement) error {
	merged := make(map[string]StockRequirement, len(items))
	order := make([]string, 0, len(items))

	for _, item := range items {
		if item.VariantID == "" {
			return domain.NewInvalidInput("variant_id", "is required")
		}
		if item.Requested < 0 {
			return domain.NewInvalidInputf("quantity", "requested quantity %d for variant %s is negative", item.Requested, item.VariantID)
		}

		existing, ok := merged[item.VariantID]
		if !ok {
			order = append(order, item.VariantID)
			merged[item.VariantID] = item
			continue
		}
		existing.Requested += item.Requested
		merged[item.VariantID] = existing
	}

	sort.Strings(order)
	for _, id := range order {
		item := merged[id]
		if !item.TrackInventory {
			continue
		}
		if item.CurrentStock < item.Requested {
			return &domain.InsufficientStockError{
				VariantID: item.VariantID,
				Available: item.CurrentStock,
				Requested: item.Requested,
			}
		}
	}

	return nil
}

// requirementsFor pairs deductions with freshly read variant state.
func requirementsFor(deduct []LineQuantity, variants map[string]domain.Variant) ([]StockRequirement, error) {
	reqs := make([]StockRequirement, 0, len(deduct))
	for _, d := range deduct {
		v, ok := variants[d.VariantID]
		if !ok {
			return nil, domain.NewInvalidInputf("variant_id", "unknown variant %s", d.VariantID)
		}
		reqs = append(reqs, StockRequirement{
			VariantID:      d.VariantID,
			Requested:      d.Quantity,
			TrackInventory: v.TrackInventory,
			CurrentStock:   v.StockQuantity,
		})
	}
	return reqs, nil
}
