package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Variant is a sellable unit of a product with its own stock counter.
type Variant struct {
	ID             string
	ProductID      string
	SKU            string
	TrackInventory bool
	StockQuantity  int // may be negative when TrackInventory is false
	CostPrice      decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CanSupply reports whether the variant can give up qty units.
func (v Variant) CanSupply(qty int) bool {
	if !v.TrackInventory {
		return true
	}
	return v.StockQuantity >= qty
}
