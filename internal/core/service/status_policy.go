package service

import "github.com/rl1809/stock-ledger/internal/core/domain"

const (
	NoteStatusReturned   = "Status Change: Returned"
	NoteStatusUnreturned = "Status Change: Un-returned"
)

type StatusEffect int

const (
	StatusEffectNone StatusEffect = iota
	StatusEffectRestock
	StatusEffectDeduct
)

func (e StatusEffect) String() string {
	switch e {
	case StatusEffectNone:
		return "none"
	case StatusEffectRestock:
		return "restock"
	case StatusEffectDeduct:
		return "deduct"
	default:
		return "unknown"
	}
}

// Kind is the transaction kind booked for the effect.
func (e StatusEffect) Kind() domain.TransactionKind {
	if e == StatusEffectDeduct {
		return domain.TransactionKindAdjustment
	}
	return domain.TransactionKindReturn
}

func (e StatusEffect) Note() string {
	switch e {
	case StatusEffectRestock:
		return NoteStatusReturned
	case StatusEffectDeduct:
		return NoteStatusUnreturned
	default:
		return ""
	}
}

// StatusTransition decides whether moving from old to new restocks or
// deducts the order's current lines in full. Any status may follow any
// other; only entering or leaving Returned touches stock.
func StatusTransition(old, new domain.OrderStatus) StatusEffect {
	wasReturned := old == domain.OrderStatusReturned
	isReturned := new == domain.OrderStatusReturned

	switch {
	case !wasReturned && isReturned:
		return StatusEffectRestock
	case wasReturned && !isReturned:
		return StatusEffectDeduct
	default:
		return StatusEffectNone
	}
}

// StatusSideEffect returns the full restock or deduction of lines that the
// transition requires, or an empty result.
func StatusSideEffect(old, new domain.OrderStatus, lines []LineQuantity) DiffResult {
	effect := StatusTransition(old, new)
	if effect == StatusEffectNone {
		return DiffResult{}
	}

	var full []LineQuantity
	for id, qty := range Coalesce(lines) {
		if qty > 0 {
			full = append(full, LineQuantity{VariantID: id, Quantity: qty})
		}
	}
	sortLines(full)

	if effect == StatusEffectRestock {
		return DiffResult{Restock: full}
	}
	return DiffResult{Deduct: full}
}

// CheckShippingPrecondition enforces that a shipped order names its carrier.
func CheckShippingPrecondition(status domain.OrderStatus, shippingCompanyID string) error {
	if status == domain.OrderStatusShipped && shippingCompanyID == "" {
		return domain.NewInvalidInput("shipping_company_id", "is required to mark an order as shipped")
	}
	return nil
}
