package service

import (
	"fmt"
	"sort"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

const (
	NoteOrderCreated = "Order Created"
	NoteOrderEdited  = "Order Edited"
	NoteReverted     = "Reverted"
)

// Reconciliation is the merged stock movement of one order commit: at most
// one signed delta per variant.
type Reconciliation struct {
	Lines  DiffResult
	Status DiffResult
	Effect StatusEffect
	Net    map[string]int
}

// Reconcile runs the edit pipeline: line diff against the committed
// baseline, status side effect against the post-edit lines, then a per-variant
// merge. The line diff is skipped when the baseline is Returned because its
// units are already back in stock.
func Reconcile(baseline domain.Order, newLines []domain.OrderLine, newStatus domain.OrderStatus) Reconciliation {
	var r Reconciliation
	if baseline.HoldsStock() {
		r.Lines = Diff(LineQuantities(baseline.Lines), LineQuantities(newLines))
	}
	r.Effect = StatusTransition(baseline.Status, newStatus)
	r.Status = StatusSideEffect(baseline.Status, newStatus, LineQuantities(newLines))

	r.Net = make(map[string]int)
	for _, part := range []DiffResult{r.Lines, r.Status} {
		for _, d := range part.Deduct {
			r.Net[d.VariantID] -= d.Quantity
		}
		for _, d := range part.Restock {
			r.Net[d.VariantID] += d.Quantity
		}
	}
	for id, qty := range r.Net {
		if qty == 0 {
			delete(r.Net, id)
		}
	}
	return r
}

// Deductions returns the merged units to take from stock, sorted by variant.
func (r Reconciliation) Deductions() []LineQuantity {
	var out []LineQuantity
	for id, qty := range r.Net {
		if qty < 0 {
			out = append(out, LineQuantity{VariantID: id, Quantity: -qty})
		}
	}
	sortLines(out)
	return out
}

func (r Reconciliation) VariantIDs() []string {
	ids := make([]string, 0, len(r.Net))
	for id := range r.Net {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Deltas turns the merged movement into ledger deltas keyed by the order, its
// baseline version and the commit attempt. Two attempts never share a key, so
// a later commit from the same baseline is never mistaken for an earlier one.
// editNote labels movements that come from line changes alone.
func (r Reconciliation) Deltas(orderID string, baseVersion int, commitID, editNote string) []Delta {
	deltas := make([]Delta, 0, len(r.Net))
	for _, id := range r.VariantIDs() {
		qty := r.Net[id]
		kind, note := r.Effect.Kind(), r.Effect.Note()
		if r.Effect == StatusEffectNone {
			kind, note = domain.TransactionKindSale, editNote
			if qty > 0 {
				kind = domain.TransactionKindRestock
			}
		}
		deltas = append(deltas, Delta{
			VariantID:      id,
			Quantity:       qty,
			Kind:           kind,
			OrderID:        orderID,
			Note:           note,
			IdempotencyKey: OrderDeltaKey(orderID, baseVersion, commitID, id),
		})
	}
	return deltas
}

// OrderDeltaKey identifies the stock movement of one variant in one order commit.
func OrderDeltaKey(orderID string, baseVersion int, commitID, variantID string) string {
	return fmt.Sprintf("order:%s:v%d:%s:%s", orderID, baseVersion, commitID, variantID)
}

// RevertKey is the key of the entry that undoes the entry booked under key.
func RevertKey(key string) string {
	return key + ":revert"
}
