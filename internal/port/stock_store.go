package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type StockStore interface {
	// GetVariants reads the current state of the given variants straight from
	// the store. Unknown ids are absent from the result.
	GetVariants(ctx context.Context, variantIDs []string) (map[string]domain.Variant, error)

	// AdjustStock atomically adds delta to the variant's quantity. A tracked
	// variant that would drop below zero is left untouched and
	// domain.ErrStockConflict is returned.
	AdjustStock(ctx context.Context, variantID string, delta int) error
}

type TransactionLog interface {
	// Append records tx. Returns domain.ErrDuplicateTransaction when a
	// transaction with the same idempotency key already exists.
	Append(ctx context.Context, tx domain.StockTransaction) error

	// ListByVariant returns the newest transactions first.
	ListByVariant(ctx context.Context, variantID string, limit int) ([]domain.StockTransaction, error)

	ListByOrder(ctx context.Context, orderID string) ([]domain.StockTransaction, error)
}

// AtomicLedger is implemented by stores that can apply the stock update and
// the log append in a single transaction.
type AtomicLedger interface {
	// ApplyStockChange adjusts the variant by tx.Quantity and appends tx as
	// one unit. Returns domain.ErrDuplicateTransaction without changing
	// anything when tx.IdempotencyKey was recorded before.
	ApplyStockChange(ctx context.Context, tx domain.StockTransaction) error
}
