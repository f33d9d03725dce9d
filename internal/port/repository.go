package port

import (
	"context"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists a new order snapshot with its lines.
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder returns domain.ErrOrderNotFound for unknown ids.
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// UpdateOrder replaces the snapshot if the stored version equals
	// expectedVersion, otherwise returns domain.ErrOptimisticLock.
	UpdateOrder(ctx context.Context, order domain.Order, expectedVersion int) error
}

type VariantRepository interface {
	// CreateVariant inserts a variant with zero stock.
	CreateVariant(ctx context.Context, variant domain.Variant) error

	// UpdateVariantSettings edits the tracking flag and cost, never the quantity.
	UpdateVariantSettings(ctx context.Context, variant domain.Variant) error
}

type IdempotencyRepository interface {
	// SetIdempotency claims key, returns false if it is already claimed
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a key claimed by this process so the operation can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
