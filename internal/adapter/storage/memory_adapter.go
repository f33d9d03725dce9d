package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// MemoryAdapter keeps variants, the transaction log, orders and idempotency
// keys in process memory. It serves development runs without a database and
// tests. A single mutex makes every method atomic.
type MemoryAdapter struct {
	mu       sync.Mutex
	variants map[string]domain.Variant
	txs      []domain.StockTransaction
	txKeys   map[string]struct{}
	orders   map[string]domain.Order
	claims   map[string]time.Time
	claimTTL time.Duration
	now      func() time.Time
}

func NewMemoryAdapter(claimTTL time.Duration) *MemoryAdapter {
	return &MemoryAdapter{
		variants: make(map[string]domain.Variant),
		txKeys:   make(map[string]struct{}),
		orders:   make(map[string]domain.Order),
		claims:   make(map[string]time.Time),
		claimTTL: claimTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryAdapter) GetVariants(ctx context.Context, variantIDs []string) (map[string]domain.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]domain.Variant, len(variantIDs))
	for _, id := range variantIDs {
		if v, ok := m.variants[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (m *MemoryAdapter) AdjustStock(ctx context.Context, variantID string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustLocked(variantID, delta)
}

func (m *MemoryAdapter) adjustLocked(variantID string, delta int) error {
	v, ok := m.variants[variantID]
	if !ok {
		return domain.ErrVariantNotFound
	}
	if v.TrackInventory && v.StockQuantity+delta < 0 {
		return domain.ErrStockConflict
	}
	v.StockQuantity += delta
	v.UpdatedAt = m.now()
	m.variants[variantID] = v
	return nil
}

func (m *MemoryAdapter) Append(ctx context.Context, tx domain.StockTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *MemoryAdapter) appendLocked(tx domain.StockTransaction) error {
	if _, ok := m.txKeys[tx.IdempotencyKey]; ok {
		return domain.ErrDuplicateTransaction
	}
	m.txKeys[tx.IdempotencyKey] = struct{}{}
	m.txs = append(m.txs, tx)
	return nil
}

func (m *MemoryAdapter) ApplyStockChange(ctx context.Context, tx domain.StockTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.txKeys[tx.IdempotencyKey]; ok {
		return domain.ErrDuplicateTransaction
	}
	if err := m.adjustLocked(tx.VariantID, tx.Quantity); err != nil {
		return err
	}
	return m.appendLocked(tx)
}

func (m *MemoryAdapter) ListByVariant(ctx context.Context, variantID string, limit int) ([]domain.StockTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.StockTransaction
	for i := len(m.txs) - 1; i >= 0; i-- {
		if m.txs[i].VariantID != variantID {
			continue
		}
		out = append(out, m.txs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryAdapter) ListByOrder(ctx context.Context, orderID string) ([]domain.StockTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.StockTransaction
	for _, tx := range m.txs {
		if tx.OrderID == orderID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *MemoryAdapter) CreateVariant(ctx context.Context, v domain.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.variants[v.ID]; ok {
		return domain.ErrVariantExists
	}
	m.variants[v.ID] = v
	return nil
}

func (m *MemoryAdapter) UpdateVariantSettings(ctx context.Context, v domain.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.variants[v.ID]
	if !ok {
		return domain.ErrVariantNotFound
	}
	current.ProductID = v.ProductID
	current.SKU = v.SKU
	current.TrackInventory = v.TrackInventory
	current.CostPrice = v.CostPrice
	current.UpdatedAt = v.UpdatedAt
	m.variants[v.ID] = current
	return nil
}

func (m *MemoryAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.ID]; ok {
		return domain.ErrOrderExists
	}
	m.orders[order.ID] = copyOrder(order)
	return nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	out := copyOrder(order)
	return &out, nil
}

func (m *MemoryAdapter) UpdateOrder(ctx context.Context, order domain.Order, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrOptimisticLock
	}
	m.orders[order.ID] = copyOrder(order)
	return nil
}

func (m *MemoryAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expires, ok := m.claims[key]; ok && (m.claimTTL <= 0 || now.Before(expires)) {
		return false, nil
	}
	m.claims[key] = now.Add(m.claimTTL)
	return true, nil
}

func (m *MemoryAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, key)
	return nil
}

// Transactions returns a copy of the whole log in append order.
func (m *MemoryAdapter) Transactions() []domain.StockTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.StockTransaction, len(m.txs))
	copy(out, m.txs)
	return out
}

func copyOrder(o domain.Order) domain.Order {
	lines := make([]domain.OrderLine, len(o.Lines))
	copy(lines, o.Lines)
	o.Lines = lines
	return o
}
