package service

import (
	"context"
	"errors"
	"sync"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

var errInjected = errors.New("injected failure")

// mockStore is a StockStore without the atomic path, so the ledger falls
// back to store-then-log writes.
type mockStore struct {
	mu       sync.Mutex
	variants map[string]domain.Variant
	// failAdjust fails AdjustStock for a variant once per entry.
	failAdjust map[string]int
	adjusts    int
}

func newMockStore(variants ...domain.Variant) *mockStore {
	m := &mockStore{
		variants:   make(map[string]domain.Variant),
		failAdjust: make(map[string]int),
	}
	for _, v := range variants {
		m.variants[v.ID] = v
	}
	return m
}

func (m *mockStore) GetVariants(ctx context.Context, ids []string) (map[string]domain.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]domain.Variant)
	for _, id := range ids {
		if v, ok := m.variants[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (m *mockStore) AdjustStock(ctx context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.adjusts++
	if m.failAdjust[id] > 0 {
		m.failAdjust[id]--
		return errInjected
	}
	v, ok := m.variants[id]
	if !ok {
		return domain.ErrVariantNotFound
	}
	if v.TrackInventory && v.StockQuantity+delta < 0 {
		return domain.ErrStockConflict
	}
	v.StockQuantity += delta
	m.variants[id] = v
	return nil
}

func (m *mockStore) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.variants[id].StockQuantity
}

func (m *mockStore) CreateVariant(ctx context.Context, v domain.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.variants[v.ID]; ok {
		return domain.ErrVariantExists
	}
	m.variants[v.ID] = v
	return nil
}

func (m *mockStore) UpdateVariantSettings(ctx context.Context, v domain.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.variants[v.ID]
	if !ok {
		return domain.ErrVariantNotFound
	}
	v.StockQuantity = current.StockQuantity
	m.variants[v.ID] = v
	return nil
}

// atomicStore adds the single-transaction path on top of mockStore and
// keeps its own log.
type atomicStore struct {
	*mockStore
	log *mockLog
}

func (a *atomicStore) ApplyStockChange(ctx context.Context, tx domain.StockTransaction) error {
	a.log.mu.Lock()
	_, dup := a.log.keys[tx.IdempotencyKey]
	a.log.mu.Unlock()
	if dup {
		return domain.ErrDuplicateTransaction
	}
	if err := a.AdjustStock(ctx, tx.VariantID, tx.Quantity); err != nil {
		return err
	}
	return a.log.Append(ctx, tx)
}

type mockLog struct {
	mu   sync.Mutex
	txs  []domain.StockTransaction
	keys map[string]struct{}
	// failAppends fails the next n appends.
	failAppends int
}

func newMockLog() *mockLog {
	return &mockLog{keys: make(map[string]struct{})}
}

func (m *mockLog) Append(ctx context.Context, tx domain.StockTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAppends > 0 {
		m.failAppends--
		return errInjected
	}
	if _, ok := m.keys[tx.IdempotencyKey]; ok {
		return domain.ErrDuplicateTransaction
	}
	m.keys[tx.IdempotencyKey] = struct{}{}
	m.txs = append(m.txs, tx)
	return nil
}

func (m *mockLog) ListByVariant(ctx context.Context, id string, limit int) ([]domain.StockTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.StockTransaction
	for i := len(m.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.txs[i].VariantID == id {
			out = append(out, m.txs[i])
		}
	}
	return out, nil
}

func (m *mockLog) ListByOrder(ctx context.Context, orderID string) ([]domain.StockTransaction, error) {
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

func (m *mockLog) sum(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, tx := range m.txs {
		if tx.VariantID == id {
			total += tx.Quantity
		}
	}
	return total
}

func (m *mockLog) all() []domain.StockTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.StockTransaction, len(m.txs))
	copy(out, m.txs)
	return out
}

type mockGuard struct {
	mu       sync.Mutex
	keys     map[string]bool
	released []string
}

func newMockGuard() *mockGuard {
	return &mockGuard{keys: make(map[string]bool)}
}

func (m *mockGuard) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockGuard) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.keys, key)
	m.released = append(m.released, key)
	return nil
}

type mockOrders struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	// failUpdates fails the next n UpdateOrder calls with err.
	failUpdates int
	failErr     error
	// beforeWrite runs once at the start of the next CreateOrder or
	// UpdateOrder call.
	beforeWrite func()
}

func newMockOrders() *mockOrders {
	return &mockOrders{orders: make(map[string]domain.Order)}
}

func (m *mockOrders) runBeforeWrite() {
	m.mu.Lock()
	hook := m.beforeWrite
	m.beforeWrite = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (m *mockOrders) CreateOrder(ctx context.Context, o domain.Order) error {
	m.runBeforeWrite()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[o.ID]; ok {
		return domain.ErrOrderExists
	}
	o.Lines = cloneLines(o.Lines)
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrders) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o.Lines = cloneLines(o.Lines)
	return &o, nil
}

func (m *mockOrders) UpdateOrder(ctx context.Context, o domain.Order, expectedVersion int) error {
	m.runBeforeWrite()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpdates > 0 {
		m.failUpdates--
		return m.failErr
	}
	current, ok := m.orders[o.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrOptimisticLock
	}
	o.Lines = cloneLines(o.Lines)
	m.orders[o.ID] = o
	return nil
}

// held sums the units of variantID that committed orders keep out of stock.
func (m *mockOrders) held(variantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, o := range m.orders {
		if !o.HoldsStock() {
			continue
		}
		for _, l := range o.Lines {
			if l.VariantID == variantID {
				total += l.Quantity
			}
		}
	}
	return total
}
