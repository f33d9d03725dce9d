package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

func newInventoryFixture(t *testing.T, variants ...domain.Variant) (*InventoryService, *mockStore, *mockLog) {
	store := newMockStore(variants...)
	log := newMockLog()
	logger := zaptest.NewLogger(t)
	ledger := NewStockLedger(store, log, newMockGuard(), logger)
	return NewInventoryService(ledger, store, store, log, logger), store, log
}

func TestSaveVariant_CreateBooksInitialStock(t *testing.T) {
	svc, store, log := newInventoryFixture(t)

	v, err := svc.SaveVariant(context.Background(), domain.Variant{
		ID:             "v1",
		SKU:            "TEE-M",
		TrackInventory: true,
		StockQuantity:  12,
		CostPrice:      decimal.RequireFromString("3.20"),
	})
	require.NoError(t, err)
	assert.Equal(t, 12, v.StockQuantity)
	assert.Equal(t, 12, store.stock("v1"))

	txs := log.all()
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionKindRestock, txs[0].Kind)
	assert.Equal(t, NoteInitialStock, txs[0].Note)
	assert.Equal(t, "initial:v1", txs[0].IdempotencyKey)
}

func TestSaveVariant_UpdateKeepsStock(t *testing.T) {
	svc, store, log := newInventoryFixture(t, tracked("v1", 4))

	v, err := svc.SaveVariant(context.Background(), domain.Variant{
		ID:             "v1",
		TrackInventory: false,
		StockQuantity:  100,
		CostPrice:      decimal.NewFromInt(2),
	})
	require.NoError(t, err)
	assert.False(t, v.TrackInventory)
	assert.Equal(t, 4, v.StockQuantity)
	assert.Equal(t, 4, store.stock("v1"))
	assert.Empty(t, log.all())
}

func TestSaveVariant_Invalid(t *testing.T) {
	svc, _, _ := newInventoryFixture(t)
	var invalid *domain.InvalidTransitionInputError

	_, err := svc.SaveVariant(context.Background(), domain.Variant{ID: " "})
	assert.True(t, errors.As(err, &invalid))

	_, err = svc.SaveVariant(context.Background(), domain.Variant{ID: "v1", TrackInventory: true, StockQuantity: -1})
	assert.True(t, errors.As(err, &invalid))

	_, err = svc.SaveVariant(context.Background(), domain.Variant{ID: "v1", CostPrice: decimal.NewFromInt(-1)})
	assert.True(t, errors.As(err, &invalid))
}

func TestRestock(t *testing.T) {
	svc, store, _ := newInventoryFixture(t, tracked("v1", 1))

	tx, err := svc.Restock(context.Background(), "v1", 9, "PO-77")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionKindRestock, tx.Kind)
	assert.Equal(t, "PO-77", tx.Note)
	assert.Equal(t, 10, store.stock("v1"))

	var invalid *domain.InvalidTransitionInputError
	_, err = svc.Restock(context.Background(), "v1", 0, "")
	assert.True(t, errors.As(err, &invalid))

	_, err = svc.Restock(context.Background(), "ghost", 1, "")
	assert.ErrorIs(t, err, domain.ErrVariantNotFound)
}

func TestAdjust(t *testing.T) {
	svc, store, log := newInventoryFixture(t, tracked("v1", 2), untracked("v2", 0))

	_, err := svc.Adjust(context.Background(), "v1", -5, "damaged")
	var ise *domain.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, 2, store.stock("v1"))

	tx, err := svc.Adjust(context.Background(), "v1", -2, "damaged")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionKindAdjustment, tx.Kind)
	assert.Equal(t, 0, store.stock("v1"))

	_, err = svc.Adjust(context.Background(), "v2", -5, "count")
	require.NoError(t, err)
	assert.Equal(t, -5, store.stock("v2"))

	assert.Equal(t, -2, log.sum("v1"))
}

func TestHistory(t *testing.T) {
	svc, _, _ := newInventoryFixture(t, tracked("v1", 0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Restock(ctx, "v1", i+1, "")
		require.NoError(t, err)
	}

	txs, err := svc.History(ctx, "v1", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, 3, txs[0].Quantity)

	txs, err = svc.History(ctx, "v1", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 3)
}
