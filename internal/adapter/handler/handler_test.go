package handler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

type testServices struct {
	store     *storage.MemoryAdapter
	orders    *service.OrderService
	inventory *service.InventoryService
}

func newTestServices(t *testing.T) testServices {
	logger := zaptest.NewLogger(t)
	store := storage.NewMemoryAdapter(time.Minute)
	ledger := service.NewStockLedger(store, store, store, logger)
	s := testServices{
		store:     store,
		orders:    service.NewOrderService(ledger, store, store, store, logger),
		inventory: service.NewInventoryService(ledger, store, store, store, logger),
	}

	_, err := s.inventory.SaveVariant(context.Background(), domain.Variant{
		ID:             "v1",
		SKU:            "TEE-M",
		TrackInventory: true,
		StockQuantity:  10,
		CostPrice:      decimal.NewFromInt(4),
	})
	require.NoError(t, err)
	return s
}

func (s testServices) stock(t *testing.T, id string) int {
	v, err := s.inventory.GetVariant(context.Background(), id)
	require.NoError(t, err)
	return v.StockQuantity
}
