package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
)

type backend interface {
	port.StockStore
	port.TransactionLog
	port.OrderRepository
	port.VariantRepository
	port.IdempotencyRepository
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	ledger := service.NewStockLedger(store, store, store, nil)
	orders := service.NewOrderService(ledger, store, store, store, nil)
	inventory := service.NewInventoryService(ledger, store, store, store, nil)

	variantID := "stress-" + uuid.New().String()[:8]
	if _, err := inventory.SaveVariant(ctx, domain.Variant{
		ID:             variantID,
		SKU:            variantID,
		TrackInventory: true,
		StockQuantity:  initialStock,
		CostPrice:      decimal.NewFromInt(5),
	}); err != nil {
		log.Fatalf("failed to create variant: %v", err)
	}

	// Counters
	var successCount, soldOutCount, failCount atomic.Int32
	var mu sync.Mutex
	var placed []string

	// Spawn concurrent orders
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			order, err := orders.CreateOrder(ctx, service.NewOrder{
				RequestID: fmt.Sprintf("%s-req-%d", variantID, n),
				Lines: []domain.OrderLine{{
					VariantID: variantID,
					Quantity:  1,
					UnitPrice: decimal.NewFromInt(10),
					UnitCost:  decimal.NewFromInt(5),
				}},
			})
			var ise *domain.InsufficientStockError
			switch {
			case err == nil:
				successCount.Add(1)
				mu.Lock()
				placed = append(placed, order.ID)
				mu.Unlock()
			case errors.As(err, &ise), errors.Is(err, domain.ErrStockConflict):
				soldOutCount.Add(1)
			default:
				failCount.Add(1)
				log.Printf("order %d failed: %v", n, err)
			}
		}(i)
	}
	wg.Wait()
	placeElapsed := time.Since(start)

	stockAfterSale := mustStock(ctx, inventory, variantID)

	// Return every placed order concurrently
	start = time.Now()
	var returnFailures atomic.Int32
	for _, id := range placed {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			returned := domain.OrderStatusReturned
			if _, err := orders.UpdateOrder(ctx, service.OrderUpdate{OrderID: orderID, Status: &returned}); err != nil {
				returnFailures.Add(1)
				log.Printf("return of %s failed: %v", orderID, err)
			}
		}(id)
	}
	wg.Wait()
	returnElapsed := time.Since(start)

	finalStock := mustStock(ctx, inventory, variantID)
	history, err := inventory.History(ctx, variantID, 0)
	if err != nil {
		log.Fatalf("failed to read history: %v", err)
	}
	logSum := domain.SumQuantities(history)

	// Results
	success := successCount.Load()
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", cfg.Store.Driver)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOutCount.Load())
	fmt.Printf("Other Failures:   %d\n", failCount.Load())
	fmt.Printf("Place Duration:   %v\n", placeElapsed)
	fmt.Printf("Return Duration:  %v\n", returnElapsed)
	fmt.Printf("Return Failures:  %d\n", returnFailures.Load())
	fmt.Println("==========================================")

	// Assertions
	check(success == initialStock,
		fmt.Sprintf("exactly %d orders succeeded", initialStock),
		fmt.Sprintf("expected %d successful orders, got %d", initialStock, success))
	check(stockAfterSale == 0,
		"stock depleted to 0",
		fmt.Sprintf("expected stock 0 after sale, got %d", stockAfterSale))
	check(finalStock == initialStock,
		"returns restored the opening stock",
		fmt.Sprintf("expected stock %d after returns, got %d", initialStock, finalStock))
	check(finalStock == logSum,
		"transaction log accounts for the stock",
		fmt.Sprintf("log sums to %d, stock is %d", logSum, finalStock))
}

func check(ok bool, pass, fail string) {
	if ok {
		fmt.Println("PASS: " + pass)
		return
	}
	fmt.Println("FAIL: " + fail)
}

func mustStock(ctx context.Context, inventory *service.InventoryService, variantID string) int {
	v, err := inventory.GetVariant(ctx, variantID)
	if err != nil {
		log.Fatalf("failed to read variant: %v", err)
	}
	return v.StockQuantity
}

func openStore(ctx context.Context, cfg *config.Config) (backend, func()) {
	var driverName, dsn string
	switch cfg.Store.Driver {
	case config.DriverMySQL:
		driverName, dsn = "mysql", cfg.Store.MySQLDSN
	case config.DriverPostgres:
		driverName, dsn = "pgx", cfg.Store.PostgresDSN
	default:
		return storage.NewMemoryAdapter(cfg.Redis.IdempotencyTTL), func() {}
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		log.Fatalf("failed to open %s: %v", cfg.Store.Driver, err)
	}
	db.SetMaxOpenConns(cfg.Store.MaxOpenConns)
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping %s: %v", cfg.Store.Driver, err)
	}

	var adapter *storage.SQLAdapter
	if cfg.Store.Driver == config.DriverMySQL {
		adapter = storage.NewMySQLAdapter(db)
	} else {
		adapter = storage.NewPostgresAdapter(db)
	}
	if err := adapter.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}
	return adapter, func() { db.Close() }
}
