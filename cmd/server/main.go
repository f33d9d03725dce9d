package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
)

// backend is what a store driver provides to the services.
type backend interface {
	port.StockStore
	port.TransactionLog
	port.OrderRepository
	port.VariantRepository
	port.IdempotencyRepository
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	fee, err := cfg.Fee()
	if err != nil {
		logger.Fatal("invalid handling fee", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	store, db, err := openStore(ctx, cfg.Store, cfg.Redis.IdempotencyTTL, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}

	// Initialize Redis
	var (
		rdb   *redis.Client
		guard port.IdempotencyRepository = store
	)
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: cfg.Redis.PoolSize,
		})
		redisAdapter := storage.NewRedisAdapter(rdb, cfg.Redis.IdempotencyTTL)
		if err := redisAdapter.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, idempotency claims stay in the store", zap.Error(err))
			rdb.Close()
			rdb = nil
		} else {
			guard = redisAdapter
			logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
		}
	}

	// Initialize services
	ledger := service.NewStockLedger(store, store, guard, logger)
	orderService := service.NewOrderService(ledger, store, store, guard, logger)
	inventoryService := service.NewInventoryService(ledger, store, store, store, logger)

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterLedgerServiceServer(grpcServer, handler.NewGRPCHandler(orderService, inventoryService, fee, logger))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.LedgerServiceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("addr", cfg.Server.GRPCAddr), zap.Error(err))
	}

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.Server.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	mux := http.NewServeMux()
	handler.NewHTTPHandler(orderService, inventoryService, fee, logger).Register(mux)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	logger.Info("connections closed")
}

// openStore connects the configured SQL driver. Only the memory driver runs
// without a database; a configured database that cannot be reached is an error.
func openStore(ctx context.Context, cfg config.StoreConfig, claimTTL time.Duration, logger *zap.Logger) (backend, *sql.DB, error) {
	var (
		driverName string
		dsn        string
	)
	switch cfg.Driver {
	case config.DriverMySQL:
		driverName, dsn = "mysql", cfg.MySQLDSN
	case config.DriverPostgres:
		driverName, dsn = "pgx", cfg.PostgresDSN
	default:
		logger.Warn("running with the in-memory store; data is lost on restart")
		return storage.NewMemoryAdapter(claimTTL), nil, nil
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	var adapter *storage.SQLAdapter
	if cfg.Driver == config.DriverMySQL {
		adapter = storage.NewMySQLAdapter(db).WithClaimTTL(claimTTL)
	} else {
		adapter = storage.NewPostgresAdapter(db).WithClaimTTL(claimTTL)
	}
	if err := adapter.EnsureSchema(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ensure %s schema: %w", cfg.Driver, err)
	}

	logger.Info("connected to database", zap.String("driver", adapter.Driver()))
	return adapter, db, nil
}
