package storage

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

const mysqlErrDuplicateEntry = 1062

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS variants (
		id VARCHAR(64) PRIMARY KEY,
		product_id VARCHAR(64) NOT NULL DEFAULT '',
		sku VARCHAR(128) NOT NULL DEFAULT '',
		track_inventory BOOLEAN NOT NULL DEFAULT TRUE,
		stock_quantity INT NOT NULL DEFAULT 0,
		cost_price DECIMAL(14,2) NOT NULL DEFAULT 0,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stock_transactions (
		id VARCHAR(36) PRIMARY KEY,
		variant_id VARCHAR(64) NOT NULL,
		quantity INT NOT NULL,
		kind VARCHAR(16) NOT NULL,
		order_id VARCHAR(64) NULL,
		note TEXT NOT NULL,
		idempotency_key VARCHAR(191) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		UNIQUE KEY uq_stock_transactions_key (idempotency_key),
		KEY idx_stock_transactions_variant (variant_id, created_at),
		KEY idx_stock_transactions_order (order_id)
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(64) PRIMARY KEY,
		status VARCHAR(16) NOT NULL,
		shipping_company_id VARCHAR(64) NULL,
		shipping_cost DECIMAL(14,2) NOT NULL DEFAULT 0,
		discount DECIMAL(14,2) NOT NULL DEFAULT 0,
		version INT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		order_id VARCHAR(64) NOT NULL,
		line_no INT NOT NULL,
		variant_id VARCHAR(64) NOT NULL,
		quantity INT NOT NULL,
		unit_price DECIMAL(14,2) NOT NULL,
		unit_cost DECIMAL(14,2) NOT NULL,
		PRIMARY KEY (order_id, line_no)
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		idem_key VARCHAR(191) PRIMARY KEY,
		expires_at DATETIME(6) NOT NULL
	)`,
}

// NewMySQLAdapter expects a *sql.DB opened with the "mysql" driver and
// parseTime=true.
func NewMySQLAdapter(db *sql.DB) *SQLAdapter {
	return newSQLAdapter(db, dialect{
		name:        "mysql",
		isDuplicate: isMySQLDuplicate,
		schema:      mysqlSchema,
	})
}

func isMySQLDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry
}
