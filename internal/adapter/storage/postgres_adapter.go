package storage

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const pgUniqueViolation = "23505"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS variants (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL DEFAULT '',
		sku TEXT NOT NULL DEFAULT '',
		track_inventory BOOLEAN NOT NULL DEFAULT TRUE,
		stock_quantity INTEGER NOT NULL DEFAULT 0,
		cost_price NUMERIC(14,2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stock_transactions (
		id TEXT PRIMARY KEY,
		variant_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('sale','return','restock','adjustment')),
		order_id TEXT,
		note TEXT NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_transactions_variant ON stock_transactions (variant_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_transactions_order ON stock_transactions (order_id)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL CHECK (status IN ('pending','processing','prepared','shipped','delivered','collected','cancelled','unavailable','returned')),
		shipping_company_id TEXT,
		shipping_cost NUMERIC(14,2) NOT NULL DEFAULT 0,
		discount NUMERIC(14,2) NOT NULL DEFAULT 0,
		version INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_lines (
		order_id TEXT NOT NULL,
		line_no INTEGER NOT NULL,
		variant_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		unit_price NUMERIC(14,2) NOT NULL,
		unit_cost NUMERIC(14,2) NOT NULL,
		PRIMARY KEY (order_id, line_no)
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		idem_key TEXT PRIMARY KEY,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
}

// NewPostgresAdapter expects a *sql.DB opened with the "pgx" driver.
func NewPostgresAdapter(db *sql.DB) *SQLAdapter {
	return newSQLAdapter(db, dialect{
		name:        "postgres",
		numbered:    true,
		isDuplicate: isPostgresDuplicate,
		schema:      postgresSchema,
	})
}

func isPostgresDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
