package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/stock-ledger/internal/core/domain"
)

// dialect holds what differs between the SQL engines we run on.
type dialect struct {
	name        string
	numbered    bool // $1, $2 placeholders instead of ?
	isDuplicate func(error) bool
	schema      []string
}

// SQLAdapter implements every persistence port on top of database/sql.
// Stock changes are single conditional updates, so concurrent deductions
// against one variant never lose an update.
type SQLAdapter struct {
	db       *sql.DB
	dialect  dialect
	claimTTL time.Duration
	now      func() time.Time
}

const defaultClaimTTL = 24 * time.Hour

func newSQLAdapter(db *sql.DB, d dialect) *SQLAdapter {
	return &SQLAdapter{
		db:       db,
		dialect:  d,
		claimTTL: defaultClaimTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClaimTTL sets how long an idempotency claim blocks its key.
func (a *SQLAdapter) WithClaimTTL(ttl time.Duration) *SQLAdapter {
	if ttl > 0 {
		a.claimTTL = ttl
	}
	return a
}

func (a *SQLAdapter) Driver() string {
	return a.dialect.name
}

// EnsureSchema creates the tables the adapter needs if they are missing.
func (a *SQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range a.dialect.schema {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema (%s): %w", a.dialect.name, err)
		}
	}
	return nil
}

// q rewrites ? placeholders for dialects that number them.
func (a *SQLAdapter) q(query string) string {
	if !a.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const adjustStockQuery = `
	UPDATE variants
	SET stock_quantity = stock_quantity + ?, updated_at = ?
	WHERE id = ? AND (track_inventory = FALSE OR stock_quantity + ? >= 0)`

func (a *SQLAdapter) adjust(ctx context.Context, ex execer, variantID string, delta int) error {
	result, err := ex.ExecContext(ctx, a.q(adjustStockQuery), delta, a.now(), variantID, delta)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	var exists int
	err = ex.QueryRowContext(ctx, a.q(`SELECT 1 FROM variants WHERE id = ?`), variantID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrVariantNotFound
	}
	if err != nil {
		return fmt.Errorf("query variant: %w", err)
	}
	return domain.ErrStockConflict
}

func (a *SQLAdapter) AdjustStock(ctx context.Context, variantID string, delta int) error {
	return a.adjust(ctx, a.db, variantID, delta)
}

const appendTransactionQuery = `
	INSERT INTO stock_transactions (id, variant_id, quantity, kind, order_id, note, idempotency_key, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (a *SQLAdapter) appendTx(ctx context.Context, ex execer, tx domain.StockTransaction) error {
	_, err := ex.ExecContext(ctx, a.q(appendTransactionQuery),
		tx.ID, tx.VariantID, tx.Quantity, string(tx.Kind), nilIfEmpty(tx.OrderID), tx.Note,
		tx.IdempotencyKey, tx.CreatedAt,
	)
	if err != nil {
		if a.dialect.isDuplicate(err) {
			return domain.ErrDuplicateTransaction
		}
		return fmt.Errorf("insert stock transaction: %w", err)
	}
	return nil
}

func (a *SQLAdapter) Append(ctx context.Context, tx domain.StockTransaction) error {
	return a.appendTx(ctx, a.db, tx)
}

// ApplyStockChange records the transaction and moves the stock in one
// database transaction. The insert goes first so a duplicate key stops the
// update from ever running.
func (a *SQLAdapter) ApplyStockChange(ctx context.Context, tx domain.StockTransaction) error {
	sqlTx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := a.appendTx(ctx, sqlTx, tx); err != nil {
		return err
	}
	if err := a.adjust(ctx, sqlTx, tx.VariantID, tx.Quantity); err != nil {
		return err
	}
	return sqlTx.Commit()
}

const selectTransactionColumns = `SELECT id, variant_id, quantity, kind, order_id, note, idempotency_key, created_at FROM stock_transactions`

func (a *SQLAdapter) ListByVariant(ctx context.Context, variantID string, limit int) ([]domain.StockTransaction, error) {
	rows, err := a.db.QueryContext(ctx, a.q(selectTransactionColumns+`
		WHERE variant_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`), variantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	return scanTransactions(rows)
}

func (a *SQLAdapter) ListByOrder(ctx context.Context, orderID string) ([]domain.StockTransaction, error) {
	rows, err := a.db.QueryContext(ctx, a.q(selectTransactionColumns+`
		WHERE order_id = ? ORDER BY created_at ASC, id ASC`), orderID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]domain.StockTransaction, error) {
	defer rows.Close()

	var out []domain.StockTransaction
	for rows.Next() {
		var (
			tx      domain.StockTransaction
			kind    string
			orderID sql.NullString
		)
		if err := rows.Scan(&tx.ID, &tx.VariantID, &tx.Quantity, &kind, &orderID, &tx.Note, &tx.IdempotencyKey, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.Kind = domain.TransactionKind(kind)
		tx.OrderID = orderID.String
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (a *SQLAdapter) GetVariants(ctx context.Context, variantIDs []string) (map[string]domain.Variant, error) {
	out := make(map[string]domain.Variant, len(variantIDs))
	if len(variantIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(variantIDs)), ",")
	args := make([]any, len(variantIDs))
	for i, id := range variantIDs {
		args[i] = id
	}

	rows, err := a.db.QueryContext(ctx, a.q(`
		SELECT id, product_id, sku, track_inventory, stock_quantity, cost_price, created_at, updated_at
		FROM variants WHERE id IN (`+placeholders+`)`), args...)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.TrackInventory, &v.StockQuantity, &v.CostPrice, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}

func (a *SQLAdapter) CreateVariant(ctx context.Context, v domain.Variant) error {
	_, err := a.db.ExecContext(ctx, a.q(`
		INSERT INTO variants (id, product_id, sku, track_inventory, stock_quantity, cost_price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		v.ID, v.ProductID, v.SKU, v.TrackInventory, v.StockQuantity, v.CostPrice, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		if a.dialect.isDuplicate(err) {
			return domain.ErrVariantExists
		}
		return fmt.Errorf("insert variant: %w", err)
	}
	return nil
}

func (a *SQLAdapter) UpdateVariantSettings(ctx context.Context, v domain.Variant) error {
	result, err := a.db.ExecContext(ctx, a.q(`
		UPDATE variants
		SET product_id = ?, sku = ?, track_inventory = ?, cost_price = ?, updated_at = ?
		WHERE id = ?`),
		v.ProductID, v.SKU, v.TrackInventory, v.CostPrice, v.UpdatedAt, v.ID,
	)
	if err != nil {
		return fmt.Errorf("update variant: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrVariantNotFound
	}
	return nil
}

func (a *SQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, a.q(`
		INSERT INTO orders (id, status, shipping_company_id, shipping_cost, discount, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		order.ID, string(order.Status), nilIfEmpty(order.ShippingCompanyID), order.ShippingCost, order.Discount,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if a.dialect.isDuplicate(err) {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("insert order: %w", err)
	}

	if err := a.insertLines(ctx, tx, order); err != nil {
		return err
	}
	return tx.Commit()
}

func (a *SQLAdapter) insertLines(ctx context.Context, tx *sql.Tx, order domain.Order) error {
	for i, l := range order.Lines {
		_, err := tx.ExecContext(ctx, a.q(`
			INSERT INTO order_lines (order_id, line_no, variant_id, quantity, unit_price, unit_cost)
			VALUES (?, ?, ?, ?, ?, ?)`),
			order.ID, i, l.VariantID, l.Quantity, l.UnitPrice, l.UnitCost,
		)
		if err != nil {
			return fmt.Errorf("insert order line %d: %w", i, err)
		}
	}
	return nil
}

func (a *SQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var (
		order     domain.Order
		status    string
		companyID sql.NullString
	)
	err := a.db.QueryRowContext(ctx, a.q(`
		SELECT id, status, shipping_company_id, shipping_cost, discount, version, created_at, updated_at
		FROM orders WHERE id = ?`), orderID,
	).Scan(&order.ID, &status, &companyID, &order.ShippingCost, &order.Discount, &order.Version, &order.CreatedAt, &order.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	order.Status = domain.OrderStatus(status)
	order.ShippingCompanyID = companyID.String

	rows, err := a.db.QueryContext(ctx, a.q(`
		SELECT variant_id, quantity, unit_price, unit_cost
		FROM order_lines WHERE order_id = ? ORDER BY line_no`), orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.VariantID, &l.Quantity, &l.UnitPrice, &l.UnitCost); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		order.Lines = append(order.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrder swaps the snapshot in one transaction, guarded by the version
// the edit was computed from.
func (a *SQLAdapter) UpdateOrder(ctx context.Context, order domain.Order, expectedVersion int) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, a.q(`
		UPDATE orders
		SET status = ?, shipping_company_id = ?, shipping_cost = ?, discount = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`),
		string(order.Status), nilIfEmpty(order.ShippingCompanyID), order.ShippingCost, order.Discount,
		order.Version, order.UpdatedAt, order.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, a.q(`SELECT 1 FROM orders WHERE id = ?`), order.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOptimisticLock
	}

	if _, err := tx.ExecContext(ctx, a.q(`DELETE FROM order_lines WHERE order_id = ?`), order.ID); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}
	if err := a.insertLines(ctx, tx, order); err != nil {
		return err
	}
	return tx.Commit()
}

func nilIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// SetIdempotency claims key until the claim TTL runs out. An expired claim
// is dropped first so the key can be taken again.
func (a *SQLAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	now := a.now()
	if _, err := a.db.ExecContext(ctx,
		a.q(`DELETE FROM idempotency_keys WHERE idem_key = ? AND expires_at <= ?`), key, now); err != nil {
		return false, fmt.Errorf("expire idempotency key: %w", err)
	}

	_, err := a.db.ExecContext(ctx,
		a.q(`INSERT INTO idempotency_keys (idem_key, expires_at) VALUES (?, ?)`), key, now.Add(a.claimTTL))
	if err != nil {
		if a.dialect.isDuplicate(err) {
			return false, nil
		}
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
	return true, nil
}

func (a *SQLAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	if _, err := a.db.ExecContext(ctx, a.q(`DELETE FROM idempotency_keys WHERE idem_key = ?`), key); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
