package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const requestKeyPrefix = "request:"

// NewOrder is an order as placed. ID and RequestID are optional; a caller
// that retries a failed placement should send the same ID again.
type NewOrder struct {
	ID                string
	RequestID         string
	Status            domain.OrderStatus
	ShippingCompanyID string
	Lines             []domain.OrderLine
	ShippingCost      decimal.Decimal
	Discount          decimal.Decimal
}

// OrderUpdate is the desired state of an existing order. Nil fields keep
// the committed value. ExpectedVersion, when nonzero, must match the
// committed version.
type OrderUpdate struct {
	OrderID           string
	RequestID         string
	ExpectedVersion   int
	Lines             *[]domain.OrderLine
	Status            *domain.OrderStatus
	ShippingCompanyID *string
	ShippingCost      *decimal.Decimal
	Discount          *decimal.Decimal
}

// BulkResult reports a bulk status change per order.
type BulkResult struct {
	Succeeded []string
	Failed    map[string]error
}

// OrderService runs the reconciliation pipeline for order placement, edits
// and status changes.
type OrderService struct {
	ledger   *StockLedger
	stock    port.StockStore
	orders   port.OrderRepository
	requests port.IdempotencyRepository
	logger   *zap.Logger
	now      func() time.Time
	commitID func() string
}

// NewOrderService wires the pipeline. requests may be nil, in which case
// request ids are ignored.
func NewOrderService(ledger *StockLedger, stock port.StockStore, orders port.OrderRepository, requests port.IdempotencyRepository, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		ledger:   ledger,
		stock:    stock,
		orders:   orders,
		requests: requests,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		commitID: func() string { return uuid.New().String() },
	}
}

func (s *OrderService) CreateOrder(ctx context.Context, req NewOrder) (domain.Order, error) {
	status := req.Status
	if status == "" {
		status = domain.OrderStatusPending
	}
	if !status.Valid() {
		return domain.Order{}, domain.NewInvalidInputf("status", "unknown order status %q", status)
	}
	if err := validateLines(req.Lines); err != nil {
		return domain.Order{}, err
	}
	if err := CheckShippingPrecondition(status, req.ShippingCompanyID); err != nil {
		return domain.Order{}, err
	}

	release, err := s.claimRequest(ctx, req.RequestID)
	if err != nil {
		return domain.Order{}, err
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.New().String()
	} else if _, err := s.orders.GetOrder(ctx, id); err == nil {
		release()
		return domain.Order{}, fmt.Errorf("create order %s: %w", id, domain.ErrOrderExists)
	} else if !errors.Is(err, domain.ErrOrderNotFound) {
		release()
		return domain.Order{}, fmt.Errorf("look up order %s: %w", id, err)
	}

	// A fresh order starts from an empty baseline in its own status, so the
	// only movement is deducting its lines (none for an order born Returned).
	rec := Reconcile(domain.Order{ID: id, Status: status}, req.Lines, status)
	applied, err := s.commitStock(ctx, rec, rec.Deltas(id, 0, s.commitID(), NoteOrderCreated))
	if err != nil {
		release()
		return domain.Order{}, err
	}

	now := s.now()
	order := domain.Order{
		ID:                id,
		Status:            status,
		ShippingCompanyID: req.ShippingCompanyID,
		Lines:             cloneLines(req.Lines),
		ShippingCost:      req.ShippingCost,
		Discount:          req.Discount,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		release()
		return domain.Order{}, s.revert(ctx, applied, fmt.Errorf("save order %s: %w", id, err))
	}

	s.logger.Info("order created",
		zap.String("order_id", id),
		zap.String("status", status.String()),
		zap.Int("lines", len(order.Lines)),
	)
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

// UpdateOrder commits a new order state. Stock is reconciled from the durable
// baseline and the snapshot only advances when every stock change landed.
// When a stock change or the snapshot write fails, the changes that did land
// are reverted, so a failed edit leaves stock matching the committed order.
func (s *OrderService) UpdateOrder(ctx context.Context, req OrderUpdate) (domain.Order, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return domain.Order{}, domain.NewInvalidInput("order_id", "is required")
	}
	if req.Lines != nil {
		if err := validateLines(*req.Lines); err != nil {
			return domain.Order{}, err
		}
	}
	if req.Status != nil && !req.Status.Valid() {
		return domain.Order{}, domain.NewInvalidInputf("status", "unknown order status %q", *req.Status)
	}

	baseline, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if req.ExpectedVersion != 0 && req.ExpectedVersion != baseline.Version {
		return domain.Order{}, fmt.Errorf("order %s is at version %d, edit was based on %d: %w",
			baseline.ID, baseline.Version, req.ExpectedVersion, domain.ErrOptimisticLock)
	}

	updated := *baseline
	updated.Lines = cloneLines(baseline.Lines)
	if req.Lines != nil {
		updated.Lines = cloneLines(*req.Lines)
	}
	if req.Status != nil {
		updated.Status = *req.Status
	}
	if req.ShippingCompanyID != nil {
		updated.ShippingCompanyID = *req.ShippingCompanyID
	}
	if req.ShippingCost != nil {
		updated.ShippingCost = *req.ShippingCost
	}
	if req.Discount != nil {
		updated.Discount = *req.Discount
	}
	if updated.Status != baseline.Status {
		if err := CheckShippingPrecondition(updated.Status, updated.ShippingCompanyID); err != nil {
			return domain.Order{}, err
		}
	}

	release, err := s.claimRequest(ctx, req.RequestID)
	if err != nil {
		return domain.Order{}, err
	}

	rec := Reconcile(*baseline, updated.Lines, updated.Status)
	applied, err := s.commitStock(ctx, rec, rec.Deltas(baseline.ID, baseline.Version, s.commitID(), NoteOrderEdited))
	if err != nil {
		release()
		return domain.Order{}, err
	}

	updated.Version = baseline.Version + 1
	updated.UpdatedAt = s.now()
	if err := s.orders.UpdateOrder(ctx, updated, baseline.Version); err != nil {
		release()
		return domain.Order{}, s.revert(ctx, applied, fmt.Errorf("save order %s: %w", baseline.ID, err))
	}

	s.logger.Info("order updated",
		zap.String("order_id", updated.ID),
		zap.String("old_status", baseline.Status.String()),
		zap.String("new_status", updated.Status.String()),
		zap.String("status_effect", rec.Effect.String()),
		zap.Int("version", updated.Version),
		zap.Int("stock_changes", len(rec.Net)),
	)
	return updated, nil
}

// BulkUpdateStatus moves every order to status one after another. A failed
// order does not stop the rest.
func (s *OrderService) BulkUpdateStatus(ctx context.Context, orderIDs []string, status domain.OrderStatus) BulkResult {
	result := BulkResult{Failed: make(map[string]error)}
	for _, id := range orderIDs {
		st := status
		if _, err := s.UpdateOrder(ctx, OrderUpdate{OrderID: id, Status: &st}); err != nil {
			s.logger.Warn("bulk status change failed",
				zap.String("order_id", id),
				zap.String("status", status.String()),
				zap.Error(err),
			)
			result.Failed[id] = err
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result
}

// commitStock validates the merged deductions against a fresh read and then
// applies every delta. Nothing is written when validation fails. When any
// delta fails, the ones that landed are reverted before returning.
func (s *OrderService) commitStock(ctx context.Context, rec Reconciliation, deltas []Delta) ([]domain.StockTransaction, error) {
	if len(deltas) == 0 {
		return nil, nil
	}

	ids := rec.VariantIDs()
	variants, err := s.stock.GetVariants(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("read stock: %w", err)
	}
	for _, id := range ids {
		if _, ok := variants[id]; !ok {
			return nil, domain.NewInvalidInputf("variant_id", "unknown variant %s", id)
		}
	}

	reqs, err := requirementsFor(rec.Deductions(), variants)
	if err != nil {
		return nil, err
	}
	if err := Validate(reqs); err != nil {
		return nil, err
	}

	result, err := s.ledger.ApplyDeltas(ctx, deltas)
	if err != nil {
		return nil, s.revert(ctx, result.Applied, err)
	}
	return result.Applied, nil
}

// revert books the inverse of every applied transaction under its own key and
// returns cause, joined with any revert failure. It runs even when ctx is
// already canceled.
func (s *OrderService) revert(ctx context.Context, applied []domain.StockTransaction, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, tx := range applied {
		_, err := s.ledger.ApplyDelta(ctx, Delta{
			VariantID:      tx.VariantID,
			Quantity:       -tx.Quantity,
			Kind:           domain.TransactionKindAdjustment,
			OrderID:        tx.OrderID,
			Note:           NoteReverted + ": " + tx.Note,
			IdempotencyKey: RevertKey(tx.IdempotencyKey),
		})
		if err == nil || errors.Is(err, domain.ErrAlreadyApplied) {
			continue
		}
		s.logger.Error("CRITICAL: stock change not reverted",
			zap.String("order_id", tx.OrderID),
			zap.String("variant_id", tx.VariantID),
			zap.Int("quantity", tx.Quantity),
			zap.String("transaction_id", tx.ID),
			zap.Error(err),
		)
		errs = append(errs, fmt.Errorf("revert %s: %w", tx.IdempotencyKey, err))
	}
	if len(errs) == 0 {
		return cause
	}
	return errors.Join(append([]error{cause}, errs...)...)
}

// claimRequest rejects a repeated request id. The returned func frees the
// claim so a failed request can be sent again.
func (s *OrderService) claimRequest(ctx context.Context, requestID string) (func(), error) {
	noop := func() {}
	if s.requests == nil || requestID == "" {
		return noop, nil
	}

	key := requestKeyPrefix + requestID
	ok, err := s.requests.SetIdempotency(ctx, key)
	if err != nil {
		return noop, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return noop, domain.ErrDuplicateRequest
	}

	return func() {
		if err := s.requests.ReleaseIdempotency(ctx, key); err != nil {
			s.logger.Warn("failed to release request id", zap.String("request_id", requestID), zap.Error(err))
		}
	}, nil
}

func validateLines(lines []domain.OrderLine) error {
	for i, l := range lines {
		if strings.TrimSpace(l.VariantID) == "" {
			return domain.NewInvalidInputf("lines", "line %d: variant_id is required", i)
		}
		if l.Quantity <= 0 {
			return domain.NewInvalidInputf("lines", "line %d: quantity must be positive, got %d", i, l.Quantity)
		}
		if l.UnitPrice.IsNegative() || l.UnitCost.IsNegative() {
			return domain.NewInvalidInputf("lines", "line %d: prices cannot be negative", i)
		}
	}
	return nil
}

func cloneLines(lines []domain.OrderLine) []domain.OrderLine {
	if lines == nil {
		return nil
	}
	out := make([]domain.OrderLine, len(lines))
	copy(out, lines)
	return out
}

// IsRetryable reports whether err is a write failure the caller may retry
// with the same input.
func IsRetryable(err error) bool {
	var lw *domain.LedgerWriteError
	return errors.As(err, &lw) && !errors.Is(err, domain.ErrStockConflict)
}
