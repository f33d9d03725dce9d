package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	NoteInitialStock   = "Initial Stock"
	defaultHistorySize = 50
	maxHistorySize     = 500
)

// InventoryService covers stock work outside of orders: receiving goods,
// manual corrections, variant settings and the audit trail.
type InventoryService struct {
	ledger   *StockLedger
	stock    port.StockStore
	variants port.VariantRepository
	log      port.TransactionLog
	logger   *zap.Logger
}

func NewInventoryService(ledger *StockLedger, stock port.StockStore, variants port.VariantRepository, log port.TransactionLog, logger *zap.Logger) *InventoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryService{
		ledger:   ledger,
		stock:    stock,
		variants: variants,
		log:      log,
		logger:   logger,
	}
}

// SaveVariant registers a new variant or edits the tracking flag and cost of
// an existing one. The quantity of a new variant is booked as a restock; the
// quantity of an existing one is ignored.
func (s *InventoryService) SaveVariant(ctx context.Context, v domain.Variant) (domain.Variant, error) {
	v.ID = strings.TrimSpace(v.ID)
	if v.ID == "" {
		return domain.Variant{}, domain.NewInvalidInput("id", "is required")
	}
	if v.CostPrice.IsNegative() {
		return domain.Variant{}, domain.NewInvalidInput("cost_price", "cannot be negative")
	}

	current, err := s.GetVariant(ctx, v.ID)
	switch {
	case errors.Is(err, domain.ErrVariantNotFound):
		return s.createVariant(ctx, v)
	case err != nil:
		return domain.Variant{}, err
	}

	current.TrackInventory = v.TrackInventory
	current.CostPrice = v.CostPrice
	if v.ProductID != "" {
		current.ProductID = v.ProductID
	}
	if v.SKU != "" {
		current.SKU = v.SKU
	}
	current.UpdatedAt = time.Now().UTC()
	if err := s.variants.UpdateVariantSettings(ctx, current); err != nil {
		return domain.Variant{}, fmt.Errorf("update variant %s: %w", v.ID, err)
	}
	return current, nil
}

func (s *InventoryService) createVariant(ctx context.Context, v domain.Variant) (domain.Variant, error) {
	if v.TrackInventory && v.StockQuantity < 0 {
		return domain.Variant{}, domain.NewInvalidInput("stock_quantity", "cannot be negative for a tracked variant")
	}

	initial := v.StockQuantity
	now := time.Now().UTC()
	v.StockQuantity = 0
	v.CreatedAt, v.UpdatedAt = now, now
	if err := s.variants.CreateVariant(ctx, v); err != nil {
		return domain.Variant{}, fmt.Errorf("create variant %s: %w", v.ID, err)
	}

	if initial != 0 {
		_, err := s.ledger.ApplyDelta(ctx, Delta{
			VariantID:      v.ID,
			Quantity:       initial,
			Kind:           domain.TransactionKindRestock,
			Note:           NoteInitialStock,
			IdempotencyKey: "initial:" + v.ID,
		})
		if err != nil && !errors.Is(err, domain.ErrAlreadyApplied) {
			return domain.Variant{}, err
		}
	}

	s.logger.Info("variant created",
		zap.String("variant_id", v.ID),
		zap.Bool("track_inventory", v.TrackInventory),
		zap.Int("initial_stock", initial),
	)
	return s.GetVariant(ctx, v.ID)
}

// Restock books received goods.
func (s *InventoryService) Restock(ctx context.Context, variantID string, qty int, note string) (domain.StockTransaction, error) {
	if qty <= 0 {
		return domain.StockTransaction{}, domain.NewInvalidInputf("quantity", "restock quantity must be positive, got %d", qty)
	}
	if _, err := s.GetVariant(ctx, variantID); err != nil {
		return domain.StockTransaction{}, err
	}
	return s.ledger.ApplyDelta(ctx, Delta{
		VariantID: variantID,
		Quantity:  qty,
		Kind:      domain.TransactionKindRestock,
		Note:      note,
	})
}

// Adjust books a manual correction. Negative corrections go through the
// validation gate like any other deduction.
func (s *InventoryService) Adjust(ctx context.Context, variantID string, delta int, note string) (domain.StockTransaction, error) {
	if delta == 0 {
		return domain.StockTransaction{}, domain.NewInvalidInput("quantity", "must be nonzero")
	}
	v, err := s.GetVariant(ctx, variantID)
	if err != nil {
		return domain.StockTransaction{}, err
	}
	if delta < 0 {
		err := Validate([]StockRequirement{{
			VariantID:      v.ID,
			Requested:      -delta,
			TrackInventory: v.TrackInventory,
			CurrentStock:   v.StockQuantity,
		}})
		if err != nil {
			return domain.StockTransaction{}, err
		}
	}
	return s.ledger.ApplyDelta(ctx, Delta{
		VariantID: variantID,
		Quantity:  delta,
		Kind:      domain.TransactionKindAdjustment,
		Note:      note,
	})
}

func (s *InventoryService) GetVariant(ctx context.Context, variantID string) (domain.Variant, error) {
	variants, err := s.stock.GetVariants(ctx, []string{variantID})
	if err != nil {
		return domain.Variant{}, fmt.Errorf("read variant %s: %w", variantID, err)
	}
	v, ok := variants[variantID]
	if !ok {
		return domain.Variant{}, fmt.Errorf("variant %s: %w", variantID, domain.ErrVariantNotFound)
	}
	return v, nil
}

// History returns the newest transactions of a variant first.
func (s *InventoryService) History(ctx context.Context, variantID string, limit int) ([]domain.StockTransaction, error) {
	if limit <= 0 {
		limit = defaultHistorySize
	}
	if limit > maxHistorySize {
		limit = maxHistorySize
	}
	return s.log.ListByVariant(ctx, variantID, limit)
}

// OrderHistory returns every transaction booked for an order, oldest first.
func (s *InventoryService) OrderHistory(ctx context.Context, orderID string) ([]domain.StockTransaction, error) {
	return s.log.ListByOrder(ctx, orderID)
}
