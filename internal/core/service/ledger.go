package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/port"
)

const ledgerKeyPrefix = "ledger:"

// Delta is one signed stock change to book against a variant.
type Delta struct {
	VariantID      string
	Quantity       int
	Kind           domain.TransactionKind
	OrderID        string
	Note           string
	IdempotencyKey string
}

type DeltaFailure struct {
	Delta Delta
	Err   error
}

// BatchResult reports what happened to every item of ApplyDeltas.
type BatchResult struct {
	Applied []domain.StockTransaction
	Skipped []Delta // already applied earlier
	Failed  []DeltaFailure
}

func (r BatchResult) OK() bool {
	return len(r.Failed) == 0
}

// BatchError is returned when at least one item of a batch failed. Items in
// Result.Applied stay applied.
type BatchError struct {
	Result BatchResult
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Result.Failed))
	for _, f := range e.Result.Failed {
		parts = append(parts, f.Err.Error())
	}
	return fmt.Sprintf("%d of %d stock changes failed (%d applied): %s",
		len(e.Result.Failed),
		len(e.Result.Failed)+len(e.Result.Applied)+len(e.Result.Skipped),
		len(e.Result.Applied),
		strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Result.Failed))
	for _, f := range e.Result.Failed {
		errs = append(errs, f.Err)
	}
	return errs
}

// StockLedger books signed deltas against the stock store and the
// transaction log as one logical unit.
type StockLedger struct {
	store  port.StockStore
	log    port.TransactionLog
	atomic port.AtomicLedger
	guard  port.IdempotencyRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewStockLedger uses a single-transaction path when store implements
// port.AtomicLedger. Otherwise it writes the store first and the log second,
// and claims idempotency keys through guard when one is given.
func NewStockLedger(store port.StockStore, log port.TransactionLog, guard port.IdempotencyRepository, logger *zap.Logger) *StockLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &StockLedger{
		store:  store,
		log:    log,
		guard:  guard,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if a, ok := store.(port.AtomicLedger); ok {
		l.atomic = a
	}
	return l
}

func (l *StockLedger) ApplyDelta(ctx context.Context, d Delta) (domain.StockTransaction, error) {
	if err := validateDelta(d); err != nil {
		return domain.StockTransaction{}, err
	}

	tx := domain.StockTransaction{
		ID:             uuid.New().String(),
		VariantID:      d.VariantID,
		Quantity:       d.Quantity,
		Kind:           d.Kind,
		OrderID:        d.OrderID,
		Note:           d.Note,
		IdempotencyKey: d.IdempotencyKey,
		CreatedAt:      l.now(),
	}
	if tx.IdempotencyKey == "" {
		tx.IdempotencyKey = tx.ID
	}

	var err error
	if l.atomic != nil {
		err = l.applyAtomic(ctx, tx)
	} else {
		err = l.applySplit(ctx, tx)
	}

	switch {
	case errors.Is(err, domain.ErrAlreadyApplied):
		l.logger.Info("stock change already applied",
			zap.String("variant_id", tx.VariantID),
			zap.String("idempotency_key", tx.IdempotencyKey),
		)
		return domain.StockTransaction{}, err
	case err != nil:
		l.logger.Error("stock change failed",
			zap.String("variant_id", tx.VariantID),
			zap.Int("quantity", tx.Quantity),
			zap.String("kind", tx.Kind.String()),
			zap.String("order_id", tx.OrderID),
			zap.Error(err),
		)
		return domain.StockTransaction{}, err
	}

	l.logger.Info("stock change applied",
		zap.String("variant_id", tx.VariantID),
		zap.Int("quantity", tx.Quantity),
		zap.String("kind", tx.Kind.String()),
		zap.String("order_id", tx.OrderID),
		zap.String("transaction_id", tx.ID),
	)
	return tx, nil
}

// ApplyDeltas applies every item independently and reports each outcome.
// Failures do not stop the remaining items and nothing is rolled back.
func (l *StockLedger) ApplyDeltas(ctx context.Context, deltas []Delta) (BatchResult, error) {
	var result BatchResult
	for _, d := range deltas {
		tx, err := l.ApplyDelta(ctx, d)
		switch {
		case errors.Is(err, domain.ErrAlreadyApplied):
			result.Skipped = append(result.Skipped, d)
		case err != nil:
			result.Failed = append(result.Failed, DeltaFailure{Delta: d, Err: err})
		default:
			result.Applied = append(result.Applied, tx)
		}
	}

	if !result.OK() {
		return result, &BatchError{Result: result}
	}
	return result, nil
}

func (l *StockLedger) applyAtomic(ctx context.Context, tx domain.StockTransaction) error {
	err := l.atomic.ApplyStockChange(ctx, tx)
	if errors.Is(err, domain.ErrDuplicateTransaction) {
		return domain.ErrAlreadyApplied
	}
	if err != nil {
		return &domain.LedgerWriteError{VariantID: tx.VariantID, Stage: domain.LedgerStageStore, Err: err}
	}
	return nil
}

// applySplit updates the store, then appends the log entry. A failed append
// reverts the store update.
func (l *StockLedger) applySplit(ctx context.Context, tx domain.StockTransaction) error {
	guardKey := ledgerKeyPrefix + tx.IdempotencyKey
	if l.guard != nil {
		ok, err := l.guard.SetIdempotency(ctx, guardKey)
		if err != nil {
			return &domain.LedgerWriteError{
				VariantID: tx.VariantID,
				Stage:     domain.LedgerStageStore,
				Err:       fmt.Errorf("claim idempotency key: %w", err),
			}
		}
		if !ok {
			return domain.ErrAlreadyApplied
		}
	}

	if err := l.store.AdjustStock(ctx, tx.VariantID, tx.Quantity); err != nil {
		l.release(ctx, guardKey)
		return &domain.LedgerWriteError{VariantID: tx.VariantID, Stage: domain.LedgerStageStore, Err: err}
	}

	appendErr := l.log.Append(ctx, tx)
	if appendErr == nil {
		return nil
	}

	revertErr := l.store.AdjustStock(ctx, tx.VariantID, -tx.Quantity)
	if revertErr == nil && errors.Is(appendErr, domain.ErrDuplicateTransaction) {
		return domain.ErrAlreadyApplied
	}
	l.release(ctx, guardKey)

	if revertErr != nil {
		l.logger.Error("CRITICAL: store update not reverted after log failure",
			zap.String("variant_id", tx.VariantID),
			zap.Int("quantity", tx.Quantity),
			zap.Error(revertErr),
		)
	}
	return &domain.LedgerWriteError{
		VariantID: tx.VariantID,
		Stage:     domain.LedgerStageLog,
		Reverted:  revertErr == nil,
		Err:       errors.Join(appendErr, revertErr),
	}
}

func (l *StockLedger) release(ctx context.Context, key string) {
	if l.guard == nil {
		return
	}
	if err := l.guard.ReleaseIdempotency(ctx, key); err != nil {
		l.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(err))
	}
}

func validateDelta(d Delta) error {
	if strings.TrimSpace(d.VariantID) == "" {
		return domain.NewInvalidInput("variant_id", "is required")
	}
	if d.Quantity == 0 {
		return domain.NewInvalidInput("quantity", "must be nonzero")
	}
	if !d.Kind.Valid() {
		return domain.NewInvalidInputf("kind", "unknown transaction kind %q", d.Kind)
	}
	return nil
}
