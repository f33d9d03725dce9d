package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrVariantNotFound      = errors.New("variant not found")
	ErrOrderExists          = errors.New("order already exists")
	ErrVariantExists        = errors.New("variant already exists")
	ErrOptimisticLock       = errors.New("optimistic lock conflict")
	ErrDuplicateRequest     = errors.New("duplicate request")
	ErrDuplicateTransaction = errors.New("duplicate stock transaction")
	ErrStockConflict        = errors.New("stock would go negative")

	// ErrAlreadyApplied is reported for a ledger delta whose idempotency key
	// was applied before. Callers treat it as success.
	ErrAlreadyApplied = errors.New("stock change already applied")
)

// InsufficientStockError is returned before any write when a tracked variant
// cannot supply the requested quantity.
type InsufficientStockError struct {
	VariantID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: available %d, requested %d",
		e.VariantID, e.Available, e.Requested)
}

// InvalidTransitionInputError rejects malformed input before any side effect.
type InvalidTransitionInputError struct {
	Field  string
	Reason string
}

func (e *InvalidTransitionInputError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func NewInvalidInput(field, reason string) *InvalidTransitionInputError {
	return &InvalidTransitionInputError{Field: field, Reason: reason}
}

func NewInvalidInputf(field, format string, args ...interface{}) *InvalidTransitionInputError {
	return &InvalidTransitionInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type LedgerStage string

const (
	LedgerStageStore LedgerStage = "store"
	LedgerStageLog   LedgerStage = "log"
)

// LedgerWriteError means the store update or the log append failed.
// Reverted is set when a store update was compensated after a log failure.
type LedgerWriteError struct {
	VariantID string
	Stage     LedgerStage
	Reverted  bool
	Err       error
}

func (e *LedgerWriteError) Error() string {
	msg := fmt.Sprintf("ledger write failed for variant %s at %s stage", e.VariantID, e.Stage)
	if e.Stage == LedgerStageLog && !e.Reverted {
		msg += " (store update NOT reverted)"
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *LedgerWriteError) Unwrap() error {
	return e.Err
}
