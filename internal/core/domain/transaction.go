package domain

import "time"

type TransactionKind string

const (
	TransactionKindSale       TransactionKind = "sale"
	TransactionKindReturn     TransactionKind = "return"
	TransactionKindRestock    TransactionKind = "restock"
	TransactionKindAdjustment TransactionKind = "adjustment"
)

func (k TransactionKind) String() string {
	return string(k)
}

// Valid reports whether k is one of the known transaction kinds.
func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionKindSale, TransactionKindReturn, TransactionKindRestock, TransactionKindAdjustment:
		return true
	default:
		return false
	}
}

// StockTransaction is an immutable audit record of one signed stock change.
type StockTransaction struct {
	ID             string
	VariantID      string
	Quantity       int
	Kind           TransactionKind
	OrderID        string
	Note           string
	IdempotencyKey string
	CreatedAt      time.Time
}

// SumQuantities returns the net stock change recorded by txs.
func SumQuantities(txs []StockTransaction) int {
	total := 0
	for _, tx := range txs {
		total += tx.Quantity
	}
	return total
}
