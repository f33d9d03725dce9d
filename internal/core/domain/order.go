package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "pending"
	OrderStatusProcessing  OrderStatus = "processing"
	OrderStatusPrepared    OrderStatus = "prepared"
	OrderStatusShipped     OrderStatus = "shipped"
	OrderStatusDelivered   OrderStatus = "delivered"
	OrderStatusCollected   OrderStatus = "collected"
	OrderStatusCancelled   OrderStatus = "cancelled"
	OrderStatusUnavailable OrderStatus = "unavailable"
	OrderStatusReturned    OrderStatus = "returned"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusPrepared,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCollected,
	OrderStatusCancelled,
	OrderStatusUnavailable,
	OrderStatusReturned,
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) Valid() bool {
	for _, st := range orderStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// ParseOrderStatus accepts any casing ("Returned", "returned").
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	s := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// OrderLine is one line of an order snapshot. Prices are captured at sale time.
type OrderLine struct {
	VariantID string
	Quantity  int
	UnitPrice decimal.Decimal
	UnitCost  decimal.Decimal
}

func (l OrderLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is the committed state of an order. Version grows by one on every
// committed edit and identifies the baseline for the next diff.
type Order struct {
	ID                string
	Status            OrderStatus
	ShippingCompanyID string
	Lines             []OrderLine
	ShippingCost      decimal.Decimal
	Discount          decimal.Decimal
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (o Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range o.Lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

func (o Order) Total() decimal.Decimal {
	return o.Subtotal().Add(o.ShippingCost).Sub(o.Discount)
}

// NetValue is the total minus shipping and a fixed handling fee. Reporting only.
func (o Order) NetValue(handlingFee decimal.Decimal) decimal.Decimal {
	return o.Total().Sub(o.ShippingCost).Sub(handlingFee)
}

func (o Order) CostOfGoods() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range o.Lines {
		sum = sum.Add(l.UnitCost.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return sum
}

// HoldsStock reports whether the order's lines are currently deducted from stock.
// A returned order has had its units put back.
func (o Order) HoldsStock() bool {
	return o.Status != OrderStatusReturned
}
