package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

type OrderLineDTO struct {
	VariantID string          `json:"variant_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type CreateOrderRequest struct {
	ID                string          `json:"id,omitempty"`
	RequestID         string          `json:"request_id,omitempty"`
	Status            string          `json:"status,omitempty"`
	ShippingCompanyID string          `json:"shipping_company_id,omitempty"`
	Lines             []OrderLineDTO  `json:"lines"`
	ShippingCost      decimal.Decimal `json:"shipping_cost"`
	Discount          decimal.Decimal `json:"discount"`
}

type UpdateOrderRequest struct {
	OrderID           string           `json:"order_id,omitempty"`
	RequestID         string           `json:"request_id,omitempty"`
	ExpectedVersion   int              `json:"expected_version,omitempty"`
	Lines             *[]OrderLineDTO  `json:"lines,omitempty"`
	Status            *string          `json:"status,omitempty"`
	ShippingCompanyID *string          `json:"shipping_company_id,omitempty"`
	ShippingCost      *decimal.Decimal `json:"shipping_cost,omitempty"`
	Discount          *decimal.Decimal `json:"discount,omitempty"`
}

type BulkStatusRequest struct {
	OrderIDs []string `json:"order_ids"`
	Status   string   `json:"status"`
}

type BulkStatusResponse struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
}

type OrderResponse struct {
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	ShippingCompanyID string          `json:"shipping_company_id,omitempty"`
	Lines             []OrderLineDTO  `json:"lines"`
	ShippingCost      decimal.Decimal `json:"shipping_cost"`
	Discount          decimal.Decimal `json:"discount"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Total             decimal.Decimal `json:"total"`
	NetValue          decimal.Decimal `json:"net_value"`
	Version           int             `json:"version"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type VariantRequest struct {
	ID             string          `json:"id,omitempty"`
	ProductID      string          `json:"product_id"`
	SKU            string          `json:"sku"`
	TrackInventory bool            `json:"track_inventory"`
	StockQuantity  int             `json:"stock_quantity"`
	CostPrice      decimal.Decimal `json:"cost_price"`
}

type VariantResponse struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"product_id"`
	SKU            string          `json:"sku"`
	TrackInventory bool            `json:"track_inventory"`
	StockQuantity  int             `json:"stock_quantity"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type StockChangeRequest struct {
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
	Note      string `json:"note"`
}

type TransactionResponse struct {
	ID        string    `json:"id"`
	VariantID string    `json:"variant_id"`
	Quantity  int       `json:"quantity"`
	Kind      string    `json:"kind"`
	OrderID   string    `json:"order_id,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func toDomainLines(lines []OrderLineDTO) []domain.OrderLine {
	out := make([]domain.OrderLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, domain.OrderLine{
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			UnitCost:  l.UnitCost,
		})
	}
	return out
}

func toOrderResponse(o domain.Order, handlingFee decimal.Decimal) OrderResponse {
	lines := make([]OrderLineDTO, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, OrderLineDTO{
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			UnitCost:  l.UnitCost,
		})
	}
	return OrderResponse{
		ID:                o.ID,
		Status:            o.Status.String(),
		ShippingCompanyID: o.ShippingCompanyID,
		Lines:             lines,
		ShippingCost:      o.ShippingCost,
		Discount:          o.Discount,
		Subtotal:          o.Subtotal(),
		Total:             o.Total(),
		NetValue:          o.NetValue(handlingFee),
		Version:           o.Version,
		UpdatedAt:         o.UpdatedAt,
	}
}

func toVariantResponse(v domain.Variant) VariantResponse {
	return VariantResponse{
		ID:             v.ID,
		ProductID:      v.ProductID,
		SKU:            v.SKU,
		TrackInventory: v.TrackInventory,
		StockQuantity:  v.StockQuantity,
		CostPrice:      v.CostPrice,
		UpdatedAt:      v.UpdatedAt,
	}
}

func toTransactionResponse(tx domain.StockTransaction) TransactionResponse {
	return TransactionResponse{
		ID:        tx.ID,
		VariantID: tx.VariantID,
		Quantity:  tx.Quantity,
		Kind:      tx.Kind.String(),
		OrderID:   tx.OrderID,
		Note:      tx.Note,
		CreatedAt: tx.CreatedAt,
	}
}

func toTransactionResponses(txs []domain.StockTransaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionResponse(tx))
	}
	return out
}

func toBulkResponse(r service.BulkResult) BulkStatusResponse {
	resp := BulkStatusResponse{
		Succeeded: r.Succeeded,
		Failed:    make(map[string]string, len(r.Failed)),
	}
	if resp.Succeeded == nil {
		resp.Succeeded = []string{}
	}
	for id, err := range r.Failed {
		_, _, msg := classify(err)
		resp.Failed[id] = msg
	}
	return resp
}

// parseStatus accepts any casing. An empty value stays empty.
func parseStatus(raw string) (domain.OrderStatus, error) {
	if raw == "" {
		return "", nil
	}
	st, ok := domain.ParseOrderStatus(raw)
	if !ok {
		return "", domain.NewInvalidInputf("status", "unknown order status %q", raw)
	}
	return st, nil
}

func (r UpdateOrderRequest) toUpdate() (service.OrderUpdate, error) {
	upd := service.OrderUpdate{
		OrderID:           r.OrderID,
		RequestID:         r.RequestID,
		ExpectedVersion:   r.ExpectedVersion,
		ShippingCompanyID: r.ShippingCompanyID,
		ShippingCost:      r.ShippingCost,
		Discount:          r.Discount,
	}
	if r.Lines != nil {
		lines := toDomainLines(*r.Lines)
		upd.Lines = &lines
	}
	if r.Status != nil {
		st, err := parseStatus(*r.Status)
		if err != nil {
			return service.OrderUpdate{}, err
		}
		if st == "" {
			return service.OrderUpdate{}, domain.NewInvalidInput("status", "cannot be empty")
		}
		upd.Status = &st
	}
	return upd, nil
}

func (r CreateOrderRequest) toNewOrder() (service.NewOrder, error) {
	st, err := parseStatus(r.Status)
	if err != nil {
		return service.NewOrder{}, err
	}
	return service.NewOrder{
		ID:                r.ID,
		RequestID:         r.RequestID,
		Status:            st,
		ShippingCompanyID: r.ShippingCompanyID,
		Lines:             toDomainLines(r.Lines),
		ShippingCost:      r.ShippingCost,
		Discount:          r.Discount,
	}, nil
}

func (r VariantRequest) toVariant() domain.Variant {
	return domain.Variant{
		ID:             r.ID,
		ProductID:      r.ProductID,
		SKU:            r.SKU,
		TrackInventory: r.TrackInventory,
		StockQuantity:  r.StockQuantity,
		CostPrice:      r.CostPrice,
	}
}
