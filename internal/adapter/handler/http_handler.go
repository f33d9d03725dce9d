package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/stock-ledger/internal/core/service"
)

const requestIDHeader = "X-Request-ID"

type HTTPHandler struct {
	orders      *service.OrderService
	inventory   *service.InventoryService
	handlingFee decimal.Decimal
	logger      *zap.Logger
}

func NewHTTPHandler(orders *service.OrderService, inventory *service.InventoryService, handlingFee decimal.Decimal, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		orders:      orders,
		inventory:   inventory,
		handlingFee: handlingFee,
		logger:      logger,
	}
}

// Register mounts every route on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("PATCH /api/orders/{id}", h.UpdateOrder)
	mux.HandleFunc("GET /api/orders/{id}/transactions", h.OrderTransactions)
	mux.HandleFunc("POST /api/orders/status", h.BulkUpdateStatus)

	mux.HandleFunc("PUT /api/variants/{id}", h.SaveVariant)
	mux.HandleFunc("GET /api/variants/{id}", h.GetVariant)
	mux.HandleFunc("GET /api/variants/{id}/transactions", h.VariantTransactions)
	mux.HandleFunc("POST /api/variants/{id}/restock", h.Restock)
	mux.HandleFunc("POST /api/variants/{id}/adjust", h.Adjust)
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get(requestIDHeader)
	}

	in, err := req.toNewOrder()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.orders.CreateOrder(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order, h.handlingFee))
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(*order, h.handlingFee))
}

func (h *HTTPHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.OrderID = r.PathValue("id")
	if req.RequestID == "" {
		req.RequestID = r.Header.Get(requestIDHeader)
	}

	upd, err := req.toUpdate()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	order, err := h.orders.UpdateOrder(r.Context(), upd)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order, h.handlingFee))
}

func (h *HTTPHandler) OrderTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.inventory.OrderHistory(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponses(txs))
}

// BulkUpdateStatus answers 200 even when some orders failed; the body
// lists the outcome per order.
func (h *HTTPHandler) BulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req BulkStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	st, err := parseStatus(req.Status)
	if err == nil && st == "" {
		err = errMissingStatus
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result := h.orders.BulkUpdateStatus(r.Context(), req.OrderIDs, st)
	writeJSON(w, http.StatusOK, toBulkResponse(result))
}

func (h *HTTPHandler) SaveVariant(w http.ResponseWriter, r *http.Request) {
	var req VariantRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.ID = r.PathValue("id")

	v, err := h.inventory.SaveVariant(r.Context(), req.toVariant())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVariantResponse(v))
}

func (h *HTTPHandler) GetVariant(w http.ResponseWriter, r *http.Request) {
	v, err := h.inventory.GetVariant(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toVariantResponse(v))
}

func (h *HTTPHandler) VariantTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	id := r.PathValue("id")
	if _, err := h.inventory.GetVariant(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	txs, err := h.inventory.History(r.Context(), id, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponses(txs))
}

func (h *HTTPHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req StockChangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := h.inventory.Restock(r.Context(), r.PathValue("id"), req.Quantity, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (h *HTTPHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req StockChangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := h.inventory.Adjust(r.Context(), r.PathValue("id"), req.Quantity, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Success: false,
			Message: "invalid request body",
		})
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, _, message := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, ErrorResponse{
		Success: false,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
