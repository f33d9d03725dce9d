package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestMux(t *testing.T) (*http.ServeMux, testServices) {
	s := newTestServices(t)
	h := NewHTTPHandler(s.orders, s.inventory, decimal.NewFromInt(1), zaptest.NewLogger(t))
	mux := http.NewServeMux()
	h.Register(mux)
	return mux, s
}

func doJSON(t *testing.T, mux http.Handler, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHTTPHealthCheck(t *testing.T) {
	mux, _ := newTestMux(t)
	rec := doJSON(t, mux, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHTTPCreateAndGetOrder(t *testing.T) {
	mux, s := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/orders", map[string]interface{}{
		"id":            "o1",
		"shipping_cost": "5",
		"lines": []map[string]interface{}{
			{"variant_id": "v1", "quantity": 3, "unit_price": "10", "unit_cost": "4"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "pending", created.Status)
	assert.True(t, created.Total.Equal(decimal.NewFromInt(35)))
	assert.True(t, created.NetValue.Equal(decimal.NewFromInt(29)))
	assert.Equal(t, 7, s.stock(t, "v1"))

	rec = doJSON(t, mux, http.MethodGet, "/api/orders/o1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Version)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, 3, got.Lines[0].Quantity)
}

func TestHTTPCreateOrder_InsufficientStock(t *testing.T) {
	mux, s := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/orders", map[string]interface{}{
		"lines": []map[string]interface{}{{"variant_id": "v1", "quantity": 11}},
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "insufficient stock for variant v1: available 10, requested 11", resp.Message)
	assert.Equal(t, 10, s.stock(t, "v1"))
}

func TestHTTPCreateOrder_DuplicateRequestHeader(t *testing.T) {
	mux, s := newTestMux(t)
	body := map[string]interface{}{
		"lines": []map[string]interface{}{{"variant_id": "v1", "quantity": 1}},
	}

	rec := doJSON(t, mux, http.MethodPost, "/api/orders", body, "X-Request-ID", "req-1")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/orders", body, "X-Request-ID", "req-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 9, s.stock(t, "v1"))
}

func TestHTTPCreateOrder_BadInput(t *testing.T) {
	mux, _ := newTestMux(t)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/orders", map[string]interface{}{
		"status": "lost",
		"lines":  []map[string]interface{}{{"variant_id": "v1", "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPUpdateOrder(t *testing.T) {
	mux, s := newTestMux(t)
	rec := doJSON(t, mux, http.MethodPost, "/api/orders", map[string]interface{}{
		"id":    "o1",
		"lines": []map[string]interface{}{{"variant_id": "v1", "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodPatch, "/api/orders/o1", map[string]interface{}{
		"expected_version": 1,
		"lines":            []map[string]interface{}{{"variant_id": "v1", "quantity": 5}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, s.stock(t, "v1"))

	rec = doJSON(t, mux, http.MethodPatch, "/api/orders/o1", map[string]interface{}{
		"expected_version": 1,
		"status":           "Returned",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, mux, http.MethodPatch, "/api/orders/o1", map[string]interface{}{"status": "Returned"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, s.stock(t, "v1"))

	rec = doJSON(t, mux, http.MethodGet, "/api/orders/o1/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []TransactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	assert.Len(t, txs, 3)

	rec = doJSON(t, mux, http.MethodPatch, "/api/orders/missing", map[string]interface{}{"status": "returned"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPBulkUpdateStatus(t *testing.T) {
	mux, s := newTestMux(t)
	for _, id := range []string{"o1", "o2"} {
		rec := doJSON(t, mux, http.MethodPost, "/api/orders", map[string]interface{}{
			"id":    id,
			"lines": []map[string]interface{}{{"variant_id": "v1", "quantity": 2}},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, mux, http.MethodPost, "/api/orders/status", map[string]interface{}{
		"order_ids": []string{"o1", "ghost", "o2"},
		"status":    "returned",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BulkStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"o1", "o2"}, resp.Succeeded)
	assert.Contains(t, resp.Failed, "ghost")
	assert.Equal(t, 10, s.stock(t, "v1"))

	rec = doJSON(t, mux, http.MethodPost, "/api/orders/status", map[string]interface{}{"order_ids": []string{"o1"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPVariantEndpoints(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPut, "/api/variants/v2", map[string]interface{}{
		"sku":             "TEE-L",
		"track_inventory": false,
		"stock_quantity":  4,
		"cost_price":      "3.5",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, mux, http.MethodPost, "/api/variants/v2/restock", map[string]interface{}{"quantity": 6, "note": "PO-1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/variants/v2/adjust", map[string]interface{}{"quantity": -20, "note": "count"})
	require.Equal(t, http.StatusCreated, rec.Code, "untracked variant may go negative")

	rec = doJSON(t, mux, http.MethodGet, "/api/variants/v2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var v VariantResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, -10, v.StockQuantity)
	assert.Equal(t, "TEE-L", v.SKU)

	rec = doJSON(t, mux, http.MethodGet, "/api/variants/v2/transactions?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var txs []TransactionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &txs))
	require.Len(t, txs, 2)
	assert.Equal(t, "adjustment", txs[0].Kind)

	rec = doJSON(t, mux, http.MethodGet, "/api/variants/v2/transactions?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/variants/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, mux, http.MethodPost, "/api/variants/v1/adjust", map[string]interface{}{"quantity": -11})
	assert.Equal(t, http.StatusConflict, rec.Code)
}
