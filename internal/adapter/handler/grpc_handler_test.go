package handler

import (
	"context"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func newTestConn(t *testing.T) (*grpc.ClientConn, testServices) {
	s := newTestServices(t)
	lis := bufconn.Listen(bufSize)

	server := grpc.NewServer()
	RegisterLedgerServiceServer(server, NewGRPCHandler(s.orders, s.inventory, decimal.Zero, zaptest.NewLogger(t)))
	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(JSONCodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, s
}

func invoke(conn *grpc.ClientConn, method string, req, resp interface{}) error {
	return conn.Invoke(context.Background(), "/"+LedgerServiceName+"/"+method, req, resp)
}

func TestGRPCOrderFlow(t *testing.T) {
	conn, s := newTestConn(t)

	var created OrderResponse
	err := invoke(conn, "CreateOrder", &CreateOrderRequest{
		ID:    "o1",
		Lines: []OrderLineDTO{{VariantID: "v1", Quantity: 3, UnitPrice: decimal.NewFromInt(10)}},
	}, &created)
	require.NoError(t, err)
	assert.Equal(t, "o1", created.ID)
	assert.Equal(t, 7, s.stock(t, "v1"))

	returned := "returned"
	var updated OrderResponse
	err = invoke(conn, "UpdateOrder", &UpdateOrderRequest{OrderID: "o1", Status: &returned}, &updated)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, 10, s.stock(t, "v1"))

	var bulk BulkStatusResponse
	err = invoke(conn, "BulkUpdateStatus", &BulkStatusRequest{OrderIDs: []string{"o1", "ghost"}, Status: "processing"}, &bulk)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, bulk.Succeeded)
	assert.Contains(t, bulk.Failed, "ghost")
	assert.Equal(t, 7, s.stock(t, "v1"))
}

func TestGRPCCreateOrder_InsufficientStock(t *testing.T) {
	conn, _ := newTestConn(t)

	var resp OrderResponse
	err := invoke(conn, "CreateOrder", &CreateOrderRequest{
		Lines: []OrderLineDTO{{VariantID: "v1", Quantity: 50}},
	}, &resp)

	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.FailedPrecondition, st.Code())
	assert.Contains(t, st.Message(), "available 10, requested 50")
}

func TestGRPCAdjustAndGetVariant(t *testing.T) {
	conn, _ := newTestConn(t)

	var tx TransactionResponse
	require.NoError(t, invoke(conn, "AdjustStock", &StockChangeRequest{VariantID: "v1", Quantity: 5, Note: "PO-9"}, &tx))
	assert.Equal(t, "restock", tx.Kind)

	require.NoError(t, invoke(conn, "AdjustStock", &StockChangeRequest{VariantID: "v1", Quantity: -3}, &tx))
	assert.Equal(t, "adjustment", tx.Kind)

	var v VariantResponse
	require.NoError(t, invoke(conn, "GetVariant", &GetVariantRequest{VariantID: "v1"}, &v))
	assert.Equal(t, 12, v.StockQuantity)

	err := invoke(conn, "GetVariant", &GetVariantRequest{VariantID: "ghost"}, &v)
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = invoke(conn, "AdjustStock", &StockChangeRequest{VariantID: "v1", Quantity: 0}, &tx)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
