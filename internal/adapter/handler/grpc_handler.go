package handler

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stock-ledger/internal/core/service"
)

const LedgerServiceName = "stockledger.v1.LedgerService"

type GetVariantRequest struct {
	VariantID string `json:"variant_id"`
}

// LedgerServiceServer is the gRPC surface of the ledger.
type LedgerServiceServer interface {
	CreateOrder(context.Context, *CreateOrderRequest) (*OrderResponse, error)
	UpdateOrder(context.Context, *UpdateOrderRequest) (*OrderResponse, error)
	BulkUpdateStatus(context.Context, *BulkStatusRequest) (*BulkStatusResponse, error)
	AdjustStock(context.Context, *StockChangeRequest) (*TransactionResponse, error)
	GetVariant(context.Context, *GetVariantRequest) (*VariantResponse, error)
}

type GRPCHandler struct {
	orders      *service.OrderService
	inventory   *service.InventoryService
	handlingFee decimal.Decimal
	logger      *zap.Logger
}

func NewGRPCHandler(orders *service.OrderService, inventory *service.InventoryService, handlingFee decimal.Decimal, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{
		orders:      orders,
		inventory:   inventory,
		handlingFee: handlingFee,
		logger:      logger,
	}
}

// RegisterLedgerServiceServer registers srv on s.
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&ledgerServiceDesc, srv)
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
	in, err := req.toNewOrder()
	if err != nil {
		return nil, h.toStatus("CreateOrder", err)
	}
	order, err := h.orders.CreateOrder(ctx, in)
	if err != nil {
		return nil, h.toStatus("CreateOrder", err)
	}
	resp := toOrderResponse(order, h.handlingFee)
	return &resp, nil
}

func (h *GRPCHandler) UpdateOrder(ctx context.Context, req *UpdateOrderRequest) (*OrderResponse, error) {
	upd, err := req.toUpdate()
	if err != nil {
		return nil, h.toStatus("UpdateOrder", err)
	}
	order, err := h.orders.UpdateOrder(ctx, upd)
	if err != nil {
		return nil, h.toStatus("UpdateOrder", err)
	}
	resp := toOrderResponse(order, h.handlingFee)
	return &resp, nil
}

func (h *GRPCHandler) BulkUpdateStatus(ctx context.Context, req *BulkStatusRequest) (*BulkStatusResponse, error) {
	st, err := parseStatus(req.Status)
	if err == nil && st == "" {
		err = errMissingStatus
	}
	if err != nil {
		return nil, h.toStatus("BulkUpdateStatus", err)
	}
	resp := toBulkResponse(h.orders.BulkUpdateStatus(ctx, req.OrderIDs, st))
	return &resp, nil
}

// AdjustStock books a positive quantity as a restock and a negative one as
// a manual adjustment.
func (h *GRPCHandler) AdjustStock(ctx context.Context, req *StockChangeRequest) (*TransactionResponse, error) {
	var (
		resp TransactionResponse
		err  error
	)
	if req.Quantity > 0 {
		tx, e := h.inventory.Restock(ctx, req.VariantID, req.Quantity, req.Note)
		resp, err = toTransactionResponse(tx), e
	} else {
		tx, e := h.inventory.Adjust(ctx, req.VariantID, req.Quantity, req.Note)
		resp, err = toTransactionResponse(tx), e
	}
	if err != nil {
		return nil, h.toStatus("AdjustStock", err)
	}
	return &resp, nil
}

func (h *GRPCHandler) GetVariant(ctx context.Context, req *GetVariantRequest) (*VariantResponse, error) {
	v, err := h.inventory.GetVariant(ctx, req.VariantID)
	if err != nil {
		return nil, h.toStatus("GetVariant", err)
	}
	resp := toVariantResponse(v)
	return &resp, nil
}

func (h *GRPCHandler) toStatus(method string, err error) error {
	_, code, message := classify(err)
	if code == codes.Internal || code == codes.Unavailable {
		h.logger.Error("rpc failed", zap.String("method", method), zap.Error(err))
	}
	return status.Error(code, message)
}

var ledgerServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateOrder",
			Handler: unaryHandler("CreateOrder", func(s LedgerServiceServer, ctx context.Context, req *CreateOrderRequest) (*OrderResponse, error) {
				return s.CreateOrder(ctx, req)
			}),
		},
		{
			MethodName: "UpdateOrder",
			Handler: unaryHandler("UpdateOrder", func(s LedgerServiceServer, ctx context.Context, req *UpdateOrderRequest) (*OrderResponse, error) {
				return s.UpdateOrder(ctx, req)
			}),
		},
		{
			MethodName: "BulkUpdateStatus",
			Handler: unaryHandler("BulkUpdateStatus", func(s LedgerServiceServer, ctx context.Context, req *BulkStatusRequest) (*BulkStatusResponse, error) {
				return s.BulkUpdateStatus(ctx, req)
			}),
		},
		{
			MethodName: "AdjustStock",
			Handler: unaryHandler("AdjustStock", func(s LedgerServiceServer, ctx context.Context, req *StockChangeRequest) (*TransactionResponse, error) {
				return s.AdjustStock(ctx, req)
			}),
		},
		{
			MethodName: "GetVariant",
			Handler: unaryHandler("GetVariant", func(s LedgerServiceServer, ctx context.Context, req *GetVariantRequest) (*VariantResponse, error) {
				return s.GetVariant(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stockledger/v1/ledger.json",
}

// unaryHandler decodes the request and runs call through the server's
// interceptor chain.
func unaryHandler[Req, Resp any](method string, call func(LedgerServiceServer, context.Context, *Req) (*Resp, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := "/" + LedgerServiceName + "/" + method
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
