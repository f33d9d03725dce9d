package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/stock-ledger/internal/core/domain"
	"github.com/rl1809/stock-ledger/internal/core/service"
)

var errMissingStatus = domain.NewInvalidInput("status", "is required")

// classify maps a service error to the HTTP status, gRPC code and the
// message shown to the caller.
func classify(err error) (int, codes.Code, string) {
	var (
		ise     *domain.InsufficientStockError
		invalid *domain.InvalidTransitionInputError
	)

	switch {
	case errors.As(err, &ise):
		return http.StatusConflict, codes.FailedPrecondition, ise.Error()
	case errors.As(err, &invalid):
		return http.StatusBadRequest, codes.InvalidArgument, invalid.Error()
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrVariantNotFound):
		return http.StatusNotFound, codes.NotFound, err.Error()
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, codes.AlreadyExists, "duplicate request"
	case errors.Is(err, domain.ErrOptimisticLock):
		return http.StatusConflict, codes.Aborted, err.Error()
	case errors.Is(err, domain.ErrOrderExists), errors.Is(err, domain.ErrVariantExists):
		return http.StatusConflict, codes.AlreadyExists, err.Error()
	case service.IsRetryable(err):
		return http.StatusServiceUnavailable, codes.Unavailable, "stock update failed, please retry"
	case errors.Is(err, domain.ErrStockConflict):
		return http.StatusConflict, codes.FailedPrecondition, "stock changed during the update, please retry"
	default:
		return http.StatusInternalServerError, codes.Internal, "internal error"
	}
}
