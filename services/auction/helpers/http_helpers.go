package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"crop-auction/internal/auctionerrors"
	"crop-auction/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// ParseAmount parses a string-typed monetary field
func ParseAmount(field, value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w - %s is not a valid amount: %q", auctionerrors.ErrInvalidAmount, field, value)
	}
	return amount, nil
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message.
// State errors deliberately distinguish "never existed" (404) from "existed
// but refuses the operation" (422), and the transient conflict (409 with a
// resubmit hint) from a permanent bid-too-low rejection.
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, auctionerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, auctionerrors.ErrBidNotFound):
		return http.StatusNotFound, "bid not found"
	case errors.Is(err, auctionerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, auctionerrors.ErrConflictRetry):
		return http.StatusConflict, "auction is busy, resubmit with fresh data"
	case errors.Is(err, auctionerrors.ErrReceiptConflict):
		return http.StatusConflict, "bid already reconciled"
	case errors.Is(err, auctionerrors.ErrAuctionNotActive),
		errors.Is(err, auctionerrors.ErrAuctionExpired),
		errors.Is(err, auctionerrors.ErrAuctionNotEnded),
		errors.Is(err, auctionerrors.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, "auction state does not allow this operation"
	case errors.Is(err, auctionerrors.ErrAuctionExists):
		return http.StatusConflict, "auction already exists for item"
	case errors.Is(err, auctionerrors.ErrInvalidBid),
		errors.Is(err, auctionerrors.ErrInvalidAmount),
		errors.Is(err, auctionerrors.ErrInvalidStartPrice),
		errors.Is(err, auctionerrors.ErrInvalidReservePrice),
		errors.Is(err, auctionerrors.ErrInvalidIncrement),
		errors.Is(err, auctionerrors.ErrInvalidDuration):
		return http.StatusBadRequest, "invalid request details"
	case errors.Is(err, auctionerrors.ErrNoBids):
		return http.StatusOK, "no bids found for auction"
	case errors.Is(err, auctionerrors.ErrBidderNoBids):
		return http.StatusOK, "no bids found for bidder"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
