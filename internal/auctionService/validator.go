package auction

import (
	"fmt"
	"time"

	"crop-auction/internal/auctionerrors"
	"crop-auction/internal/models"

	"github.com/shopspring/decimal"
)

// ValidateBid decides whether a proposed amount is admissible against the
// given auction snapshot. Checks run in order: status, wall clock, amount
// sign, increment rule. The wall-clock check does not trust Status alone, so
// an expired auction rejects bids even before the lifecycle sweep flips it to
// ended. Pure: no side effects, safe to call concurrently.
func ValidateBid(auction models.Auction, amount decimal.Decimal, now time.Time) error {
	if auction.Status != models.StatusActive {
		return fmt.Errorf("%w - status is %s", auctionerrors.ErrAuctionNotActive, auction.Status)
	}
	if !now.Before(auction.EndTime) {
		return fmt.Errorf("%w - ended at %s", auctionerrors.ErrAuctionExpired, auction.EndTime.UTC().Format(time.RFC3339))
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w - got %s", auctionerrors.ErrInvalidAmount, amount)
	}
	if minimum := auction.MinimumBid(); amount.LessThan(minimum) {
		// The message carries the exact minimum so the caller can retry.
		return fmt.Errorf("%w - minimum acceptable bid is %s", auctionerrors.ErrBidTooLow, minimum)
	}
	return nil
}
