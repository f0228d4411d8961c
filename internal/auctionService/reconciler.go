package auction

import (
	"fmt"

	"crop-auction/internal/auctionerrors"
	"crop-auction/internal/models"
	"crop-auction/utils"
)

// AttachReceipt links an off-chain bid to its confirmed external ledger
// transaction. The operation is purely additive and idempotent: resubmitting
// the same (bidID, txRef) pair converges without further writes, so a client
// that crashed after the on-chain transfer confirmed can always retry. A
// missing receipt never invalidates the bid; the off-chain amount stands on
// its own.
func (s *AuctionService) AttachReceipt(bidID, txRef string) (models.Bid, error) {
	if bidID == "" || txRef == "" {
		return models.Bid{}, fmt.Errorf("service: %w - missing bidID or txRef", auctionerrors.ErrInvalidBid)
	}

	bid, err := s.repo.AttachReceipt(bidID, txRef)
	if err != nil {
		utils.Warn("service: receipt attachment failed", map[string]any{
			"bid_id": bidID,
			"tx_ref": txRef,
			"error":  err.Error(),
		})
		return models.Bid{}, fmt.Errorf("service: failed to attach receipt to bid %s: %w", bidID, err)
	}
	return bid, nil
}
