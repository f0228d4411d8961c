package auction

import (
	"errors"
	"fmt"
	"time"

	"crop-auction/internal/auctionerrors"
	"crop-auction/internal/events"
	"crop-auction/internal/listing"
	"crop-auction/internal/models"
	"crop-auction/utils"

	"github.com/shopspring/decimal"
)

// CreateAuctionParams carries the price and time parameters for a new
// auction. A zero BidIncrement means the platform default applies.
type CreateAuctionParams struct {
	StartingPrice decimal.Decimal
	ReservePrice  *decimal.Decimal
	BidIncrement  decimal.Decimal
	Duration      time.Duration
}

// CreateAuction validates the price/time parameters, persists the auction as
// immediately active and mirrors the item's status into the listing service.
// There is no pre-auction staging window: start time is now and the end time
// is fixed at creation, never moved by bidding.
func (s *AuctionService) CreateAuction(itemID string, params CreateAuctionParams) (models.Auction, error) {
	if itemID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - missing itemID", auctionerrors.ErrInvalidBid)
	}
	if !params.StartingPrice.IsPositive() {
		return models.Auction{}, fmt.Errorf("service: %w - got %s", auctionerrors.ErrInvalidStartPrice, params.StartingPrice)
	}
	if params.ReservePrice != nil && params.ReservePrice.LessThan(params.StartingPrice) {
		return models.Auction{}, fmt.Errorf("service: %w - reserve %s below starting price %s",
			auctionerrors.ErrInvalidReservePrice, params.ReservePrice, params.StartingPrice)
	}
	increment := params.BidIncrement
	if increment.IsZero() {
		increment = DefaultBidIncrement
	}
	if !increment.IsPositive() {
		return models.Auction{}, fmt.Errorf("service: %w - got %s", auctionerrors.ErrInvalidIncrement, increment)
	}
	if params.Duration <= 0 {
		return models.Auction{}, fmt.Errorf("service: %w - got %s", auctionerrors.ErrInvalidDuration, params.Duration)
	}

	now := time.Now().UTC()
	auction := models.Auction{
		AuctionID:     utils.GenerateID(),
		ItemID:        itemID,
		StartingPrice: params.StartingPrice,
		ReservePrice:  params.ReservePrice,
		BidIncrement:  increment,
		StartTime:     now,
		EndTime:       now.Add(params.Duration),
		Status:        models.StatusActive,
		Version:       1,
	}

	if err := s.repo.CreateAuction(auction); err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to create auction for item %s: %w", itemID, err)
	}

	// The auction record is the authority; a listing-side failure is logged
	// and does not roll the auction back.
	if err := s.items.SetItemStatus(itemID, listing.StatusUnderAuction); err != nil {
		utils.Warn("service: failed to mark item under auction", map[string]any{
			"item_id":    itemID,
			"auction_id": auction.AuctionID,
			"error":      err.Error(),
		})
	}

	return auction, nil
}

// CloseAuction transitions an active auction past its end time to ended.
// With a reserve set and unmet (or no bids at all), the close is still
// recorded as ended but flagged NoSale: no winner is considered final and
// callers branch on the flag rather than on an error. Closing an already
// ended auction is a no-op.
func (s *AuctionService) CloseAuction(auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}

	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		auction, err := s.repo.GetAuction(auctionID)
		if err != nil {
			return models.Auction{}, fmt.Errorf("service: failed to read auction %s: %w", auctionID, err)
		}

		switch auction.Status {
		case models.StatusEnded:
			return auction, nil
		case models.StatusCancelled:
			return models.Auction{}, fmt.Errorf("service: %w - auction %s is cancelled", auctionerrors.ErrInvalidTransition, auctionID)
		case models.StatusUpcoming:
			return models.Auction{}, fmt.Errorf("service: %w - auction %s has not started", auctionerrors.ErrAuctionNotActive, auctionID)
		}

		if time.Now().UTC().Before(auction.EndTime) {
			return models.Auction{}, fmt.Errorf("service: %w - auction %s ends at %s",
				auctionerrors.ErrAuctionNotEnded, auctionID, auction.EndTime.UTC().Format(time.RFC3339))
		}

		noSale := !auction.ReserveMet()
		closed, err := s.repo.FinalizeAuction(auctionID, auction.Version, models.StatusEnded, noSale)
		if err != nil {
			if errors.Is(err, auctionerrors.ErrVersionConflict) {
				continue
			}
			return models.Auction{}, fmt.Errorf("service: failed to close auction %s: %w", auctionID, err)
		}

		s.afterClose(closed)
		return closed, nil
	}

	return models.Auction{}, fmt.Errorf("service: auction %s kept changing during close: %w", auctionID, auctionerrors.ErrConflictRetry)
}

// CancelAuction cancels an upcoming or active auction. There is no way out
// of a terminal status.
func (s *AuctionService) CancelAuction(auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}

	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		auction, err := s.repo.GetAuction(auctionID)
		if err != nil {
			return models.Auction{}, fmt.Errorf("service: failed to read auction %s: %w", auctionID, err)
		}

		if auction.Status != models.StatusUpcoming && auction.Status != models.StatusActive {
			return models.Auction{}, fmt.Errorf("service: %w - auction %s is %s", auctionerrors.ErrInvalidTransition, auctionID, auction.Status)
		}

		cancelled, err := s.repo.FinalizeAuction(auctionID, auction.Version, models.StatusCancelled, false)
		if err != nil {
			if errors.Is(err, auctionerrors.ErrVersionConflict) {
				continue
			}
			return models.Auction{}, fmt.Errorf("service: failed to cancel auction %s: %w", auctionID, err)
		}

		s.afterClose(cancelled)
		return cancelled, nil
	}

	return models.Auction{}, fmt.Errorf("service: auction %s kept changing during cancel: %w", auctionID, auctionerrors.ErrConflictRetry)
}

// CloseDueAuctions sweeps every active auction whose end time has passed.
// Returns the number of auctions closed. Intended for a scheduled ticker.
func (s *AuctionService) CloseDueAuctions() (int, error) {
	due, err := s.repo.ListDueAuctions(time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("service: failed to list due auctions: %w", err)
	}

	closed := 0
	for _, auction := range due {
		if _, err := s.CloseAuction(auction.AuctionID); err != nil {
			utils.Warn("service: failed to close due auction", map[string]any{
				"auction_id": auction.AuctionID,
				"error":      err.Error(),
			})
			continue
		}
		closed++
	}
	return closed, nil
}

// afterClose mirrors the terminal status to the listing service and publishes
// the close event. Both are projections of the committed auction row.
func (s *AuctionService) afterClose(auction models.Auction) {
	itemStatus := listing.StatusAvailable
	if auction.Status == models.StatusEnded && !auction.NoSale {
		itemStatus = listing.StatusSold
	}
	if err := s.items.SetItemStatus(auction.ItemID, itemStatus); err != nil {
		utils.Warn("service: failed to update item status after close", map[string]any{
			"item_id":    auction.ItemID,
			"auction_id": auction.AuctionID,
			"status":     itemStatus,
			"error":      err.Error(),
		})
	}

	s.publisher.AuctionClosed(events.AuctionClosedEvent{
		EventID:   utils.GenerateID(),
		AuctionID: auction.AuctionID,
		ItemID:    auction.ItemID,
		Status:    string(auction.Status),
		NoSale:    auction.NoSale,
		FinalBid:  auction.CurrentHighestBid,
		WinnerID:  auction.CurrentWinnerID,
		Timestamp: time.Now().UTC(),
	})
}
