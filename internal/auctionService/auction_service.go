package auction

import (
	"errors"
	"fmt"
	"time"

	"crop-auction/internal/auctionerrors"
	"crop-auction/internal/events"
	"crop-auction/internal/models"
	"crop-auction/internal/repository"
	"crop-auction/utils"

	"github.com/shopspring/decimal"
)

// DefaultBidIncrement is the platform increment applied when an auction is
// created without one.
var DefaultBidIncrement = decimal.NewFromInt(10)

// maxCommitAttempts bounds the validate-and-commit retry loop on write
// conflicts; a bid never blocks indefinitely behind a hot auction.
const maxCommitAttempts = 3

// ItemStatusSetter mirrors item status changes into the crop listing service
// when an auction starts or closes.
type ItemStatusSetter interface {
	SetItemStatus(itemID, status string) error
}

// AuctionService defines the business logic for auction bidding: lifecycle
// transitions, bid validation and application, and settlement reconciliation.
type AuctionService struct {
	repo      repository.AuctionStore
	items     ItemStatusSetter
	publisher events.Publisher
}

// NewAuctionService creates a new AuctionService instance
func NewAuctionService(repo repository.AuctionStore, items ItemStatusSetter, publisher events.Publisher) *AuctionService {
	return &AuctionService{
		repo:      repo,
		items:     items,
		publisher: publisher,
	}
}

// PlaceBid validates and commits a bidder's bid against an auction. The
// commit is an optimistic-concurrency loop: state is re-read and re-validated
// on every attempt, so a bid is never accepted against a stale highest-bid
// snapshot. When retries exhaust, the transient ErrConflictRetry is surfaced
// and the caller resubmits with fresh data.
func (s *AuctionService) PlaceBid(auctionID, bidderID string, amount decimal.Decimal, txRef string) (models.Bid, error) {
	if auctionID == "" || bidderID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - missing auctionID or bidderID", auctionerrors.ErrInvalidBid)
	}

	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		auction, err := s.repo.GetAuction(auctionID)
		if err != nil {
			return models.Bid{}, fmt.Errorf("service: failed to read auction %s: %w", auctionID, err)
		}

		if err := ValidateBid(auction, amount, time.Now().UTC()); err != nil {
			return models.Bid{}, fmt.Errorf("service: %w", err)
		}

		bid := models.Bid{
			BidID:     utils.GenerateID(),
			AuctionID: auctionID,
			BidderID:  bidderID,
			Amount:    amount,
			TxRef:     txRef,
			CreatedAt: time.Now().UTC(),
		}

		updated, err := s.repo.CommitBid(auctionID, auction.Version, bid)
		if err != nil {
			if errors.Is(err, auctionerrors.ErrVersionConflict) {
				continue
			}
			return models.Bid{}, fmt.Errorf("service: failed to commit bid for auction %s by bidder %s: %w", auctionID, bidderID, err)
		}

		bid.IsWinning = true
		s.publisher.BidPlaced(events.BidPlacedEvent{
			EventID:     utils.GenerateID(),
			AuctionID:   auctionID,
			BidID:       bid.BidID,
			BidderID:    bidderID,
			Amount:      amount,
			PreviousBid: auction.CurrentHighestBid,
			BidCount:    updated.TotalBidCount,
			Timestamp:   bid.CreatedAt,
		})
		return bid, nil
	}

	return models.Bid{}, fmt.Errorf("service: auction %s changed %d times during commit: %w", auctionID, maxCommitAttempts, auctionerrors.ErrConflictRetry)
}

// GetAuction returns one auction by id
func (s *AuctionService) GetAuction(auctionID string) (models.Auction, error) {
	if auctionID == "" {
		return models.Auction{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}

	auction, err := s.repo.GetAuction(auctionID)
	if err != nil {
		return models.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// GetBidsForAuction returns all bids for an auction ordered by
// (amount desc, bid time asc)
func (s *AuctionService) GetBidsForAuction(auctionID string) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}

	bids, err := s.repo.ListBidsByAuction(auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetWinningBid returns the currently winning bid for an auction. The winner
// is only a final sale signal once the auction has ended with its reserve met;
// callers must branch on the auction's NoSale flag for settlement decisions.
func (s *AuctionService) GetWinningBid(auctionID string) (models.Bid, error) {
	if auctionID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty auction ID", auctionerrors.ErrInvalidBid)
	}

	winningBid, err := s.repo.GetWinningBid(auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}
	return winningBid, nil
}

// GetBidsByBidder returns all bids a bidder has placed across auctions
func (s *AuctionService) GetBidsByBidder(bidderID string) ([]models.Bid, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("service: %w - empty bidder ID", auctionerrors.ErrInvalidBid)
	}

	bids, err := s.repo.ListBidsByBidder(bidderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for bidder %s: %w", bidderID, err)
	}
	return bids, nil
}
