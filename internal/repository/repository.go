package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"crop-auction/internal/auctionerrors"
	model "crop-auction/internal/models"
)

// AuctionStore defines the auction/bid storage interface for the bidding
// engine. Every mutation of an auction row is keyed on the version the caller
// read, so a commit against a stale snapshot fails with ErrVersionConflict
// instead of silently overwriting a concurrent bid.
type AuctionStore interface {
	CreateAuction(auction model.Auction) error
	GetAuction(auctionID string) (model.Auction, error)
	// CommitBid atomically demotes the prior winning bid, inserts the new
	// winning bid and refreshes the auction's aggregate fields. All three
	// effects land or none do.
	CommitBid(auctionID string, expectedVersion int64, bid model.Bid) (model.Auction, error)
	// FinalizeAuction transitions the auction to a terminal status.
	FinalizeAuction(auctionID string, expectedVersion int64, status model.AuctionStatus, noSale bool) (model.Auction, error)
	GetBid(bidID string) (model.Bid, error)
	// AttachReceipt sets the external transaction reference on a committed
	// bid. Re-attaching the same reference is a no-op.
	AttachReceipt(bidID, txRef string) (model.Bid, error)
	ListBidsByAuction(auctionID string) ([]model.Bid, error)
	GetWinningBid(auctionID string) (model.Bid, error)
	ListBidsByBidder(bidderID string) ([]model.Bid, error)
	ListDueAuctions(now time.Time) ([]model.Auction, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionStore
type MemoryRepo struct {
	mu         sync.RWMutex
	auctions   map[string]model.Auction // key: auctionID
	bids       map[string][]model.Bid   // key: auctionID -> bids in insertion order
	bidIndex   map[string]bidLocation   // key: bidID
	bidderBids map[string][]string      // key: bidderID -> bidIDs in insertion order
}

type bidLocation struct {
	auctionID string
	pos       int
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:   make(map[string]model.Auction),
		bids:       make(map[string][]model.Bid),
		bidIndex:   make(map[string]bidLocation),
		bidderBids: make(map[string][]string),
	}
}

// CreateAuction persists a new auction row
func (r *MemoryRepo) CreateAuction(auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auction.AuctionID]; ok {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, auctionerrors.ErrAuctionExists)
	}
	if auction.Version == 0 {
		auction.Version = 1
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// GetAuction returns one auction by id
func (r *MemoryRepo) GetAuction(auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	return auction, nil
}

// CommitBid applies an accepted bid as one atomic unit: demote the previous
// winner, insert the new bid as winning and update the auction aggregates.
// The commit only succeeds against the auction version the caller validated.
func (r *MemoryRepo) CommitBid(auctionID string, expectedVersion int64, bid model.Bid) (model.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("commit bid for auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	if auction.Version != expectedVersion {
		return model.Auction{}, fmt.Errorf("commit bid for auction %s: %w", auctionID, auctionerrors.ErrVersionConflict)
	}

	existing := r.bids[auctionID]
	for i := range existing {
		if existing[i].IsWinning {
			existing[i].IsWinning = false
		}
	}

	bid.AuctionID = auctionID
	bid.IsWinning = true
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = time.Now().UTC()
	}
	// Bid times are monotone per auction even under clock jitter.
	if n := len(existing); n > 0 && !bid.CreatedAt.After(existing[n-1].CreatedAt) {
		bid.CreatedAt = existing[n-1].CreatedAt.Add(time.Nanosecond)
	}

	r.bids[auctionID] = append(existing, bid)
	r.bidIndex[bid.BidID] = bidLocation{auctionID: auctionID, pos: len(existing)}
	r.bidderBids[bid.BidderID] = append(r.bidderBids[bid.BidderID], bid.BidID)

	amount := bid.Amount
	auction.CurrentHighestBid = &amount
	auction.CurrentWinnerID = bid.BidderID
	auction.TotalBidCount++
	auction.Version++
	r.auctions[auctionID] = auction

	return auction, nil
}

// FinalizeAuction transitions the auction into a terminal status, guarded by
// the same version check as CommitBid so a close cannot race a bid commit.
func (r *MemoryRepo) FinalizeAuction(auctionID string, expectedVersion int64, status model.AuctionStatus, noSale bool) (model.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	auction, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("finalize auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
	}
	if auction.Version != expectedVersion {
		return model.Auction{}, fmt.Errorf("finalize auction %s: %w", auctionID, auctionerrors.ErrVersionConflict)
	}

	auction.Status = status
	auction.NoSale = noSale
	auction.Version++
	r.auctions[auctionID] = auction
	return auction, nil
}

// GetBid returns one bid by id
func (r *MemoryRepo) GetBid(bidID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loc, ok := r.bidIndex[bidID]
	if !ok {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, auctionerrors.ErrBidNotFound)
	}
	return r.bids[loc.auctionID][loc.pos], nil
}

// AttachReceipt records the external ledger transaction reference on a bid.
// Attaching the same reference again converges without any further write;
// attaching a different reference to a reconciled bid is refused.
func (r *MemoryRepo) AttachReceipt(bidID, txRef string) (model.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	loc, ok := r.bidIndex[bidID]
	if !ok {
		return model.Bid{}, fmt.Errorf("attach receipt to bid %s: %w", bidID, auctionerrors.ErrBidNotFound)
	}

	bid := r.bids[loc.auctionID][loc.pos]
	switch bid.TxRef {
	case txRef:
		return bid, nil
	case "":
		bid.TxRef = txRef
		r.bids[loc.auctionID][loc.pos] = bid
		return bid, nil
	default:
		return model.Bid{}, fmt.Errorf("attach receipt to bid %s: %w", bidID, auctionerrors.ErrReceiptConflict)
	}
}

// ListBidsByAuction returns all bids for an auction ordered by
// (amount desc, bid time asc)
func (r *MemoryRepo) ListBidsByAuction(auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids, ok := r.bids[auctionID]
	if !ok || len(bids) == 0 {
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}

	out := append([]model.Bid(nil), bids...)
	sort.SliceStable(out, func(i, j int) bool {
		switch out[i].Amount.Cmp(out[j].Amount) {
		case 1:
			return true
		case -1:
			return false
		default:
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
	})
	return out, nil
}

// GetWinningBid returns the currently winning bid for an auction
func (r *MemoryRepo) GetWinningBid(auctionID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids, ok := r.bids[auctionID]
	if !ok || len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}

	for i := len(bids) - 1; i >= 0; i-- {
		if bids[i].IsWinning {
			return bids[i], nil
		}
	}
	// Unreachable as long as CommitBid holds the single-winner invariant.
	return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
}

// ListBidsByBidder returns all bids a bidder has placed across auctions
func (r *MemoryRepo) ListBidsByBidder(bidderID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bidIDs, ok := r.bidderBids[bidderID]
	if !ok || len(bidIDs) == 0 {
		return nil, fmt.Errorf("list bids for bidder %s: %w", bidderID, auctionerrors.ErrBidderNoBids)
	}

	bids := make([]model.Bid, 0, len(bidIDs))
	for _, id := range bidIDs {
		if loc, exists := r.bidIndex[id]; exists {
			bids = append(bids, r.bids[loc.auctionID][loc.pos])
		}
	}
	return bids, nil
}

// SetEndTime rewrites an auction's end time without a version bump. This
// method is intended for tests only.
func (r *MemoryRepo) SetEndTime(auctionID string, end time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if auction, ok := r.auctions[auctionID]; ok {
		auction.EndTime = end
		r.auctions[auctionID] = auction
	}
}

// ListDueAuctions returns active auctions whose end time has passed
func (r *MemoryRepo) ListDueAuctions(now time.Time) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []model.Auction
	for _, auction := range r.auctions {
		if auction.Status == model.StatusActive && !now.Before(auction.EndTime) {
			due = append(due, auction)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].EndTime.Before(due[j].EndTime) })
	return due, nil
}
