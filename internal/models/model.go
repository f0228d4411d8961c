package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus is the lifecycle state of an auction.
// Transitions are monotonic: upcoming -> active -> {ended, cancelled},
// with cancellation also allowed from upcoming. Terminal states never change.
type AuctionStatus string

const (
	StatusUpcoming  AuctionStatus = "upcoming"
	StatusActive    AuctionStatus = "active"
	StatusEnded     AuctionStatus = "ended"
	StatusCancelled AuctionStatus = "cancelled"
)

// Bidder represents a participant in an auction. The wallet address is an
// opaque key issued by the identity service; no cryptography is checked here.
type Bidder struct {
	BidderID      string `json:"bidder_id"`
	WalletAddress string `json:"wallet_address"`
}

// Auction is the durable price state of one crop listing under auction.
// CurrentHighestBid, CurrentWinnerID and TotalBidCount are caches of the bid
// history and must stay re-derivable by replaying the auction's bids.
// Version is the optimistic-concurrency token bumped on every committed
// mutation; a bid is only accepted against the version it validated against.
type Auction struct {
	AuctionID         string           `json:"auction_id"`
	ItemID            string           `json:"item_id"`
	StartingPrice     decimal.Decimal  `json:"starting_price"`
	ReservePrice      *decimal.Decimal `json:"reserve_price,omitempty"`
	BidIncrement      decimal.Decimal  `json:"bid_increment"`
	CurrentHighestBid *decimal.Decimal `json:"current_highest_bid,omitempty"`
	CurrentWinnerID   string           `json:"current_winner_id,omitempty"`
	StartTime         time.Time        `json:"start_time"`
	EndTime           time.Time        `json:"end_time"`
	Status            AuctionStatus    `json:"status"`
	NoSale            bool             `json:"no_sale"`
	TotalBidCount     int              `json:"total_bid_count"`
	Version           int64            `json:"-"`
}

// HasBids reports whether any bid has been accepted for the auction.
func (a Auction) HasBids() bool {
	return a.TotalBidCount > 0 && a.CurrentHighestBid != nil
}

// MinimumBid returns the smallest admissible bid amount given the current
// price state: starting price for the first bid, otherwise current highest
// plus the increment.
func (a Auction) MinimumBid() decimal.Decimal {
	if a.CurrentHighestBid == nil {
		return a.StartingPrice
	}
	return a.CurrentHighestBid.Add(a.BidIncrement)
}

// ReserveMet reports whether the close outcome counts as a sale. An auction
// without a reserve always sells if it has bids.
func (a Auction) ReserveMet() bool {
	if !a.HasBids() {
		return false
	}
	if a.ReservePrice == nil {
		return true
	}
	return a.CurrentHighestBid.GreaterThanOrEqual(*a.ReservePrice)
}

// Bid is one accepted price offer against an auction. Rejected attempts are
// never persisted. TxRef is the external ledger receipt attached by the
// settlement reconciler after the on-chain transfer confirms; it may stay
// empty forever without invalidating the bid.
type Bid struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	IsWinning bool            `json:"is_winning"`
	TxRef     string          `json:"tx_ref,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
