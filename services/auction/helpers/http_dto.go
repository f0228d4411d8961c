package helpers

import (
	"time"

	model "crop-auction/internal/models"
)

// Request/Response DTOs. Monetary amounts travel as strings and are parsed
// with decimal.NewFromString, never as floats.
type CreateAuctionRequest struct {
	ItemID        string  `json:"item_id" binding:"required"`
	StartingPrice string  `json:"starting_price" binding:"required"`
	ReservePrice  string  `json:"reserve_price"`
	BidIncrement  string  `json:"bid_increment"`
	DurationHours float64 `json:"duration_hours" binding:"required,gt=0"`
}

type PlaceBidRequest struct {
	AuctionID string `json:"auction_id" binding:"required"`
	BidderID  string `json:"bidder_id" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	TxRef     string `json:"tx_ref"`
}

type AttachReceiptRequest struct {
	TxRef string `json:"tx_ref" binding:"required"`
}

type BidResponse struct {
	BidID     string `json:"bid_id"`
	AuctionID string `json:"auction_id"`
	BidderID  string `json:"bidder_id"`
	Amount    string `json:"amount"`
	IsWinning bool   `json:"is_winning"`
	TxRef     string `json:"tx_ref,omitempty"`
	CreatedAt string `json:"created_at"`
}

type AuctionResponse struct {
	AuctionID         string `json:"auction_id"`
	ItemID            string `json:"item_id"`
	StartingPrice     string `json:"starting_price"`
	ReservePrice      string `json:"reserve_price,omitempty"`
	BidIncrement      string `json:"bid_increment"`
	CurrentHighestBid string `json:"current_highest_bid,omitempty"`
	CurrentWinnerID   string `json:"current_winner_id,omitempty"`
	StartTime         string `json:"start_time"`
	EndTime           string `json:"end_time"`
	Status            string `json:"status"`
	NoSale            bool   `json:"no_sale"`
	TotalBidCount     int    `json:"total_bid_count"`
}

// ToBidResponse converts a bid entity into its API shape
func ToBidResponse(bid model.Bid) BidResponse {
	return BidResponse{
		BidID:     bid.BidID,
		AuctionID: bid.AuctionID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount.String(),
		IsWinning: bid.IsWinning,
		TxRef:     bid.TxRef,
		CreatedAt: bid.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ToBidResponses converts a slice of bid entities, preserving order
func ToBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, bid := range bids {
		out = append(out, ToBidResponse(bid))
	}
	return out
}

// ToAuctionResponse converts an auction entity into its API shape
func ToAuctionResponse(auction model.Auction) AuctionResponse {
	resp := AuctionResponse{
		AuctionID:       auction.AuctionID,
		ItemID:          auction.ItemID,
		StartingPrice:   auction.StartingPrice.String(),
		BidIncrement:    auction.BidIncrement.String(),
		CurrentWinnerID: auction.CurrentWinnerID,
		StartTime:       auction.StartTime.UTC().Format(time.RFC3339),
		EndTime:         auction.EndTime.UTC().Format(time.RFC3339),
		Status:          string(auction.Status),
		NoSale:          auction.NoSale,
		TotalBidCount:   auction.TotalBidCount,
	}
	if auction.ReservePrice != nil {
		resp.ReservePrice = auction.ReservePrice.String()
	}
	if auction.CurrentHighestBid != nil {
		resp.CurrentHighestBid = auction.CurrentHighestBid.String()
	}
	return resp
}
