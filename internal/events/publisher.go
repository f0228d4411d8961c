package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// BidPlacedEvent is published after a bid commit lands. Consumers (dashboard
// aggregation, notification fan-out) read it off the broker; the bid write
// path never waits on them.
type BidPlacedEvent struct {
	EventID     string           `json:"event_id"`
	AuctionID   string           `json:"auction_id"`
	BidID       string           `json:"bid_id"`
	BidderID    string           `json:"bidder_id"`
	Amount      decimal.Decimal  `json:"amount"`
	PreviousBid *decimal.Decimal `json:"previous_bid,omitempty"`
	BidCount    int              `json:"bid_count"`
	Timestamp   time.Time        `json:"timestamp"`
}

// AuctionClosedEvent is published when an auction reaches a terminal status.
type AuctionClosedEvent struct {
	EventID   string           `json:"event_id"`
	AuctionID string           `json:"auction_id"`
	ItemID    string           `json:"item_id"`
	Status    string           `json:"status"`
	NoSale    bool             `json:"no_sale"`
	FinalBid  *decimal.Decimal `json:"final_bid,omitempty"`
	WinnerID  string           `json:"winner_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Publisher delivers auction events to downstream consumers. Implementations
// must not block the caller on broker latency.
type Publisher interface {
	BidPlaced(event BidPlacedEvent)
	AuctionClosed(event AuctionClosedEvent)
}

// NoopPublisher discards all events. Used when no broker is configured and
// in tests.
type NoopPublisher struct{}

func (NoopPublisher) BidPlaced(BidPlacedEvent)         {}
func (NoopPublisher) AuctionClosed(AuctionClosedEvent) {}
