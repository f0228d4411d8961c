package events

import (
	"encoding/json"
	"fmt"

	"crop-auction/utils"

	"github.com/nats-io/nats.go"
)

// Subjects follow "auction.<kind>.<auctionID>" so consumers can subscribe to
// one auction or wildcard across all of them.
const (
	subjectBidPlaced     = "auction.bids.%s"
	subjectAuctionClosed = "auction.closed.%s"
)

// NatsPublisher publishes auction events to NATS. Publishes are best effort:
// a broker failure is logged and never propagated to the bid path.
type NatsPublisher struct {
	conn *nats.Conn
}

// NewNatsPublisher connects to the broker at the given URL.
func NewNatsPublisher(url string) (*NatsPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("crop-auction"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return &NatsPublisher{conn: conn}, nil
}

// BidPlaced publishes a bid event off the request path
func (p *NatsPublisher) BidPlaced(event BidPlacedEvent) {
	go p.publish(fmt.Sprintf(subjectBidPlaced, event.AuctionID), event)
}

// AuctionClosed publishes a close event off the request path
func (p *NatsPublisher) AuctionClosed(event AuctionClosedEvent) {
	go p.publish(fmt.Sprintf(subjectAuctionClosed, event.AuctionID), event)
}

func (p *NatsPublisher) publish(subject string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		utils.Warn("events: failed to marshal event", map[string]any{"subject": subject, "error": err.Error()})
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		utils.Warn("events: failed to publish event", map[string]any{"subject": subject, "error": err.Error()})
	}
}

// Close drains the connection
func (p *NatsPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		utils.Warn("events: failed to drain nats connection", map[string]any{"error": err.Error()})
	}
}
