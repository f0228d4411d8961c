package auctionerrors

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionExists   = errors.New("auction already exists for item")
	ErrBidNotFound     = errors.New("bid not found")
	ErrNoBids          = errors.New("no bids found for auction")
	ErrBidderNoBids    = errors.New("bidder has not placed any bids")
	ErrVersionConflict = errors.New("auction state changed since read")
)

// Validation errors: rejected synchronously, never persisted
var (
	ErrInvalidBid          = errors.New("invalid bid")
	ErrInvalidAmount       = errors.New("bid amount must be positive")
	ErrBidTooLow           = errors.New("bid amount too low")
	ErrInvalidStartPrice   = errors.New("starting price must be positive")
	ErrInvalidReservePrice = errors.New("reserve price below starting price")
	ErrInvalidIncrement    = errors.New("bid increment must be positive")
	ErrInvalidDuration     = errors.New("auction duration must be positive")
)

// State errors: the auction exists but refuses the operation
var (
	ErrAuctionNotActive  = errors.New("auction is not active")
	ErrAuctionExpired    = errors.New("auction has expired")
	ErrAuctionNotEnded   = errors.New("auction has not reached its end time")
	ErrInvalidTransition = errors.New("illegal auction status transition")
)

// ErrConflictRetry is surfaced after bounded retries on write conflicts
// exhaust; the caller should resubmit against fresh state. It is a transient
// condition, distinct from ErrBidTooLow.
var ErrConflictRetry = errors.New("auction is receiving concurrent bids, try again")

// ErrReceiptConflict means a bid already carries a different settlement
// receipt; the first successful attachment wins.
var ErrReceiptConflict = errors.New("bid already reconciled with a different transaction reference")
