package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier for auctions, bids and events
func GenerateID() string {
	return uuid.NewString()
}
