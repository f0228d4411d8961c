package listing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Item status values the auction engine pushes to the listing service.
const (
	StatusUnderAuction = "under_auction"
	StatusAvailable    = "available"
	StatusSold         = "sold"
)

// Client mirrors item status changes into the crop listing service over its
// REST API. The auction record is the authority; this is a projection.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a listing service client against the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// SetItemStatus updates the listing's status field
func (c *Client) SetItemStatus(itemID, status string) error {
	payload, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return fmt.Errorf("listing: marshal status update: %w", err)
	}

	url := fmt.Sprintf("%s/items/%s/status", c.baseURL, itemID)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("listing: build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("listing: set status for item %s: %w", itemID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("listing: set status for item %s: unexpected status %d", itemID, resp.StatusCode)
	}
	return nil
}

// NoopClient satisfies the service's collaborator interface when no listing
// service is configured.
type NoopClient struct{}

func (NoopClient) SetItemStatus(itemID, status string) error { return nil }
