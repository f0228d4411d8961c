package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	auction "crop-auction/internal/auctionService"
	"crop-auction/internal/events"
	"crop-auction/internal/listing"
	model "crop-auction/internal/models"
	"crop-auction/internal/repository"
	"crop-auction/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// SetupTestRouter initializes the router with an in-memory repository for
// integration testing, returning the repo for direct state seeding.
func SetupTestRouter() (*gin.Engine, *repository.MemoryRepo) {
	gin.SetMode(gin.TestMode)
	repo := repository.NewMemoryRepo()
	service := auction.NewAuctionService(repo, listing.NoopClient{}, events.NoopPublisher{})
	router := server.SetupRouter(service)
	return router, repo
}

// ExecuteRequestAndParse executes an HTTP request on the given router and
// parses the response envelope, returning the data payload for 2xx responses.
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		require.NoError(t, err, "failed to marshal body")
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "failed to unmarshal response")

		if w.Code >= 200 && w.Code < 300 {
			if data, ok := resp["data"].(map[string]any); ok {
				resp = data
			}
		}
	}

	return resp, w
}

// CreateAuctionViaAPI creates an auction through the public API and returns its id
func CreateAuctionViaAPI(t *testing.T, router *gin.Engine, body map[string]any) string {
	t.Helper()

	resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auctions", body)
	require.Equal(t, http.StatusCreated, w.Code, "auction create failed: %v", resp)
	return resp["auction_id"].(string)
}

// SeedExpiredAuction plants an active auction whose end time has already
// passed, bypassing the API so the lifecycle sweep has not run yet.
func SeedExpiredAuction(t *testing.T, repo *repository.MemoryRepo, auctionID string) {
	t.Helper()

	now := time.Now().UTC()
	require.NoError(t, repo.CreateAuction(model.Auction{
		AuctionID:     auctionID,
		ItemID:        auctionID + "-item",
		StartingPrice: decimal.NewFromInt(100),
		BidIncrement:  decimal.NewFromInt(10),
		StartTime:     now.Add(-2 * time.Hour),
		EndTime:       now.Add(-1 * time.Hour),
		Status:        model.StatusActive,
		Version:       1,
	}))
}
