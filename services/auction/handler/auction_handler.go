package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"crop-auction/internal/auctionerrors"
	auction "crop-auction/internal/auctionService"
	model "crop-auction/internal/models"
	"crop-auction/services/auction/helpers"
	"crop-auction/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type AuctionServiceInterface interface {
	CreateAuction(itemID string, params auction.CreateAuctionParams) (model.Auction, error)
	PlaceBid(auctionID, bidderID string, amount decimal.Decimal, txRef string) (model.Bid, error)
	AttachReceipt(bidID, txRef string) (model.Bid, error)
	GetAuction(auctionID string) (model.Auction, error)
	GetBidsForAuction(auctionID string) ([]model.Bid, error)
	GetWinningBid(auctionID string) (model.Bid, error)
	GetBidsByBidder(bidderID string) ([]model.Bid, error)
	CloseAuction(auctionID string) (model.Auction, error)
	CancelAuction(auctionID string) (model.Auction, error)
}

type AuctionHandler struct {
	service AuctionServiceInterface
}

func NewAuctionHandler(service AuctionServiceInterface) *AuctionHandler {
	return &AuctionHandler{service: service}
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	params, err := buildCreateParams(req)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, err, message)
		utils.Warn("CreateAuctionHandler: invalid parameters", map[string]any{"item_id": req.ItemID, "error": err.Error()})
		return
	}

	created, err := h.service.CreateAuction(req.ItemID, params)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("CreateAuctionHandler: failed to create auction", map[string]any{
			"item_id": req.ItemID,
			"error":   err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToAuctionResponse(created), "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": created.AuctionID,
		"item_id":    created.ItemID,
		"end_time":   created.EndTime,
	})
}

// PlaceBidHandler handles POST /bids
func (h *AuctionHandler) PlaceBidHandler(c *gin.Context) {
	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	amount, err := helpers.ParseAmount("amount", req.Amount)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, err, message)
		utils.Warn("PlaceBidHandler: invalid amount", map[string]any{"auction_id": req.AuctionID, "error": err.Error()})
		return
	}

	bid, err := h.service.PlaceBid(req.AuctionID, req.BidderID, amount, req.TxRef)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("PlaceBidHandler: failed to place bid", map[string]any{
			"handler":    "PlaceBidHandler",
			"auction_id": req.AuctionID,
			"bidder_id":  req.BidderID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToBidResponse(bid), "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": bid.AuctionID,
		"bidder_id":  req.BidderID,
		"amount":     bid.Amount.String(),
	})
}

// AttachReceiptHandler handles POST /bids/:bid_id/receipt
func (h *AuctionHandler) AttachReceiptHandler(c *gin.Context) {
	bidID := c.Param("bid_id")

	var req helpers.AttachReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "AttachReceiptHandler", err)
		return
	}

	bid, err := h.service.AttachReceipt(bidID, req.TxRef)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("AttachReceiptHandler: failed to attach receipt", map[string]any{
			"bid_id": bidID,
			"tx_ref": req.TxRef,
			"error":  err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(bid), "receipt attached successfully")
	helpers.LogSuccess("AttachReceiptHandler", "receipt attached successfully", map[string]any{
		"bid_id": bid.BidID,
		"tx_ref": bid.TxRef,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	a, err := h.service.GetAuction(auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetAuctionHandler: error retrieving auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(a), "auction retrieved successfully")
}

// GetBidsByAuctionHandler handles GET /auctions/:auction_id/bids
func (h *AuctionHandler) GetBidsByAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.service.GetBidsForAuction(auctionID)
	if err != nil && !errors.Is(err, auctionerrors.ErrNoBids) {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetBidsByAuctionHandler: error retrieving bids", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByAuctionHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *AuctionHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(auctionID)
	if err != nil {
		if errors.Is(err, auctionerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"auction_id": auctionID})
			return
		}
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetWinningBidHandler: winning bid error", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(bid), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": bid.AuctionID,
		"bidder_id":  bid.BidderID,
		"amount":     bid.Amount.String(),
	})
}

// GetBidsByBidderHandler handles GET /bidders/:bidder_id/bids
func (h *AuctionHandler) GetBidsByBidderHandler(c *gin.Context) {
	bidderID := c.Param("bidder_id")
	bids, err := h.service.GetBidsByBidder(bidderID)
	if err != nil && !errors.Is(err, auctionerrors.ErrBidderNoBids) {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetBidsByBidderHandler: error retrieving bids", map[string]any{"bidder_id": bidderID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByBidderHandler", "bids retrieved successfully", map[string]any{
		"bidder_id": bidderID,
		"count":     len(bids),
	})
}

// CloseAuctionHandler handles POST /auctions/:auction_id/close
func (h *AuctionHandler) CloseAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	closed, err := h.service.CloseAuction(auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("CloseAuctionHandler: failed to close auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(closed), "auction closed successfully")
	helpers.LogSuccess("CloseAuctionHandler", "auction closed successfully", map[string]any{
		"auction_id": closed.AuctionID,
		"no_sale":    closed.NoSale,
	})
}

// CancelAuctionHandler handles POST /auctions/:auction_id/cancel
func (h *AuctionHandler) CancelAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	cancelled, err := h.service.CancelAuction(auctionID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("CancelAuctionHandler: failed to cancel auction", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(cancelled), "auction cancelled successfully")
	helpers.LogSuccess("CancelAuctionHandler", "auction cancelled successfully", map[string]any{
		"auction_id": cancelled.AuctionID,
	})
}

// buildCreateParams parses the string-typed money fields of the create
// request into service parameters.
func buildCreateParams(req helpers.CreateAuctionRequest) (auction.CreateAuctionParams, error) {
	startingPrice, err := helpers.ParseAmount("starting_price", req.StartingPrice)
	if err != nil {
		return auction.CreateAuctionParams{}, err
	}

	params := auction.CreateAuctionParams{
		StartingPrice: startingPrice,
		Duration:      time.Duration(req.DurationHours * float64(time.Hour)),
	}

	if req.ReservePrice != "" {
		reserve, err := helpers.ParseAmount("reserve_price", req.ReservePrice)
		if err != nil {
			return auction.CreateAuctionParams{}, err
		}
		params.ReservePrice = &reserve
	}
	if req.BidIncrement != "" {
		increment, err := helpers.ParseAmount("bid_increment", req.BidIncrement)
		if err != nil {
			return auction.CreateAuctionParams{}, err
		}
		params.BidIncrement = increment
	}
	return params, nil
}
