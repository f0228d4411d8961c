package auction

import (
	"errors"
	"sync"
	"testing"
	"time"

	"crop-auction/internal/auctionerrors"
	"crop-auction/internal/events"
	"crop-auction/internal/listing"
	model "crop-auction/internal/models"
	"crop-auction/internal/repository"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// itemsStub records SetItemStatus calls so lifecycle side effects can be asserted
type itemsStub struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (s *itemsStub) SetItemStatus(itemID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, itemID+":"+status)
	return s.err
}

func newService(repo repository.AuctionStore) (*AuctionService, *itemsStub) {
	items := &itemsStub{}
	return NewAuctionService(repo, items, events.NoopPublisher{}), items
}

// Tests PlaceBid
func TestAuctionService_PlaceBid(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockAuctionStore(ctrl)
	service, _ := newService(mockRepo)

	end := time.Now().UTC().Add(1 * time.Hour)
	now := time.Now().UTC()

	// Table-driven test cases
	tests := []struct {
		name          string
		auctionID     string
		bidderID      string
		amount        int64
		mockSetup     func()
		expectError   bool
		expectedError error
	}{
		{
			name:      "valid_first_bid",
			auctionID: "auction1",
			bidderID:  "bidder1",
			amount:    100,
			mockSetup: func() {
				a := activeAuction(100, 10, end)
				mockRepo.EXPECT().GetAuction("auction1").Return(a, nil)
				mockRepo.EXPECT().CommitBid("auction1", a.Version, gomock.Any()).
					Return(withHighestBid(a, 100, "bidder1"), nil)
			},
			expectError: false,
		},
		{
			name:          "empty_auctionID",
			auctionID:     "",
			bidderID:      "bidder1",
			amount:        100,
			mockSetup:     func() {},
			expectError:   true,
			expectedError: auctionerrors.ErrInvalidBid,
		},
		{
			name:          "empty_bidderID",
			auctionID:     "auction1",
			bidderID:      "",
			amount:        100,
			mockSetup:     func() {},
			expectError:   true,
			expectedError: auctionerrors.ErrInvalidBid,
		},
		{
			name:      "auction_not_found",
			auctionID: "missing",
			bidderID:  "bidder1",
			amount:    100,
			mockSetup: func() {
				mockRepo.EXPECT().GetAuction("missing").Return(model.Auction{}, auctionerrors.ErrAuctionNotFound)
			},
			expectError:   true,
			expectedError: auctionerrors.ErrAuctionNotFound,
		},
		{
			name:      "bid_too_low",
			auctionID: "auction1",
			bidderID:  "bidder2",
			amount:    105,
			mockSetup: func() {
				mockRepo.EXPECT().GetAuction("auction1").
					Return(withHighestBid(activeAuction(100, 10, end), 100, "bidder1"), nil)
			},
			expectError:   true,
			expectedError: auctionerrors.ErrBidTooLow,
		},
		{
			name:      "expired_auction_rejected_without_commit",
			auctionID: "auction1",
			bidderID:  "bidder1",
			amount:    200,
			mockSetup: func() {
				mockRepo.EXPECT().GetAuction("auction1").
					Return(activeAuction(100, 10, now.Add(-1*time.Minute)), nil)
			},
			expectError:   true,
			expectedError: auctionerrors.ErrAuctionExpired,
		},
		{
			name:      "repo_commit_fails",
			auctionID: "auction1",
			bidderID:  "bidder3",
			amount:    120,
			mockSetup: func() {
				a := activeAuction(100, 10, end)
				mockRepo.EXPECT().GetAuction("auction1").Return(a, nil)
				mockRepo.EXPECT().CommitBid("auction1", a.Version, gomock.Any()).
					Return(model.Auction{}, errors.New("repo write failed"))
			},
			expectError:   true,
			expectedError: nil, // Service wraps repo error, we don't match specific error here
		},
	}

	for _, tc := range tests {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			tc.mockSetup()

			bid, err := service.PlaceBid(tc.auctionID, tc.bidderID, decimal.NewFromInt(tc.amount), "")

			if tc.expectError {
				require.Error(t, err)
				if tc.expectedError != nil {
					require.True(t, errors.Is(err, tc.expectedError), "expected error: %v, got: %v", tc.expectedError, err)
				}
			} else {
				require.NoError(t, err)

				// Validate generated BidID
				require.NotEmpty(t, bid.BidID)
				_, parseErr := uuid.Parse(bid.BidID)
				require.NoError(t, parseErr, "BidID should be a valid UUID")

				// Validate bid fields
				require.Equal(t, tc.auctionID, bid.AuctionID)
				require.Equal(t, tc.bidderID, bid.BidderID)
				require.True(t, bid.Amount.Equal(decimal.NewFromInt(tc.amount)))
				require.True(t, bid.IsWinning)
				require.WithinDuration(t, now, bid.CreatedAt, 2*time.Second)
			}
		})
	}
}

// A stale-snapshot conflict re-reads and re-validates instead of failing outright.
func TestAuctionService_PlaceBid_RetriesOnConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockAuctionStore(ctrl)
	service, _ := newService(mockRepo)

	end := time.Now().UTC().Add(1 * time.Hour)
	stale := activeAuction(100, 10, end)
	fresh := withHighestBid(activeAuction(100, 10, end), 100, "rival")
	fresh.Version = 2

	gomock.InOrder(
		mockRepo.EXPECT().GetAuction("auction1").Return(stale, nil),
		mockRepo.EXPECT().CommitBid("auction1", stale.Version, gomock.Any()).
			Return(model.Auction{}, auctionerrors.ErrVersionConflict),
		mockRepo.EXPECT().GetAuction("auction1").Return(fresh, nil),
		mockRepo.EXPECT().CommitBid("auction1", fresh.Version, gomock.Any()).
			Return(withHighestBid(fresh, 120, "bidder1"), nil),
	)

	bid, err := service.PlaceBid("auction1", "bidder1", decimal.NewFromInt(120), "")
	require.NoError(t, err)
	require.True(t, bid.Amount.Equal(decimal.NewFromInt(120)))
}

// After the fresh state invalidates the bid, the rejection is BidTooLow, not a conflict.
func TestAuctionService_PlaceBid_FreshStateInvalidatesBid(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockAuctionStore(ctrl)
	service, _ := newService(mockRepo)

	end := time.Now().UTC().Add(1 * time.Hour)
	stale := activeAuction(100, 10, end)
	fresh := withHighestBid(activeAuction(100, 10, end), 120, "rival")
	fresh.Version = 2

	gomock.InOrder(
		mockRepo.EXPECT().GetAuction("auction1").Return(stale, nil),
		mockRepo.EXPECT().CommitBid("auction1", stale.Version, gomock.Any()).
			Return(model.Auction{}, auctionerrors.ErrVersionConflict),
		mockRepo.EXPECT().GetAuction("auction1").Return(fresh, nil),
	)

	_, err := service.PlaceBid("auction1", "bidder1", decimal.NewFromInt(110), "")
	require.ErrorIs(t, err, auctionerrors.ErrBidTooLow)
	require.NotErrorIs(t, err, auctionerrors.ErrConflictRetry)
}

// Persistent conflicts surface the transient error after bounded attempts.
func TestAuctionService_PlaceBid_ConflictRetryExhausts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockAuctionStore(ctrl)
	service, _ := newService(mockRepo)

	end := time.Now().UTC().Add(1 * time.Hour)
	a := activeAuction(100, 10, end)

	mockRepo.EXPECT().GetAuction("auction1").Return(a, nil).Times(maxCommitAttempts)
	mockRepo.EXPECT().CommitBid("auction1", a.Version, gomock.Any()).
		Return(model.Auction{}, auctionerrors.ErrVersionConflict).Times(maxCommitAttempts)

	_, err := service.PlaceBid("auction1", "bidder1", decimal.NewFromInt(100), "")
	require.ErrorIs(t, err, auctionerrors.ErrConflictRetry)
	require.NotErrorIs(t, err, auctionerrors.ErrBidTooLow)
}

// Tests CreateAuction
func TestAuctionService_CreateAuction(t *testing.T) {
	reserve := decimal.NewFromInt(200)
	lowReserve := decimal.NewFromInt(50)

	tests := []struct {
		name          string
		itemID        string
		params        CreateAuctionParams
		wantCreate    bool
		expectedError error
	}{
		{
			name:   "valid_with_reserve",
			itemID: "item1",
			params: CreateAuctionParams{
				StartingPrice: decimal.NewFromInt(100),
				ReservePrice:  &reserve,
				BidIncrement:  decimal.NewFromInt(10),
				Duration:      24 * time.Hour,
			},
			wantCreate: true,
		},
		{
			name:   "default_increment_applied",
			itemID: "item2",
			params: CreateAuctionParams{
				StartingPrice: decimal.NewFromInt(100),
				Duration:      24 * time.Hour,
			},
			wantCreate: true,
		},
		{
			name:          "missing_itemID",
			itemID:        "",
			params:        CreateAuctionParams{StartingPrice: decimal.NewFromInt(100), Duration: time.Hour},
			expectedError: auctionerrors.ErrInvalidBid,
		},
		{
			name:          "zero_starting_price",
			itemID:        "item1",
			params:        CreateAuctionParams{StartingPrice: decimal.Zero, Duration: time.Hour},
			expectedError: auctionerrors.ErrInvalidStartPrice,
		},
		{
			name:   "reserve_below_starting_price",
			itemID: "item1",
			params: CreateAuctionParams{
				StartingPrice: decimal.NewFromInt(100),
				ReservePrice:  &lowReserve,
				Duration:      time.Hour,
			},
			expectedError: auctionerrors.ErrInvalidReservePrice,
		},
		{
			name:   "negative_increment",
			itemID: "item1",
			params: CreateAuctionParams{
				StartingPrice: decimal.NewFromInt(100),
				BidIncrement:  decimal.NewFromInt(-5),
				Duration:      time.Hour,
			},
			expectedError: auctionerrors.ErrInvalidIncrement,
		},
		{
			name:          "zero_duration",
			itemID:        "item1",
			params:        CreateAuctionParams{StartingPrice: decimal.NewFromInt(100)},
			expectedError: auctionerrors.ErrInvalidDuration,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockRepo := repository.NewMockAuctionStore(ctrl)
			service, items := newService(mockRepo)

			if tc.wantCreate {
				mockRepo.EXPECT().CreateAuction(gomock.Any()).Return(nil)
			}

			auction, err := service.CreateAuction(tc.itemID, tc.params)

			if tc.expectedError != nil {
				require.Error(t, err)
				require.True(t, errors.Is(err, tc.expectedError), "expected error: %v, got: %v", tc.expectedError, err)
				require.Empty(t, items.calls, "rejected create must not touch the listing service")
				return
			}

			require.NoError(t, err)
			require.NotEmpty(t, auction.AuctionID)
			require.Equal(t, model.StatusActive, auction.Status)
			require.Equal(t, tc.itemID, auction.ItemID)
			require.True(t, auction.EndTime.After(auction.StartTime))
			if tc.params.BidIncrement.IsZero() {
				require.True(t, auction.BidIncrement.Equal(DefaultBidIncrement))
			}
			require.Equal(t, []string{tc.itemID + ":" + listing.StatusUnderAuction}, items.calls)
		})
	}
}

// A listing-side failure is logged, not propagated; the auction stands.
func TestAuctionService_CreateAuction_ListingFailureDoesNotRollBack(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockAuctionStore(ctrl)
	items := &itemsStub{err: errors.New("listing service down")}
	service := NewAuctionService(mockRepo, items, events.NoopPublisher{})

	mockRepo.EXPECT().CreateAuction(gomock.Any()).Return(nil)

	auction, err := service.CreateAuction("item1", CreateAuctionParams{
		StartingPrice: decimal.NewFromInt(100),
		Duration:      time.Hour,
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, auction.Status)
}

// Tests CloseAuction
func TestAuctionService_CloseAuction(t *testing.T) {
	past := time.Now().UTC().Add(-1 * time.Minute)

	tests := []struct {
		name          string
		mockSetup     func(m *repository.MockAuctionStore)
		wantNoSale    bool
		expectedError error
	}{
		{
			name: "reserve_met_sells",
			mockSetup: func(m *repository.MockAuctionStore) {
				a := withHighestBid(activeAuction(100, 10, past), 250, "bidder1")
				reserve := decimal.NewFromInt(200)
				a.ReservePrice = &reserve
				m.EXPECT().GetAuction("auction1").Return(a, nil)
				closed := a
				closed.Status = model.StatusEnded
				m.EXPECT().FinalizeAuction("auction1", a.Version, model.StatusEnded, false).Return(closed, nil)
			},
			wantNoSale: false,
		},
		{
			name: "reserve_unmet_is_no_sale_not_error",
			mockSetup: func(m *repository.MockAuctionStore) {
				a := withHighestBid(activeAuction(100, 10, past), 150, "bidder1")
				reserve := decimal.NewFromInt(200)
				a.ReservePrice = &reserve
				m.EXPECT().GetAuction("auction1").Return(a, nil)
				closed := a
				closed.Status = model.StatusEnded
				closed.NoSale = true
				m.EXPECT().FinalizeAuction("auction1", a.Version, model.StatusEnded, true).Return(closed, nil)
			},
			wantNoSale: true,
		},
		{
			name: "no_bids_is_no_sale",
			mockSetup: func(m *repository.MockAuctionStore) {
				a := activeAuction(100, 10, past)
				m.EXPECT().GetAuction("auction1").Return(a, nil)
				closed := a
				closed.Status = model.StatusEnded
				closed.NoSale = true
				m.EXPECT().FinalizeAuction("auction1", a.Version, model.StatusEnded, true).Return(closed, nil)
			},
			wantNoSale: true,
		},
		{
			name: "not_yet_ended",
			mockSetup: func(m *repository.MockAuctionStore) {
				m.EXPECT().GetAuction("auction1").
					Return(activeAuction(100, 10, time.Now().UTC().Add(1*time.Hour)), nil)
			},
			expectedError: auctionerrors.ErrAuctionNotEnded,
		},
		{
			name: "cancelled_is_terminal",
			mockSetup: func(m *repository.MockAuctionStore) {
				a := activeAuction(100, 10, past)
				a.Status = model.StatusCancelled
				m.EXPECT().GetAuction("auction1").Return(a, nil)
			},
			expectedError: auctionerrors.ErrInvalidTransition,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockRepo := repository.NewMockAuctionStore(ctrl)
			service, _ := newService(mockRepo)
			tc.mockSetup(mockRepo)

			closed, err := service.CloseAuction("auction1")
			if tc.expectedError != nil {
				require.Error(t, err)
				require.True(t, errors.Is(err, tc.expectedError), "expected error: %v, got: %v", tc.expectedError, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, model.StatusEnded, closed.Status)
			require.Equal(t, tc.wantNoSale, closed.NoSale)
		})
	}
}

// Closing an already ended auction is a no-op.
func TestAuctionService_CloseAuction_AlreadyEnded(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockAuctionStore(ctrl)
	service, items := newService(mockRepo)

	a := activeAuction(100, 10, time.Now().UTC().Add(-1*time.Hour))
	a.Status = model.StatusEnded
	mockRepo.EXPECT().GetAuction("auction1").Return(a, nil)

	closed, err := service.CloseAuction("auction1")
	require.NoError(t, err)
	require.Equal(t, model.StatusEnded, closed.Status)
	require.Empty(t, items.calls)
}

// Tests AttachReceipt
func TestAuctionService_AttachReceipt(t *testing.T) {
	tests := []struct {
		name          string
		bidID         string
		txRef         string
		mockSetup     func(m *repository.MockAuctionStore)
		expectedError error
	}{
		{
			name:  "attaches_receipt",
			bidID: "bid1",
			txRef: "0xabc",
			mockSetup: func(m *repository.MockAuctionStore) {
				m.EXPECT().AttachReceipt("bid1", "0xabc").
					Return(model.Bid{BidID: "bid1", TxRef: "0xabc"}, nil)
			},
		},
		{
			name:          "empty_bidID",
			bidID:         "",
			txRef:         "0xabc",
			mockSetup:     func(m *repository.MockAuctionStore) {},
			expectedError: auctionerrors.ErrInvalidBid,
		},
		{
			name:          "empty_txRef",
			bidID:         "bid1",
			txRef:         "",
			mockSetup:     func(m *repository.MockAuctionStore) {},
			expectedError: auctionerrors.ErrInvalidBid,
		},
		{
			name:  "bid_not_found",
			bidID: "missing",
			txRef: "0xabc",
			mockSetup: func(m *repository.MockAuctionStore) {
				m.EXPECT().AttachReceipt("missing", "0xabc").
					Return(model.Bid{}, auctionerrors.ErrBidNotFound)
			},
			expectedError: auctionerrors.ErrBidNotFound,
		},
		{
			name:  "different_ref_conflicts",
			bidID: "bid1",
			txRef: "0xother",
			mockSetup: func(m *repository.MockAuctionStore) {
				m.EXPECT().AttachReceipt("bid1", "0xother").
					Return(model.Bid{}, auctionerrors.ErrReceiptConflict)
			},
			expectedError: auctionerrors.ErrReceiptConflict,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockRepo := repository.NewMockAuctionStore(ctrl)
			service, _ := newService(mockRepo)
			tc.mockSetup(mockRepo)

			bid, err := service.AttachReceipt(tc.bidID, tc.txRef)
			if tc.expectedError != nil {
				require.Error(t, err)
				require.True(t, errors.Is(err, tc.expectedError), "expected error: %v, got: %v", tc.expectedError, err)
			} else {
				require.NoError(t, err)
				require.Equal(t, tc.txRef, bid.TxRef)
			}
		})
	}
}

// Tests CloseDueAuctions
func TestAuctionService_CloseDueAuctions(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockAuctionStore(ctrl)
	service, _ := newService(mockRepo)

	past := time.Now().UTC().Add(-1 * time.Minute)
	first := withHighestBid(activeAuction(100, 10, past), 150, "bidder1")
	first.AuctionID = "auction1"
	second := activeAuction(100, 10, past)
	second.AuctionID = "auction2"

	mockRepo.EXPECT().ListDueAuctions(gomock.Any()).Return([]model.Auction{first, second}, nil)
	mockRepo.EXPECT().GetAuction("auction1").Return(first, nil)
	closedFirst := first
	closedFirst.Status = model.StatusEnded
	mockRepo.EXPECT().FinalizeAuction("auction1", first.Version, model.StatusEnded, false).Return(closedFirst, nil)
	mockRepo.EXPECT().GetAuction("auction2").Return(second, nil)
	closedSecond := second
	closedSecond.Status = model.StatusEnded
	closedSecond.NoSale = true
	mockRepo.EXPECT().FinalizeAuction("auction2", second.Version, model.StatusEnded, true).Return(closedSecond, nil)

	closed, err := service.CloseDueAuctions()
	require.NoError(t, err)
	require.Equal(t, 2, closed)
}
