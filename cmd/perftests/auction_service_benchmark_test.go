package perftests

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	auction "crop-auction/internal/auctionService"
	"crop-auction/internal/auctionerrors"
	"crop-auction/internal/events"
	"crop-auction/internal/listing"
	repository "crop-auction/internal/repository"

	"github.com/shopspring/decimal"
)

func benchService() *auction.AuctionService {
	repo := repository.NewMemoryRepo()
	return auction.NewAuctionService(repo, listing.NoopClient{}, events.NoopPublisher{})
}

func benchAuction(b *testing.B, svc *auction.AuctionService, itemID string) string {
	b.Helper()
	created, err := svc.CreateAuction(itemID, auction.CreateAuctionParams{
		StartingPrice: decimal.NewFromInt(100),
		BidIncrement:  decimal.NewFromInt(1),
		Duration:      24 * time.Hour,
	})
	if err != nil {
		b.Fatalf("create auction: %v", err)
	}
	return created.AuctionID
}

// Benchmark_PlaceBid_Isolated measures the uncontended path: every bid
// lands on its own auction.
func Benchmark_PlaceBid_Isolated(b *testing.B) {
	svc := benchService()

	auctionIDs := make([]string, b.N)
	for i := 0; i < b.N; i++ {
		auctionIDs[i] = benchAuction(b, svc, fmt.Sprintf("item%d", i))
	}

	amount := decimal.NewFromInt(100)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.PlaceBid(auctionIDs[i], "bench-bidder", amount, ""); err != nil {
			b.Fatalf("place bid: %v", err)
		}
	}
}

// Benchmark_PlaceBid_ConcurrentSharedAuction hammers a single auction from
// all procs. Rejections for being outbid and transient version conflicts are
// expected outcomes under this contention, not failures.
func Benchmark_PlaceBid_ConcurrentSharedAuction(b *testing.B) {
	svc := benchService()
	auctionID := benchAuction(b, svc, "shared-item")

	var lastAmount int64 = 100
	var bidderSeq int64

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		bidderID := fmt.Sprintf("bidder%d", atomic.AddInt64(&bidderSeq, 1))
		for pb.Next() {
			amount := atomic.AddInt64(&lastAmount, 1)
			_, err := svc.PlaceBid(auctionID, bidderID, decimal.NewFromInt(amount), "")
			if err != nil &&
				!errors.Is(err, auctionerrors.ErrBidTooLow) &&
				!errors.Is(err, auctionerrors.ErrConflictRetry) {
				b.Errorf("place bid: %v", err)
			}
		}
	})
}

// Benchmark_GetAuction_WhileBidding measures reads racing a writer.
func Benchmark_GetAuction_WhileBidding(b *testing.B) {
	svc := benchService()
	auctionID := benchAuction(b, svc, "read-item")

	stop := make(chan struct{})
	go func() {
		amount := int64(100)
		for {
			select {
			case <-stop:
				return
			default:
				_, _ = svc.PlaceBid(auctionID, "writer", decimal.NewFromInt(amount), "")
				amount++
			}
		}
	}()
	defer close(stop)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := svc.GetAuction(auctionID); err != nil {
				b.Errorf("get auction: %v", err)
			}
		}
	})
}
