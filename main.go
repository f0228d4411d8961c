package main

import (
	"fmt"
	"os"
	"time"

	auction "crop-auction/internal/auctionService"
	"crop-auction/internal/events"
	"crop-auction/internal/listing"
	"crop-auction/internal/repository"
	"crop-auction/internal/server"
	"crop-auction/utils"
)

func main() {

	repo, err := buildStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize store: %v\n", err)
		os.Exit(1)
	}

	publisher := buildPublisher()
	items := buildListingClient()

	auctionSvc := auction.NewAuctionService(repo, items, publisher)

	go runCloseSweep(auctionSvc)

	router := server.SetupRouter(auctionSvc)

	port := getPort()
	fmt.Printf("Starting crop auction server on %s...\n", port)
	if err := router.Run(port); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}
}

// buildStore selects Postgres when DATABASE_URL is set, in-memory otherwise
func buildStore() (repository.AuctionStore, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return repository.NewMemoryRepo(), nil
	}

	repo, err := repository.NewPostgresRepo(dsn)
	if err != nil {
		return nil, err
	}
	if err := repo.InitSchema(); err != nil {
		return nil, err
	}
	utils.Info("connected to postgres store", nil)
	return repo, nil
}

// buildPublisher connects to NATS when NATS_URL is set, discards events otherwise
func buildPublisher() events.Publisher {
	url := os.Getenv("NATS_URL")
	if url == "" {
		return events.NoopPublisher{}
	}

	publisher, err := events.NewNatsPublisher(url)
	if err != nil {
		utils.Warn("nats unavailable, auction events disabled", map[string]any{"url": url, "error": err.Error()})
		return events.NoopPublisher{}
	}
	utils.Info("connected to nats", map[string]any{"url": url})
	return publisher
}

// buildListingClient wires the listing service collaborator when configured
func buildListingClient() auction.ItemStatusSetter {
	baseURL := os.Getenv("LISTING_SERVICE_URL")
	if baseURL == "" {
		return listing.NoopClient{}
	}
	return listing.NewClient(baseURL)
}

// runCloseSweep periodically ends auctions whose end time has passed
func runCloseSweep(svc *auction.AuctionService) {
	ticker := time.NewTicker(sweepInterval())
	defer ticker.Stop()

	for range ticker.C {
		closed, err := svc.CloseDueAuctions()
		if err != nil {
			utils.Warn("close sweep failed", map[string]any{"error": err.Error()})
			continue
		}
		if closed > 0 {
			utils.Info("close sweep ended auctions", map[string]any{"closed": closed})
		}
	}
}

// sweepInterval returns the close-sweep period from env or a 30s default
func sweepInterval() time.Duration {
	if v := os.Getenv("CLOSE_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return 30 * time.Second
}

// getPort returns the server port from env or defaults to ":8080"
func getPort() string {
	if p := os.Getenv("PORT"); p != "" {
		return fmt.Sprintf(":%s", p)
	}
	return ":8080"
}
