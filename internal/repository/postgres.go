package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crop-auction/internal/auctionerrors"
	model "crop-auction/internal/models"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresRepo is the relational implementation of AuctionStore. Optimistic
// concurrency is expressed as "UPDATE ... WHERE version = $n" with a
// rows-affected check, so a stale commit surfaces as ErrVersionConflict
// exactly like in the in-memory store.
type PostgresRepo struct {
	db *sql.DB
}

// NewPostgresRepo opens a connection pool against the given DSN and verifies
// connectivity.
func NewPostgresRepo(connStr string) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepo{db: db}, nil
}

// InitSchema creates the auction and bid tables
func (r *PostgresRepo) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS auctions (
		auction_id VARCHAR(64) PRIMARY KEY,
		item_id VARCHAR(64) NOT NULL,
		starting_price NUMERIC(18, 2) NOT NULL,
		reserve_price NUMERIC(18, 2),
		bid_increment NUMERIC(18, 2) NOT NULL,
		current_highest_bid NUMERIC(18, 2),
		current_winner_id VARCHAR(64),
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		status VARCHAR(16) NOT NULL,
		no_sale BOOLEAN NOT NULL DEFAULT FALSE,
		total_bid_count INTEGER NOT NULL DEFAULT 0,
		version BIGINT NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS bids (
		bid_id VARCHAR(64) PRIMARY KEY,
		auction_id VARCHAR(64) NOT NULL REFERENCES auctions(auction_id),
		bidder_id VARCHAR(64) NOT NULL,
		amount NUMERIC(18, 2) NOT NULL,
		is_winning BOOLEAN NOT NULL DEFAULT FALSE,
		tx_ref VARCHAR(128),
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bids_auction_id ON bids(auction_id);
	CREATE INDEX IF NOT EXISTS idx_bids_bidder_id ON bids(bidder_id);
	CREATE INDEX IF NOT EXISTS idx_auctions_status_end ON auctions(status, end_time);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close releases the connection pool
func (r *PostgresRepo) Close() error {
	return r.db.Close()
}

// CreateAuction persists a new auction row
func (r *PostgresRepo) CreateAuction(auction model.Auction) error {
	if auction.Version == 0 {
		auction.Version = 1
	}
	query := `
		INSERT INTO auctions (auction_id, item_id, starting_price, reserve_price,
			bid_increment, current_highest_bid, current_winner_id, start_time,
			end_time, status, no_sale, total_bid_count, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (auction_id) DO NOTHING
	`
	res, err := r.db.Exec(query,
		auction.AuctionID, auction.ItemID, auction.StartingPrice,
		nullDecimal(auction.ReservePrice), auction.BidIncrement,
		nullDecimal(auction.CurrentHighestBid), nullString(auction.CurrentWinnerID),
		auction.StartTime, auction.EndTime, string(auction.Status),
		auction.NoSale, auction.TotalBidCount, auction.Version,
	)
	if err != nil {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, auctionerrors.ErrAuctionExists)
	}
	return nil
}

// GetAuction returns one auction by id
func (r *PostgresRepo) GetAuction(auctionID string) (model.Auction, error) {
	row := r.db.QueryRow(`
		SELECT auction_id, item_id, starting_price, reserve_price, bid_increment,
			current_highest_bid, current_winner_id, start_time, end_time, status,
			no_sale, total_bid_count, version
		FROM auctions WHERE auction_id = $1
	`, auctionID)
	return scanAuction(row, auctionID)
}

// CommitBid applies the bid commit as one transaction: demote prior winner,
// insert new bid, update aggregates, bump version.
func (r *PostgresRepo) CommitBid(auctionID string, expectedVersion int64, bid model.Bid) (model.Auction, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return model.Auction{}, fmt.Errorf("commit bid for auction %s: %w", auctionID, err)
	}
	defer tx.Rollback()

	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = time.Now().UTC()
	}

	res, err := tx.Exec(`
		UPDATE auctions
		SET current_highest_bid = $1, current_winner_id = $2,
			total_bid_count = total_bid_count + 1, version = version + 1
		WHERE auction_id = $3 AND version = $4
	`, bid.Amount, bid.BidderID, auctionID, expectedVersion)
	if err != nil {
		return model.Auction{}, fmt.Errorf("commit bid for auction %s: %w", auctionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Auction{}, fmt.Errorf("commit bid for auction %s: %w", auctionID, err)
	}
	if n == 0 {
		// Either the row is gone or the snapshot is stale; distinguish.
		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS (SELECT 1 FROM auctions WHERE auction_id = $1)`, auctionID).Scan(&exists); err != nil {
			return model.Auction{}, fmt.Errorf("commit bid for auction %s: %w", auctionID, err)
		}
		if !exists {
			return model.Auction{}, fmt.Errorf("commit bid for auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
		}
		return model.Auction{}, fmt.Errorf("commit bid for auction %s: %w", auctionID, auctionerrors.ErrVersionConflict)
	}

	if _, err := tx.Exec(`UPDATE bids SET is_winning = FALSE WHERE auction_id = $1 AND is_winning`, auctionID); err != nil {
		return model.Auction{}, fmt.Errorf("demote prior winner for auction %s: %w", auctionID, err)
	}

	if _, err := tx.Exec(`
		INSERT INTO bids (bid_id, auction_id, bidder_id, amount, is_winning, tx_ref, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6)
	`, bid.BidID, auctionID, bid.BidderID, bid.Amount, nullString(bid.TxRef), bid.CreatedAt); err != nil {
		return model.Auction{}, fmt.Errorf("insert bid %s: %w", bid.BidID, err)
	}

	auction, err := scanAuction(tx.QueryRow(`
		SELECT auction_id, item_id, starting_price, reserve_price, bid_increment,
			current_highest_bid, current_winner_id, start_time, end_time, status,
			no_sale, total_bid_count, version
		FROM auctions WHERE auction_id = $1
	`, auctionID), auctionID)
	if err != nil {
		return model.Auction{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.Auction{}, fmt.Errorf("commit bid for auction %s: %w", auctionID, err)
	}
	return auction, nil
}

// FinalizeAuction transitions the auction to a terminal status, version-guarded
func (r *PostgresRepo) FinalizeAuction(auctionID string, expectedVersion int64, status model.AuctionStatus, noSale bool) (model.Auction, error) {
	res, err := r.db.Exec(`
		UPDATE auctions SET status = $1, no_sale = $2, version = version + 1
		WHERE auction_id = $3 AND version = $4
	`, string(status), noSale, auctionID, expectedVersion)
	if err != nil {
		return model.Auction{}, fmt.Errorf("finalize auction %s: %w", auctionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, getErr := r.GetAuction(auctionID); getErr != nil {
			return model.Auction{}, getErr
		}
		return model.Auction{}, fmt.Errorf("finalize auction %s: %w", auctionID, auctionerrors.ErrVersionConflict)
	}
	return r.GetAuction(auctionID)
}

// GetBid returns one bid by id
func (r *PostgresRepo) GetBid(bidID string) (model.Bid, error) {
	return scanBid(r.db.QueryRow(`
		SELECT bid_id, auction_id, bidder_id, amount, is_winning, tx_ref, created_at
		FROM bids WHERE bid_id = $1
	`, bidID), bidID)
}

// AttachReceipt sets tx_ref on a bid, first write wins, same ref converges
func (r *PostgresRepo) AttachReceipt(bidID, txRef string) (model.Bid, error) {
	res, err := r.db.Exec(`
		UPDATE bids SET tx_ref = $1
		WHERE bid_id = $2 AND (tx_ref IS NULL OR tx_ref = $1)
	`, txRef, bidID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("attach receipt to bid %s: %w", bidID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		bid, getErr := r.GetBid(bidID)
		if getErr != nil {
			return model.Bid{}, getErr
		}
		if bid.TxRef != "" && bid.TxRef != txRef {
			return model.Bid{}, fmt.Errorf("attach receipt to bid %s: %w", bidID, auctionerrors.ErrReceiptConflict)
		}
		return bid, nil
	}
	return r.GetBid(bidID)
}

// ListBidsByAuction returns bids ordered by (amount desc, created_at asc)
func (r *PostgresRepo) ListBidsByAuction(auctionID string) ([]model.Bid, error) {
	rows, err := r.db.Query(`
		SELECT bid_id, auction_id, bidder_id, amount, is_winning, tx_ref, created_at
		FROM bids WHERE auction_id = $1
		ORDER BY amount DESC, created_at ASC
	`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, err)
	}
	defer rows.Close()

	bids, err := collectBids(rows)
	if err != nil {
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, err)
	}
	if len(bids) == 0 {
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
	}
	return bids, nil
}

// GetWinningBid returns the winning bid for an auction
func (r *PostgresRepo) GetWinningBid(auctionID string) (model.Bid, error) {
	bid, err := scanBid(r.db.QueryRow(`
		SELECT bid_id, auction_id, bidder_id, amount, is_winning, tx_ref, created_at
		FROM bids WHERE auction_id = $1 AND is_winning
	`, auctionID), auctionID)
	if err != nil {
		if errors.Is(err, auctionerrors.ErrBidNotFound) {
			return model.Bid{}, fmt.Errorf("get winning bid for auction %s: %w", auctionID, auctionerrors.ErrNoBids)
		}
		return model.Bid{}, err
	}
	return bid, nil
}

// ListBidsByBidder returns all bids a bidder has placed across auctions
func (r *PostgresRepo) ListBidsByBidder(bidderID string) ([]model.Bid, error) {
	rows, err := r.db.Query(`
		SELECT bid_id, auction_id, bidder_id, amount, is_winning, tx_ref, created_at
		FROM bids WHERE bidder_id = $1
		ORDER BY created_at ASC
	`, bidderID)
	if err != nil {
		return nil, fmt.Errorf("list bids for bidder %s: %w", bidderID, err)
	}
	defer rows.Close()

	bids, err := collectBids(rows)
	if err != nil {
		return nil, fmt.Errorf("list bids for bidder %s: %w", bidderID, err)
	}
	if len(bids) == 0 {
		return nil, fmt.Errorf("list bids for bidder %s: %w", bidderID, auctionerrors.ErrBidderNoBids)
	}
	return bids, nil
}

// ListDueAuctions returns active auctions whose end time has passed
func (r *PostgresRepo) ListDueAuctions(now time.Time) ([]model.Auction, error) {
	rows, err := r.db.Query(`
		SELECT auction_id, item_id, starting_price, reserve_price, bid_increment,
			current_highest_bid, current_winner_id, start_time, end_time, status,
			no_sale, total_bid_count, version
		FROM auctions WHERE status = $1 AND end_time <= $2
		ORDER BY end_time ASC
	`, string(model.StatusActive), now)
	if err != nil {
		return nil, fmt.Errorf("list due auctions: %w", err)
	}
	defer rows.Close()

	var due []model.Auction
	for rows.Next() {
		auction, err := scanAuctionRows(rows)
		if err != nil {
			return nil, fmt.Errorf("list due auctions: %w", err)
		}
		due = append(due, auction)
	}
	return due, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner, auctionID string) (model.Auction, error) {
	auction, err := scanAuctionRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
		}
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, err)
	}
	return auction, nil
}

func scanAuctionRows(row rowScanner) (model.Auction, error) {
	var (
		auction  model.Auction
		reserve  sql.NullString
		highest  sql.NullString
		winnerID sql.NullString
		status   string
	)
	err := row.Scan(&auction.AuctionID, &auction.ItemID, &auction.StartingPrice,
		&reserve, &auction.BidIncrement, &highest, &winnerID,
		&auction.StartTime, &auction.EndTime, &status,
		&auction.NoSale, &auction.TotalBidCount, &auction.Version)
	if err != nil {
		return model.Auction{}, err
	}
	auction.Status = model.AuctionStatus(status)
	auction.CurrentWinnerID = winnerID.String
	if auction.ReservePrice, err = parseNullDecimal(reserve); err != nil {
		return model.Auction{}, err
	}
	if auction.CurrentHighestBid, err = parseNullDecimal(highest); err != nil {
		return model.Auction{}, err
	}
	return auction, nil
}

func scanBid(row rowScanner, bidID string) (model.Bid, error) {
	var (
		bid   model.Bid
		txRef sql.NullString
	)
	err := row.Scan(&bid.BidID, &bid.AuctionID, &bid.BidderID, &bid.Amount,
		&bid.IsWinning, &txRef, &bid.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, auctionerrors.ErrBidNotFound)
		}
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, err)
	}
	bid.TxRef = txRef.String
	return bid, nil
}

func collectBids(rows *sql.Rows) ([]model.Bid, error) {
	var bids []model.Bid
	for rows.Next() {
		var (
			bid   model.Bid
			txRef sql.NullString
		)
		if err := rows.Scan(&bid.BidID, &bid.AuctionID, &bid.BidderID, &bid.Amount,
			&bid.IsWinning, &txRef, &bid.CreatedAt); err != nil {
			return nil, err
		}
		bid.TxRef = txRef.String
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

func parseNullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
