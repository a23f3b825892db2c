package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"purchase-tracker/internal/models"
)

// CreateCompetitorStore inserts a new competitor store
func (s *Store) CreateCompetitorStore(ctx context.Context, store *models.CompetitorStore) error {
	query := `
		INSERT INTO competitor_stores (name, website_url, scraper_type, scraper_config)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_active, created_at`

	return s.db.GetContext(ctx, store, query,
		store.Name, store.WebsiteURL, store.ScraperType, store.ScraperConfig)
}

// GetCompetitorStore retrieves a competitor store by ID
func (s *Store) GetCompetitorStore(ctx context.Context, id int64) (*models.CompetitorStore, error) {
	var cs models.CompetitorStore
	err := s.db.GetContext(ctx, &cs, "SELECT * FROM competitor_stores WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("competitor store not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// ListCompetitorStores retrieves all competitor stores
func (s *Store) ListCompetitorStores(ctx context.Context, activeOnly bool) ([]models.CompetitorStore, error) {
	var stores []models.CompetitorStore
	if activeOnly {
		err := s.db.SelectContext(ctx, &stores,
			"SELECT * FROM competitor_stores WHERE is_active ORDER BY id")
		return stores, err
	}
	err := s.db.SelectContext(ctx, &stores, "SELECT * FROM competitor_stores ORDER BY id")
	return stores, err
}

// GetCompetitorStoreTx retrieves a competitor store within the transaction
// snapshot, nil when absent.
func (t *Tx) GetCompetitorStoreTx(ctx context.Context, id int64) (*models.CompetitorStore, error) {
	var cs models.CompetitorStore
	err := t.tx.GetContext(ctx, &cs, "SELECT * FROM competitor_stores WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// TouchStoreScraped stamps the store's last scrape time
func (s *Store) TouchStoreScraped(ctx context.Context, storeID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE competitor_stores SET last_scraped_at = NOW() WHERE id = $1", storeID)
	return err
}

// DemoteCompetitorPrices clears the current flag on previous observations
// for one (store, normalized name) pair before a fresh observation arrives.
func (t *Tx) DemoteCompetitorPrices(ctx context.Context, storeID int64, normalized string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE competitor_prices SET is_current = FALSE
		WHERE store_id = $1 AND normalized_name = $2 AND is_current`,
		storeID, normalized)
	return err
}

// DemoteAllForStore clears the current flag on every observation for a store
// ahead of a full scrape run.
func (t *Tx) DemoteAllForStore(ctx context.Context, storeID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE competitor_prices SET is_current = FALSE
		WHERE store_id = $1 AND is_current`, storeID)
	return err
}

// InsertCompetitorPrice appends a competitor price observation
func (t *Tx) InsertCompetitorPrice(ctx context.Context, price *models.CompetitorPriceObservation) error {
	query := `
		INSERT INTO competitor_prices (store_id, product_name, normalized_name,
			matched_product_id, price, unit, is_current, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		RETURNING id, is_current, created_at`

	return t.tx.GetContext(ctx, price, query,
		price.StoreID, price.ProductName, price.NormalizedName,
		price.MatchedProductID, price.Price, price.Unit, price.ObservedAt)
}

// CurrentMatchedCompetitorPrices returns current competitor observations
// that were fuzzy-matched to a catalog product.
func (t *Tx) CurrentMatchedCompetitorPrices(ctx context.Context) ([]models.CompetitorPriceObservation, error) {
	var prices []models.CompetitorPriceObservation
	err := t.tx.SelectContext(ctx, &prices, `
		SELECT * FROM competitor_prices
		WHERE is_current AND matched_product_id IS NOT NULL
		ORDER BY id`)
	return prices, err
}

// ListCompetitorPrices retrieves competitor prices for a store, current first
func (s *Store) ListCompetitorPrices(ctx context.Context, storeID int64, currentOnly bool) ([]models.CompetitorPriceObservation, error) {
	var prices []models.CompetitorPriceObservation
	if currentOnly {
		err := s.db.SelectContext(ctx, &prices, `
			SELECT * FROM competitor_prices
			WHERE store_id = $1 AND is_current
			ORDER BY observed_at DESC`, storeID)
		return prices, err
	}
	err := s.db.SelectContext(ctx, &prices, `
		SELECT * FROM competitor_prices
		WHERE store_id = $1
		ORDER BY observed_at DESC`, storeID)
	return prices, err
}
